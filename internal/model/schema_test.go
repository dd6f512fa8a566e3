package model

import "testing"

func testSchemas() SchemaSet {
	return SchemaSet{
		"company": {Fields: []string{"name", "industry", "revenue"}},
		"contact": {Fields: []string{"name", "email"}},
	}
}

func TestSchemaSetLookup(t *testing.T) {
	ss := testSchemas()
	sc, err := ss.Lookup("company")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if len(sc.Fields) != 3 {
		t.Errorf("got %d fields, want 3", len(sc.Fields))
	}
	if _, err := ss.Lookup("invoice"); err == nil {
		t.Error("expected error for unknown entity type")
	}
}

func TestValidateState(t *testing.T) {
	ss := testSchemas()
	ok := State{"name": String("Acme"), "revenue": Int(1)}
	if err := ss.ValidateState("company", ok); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	bad := State{"name": String("Acme"), "vat_id": String("X")}
	if err := ss.ValidateState("company", bad); err == nil {
		t.Error("expected error for undeclared field")
	}
}

func TestOperationValid(t *testing.T) {
	for _, op := range []Operation{OpCreate, OpUpdate, OpDelete} {
		if !op.Valid() {
			t.Errorf("%s should be valid", op)
		}
	}
	if Operation("UPSERT").Valid() {
		t.Error("UPSERT should not be valid")
	}
}

package model

import (
	"fmt"
	"slices"
)

// Schema declares the tracked fields of one entity kind, in the fixed order
// used for digest computation (the digest's fields_included).
type Schema struct {
	Fields []string
}

// Has reports whether field is part of the schema.
func (s Schema) Has(field string) bool {
	return slices.Contains(s.Fields, field)
}

// SchemaSet maps entity type names to their schemas. The set of entity kinds
// is owned by the collaborator modules; this core only validates against it.
type SchemaSet map[string]Schema

// Lookup returns the schema for an entity type.
func (ss SchemaSet) Lookup(entityType string) (Schema, error) {
	sc, ok := ss[entityType]
	if !ok {
		return Schema{}, fmt.Errorf("unknown entity type %q", entityType)
	}
	return sc, nil
}

// ValidateState checks that every field of the state is declared by the
// entity's schema. Unknown fields are rejected at write time; historical
// events with retired fields are handled leniently at replay time instead.
func (ss SchemaSet) ValidateState(entityType string, state State) error {
	sc, err := ss.Lookup(entityType)
	if err != nil {
		return err
	}
	for field := range state {
		if !sc.Has(field) {
			return fmt.Errorf("entity %s has no field %q", entityType, field)
		}
	}
	return nil
}

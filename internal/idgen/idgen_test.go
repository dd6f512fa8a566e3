package idgen

import (
	"regexp"
	"testing"
)

func TestGenerate_Shape(t *testing.T) {
	pattern := regexp.MustCompile(`^rpt-[a-zA-Z0-9]+$`)
	id, err := Generate(ReportPrefix)
	if err != nil {
		t.Fatalf("Generate() error: %v", err)
	}
	if !pattern.MatchString(id) {
		t.Errorf("Generate() = %q, does not match expected charset pattern", id)
	}
	if wantLen := len(ReportPrefix) + Length; len(id) != wantLen {
		t.Errorf("Generate() length = %d, want %d (id=%q)", len(id), wantLen, id)
	}
}

func TestGenerate_Uniqueness(t *testing.T) {
	const count = 10_000
	seen := make(map[string]struct{}, count)
	for i := 0; i < count; i++ {
		id, err := Generate(SweepPrefix)
		if err != nil {
			t.Fatalf("Generate() error on iteration %d: %v", i, err)
		}
		if _, dup := seen[id]; dup {
			t.Fatalf("duplicate ID after %d generations: %q", i, id)
		}
		seen[id] = struct{}{}
	}
}

package model

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// ValueType tags a serialized value so replay can reproduce it exactly.
type ValueType string

const (
	TypeString ValueType = "string"
	TypeNumber ValueType = "number"
	TypeBool   ValueType = "bool"
	TypeTime   ValueType = "time"
	TypeNull   ValueType = "null"
	// TypeRecord carries a whole row state as a canonical JSON object.
	// Used by CREATE and DELETE events.
	TypeRecord ValueType = "record"
)

// Value is a (type tag, canonical text) pair. Canonical means there is exactly
// one Raw spelling for each logical value, so hashing and replay are
// deterministic regardless of how the collaborator spelled the input.
type Value struct {
	Type ValueType `json:"type"`
	Raw  string    `json:"value"`
}

// State is a record's full row state: field name to typed value.
type State map[string]Value

// Null is the canonical absent value.
func Null() Value { return Value{Type: TypeNull} }

// String returns a string-typed value.
func String(s string) Value { return Value{Type: TypeString, Raw: s} }

// Bool returns a bool-typed value.
func Bool(b bool) Value {
	return Value{Type: TypeBool, Raw: strconv.FormatBool(b)}
}

// Int returns a number-typed value from an integer.
func Int(n int64) Value {
	return Value{Type: TypeNumber, Raw: strconv.FormatInt(n, 10)}
}

// Float returns a number-typed value from a float. Integral floats normalize
// to the same canonical text as the equivalent integer, so sealing a state
// with 10000 and one with 10000.0 produces identical digests.
func Float(f float64) Value {
	return Value{Type: TypeNumber, Raw: canonNumber(strconv.FormatFloat(f, 'f', -1, 64))}
}

// Number parses a decimal literal and returns its canonical number value.
func Number(lit string) (Value, error) {
	if _, err := strconv.ParseFloat(lit, 64); err != nil {
		return Value{}, fmt.Errorf("not a number: %q", lit)
	}
	if strings.ContainsAny(lit, "eE") {
		f, err := strconv.ParseFloat(lit, 64)
		if err != nil {
			return Value{}, fmt.Errorf("not a number: %q", lit)
		}
		lit = strconv.FormatFloat(f, 'f', -1, 64)
	}
	return Value{Type: TypeNumber, Raw: canonNumber(lit)}, nil
}

// Time returns a time-typed value. Times canonicalize to RFC 3339 in UTC with
// nanosecond precision.
func Time(t time.Time) Value {
	return Value{Type: TypeTime, Raw: t.UTC().Format(time.RFC3339Nano)}
}

// Record packs a whole state into a single value. Keys marshal sorted, so the
// canonical text is deterministic.
func Record(s State) Value {
	raw, _ := json.Marshal(s) // map keys marshal in sorted order
	return Value{Type: TypeRecord, Raw: string(raw)}
}

// RecordState unpacks a record-typed value back into a State.
func (v Value) RecordState() (State, error) {
	if v.Type != TypeRecord {
		return nil, fmt.Errorf("value is %s, not %s", v.Type, TypeRecord)
	}
	var s State
	if err := json.Unmarshal([]byte(v.Raw), &s); err != nil {
		return nil, fmt.Errorf("decode record value: %w", err)
	}
	return s, nil
}

// IsNull reports whether the value is the absent value.
func (v Value) IsNull() bool { return v.Type == TypeNull }

// Equal reports whether two values have the same type tag and canonical text.
func (v Value) Equal(o Value) bool { return v.Type == o.Type && v.Raw == o.Raw }

// Canonicalize validates the type tag and rewrites Raw into canonical form.
// Values arriving over the wire pass through here before they are hashed or
// stored.
func (v Value) Canonicalize() (Value, error) {
	switch v.Type {
	case TypeString:
		return v, nil
	case TypeNumber:
		return Number(v.Raw)
	case TypeBool:
		b, err := strconv.ParseBool(v.Raw)
		if err != nil {
			return Value{}, fmt.Errorf("not a bool: %q", v.Raw)
		}
		return Bool(b), nil
	case TypeTime:
		t, err := time.Parse(time.RFC3339Nano, v.Raw)
		if err != nil {
			return Value{}, fmt.Errorf("not a timestamp: %q", v.Raw)
		}
		return Time(t), nil
	case TypeNull:
		return Null(), nil
	case TypeRecord:
		s, err := v.RecordState()
		if err != nil {
			return Value{}, err
		}
		cs, err := s.Canonicalize()
		if err != nil {
			return Value{}, err
		}
		return Record(cs), nil
	}
	return Value{}, fmt.Errorf("unknown value type %q", v.Type)
}

// Canonicalize canonicalizes every value in the state.
func (s State) Canonicalize() (State, error) {
	out := make(State, len(s))
	for field, v := range s {
		cv, err := v.Canonicalize()
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", field, err)
		}
		out[field] = cv
	}
	return out, nil
}

// Clone returns a shallow copy of the state.
func (s State) Clone() State {
	out := make(State, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// Fields returns the state's field names in sorted order.
func (s State) Fields() []string {
	fields := make([]string, 0, len(s))
	for f := range s {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	return fields
}

// canonNumber normalizes a plain decimal literal: strip the sign off zero,
// strip redundant leading zeros, and strip a trailing fractional part that is
// all zeros. "10000.0", "10000.00" and "010000" all become "10000".
func canonNumber(lit string) string {
	neg := false
	switch {
	case strings.HasPrefix(lit, "-"):
		neg = true
		lit = lit[1:]
	case strings.HasPrefix(lit, "+"):
		lit = lit[1:]
	}

	intPart, fracPart, _ := strings.Cut(lit, ".")
	intPart = strings.TrimLeft(intPart, "0")
	if intPart == "" {
		intPart = "0"
	}
	fracPart = strings.TrimRight(fracPart, "0")

	out := intPart
	if fracPart != "" {
		out += "." + fracPart
	}
	if neg && out != "0" {
		out = "-" + out
	}
	return out
}

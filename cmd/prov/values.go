package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/alfredjeanlab/provenance/internal/model"
)

// parseSetFlag parses one --set argument of the form field=value or
// field=type:value. Without an explicit type the value is a string; the
// recognized types are string, number, bool, time, and null.
//
//	--set name=Acme
//	--set amount=number:10000
//	--set active=bool:true
//	--set signed_at=time:2026-01-15T09:00:00Z
//	--set notes=null
func parseSetFlag(arg string) (field string, value model.Value, err error) {
	field, rest, ok := strings.Cut(arg, "=")
	if !ok || field == "" {
		return "", model.Value{}, fmt.Errorf("invalid --set %q (want field=value)", arg)
	}

	typ, raw, hasType := strings.Cut(rest, ":")
	if !hasType {
		if rest == "null" {
			return field, model.Null(), nil
		}
		return field, model.String(rest), nil
	}

	switch model.ValueType(typ) {
	case model.TypeString:
		return field, model.String(raw), nil
	case model.TypeNumber:
		v, err := model.Number(raw)
		if err != nil {
			return "", model.Value{}, fmt.Errorf("--set %s: %w", field, err)
		}
		return field, v, nil
	case model.TypeBool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return "", model.Value{}, fmt.Errorf("--set %s: not a bool: %q", field, raw)
		}
		return field, model.Bool(b), nil
	case model.TypeTime:
		t, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return "", model.Value{}, fmt.Errorf("--set %s: not a time: %q", field, raw)
		}
		return field, model.Time(t), nil
	case model.TypeNull:
		return field, model.Null(), nil
	default:
		// No recognized type tag; the colon belongs to a string value
		// like a URL.
		return field, model.String(rest), nil
	}
}

// parseState builds a full state from repeated --set arguments.
func parseState(sets []string) (model.State, error) {
	state := make(model.State, len(sets))
	for _, arg := range sets {
		field, value, err := parseSetFlag(arg)
		if err != nil {
			return nil, err
		}
		state[field] = value
	}
	return state, nil
}

// parseRecordArgs parses the common <entity> <id> positional arguments.
func parseRecordArgs(args []string) (string, int64, error) {
	id, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil {
		return "", 0, fmt.Errorf("invalid record id %q", args[1])
	}
	return args[0], id, nil
}

// parseTimeFlag parses an optional RFC 3339 time flag. Empty means zero.
func parseTimeFlag(v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid time %q (want RFC 3339)", v)
	}
	return t, nil
}

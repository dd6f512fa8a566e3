// Package seal computes the cryptographic integrity digest of a record's row
// state. The digest is a pure function of the field order and the canonical
// field values; no salt, no wall clock.
package seal

import (
	"bytes"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"time"

	"github.com/alfredjeanlab/provenance/internal/model"
)

// HexLen is the length of a hex-encoded digest value.
const HexLen = sha256.Size * 2

// Canonical serializes state restricted to fields, in the given order, one
// "field=type:raw" line per field. Fields absent from the state serialize as
// null, so every digest over the same schema covers the same domain.
func Canonical(fields []string, state model.State) []byte {
	var buf bytes.Buffer
	for _, field := range fields {
		v, ok := state[field]
		if !ok {
			v = model.Null()
		}
		buf.WriteString(field)
		buf.WriteByte('=')
		buf.WriteString(string(v.Type))
		buf.WriteByte(':')
		buf.WriteString(v.Raw)
		buf.WriteByte('\n')
	}
	return buf.Bytes()
}

// Compute returns the hex-encoded SHA-256 digest of the canonical
// serialization of state restricted to fields.
func Compute(fields []string, state model.State) string {
	sum := sha256.Sum256(Canonical(fields, state))
	return hex.EncodeToString(sum[:])
}

// Seal builds the append-only digest row for a record's post-mutation state.
func Seal(entityType string, recordID int64, fields []string, state model.State, at time.Time) *model.IntegrityDigest {
	return &model.IntegrityDigest{
		EntityType:     entityType,
		RecordID:       recordID,
		DigestValue:    Compute(fields, state),
		FieldsIncluded: append([]string(nil), fields...),
		ComputedAt:     at,
	}
}

// Verify recomputes the digest over candidate and compares it to digestValue.
// It returns false on any mismatch, including a malformed stored value.
func Verify(fields []string, candidate model.State, digestValue string) bool {
	computed := Compute(fields, candidate)
	if len(digestValue) != HexLen {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(computed), []byte(digestValue)) == 1
}

// Package domain defines the persistent records, status machines, operation
// parameters, and closed error set of the stream escrow and betting engine,
// together with the store, cache, and facility interfaces the services
// consume.
package domain

import (
	"encoding/hex"
	"fmt"
)

// ID is a 32-byte identity. Actor identities (hosts, donors, bettors,
// validators) and derived record identities share this representation.
type ID [32]byte

// ZeroID is the all-zero identity, used as the "unset" sentinel.
var ZeroID ID

// ParseID decodes a 64-character hex string into an ID.
func ParseID(s string) (ID, error) {
	var id ID
	b, err := hex.DecodeString(s)
	if err != nil {
		return ID{}, fmt.Errorf("domain: parse id %q: %w", s, err)
	}
	if len(b) != len(id) {
		return ID{}, fmt.Errorf("domain: parse id: want %d bytes, got %d", len(id), len(b))
	}
	copy(id[:], b)
	return id, nil
}

// String returns the lowercase hex encoding of the identity.
func (id ID) String() string {
	return hex.EncodeToString(id[:])
}

// IsZero reports whether the identity is unset.
func (id ID) IsZero() bool {
	return id == ZeroID
}

// Bytes returns the identity as a byte slice.
func (id ID) Bytes() []byte {
	return id[:]
}

// MarshalText implements encoding.TextMarshaler so IDs serialize as hex in
// JSON payloads and map keys.
func (id ID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (id *ID) UnmarshalText(text []byte) error {
	parsed, err := ParseID(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

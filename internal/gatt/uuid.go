// Package gatt implements the UUID and GATT profile model: value types for
// 128-bit Bluetooth UUIDs and a service -> characteristic ->
// descriptor tree keyed by UUID, populated once when a device is opened.
package gatt

import (
	"encoding/hex"
	"strings"
)

// baseUUIDSuffix is the Bluetooth SIG base UUID, used to expand 16- and
// 32-bit short-form UUIDs: 0000xxxx-0000-1000-8000-00805F9B34FB.
const baseUUIDSuffix = "00001000800000805f9b34fb"

// UUID is a 128-bit Bluetooth identifier. The zero value is invalid.
type UUID struct {
	bytes [16]byte
	valid bool
}

// Parse accepts 4-, 8-, or 36-character input (optionally prefixed "0x" or
// wrapped in braces), expanding short forms against the Bluetooth base UUID.
// Malformed input yields an invalid UUID (IsValid() == false) rather than an
// error, matching §4.B's "rejects malformed input by returning an invalid
// value" contract.
func Parse(s string) UUID {
	s = strings.TrimPrefix(s, "{")
	s = strings.TrimSuffix(s, "}")
	s = strings.TrimPrefix(s, "0x")
	s = strings.TrimPrefix(s, "0X")
	s = strings.ToLower(strings.ReplaceAll(s, "-", ""))

	switch len(s) {
	case 4, 8:
		return fromHex(s + baseUUIDSuffix)
	case 32:
		return fromHex(s)
	default:
		return UUID{}
	}
}

func fromHex(s string) UUID {
	raw, err := hex.DecodeString(s)
	if err != nil || len(raw) != 16 {
		return UUID{}
	}
	var u UUID
	copy(u.bytes[:], raw)
	u.valid = true
	return u
}

// MustParse panics if s does not parse to a valid UUID. Intended for
// package-level well-known UUID constants in known.go.
func MustParse(s string) UUID {
	u := Parse(s)
	if !u.valid {
		panic("gatt: invalid UUID literal " + s)
	}
	return u
}

// IsValid reports whether the UUID was successfully parsed.
func (u UUID) IsValid() bool { return u.valid }

// String renders the canonical lowercase hyphenated form, e.g.
// "0000180d-0000-1000-8000-00805f9b34fb". Invalid UUIDs render as "".
func (u UUID) String() string {
	if !u.valid {
		return ""
	}
	b := u.bytes
	return hex.EncodeToString(b[0:4]) + "-" +
		hex.EncodeToString(b[4:6]) + "-" +
		hex.EncodeToString(b[6:8]) + "-" +
		hex.EncodeToString(b[8:10]) + "-" +
		hex.EncodeToString(b[10:16])
}

// Equal compares two UUIDs by their 128-bit form.
func (u UUID) Equal(o UUID) bool {
	return u.valid == o.valid && u.bytes == o.bytes
}

// Less provides a total order over the 128-bit form, for set/map ordering.
func (u UUID) Less(o UUID) bool {
	for i := range u.bytes {
		if u.bytes[i] != o.bytes[i] {
			return u.bytes[i] < o.bytes[i]
		}
	}
	return false
}

// Set is a small unordered set of UUIDs compared by canonical form.
type Set struct {
	m map[UUID]struct{}
}

// NewSet builds a Set from zero or more UUIDs.
func NewSet(uuids ...UUID) *Set {
	s := &Set{m: make(map[UUID]struct{}, len(uuids))}
	for _, u := range uuids {
		s.Add(u)
	}
	return s
}

// Add inserts a UUID into the set.
func (s *Set) Add(u UUID) { s.m[u] = struct{}{} }

// Contains reports whether u is a member of the set.
func (s *Set) Contains(u UUID) bool {
	_, ok := s.m[u]
	return ok
}

// Len returns the number of members.
func (s *Set) Len() int { return len(s.m) }

package ginternals

import (
	"bytes"
	"crypto/sha1" //nolint:gosec // content addressing, not a security boundary
	"encoding/hex"
	"errors"
)

// OidSize is the length of a SHA-1 object id, in bytes.
const OidSize = 20

// MinAbbrevLen is the shortest prefix accepted as an abbreviated id (§3).
const MinAbbrevLen = 4

var (
	// NullOid is the value of an empty Oid, or one that's all 0s
	NullOid = Oid{}

	// ErrInvalidOid is returned when a given value isn't a valid Oid
	ErrInvalidOid = errors.New("invalid Oid")
)

// Oid represents a git object id: the SHA-1 of the canonical
// serialization "<type> <size>\0<payload>" of the object it names.
type Oid [OidSize]byte

// Bytes returns a byte slice of the Oid
func (o Oid) Bytes() []byte {
	return o[:]
}

// String converts an oid to its 40-char lowercase hex representation
func (o Oid) String() string {
	return hex.EncodeToString(o[:])
}

// IsZero returns whether the oid has the zero value (NullOid)
func (o Oid) IsZero() bool {
	return o == NullOid
}

// Compare returns -1, 0 or 1 depending on whether o sorts before, at,
// or after other. Pack indexes store ids in this order (§3).
func (o Oid) Compare(other Oid) int {
	return bytes.Compare(o[:], other[:])
}

// HasHexPrefix returns whether the id, rendered as hex, starts with
// the given (already lowercase) hex prefix. Used for abbreviated-id
// resolution (§3, §4.D resolve).
func (o Oid) HasHexPrefix(prefix string) bool {
	if len(prefix) > OidSize*2 {
		return false
	}
	full := o.String()
	return full[:len(prefix)] == prefix
}

// NewOidFromContent returns the Oid of the given content.
// The oid is the SHA-1 sum of the content; callers are expected to
// pass the full "<type> <size>\0<payload>" serialization.
func NewOidFromContent(content []byte) Oid {
	return sha1.Sum(content) //nolint:gosec
}

// NewOidFromHex returns an Oid from the provided raw 20-byte id
// (despite the name, this is not hex-decoded — it mirrors the
// teacher's naming for the raw, on-disk/in-pack byte form).
func NewOidFromHex(id []byte) (Oid, error) {
	if len(id) < OidSize {
		return NullOid, ErrInvalidOid
	}

	var oid Oid
	copy(oid[:], id)
	return oid, nil
}

// NewOidFromChars creates an Oid from the given ASCII hex char bytes
// For the SHA {'9', 'b', '9', '1', 'd', 'a', ...}
// the oid will be {0x9b, 0x91, 0xda, ...}
func NewOidFromChars(id []byte) (Oid, error) {
	return NewOidFromStr(string(id))
}

// NewOidFromStr creates an Oid from the given 40-char hex string
// For the SHA 9b91da06e69613397b38e0808e0ba5ee6983251b
// the oid will be {0x9b, 0x91, 0xda, ...}
func NewOidFromStr(id string) (Oid, error) {
	b, err := hex.DecodeString(id)
	if err != nil {
		return NullOid, ErrInvalidOid
	}

	if len(b) != OidSize {
		return NullOid, ErrInvalidOid
	}

	var oid Oid
	copy(oid[:], b)

	return oid, nil
}

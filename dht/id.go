package dht

import (
	"bytes"
	"crypto/rand"
	"crypto/sha1"
	"encoding/hex"
	"math/bits"

	"golang.org/x/xerrors"
)

// IDLength is the size of a node identifier in bytes.
const IDLength = 20

// IDBits is the size of the identifier space, and the number of buckets in a
// routing table.
const IDBits = IDLength * 8

// NodeID is a 160-bit identifier, rendered as 40 lowercase hex characters on
// the wire. Key hashes share the same space: a key is addressed by the SHA-1
// of its application-level name.
type NodeID [IDLength]byte

// NewRandomNodeID draws an identifier uniformly at random.
func NewRandomNodeID() NodeID {
	var id NodeID
	_, err := rand.Read(id[:])
	if err != nil {
		panic(err)
	}
	return id
}

// NodeIDFromHex parses a wire-form identifier.
func NodeIDFromHex(s string) (NodeID, error) {
	var id NodeID

	buf, err := hex.DecodeString(s)
	if err != nil {
		return id, xerrors.Errorf("failed to decode node ID %q: %v", s, err)
	}
	if len(buf) != IDLength {
		return id, xerrors.Errorf("wrong node ID length: %d bytes", len(buf))
	}

	copy(id[:], buf)
	return id, nil
}

// HashKey maps an application key into the identifier space.
func HashKey(key string) NodeID {
	return NodeID(sha1.Sum([]byte(key)))
}

// Hex returns the wire form of the identifier.
func (id NodeID) Hex() string {
	return hex.EncodeToString(id[:])
}

// Equal reports whether two identifiers match.
func (id NodeID) Equal(other NodeID) bool {
	return id == other
}

// Distance returns the XOR distance between two identifiers.
func (id NodeID) Distance(other NodeID) Distance {
	var d Distance
	for i := range id {
		d[i] = id[i] ^ other[i]
	}
	return d
}

// Distance is an XOR distance, compared as a big-endian unsigned integer.
type Distance [IDLength]byte

// Less reports whether d < other.
func (d Distance) Less(other Distance) bool {
	return bytes.Compare(d[:], other[:]) < 0
}

// IsZero reports whether the distance is zero, i.e. the identifiers match.
func (d Distance) IsZero() bool {
	return d == Distance{}
}

// BucketIndex returns the position of the most-significant set bit, bit 0
// being the most significant. The zero distance maps to the last bucket, the
// same bucket as a distance whose only set bit is the least significant one.
func (d Distance) BucketIndex() int {
	for i, b := range d {
		if b != 0 {
			return i*8 + bits.LeadingZeros8(b)
		}
	}
	return IDBits - 1
}

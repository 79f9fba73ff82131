package core

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"hash"
	"math"
)

// Hash represents a cryptographic hash
type Hash string

// NewHash creates a new hash from data
func NewHash(data []byte) Hash {
	sum := sha256.Sum256(data)
	return Hash(hex.EncodeToString(sum[:]))
}

// String returns the string representation
func (h Hash) String() string {
	return string(h)
}

// IsEmpty checks if the hash is empty
func (h Hash) IsEmpty() bool {
	return h == ""
}

// Equals checks if two hashes are equal
func (h Hash) Equals(other Hash) bool {
	return h == other
}

// Hasher accumulates strings and float columns into a single sha256 digest.
// Floats are hashed by their IEEE-754 bits so NaN placement is part of the digest.
type Hasher struct {
	h   hash.Hash
	buf [8]byte
}

// NewHasher creates an empty Hasher
func NewHasher() *Hasher {
	return &Hasher{h: sha256.New()}
}

// WriteString adds a length-prefixed string
func (x *Hasher) WriteString(s string) {
	binary.LittleEndian.PutUint64(x.buf[:], uint64(len(s)))
	x.h.Write(x.buf[:])
	x.h.Write([]byte(s))
}

// WriteFloats adds a length-prefixed float column
func (x *Hasher) WriteFloats(values []float64) {
	binary.LittleEndian.PutUint64(x.buf[:], uint64(len(values)))
	x.h.Write(x.buf[:])
	for _, v := range values {
		bits := math.Float64bits(v)
		if math.IsNaN(v) {
			bits = math.Float64bits(math.NaN())
		}
		binary.LittleEndian.PutUint64(x.buf[:], bits)
		x.h.Write(x.buf[:])
	}
}

// Sum returns the digest of everything written so far
func (x *Hasher) Sum() Hash {
	return Hash(hex.EncodeToString(x.h.Sum(nil)))
}

package core

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
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

// Short returns the first 12 hex characters, enough to tell datasets apart in logs
func (h Hash) Short() string {
	if len(h) <= 12 {
		return string(h)
	}
	return string(h[:12])
}

// Hasher accumulates float and complex values into a sha256 digest using their exact bit patterns.
type Hasher struct {
	buf []byte
}

// NewHasher creates an empty hasher
func NewHasher() *Hasher {
	return &Hasher{buf: make([]byte, 0, 1024)}
}

// Float appends a float64
func (h *Hasher) Float(v float64) *Hasher {
	h.buf = binary.LittleEndian.AppendUint64(h.buf, math.Float64bits(v))
	return h
}

// Complex appends both parts of a complex128
func (h *Hasher) Complex(v complex128) *Hasher {
	return h.Float(real(v)).Float(imag(v))
}

// Int appends an int
func (h *Hasher) Int(v int) *Hasher {
	h.buf = binary.LittleEndian.AppendUint64(h.buf, uint64(v))
	return h
}

// Sum returns the digest of everything appended so far
func (h *Hasher) Sum() Hash {
	return NewHash(h.buf)
}

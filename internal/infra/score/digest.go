package score

import (
	"crypto/sha256"
	"encoding/binary"
	"math"
)

// Digest maps the SHA-256 of the length-prefixed pair onto [0,1).
type Digest struct{}

func (Digest) Name() string { return "digest" }

func (Digest) Score(a, b []byte) (float64, error) {
	h := sha256.New()
	var prefix [8]byte
	binary.BigEndian.PutUint64(prefix[:], uint64(len(a)))
	h.Write(prefix[:])
	h.Write(a)
	binary.BigEndian.PutUint64(prefix[:], uint64(len(b)))
	h.Write(prefix[:])
	h.Write(b)
	sum := h.Sum(nil)
	// top 53 bits keep the division exact and strictly below 1
	v := binary.BigEndian.Uint64(sum[:8]) >> 11
	return float64(v) / math.Exp2(53), nil
}

package crypto

import (
	"crypto/sha256"
	"fmt"
	"hash"
	"strings"

	"receipts/internal/domain"

	"golang.org/x/crypto/sha3"
)

// NewHash returns a hash constructor for a receipt hash algorithm name.
func NewHash(alg string) (func() hash.Hash, error) {
	switch normalizeHashAlg(alg) {
	case domain.HashAlgSHA256:
		return sha256.New, nil
	case domain.HashAlgSHA3256:
		return sha3.New256, nil
	default:
		return nil, fmt.Errorf("%w: hash %q", domain.ErrUnsupportedAlg, alg)
	}
}

// Digest hashes data with alg and returns the raw digest.
func Digest(alg string, data []byte) ([]byte, error) {
	newHash, err := NewHash(alg)
	if err != nil {
		return nil, err
	}
	h := newHash()
	h.Write(data)
	return h.Sum(nil), nil
}

// NormalizeHashAlg maps accepted spellings onto the canonical names, or
// returns "" for unknown algorithms.
func NormalizeHashAlg(alg string) string {
	return normalizeHashAlg(alg)
}

func normalizeHashAlg(alg string) string {
	switch strings.ToLower(strings.TrimSpace(alg)) {
	case "sha256", "sha-256":
		return domain.HashAlgSHA256
	case "sha3-256", "sha3_256", "sha3":
		return domain.HashAlgSHA3256
	default:
		return ""
	}
}

func sha256Bytes(input []byte) []byte {
	sum := sha256.Sum256(input)
	return sum[:]
}

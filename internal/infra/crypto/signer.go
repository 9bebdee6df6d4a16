package crypto

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"

	"receipts/internal/domain"

	"github.com/cloudflare/circl/sign"
	"github.com/cloudflare/circl/sign/mldsa/mldsa65"
)

var (
	errEmptyDigest    = errors.New("digest is empty")
	errInvalidKeySize = errors.New("invalid private key length")
)

// NormalizeSigAlg maps accepted spellings onto the canonical names, or
// returns "" for unknown algorithms.
func NormalizeSigAlg(alg string) string {
	switch strings.ToLower(strings.TrimSpace(alg)) {
	case "ed25519":
		return domain.SigAlgEd25519
	case "ml-dsa-65", "mldsa65", "mldsa-65", "dilithium3":
		return domain.SigAlgMLDSA65
	default:
		return ""
	}
}

// DeriveKID returns the short key identifier used when none is configured.
func DeriveKID(publicKey []byte) string {
	return hex.EncodeToString(sha256Bytes(publicKey))[:16]
}

type Ed25519Signer struct {
	kid string
	key ed25519.PrivateKey
}

func NewEd25519Signer(kid string, key ed25519.PrivateKey) (*Ed25519Signer, error) {
	if len(key) != ed25519.PrivateKeySize {
		return nil, domain.NewCryptoError("ed25519 signer", errInvalidKeySize)
	}
	key = append(ed25519.PrivateKey(nil), key...)
	if kid == "" {
		kid = DeriveKID(key.Public().(ed25519.PublicKey))
	}
	return &Ed25519Signer{kid: kid, key: key}, nil
}

func (s *Ed25519Signer) Alg() string { return domain.SigAlgEd25519 }
func (s *Ed25519Signer) KID() string { return s.kid }

func (s *Ed25519Signer) PublicKey() []byte {
	return append([]byte(nil), s.key.Public().(ed25519.PublicKey)...)
}

func (s *Ed25519Signer) Sign(digest []byte) ([]byte, error) {
	if len(digest) == 0 {
		return nil, domain.NewCryptoError("ed25519 sign", errEmptyDigest)
	}
	return ed25519.Sign(s.key, digest), nil
}

// MLDSASigner signs with ML-DSA-65 (FIPS 204, formerly Dilithium3).
type MLDSASigner struct {
	kid string
	sk  sign.PrivateKey
	pub []byte
}

func mldsaScheme() sign.Scheme {
	return mldsa65.Scheme()
}

func NewMLDSASigner(kid string, sk sign.PrivateKey) (*MLDSASigner, error) {
	if sk == nil {
		return nil, domain.NewCryptoError("ml-dsa signer", errInvalidKeySize)
	}
	pub, err := sk.Public().(sign.PublicKey).MarshalBinary()
	if err != nil {
		return nil, domain.NewCryptoError("ml-dsa public key", err)
	}
	if kid == "" {
		kid = DeriveKID(pub)
	}
	return &MLDSASigner{kid: kid, sk: sk, pub: pub}, nil
}

func (s *MLDSASigner) Alg() string { return domain.SigAlgMLDSA65 }
func (s *MLDSASigner) KID() string { return s.kid }

func (s *MLDSASigner) PublicKey() []byte {
	return append([]byte(nil), s.pub...)
}

func (s *MLDSASigner) Sign(digest []byte) ([]byte, error) {
	if len(digest) == 0 {
		return nil, domain.NewCryptoError("ml-dsa sign", errEmptyDigest)
	}
	return mldsaScheme().Sign(s.sk, digest, nil), nil
}

// SeedSize reports the seed length accepted by SignerFromSeed for alg.
func SeedSize(alg string) (int, error) {
	switch NormalizeSigAlg(alg) {
	case domain.SigAlgEd25519:
		return ed25519.SeedSize, nil
	case domain.SigAlgMLDSA65:
		return mldsaScheme().SeedSize(), nil
	default:
		return 0, fmt.Errorf("%w: signature %q", domain.ErrUnsupportedAlg, alg)
	}
}

// SignerFromSeed deterministically expands seed into a signer.
func SignerFromSeed(alg, kid string, seed []byte) (domain.Signer, error) {
	size, err := SeedSize(alg)
	if err != nil {
		return nil, err
	}
	if len(seed) != size {
		return nil, domain.NewCryptoError("signer seed", fmt.Errorf("expected %d bytes, got %d", size, len(seed)))
	}
	if NormalizeSigAlg(alg) == domain.SigAlgEd25519 {
		return newEd25519(kid, ed25519.NewKeyFromSeed(seed))
	}
	_, sk := mldsaScheme().DeriveKey(seed)
	return newMLDSA(kid, sk)
}

// newEd25519 and newMLDSA keep a failed constructor from yielding a
// non-nil interface.
func newEd25519(kid string, key ed25519.PrivateKey) (domain.Signer, error) {
	s, err := NewEd25519Signer(kid, key)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func newMLDSA(kid string, sk sign.PrivateKey) (domain.Signer, error) {
	s, err := NewMLDSASigner(kid, sk)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// ParsePrivateKey accepts either a seed or a fully expanded private key.
func ParsePrivateKey(alg, kid string, raw []byte) (domain.Signer, error) {
	switch NormalizeSigAlg(alg) {
	case domain.SigAlgEd25519:
		switch len(raw) {
		case ed25519.SeedSize:
			return SignerFromSeed(alg, kid, raw)
		case ed25519.PrivateKeySize:
			return newEd25519(kid, ed25519.PrivateKey(raw))
		}
		return nil, domain.NewCryptoError("ed25519 private key", errInvalidKeySize)
	case domain.SigAlgMLDSA65:
		scheme := mldsaScheme()
		switch len(raw) {
		case scheme.SeedSize():
			return SignerFromSeed(alg, kid, raw)
		case scheme.PrivateKeySize():
			sk, err := scheme.UnmarshalBinaryPrivateKey(raw)
			if err != nil {
				return nil, domain.NewCryptoError("ml-dsa private key", err)
			}
			return newMLDSA(kid, sk)
		}
		return nil, domain.NewCryptoError("ml-dsa private key", errInvalidKeySize)
	default:
		return nil, fmt.Errorf("%w: signature %q", domain.ErrUnsupportedAlg, alg)
	}
}

// GenerateSigner creates a fresh key and returns the signer with its seed.
func GenerateSigner(alg, kid string, random io.Reader) (domain.Signer, []byte, error) {
	if random == nil {
		random = rand.Reader
	}
	size, err := SeedSize(alg)
	if err != nil {
		return nil, nil, err
	}
	seed := make([]byte, size)
	if _, err := io.ReadFull(random, seed); err != nil {
		return nil, nil, domain.NewCryptoError("generate seed", err)
	}
	signer, err := SignerFromSeed(alg, kid, seed)
	if err != nil {
		return nil, nil, err
	}
	return signer, seed, nil
}

// VerifySignature checks sig over digest with the public key for alg.
func VerifySignature(alg string, publicKey, digest, sig []byte) error {
	switch NormalizeSigAlg(alg) {
	case domain.SigAlgEd25519:
		if len(publicKey) != ed25519.PublicKeySize {
			return fmt.Errorf("%w: invalid ed25519 public key length %d", domain.ErrSignatureInvalid, len(publicKey))
		}
		if len(sig) != ed25519.SignatureSize {
			return fmt.Errorf("%w: invalid ed25519 signature length %d", domain.ErrSignatureInvalid, len(sig))
		}
		if !ed25519.Verify(publicKey, digest, sig) {
			return domain.ErrSignatureInvalid
		}
		return nil
	case domain.SigAlgMLDSA65:
		scheme := mldsaScheme()
		pk, err := scheme.UnmarshalBinaryPublicKey(publicKey)
		if err != nil {
			return fmt.Errorf("%w: %v", domain.ErrSignatureInvalid, err)
		}
		if len(sig) != scheme.SignatureSize() {
			return fmt.Errorf("%w: invalid ml-dsa signature length %d", domain.ErrSignatureInvalid, len(sig))
		}
		if !scheme.Verify(pk, digest, sig, nil) {
			return domain.ErrSignatureInvalid
		}
		return nil
	default:
		return fmt.Errorf("%w: signature %q", domain.ErrUnsupportedAlg, alg)
	}
}

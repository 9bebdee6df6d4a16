package crypto

import (
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
	"io"

	"receipts/internal/domain"

	"github.com/awnumar/memguard"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
	"golang.org/x/crypto/sha3"
)

const (
	DefaultSealInfo = "receipts/seal/v1"
	SaltSize        = 32
	MinSecretSize   = 16
)

var errSecretTooShort = fmt.Errorf("seal secret must be at least %d bytes", MinSecretSize)

type SealerConfig struct {
	// Secret is moved into locked memory and wiped from the caller's slice.
	Secret []byte
	Info   string
	// KeySize defaults to the ChaCha20-Poly1305 key size.
	KeySize int
	Random  io.Reader
}

// Sealer encrypts receipt payloads with a per-receipt key derived by
// HKDF-SHA3-256 from a long-lived secret and a random salt.
type Sealer struct {
	secret  *memguard.Enclave
	info    []byte
	keySize int
	random  io.Reader
}

func NewSealer(cfg SealerConfig) (*Sealer, error) {
	if len(cfg.Secret) < MinSecretSize {
		memguard.WipeBytes(cfg.Secret)
		return nil, domain.NewCryptoError("seal secret", errSecretTooShort)
	}
	enclave := memguard.NewEnclave(cfg.Secret)
	if enclave == nil {
		return nil, domain.NewCryptoError("seal secret", errors.New("locked memory unavailable"))
	}
	return newSealer(enclave, cfg), nil
}

// NewEphemeralSealer seals with a random secret that only lives as long as
// the process.
func NewEphemeralSealer() (*Sealer, error) {
	enclave := memguard.NewEnclaveRandom(32)
	if enclave == nil {
		return nil, domain.NewCryptoError("seal secret", errors.New("locked memory unavailable"))
	}
	return newSealer(enclave, SealerConfig{}), nil
}

func newSealer(enclave *memguard.Enclave, cfg SealerConfig) *Sealer {
	info := cfg.Info
	if info == "" {
		info = DefaultSealInfo
	}
	keySize := cfg.KeySize
	if keySize == 0 {
		keySize = chacha20poly1305.KeySize
	}
	random := cfg.Random
	if random == nil {
		random = rand.Reader
	}
	return &Sealer{
		secret:  enclave,
		info:    []byte(info),
		keySize: keySize,
		random:  random,
	}
}

// Seal encrypts plaintext bound to aad.
func (s *Sealer) Seal(plaintext, aad []byte) (domain.SealedPayload, error) {
	salt := make([]byte, SaltSize)
	if _, err := io.ReadFull(s.random, salt); err != nil {
		return domain.SealedPayload{}, domain.NewCryptoError("seal salt", err)
	}
	aead, err := s.aead(salt)
	if err != nil {
		return domain.SealedPayload{}, err
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(s.random, nonce); err != nil {
		return domain.SealedPayload{}, domain.NewCryptoError("seal nonce", err)
	}
	return domain.SealedPayload{
		Salt:       salt,
		Nonce:      nonce,
		Ciphertext: aead.Seal(nil, nonce, plaintext, aad),
	}, nil
}

// Open authenticates and decrypts a sealed payload.
func (s *Sealer) Open(sealed domain.SealedPayload, aad []byte) ([]byte, error) {
	if len(sealed.Salt) == 0 {
		return nil, domain.NewCryptoError("open", errors.New("salt is required"))
	}
	aead, err := s.aead(sealed.Salt)
	if err != nil {
		return nil, err
	}
	if len(sealed.Nonce) != aead.NonceSize() {
		return nil, domain.NewCryptoError("open", fmt.Errorf("invalid nonce length %d", len(sealed.Nonce)))
	}
	plaintext, err := aead.Open(nil, sealed.Nonce, sealed.Ciphertext, aad)
	if err != nil {
		return nil, domain.NewCryptoError("open", err)
	}
	return plaintext, nil
}

func (s *Sealer) aead(salt []byte) (cipher.AEAD, error) {
	key, err := s.deriveKey(salt)
	if err != nil {
		return nil, err
	}
	defer memguard.WipeBytes(key)
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, domain.NewCryptoError("aead key", err)
	}
	return aead, nil
}

func (s *Sealer) deriveKey(salt []byte) ([]byte, error) {
	if s == nil || s.secret == nil {
		return nil, domain.NewCryptoError("derive key", domain.ErrSealUnavailable)
	}
	if s.keySize <= 0 {
		return nil, domain.NewCryptoError("derive key", fmt.Errorf("invalid key size %d", s.keySize))
	}
	secret, err := s.secret.Open()
	if err != nil {
		return nil, domain.NewCryptoError("derive key", err)
	}
	defer secret.Destroy()

	kdf := hkdf.New(sha3.New256, secret.Bytes(), salt, s.info)
	key := make([]byte, s.keySize)
	if _, err := io.ReadFull(kdf, key); err != nil {
		return nil, domain.NewCryptoError("derive key", err)
	}
	return key, nil
}

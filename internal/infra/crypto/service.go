package crypto

import (
	"encoding/hex"
	"time"

	"receipts/internal/domain"
)

type Service struct{}

func NewService() *Service {
	return &Service{}
}

// CanonicalizeReceipt serializes the hashed view of r.
func (s *Service) CanonicalizeReceipt(r domain.Receipt) ([]byte, error) {
	canonical, err := CanonicalizeAny(r.HashedView())
	if err != nil {
		return nil, domain.NewSerializationError("canonicalize receipt", err)
	}
	return canonical, nil
}

// HashReceipt returns the canonical hashed view and its digest under
// r.HashAlg.
func (s *Service) HashReceipt(r domain.Receipt) ([]byte, []byte, error) {
	canonical, err := s.CanonicalizeReceipt(r)
	if err != nil {
		return nil, nil, err
	}
	digest, err := Digest(r.HashAlg, canonical)
	if err != nil {
		return nil, nil, err
	}
	return canonical, digest, nil
}

// Digest hashes data with alg.
func (s *Service) Digest(alg string, data []byte) ([]byte, error) {
	return Digest(alg, data)
}

func (s *Service) CanonicalizeCheckpoint(cp domain.Checkpoint) ([]byte, error) {
	payload := checkpointPayload{
		Size:     cp.Size,
		RootHash: hex.EncodeToString(cp.RootHash),
		IssuedAt: cp.IssuedAt.UTC().Format(time.RFC3339),
		KID:      cp.KID,
		SigAlg:   cp.SigAlg,
	}
	return CanonicalizeAny(payload)
}

// SignCheckpoint fills KID, SigAlg and Signature on cp.
func (s *Service) SignCheckpoint(cp domain.Checkpoint, signer domain.Signer) (domain.Checkpoint, error) {
	cp.KID = signer.KID()
	cp.SigAlg = signer.Alg()
	canonical, err := s.CanonicalizeCheckpoint(cp)
	if err != nil {
		return domain.Checkpoint{}, domain.NewSerializationError("canonicalize checkpoint", err)
	}
	sig, err := signer.Sign(sha256Bytes(canonical))
	if err != nil {
		return domain.Checkpoint{}, domain.NewCryptoError("sign checkpoint", err)
	}
	cp.Signature = sig
	return cp, nil
}

func (s *Service) VerifyCheckpoint(cp domain.Checkpoint, publicKey []byte) error {
	canonical, err := s.CanonicalizeCheckpoint(cp)
	if err != nil {
		return err
	}
	return VerifySignature(cp.SigAlg, publicKey, sha256Bytes(canonical), cp.Signature)
}

// VerifySignature checks sig over digest for the given algorithm.
func (s *Service) VerifySignature(alg string, publicKey, digest, sig []byte) error {
	return VerifySignature(alg, publicKey, digest, sig)
}

type checkpointPayload struct {
	Size     int64  `json:"size"`
	RootHash string `json:"root_hash"`
	IssuedAt string `json:"issued_at"`
	KID      string `json:"kid,omitempty"`
	SigAlg   string `json:"sig_alg,omitempty"`
}

package usecase

import (
	"context"
	"time"

	"receipts/internal/domain"
)

// ReceiptLog is the append-only source of truth.
type ReceiptLog interface {
	Append(ctx context.Context, line []byte) (int64, error)
	Scan(ctx context.Context, fn func(domain.LogEntry) error) (domain.LogStats, error)
	Find(ctx context.Context, hash string) (domain.Receipt, error)
	List(ctx context.Context, offset, limit int) ([]domain.Receipt, int, error)
}

// ReceiptIndex mirrors the log for lookups. Writes are best effort.
type ReceiptIndex interface {
	Index(ctx context.Context, receipt domain.Receipt, offset int64, raw []byte) error
	GetByHash(ctx context.Context, hash string) (domain.Receipt, error)
	List(ctx context.Context, offset, limit int) ([]domain.Receipt, int, error)
}

type CryptoService interface {
	HashReceipt(r domain.Receipt) (canonical []byte, digest []byte, err error)
	Digest(alg string, data []byte) ([]byte, error)
	VerifySignature(alg string, publicKey, digest, sig []byte) error
	SignCheckpoint(cp domain.Checkpoint, signer domain.Signer) (domain.Checkpoint, error)
}

type Sealer interface {
	Seal(plaintext, aad []byte) (domain.SealedPayload, error)
	Open(sealed domain.SealedPayload, aad []byte) ([]byte, error)
}

type ScorerRegistry func(name string) (domain.Scorer, error)

type MerkleService interface {
	LeafHash(data []byte) []byte
	Root(leaves [][]byte) ([]byte, error)
	InclusionProof(leaves [][]byte, index int64) ([][]byte, error)
	ConsistencyProof(leaves [][]byte, from, to int64) ([][]byte, error)
}

type PolicyEngine interface {
	Evaluate(ctx context.Context, input domain.PolicyInput) (domain.PolicyEvaluation, error)
}

// Recorder receives operational counters. A nil Recorder is ignored.
type Recorder interface {
	ReceiptGenerated(status string, took time.Duration)
	GenerateFailed(kind string)
	ReceiptVerified(valid bool)
	IndexFailed()
}

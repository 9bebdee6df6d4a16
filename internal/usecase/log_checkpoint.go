package usecase

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"strings"
	"time"

	"receipts/internal/domain"
)

// LogCheckpoint commits to the receipt log with an RFC 6962 Merkle tree.
// Each leaf is the hash of one log line as written.
type LogCheckpoint struct {
	Log    ReceiptLog
	Crypto CryptoService
	Merkle MerkleService
	// Signer is optional; unsigned checkpoints carry no KID.
	Signer domain.Signer
	Clock  func() time.Time
}

type logLeaves struct {
	leaves [][]byte
	hashes []string
}

func (uc *LogCheckpoint) load(ctx context.Context) (logLeaves, error) {
	if uc.Log == nil || uc.Merkle == nil {
		return logLeaves{}, errors.New("log checkpoint: missing dependency")
	}
	var out logLeaves
	_, err := uc.Log.Scan(ctx, func(e domain.LogEntry) error {
		out.leaves = append(out.leaves, uc.Merkle.LeafHash(e.Raw))
		out.hashes = append(out.hashes, e.Receipt.Hash)
		return nil
	})
	if err != nil {
		return logLeaves{}, err
	}
	return out, nil
}

func (uc *LogCheckpoint) root(leaves [][]byte) ([]byte, error) {
	if len(leaves) == 0 {
		sum := sha256.Sum256(nil)
		return sum[:], nil
	}
	return uc.Merkle.Root(leaves)
}

// Checkpoint returns the current tree head, signed when a signer is set.
func (uc *LogCheckpoint) Checkpoint(ctx context.Context) (domain.Checkpoint, error) {
	l, err := uc.load(ctx)
	if err != nil {
		return domain.Checkpoint{}, err
	}
	root, err := uc.root(l.leaves)
	if err != nil {
		return domain.Checkpoint{}, err
	}
	cp := domain.Checkpoint{
		Size:     int64(len(l.leaves)),
		RootHash: root,
		IssuedAt: uc.now().UTC().Truncate(time.Second),
	}
	if uc.Signer == nil || uc.Crypto == nil {
		return cp, nil
	}
	return uc.Crypto.SignCheckpoint(cp, uc.Signer)
}

// InclusionProof proves that the first receipt with hash is in the current
// tree.
func (uc *LogCheckpoint) InclusionProof(ctx context.Context, hash string) (domain.InclusionProof, error) {
	l, err := uc.load(ctx)
	if err != nil {
		return domain.InclusionProof{}, err
	}
	index := -1
	for i, h := range l.hashes {
		if strings.EqualFold(h, hash) {
			index = i
			break
		}
	}
	if index < 0 {
		return domain.InclusionProof{}, domain.ErrNotFound
	}
	path, err := uc.Merkle.InclusionProof(l.leaves, int64(index))
	if err != nil {
		return domain.InclusionProof{}, err
	}
	root, err := uc.root(l.leaves)
	if err != nil {
		return domain.InclusionProof{}, err
	}
	return domain.InclusionProof{
		Hash:      l.hashes[index],
		LeafIndex: int64(index),
		TreeSize:  int64(len(l.leaves)),
		Path:      path,
		RootHash:  root,
	}, nil
}

// ConsistencyProof proves that the tree of size from is a prefix of the
// tree of size to. A zero to means the current size.
func (uc *LogCheckpoint) ConsistencyProof(ctx context.Context, from, to int64) (domain.ConsistencyProof, error) {
	l, err := uc.load(ctx)
	if err != nil {
		return domain.ConsistencyProof{}, err
	}
	size := int64(len(l.leaves))
	if to == 0 {
		to = size
	}
	if from <= 0 || from > to || to > size {
		return domain.ConsistencyProof{}, fmt.Errorf("%w: consistency %d..%d over %d receipts", domain.ErrInvalidReceipt, from, to, size)
	}
	path, err := uc.Merkle.ConsistencyProof(l.leaves, from, to)
	if err != nil {
		return domain.ConsistencyProof{}, err
	}
	return domain.ConsistencyProof{FromSize: from, ToSize: to, Path: path}, nil
}

func (uc *LogCheckpoint) now() time.Time {
	if uc.Clock != nil {
		return uc.Clock()
	}
	return time.Now()
}

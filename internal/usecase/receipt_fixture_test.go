package usecase

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"receipts/internal/domain"
	"receipts/internal/infra/crypto"
	"receipts/internal/infra/merkle"
	"receipts/internal/infra/policyopa"
	"receipts/internal/infra/receiptlog"
	"receipts/internal/infra/score"
)

var fixedNow = time.Date(2026, 3, 14, 15, 9, 26, 535000000, time.UTC)

type fixture struct {
	path   string
	log    *receiptlog.Store
	crypto *crypto.Service
	signer domain.Signer
	sealer *crypto.Sealer
	policy *policyopa.Engine
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	path := filepath.Join(t.TempDir(), "receipts.jsonl")
	store, err := receiptlog.Open(path, receiptlog.Options{})
	if err != nil {
		t.Fatalf("open log: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	signer, _, err := crypto.GenerateSigner(domain.SigAlgEd25519, "test-key", nil)
	if err != nil {
		t.Fatalf("generate signer: %v", err)
	}
	sealer, err := crypto.NewSealer(crypto.SealerConfig{Secret: bytes.Repeat([]byte{0x42}, 32)})
	if err != nil {
		t.Fatalf("new sealer: %v", err)
	}
	engine, err := policyopa.NewDefaultEngine(context.Background())
	if err != nil {
		t.Fatalf("policy engine: %v", err)
	}
	return &fixture{
		path:   path,
		log:    store,
		crypto: crypto.NewService(),
		signer: signer,
		sealer: sealer,
		policy: engine,
	}
}

func (f *fixture) generator() *GenerateReceipt {
	ids := 0
	return &GenerateReceipt{
		Log:           f.log,
		Crypto:        f.crypto,
		Signer:        f.signer,
		Sealer:        f.sealer,
		Scorers:       score.ByName,
		DefaultScorer: score.DefaultName,
		HashAlg:       domain.HashAlgSHA3256,
		SealThreshold: 0,
		Clock:         func() time.Time { return fixedNow },
		NewID: func() string {
			ids++
			return fmt.Sprintf("receipt-%d", ids)
		},
	}
}

func (f *fixture) verifier() *VerifyReceipt {
	return &VerifyReceipt{
		Crypto: f.crypto,
		Policy: f.policy,
		Key: &domain.PublicKey{
			Alg:       f.signer.Alg(),
			KID:       f.signer.KID(),
			PublicKey: f.signer.PublicKey(),
		},
	}
}

func (f *fixture) checkpoints() *LogCheckpoint {
	return &LogCheckpoint{
		Log:    f.log,
		Crypto: f.crypto,
		Merkle: merkle.Service{},
		Signer: f.signer,
		Clock:  func() time.Time { return fixedNow },
	}
}

func readLogLines(t *testing.T, path string) [][]byte {
	t.Helper()
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		t.Fatalf("open log: %v", err)
	}
	defer file.Close()
	var lines [][]byte
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		lines = append(lines, append([]byte(nil), scanner.Bytes()...))
	}
	if err := scanner.Err(); err != nil {
		t.Fatalf("scan log: %v", err)
	}
	return lines
}

func decodeLine(t *testing.T, line []byte) domain.Receipt {
	t.Helper()
	var r domain.Receipt
	if err := json.Unmarshal(line, &r); err != nil {
		t.Fatalf("decode line %q: %v", line, err)
	}
	return r
}

type recorder struct {
	generated map[string]int
	failed    map[string]int
	verified  map[bool]int
	index     int
}

func newRecorder() *recorder {
	return &recorder{generated: map[string]int{}, failed: map[string]int{}, verified: map[bool]int{}}
}

func (r *recorder) ReceiptGenerated(status string, took time.Duration) { r.generated[status]++ }
func (r *recorder) GenerateFailed(kind string)                         { r.failed[kind]++ }
func (r *recorder) ReceiptVerified(valid bool)                         { r.verified[valid]++ }
func (r *recorder) IndexFailed()                                       { r.index++ }

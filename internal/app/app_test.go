package app

import (
	"context"
	"encoding/hex"
	"path/filepath"
	"strings"
	"testing"

	"receipts/internal/config"
	"receipts/internal/domain"
	"receipts/internal/usecase"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	cfg := config.Defaults()
	cfg.ReceiptLogPath = filepath.Join(t.TempDir(), "receipts.jsonl")
	cfg.SigningPrivateKeySeedHex = strings.Repeat("07", 32)
	cfg.SigningKID = "app-test"
	cfg.SealSecretHex = strings.Repeat("ab", 32)
	cfg.SealThreshold = 0
	return cfg
}

func TestNew_FullPipeline(t *testing.T) {
	ctx := context.Background()
	a, err := New(ctx, testConfig(t), nil)
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	defer a.Close()

	if a.SigningKey == nil || a.SigningKey.KID != "app-test" {
		t.Fatalf("unexpected signing key %+v", a.SigningKey)
	}
	r, err := a.Generate.Execute(ctx, usecase.GenerateReceiptRequest{SubjectA: "Alice", SubjectB: "Bob", Consent: true})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if r.HashAlg != domain.HashAlgSHA3256 || !r.Signed() || !r.Sealed() {
		t.Fatalf("unexpected receipt %+v", r)
	}
	result, err := a.Verify.Execute(ctx, usecase.VerifyReceiptRequest{Receipt: r})
	if err != nil || !result.Valid {
		t.Fatalf("verify: %+v %v", result, err)
	}
	view, err := a.Open.Execute(r)
	if err != nil || view.ID != r.ID {
		t.Fatalf("open: %+v %v", view, err)
	}
	cp, err := a.Checkpoint.Checkpoint(ctx)
	if err != nil || cp.Size != 1 || len(cp.Signature) == 0 {
		t.Fatalf("checkpoint: %+v %v", cp, err)
	}
}

func TestNew_SameSeedSameKey(t *testing.T) {
	ctx := context.Background()
	first, err := New(ctx, testConfig(t), nil)
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	defer first.Close()
	second, err := New(ctx, testConfig(t), nil)
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	defer second.Close()
	if hex.EncodeToString(first.SigningKey.PublicKey) != hex.EncodeToString(second.SigningKey.PublicKey) {
		t.Fatalf("seed did not reproduce the signing key")
	}
}

func TestNew_UnsignedAndUnsealed(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	cfg.SigningPrivateKeySeedHex = ""
	cfg.SealSecretHex = ""
	a, err := New(ctx, cfg, nil)
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	defer a.Close()
	if a.SigningKey != nil || a.Generate.Signer != nil || a.Generate.Sealer != nil {
		t.Fatalf("expected no signer and no sealer")
	}
	r, err := a.Generate.Execute(ctx, usecase.GenerateReceiptRequest{SubjectA: "a", SubjectB: "b", Consent: true})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if r.Signed() || r.Sealed() {
		t.Fatalf("expected bare receipt, got %+v", r)
	}
	if _, err := a.Open.Execute(r); !domain.IsCryptoError(err) {
		t.Fatalf("expected CryptoError without sealer, got %v", err)
	}
}

func TestNew_EphemeralSealer(t *testing.T) {
	cfg := testConfig(t)
	cfg.SealSecretHex = ""
	cfg.SealEnabled = true
	a, err := New(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	defer a.Close()
	if a.Sealer == nil {
		t.Fatalf("expected ephemeral sealer")
	}
}

func TestNew_RejectsBadConfig(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{name: "unknown scorer", mutate: func(c *config.Config) { c.Scorer = "tea-leaves" }},
		{name: "bad seed", mutate: func(c *config.Config) { c.SigningPrivateKeySeedHex = "zz" }},
		{name: "short seal secret", mutate: func(c *config.Config) { c.SealSecretHex = "abcd" }},
		{name: "missing bundle", mutate: func(c *config.Config) { c.PolicyBundlePath = filepath.Join(t.TempDir(), "missing") }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := testConfig(t)
			tc.mutate(&cfg)
			if a, err := New(context.Background(), cfg, nil); err == nil {
				a.Close()
				t.Fatalf("expected error")
			}
		})
	}
}

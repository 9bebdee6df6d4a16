// Package app wires the receipt pipeline from configuration. Both the CLI
// and the HTTP daemon build on it.
package app

import (
	"context"
	"fmt"

	"receipts/internal/config"
	"receipts/internal/domain"
	"receipts/internal/infra/crypto"
	"receipts/internal/infra/merkle"
	"receipts/internal/infra/policyopa"
	"receipts/internal/infra/receiptlog"
	"receipts/internal/infra/score"
	"receipts/internal/usecase"

	"go.uber.org/zap"
)

type App struct {
	Config config.Config
	Logger *zap.Logger

	Log        *receiptlog.Store
	Crypto     *crypto.Service
	Signer     domain.Signer
	SigningKey *domain.PublicKey
	Sealer     *crypto.Sealer
	Policy     *policyopa.Engine

	Generate   *usecase.GenerateReceipt
	Verify     *usecase.VerifyReceipt
	Open       *usecase.OpenReceipt
	Checkpoint *usecase.LogCheckpoint
}

// New opens the receipt log and builds every use case. The caller owns the
// returned App and must Close it.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if _, err := score.ByName(cfg.Scorer); err != nil {
		return nil, err
	}

	signer, err := crypto.SignerFromConfig(cfg.SigningAlg, cfg.SigningKID, cfg.SigningPrivateKeyBase64, cfg.SigningPrivateKeySeedHex)
	switch {
	case crypto.IsNoKeyMaterial(err):
		logger.Warn("no signing key configured; receipts will be unsigned")
		signer = nil
	case err != nil:
		return nil, fmt.Errorf("signing key: %w", err)
	}

	sealer, err := newSealer(cfg, logger)
	if err != nil {
		return nil, err
	}

	engine, err := newPolicy(ctx, cfg)
	if err != nil {
		return nil, err
	}

	store, err := receiptlog.Open(cfg.ReceiptLogPath, receiptlog.Options{Fsync: cfg.ReceiptFsync, Logger: logger})
	if err != nil {
		return nil, err
	}

	a := &App{
		Config: cfg,
		Logger: logger,
		Log:    store,
		Crypto: crypto.NewService(),
		Signer: signer,
		Sealer: sealer,
		Policy: engine,
	}
	if signer != nil {
		a.SigningKey = &domain.PublicKey{Alg: signer.Alg(), KID: signer.KID(), PublicKey: signer.PublicKey()}
	}

	a.Generate = &usecase.GenerateReceipt{
		Log:           store,
		Crypto:        a.Crypto,
		Signer:        signer,
		Scorers:       score.ByName,
		DefaultScorer: cfg.Scorer,
		HashAlg:       crypto.NormalizeHashAlg(cfg.HashAlg),
		SealThreshold: cfg.SealThreshold,
		Logger:        logger,
	}
	// a nil *Sealer must not reach the use cases as a non-nil interface
	if sealer != nil {
		a.Generate.Sealer = sealer
	}
	a.Verify = &usecase.VerifyReceipt{
		Crypto:           a.Crypto,
		Policy:           engine,
		Key:              a.SigningKey,
		ScoreThreshold:   cfg.ScoreThreshold,
		RequireSignature: cfg.RequireSignature,
		Logger:           logger,
	}
	a.Open = &usecase.OpenReceipt{Crypto: a.Crypto}
	if sealer != nil {
		a.Open.Sealer = sealer
	}
	a.Checkpoint = &usecase.LogCheckpoint{
		Log:    store,
		Crypto: a.Crypto,
		Merkle: merkle.Service{},
		Signer: signer,
	}
	return a, nil
}

// SetRecorder routes use case counters to r.
func (a *App) SetRecorder(r usecase.Recorder) {
	a.Generate.Metrics = r
	a.Verify.Metrics = r
}

func (a *App) Close() error {
	if a == nil || a.Log == nil {
		return nil
	}
	return a.Log.Close()
}

func newSealer(cfg config.Config, logger *zap.Logger) (*crypto.Sealer, error) {
	if cfg.SealSecretHex != "" {
		secret, err := crypto.DecodeSecretHex(cfg.SealSecretHex)
		if err != nil {
			return nil, err
		}
		return crypto.NewSealer(crypto.SealerConfig{Secret: secret})
	}
	if !cfg.SealEnabled {
		return nil, nil
	}
	logger.Warn("SEAL_ENABLED without SEAL_SECRET_HEX; sealing with an ephemeral secret, sealed receipts cannot be opened after restart")
	return crypto.NewEphemeralSealer()
}

func newPolicy(ctx context.Context, cfg config.Config) (*policyopa.Engine, error) {
	if cfg.PolicyBundlePath == "" {
		return policyopa.NewDefaultEngine(ctx)
	}
	engine, err := policyopa.NewEngineFromBundlePath(ctx, cfg.PolicyBundlePath, cfg.PolicyBundlePath)
	if err != nil {
		return nil, fmt.Errorf("load policy bundle: %w", err)
	}
	return engine, nil
}

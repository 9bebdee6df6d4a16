package usecase

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"receipts/internal/domain"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type GenerateReceiptRequest struct {
	SubjectA string
	SubjectB string
	Identity map[string]any
	Consent  bool
	// Scorer overrides the configured default scorer.
	Scorer string
}

type GenerateReceipt struct {
	Log     ReceiptLog
	Index   ReceiptIndex
	Crypto  CryptoService
	Signer  domain.Signer
	Sealer  Sealer
	Scorers ScorerRegistry

	DefaultScorer string
	HashAlg       string
	SealThreshold float64

	Clock   func() time.Time
	NewID   func() string
	Metrics Recorder
	Logger  *zap.Logger
}

// Execute builds, scores, hashes, optionally signs and seals a receipt and
// appends it to the log. Every fallible step runs before the append, so a
// failed call leaves the log untouched.
func (uc *GenerateReceipt) Execute(ctx context.Context, req GenerateReceiptRequest) (domain.Receipt, error) {
	start := time.Now()
	receipt, err := uc.execute(ctx, req)
	if err != nil {
		if uc.Metrics != nil {
			uc.Metrics.GenerateFailed(ErrorKind(err))
		}
		return domain.Receipt{}, err
	}
	if uc.Metrics != nil {
		uc.Metrics.ReceiptGenerated(string(receipt.Status), time.Since(start))
	}
	return receipt, nil
}

func (uc *GenerateReceipt) execute(ctx context.Context, req GenerateReceiptRequest) (domain.Receipt, error) {
	if uc.Log == nil || uc.Crypto == nil || uc.Scorers == nil {
		return domain.Receipt{}, errors.New("generate receipt: missing dependency")
	}
	scorerName := strings.TrimSpace(req.Scorer)
	if scorerName == "" {
		scorerName = uc.DefaultScorer
	}
	scorer, err := uc.Scorers(scorerName)
	if err != nil {
		return domain.Receipt{}, fmt.Errorf("%w: %v", domain.ErrInvalidReceipt, err)
	}
	raw, err := scorer.Score([]byte(req.SubjectA), []byte(req.SubjectB))
	if err != nil {
		return domain.Receipt{}, domain.NewSerializationError("score subjects", err)
	}
	score := domain.ClipScore(raw)

	status := domain.ReceiptStatusVetoed
	if req.Consent && score >= uc.SealThreshold {
		status = domain.ReceiptStatusSealed
	}

	receipt := domain.Receipt{
		ID:        uc.newID(),
		Timestamp: domain.UnixSeconds(uc.now()),
		SubjectA:  req.SubjectA,
		SubjectB:  req.SubjectB,
		Identity:  req.Identity,
		Consent:   req.Consent,
		Scorer:    scorer.Name(),
		Score:     score,
		Status:    status,
		HashAlg:   uc.HashAlg,
	}

	canonical, digest, err := uc.Crypto.HashReceipt(receipt)
	if err != nil {
		if errors.Is(err, domain.ErrUnsupportedAlg) {
			return domain.Receipt{}, domain.NewCryptoError("hash receipt", err)
		}
		return domain.Receipt{}, domain.NewSerializationError("hash receipt", err)
	}
	receipt.Hash = hex.EncodeToString(digest)

	if uc.Signer != nil {
		sig, err := uc.Signer.Sign(digest)
		if err != nil {
			return domain.Receipt{}, domain.NewCryptoError("sign receipt", err)
		}
		receipt.SigAlg = uc.Signer.Alg()
		receipt.KID = uc.Signer.KID()
		receipt.Signature = domain.StringPtr(hex.EncodeToString(sig))
	}

	if uc.Sealer != nil {
		sealed, err := uc.Sealer.Seal(canonical, []byte(receipt.Hash))
		if err != nil {
			return domain.Receipt{}, domain.NewCryptoError("seal receipt", err)
		}
		receipt.Ciphertext = domain.StringPtr(hex.EncodeToString(sealed.Ciphertext))
		receipt.Nonce = domain.StringPtr(hex.EncodeToString(sealed.Nonce))
		receipt.Salt = domain.StringPtr(hex.EncodeToString(sealed.Salt))
	}

	line, err := json.Marshal(receipt)
	if err != nil {
		return domain.Receipt{}, domain.NewSerializationError("encode receipt", err)
	}

	offset, err := uc.Log.Append(ctx, line)
	if err != nil {
		if !errors.Is(err, domain.ErrStorage) {
			err = fmt.Errorf("%w: %w", domain.ErrStorage, err)
		}
		return domain.Receipt{}, err
	}

	if uc.Index != nil {
		if err := uc.Index.Index(ctx, receipt, offset, line); err != nil {
			uc.logger().Warn("index receipt", zap.String("hash", receipt.Hash), zap.Error(err))
			if uc.Metrics != nil {
				uc.Metrics.IndexFailed()
			}
		}
	}
	uc.logger().Debug("receipt appended",
		zap.String("id", receipt.ID),
		zap.String("hash", receipt.Hash),
		zap.String("status", string(receipt.Status)),
		zap.Int64("offset", offset),
	)
	return receipt, nil
}

func (uc *GenerateReceipt) now() time.Time {
	if uc.Clock != nil {
		return uc.Clock()
	}
	return time.Now()
}

func (uc *GenerateReceipt) newID() string {
	if uc.NewID != nil {
		return uc.NewID()
	}
	return uuid.NewString()
}

func (uc *GenerateReceipt) logger() *zap.Logger {
	if uc.Logger != nil {
		return uc.Logger
	}
	return zap.NewNop()
}

// ErrorKind classifies err for metrics and exit codes.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case domain.IsSerializationError(err):
		return "serialization"
	case domain.IsCryptoError(err):
		return "crypto"
	case errors.Is(err, domain.ErrStorage):
		return "storage"
	case errors.Is(err, domain.ErrInvalidReceipt):
		return "invalid"
	default:
		return "internal"
	}
}

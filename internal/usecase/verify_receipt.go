package usecase

import (
	"context"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"strings"

	"receipts/internal/domain"

	"go.uber.org/zap"
)

type VerifyReceiptRequest struct {
	Receipt domain.Receipt
	// PublicKey overrides the configured verification key.
	PublicKey []byte
}

type VerifyReceipt struct {
	Crypto CryptoService
	Policy PolicyEngine
	// Key is the configured signing key; nil when receipts are unsigned.
	Key *domain.PublicKey

	ScoreThreshold   float64
	RequireSignature bool

	Metrics Recorder
	Logger  *zap.Logger
}

// Execute recomputes the receipt hash, checks the signature and evaluates
// the verification policy. A tampered receipt yields Valid=false, not an
// error.
func (uc *VerifyReceipt) Execute(ctx context.Context, req VerifyReceiptRequest) (domain.VerificationResult, error) {
	if uc.Crypto == nil || uc.Policy == nil {
		return domain.VerificationResult{}, errors.New("verify receipt: missing dependency")
	}
	r := req.Receipt
	result := domain.VerificationResult{
		ReceiptID: r.ID,
		Hash:      r.Hash,
		KID:       r.KID,
	}

	_, digest, err := uc.Crypto.HashReceipt(r)
	switch {
	case err == nil:
		result.HashValid = digestMatches(digest, r.Hash)
	case errors.Is(err, domain.ErrUnsupportedAlg):
		result.HashValid = false
	default:
		return domain.VerificationResult{}, err
	}

	result.SignaturePresent = r.Signed()
	if result.SignaturePresent && result.HashValid {
		result.SignatureValid = uc.checkSignature(r, digest, req.PublicKey)
	}

	eval, err := uc.Policy.Evaluate(ctx, domain.PolicyInput{
		Receipt: domain.PolicyReceipt{
			Consent: r.Consent,
			Score:   r.Score,
			Scorer:  r.Scorer,
			Status:  string(r.Status),
			Sealed:  r.Sealed(),
		},
		Verification: domain.PolicyVerification{
			HashValid:        result.HashValid,
			SignaturePresent: result.SignaturePresent,
			SignatureValid:   result.SignatureValid,
		},
		Options: domain.PolicyOptions{
			ScoreThreshold:   uc.ScoreThreshold,
			RequireSignature: uc.RequireSignature,
		},
	})
	if err != nil {
		return domain.VerificationResult{}, err
	}
	result.Policy = eval
	result.Valid = eval.Result.Allow

	if uc.Metrics != nil {
		uc.Metrics.ReceiptVerified(result.Valid)
	}
	if !result.Valid {
		uc.logger().Debug("receipt rejected",
			zap.String("hash", r.Hash),
			zap.Strings("deny", result.DenyCodes()),
		)
	}
	return result, nil
}

func (uc *VerifyReceipt) checkSignature(r domain.Receipt, digest, override []byte) bool {
	sig, err := hex.DecodeString(domain.StringValue(r.Signature))
	if err != nil {
		return false
	}
	alg := r.SigAlg
	publicKey := override
	if len(publicKey) == 0 {
		if uc.Key == nil {
			return false
		}
		if r.KID != "" && uc.Key.KID != "" && !strings.EqualFold(r.KID, uc.Key.KID) {
			return false
		}
		publicKey = uc.Key.PublicKey
		if alg == "" {
			alg = uc.Key.Alg
		}
	}
	if alg == "" {
		alg = domain.SigAlgEd25519
	}
	return uc.Crypto.VerifySignature(alg, publicKey, digest, sig) == nil
}

func (uc *VerifyReceipt) logger() *zap.Logger {
	if uc.Logger != nil {
		return uc.Logger
	}
	return zap.NewNop()
}

// digestMatches compares the lowercase hex form of digest with the stored
// hash string in constant time. Any change to the string, case included,
// is a mismatch.
func digestMatches(digest []byte, hash string) bool {
	if len(digest) == 0 {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(hex.EncodeToString(digest)), []byte(hash)) == 1
}

package usecase

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"

	"receipts/internal/domain"
)

type OpenReceipt struct {
	Crypto CryptoService
	Sealer Sealer
}

// Execute decrypts the sealed payload of r and checks that it hashes to
// r.Hash under r.HashAlg.
func (uc *OpenReceipt) Execute(r domain.Receipt) (domain.HashedView, error) {
	if uc.Crypto == nil {
		return domain.HashedView{}, errors.New("open receipt: missing dependency")
	}
	if uc.Sealer == nil {
		return domain.HashedView{}, domain.NewCryptoError("open receipt", domain.ErrSealUnavailable)
	}
	if !r.Sealed() {
		return domain.HashedView{}, fmt.Errorf("%w: receipt is not sealed", domain.ErrInvalidReceipt)
	}
	sealed, err := decodeSealed(r)
	if err != nil {
		return domain.HashedView{}, err
	}
	plaintext, err := uc.Sealer.Open(sealed, []byte(r.Hash))
	if err != nil {
		return domain.HashedView{}, err
	}
	sum, err := uc.Crypto.Digest(r.HashAlg, plaintext)
	if err != nil {
		return domain.HashedView{}, domain.NewCryptoError("open receipt", err)
	}
	if !digestMatches(sum, r.Hash) {
		return domain.HashedView{}, domain.ErrHashMismatch
	}
	var view domain.HashedView
	if err := json.Unmarshal(plaintext, &view); err != nil {
		return domain.HashedView{}, domain.NewSerializationError("decode sealed payload", err)
	}
	return view, nil
}

func decodeSealed(r domain.Receipt) (domain.SealedPayload, error) {
	fields := []struct {
		name  string
		value *string
	}{
		{"salt", r.Salt},
		{"nonce", r.Nonce},
		{"ciphertext", r.Ciphertext},
	}
	decoded := make([][]byte, len(fields))
	for i, f := range fields {
		raw, err := hex.DecodeString(domain.StringValue(f.value))
		if err != nil || len(raw) == 0 {
			return domain.SealedPayload{}, fmt.Errorf("%w: %s is not hex", domain.ErrInvalidReceipt, f.name)
		}
		decoded[i] = raw
	}
	return domain.SealedPayload{Salt: decoded[0], Nonce: decoded[1], Ciphertext: decoded[2]}, nil
}

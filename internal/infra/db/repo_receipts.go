package db

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"receipts/internal/domain"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var errDBUnavailable = errors.New("db unavailable")

type ReceiptRepository struct {
	db *gorm.DB
}

func NewReceiptRepository(db *gorm.DB) *ReceiptRepository {
	return &ReceiptRepository{db: db}
}

// Index stores r. Re-indexing the same hash is a no-op.
func (r *ReceiptRepository) Index(ctx context.Context, receipt domain.Receipt, offset int64, raw []byte) error {
	if r.db == nil {
		return errDBUnavailable
	}
	if len(raw) == 0 {
		encoded, err := json.Marshal(receipt)
		if err != nil {
			return err
		}
		raw = encoded
	}
	model := ReceiptModel{
		Hash:        strings.ToLower(receipt.Hash),
		ReceiptID:   receipt.ID,
		LogOffset:   offset,
		CreatedAt:   receipt.CreatedAt(),
		Scorer:      receipt.Scorer,
		Score:       receipt.Score,
		Status:      string(receipt.Status),
		Consent:     receipt.Consent,
		HashAlg:     receipt.HashAlg,
		SigAlg:      receipt.SigAlg,
		KID:         receipt.KID,
		Sealed:      receipt.Sealed(),
		ReceiptJSON: raw,
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&model).Error
}

func (r *ReceiptRepository) GetByHash(ctx context.Context, hash string) (domain.Receipt, error) {
	if r.db == nil {
		return domain.Receipt{}, errDBUnavailable
	}
	var model ReceiptModel
	err := r.db.WithContext(ctx).
		Where("hash = ?", strings.ToLower(hash)).
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Receipt{}, domain.ErrNotFound
		}
		return domain.Receipt{}, err
	}
	return receiptFromModel(model)
}

// List pages receipts in log order.
func (r *ReceiptRepository) List(ctx context.Context, offset, limit int) ([]domain.Receipt, int, error) {
	if r.db == nil {
		return nil, 0, errDBUnavailable
	}
	var total int64
	if err := r.db.WithContext(ctx).Model(&ReceiptModel{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var models []ReceiptModel
	err := r.db.WithContext(ctx).
		Order("log_offset ASC").
		Offset(offset).
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, 0, err
	}
	out := make([]domain.Receipt, 0, len(models))
	for _, model := range models {
		receipt, err := receiptFromModel(model)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, receipt)
	}
	return out, int(total), nil
}

func receiptFromModel(model ReceiptModel) (domain.Receipt, error) {
	var receipt domain.Receipt
	if err := json.Unmarshal(model.ReceiptJSON, &receipt); err != nil {
		return domain.Receipt{}, err
	}
	return receipt, nil
}

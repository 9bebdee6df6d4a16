package db

import "time"

// ReceiptModel mirrors one log line. The log stays authoritative; rows are
// only an index for lookups and listing.
type ReceiptModel struct {
	Hash        string    `gorm:"primaryKey;size:64"`
	ReceiptID   string    `gorm:"type:uuid;uniqueIndex;not null"`
	LogOffset   int64     `gorm:"index;not null"`
	CreatedAt   time.Time `gorm:"index;not null"`
	Scorer      string    `gorm:"not null"`
	Score       float64   `gorm:"not null"`
	Status      string    `gorm:"index;not null"`
	Consent     bool      `gorm:"not null"`
	HashAlg     string    `gorm:"not null"`
	SigAlg      string
	KID         string `gorm:"index"`
	Sealed      bool   `gorm:"not null"`
	ReceiptJSON []byte `gorm:"type:jsonb;not null"`
}

func (ReceiptModel) TableName() string {
	return "receipts"
}

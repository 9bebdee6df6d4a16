package domain

import (
	"time"
)

type ReceiptStatus string

const (
	ReceiptStatusSealed ReceiptStatus = "sealed"
	ReceiptStatusVetoed ReceiptStatus = "vetoed"
)

const (
	HashAlgSHA256  = "sha256"
	HashAlgSHA3256 = "sha3-256"
)

// Receipt is one line of the receipt log. Optional cryptographic fields are
// pointers so that absent values serialize as null.
type Receipt struct {
	ID        string         `json:"id"`
	Timestamp float64        `json:"timestamp"`
	SubjectA  string         `json:"subject_a"`
	SubjectB  string         `json:"subject_b"`
	Identity  map[string]any `json:"identity,omitempty"`
	Consent   bool           `json:"consent"`
	Scorer    string         `json:"scorer"`
	Score     float64        `json:"score"`
	Status    ReceiptStatus  `json:"status"`
	HashAlg   string         `json:"hash_alg"`
	Hash      string         `json:"hash"`

	SigAlg     string  `json:"sig_alg,omitempty"`
	KID        string  `json:"kid,omitempty"`
	Signature  *string `json:"signature"`
	Ciphertext *string `json:"ciphertext"`
	Nonce      *string `json:"nonce"`
	Salt       *string `json:"salt"`
}

// HashedView is the part of a receipt covered by Hash.
type HashedView struct {
	ID        string         `json:"id"`
	Timestamp float64        `json:"timestamp"`
	SubjectA  string         `json:"subject_a"`
	SubjectB  string         `json:"subject_b"`
	Identity  map[string]any `json:"identity,omitempty"`
	Consent   bool           `json:"consent"`
	Scorer    string         `json:"scorer"`
	Score     float64        `json:"score"`
	Status    ReceiptStatus  `json:"status"`
	HashAlg   string         `json:"hash_alg"`
}

func (r Receipt) HashedView() HashedView {
	return HashedView{
		ID:        r.ID,
		Timestamp: r.Timestamp,
		SubjectA:  r.SubjectA,
		SubjectB:  r.SubjectB,
		Identity:  r.Identity,
		Consent:   r.Consent,
		Scorer:    r.Scorer,
		Score:     r.Score,
		Status:    r.Status,
		HashAlg:   r.HashAlg,
	}
}

func (r Receipt) Signed() bool {
	return r.Signature != nil && *r.Signature != ""
}

func (r Receipt) Sealed() bool {
	return r.Ciphertext != nil && *r.Ciphertext != ""
}

// CreatedAt converts the float timestamp back to wall-clock time.
func (r Receipt) CreatedAt() time.Time {
	sec := int64(r.Timestamp)
	nsec := int64((r.Timestamp - float64(sec)) * 1e9)
	return time.Unix(sec, nsec).UTC()
}

// UnixSeconds renders t in the float seconds form used by Receipt.Timestamp.
func UnixSeconds(t time.Time) float64 {
	return float64(t.UnixMicro()) / 1e6
}

func StringPtr(v string) *string {
	return &v
}

func StringValue(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

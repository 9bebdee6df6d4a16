package domain

type VerificationResult struct {
	ReceiptID        string           `json:"receipt_id"`
	Hash             string           `json:"hash"`
	HashValid        bool             `json:"hash_valid"`
	SignaturePresent bool             `json:"signature_present"`
	SignatureValid   bool             `json:"signature_valid"`
	KID              string           `json:"kid,omitempty"`
	Policy           PolicyEvaluation `json:"policy"`
	Valid            bool             `json:"valid"`
}

func (r VerificationResult) DenyCodes() []string {
	out := make([]string, 0, len(r.Policy.Result.Deny))
	for _, d := range r.Policy.Result.Deny {
		out = append(out, d.Code)
	}
	return out
}

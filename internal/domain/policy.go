package domain

type PolicyInput struct {
	Receipt      PolicyReceipt      `json:"receipt"`
	Verification PolicyVerification `json:"verification"`
	Options      PolicyOptions      `json:"options"`
}

type PolicyReceipt struct {
	Consent bool    `json:"consent"`
	Score   float64 `json:"score"`
	Scorer  string  `json:"scorer"`
	Status  string  `json:"status"`
	Sealed  bool    `json:"sealed"`
}

type PolicyVerification struct {
	HashValid        bool `json:"hash_valid"`
	SignaturePresent bool `json:"signature_present"`
	SignatureValid   bool `json:"signature_valid"`
}

type PolicyOptions struct {
	ScoreThreshold   float64 `json:"score_threshold"`
	RequireSignature bool    `json:"require_signature"`
}

type PolicyDeny struct {
	Code    string `json:"code"`
	Message string `json:"message,omitempty"`
}

type PolicyResult struct {
	Allow bool         `json:"allow"`
	Deny  []PolicyDeny `json:"deny,omitempty"`
}

type PolicyEvaluation struct {
	BundleID   string       `json:"bundle_id,omitempty"`
	BundleHash string       `json:"bundle_hash"`
	Result     PolicyResult `json:"result"`
}

package domain

const (
	SigAlgEd25519 = "ed25519"
	SigAlgMLDSA65 = "ml-dsa-65"
)

// Signer signs receipt and checkpoint digests.
type Signer interface {
	Alg() string
	KID() string
	PublicKey() []byte
	Sign(digest []byte) ([]byte, error)
}

// PublicKey describes the verification half of the configured receipt signer.
type PublicKey struct {
	Alg       string `json:"alg"`
	KID       string `json:"kid"`
	PublicKey []byte `json:"public_key"`
}

// SealedPayload is the output of one AEAD seal. Salt feeds the key
// derivation, Nonce the cipher.
type SealedPayload struct {
	Salt       []byte
	Nonce      []byte
	Ciphertext []byte
}

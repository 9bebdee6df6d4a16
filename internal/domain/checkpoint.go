package domain

import "time"

// Checkpoint commits to the first Size receipts of the log.
type Checkpoint struct {
	Size      int64     `json:"size"`
	RootHash  []byte    `json:"root_hash"`
	IssuedAt  time.Time `json:"issued_at"`
	KID       string    `json:"kid,omitempty"`
	SigAlg    string    `json:"sig_alg,omitempty"`
	Signature []byte    `json:"signature,omitempty"`
}

type InclusionProof struct {
	Hash      string   `json:"hash"`
	LeafIndex int64    `json:"leaf_index"`
	TreeSize  int64    `json:"tree_size"`
	Path      [][]byte `json:"path"`
	RootHash  []byte   `json:"root_hash"`
}

type ConsistencyProof struct {
	FromSize int64    `json:"from_size"`
	ToSize   int64    `json:"to_size"`
	Path     [][]byte `json:"path"`
}

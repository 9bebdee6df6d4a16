// Package merkle implements the RFC 6962 tree hash over receipt digests.
package merkle

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"fmt"
	"math/bits"
)

const HashSize = sha256.Size

var (
	ErrEmptyTree      = errors.New("empty merkle tree")
	ErrInvalidHashLen = errors.New("invalid hash length")
	ErrInvalidIndex   = errors.New("invalid leaf index")
	ErrInvalidSize    = errors.New("invalid tree size")
)

// LeafHash is SHA-256(0x00 || data).
func LeafHash(data []byte) []byte {
	h := sha256.New()
	h.Write([]byte{0x00})
	h.Write(data)
	return h.Sum(nil)
}

// NodeHash is SHA-256(0x01 || left || right).
func NodeHash(left, right []byte) []byte {
	h := sha256.New()
	h.Write([]byte{0x01})
	h.Write(left)
	h.Write(right)
	return h.Sum(nil)
}

// Root returns the tree head over already hashed leaves.
func Root(leaves [][]byte) ([]byte, error) {
	if err := checkLeaves(leaves); err != nil {
		return nil, err
	}
	return subtreeHash(leaves), nil
}

// InclusionProof returns the audit path for leaves[index].
func InclusionProof(leaves [][]byte, index int) ([][]byte, error) {
	if err := checkLeaves(leaves); err != nil {
		return nil, err
	}
	if index < 0 || index >= len(leaves) {
		return nil, ErrInvalidIndex
	}
	var path [][]byte
	for len(leaves) > 1 {
		k := split(len(leaves))
		if index < k {
			path = append(path, subtreeHash(leaves[k:]))
			leaves = leaves[:k]
		} else {
			path = append(path, subtreeHash(leaves[:k]))
			leaves = leaves[k:]
			index -= k
		}
	}
	// collected top down, verifiers consume bottom up
	reverse(path)
	return path, nil
}

// VerifyInclusion recomputes the root from leaf and path.
func VerifyInclusion(leaf []byte, index, size int, path [][]byte, root []byte) (bool, error) {
	if size <= 0 {
		return false, ErrInvalidSize
	}
	if index < 0 || index >= size {
		return false, ErrInvalidIndex
	}
	for _, h := range append([][]byte{leaf, root}, path...) {
		if len(h) != HashSize {
			return false, ErrInvalidHashLen
		}
	}

	// RFC 9162 section 2.1.3.2
	fn, sn := uint64(index), uint64(size-1)
	r := leaf
	for _, p := range path {
		if sn == 0 {
			return false, ErrInvalidSize
		}
		if fn&1 == 1 || fn == sn {
			r = NodeHash(p, r)
			for fn&1 == 0 && fn != 0 {
				fn >>= 1
				sn >>= 1
			}
		} else {
			r = NodeHash(r, p)
		}
		fn >>= 1
		sn >>= 1
	}
	if sn != 0 {
		return false, ErrInvalidSize
	}
	return bytes.Equal(r, root), nil
}

// ConsistencyProof proves that the tree of size from is a prefix of the
// tree of size to.
func ConsistencyProof(leaves [][]byte, from, to int) ([][]byte, error) {
	if from <= 0 || from > to || to > len(leaves) {
		return nil, ErrInvalidSize
	}
	if err := checkLeaves(leaves[:to]); err != nil {
		return nil, err
	}
	if from == to {
		return [][]byte{}, nil
	}
	return subproof(leaves[:to], from, true), nil
}

func subproof(leaves [][]byte, m int, complete bool) [][]byte {
	n := len(leaves)
	if m == n {
		if complete {
			return nil
		}
		return [][]byte{subtreeHash(leaves)}
	}
	k := split(n)
	if m <= k {
		return append(subproof(leaves[:k], m, complete), subtreeHash(leaves[k:]))
	}
	return append(subproof(leaves[k:], m-k, false), subtreeHash(leaves[:k]))
}

// VerifyConsistency checks a proof produced by ConsistencyProof.
func VerifyConsistency(oldRoot, newRoot []byte, from, to int, path [][]byte) (bool, error) {
	if from <= 0 || from > to {
		return false, ErrInvalidSize
	}
	if from == to {
		return len(path) == 0 && bytes.Equal(oldRoot, newRoot), nil
	}
	for _, h := range append([][]byte{oldRoot, newRoot}, path...) {
		if len(h) != HashSize {
			return false, ErrInvalidHashLen
		}
	}
	if len(path) == 0 {
		return false, ErrInvalidSize
	}

	// RFC 9162 section 2.1.4.2
	if from&(from-1) == 0 {
		path = append([][]byte{oldRoot}, path...)
	}
	fn, sn := uint64(from-1), uint64(to-1)
	for fn&1 == 1 {
		fn >>= 1
		sn >>= 1
	}
	fr, sr := path[0], path[0]
	for _, c := range path[1:] {
		if sn == 0 {
			return false, ErrInvalidSize
		}
		if fn&1 == 1 || fn == sn {
			fr = NodeHash(c, fr)
			sr = NodeHash(c, sr)
			for fn&1 == 0 && fn != 0 {
				fn >>= 1
				sn >>= 1
			}
		} else {
			sr = NodeHash(sr, c)
		}
		fn >>= 1
		sn >>= 1
	}
	if sn != 0 {
		return false, ErrInvalidSize
	}
	return bytes.Equal(fr, oldRoot) && bytes.Equal(sr, newRoot), nil
}

func subtreeHash(leaves [][]byte) []byte {
	if len(leaves) == 1 {
		return append([]byte(nil), leaves[0]...)
	}
	k := split(len(leaves))
	return NodeHash(subtreeHash(leaves[:k]), subtreeHash(leaves[k:]))
}

// split returns the largest power of two strictly below n.
func split(n int) int {
	return 1 << (bits.Len(uint(n-1)) - 1)
}

func checkLeaves(leaves [][]byte) error {
	if len(leaves) == 0 {
		return ErrEmptyTree
	}
	for i, leaf := range leaves {
		if len(leaf) != HashSize {
			return fmt.Errorf("leaf %d: %w", i, ErrInvalidHashLen)
		}
	}
	return nil
}

func reverse(path [][]byte) {
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
}

package merkle

// Service adapts the package functions to int64 tree sizes.
type Service struct{}

func (Service) LeafHash(data []byte) []byte {
	return LeafHash(data)
}

func (Service) Root(leaves [][]byte) ([]byte, error) {
	return Root(leaves)
}

func (Service) InclusionProof(leaves [][]byte, index int64) ([][]byte, error) {
	return InclusionProof(leaves, int(index))
}

func (Service) VerifyInclusionProof(leaf []byte, index, size int64, path [][]byte, root []byte) (bool, error) {
	return VerifyInclusion(leaf, int(index), int(size), path, root)
}

func (Service) ConsistencyProof(leaves [][]byte, from, to int64) ([][]byte, error) {
	return ConsistencyProof(leaves, int(from), int(to))
}

func (Service) VerifyConsistencyProof(oldRoot, newRoot []byte, from, to int64, path [][]byte) (bool, error) {
	return VerifyConsistency(oldRoot, newRoot, int(from), int(to), path)
}

package block

import "github.com/pkg/errors"

var ErrProofIndex = errors.New("leaf index out of range")

// ProofStep is one sibling on the path from a leaf to the root. Left
// reports whether the sibling sits on the left of the running hash.
type ProofStep struct {
	Hash Hash `msgpack:"h"`
	Left bool `msgpack:"l"`
}

type MerkleProof struct {
	Index int         `msgpack:"i"`
	Steps []ProofStep `msgpack:"s"`
}

func leafHash(d []byte) Hash {
	return DomainHash(DomainMerkleLeaf, d)
}

func nodeHash(l, r Hash) Hash {
	b := make([]byte, 0, 2*HashSize)
	b = append(b, l[:]...)
	b = append(b, r[:]...)
	return DomainHash(DomainMerkleNode, b)
}

// merkleLevels builds every level of the tree, leaves first. An odd node
// at the end of a level is promoted unchanged.
func merkleLevels(leaves [][]byte) [][]Hash {
	if len(leaves) == 0 {
		return nil
	}

	level := make([]Hash, len(leaves))
	for i, l := range leaves {
		level[i] = leafHash(l)
	}

	levels := [][]Hash{level}
	for len(level) > 1 {
		next := make([]Hash, 0, (len(level)+1)/2)
		for i := 0; i < len(level); i += 2 {
			if i+1 == len(level) {
				next = append(next, level[i])
				continue
			}
			next = append(next, nodeHash(level[i], level[i+1]))
		}
		levels = append(levels, next)
		level = next
	}

	return levels
}

// MerkleRoot returns the root over leaves, or ZeroHash when there are none.
func MerkleRoot(leaves [][]byte) Hash {
	levels := merkleLevels(leaves)
	if levels == nil {
		return ZeroHash
	}

	return levels[len(levels)-1][0]
}

func merkleProof(leaves [][]byte, index int) (*MerkleProof, error) {
	if index < 0 || index >= len(leaves) {
		return nil, errors.Wrapf(ErrProofIndex, "index %d", index)
	}

	levels := merkleLevels(leaves)
	proof := &MerkleProof{Index: index}

	idx := index
	for _, level := range levels[:len(levels)-1] {
		switch {
		case idx%2 == 1:
			proof.Steps = append(proof.Steps, ProofStep{Hash: level[idx-1], Left: true})
		case idx+1 < len(level):
			proof.Steps = append(proof.Steps, ProofStep{Hash: level[idx+1]})
		}
		idx /= 2
	}

	return proof, nil
}

func VerifyMerkleProof(root Hash, leaf []byte, proof *MerkleProof) bool {
	if proof == nil {
		return false
	}

	h := leafHash(leaf)
	for _, s := range proof.Steps {
		if s.Left {
			h = nodeHash(s.Hash, h)
		} else {
			h = nodeHash(h, s.Hash)
		}
	}

	return h == root
}

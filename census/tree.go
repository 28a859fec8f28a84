// Package census builds the eligibility Merkle tree over the authorized voter
// set and produces and verifies inclusion proofs.
//
// Leaves are keccak256(address) and internal nodes keccak256(left ‖ right). A
// level with an odd number of nodes promotes its last node unchanged to the
// next level instead of padding it, so a proof only carries siblings for the
// levels where one exists. Any other implementation of Verify must follow the
// same rules or roots will not match.
package census

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/vocdoni/ballot-ledger/types"
)

// MaxProofLen bounds the number of siblings of a proof; a path bitmask
// cannot address more levels.
const MaxProofLen = 64

var (
	// ErrEmptyCensus is returned when building a tree without identities.
	ErrEmptyCensus = errors.New("census has no identities")
	// ErrLeafOutOfRange is returned for a proof request outside the tree.
	ErrLeafOutOfRange = errors.New("leaf index out of range")
	// ErrIdentityNotFound is returned when an identity is not a member.
	ErrIdentityNotFound = errors.New("identity not found in census")
)

// HashLeaf returns the leaf value of an identity.
func HashLeaf(identity common.Address) common.Hash {
	return ethcrypto.Keccak256Hash(identity.Bytes())
}

// HashPair returns the parent of two sibling nodes.
func HashPair(left, right common.Hash) common.Hash {
	return ethcrypto.Keccak256Hash(left.Bytes(), right.Bytes())
}

// Tree is an immutable eligibility tree. levels[0] holds the leaves and the
// last level holds only the root.
type Tree struct {
	identities []common.Address
	index      map[common.Address]int
	levels     [][]common.Hash
}

// BuildTree hashes every identity into a leaf and folds the levels up to the
// root.
func BuildTree(identities []common.Address) (*Tree, error) {
	if len(identities) == 0 {
		return nil, ErrEmptyCensus
	}
	leaves := make([]common.Hash, len(identities))
	index := make(map[common.Address]int, len(identities))
	for i, id := range identities {
		leaves[i] = HashLeaf(id)
		if _, dup := index[id]; !dup {
			index[id] = i
		}
	}
	levels := [][]common.Hash{leaves}
	for cur := leaves; len(cur) > 1; {
		next := make([]common.Hash, 0, (len(cur)+1)/2)
		for i := 0; i < len(cur); i += 2 {
			if i+1 == len(cur) {
				next = append(next, cur[i])
				continue
			}
			next = append(next, HashPair(cur[i], cur[i+1]))
		}
		levels = append(levels, next)
		cur = next
	}
	return &Tree{
		identities: append([]common.Address(nil), identities...),
		index:      index,
		levels:     levels,
	}, nil
}

// Root returns the tree root.
func (t *Tree) Root() common.Hash {
	return t.levels[len(t.levels)-1][0]
}

// Size returns the number of leaves.
func (t *Tree) Size() int {
	return len(t.levels[0])
}

// Depth returns the number of levels above the leaves.
func (t *Tree) Depth() int {
	return len(t.levels) - 1
}

// Leaves returns a copy of the leaf level.
func (t *Tree) Leaves() []common.Hash {
	return append([]common.Hash(nil), t.levels[0]...)
}

// Identities returns a copy of the identities the tree was built from.
func (t *Tree) Identities() []common.Address {
	return append([]common.Address(nil), t.identities...)
}

// IndexOf returns the first leaf index of identity, or ErrIdentityNotFound.
func (t *Tree) IndexOf(identity common.Address) (int, error) {
	if i, ok := t.index[identity]; ok {
		return i, nil
	}
	return -1, fmt.Errorf("%w: %s", ErrIdentityNotFound, identity.Hex())
}

// ProofFor returns the inclusion proof of the leaf at leafIndex.
func (t *Tree) ProofFor(leafIndex int) (*types.MerkleProof, error) {
	if leafIndex < 0 || leafIndex >= t.Size() {
		return nil, fmt.Errorf("%w: %d not in [0,%d)", ErrLeafOutOfRange, leafIndex, t.Size())
	}
	proof := &types.MerkleProof{Siblings: []common.Hash{}}
	idx := leafIndex
	for _, nodes := range t.levels[:len(t.levels)-1] {
		switch {
		case idx%2 == 1:
			proof.Path |= 1 << len(proof.Siblings)
			proof.Siblings = append(proof.Siblings, nodes[idx-1])
		case idx+1 < len(nodes):
			proof.Siblings = append(proof.Siblings, nodes[idx+1])
		default:
			// promoted node, nothing to hash at this level
		}
		idx /= 2
	}
	return proof, nil
}

// Verify recomputes the root from leaf and proof and compares it with root.
// Path bits above the last sibling must be zero, so every leaf has exactly
// one accepted encoding of its proof.
func Verify(leaf common.Hash, proof *types.MerkleProof, root common.Hash) bool {
	if proof == nil || len(proof.Siblings) > MaxProofLen {
		return false
	}
	n := len(proof.Siblings)
	if n < MaxProofLen && proof.Path>>n != 0 {
		return false
	}
	node := leaf
	for i, sibling := range proof.Siblings {
		if proof.Path>>i&1 == 1 {
			node = HashPair(sibling, node)
		} else {
			node = HashPair(node, sibling)
		}
	}
	return node == root
}

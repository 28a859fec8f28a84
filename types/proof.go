package types

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// ProofWords is the fixed number of numeric words of a vote proof.
const ProofWords = 8

// VoteProof is one vote attempt as submitted to the ledger. The nullifier is
// consumed exactly once per election; the commitment binds the hidden choice
// to the voter secret.
type VoteProof struct {
	Nullifier   common.Hash   `json:"nullifier"`
	Commitment  common.Hash   `json:"commitment"`
	Proof       []uint256.Int `json:"proof"`
	CandidateID uint64        `json:"candidateId"`
	Timestamp   int64         `json:"timestamp"`
}

// MerkleProof locates a leaf in the eligibility tree. Bit i of Path tells
// whether Siblings[i] is the left (1) or right (0) neighbour.
type MerkleProof struct {
	Siblings []common.Hash `json:"siblings"`
	Path     uint64        `json:"path"`
}

// Copy returns a deep copy of the proof.
func (p *MerkleProof) Copy() *MerkleProof {
	if p == nil {
		return nil
	}
	return &MerkleProof{
		Siblings: append([]common.Hash(nil), p.Siblings...),
		Path:     p.Path,
	}
}

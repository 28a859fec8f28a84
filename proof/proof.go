// Package proof assembles the vote submission of a voter: the nullifier and
// commitment derived from the voter secret, the proof words and the
// eligibility proof.
//
// The proof words are a placeholder for a succinct proof. They are derived
// deterministically from the nullifier and the commitment and only their
// shape is checked by the ledger.
package proof

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"

	"github.com/vocdoni/ballot-ledger/crypto/ballot"
	"github.com/vocdoni/ballot-ledger/types"
)

const (
	// MaxProofAge is how old a vote timestamp may be when the vote is cast.
	MaxProofAge = time.Hour
	// MaxClockSkew is how far in the future a vote timestamp may be.
	MaxClockSkew = 30 * time.Second
)

// Assemble builds the vote of voter for candidateID, timestamped now.
func Assemble(
	voter common.Address,
	electionID, candidateID uint64,
	secret common.Hash,
	eligibility *types.MerkleProof,
) (*types.VoteProof, *types.MerkleProof) {
	return AssembleAt(voter, electionID, candidateID, secret, eligibility, time.Now())
}

// AssembleAt is Assemble with an explicit timestamp.
func AssembleAt(
	voter common.Address,
	electionID, candidateID uint64,
	secret common.Hash,
	eligibility *types.MerkleProof,
	at time.Time,
) (*types.VoteProof, *types.MerkleProof) {
	nullifier := ballot.DeriveNullifier(voter, electionID, secret)
	commitment := ballot.DeriveCommitment(voter, candidateID, secret)
	vp := &types.VoteProof{
		Nullifier:   nullifier,
		Commitment:  commitment,
		Proof:       Placeholder(nullifier, commitment),
		CandidateID: candidateID,
		Timestamp:   at.Unix(),
	}
	mp := eligibility.Copy()
	if mp == nil {
		mp = &types.MerkleProof{Siblings: []common.Hash{}}
	}
	return vp, mp
}

// Placeholder returns the proof words bound to nullifier and commitment.
// Word i is keccak256(nullifier ‖ commitment ‖ uint256(i)); a zero word is
// replaced by one.
func Placeholder(nullifier, commitment common.Hash) []uint256.Int {
	words := make([]uint256.Int, types.ProofWords)
	for i := range words {
		idx := uint256.NewInt(uint64(i)).Bytes32()
		h := ethcrypto.Keccak256(nullifier.Bytes(), commitment.Bytes(), idx[:])
		words[i].SetBytes32(h)
		if words[i].IsZero() {
			words[i].SetOne()
		}
	}
	return words
}

// WellFormed reports whether words has exactly the expected number of words,
// all of them non-zero.
func WellFormed(words []uint256.Int) bool {
	if len(words) != types.ProofWords {
		return false
	}
	for i := range words {
		if words[i].IsZero() {
			return false
		}
	}
	return true
}

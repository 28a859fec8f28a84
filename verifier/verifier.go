// Package verifier holds the acceptance predicate of a vote attempt. The
// ledger evaluates it under the election lock and the preflight mirror
// evaluates it against a fetched view, so both reach the same verdict for the
// same inputs.
package verifier

import (
	"fmt"
	"slices"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/vocdoni/ballot-ledger/census"
	"github.com/vocdoni/ballot-ledger/proof"
	"github.com/vocdoni/ballot-ledger/types"
)

// ElectionView is the part of an election's state a vote attempt is checked
// against. NullifierUsed refers to the nullifier of the attempt the view was
// fetched for.
type ElectionView struct {
	ElectionID       uint64        `json:"electionId"`
	StartTime        time.Time     `json:"startTime"`
	EndTime          time.Time     `json:"endTime"`
	IsActive         bool          `json:"isActive"`
	MerkleRoot       common.Hash   `json:"merkleRoot"`
	ActiveCandidates []uint64      `json:"activeCandidates"`
	Nullifier        common.Hash   `json:"nullifier"`
	NullifierUsed    bool          `json:"nullifierUsed"`
	MaxProofAge      time.Duration `json:"maxProofAge"`
	MaxClockSkew     time.Duration `json:"maxClockSkew"`
}

// Policy bounds the accepted vote timestamps.
type Policy struct {
	MaxProofAge  time.Duration
	MaxClockSkew time.Duration
}

// DefaultPolicy returns the freshness window of the proof package.
func DefaultPolicy() Policy {
	return Policy{MaxProofAge: proof.MaxProofAge, MaxClockSkew: proof.MaxClockSkew}
}

// NewElectionView snapshots e for a vote attempt spending nullifier.
func NewElectionView(e *types.Election, nullifier common.Hash, used bool, policy Policy) *ElectionView {
	view := &ElectionView{
		ElectionID:    e.ID,
		StartTime:     e.StartTime,
		EndTime:       e.EndTime,
		IsActive:      e.IsActive,
		MerkleRoot:    e.MerkleRoot,
		Nullifier:     nullifier,
		NullifierUsed: used,
		MaxProofAge:   policy.MaxProofAge,
		MaxClockSkew:  policy.MaxClockSkew,
	}
	for _, c := range e.Candidates {
		if c.IsActive {
			view.ActiveCandidates = append(view.ActiveCandidates, c.ID)
		}
	}
	return view
}

// Check decides whether voter may cast vp with eligibility proof mp at now.
// Conditions are evaluated in a fixed order and the first failing one is
// reported.
func Check(view *ElectionView, voter common.Address, vp *types.VoteProof, mp *types.MerkleProof, now time.Time) error {
	if view == nil {
		return ErrElectionNotFound
	}
	switch {
	case !view.IsActive:
		return fmt.Errorf("%w: election %d is closed", ErrTiming, view.ElectionID)
	case now.Before(view.StartTime):
		return fmt.Errorf("%w: election %d has not started", ErrTiming, view.ElectionID)
	case now.After(view.EndTime):
		return fmt.Errorf("%w: election %d has ended", ErrTiming, view.ElectionID)
	}
	if vp == nil || mp == nil {
		return fmt.Errorf("%w: missing vote or eligibility proof", ErrProofMalformed)
	}
	if !proof.WellFormed(vp.Proof) {
		return fmt.Errorf("%w: want %d non-zero words, got %d words",
			ErrProofMalformed, types.ProofWords, len(vp.Proof))
	}
	if vp.Nullifier != view.Nullifier {
		return fmt.Errorf("%w: view fetched for nullifier %s", ErrProofMalformed, view.Nullifier.Hex())
	}
	ts := time.Unix(vp.Timestamp, 0)
	if ts.After(now.Add(view.MaxClockSkew)) {
		return fmt.Errorf("%w: timestamp %d is in the future", ErrTiming, vp.Timestamp)
	}
	if now.Sub(ts) > view.MaxProofAge {
		return fmt.Errorf("%w: timestamp %d is older than %s", ErrTiming, vp.Timestamp, view.MaxProofAge)
	}
	if view.NullifierUsed {
		return fmt.Errorf("%w: %s", ErrReplay, vp.Nullifier.Hex())
	}
	if !census.Verify(census.HashLeaf(voter), mp, view.MerkleRoot) {
		return fmt.Errorf("%w: %s not included in root %s", ErrEligibility, voter.Hex(), view.MerkleRoot.Hex())
	}
	if !slices.Contains(view.ActiveCandidates, vp.CandidateID) {
		return fmt.Errorf("%w: %d is not an active candidate", ErrCandidate, vp.CandidateID)
	}
	return nil
}

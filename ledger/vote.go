package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/vocdoni/ballot-ledger/log"
	"github.com/vocdoni/ballot-ledger/storage"
	"github.com/vocdoni/ballot-ledger/types"
	"github.com/vocdoni/ballot-ledger/verifier"
)

// CastVote records the vote of voter in an election. The nullifier is marked
// spent and the tallies incremented in one persisted transition; on any
// rejection nothing changes.
func (l *Ledger) CastVote(
	ctx context.Context,
	voter common.Address,
	electionID uint64,
	vp *types.VoteProof,
	mp *types.MerkleProof,
) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	es, err := l.state(electionID)
	if err != nil {
		return err
	}
	es.mu.Lock()
	defer es.mu.Unlock()

	var nullifier common.Hash
	if vp != nil {
		nullifier = vp.Nullifier
	}
	_, used := es.nullifiers[nullifier]
	view := verifier.NewElectionView(es.election, nullifier, used, l.policy)
	if err := verifier.Check(view, voter, vp, mp, l.now()); err != nil {
		log.Debugw("vote rejected", "electionId", electionID, "nullifier", nullifier.Hex(), "reason", err.Error())
		return err
	}

	next := es.election.Clone()
	next.Candidate(vp.CandidateID).VoteCount++
	next.TotalVotes++
	if err := l.storage.CommitVote(next, vp.Nullifier, vp.Commitment); err != nil {
		if errors.Is(err, storage.ErrNullifierUsed) {
			return fmt.Errorf("%w: %s", ErrReplay, vp.Nullifier.Hex())
		}
		log.Errorw(err, "failed to persist vote")
		return fmt.Errorf("persist vote: %w", err)
	}
	es.election = next
	es.nullifiers[vp.Nullifier] = struct{}{}
	log.Infow("vote accepted",
		"electionId", electionID,
		"nullifier", vp.Nullifier.Hex(),
		"totalVotes", next.TotalVotes)
	return nil
}

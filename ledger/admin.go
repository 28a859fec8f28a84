package ledger

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/vocdoni/ballot-ledger/log"
	"github.com/vocdoni/ballot-ledger/types"
)

// UpdateMerkleRoot replaces the eligibility root of an election. Only the
// ledger owner may call it, in any phase; proofs against the previous root
// stop verifying at once. Updates after voting started are logged as
// warnings.
func (l *Ledger) UpdateMerkleRoot(ctx context.Context, caller common.Address, electionID uint64, newRoot common.Hash) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if caller != l.owner {
		return fmt.Errorf("%w: %s is not the ledger owner", ErrAuthorization, caller.Hex())
	}
	if newRoot == (common.Hash{}) {
		return fmt.Errorf("%w: empty merkle root", ErrConstruction)
	}
	return l.transition(electionID, func(e *types.Election) error {
		if status := e.Status(l.now()); status != types.ElectionStatusScheduled {
			log.Warnw("merkle root updated after voting started",
				"electionId", electionID, "status", status.String(), "votes", e.TotalVotes)
		}
		old := e.MerkleRoot
		e.MerkleRoot = newRoot
		log.Infow("merkle root updated", "electionId", electionID, "old", old.Hex(), "new", newRoot.Hex())
		return nil
	})
}

// EndElection closes an election once its end time has passed. Only the
// creator may call it, and only once.
func (l *Ledger) EndElection(ctx context.Context, caller common.Address, electionID uint64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return l.transition(electionID, func(e *types.Election) error {
		if caller != e.Creator {
			return fmt.Errorf("%w: %s is not the creator of election %d", ErrAuthorization, caller.Hex(), electionID)
		}
		if !e.IsActive {
			return fmt.Errorf("%w: %d", ErrElectionClosed, electionID)
		}
		if now := l.now(); !now.After(e.EndTime) {
			return fmt.Errorf("%w: election %d ends at %d", ErrTiming, electionID, e.EndTime.Unix())
		}
		e.IsActive = false
		log.Infow("election closed", "electionId", electionID, "totalVotes", e.TotalVotes)
		return nil
	})
}

// SetCandidateActive enables or disables a candidate before voting starts.
// Only the creator may call it.
func (l *Ledger) SetCandidateActive(ctx context.Context, caller common.Address, electionID, candidateID uint64, active bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return l.transition(electionID, func(e *types.Election) error {
		if caller != e.Creator {
			return fmt.Errorf("%w: %s is not the creator of election %d", ErrAuthorization, caller.Hex(), electionID)
		}
		switch e.Status(l.now()) {
		case types.ElectionStatusClosed:
			return fmt.Errorf("%w: %d", ErrElectionClosed, electionID)
		case types.ElectionStatusScheduled:
		default:
			return fmt.Errorf("%w: candidates of election %d are frozen once voting starts", ErrTiming, electionID)
		}
		c := e.Candidate(candidateID)
		if c == nil {
			return fmt.Errorf("%w: %d", ErrCandidate, candidateID)
		}
		c.IsActive = active
		log.Infow("candidate updated", "electionId", electionID, "candidateId", candidateID, "active", active)
		return nil
	})
}

// transition applies fn to a copy of the election under its lock, persists
// the result and only then publishes it.
func (l *Ledger) transition(electionID uint64, fn func(e *types.Election) error) error {
	es, err := l.state(electionID)
	if err != nil {
		return err
	}
	es.mu.Lock()
	defer es.mu.Unlock()

	next := es.election.Clone()
	if err := fn(next); err != nil {
		log.Debugw("election update rejected", "electionId", electionID, "reason", err.Error())
		return err
	}
	if err := l.storage.UpdateElection(next); err != nil {
		log.Errorw(err, "failed to persist election update")
		return fmt.Errorf("persist election %d: %w", electionID, err)
	}
	es.election = next
	return nil
}

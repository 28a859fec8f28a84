package ledger

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/vocdoni/ballot-ledger/types"
	"github.com/vocdoni/ballot-ledger/verifier"
)

// ElectionCount returns the number of elections created so far.
func (l *Ledger) ElectionCount() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.count
}

// Election returns a copy of an election.
func (l *Ledger) Election(electionID uint64) (*types.Election, error) {
	es, err := l.state(electionID)
	if err != nil {
		return nil, err
	}
	es.mu.Lock()
	defer es.mu.Unlock()
	return es.election.Clone(), nil
}

// Candidate returns a copy of one candidate of an election.
func (l *Ledger) Candidate(electionID, candidateID uint64) (*types.Candidate, error) {
	e, err := l.Election(electionID)
	if err != nil {
		return nil, err
	}
	c := e.Candidate(candidateID)
	if c == nil {
		return nil, fmt.Errorf("%w: %d", ErrCandidate, candidateID)
	}
	return c, nil
}

// CandidateIDs lists the candidate ids of an election.
func (l *Ledger) CandidateIDs(electionID uint64) ([]uint64, error) {
	e, err := l.Election(electionID)
	if err != nil {
		return nil, err
	}
	return e.CandidateIDs(), nil
}

// IsNullifierUsed reports whether nullifier was spent by an accepted vote of
// the election.
func (l *Ledger) IsNullifierUsed(electionID uint64, nullifier common.Hash) (bool, error) {
	es, err := l.state(electionID)
	if err != nil {
		return false, err
	}
	es.mu.Lock()
	defer es.mu.Unlock()
	_, used := es.nullifiers[nullifier]
	return used, nil
}

// IsAuthorizedVoter reports whether voter is in the voter list given at
// creation. Eligibility at vote time is decided by the Merkle root alone.
func (l *Ledger) IsAuthorizedVoter(electionID uint64, voter common.Address) (bool, error) {
	es, err := l.state(electionID)
	if err != nil {
		return false, err
	}
	es.mu.Lock()
	defer es.mu.Unlock()
	_, ok := es.voters[voter]
	return ok, nil
}

// Status returns the lifecycle phase of an election now.
func (l *Ledger) Status(electionID uint64) (types.ElectionStatus, error) {
	e, err := l.Election(electionID)
	if err != nil {
		return 0, err
	}
	return e.Status(l.now()), nil
}

// Results returns the final tally. It is only available once the election is
// closed.
func (l *Ledger) Results(electionID uint64) (*types.Results, error) {
	e, err := l.Election(electionID)
	if err != nil {
		return nil, err
	}
	if e.IsActive {
		return nil, fmt.Errorf("%w: election %d is not closed", ErrTiming, electionID)
	}
	return &types.Results{
		ElectionID: e.ID,
		TotalVotes: e.TotalVotes,
		Candidates: e.Candidates,
	}, nil
}

// View returns the state a vote attempt spending nullifier is checked
// against, for off-chain verification.
func (l *Ledger) View(electionID uint64, nullifier common.Hash) (*verifier.ElectionView, error) {
	es, err := l.state(electionID)
	if err != nil {
		return nil, err
	}
	es.mu.Lock()
	defer es.mu.Unlock()
	_, used := es.nullifiers[nullifier]
	return verifier.NewElectionView(es.election, nullifier, used, l.policy), nil
}

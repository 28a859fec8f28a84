// Package ledger hosts the election state machine: election creation, vote
// casting with double-vote prevention, eligibility root updates and closing.
//
// Every election lives in its own slot of an in-memory arena guarded by a
// per-election mutex, which serializes all transitions of that election the
// way a replicated ledger would. Each transition is persisted before it
// becomes visible in memory, and New reloads the persisted state.
package ledger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/vocdoni/ballot-ledger/log"
	"github.com/vocdoni/ballot-ledger/storage"
	"github.com/vocdoni/ballot-ledger/types"
	"github.com/vocdoni/ballot-ledger/verifier"
)

// Option configures a Ledger.
type Option func(*Ledger)

// WithClock replaces the wall clock, mostly for tests.
func WithClock(clock func() time.Time) Option {
	return func(l *Ledger) { l.clock = clock }
}

// WithPolicy sets the vote timestamp freshness window.
func WithPolicy(policy verifier.Policy) Option {
	return func(l *Ledger) { l.policy = policy }
}

type electionState struct {
	mu         sync.Mutex
	election   *types.Election
	voters     map[common.Address]struct{}
	nullifiers map[common.Hash]struct{}
}

func newElectionState(e *types.Election) *electionState {
	es := &electionState{
		election:   e,
		voters:     make(map[common.Address]struct{}, len(e.Voters)),
		nullifiers: make(map[common.Hash]struct{}),
	}
	for _, v := range e.Voters {
		es.voters[v] = struct{}{}
	}
	return es
}

// Ledger is the election state machine.
type Ledger struct {
	owner   common.Address
	storage *storage.Storage
	clock   func() time.Time
	policy  verifier.Policy

	mu    sync.RWMutex
	arena map[uint64]*electionState
	count uint64
}

// New returns a ledger owned by owner, reloading every election and spent
// nullifier found in st.
func New(owner common.Address, st *storage.Storage, opts ...Option) (*Ledger, error) {
	if owner == (common.Address{}) {
		return nil, fmt.Errorf("ledger owner cannot be the zero address")
	}
	if st == nil {
		return nil, fmt.Errorf("nil storage")
	}
	l := &Ledger{
		owner:   owner,
		storage: st,
		clock:   time.Now,
		policy:  verifier.DefaultPolicy(),
		arena:   make(map[uint64]*electionState),
	}
	for _, opt := range opts {
		opt(l)
	}
	if err := l.reload(); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *Ledger) reload() error {
	count, err := l.storage.ElectionCount()
	if err != nil {
		return fmt.Errorf("load election count: %w", err)
	}
	elections, err := l.storage.Elections()
	if err != nil {
		return fmt.Errorf("load elections: %w", err)
	}
	if uint64(len(elections)) != count {
		return fmt.Errorf("storage holds %d elections, counter says %d", len(elections), count)
	}
	spent := 0
	for _, e := range elections {
		es := newElectionState(e)
		if err := l.storage.Nullifiers(e.ID, func(n, _ common.Hash) bool {
			es.nullifiers[n] = struct{}{}
			return true
		}); err != nil {
			return fmt.Errorf("load nullifiers of election %d: %w", e.ID, err)
		}
		if uint64(len(es.nullifiers)) != e.TotalVotes {
			return fmt.Errorf("election %d has %d votes but %d spent nullifiers",
				e.ID, e.TotalVotes, len(es.nullifiers))
		}
		spent += len(es.nullifiers)
		l.arena[e.ID] = es
	}
	l.count = count
	if count > 0 {
		log.Infow("ledger state loaded", "elections", count, "nullifiers", spent)
	}
	return nil
}

// Owner returns the principal allowed to update eligibility roots.
func (l *Ledger) Owner() common.Address {
	return l.owner
}

// Policy returns the vote timestamp freshness window.
func (l *Ledger) Policy() verifier.Policy {
	return l.policy
}

// now returns the clock truncated to unix seconds, the resolution of every
// stored time.
func (l *Ledger) now() time.Time {
	return time.Unix(l.clock().Unix(), 0)
}

func (l *Ledger) state(electionID uint64) (*electionState, error) {
	l.mu.RLock()
	es, ok := l.arena[electionID]
	l.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrElectionNotFound, electionID)
	}
	return es, nil
}

// CreateElection registers a new election created by creator and returns its
// id. Ids are sequential starting at 1.
func (l *Ledger) CreateElection(ctx context.Context, creator common.Address, params *types.ElectionParams) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if params == nil {
		return 0, fmt.Errorf("%w: missing parameters", ErrConstruction)
	}
	now := l.now()
	start := time.Unix(params.StartTime.Unix(), 0)
	end := time.Unix(params.EndTime.Unix(), 0)
	if !start.After(now) {
		return 0, fmt.Errorf("%w: start time %d is not in the future", ErrTiming, start.Unix())
	}
	if !end.After(start) {
		return 0, fmt.Errorf("%w: end time %d is not after start time %d", ErrTiming, end.Unix(), start.Unix())
	}
	if err := validateCandidates(params); err != nil {
		return 0, err
	}
	if err := validateVoters(params.AuthorizedVoters); err != nil {
		return 0, err
	}
	if params.MerkleRoot == (common.Hash{}) {
		return 0, fmt.Errorf("%w: empty merkle root", ErrConstruction)
	}

	e := &types.Election{
		Title:          params.Title,
		StartTime:      start,
		EndTime:        end,
		IsActive:       true,
		CandidateCount: uint64(len(params.CandidateNames)),
		Creator:        creator,
		MerkleRoot:     params.MerkleRoot,
		Voters:         append([]common.Address{}, params.AuthorizedVoters...),
		CreatedAt:      now,
	}
	for i, name := range params.CandidateNames {
		e.Candidates = append(e.Candidates, &types.Candidate{
			ID:          uint64(i + 1),
			Name:        name,
			Description: params.CandidateDescriptions[i],
			ImageURL:    params.CandidateImageURLs[i],
			IsActive:    true,
			CreatedAt:   now,
		})
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	e.ID = l.count + 1
	if err := l.storage.NewElection(e); err != nil {
		log.Errorw(err, "failed to store election")
		return 0, fmt.Errorf("store election: %w", err)
	}
	l.arena[e.ID] = newElectionState(e.Clone())
	l.count = e.ID
	log.Infow("election created",
		"electionId", e.ID,
		"creator", creator.Hex(),
		"candidates", e.CandidateCount,
		"voters", len(e.Voters),
		"start", e.StartTime.Unix(),
		"end", e.EndTime.Unix(),
		"root", e.MerkleRoot.Hex())
	return e.ID, nil
}

func validateCandidates(params *types.ElectionParams) error {
	n := len(params.CandidateNames)
	if n < 2 {
		return fmt.Errorf("%w: at least 2 candidates required, got %d", ErrConstruction, n)
	}
	if len(params.CandidateDescriptions) != n || len(params.CandidateImageURLs) != n {
		return fmt.Errorf("%w: candidate attribute lists differ in length (%d names, %d descriptions, %d image urls)",
			ErrConstruction, n, len(params.CandidateDescriptions), len(params.CandidateImageURLs))
	}
	for i, name := range params.CandidateNames {
		if name == "" {
			return fmt.Errorf("%w: candidate %d has no name", ErrConstruction, i+1)
		}
	}
	return nil
}

func validateVoters(voters []common.Address) error {
	seen := make(map[common.Address]struct{}, len(voters))
	for _, v := range voters {
		if v == (common.Address{}) {
			return fmt.Errorf("%w: zero address in voter list", ErrConstruction)
		}
		if _, dup := seen[v]; dup {
			return fmt.Errorf("%w: duplicate voter %s", ErrConstruction, v.Hex())
		}
		seen[v] = struct{}{}
	}
	return nil
}

// Package preflight predicts whether the ledger will accept a vote before it
// is submitted, by running the ledger's acceptance predicate against a
// fetched view of the election.
package preflight

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"

	"github.com/vocdoni/ballot-ledger/ledger"
	"github.com/vocdoni/ballot-ledger/types"
	"github.com/vocdoni/ballot-ledger/verifier"
)

// Source provides the view of an election for a given nullifier. It must
// return an error wrapping verifier.ErrElectionNotFound for unknown
// elections.
type Source interface {
	View(ctx context.Context, electionID uint64, nullifier common.Hash) (*verifier.ElectionView, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context, electionID uint64, nullifier common.Hash) (*verifier.ElectionView, error)

func (f SourceFunc) View(ctx context.Context, electionID uint64, nullifier common.Hash) (*verifier.ElectionView, error) {
	return f(ctx, electionID, nullifier)
}

// LedgerSource reads views from an in-process ledger.
func LedgerSource(l *ledger.Ledger) Source {
	return SourceFunc(func(ctx context.Context, electionID uint64, nullifier common.Hash) (*verifier.ElectionView, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return l.View(electionID, nullifier)
	})
}

// Attempt is one vote to be checked.
type Attempt struct {
	Voter       common.Address
	ElectionID  uint64
	VoteProof   *types.VoteProof
	MerkleProof *types.MerkleProof
}

// Mirror checks vote attempts off-chain.
type Mirror struct {
	source  Source
	clock   func() time.Time
	workers int
}

// Option configures a Mirror.
type Option func(*Mirror)

// WithClock replaces the wall clock.
func WithClock(clock func() time.Time) Option {
	return func(m *Mirror) { m.clock = clock }
}

// WithWorkers bounds the number of attempts CheckBatch verifies at once.
func WithWorkers(n int) Option {
	return func(m *Mirror) {
		if n > 0 {
			m.workers = n
		}
	}
}

// New returns a Mirror reading election views from source.
func New(source Source, opts ...Option) *Mirror {
	m := &Mirror{
		source:  source,
		clock:   time.Now,
		workers: runtime.NumCPU(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Check returns the error the ledger would return for the attempt now, or
// nil if it would be accepted.
func (m *Mirror) Check(ctx context.Context, a Attempt) error {
	var nullifier common.Hash
	if a.VoteProof != nil {
		nullifier = a.VoteProof.Nullifier
	}
	view, err := m.source.View(ctx, a.ElectionID, nullifier)
	if err != nil {
		return fmt.Errorf("fetch election %d: %w", a.ElectionID, err)
	}
	return verifier.Check(view, a.Voter, a.VoteProof, a.MerkleProof, time.Unix(m.clock().Unix(), 0))
}

// CheckBatch checks every attempt concurrently and returns their verdicts
// in order. The returned error is only set if ctx is cancelled before all
// attempts were checked.
func (m *Mirror) CheckBatch(ctx context.Context, attempts []Attempt) ([]error, error) {
	verdicts := make([]error, len(attempts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.workers)
	for i, a := range attempts {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			verdicts[i] = m.Check(gctx, a)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return verdicts, err
	}
	return verdicts, nil
}

package ledger

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	qt "github.com/frankban/quicktest"

	"github.com/vocdoni/ballot-ledger/census"
	"github.com/vocdoni/ballot-ledger/db/metadb"
	"github.com/vocdoni/ballot-ledger/internal/testutil"
	"github.com/vocdoni/ballot-ledger/proof"
	"github.com/vocdoni/ballot-ledger/types"
)

func TestVoteThenReplayWithOtherCandidate(t *testing.T) {
	c := qt.New(t)
	ctx := context.Background()
	e := testutil.NewElectorate(2)
	l, _, id := newOpenElection(t, e, 2)

	vp, mp := e.Vote(0, id, 1, T.Add(10*time.Second))
	c.Assert(l.CastVote(ctx, e.Voters[0], id, vp, mp), qt.IsNil)

	a, err := l.Candidate(id, 1)
	c.Assert(err, qt.IsNil)
	c.Assert(a.VoteCount, qt.Equals, uint64(1))
	election, err := l.Election(id)
	c.Assert(err, qt.IsNil)
	c.Assert(election.TotalVotes, qt.Equals, uint64(1))

	// same secret, so same nullifier, now voting for B
	vp, mp = e.Vote(0, id, 2, T.Add(10*time.Second))
	c.Assert(l.CastVote(ctx, e.Voters[0], id, vp, mp), qt.ErrorIs, ErrReplay)

	election, err = l.Election(id)
	c.Assert(err, qt.IsNil)
	c.Assert(election.TotalVotes, qt.Equals, uint64(1))
	c.Assert(election.Candidates[0].VoteCount, qt.Equals, uint64(1))
	c.Assert(election.Candidates[1].VoteCount, qt.Equals, uint64(0))

	used, err := l.IsNullifierUsed(id, vp.Nullifier)
	c.Assert(err, qt.IsNil)
	c.Assert(used, qt.IsTrue)
}

func TestProofAgainstReplacedRoot(t *testing.T) {
	c := qt.New(t)
	ctx := context.Background()
	e := testutil.NewElectorate(2)
	l, clock, id := newOpenElection(t, e, 2)

	// the owner widens the census while the election is open
	widened := append(append([]common.Address{}, e.Voters...), testutil.DeterministicAddress(77))
	tree, err := census.BuildTree(widened)
	c.Assert(err, qt.IsNil)
	c.Assert(l.UpdateMerkleRoot(ctx, testOwner, id, tree.Root()), qt.IsNil)

	now := clock.Now()
	vp, stale := e.Vote(1, id, 2, now)
	c.Assert(l.CastVote(ctx, e.Voters[1], id, vp, stale), qt.ErrorIs, ErrEligibility)

	fresh, err := tree.ProofFor(1)
	c.Assert(err, qt.IsNil)
	c.Assert(l.CastVote(ctx, e.Voters[1], id, vp, fresh), qt.IsNil)
}

func TestCreateElection(t *testing.T) {
	ctx := context.Background()
	e := testutil.NewElectorate(3)
	now := T.Add(-time.Hour)
	valid := func() *types.ElectionParams { return e.Params(T, T.Add(time.Hour), 3) }

	tests := []struct {
		name   string
		mutate func(p *types.ElectionParams)
		want   error
	}{
		{"start in the past", func(p *types.ElectionParams) { p.StartTime = now.Add(-time.Second) }, ErrTiming},
		{"start now", func(p *types.ElectionParams) { p.StartTime = now }, ErrTiming},
		{"end before start", func(p *types.ElectionParams) { p.EndTime = p.StartTime.Add(-time.Second) }, ErrTiming},
		{"end equals start", func(p *types.ElectionParams) { p.EndTime = p.StartTime }, ErrTiming},
		{"one candidate", func(p *types.ElectionParams) {
			p.CandidateNames = p.CandidateNames[:1]
			p.CandidateDescriptions = p.CandidateDescriptions[:1]
			p.CandidateImageURLs = p.CandidateImageURLs[:1]
		}, ErrConstruction},
		{"missing description", func(p *types.ElectionParams) {
			p.CandidateDescriptions = p.CandidateDescriptions[:2]
		}, ErrConstruction},
		{"extra image", func(p *types.ElectionParams) {
			p.CandidateImageURLs = append(p.CandidateImageURLs, "x")
		}, ErrConstruction},
		{"unnamed candidate", func(p *types.ElectionParams) { p.CandidateNames[1] = "" }, ErrConstruction},
		{"zero voter", func(p *types.ElectionParams) {
			p.AuthorizedVoters = append(p.AuthorizedVoters, common.Address{})
		}, ErrConstruction},
		{"duplicate voter", func(p *types.ElectionParams) {
			p.AuthorizedVoters = append(p.AuthorizedVoters, p.AuthorizedVoters[0])
		}, ErrConstruction},
		{"zero root", func(p *types.ElectionParams) { p.MerkleRoot = common.Hash{} }, ErrConstruction},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c := qt.New(t)
			l := newTestLedger(t, metadb.NewTest(t), testutil.NewClock(now))
			p := valid()
			tc.mutate(p)
			_, err := l.CreateElection(ctx, testCreator, p)
			c.Assert(err, qt.ErrorIs, tc.want)
			c.Assert(l.ElectionCount(), qt.Equals, uint64(0))
		})
	}

	t.Run("sequential ids", func(t *testing.T) {
		c := qt.New(t)
		l := newTestLedger(t, metadb.NewTest(t), testutil.NewClock(now))
		for want := uint64(1); want <= 3; want++ {
			id, err := l.CreateElection(ctx, testCreator, valid())
			c.Assert(err, qt.IsNil)
			c.Assert(id, qt.Equals, want)
		}
		c.Assert(l.ElectionCount(), qt.Equals, uint64(3))

		got, err := l.Election(2)
		c.Assert(err, qt.IsNil)
		c.Assert(got.Creator, qt.Equals, testCreator)
		c.Assert(got.CandidateCount, qt.Equals, uint64(3))
		c.Assert(got.MerkleRoot, qt.Equals, e.Tree.Root())
		ids, err := l.CandidateIDs(2)
		c.Assert(err, qt.IsNil)
		c.Assert(ids, qt.DeepEquals, []uint64{1, 2, 3})
		for _, v := range e.Voters {
			ok, err := l.IsAuthorizedVoter(2, v)
			c.Assert(err, qt.IsNil)
			c.Assert(ok, qt.IsTrue)
		}
		ok, err := l.IsAuthorizedVoter(2, testutil.DeterministicAddress(555))
		c.Assert(err, qt.IsNil)
		c.Assert(ok, qt.IsFalse)
	})

	t.Run("nil params", func(t *testing.T) {
		l := newTestLedger(t, metadb.NewTest(t), testutil.NewClock(now))
		_, err := l.CreateElection(ctx, testCreator, nil)
		qt.Assert(t, err, qt.ErrorIs, ErrConstruction)
	})
}

func TestVotingWindow(t *testing.T) {
	c := qt.New(t)
	ctx := context.Background()
	e := testutil.NewElectorate(4)
	l, clock, id := newOpenElection(t, e, 2)

	for _, at := range []time.Time{T.Add(-time.Second), T.Add(time.Hour + time.Second)} {
		clock.Set(at)
		vp, mp := e.Vote(0, id, 1, at)
		c.Assert(l.CastVote(ctx, e.Voters[0], id, vp, mp), qt.ErrorIs, ErrTiming)
	}

	// both window bounds are inclusive
	for i, at := range []time.Time{T, T.Add(time.Hour)} {
		clock.Set(at)
		vp, mp := e.Vote(i, id, 1, at)
		c.Assert(l.CastVote(ctx, e.Voters[i], id, vp, mp), qt.IsNil)
	}

	status, err := l.Status(id)
	c.Assert(err, qt.IsNil)
	c.Assert(status, qt.Equals, types.ElectionStatusOpen)
	clock.Set(T.Add(2 * time.Hour))
	status, err = l.Status(id)
	c.Assert(err, qt.IsNil)
	c.Assert(status, qt.Equals, types.ElectionStatusEnded)
}

func TestUnknownElection(t *testing.T) {
	c := qt.New(t)
	ctx := context.Background()
	e := testutil.NewElectorate(2)
	l, _, id := newOpenElection(t, e, 2)

	vp, mp := e.Vote(0, id+1, 1, T.Add(10*time.Second))
	c.Assert(l.CastVote(ctx, e.Voters[0], id+1, vp, mp), qt.ErrorIs, ErrElectionNotFound)
	_, err := l.Election(id + 1)
	c.Assert(err, qt.ErrorIs, ErrElectionNotFound)
	_, err = l.Results(0)
	c.Assert(err, qt.ErrorIs, ErrElectionNotFound)
	c.Assert(l.EndElection(ctx, testCreator, id+1), qt.ErrorIs, ErrElectionNotFound)
	c.Assert(l.UpdateMerkleRoot(ctx, testOwner, id+1, common.HexToHash("0x01")), qt.ErrorIs, ErrElectionNotFound)
	_, err = l.Candidate(id, 3)
	c.Assert(err, qt.ErrorIs, ErrCandidate)
}

func TestVoteFixtures(t *testing.T) {
	c := qt.New(t)
	ctx := context.Background()
	e := testutil.NewElectorate(testutil.FixtureVoters)
	l, clock, id := newOpenElectionWithInactive(t, e)
	now := clock.Now()

	accepted := uint64(0)
	for _, tc := range testutil.VoteCases(e, id, now) {
		err := l.CastVote(ctx, tc.Voter, id, tc.VoteProof, tc.MerkleProof)
		if tc.Want == nil {
			c.Assert(err, qt.IsNil, qt.Commentf("%s", tc.Name))
			accepted++
			continue
		}
		c.Assert(err, qt.ErrorIs, tc.Want, qt.Commentf("%s", tc.Name))
	}
	election, err := l.Election(id)
	c.Assert(err, qt.IsNil)
	c.Assert(election.TotalVotes, qt.Equals, accepted)
	c.Assert(election.TallySum(), qt.Equals, accepted)
	c.Assert(election.Candidates[2].VoteCount, qt.Equals, uint64(0))
}

// newOpenElectionWithInactive creates a three candidate election whose third
// candidate is disabled before voting starts.
func newOpenElectionWithInactive(t *testing.T, e *testutil.Electorate) (*Ledger, *testutil.Clock, uint64) {
	clock := testutil.NewClock(T.Add(-time.Minute))
	l := newTestLedger(t, metadb.NewTest(t), clock)
	ctx := context.Background()
	id, err := l.CreateElection(ctx, testCreator, e.Params(T, T.Add(time.Hour), 3))
	qt.Assert(t, err, qt.IsNil)
	qt.Assert(t, l.SetCandidateActive(ctx, testCreator, id, 3, false), qt.IsNil)
	clock.Set(T.Add(10 * time.Second))
	return l, clock, id
}

func TestTallyInvariantRandomized(t *testing.T) {
	ctx := context.Background()
	for seed := uint64(1); seed <= 5; seed++ {
		c := qt.New(t)
		rng := rand.New(rand.NewPCG(seed, seed*31))
		e := testutil.NewElectorate(16)
		l, clock, id := newOpenElection(t, e, 4)

		voted := map[int]bool{}
		for range 200 {
			i := rng.IntN(len(e.Voters))
			candidate := uint64(rng.IntN(6)) // 0 and 5 are invalid
			clock.Set(T.Add(time.Duration(rng.IntN(3600)) * time.Second))
			vp, mp := e.Vote(i, id, candidate, clock.Now())
			err := l.CastVote(ctx, e.Voters[i], id, vp, mp)
			switch {
			case voted[i]:
				c.Assert(err, qt.ErrorIs, ErrReplay)
			case candidate == 0 || candidate > 4:
				c.Assert(err, qt.ErrorIs, ErrCandidate)
			default:
				c.Assert(err, qt.IsNil)
				voted[i] = true
			}
			election, err := l.Election(id)
			c.Assert(err, qt.IsNil)
			c.Assert(election.TallySum(), qt.Equals, election.TotalVotes)
			c.Assert(election.TotalVotes, qt.Equals, uint64(len(voted)))
		}
	}
}

func TestConcurrentDoubleSubmission(t *testing.T) {
	c := qt.New(t)
	ctx := context.Background()
	e := testutil.NewElectorate(4)
	l, clock, id := newOpenElection(t, e, 3)

	const attempts = 32
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		accepted int
		replays  int
	)
	for n := range attempts {
		vp, mp := e.Vote(2, id, uint64(n%3)+1, clock.Now())
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := l.CastVote(ctx, e.Voters[2], id, vp, mp)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				accepted++
			case errors.Is(err, ErrReplay):
				replays++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()
	c.Assert(accepted, qt.Equals, 1)
	c.Assert(replays, qt.Equals, attempts-1)

	election, err := l.Election(id)
	c.Assert(err, qt.IsNil)
	c.Assert(election.TotalVotes, qt.Equals, uint64(1))
	c.Assert(election.TallySum(), qt.Equals, uint64(1))
}

func TestConcurrentDistinctVoters(t *testing.T) {
	c := qt.New(t)
	ctx := context.Background()
	e := testutil.NewElectorate(24)
	l, clock, id := newOpenElection(t, e, 2)

	var wg sync.WaitGroup
	errs := make([]error, len(e.Voters))
	for i := range e.Voters {
		vp, mp := e.Vote(i, id, uint64(i%2)+1, clock.Now())
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = l.CastVote(ctx, e.Voters[i], id, vp, mp)
		}()
	}
	wg.Wait()
	for i, err := range errs {
		c.Assert(err, qt.IsNil, qt.Commentf("voter %d", i))
	}
	election, err := l.Election(id)
	c.Assert(err, qt.IsNil)
	c.Assert(election.TotalVotes, qt.Equals, uint64(24))
	c.Assert(election.Candidates[0].VoteCount, qt.Equals, uint64(12))
	c.Assert(election.Candidates[1].VoteCount, qt.Equals, uint64(12))
}

func TestEndElectionAndResults(t *testing.T) {
	c := qt.New(t)
	ctx := context.Background()
	e := testutil.NewElectorate(3)
	l, clock, id := newOpenElection(t, e, 2)

	vp, mp := e.Vote(0, id, 2, clock.Now())
	c.Assert(l.CastVote(ctx, e.Voters[0], id, vp, mp), qt.IsNil)

	_, err := l.Results(id)
	c.Assert(err, qt.ErrorIs, ErrTiming)
	c.Assert(l.EndElection(ctx, testCreator, id), qt.ErrorIs, ErrTiming)

	clock.Set(T.Add(time.Hour))
	c.Assert(l.EndElection(ctx, testCreator, id), qt.ErrorIs, ErrTiming)

	clock.Set(T.Add(time.Hour + time.Second))
	_, err = l.Results(id)
	c.Assert(err, qt.ErrorIs, ErrTiming)
	c.Assert(l.EndElection(ctx, testOwner, id), qt.ErrorIs, ErrAuthorization)
	c.Assert(l.EndElection(ctx, testCreator, id), qt.IsNil)
	c.Assert(l.EndElection(ctx, testCreator, id), qt.ErrorIs, ErrElectionClosed)

	status, err := l.Status(id)
	c.Assert(err, qt.IsNil)
	c.Assert(status, qt.Equals, types.ElectionStatusClosed)

	res, err := l.Results(id)
	c.Assert(err, qt.IsNil)
	c.Assert(res.TotalVotes, qt.Equals, uint64(1))
	c.Assert(res.Candidates[1].VoteCount, qt.Equals, uint64(1))

	// the owner may still replace the root; the tally is untouched
	c.Assert(l.UpdateMerkleRoot(ctx, testOwner, id, common.HexToHash("0x02")), qt.IsNil)
	res, err = l.Results(id)
	c.Assert(err, qt.IsNil)
	c.Assert(res.TotalVotes, qt.Equals, uint64(1))
	got, err := l.Election(id)
	c.Assert(err, qt.IsNil)
	c.Assert(got.MerkleRoot, qt.Equals, common.HexToHash("0x02"))
}

func TestVoteAfterClose(t *testing.T) {
	c := qt.New(t)
	ctx := context.Background()
	e := testutil.NewElectorate(3)
	l, clock, id := newOpenElection(t, e, 2)

	clock.Set(T.Add(2 * time.Hour))
	c.Assert(l.EndElection(ctx, testCreator, id), qt.IsNil)
	vp, mp := e.Vote(1, id, 1, clock.Now())
	c.Assert(l.CastVote(ctx, e.Voters[1], id, vp, mp), qt.ErrorIs, ErrTiming)
}

func TestUpdateMerkleRoot(t *testing.T) {
	c := qt.New(t)
	ctx := context.Background()
	e := testutil.NewElectorate(3)
	clock := testutil.NewClock(T.Add(-time.Minute))
	l := newTestLedger(t, metadb.NewTest(t), clock)
	id, err := l.CreateElection(ctx, testCreator, e.Params(T, T.Add(time.Hour), 2))
	c.Assert(err, qt.IsNil)

	newRoot := common.HexToHash("0xfeed")
	c.Assert(l.UpdateMerkleRoot(ctx, testCreator, id, newRoot), qt.ErrorIs, ErrAuthorization)
	c.Assert(l.UpdateMerkleRoot(ctx, testOwner, id, common.Hash{}), qt.ErrorIs, ErrConstruction)
	c.Assert(l.UpdateMerkleRoot(ctx, testOwner, id, newRoot), qt.IsNil)

	got, err := l.Election(id)
	c.Assert(err, qt.IsNil)
	c.Assert(got.MerkleRoot, qt.Equals, newRoot)
}

func TestSetCandidateActive(t *testing.T) {
	c := qt.New(t)
	ctx := context.Background()
	e := testutil.NewElectorate(3)
	clock := testutil.NewClock(T.Add(-time.Minute))
	l := newTestLedger(t, metadb.NewTest(t), clock)
	id, err := l.CreateElection(ctx, testCreator, e.Params(T, T.Add(time.Hour), 3))
	c.Assert(err, qt.IsNil)

	c.Assert(l.SetCandidateActive(ctx, testOwner, id, 2, false), qt.ErrorIs, ErrAuthorization)
	c.Assert(l.SetCandidateActive(ctx, testCreator, id, 4, false), qt.ErrorIs, ErrCandidate)
	c.Assert(l.SetCandidateActive(ctx, testCreator, id, 2, false), qt.IsNil)
	cand, err := l.Candidate(id, 2)
	c.Assert(err, qt.IsNil)
	c.Assert(cand.IsActive, qt.IsFalse)

	clock.Set(T)
	c.Assert(l.SetCandidateActive(ctx, testCreator, id, 2, true), qt.ErrorIs, ErrTiming)

	vp, mp := e.Vote(0, id, 2, T)
	c.Assert(l.CastVote(ctx, e.Voters[0], id, vp, mp), qt.ErrorIs, ErrCandidate)
}

func TestReload(t *testing.T) {
	c := qt.New(t)
	ctx := context.Background()
	database := metadb.NewTest(t)
	e := testutil.NewElectorate(4)
	clock := testutil.NewClock(T.Add(-time.Minute))

	l := newTestLedger(t, database, clock)
	id, err := l.CreateElection(ctx, testCreator, e.Params(T, T.Add(time.Hour), 2))
	c.Assert(err, qt.IsNil)
	c.Assert(l.SetCandidateActive(ctx, testCreator, id, 2, false), qt.IsNil)
	_, err = l.CreateElection(ctx, testCreator, e.Params(T, T.Add(time.Hour), 2))
	c.Assert(err, qt.IsNil)

	clock.Set(T.Add(time.Minute))
	vp, mp := e.Vote(0, id, 1, clock.Now())
	c.Assert(l.CastVote(ctx, e.Voters[0], id, vp, mp), qt.IsNil)

	reloaded := newTestLedger(t, database, clock)
	c.Assert(reloaded.ElectionCount(), qt.Equals, uint64(2))
	got, err := reloaded.Election(id)
	c.Assert(err, qt.IsNil)
	want, err := l.Election(id)
	c.Assert(err, qt.IsNil)
	c.Assert(got, qt.DeepEquals, want)

	used, err := reloaded.IsNullifierUsed(id, vp.Nullifier)
	c.Assert(err, qt.IsNil)
	c.Assert(used, qt.IsTrue)
	c.Assert(reloaded.CastVote(ctx, e.Voters[0], id, vp, mp), qt.ErrorIs, ErrReplay)

	// ids keep counting after a restart
	clock.Set(T.Add(-time.Minute))
	next, err := reloaded.CreateElection(ctx, testCreator, e.Params(T, T.Add(time.Hour), 2))
	c.Assert(err, qt.IsNil)
	c.Assert(next, qt.Equals, uint64(3))
}

func TestCancelledContext(t *testing.T) {
	c := qt.New(t)
	e := testutil.NewElectorate(2)
	l, clock, id := newOpenElection(t, e, 2)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	vp, mp := e.Vote(0, id, 1, clock.Now())
	c.Assert(l.CastVote(ctx, e.Voters[0], id, vp, mp), qt.ErrorIs, context.Canceled)
	used, err := l.IsNullifierUsed(id, vp.Nullifier)
	c.Assert(err, qt.IsNil)
	c.Assert(used, qt.IsFalse)
}

func TestNewRequiresOwner(t *testing.T) {
	_, err := New(common.Address{}, nil)
	qt.Assert(t, err, qt.IsNotNil)
}

func TestDefaultPolicy(t *testing.T) {
	l := newTestLedger(t, metadb.NewTest(t), testutil.NewClock(T))
	qt.Assert(t, l.Policy().MaxProofAge, qt.Equals, proof.MaxProofAge)
	qt.Assert(t, l.Owner(), qt.Equals, testOwner)
}

package verifier_test

import (
	"errors"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	qt "github.com/frankban/quicktest"

	"github.com/vocdoni/ballot-ledger/internal/testutil"
	"github.com/vocdoni/ballot-ledger/types"
	"github.com/vocdoni/ballot-ledger/verifier"
)

var now = time.Unix(1_750_000_000, 0)

func openElection(e *testutil.Electorate) *types.Election {
	return &types.Election{
		ID:         7,
		StartTime:  now.Add(-time.Hour),
		EndTime:    now.Add(time.Hour),
		IsActive:   true,
		MerkleRoot: e.Tree.Root(),
		Candidates: []*types.Candidate{
			{ID: 1, IsActive: true},
			{ID: 2, IsActive: true},
			{ID: 3, IsActive: false},
		},
		CandidateCount: 3,
	}
}

func TestCheckFixtures(t *testing.T) {
	c := qt.New(t)
	e := testutil.NewElectorate(testutil.FixtureVoters)
	election := openElection(e)
	used := map[common.Hash]bool{}

	for _, tc := range testutil.VoteCases(e, election.ID, now) {
		view := verifier.NewElectionView(election, tc.VoteProof.Nullifier, used[tc.VoteProof.Nullifier], verifier.DefaultPolicy())
		err := verifier.Check(view, tc.Voter, tc.VoteProof, tc.MerkleProof, now)
		if tc.Want == nil {
			c.Assert(err, qt.IsNil, qt.Commentf("%s", tc.Name))
			used[tc.VoteProof.Nullifier] = true
			continue
		}
		c.Assert(err, qt.ErrorIs, tc.Want, qt.Commentf("%s", tc.Name))
	}
}

func TestCheckElectionWindow(t *testing.T) {
	c := qt.New(t)
	e := testutil.NewElectorate(4)
	election := openElection(e)
	vp, mp := e.Vote(0, election.ID, 1, now)
	view := verifier.NewElectionView(election, vp.Nullifier, false, verifier.DefaultPolicy())

	c.Assert(verifier.Check(view, e.Voters[0], vp, mp, election.StartTime), qt.IsNil)
	c.Assert(verifier.Check(view, e.Voters[0], vp, mp, election.StartTime.Add(-time.Second)), qt.ErrorIs, verifier.ErrTiming)
	c.Assert(verifier.Check(view, e.Voters[0], vp, mp, election.EndTime.Add(time.Second)), qt.ErrorIs, verifier.ErrTiming)

	view.IsActive = false
	c.Assert(verifier.Check(view, e.Voters[0], vp, mp, now), qt.ErrorIs, verifier.ErrTiming)

	c.Assert(verifier.Check(nil, e.Voters[0], vp, mp, now), qt.ErrorIs, verifier.ErrElectionNotFound)
}

func TestCheckOrder(t *testing.T) {
	c := qt.New(t)
	e := testutil.NewElectorate(4)
	election := openElection(e)

	// used nullifier, stale timestamp and inactive candidate: timing wins
	vp, mp := e.Vote(1, election.ID, 3, now.Add(-2*time.Hour))
	view := verifier.NewElectionView(election, vp.Nullifier, true, verifier.DefaultPolicy())
	err := verifier.Check(view, e.Voters[1], vp, mp, now)
	c.Assert(err, qt.ErrorIs, verifier.ErrTiming)
	c.Assert(errors.Is(err, verifier.ErrReplay), qt.IsFalse)

	// used nullifier and wrong voter: replay wins
	vp, mp = e.Vote(1, election.ID, 3, now)
	view = verifier.NewElectionView(election, vp.Nullifier, true, verifier.DefaultPolicy())
	c.Assert(verifier.Check(view, e.Voters[2], vp, mp, now), qt.ErrorIs, verifier.ErrReplay)

	// missing proofs
	c.Assert(verifier.Check(view, e.Voters[1], nil, mp, now), qt.ErrorIs, verifier.ErrProofMalformed)
	c.Assert(verifier.Check(view, e.Voters[1], vp, nil, now), qt.ErrorIs, verifier.ErrProofMalformed)
}

func TestNewElectionView(t *testing.T) {
	c := qt.New(t)
	e := testutil.NewElectorate(2)
	election := openElection(e)
	view := verifier.NewElectionView(election, common.HexToHash("0x0a"), true, verifier.Policy{
		MaxProofAge:  time.Minute,
		MaxClockSkew: time.Second,
	})
	c.Assert(view.ActiveCandidates, qt.DeepEquals, []uint64{1, 2})
	c.Assert(view.MerkleRoot, qt.Equals, e.Tree.Root())
	c.Assert(view.NullifierUsed, qt.IsTrue)
	c.Assert(view.MaxProofAge, qt.Equals, time.Minute)
}

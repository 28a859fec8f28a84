package ledger

import (
	"context"
	"testing"
	"time"

	qt "github.com/frankban/quicktest"

	"github.com/vocdoni/ballot-ledger/db"
	"github.com/vocdoni/ballot-ledger/db/metadb"
	"github.com/vocdoni/ballot-ledger/internal/testutil"
	"github.com/vocdoni/ballot-ledger/storage"
)

var (
	testOwner   = testutil.DeterministicAddress(9001)
	testCreator = testutil.DeterministicAddress(9002)
	// T is the start time of the elections created by newOpenElection.
	T = time.Unix(1_760_000_000, 0)
)

func newTestLedger(t *testing.T, database db.Database, clock *testutil.Clock) *Ledger {
	l, err := New(testOwner, storage.New(database), WithClock(clock.Now))
	qt.Assert(t, err, qt.IsNil)
	return l
}

// newOpenElection creates an election of e with the given number of
// candidates running over [T, T+1h] and moves the clock to T+10s.
func newOpenElection(t *testing.T, e *testutil.Electorate, candidates int) (*Ledger, *testutil.Clock, uint64) {
	clock := testutil.NewClock(T.Add(-time.Minute))
	l := newTestLedger(t, metadb.NewTest(t), clock)
	id, err := l.CreateElection(context.Background(), testCreator, e.Params(T, T.Add(time.Hour), candidates))
	qt.Assert(t, err, qt.IsNil)
	clock.Set(T.Add(10 * time.Second))
	return l, clock, id
}

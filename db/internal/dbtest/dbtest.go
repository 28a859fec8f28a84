// Package dbtest holds the behaviour tests shared by every db backend.
package dbtest

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	qt "github.com/frankban/quicktest"
	"github.com/vocdoni/ballot-ledger/db"
	"github.com/vocdoni/ballot-ledger/db/prefixeddb"
)

// TestWriteTx checks read-your-writes and commit visibility.
func TestWriteTx(t *testing.T, database db.Database) {
	c := qt.New(t)

	wTx := database.WriteTx()
	defer wTx.Discard()

	_, err := wTx.Get([]byte("a"))
	c.Assert(err, qt.ErrorIs, db.ErrKeyNotFound)

	c.Assert(wTx.Set([]byte("a"), []byte("b")), qt.IsNil)
	v, err := wTx.Get([]byte("a"))
	c.Assert(err, qt.IsNil)
	c.Assert(v, qt.DeepEquals, []byte("b"))

	// not visible before commit
	_, err = database.Get([]byte("a"))
	c.Assert(err, qt.ErrorIs, db.ErrKeyNotFound)

	c.Assert(wTx.Commit(), qt.IsNil)
	v, err = database.Get([]byte("a"))
	c.Assert(err, qt.IsNil)
	c.Assert(v, qt.DeepEquals, []byte("b"))

	dTx := database.WriteTx()
	c.Assert(dTx.Delete([]byte("a")), qt.IsNil)
	c.Assert(dTx.Commit(), qt.IsNil)
	_, err = database.Get([]byte("a"))
	c.Assert(err, qt.ErrorIs, db.ErrKeyNotFound)
}

// TestIterate checks prefix iteration order and early stop.
func TestIterate(t *testing.T, database db.Database) {
	c := qt.New(t)

	prefix := []byte("p/")
	wTx := database.WriteTx()
	for i := 0; i < 10; i++ {
		c.Assert(wTx.Set(append(prefix, []byte(fmt.Sprintf("%02d", i))...), []byte{byte(i)}), qt.IsNil)
	}
	c.Assert(wTx.Set([]byte("other"), []byte("x")), qt.IsNil)
	c.Assert(wTx.Commit(), qt.IsNil)

	var keys []string
	c.Assert(database.Iterate(prefix, func(k, v []byte) bool {
		keys = append(keys, string(k))
		return true
	}), qt.IsNil)
	c.Assert(keys, qt.HasLen, 10)
	c.Assert(keys[0], qt.Equals, "00")
	c.Assert(keys[9], qt.Equals, "09")

	count := 0
	c.Assert(database.Iterate(prefix, func(_, _ []byte) bool {
		count++
		return count < 3
	}), qt.IsNil)
	c.Assert(count, qt.Equals, 3)
}

// TestWriteTxApply checks that applying a transaction copies its writes.
func TestWriteTxApply(t *testing.T, database db.Database) {
	c := qt.New(t)

	tx1 := database.WriteTx()
	c.Assert(tx1.Set([]byte("k1"), []byte("v1")), qt.IsNil)
	tx2 := database.WriteTx()
	c.Assert(tx2.Set([]byte("k2"), []byte("v2")), qt.IsNil)
	c.Assert(tx1.Apply(tx2), qt.IsNil)
	tx2.Discard()
	c.Assert(tx1.Commit(), qt.IsNil)

	v, err := database.Get([]byte("k2"))
	c.Assert(err, qt.IsNil)
	c.Assert(v, qt.DeepEquals, []byte("v2"))
}

// TestWriteTxApplyPrefixed checks Apply across a prefixed view.
func TestWriteTxApplyPrefixed(t *testing.T, database db.Database, prefix []byte) {
	c := qt.New(t)
	prefixed := prefixeddb.NewPrefixedDatabase(database, prefix)

	outer := database.WriteTx()
	inner := prefixed.WriteTx()
	c.Assert(inner.Set([]byte("key"), []byte("value")), qt.IsNil)
	c.Assert(outer.Apply(inner), qt.IsNil)
	inner.Discard()
	c.Assert(outer.Commit(), qt.IsNil)

	v, err := prefixed.Get([]byte("key"))
	c.Assert(err, qt.IsNil)
	c.Assert(v, qt.DeepEquals, []byte("value"))
	v, err = database.Get(append(append([]byte{}, prefix...), "key"...))
	c.Assert(err, qt.IsNil)
	c.Assert(v, qt.DeepEquals, []byte("value"))
}

// TestConcurrentWriteTx checks that concurrent read-modify-write
// transactions on the same key never lose an update: every commit either
// succeeds or reports db.ErrConflict.
func TestConcurrentWriteTx(t *testing.T, database db.Database) {
	c := qt.New(t)
	key := []byte("counter")

	var wg sync.WaitGroup
	var committed atomic.Int64
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tx := database.WriteTx()
			defer tx.Discard()
			cur := byte(0)
			if v, err := tx.Get(key); err == nil {
				cur = v[0]
			}
			if err := tx.Set(key, []byte{cur + 1}); err != nil {
				return
			}
			if err := tx.Commit(); err == nil {
				committed.Add(1)
			}
		}()
	}
	wg.Wait()

	v, err := database.Get(key)
	c.Assert(err, qt.IsNil)
	c.Assert(int64(v[0]), qt.Equals, committed.Load())
}

// Package inmemory implements an ephemeral db.Database, used by tests and by
// nodes started with --db.type=inmemory.
package inmemory

import (
	"bytes"
	"fmt"
	"slices"
	"sync"

	"github.com/vocdoni/ballot-ledger/db"
)

type entry struct {
	value   []byte
	version uint64
}

// InMemoryDB keeps every key in a map. Each write bumps a global version so
// that transactions can detect concurrent modifications on Commit.
type InMemoryDB struct {
	mu      sync.RWMutex
	data    map[string]entry
	version uint64
	closed  bool
}

var _ db.Database = (*InMemoryDB)(nil)

// New returns an empty in-memory database. Options are ignored.
func New(_ db.Options) (*InMemoryDB, error) {
	return &InMemoryDB{data: make(map[string]entry)}, nil
}

func (d *InMemoryDB) Close() error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	return nil
}

func (d *InMemoryDB) Compact() error {
	return nil
}

func (d *InMemoryDB) Get(key []byte) ([]byte, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	ent, ok := d.data[string(key)]
	if !ok {
		return nil, db.ErrKeyNotFound
	}
	return bytes.Clone(ent.value), nil
}

func (d *InMemoryDB) Iterate(prefix []byte, callback func(key, value []byte) bool) error {
	d.mu.RLock()
	snapshot := d.snapshot(prefix)
	d.mu.RUnlock()
	return iterateSorted(snapshot, prefix, callback)
}

// snapshot copies every live entry under prefix. Caller holds the lock.
func (d *InMemoryDB) snapshot(prefix []byte) map[string][]byte {
	out := make(map[string][]byte)
	for k, ent := range d.data {
		if bytes.HasPrefix([]byte(k), prefix) {
			out[k] = bytes.Clone(ent.value)
		}
	}
	return out
}

func (d *InMemoryDB) WriteTx() db.WriteTx {
	return &WriteTx{
		db:     d,
		writes: make(map[string][]byte),
		reads:  make(map[string]uint64),
	}
}

// WriteTx buffers writes and records the version of every key it touched.
// A nil value in writes marks a deletion.
type WriteTx struct {
	db     *InMemoryDB
	writes map[string][]byte
	reads  map[string]uint64
	done   bool
}

var _ db.WriteTx = (*WriteTx)(nil)

func (tx *WriteTx) track(key string) {
	if _, ok := tx.reads[key]; ok {
		return
	}
	tx.db.mu.RLock()
	tx.reads[key] = tx.db.data[key].version
	tx.db.mu.RUnlock()
}

func (tx *WriteTx) Get(key []byte) ([]byte, error) {
	k := string(key)
	if v, ok := tx.writes[k]; ok {
		if v == nil {
			return nil, db.ErrKeyNotFound
		}
		return bytes.Clone(v), nil
	}
	tx.track(k)
	return tx.db.Get(key)
}

func (tx *WriteTx) Iterate(prefix []byte, callback func(key, value []byte) bool) error {
	tx.db.mu.RLock()
	merged := tx.db.snapshot(prefix)
	tx.db.mu.RUnlock()
	for k := range merged {
		tx.track(k)
	}
	for k, v := range tx.writes {
		if !bytes.HasPrefix([]byte(k), prefix) {
			continue
		}
		if v == nil {
			delete(merged, k)
			continue
		}
		merged[k] = bytes.Clone(v)
	}
	return iterateSorted(merged, prefix, callback)
}

func (tx *WriteTx) Set(key, value []byte) error {
	k := string(key)
	tx.track(k)
	if value == nil {
		value = []byte{}
	}
	tx.writes[k] = bytes.Clone(value)
	return nil
}

func (tx *WriteTx) Delete(key []byte) error {
	k := string(key)
	tx.track(k)
	tx.writes[k] = nil
	return nil
}

func (tx *WriteTx) Apply(other db.WriteTx) error {
	for {
		u, ok := other.(interface{ Unwrap() db.WriteTx })
		if !ok {
			break
		}
		other = u.Unwrap()
	}
	o, ok := other.(*WriteTx)
	if !ok {
		return fmt.Errorf("inmemory: cannot apply transaction of type %T", other)
	}
	for k, v := range o.writes {
		if v == nil {
			if err := tx.Delete([]byte(k)); err != nil {
				return err
			}
			continue
		}
		if err := tx.Set([]byte(k), v); err != nil {
			return err
		}
	}
	return nil
}

func (tx *WriteTx) Commit() error {
	if tx.done {
		return fmt.Errorf("inmemory: transaction already committed or discarded")
	}
	tx.db.mu.Lock()
	defer tx.db.mu.Unlock()
	if tx.db.closed {
		return fmt.Errorf("inmemory: database closed")
	}
	for k, ver := range tx.reads {
		if tx.db.data[k].version != ver {
			return db.ErrConflict
		}
	}
	for k, v := range tx.writes {
		if v == nil {
			delete(tx.db.data, k)
			continue
		}
		tx.db.version++
		tx.db.data[k] = entry{value: v, version: tx.db.version}
	}
	tx.done = true
	return nil
}

func (tx *WriteTx) Discard() {
	tx.writes = map[string][]byte{}
	tx.reads = map[string]uint64{}
	tx.done = true
}

func iterateSorted(entries map[string][]byte, prefix []byte, callback func(key, value []byte) bool) error {
	keys := make([]string, 0, len(entries))
	for k := range entries {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		if !callback([]byte(k)[len(prefix):], entries[k]) {
			break
		}
	}
	return nil
}

/*
Package storage persists the ledger state of the ballot node.

# Storage Organization

The storage uses a key-value database with prefixed namespaces:

  - e/  : electionID (uint64 big endian) → election record (metadata, candidates,
    tallies, voter list and current Merkle root)
  - n/  : electionID ‖ nullifier → commitment of the accepted vote
  - m/  : node metadata, such as the number of elections created so far

## Separate Databases
  - cs_ : prefix for the census database (published eligibility trees)

A vote is committed with a single write transaction that stores the spent
nullifier together with the updated election record, so a crash can never
leave a tally that disagrees with the nullifier set.
*/
package storage

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/vocdoni/ballot-ledger/census/censusdb"
	"github.com/vocdoni/ballot-ledger/db"
	"github.com/vocdoni/ballot-ledger/db/prefixeddb"
	"github.com/vocdoni/ballot-ledger/log"
)

var (
	ErrKeyAlreadyExists = errors.New("key already exists")
	ErrNotFound         = errors.New("not found")
	ErrNullifierUsed    = errors.New("nullifier already stored")

	// Prefixes
	electionPrefix  = []byte("e/")
	nullifierPrefix = []byte("n/")
	metadataPrefix  = []byte("m/")
	censusDBprefix  = []byte("cs_")

	electionCountKey = []byte("electionCount")
)

// Storage manages the persisted elections, spent nullifiers and census
// snapshots.
type Storage struct {
	db         db.Database
	censusDB   *censusdb.CensusDB
	globalLock sync.Mutex
}

// New creates a new Storage instance.
func New(database db.Database) *Storage {
	return &Storage{
		db:       database,
		censusDB: censusdb.NewCensusDB(prefixeddb.NewPrefixedDatabase(database, censusDBprefix)),
	}
}

// CensusDB returns the census database.
func (s *Storage) CensusDB() *censusdb.CensusDB {
	return s.censusDB
}

// Close closes the storage.
func (s *Storage) Close() {
	if err := s.db.Close(); err != nil {
		log.Warnw("failed to close storage", "error", err)
	}
}

// ElectionCount returns the number of elections created so far, which is
// also the id of the last one.
func (s *Storage) ElectionCount() (uint64, error) {
	s.globalLock.Lock()
	defer s.globalLock.Unlock()
	return s.electionCount(s.db)
}

func (s *Storage) electionCount(r db.Reader) (uint64, error) {
	data, err := prefixeddb.NewPrefixedReader(r, metadataPrefix).Get(electionCountKey)
	if errors.Is(err, db.ErrKeyNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get election count: %w", err)
	}
	if len(data) != 8 {
		return 0, fmt.Errorf("corrupt election count of %d bytes", len(data))
	}
	return binary.BigEndian.Uint64(data), nil
}

// setArtifact encodes artifact and stages it under prefix ‖ key in wtx.
func setArtifact(wtx db.WriteTx, prefix, key []byte, artifact any) error {
	data, err := EncodeArtifact(artifact)
	if err != nil {
		return err
	}
	return prefixeddb.NewPrefixedWriteTx(wtx, prefix).Set(key, data)
}

// getArtifact reads prefix ‖ key from r and decodes it into out. It returns
// ErrNotFound if the key does not exist.
func getArtifact(r db.Reader, prefix, key []byte, out any) error {
	data, err := prefixeddb.NewPrefixedReader(r, prefix).Get(key)
	if errors.Is(err, db.ErrKeyNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	if err := DecodeArtifact(data, out); err != nil {
		return fmt.Errorf("could not decode artifact: %w", err)
	}
	return nil
}

func uint64Key(n uint64) []byte {
	return binary.BigEndian.AppendUint64(nil, n)
}

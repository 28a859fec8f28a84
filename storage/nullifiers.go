package storage

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/vocdoni/ballot-ledger/db"
	"github.com/vocdoni/ballot-ledger/db/prefixeddb"
)

func nullifierKey(electionID uint64, nullifier common.Hash) []byte {
	return append(uint64Key(electionID), nullifier.Bytes()...)
}

// IsNullifierUsed reports whether nullifier has been spent in the election.
func (s *Storage) IsNullifierUsed(electionID uint64, nullifier common.Hash) (bool, error) {
	_, err := s.Commitment(electionID, nullifier)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

// Commitment returns the commitment stored with a spent nullifier, or
// ErrNotFound.
func (s *Storage) Commitment(electionID uint64, nullifier common.Hash) (common.Hash, error) {
	v, err := prefixeddb.NewPrefixedReader(s.db, nullifierPrefix).Get(nullifierKey(electionID, nullifier))
	if errors.Is(err, db.ErrKeyNotFound) {
		return common.Hash{}, ErrNotFound
	}
	if err != nil {
		return common.Hash{}, fmt.Errorf("get nullifier: %w", err)
	}
	return common.BytesToHash(v), nil
}

// Nullifiers calls cb with every spent nullifier of the election and its
// commitment, in byte order, until cb returns false.
func (s *Storage) Nullifiers(electionID uint64, cb func(nullifier, commitment common.Hash) bool) error {
	reader := prefixeddb.NewPrefixedReader(s.db, nullifierPrefix)
	return reader.Iterate(uint64Key(electionID), func(k, v []byte) bool {
		return cb(common.BytesToHash(k), common.BytesToHash(v))
	})
}

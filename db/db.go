// Package db defines the key-value database abstraction used by the ledger
// storage and the census store. Backends live in the subpackages.
package db

import (
	"errors"
	"io"
)

const (
	// TypePebble selects the pebble backend.
	TypePebble = "pebble"
	// TypeInMem selects the ephemeral in-memory backend.
	TypeInMem = "inmemory"
)

var (
	// ErrKeyNotFound is returned by Get when the key does not exist.
	ErrKeyNotFound = errors.New("key not found")
	// ErrConflict is returned by Commit when another transaction modified a
	// key read or written by this one.
	ErrConflict = errors.New("transaction conflict")
)

// Options are the backend construction options.
type Options struct {
	Path string
}

// Reader is the read side of a database or transaction.
type Reader interface {
	// Get returns the value stored under key or ErrKeyNotFound.
	Get(key []byte) ([]byte, error)
	// Iterate calls callback for every key with the given prefix, in
	// lexicographic order, until callback returns false. The prefix is
	// stripped from the keys passed to callback.
	Iterate(prefix []byte, callback func(key, value []byte) bool) error
}

// WriteTx is a read-write transaction. Writes are invisible to other readers
// until Commit succeeds.
type WriteTx interface {
	Reader
	Set(key, value []byte) error
	Delete(key []byte) error
	// Apply copies every pending write of other into this transaction.
	Apply(other WriteTx) error
	Commit() error
	// Discard drops every pending write. It is safe to call after Commit.
	Discard()
}

// Database is a key-value store able to open write transactions.
type Database interface {
	io.Closer
	Reader
	WriteTx() WriteTx
	Compact() error
}

package storage

import (
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/vocdoni/ballot-ledger/db"
	"github.com/vocdoni/ballot-ledger/db/prefixeddb"
	"github.com/vocdoni/ballot-ledger/types"
)

// electionRecord is the stored form of types.Election. Times are kept as
// unix seconds.
type electionRecord struct {
	ID         uint64            `cbor:"1,keyasint"`
	Title      string            `cbor:"2,keyasint"`
	StartTime  int64             `cbor:"3,keyasint"`
	EndTime    int64             `cbor:"4,keyasint"`
	IsActive   bool              `cbor:"5,keyasint"`
	TotalVotes uint64            `cbor:"6,keyasint"`
	Creator    []byte            `cbor:"7,keyasint"`
	MerkleRoot []byte            `cbor:"8,keyasint"`
	Candidates []candidateRecord `cbor:"9,keyasint"`
	Voters     [][]byte          `cbor:"10,keyasint"`
	CreatedAt  int64             `cbor:"11,keyasint"`
}

type candidateRecord struct {
	ID          uint64 `cbor:"1,keyasint"`
	Name        string `cbor:"2,keyasint"`
	Description string `cbor:"3,keyasint"`
	ImageURL    string `cbor:"4,keyasint"`
	VoteCount   uint64 `cbor:"5,keyasint"`
	IsActive    bool   `cbor:"6,keyasint"`
	CreatedAt   int64  `cbor:"7,keyasint"`
}

func recordFromElection(e *types.Election) *electionRecord {
	r := &electionRecord{
		ID:         e.ID,
		Title:      e.Title,
		StartTime:  e.StartTime.Unix(),
		EndTime:    e.EndTime.Unix(),
		IsActive:   e.IsActive,
		TotalVotes: e.TotalVotes,
		Creator:    e.Creator.Bytes(),
		MerkleRoot: e.MerkleRoot.Bytes(),
		Candidates: make([]candidateRecord, len(e.Candidates)),
		Voters:     make([][]byte, len(e.Voters)),
		CreatedAt:  e.CreatedAt.Unix(),
	}
	for i, c := range e.Candidates {
		r.Candidates[i] = candidateRecord{
			ID:          c.ID,
			Name:        c.Name,
			Description: c.Description,
			ImageURL:    c.ImageURL,
			VoteCount:   c.VoteCount,
			IsActive:    c.IsActive,
			CreatedAt:   c.CreatedAt.Unix(),
		}
	}
	for i, v := range e.Voters {
		r.Voters[i] = v.Bytes()
	}
	return r
}

func (r *electionRecord) election() *types.Election {
	e := &types.Election{
		ID:             r.ID,
		Title:          r.Title,
		StartTime:      time.Unix(r.StartTime, 0),
		EndTime:        time.Unix(r.EndTime, 0),
		IsActive:       r.IsActive,
		CandidateCount: uint64(len(r.Candidates)),
		TotalVotes:     r.TotalVotes,
		Creator:        common.BytesToAddress(r.Creator),
		MerkleRoot:     common.BytesToHash(r.MerkleRoot),
		Candidates:     make([]*types.Candidate, len(r.Candidates)),
		Voters:         make([]common.Address, len(r.Voters)),
		CreatedAt:      time.Unix(r.CreatedAt, 0),
	}
	for i, c := range r.Candidates {
		e.Candidates[i] = &types.Candidate{
			ID:          c.ID,
			Name:        c.Name,
			Description: c.Description,
			ImageURL:    c.ImageURL,
			VoteCount:   c.VoteCount,
			IsActive:    c.IsActive,
			CreatedAt:   time.Unix(c.CreatedAt, 0),
		}
	}
	for i, v := range r.Voters {
		e.Voters[i] = common.BytesToAddress(v)
	}
	return e
}

// NewElection stores a new election and advances the election counter in the
// same transaction. The election id must be the next one in sequence.
func (s *Storage) NewElection(e *types.Election) error {
	if e == nil {
		return fmt.Errorf("nil election data")
	}
	s.globalLock.Lock()
	defer s.globalLock.Unlock()

	wtx := s.db.WriteTx()
	defer wtx.Discard()

	count, err := s.electionCount(wtx)
	if err != nil {
		return err
	}
	if e.ID != count+1 {
		return fmt.Errorf("%w: election %d, next id is %d", ErrKeyAlreadyExists, e.ID, count+1)
	}
	if err := setArtifact(wtx, electionPrefix, uint64Key(e.ID), recordFromElection(e)); err != nil {
		return fmt.Errorf("store election %d: %w", e.ID, err)
	}
	if err := prefixeddb.NewPrefixedWriteTx(wtx, metadataPrefix).Set(electionCountKey, uint64Key(e.ID)); err != nil {
		return fmt.Errorf("store election count: %w", err)
	}
	return wtx.Commit()
}

// UpdateElection overwrites the record of an existing election.
func (s *Storage) UpdateElection(e *types.Election) error {
	if e == nil {
		return fmt.Errorf("nil election data")
	}
	s.globalLock.Lock()
	defer s.globalLock.Unlock()

	wtx := s.db.WriteTx()
	defer wtx.Discard()
	if err := getArtifact(wtx, electionPrefix, uint64Key(e.ID), &electionRecord{}); err != nil {
		return fmt.Errorf("election %d: %w", e.ID, err)
	}
	if err := setArtifact(wtx, electionPrefix, uint64Key(e.ID), recordFromElection(e)); err != nil {
		return fmt.Errorf("store election %d: %w", e.ID, err)
	}
	return wtx.Commit()
}

// Election retrieves an election. It returns ErrNotFound if it does not exist.
func (s *Storage) Election(id uint64) (*types.Election, error) {
	r := &electionRecord{}
	if err := getArtifact(s.db, electionPrefix, uint64Key(id), r); err != nil {
		return nil, err
	}
	return r.election(), nil
}

// Elections returns every stored election ordered by id.
func (s *Storage) Elections() ([]*types.Election, error) {
	var (
		elections []*types.Election
		decodeErr error
	)
	if err := prefixeddb.NewPrefixedReader(s.db, electionPrefix).Iterate(nil, func(k, v []byte) bool {
		r := &electionRecord{}
		if err := DecodeArtifact(v, r); err != nil {
			decodeErr = fmt.Errorf("decode election %x: %w", k, err)
			return false
		}
		elections = append(elections, r.election())
		return true
	}); err != nil {
		return nil, fmt.Errorf("iterate elections: %w", err)
	}
	return elections, decodeErr
}

// CommitVote stores the spent nullifier with its commitment and the updated
// election record atomically. It returns ErrNullifierUsed, and writes
// nothing, if the nullifier is already stored for that election.
func (s *Storage) CommitVote(e *types.Election, nullifier, commitment common.Hash) error {
	s.globalLock.Lock()
	defer s.globalLock.Unlock()

	wtx := s.db.WriteTx()
	defer wtx.Discard()

	nullifiers := prefixeddb.NewPrefixedWriteTx(wtx, nullifierPrefix)
	key := nullifierKey(e.ID, nullifier)
	if _, err := nullifiers.Get(key); err == nil {
		return fmt.Errorf("%w: %s", ErrNullifierUsed, nullifier.Hex())
	} else if !errors.Is(err, db.ErrKeyNotFound) {
		return fmt.Errorf("check nullifier: %w", err)
	}
	if err := nullifiers.Set(key, commitment.Bytes()); err != nil {
		return fmt.Errorf("store nullifier: %w", err)
	}
	if err := setArtifact(wtx, electionPrefix, uint64Key(e.ID), recordFromElection(e)); err != nil {
		return fmt.Errorf("store election %d: %w", e.ID, err)
	}
	return wtx.Commit()
}

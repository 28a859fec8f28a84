package types

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// ElectionStatus is the lifecycle phase of an election. Every phase but
// Closed is derived from the clock; Closed is reached only through an
// explicit end call by the creator.
type ElectionStatus uint8

const (
	ElectionStatusScheduled = ElectionStatus(iota) // now < start
	ElectionStatusOpen                             // start <= now <= end
	ElectionStatusEnded                            // now > end, not yet closed
	ElectionStatusClosed                           // closed by its creator

	ElectionStatusScheduledName = "scheduled"
	ElectionStatusOpenName      = "open"
	ElectionStatusEndedName     = "ended"
	ElectionStatusClosedName    = "closed"
)

func (s ElectionStatus) String() string {
	switch s {
	case ElectionStatusScheduled:
		return ElectionStatusScheduledName
	case ElectionStatusOpen:
		return ElectionStatusOpenName
	case ElectionStatusEnded:
		return ElectionStatusEndedName
	case ElectionStatusClosed:
		return ElectionStatusClosedName
	default:
		return "unknown"
	}
}

// Candidate is one option of an election. IDs are 1-based and stable for the
// election's lifetime; candidates are never deleted.
type Candidate struct {
	ID          uint64    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	ImageURL    string    `json:"imageUrl"`
	VoteCount   uint64    `json:"voteCount"`
	IsActive    bool      `json:"isActive"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Election is the ledger record of a vote. The nullifier set is stored
// beside it, keyed by election, and is never part of this struct.
type Election struct {
	ID             uint64           `json:"id"`
	Title          string           `json:"title"`
	StartTime      time.Time        `json:"startTime"`
	EndTime        time.Time        `json:"endTime"`
	IsActive       bool             `json:"isActive"`
	CandidateCount uint64           `json:"candidateCount"`
	TotalVotes     uint64           `json:"totalVotes"`
	Creator        common.Address   `json:"creator"`
	MerkleRoot     common.Hash      `json:"merkleRoot"`
	Candidates     []*Candidate     `json:"candidates"`
	Voters         []common.Address `json:"voters"`
	CreatedAt      time.Time        `json:"createdAt"`
}

// Status derives the lifecycle phase at instant now.
func (e *Election) Status(now time.Time) ElectionStatus {
	switch {
	case !e.IsActive:
		return ElectionStatusClosed
	case now.Before(e.StartTime):
		return ElectionStatusScheduled
	case now.After(e.EndTime):
		return ElectionStatusEnded
	default:
		return ElectionStatusOpen
	}
}

// Candidate returns the candidate with the given 1-based id, or nil.
func (e *Election) Candidate(id uint64) *Candidate {
	if id == 0 || id > uint64(len(e.Candidates)) {
		return nil
	}
	return e.Candidates[id-1]
}

// CandidateIDs lists every candidate id in order.
func (e *Election) CandidateIDs() []uint64 {
	ids := make([]uint64, len(e.Candidates))
	for i, c := range e.Candidates {
		ids[i] = c.ID
	}
	return ids
}

// TallySum adds up the vote count of every candidate. It must always equal
// TotalVotes.
func (e *Election) TallySum() uint64 {
	var sum uint64
	for _, c := range e.Candidates {
		sum += c.VoteCount
	}
	return sum
}

// SealTallies zeroes the vote count of every candidate while the election is
// active, and returns e. Counts are published only once the election closes.
func (e *Election) SealTallies() *Election {
	if e.IsActive {
		for _, c := range e.Candidates {
			c.VoteCount = 0
		}
	}
	return e
}

// Clone returns a deep copy, so callers can never mutate ledger state.
func (e *Election) Clone() *Election {
	if e == nil {
		return nil
	}
	out := *e
	out.Candidates = make([]*Candidate, len(e.Candidates))
	for i, c := range e.Candidates {
		cc := *c
		out.Candidates[i] = &cc
	}
	out.Voters = append([]common.Address(nil), e.Voters...)
	return &out
}

// ElectionParams are the arguments of an election creation. The three
// candidate attribute slices are parallel and must have the same length.
type ElectionParams struct {
	Title                 string           `json:"title"`
	StartTime             time.Time        `json:"startTime"`
	EndTime               time.Time        `json:"endTime"`
	CandidateNames        []string         `json:"candidateNames"`
	CandidateDescriptions []string         `json:"candidateDescriptions"`
	CandidateImageURLs    []string         `json:"candidateImageUrls"`
	AuthorizedVoters      []common.Address `json:"authorizedVoters"`
	MerkleRoot            common.Hash      `json:"merkleRoot"`
}

// Results is the final tally of a closed election.
type Results struct {
	ElectionID uint64       `json:"electionId"`
	TotalVotes uint64       `json:"totalVotes"`
	Candidates []*Candidate `json:"candidates"`
}

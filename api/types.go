package api

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/vocdoni/ballot-ledger/types"
)

// Signed requests carry a unix timestamp that must lie within
// SignedRequestTTL of the server clock, and mutations of an existing
// election repeat its id in the body, so a signature cannot be replayed
// against another endpoint or election. A body is accepted once per signer;
// the nonce lets a client send the same request twice within a second.

// CreateElectionRequest is the signed body of an election creation. When
// MerkleRoot is omitted the eligibility census is built from
// AuthorizedVoters and stored for proof serving.
type CreateElectionRequest struct {
	Title                 string           `json:"title"`
	StartTime             int64            `json:"startTime"`
	EndTime               int64            `json:"endTime"`
	CandidateNames        []string         `json:"candidateNames"`
	CandidateDescriptions []string         `json:"candidateDescriptions"`
	CandidateImageURLs    []string         `json:"candidateImageUrls"`
	AuthorizedVoters      []common.Address `json:"authorizedVoters"`
	MerkleRoot            *common.Hash     `json:"merkleRoot,omitempty"`
	Timestamp             int64            `json:"timestamp"`
	Nonce                 string           `json:"nonce,omitempty"`
}

// CreateElectionResponse is returned after an election is created.
type CreateElectionResponse struct {
	ElectionID uint64      `json:"electionId"`
	MerkleRoot common.Hash `json:"merkleRoot"`
}

// ElectionResponse is an election plus its lifecycle phase at request time.
type ElectionResponse struct {
	*types.Election
	Status string `json:"status"`
}

// UpdateRootRequest is the signed body of a root replacement.
type UpdateRootRequest struct {
	ElectionID uint64      `json:"electionId"`
	MerkleRoot common.Hash `json:"merkleRoot"`
	Timestamp  int64       `json:"timestamp"`
	Nonce      string      `json:"nonce,omitempty"`
}

// EndElectionRequest is the signed body of an election close.
type EndElectionRequest struct {
	ElectionID uint64 `json:"electionId"`
	Timestamp  int64  `json:"timestamp"`
	Nonce      string `json:"nonce,omitempty"`
}

// SetCandidateRequest is the signed body of a candidate (de)activation.
type SetCandidateRequest struct {
	ElectionID  uint64 `json:"electionId"`
	CandidateID uint64 `json:"candidateId"`
	Active      bool   `json:"active"`
	Timestamp   int64  `json:"timestamp"`
	Nonce       string `json:"nonce,omitempty"`
}

// VoteRequest is one vote attempt, signed by the voter. The signer is the
// identity checked against the eligibility tree; Voter may be left zero and
// must match the signer otherwise. Freshness comes from the vote proof
// timestamp and replays are stopped by the nullifier.
type VoteRequest struct {
	ElectionID  uint64             `json:"electionId"`
	Voter       common.Address     `json:"voter"`
	VoteProof   *types.VoteProof   `json:"voteProof"`
	MerkleProof *types.MerkleProof `json:"merkleProof"`
}

// VoteResponse acknowledges a recorded vote.
type VoteResponse struct {
	ElectionID uint64      `json:"electionId"`
	Nullifier  common.Hash `json:"nullifier"`
}

// NullifierResponse reports whether a nullifier was spent, and the
// commitment recorded with it.
type NullifierResponse struct {
	Nullifier  common.Hash  `json:"nullifier"`
	Used       bool         `json:"used"`
	Commitment *common.Hash `json:"commitment,omitempty"`
}

// CensusRequest lists the identities of a new census.
type CensusRequest struct {
	Identities []common.Address `json:"identities"`
}

// CensusResponse describes a stored census.
type CensusResponse struct {
	ID   uuid.UUID   `json:"id"`
	Root common.Hash `json:"root"`
	Size int         `json:"size"`
}

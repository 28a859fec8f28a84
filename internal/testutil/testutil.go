// Package testutil provides deterministic voters, elections and vote
// attempts shared by the ledger, verifier and preflight tests.
package testutil

import (
	"encoding/binary"
	"fmt"
	"math/rand/v2"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"

	"github.com/vocdoni/ballot-ledger/census"
	"github.com/vocdoni/ballot-ledger/crypto/signatures/ethereum"
	"github.com/vocdoni/ballot-ledger/proof"
	"github.com/vocdoni/ballot-ledger/types"
	"github.com/vocdoni/ballot-ledger/verifier"
)

func deterministic(domain string, n uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], n)
	return crypto.Keccak256(append([]byte(domain), b[:]...))
}

func DeterministicAddress(n uint64) common.Address {
	return common.BytesToAddress(deterministic("deterministic-address:", n)[12:])
}

func RandomAddress() common.Address {
	return DeterministicAddress(rand.Uint64())
}

// DeterministicSigner returns the n-th signer of a fixed sequence of keys.
func DeterministicSigner(n uint64) *ethereum.Signer {
	s, err := ethereum.NewSignerFromSeed(deterministic("deterministic-signer:", n))
	if err != nil {
		panic(err)
	}
	return s
}

func DeterministicSecret(n uint64) common.Hash {
	return common.BytesToHash(deterministic("deterministic-secret:", n))
}

// Clock is a settable clock with one second resolution, safe for
// concurrent use.
type Clock struct{ unix atomic.Int64 }

func NewClock(t time.Time) *Clock {
	c := &Clock{}
	c.Set(t)
	return c
}

func (c *Clock) Now() time.Time          { return time.Unix(c.unix.Load(), 0) }
func (c *Clock) Set(t time.Time)         { c.unix.Store(t.Unix()) }
func (c *Clock) Advance(d time.Duration) { c.unix.Add(int64(d / time.Second)) }

// Electorate is a set of voters with their keys, secrets and eligibility
// tree. Voters[i] is the address of Signers[i].
type Electorate struct {
	Voters  []common.Address
	Signers []*ethereum.Signer
	Secrets []common.Hash
	Tree    *census.Tree
}

// NewElectorate returns n deterministic voters.
func NewElectorate(n int) *Electorate {
	e := &Electorate{
		Voters:  make([]common.Address, n),
		Signers: make([]*ethereum.Signer, n),
		Secrets: make([]common.Hash, n),
	}
	for i := range n {
		e.Signers[i] = DeterministicSigner(uint64(i) + 1)
		e.Voters[i] = e.Signers[i].Address()
		e.Secrets[i] = DeterministicSecret(uint64(i) + 1)
	}
	tree, err := census.BuildTree(e.Voters)
	if err != nil {
		panic(err)
	}
	e.Tree = tree
	return e
}

// Params returns creation parameters for an election of the electorate with
// the given number of candidates.
func (e *Electorate) Params(start, end time.Time, candidates int) *types.ElectionParams {
	p := &types.ElectionParams{
		Title:            "test election",
		StartTime:        start,
		EndTime:          end,
		AuthorizedVoters: append([]common.Address(nil), e.Voters...),
		MerkleRoot:       e.Tree.Root(),
	}
	for i := range candidates {
		p.CandidateNames = append(p.CandidateNames, fmt.Sprintf("candidate %d", i+1))
		p.CandidateDescriptions = append(p.CandidateDescriptions, fmt.Sprintf("description %d", i+1))
		p.CandidateImageURLs = append(p.CandidateImageURLs, fmt.Sprintf("https://img.example/%d.png", i+1))
	}
	return p
}

// Vote assembles the vote of voter i for candidateID at the given time.
func (e *Electorate) Vote(i int, electionID, candidateID uint64, at time.Time) (*types.VoteProof, *types.MerkleProof) {
	mp, err := e.Tree.ProofFor(i)
	if err != nil {
		panic(err)
	}
	return proof.AssembleAt(e.Voters[i], electionID, candidateID, e.Secrets[i], mp, at)
}

// VoteCase is one vote attempt and the rejection class it must produce, nil
// when it must be accepted. Signer holds the key of Voter.
type VoteCase struct {
	Name        string
	Voter       common.Address
	Signer      *ethereum.Signer
	VoteProof   *types.VoteProof
	MerkleProof *types.MerkleProof
	Want        error
}

// FixtureVoters is the electorate size VoteCases expects.
const FixtureVoters = 8

// VoteCases returns attempts against an Open election of an electorate of
// FixtureVoters voters, with candidates 1 and 2 active and candidate 3
// inactive. Cases must be applied in order: the replay case spends the
// nullifier of the first one.
func VoteCases(e *Electorate, electionID uint64, now time.Time) []VoteCase {
	var cases []VoteCase
	add := func(name string, signer *ethereum.Signer, vp *types.VoteProof, mp *types.MerkleProof, want error) {
		cases = append(cases, VoteCase{
			Name:        name,
			Voter:       signer.Address(),
			Signer:      signer,
			VoteProof:   vp,
			MerkleProof: mp,
			Want:        want,
		})
	}

	vp, mp := e.Vote(0, electionID, 1, now)
	add("valid vote", e.Signers[0], vp, mp, nil)

	vp, mp = e.Vote(0, electionID, 2, now)
	add("replay with another candidate", e.Signers[0], vp, mp, verifier.ErrReplay)

	vp, mp = e.Vote(1, electionID, 1, now)
	vp.Proof = vp.Proof[:types.ProofWords-1]
	add("seven proof words", e.Signers[1], vp, mp, verifier.ErrProofMalformed)

	vp, mp = e.Vote(1, electionID, 1, now)
	vp.Proof[3] = *uint256.NewInt(0)
	add("zero proof word", e.Signers[1], vp, mp, verifier.ErrProofMalformed)

	vp, mp = e.Vote(1, electionID, 1, now.Add(-proof.MaxProofAge-time.Second))
	add("stale timestamp", e.Signers[1], vp, mp, verifier.ErrTiming)

	vp, mp = e.Vote(1, electionID, 1, now.Add(proof.MaxClockSkew+time.Second))
	add("future timestamp", e.Signers[1], vp, mp, verifier.ErrTiming)

	outsider := DeterministicSigner(1_000_000)
	_, mp = e.Vote(1, electionID, 1, now)
	vp, _ = proof.AssembleAt(outsider.Address(), electionID, 1, DeterministicSecret(1_000_000), mp, now)
	add("outsider with member proof", outsider, vp, mp, verifier.ErrEligibility)

	_, mp = e.Vote(3, electionID, 1, now)
	vp, _ = e.Vote(2, electionID, 1, now)
	add("proof of another member", e.Signers[2], vp, mp, verifier.ErrEligibility)

	vp, mp = e.Vote(2, electionID, 1, now)
	if len(mp.Siblings) > 0 {
		mp.Siblings[0][31] ^= 0xff
	}
	add("tampered sibling", e.Signers[2], vp, mp, verifier.ErrEligibility)

	vp, mp = e.Vote(2, electionID, 0, now)
	add("candidate zero", e.Signers[2], vp, mp, verifier.ErrCandidate)

	vp, mp = e.Vote(2, electionID, 99, now)
	add("unknown candidate", e.Signers[2], vp, mp, verifier.ErrCandidate)

	vp, mp = e.Vote(2, electionID, 3, now)
	add("inactive candidate", e.Signers[2], vp, mp, verifier.ErrCandidate)

	vp, mp = e.Vote(2, electionID, 2, now)
	add("rejections do not spend the nullifier", e.Signers[2], vp, mp, nil)

	vp, mp = e.Vote(4, electionID, 2, now.Add(-proof.MaxProofAge))
	add("oldest accepted timestamp", e.Signers[4], vp, mp, nil)

	vp, mp = e.Vote(5, electionID, 1, now.Add(proof.MaxClockSkew))
	add("newest accepted timestamp", e.Signers[5], vp, mp, nil)

	return cases
}

package client

import (
	"context"
	"fmt"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/vocdoni/ballot-ledger/api"
	"github.com/vocdoni/ballot-ledger/census/censusdb"
	"github.com/vocdoni/ballot-ledger/preflight"
	"github.com/vocdoni/ballot-ledger/types"
	"github.com/vocdoni/ballot-ledger/verifier"
)

var _ preflight.Source = (*HTTPclient)(nil)

func electionPath(endpoint string, electionID uint64) string {
	return api.ElectionPath(endpoint, electionID)
}

// CreateElection creates an election signed by the configured signer. A zero
// timestamp is set to the current time and an empty nonce to a random one.
func (c *HTTPclient) CreateElection(ctx context.Context, req *api.CreateElectionRequest) (*api.CreateElectionResponse, error) {
	if req.Timestamp == 0 {
		req.Timestamp = c.clock().Unix()
	}
	if req.Nonce == "" {
		req.Nonce = uuid.NewString()
	}
	data, status, err := c.signedRequest(ctx, req, api.ElectionsEndpoint)
	return result[api.CreateElectionResponse](data, status, err)
}

func (c *HTTPclient) Election(ctx context.Context, electionID uint64) (*api.ElectionResponse, error) {
	data, status, err := c.RequestContext(ctx, HTTPGET, nil, nil, electionPath(api.ElectionEndpoint, electionID))
	return result[api.ElectionResponse](data, status, err)
}

func (c *HTTPclient) Candidates(ctx context.Context, electionID uint64) ([]*types.Candidate, error) {
	data, status, err := c.RequestContext(ctx, HTTPGET, nil, nil, electionPath(api.CandidatesEndpoint, electionID))
	res, err := result[[]*types.Candidate](data, status, err)
	if err != nil {
		return nil, err
	}
	return *res, nil
}

func (c *HTTPclient) Candidate(ctx context.Context, electionID, candidateID uint64) (*types.Candidate, error) {
	p := api.EndpointWithParam(electionPath(api.CandidateEndpoint, electionID), api.CandidateURLParam, strconv.FormatUint(candidateID, 10))
	data, status, err := c.RequestContext(ctx, HTTPGET, nil, nil, p)
	return result[types.Candidate](data, status, err)
}

// SetCandidateActive switches a candidate on or off. The signer must be the
// election creator.
func (c *HTTPclient) SetCandidateActive(ctx context.Context, electionID, candidateID uint64, active bool) (*types.Candidate, error) {
	req := &api.SetCandidateRequest{
		ElectionID:  electionID,
		CandidateID: candidateID,
		Active:      active,
		Timestamp:   c.clock().Unix(),
		Nonce:       uuid.NewString(),
	}
	p := api.EndpointWithParam(electionPath(api.CandidateEndpoint, electionID), api.CandidateURLParam, strconv.FormatUint(candidateID, 10))
	data, status, err := c.signedRequest(ctx, req, p)
	return result[types.Candidate](data, status, err)
}

// UpdateMerkleRoot replaces the eligibility root. The signer must be the
// ledger owner.
func (c *HTTPclient) UpdateMerkleRoot(ctx context.Context, electionID uint64, root common.Hash) error {
	req := &api.UpdateRootRequest{
		ElectionID: electionID,
		MerkleRoot: root,
		Timestamp:  c.clock().Unix(),
		Nonce:      uuid.NewString(),
	}
	data, status, err := c.signedRequest(ctx, req, electionPath(api.RootEndpoint, electionID))
	return call(data, status, err, nil)
}

// EndElection closes an election. The signer must be the election creator.
func (c *HTTPclient) EndElection(ctx context.Context, electionID uint64) error {
	req := &api.EndElectionRequest{ElectionID: electionID, Timestamp: c.clock().Unix(), Nonce: uuid.NewString()}
	data, status, err := c.signedRequest(ctx, req, electionPath(api.EndEndpoint, electionID))
	return call(data, status, err, nil)
}

// CastVote submits a vote as the configured signer, who must be the voter
// the proofs were built for. Rejections unwrap to the ledger error classes.
func (c *HTTPclient) CastVote(ctx context.Context, electionID uint64, vp *types.VoteProof, mp *types.MerkleProof) error {
	if c.signer == nil {
		return fmt.Errorf("no signer configured")
	}
	req := &api.VoteRequest{ElectionID: electionID, Voter: c.signer.Address(), VoteProof: vp, MerkleProof: mp}
	data, status, err := c.signedRequest(ctx, req, electionPath(api.VotesEndpoint, electionID))
	return call(data, status, err, nil)
}

func (c *HTTPclient) NullifierStatus(ctx context.Context, electionID uint64, nullifier common.Hash) (*api.NullifierResponse, error) {
	p := api.EndpointWithParam(electionPath(api.NullifierEndpoint, electionID), api.NullifierURLParam, nullifier.Hex())
	data, status, err := c.RequestContext(ctx, HTTPGET, nil, nil, p)
	return result[api.NullifierResponse](data, status, err)
}

func (c *HTTPclient) Results(ctx context.Context, electionID uint64) (*types.Results, error) {
	data, status, err := c.RequestContext(ctx, HTTPGET, nil, nil, electionPath(api.ResultsEndpoint, electionID))
	return result[types.Results](data, status, err)
}

// View fetches the election view for nullifier, so a preflight.Mirror can
// run its checks against a remote ledger.
func (c *HTTPclient) View(ctx context.Context, electionID uint64, nullifier common.Hash) (*verifier.ElectionView, error) {
	data, status, err := c.RequestContext(ctx, HTTPGET, nil,
		[]string{api.NullifierQueryParam, nullifier.Hex()}, electionPath(api.ViewEndpoint, electionID))
	return result[verifier.ElectionView](data, status, err)
}

func (c *HTTPclient) NewCensus(ctx context.Context, identities []common.Address) (*api.CensusResponse, error) {
	data, status, err := c.RequestContext(ctx, HTTPPOST, &api.CensusRequest{Identities: identities}, nil, api.CensusEndpoint)
	return result[api.CensusResponse](data, status, err)
}

func (c *HTTPclient) Census(ctx context.Context, root common.Hash) (*api.CensusResponse, error) {
	p := api.EndpointWithParam(api.CensusByRootEndpoint, api.RootURLParam, root.Hex())
	data, status, err := c.RequestContext(ctx, HTTPGET, nil, nil, p)
	return result[api.CensusResponse](data, status, err)
}

// CensusProof fetches the Merkle proof of identity in the census with root.
func (c *HTTPclient) CensusProof(ctx context.Context, root common.Hash, identity common.Address) (*censusdb.Proof, error) {
	p := api.EndpointWithParam(api.CensusProofEndpoint, api.RootURLParam, root.Hex())
	p = api.EndpointWithParam(p, api.AddressURLParam, identity.Hex())
	data, status, err := c.RequestContext(ctx, HTTPGET, nil, nil, p)
	return result[censusdb.Proof](data, status, err)
}

package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/vocdoni/ballot-ledger/ledger"
	"github.com/vocdoni/ballot-ledger/log"
	"github.com/vocdoni/ballot-ledger/types"
)

// newElection creates an election. The signer of the body is its creator.
// POST /elections
func (a *API) newElection(w http.ResponseWriter, r *http.Request) {
	req := &CreateElectionRequest{}
	body, err := decodeBody(w, r, req)
	if err != nil {
		writeError(w, err)
		return
	}
	creator, err := requestSigner(r, body)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := checkFreshness(req.Timestamp, a.clock()); err != nil {
		writeError(w, err)
		return
	}
	if err := a.seen.markSeen(creator, body); err != nil {
		writeError(w, err)
		return
	}
	params := &types.ElectionParams{
		Title:                 req.Title,
		StartTime:             time.Unix(req.StartTime, 0),
		EndTime:               time.Unix(req.EndTime, 0),
		CandidateNames:        req.CandidateNames,
		CandidateDescriptions: req.CandidateDescriptions,
		CandidateImageURLs:    req.CandidateImageURLs,
		AuthorizedVoters:      req.AuthorizedVoters,
	}
	if req.MerkleRoot != nil {
		params.MerkleRoot = *req.MerkleRoot
	} else {
		ref, err := a.censusDB.New(req.AuthorizedVoters)
		if err != nil {
			writeError(w, err)
			return
		}
		params.MerkleRoot = ref.Root()
		log.Debugw("census built for election", "root", ref.Root().Hex(), "size", ref.Size())
	}
	id, err := a.ledger.CreateElection(r.Context(), creator, params)
	if err != nil {
		writeError(w, err)
		return
	}
	httpWriteJSON(w, &CreateElectionResponse{ElectionID: id, MerkleRoot: params.MerkleRoot})
}

// publishedElection returns an election as it may be shown to anyone: vote
// counts stay zero until the election is closed.
func (a *API) publishedElection(id uint64) (*types.Election, error) {
	e, err := a.ledger.Election(id)
	if err != nil {
		return nil, err
	}
	return e.SealTallies(), nil
}

// publishedCandidate is publishedElection for a single candidate.
func (a *API) publishedCandidate(id, candidateID uint64) (*types.Candidate, error) {
	e, err := a.publishedElection(id)
	if err != nil {
		return nil, err
	}
	c := e.Candidate(candidateID)
	if c == nil {
		return nil, fmt.Errorf("%w: %d", ledger.ErrCandidate, candidateID)
	}
	return c, nil
}

// election returns an election with its current status. Vote counts are
// hidden while it is active, see results.
// GET /elections/{electionId}
func (a *API) election(w http.ResponseWriter, r *http.Request) {
	id := electionIDFromContext(r.Context())
	e, err := a.publishedElection(id)
	if err != nil {
		writeError(w, err)
		return
	}
	status, err := a.ledger.Status(id)
	if err != nil {
		writeError(w, err)
		return
	}
	httpWriteJSON(w, &ElectionResponse{Election: e, Status: status.String()})
}

// GET /elections/{electionId}/candidates
func (a *API) candidates(w http.ResponseWriter, r *http.Request) {
	e, err := a.publishedElection(electionIDFromContext(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	httpWriteJSON(w, e.Candidates)
}

// GET /elections/{electionId}/candidates/{candidateId}
func (a *API) candidate(w http.ResponseWriter, r *http.Request) {
	candidateID, err := uint64Param(r, CandidateURLParam)
	if err != nil {
		ErrMalformedParam.WithErr(err).Write(w)
		return
	}
	c, err := a.publishedCandidate(electionIDFromContext(r.Context()), candidateID)
	if err != nil {
		writeError(w, err)
		return
	}
	httpWriteJSON(w, c)
}

// setCandidateActive switches a candidate on or off before the election
// opens. Only the creator may do so.
// POST /elections/{electionId}/candidates/{candidateId}
func (a *API) setCandidateActive(w http.ResponseWriter, r *http.Request) {
	id := electionIDFromContext(r.Context())
	candidateID, err := uint64Param(r, CandidateURLParam)
	if err != nil {
		ErrMalformedParam.WithErr(err).Write(w)
		return
	}
	req := &SetCandidateRequest{}
	caller, err := a.signedRequest(w, r, req, func() (uint64, int64) { return req.ElectionID, req.Timestamp })
	if err != nil {
		writeError(w, err)
		return
	}
	if req.CandidateID != candidateID {
		ErrMalformedBody.Withf("candidate %d does not match URL candidate %d", req.CandidateID, candidateID).Write(w)
		return
	}
	if err := a.ledger.SetCandidateActive(r.Context(), caller, id, candidateID, req.Active); err != nil {
		writeError(w, err)
		return
	}
	c, err := a.publishedCandidate(id, candidateID)
	if err != nil {
		writeError(w, err)
		return
	}
	httpWriteJSON(w, c)
}

// updateRoot replaces the eligibility root. Only the ledger owner may do so.
// POST /elections/{electionId}/root
func (a *API) updateRoot(w http.ResponseWriter, r *http.Request) {
	req := &UpdateRootRequest{}
	caller, err := a.signedRequest(w, r, req, func() (uint64, int64) { return req.ElectionID, req.Timestamp })
	if err != nil {
		writeError(w, err)
		return
	}
	if err := a.ledger.UpdateMerkleRoot(r.Context(), caller, req.ElectionID, req.MerkleRoot); err != nil {
		writeError(w, err)
		return
	}
	httpWriteOK(w)
}

// endElection closes an election after its end time. Only the creator may
// do so.
// POST /elections/{electionId}/end
func (a *API) endElection(w http.ResponseWriter, r *http.Request) {
	req := &EndElectionRequest{}
	caller, err := a.signedRequest(w, r, req, func() (uint64, int64) { return req.ElectionID, req.Timestamp })
	if err != nil {
		writeError(w, err)
		return
	}
	if err := a.ledger.EndElection(r.Context(), caller, req.ElectionID); err != nil {
		writeError(w, err)
		return
	}
	httpWriteOK(w)
}

// GET /elections/{electionId}/results
func (a *API) results(w http.ResponseWriter, r *http.Request) {
	res, err := a.ledger.Results(electionIDFromContext(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	httpWriteJSON(w, res)
}

// view returns the election view a vote spending the given nullifier is
// checked against.
// GET /elections/{electionId}/view?nullifier=<nullifier>
func (a *API) view(w http.ResponseWriter, r *http.Request) {
	nullifier, err := parseHash(r.URL.Query().Get(NullifierQueryParam))
	if err != nil {
		ErrMalformedNullifier.WithErr(err).Write(w)
		return
	}
	v, err := a.ledger.View(electionIDFromContext(r.Context()), nullifier)
	if err != nil {
		writeError(w, err)
		return
	}
	httpWriteJSON(w, v)
}

// signedRequest decodes a signed body into req and returns its signer. The
// ids callback reads the election id and timestamp of the decoded body: the
// election id must match the URL and the timestamp must be fresh. Each body
// is accepted once per signer.
func (a *API) signedRequest(w http.ResponseWriter, r *http.Request, req any,
	ids func() (uint64, int64),
) (common.Address, error) {
	body, err := decodeBody(w, r, req)
	if err != nil {
		return common.Address{}, err
	}
	signer, err := requestSigner(r, body)
	if err != nil {
		return common.Address{}, err
	}
	electionID, timestamp := ids()
	if urlID := electionIDFromContext(r.Context()); electionID != urlID {
		return common.Address{}, ErrMalformedBody.Withf("election %d does not match URL election %d", electionID, urlID)
	}
	if err := checkFreshness(timestamp, a.clock()); err != nil {
		return common.Address{}, err
	}
	if err := a.seen.markSeen(signer, body); err != nil {
		return common.Address{}, err
	}
	return signer, nil
}

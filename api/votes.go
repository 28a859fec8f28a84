package api

import (
	"errors"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"

	"github.com/vocdoni/ballot-ledger/storage"
)

// newVote casts a vote. The signer of the body is the voter. Rejections map
// to the error of their class, so the caller can tell a replay from a stale
// timestamp or an ineligible voter.
// POST /elections/{electionId}/votes
func (a *API) newVote(w http.ResponseWriter, r *http.Request) {
	id := electionIDFromContext(r.Context())
	req := &VoteRequest{}
	body, err := decodeBody(w, r, req)
	if err != nil {
		writeError(w, err)
		return
	}
	voter, err := requestSigner(r, body)
	if err != nil {
		writeError(w, err)
		return
	}
	if req.ElectionID != id {
		ErrMalformedBody.Withf("election %d does not match URL election %d", req.ElectionID, id).Write(w)
		return
	}
	if req.Voter != (common.Address{}) && req.Voter != voter {
		ErrUnauthorized.Withf("vote for %s signed by %s", req.Voter.Hex(), voter.Hex()).Write(w)
		return
	}
	if req.VoteProof == nil {
		ErrInvalidVoteProof.With("missing vote proof").Write(w)
		return
	}
	if err := a.ledger.CastVote(r.Context(), voter, id, req.VoteProof, req.MerkleProof); err != nil {
		writeError(w, err)
		return
	}
	httpWriteJSON(w, &VoteResponse{ElectionID: id, Nullifier: req.VoteProof.Nullifier})
}

// nullifierStatus reports whether a nullifier was spent and, if so, the
// commitment recorded with it.
// GET /elections/{electionId}/nullifiers/{nullifier}
func (a *API) nullifierStatus(w http.ResponseWriter, r *http.Request) {
	id := electionIDFromContext(r.Context())
	nullifier, err := parseHash(chi.URLParam(r, NullifierURLParam))
	if err != nil {
		ErrMalformedNullifier.WithErr(err).Write(w)
		return
	}
	used, err := a.ledger.IsNullifierUsed(id, nullifier)
	if err != nil {
		writeError(w, err)
		return
	}
	res := &NullifierResponse{Nullifier: nullifier, Used: used}
	if used {
		commitment, err := a.storage.Commitment(id, nullifier)
		switch {
		case err == nil:
			res.Commitment = &commitment
		case !errors.Is(err, storage.ErrNotFound):
			ErrGenericInternalServerError.WithErr(err).Write(w)
			return
		}
	}
	httpWriteJSON(w, res)
}

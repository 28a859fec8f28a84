package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/vocdoni/ballot-ledger/census/censusdb"
)

// newCensus builds and stores the eligibility tree of a list of identities.
// Building the same list twice returns the same census.
// POST /census
func (a *API) newCensus(w http.ResponseWriter, r *http.Request) {
	req := &CensusRequest{}
	if _, err := decodeBody(w, r, req); err != nil {
		writeError(w, err)
		return
	}
	ref, err := a.censusDB.New(req.Identities)
	if err != nil {
		writeError(w, err)
		return
	}
	httpWriteJSON(w, censusResponse(ref))
}

// GET /census/{root}
func (a *API) census(w http.ResponseWriter, r *http.Request) {
	root, err := parseHash(chi.URLParam(r, RootURLParam))
	if err != nil {
		ErrMalformedCensusRoot.WithErr(err).Write(w)
		return
	}
	ref, err := a.censusDB.LoadByRoot(root)
	if err != nil {
		writeError(w, err)
		return
	}
	httpWriteJSON(w, censusResponse(ref))
}

// censusProof returns the Merkle proof of one identity, ready to be used in
// a vote.
// GET /census/{root}/proof/{address}
func (a *API) censusProof(w http.ResponseWriter, r *http.Request) {
	root, err := parseHash(chi.URLParam(r, RootURLParam))
	if err != nil {
		ErrMalformedCensusRoot.WithErr(err).Write(w)
		return
	}
	addr, err := parseAddress(chi.URLParam(r, AddressURLParam))
	if err != nil {
		ErrMalformedAddress.WithErr(err).Write(w)
		return
	}
	proof, err := a.censusDB.ProofByRoot(root, addr)
	if err != nil {
		writeError(w, err)
		return
	}
	httpWriteJSON(w, proof)
}

func censusResponse(ref *censusdb.CensusRef) *CensusResponse {
	return &CensusResponse{ID: ref.ID, Root: ref.Root(), Size: ref.Size()}
}

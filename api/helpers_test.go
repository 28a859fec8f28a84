package api

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	qt "github.com/frankban/quicktest"

	"github.com/vocdoni/ballot-ledger/crypto/signatures/ethereum"
	"github.com/vocdoni/ballot-ledger/db/metadb"
	"github.com/vocdoni/ballot-ledger/internal/testutil"
	"github.com/vocdoni/ballot-ledger/ledger"
	"github.com/vocdoni/ballot-ledger/storage"
	"github.com/vocdoni/ballot-ledger/types"
)

// T is the start time of the elections created by the tests.
var T = time.Unix(1_760_000_000, 0)

type testAPI struct {
	t       *testing.T
	server  *httptest.Server
	clock   *testutil.Clock
	ledger  *ledger.Ledger
	owner   *ethereum.Signer
	creator *ethereum.Signer
}

func newTestSigner(t *testing.T, seed string) *ethereum.Signer {
	s, err := ethereum.NewSignerFromSeed([]byte(seed))
	qt.Assert(t, err, qt.IsNil)
	return s
}

func newTestAPI(t *testing.T) *testAPI {
	DisabledLogging = true
	ta := &testAPI{
		t:       t,
		clock:   testutil.NewClock(T.Add(-time.Minute)),
		owner:   newTestSigner(t, "owner"),
		creator: newTestSigner(t, "creator"),
	}
	st := storage.New(metadb.NewTest(t))
	l, err := ledger.New(ta.owner.Address(), st, ledger.WithClock(ta.clock.Now))
	qt.Assert(t, err, qt.IsNil)
	ta.ledger = l
	a, err := New(&APIConfig{Ledger: l, Storage: st, Clock: ta.clock.Now})
	qt.Assert(t, err, qt.IsNil)
	ta.server = httptest.NewServer(a.Router())
	t.Cleanup(ta.server.Close)
	return ta
}

// request sends body as JSON, signed by signer when it is not nil, and
// returns the status code and response body.
func (ta *testAPI) request(method, path string, body any, signer *ethereum.Signer) (int, []byte) {
	return ta.requestWithSignature(method, path, body, body, signer)
}

// requestWithSignature sends body with a signature of signed.
func (ta *testAPI) requestWithSignature(method, path string, signed, body any, signer *ethereum.Signer) (int, []byte) {
	payload := ta.marshal(body)
	req, err := http.NewRequest(method, ta.server.URL+path, bytes.NewReader(payload))
	qt.Assert(ta.t, err, qt.IsNil)
	req.Header.Set("Content-Type", "application/json")
	if signer != nil {
		sig, err := signer.Sign(ta.marshal(signed))
		qt.Assert(ta.t, err, qt.IsNil)
		req.Header.Set(SignatureHeader, sig.Hex())
	}
	resp, err := http.DefaultClient.Do(req)
	qt.Assert(ta.t, err, qt.IsNil)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	qt.Assert(ta.t, err, qt.IsNil)
	return resp.StatusCode, data
}

func (ta *testAPI) marshal(body any) []byte {
	if body == nil {
		return nil
	}
	payload, err := json.Marshal(body)
	qt.Assert(ta.t, err, qt.IsNil)
	return payload
}

// decode unmarshals a response body into out.
func (ta *testAPI) decode(data []byte, out any) {
	qt.Assert(ta.t, json.Unmarshal(data, out), qt.IsNil, qt.Commentf("%s", data))
}

// errorCode returns the code of an API error response.
func (ta *testAPI) errorCode(data []byte) int {
	var e struct {
		Code int `json:"code"`
	}
	ta.decode(data, &e)
	return e.Code
}

// createRequest returns the creation body of an election over [T, T+1h].
func (ta *testAPI) createRequest(e *testutil.Electorate, candidates int) *CreateElectionRequest {
	p := e.Params(T, T.Add(time.Hour), candidates)
	return &CreateElectionRequest{
		Title:                 p.Title,
		StartTime:             p.StartTime.Unix(),
		EndTime:               p.EndTime.Unix(),
		CandidateNames:        p.CandidateNames,
		CandidateDescriptions: p.CandidateDescriptions,
		CandidateImageURLs:    p.CandidateImageURLs,
		AuthorizedVoters:      p.AuthorizedVoters,
		Timestamp:             ta.clock.Now().Unix(),
	}
}

// createElection creates an election of e through the API and returns its id.
func (ta *testAPI) createElection(e *testutil.Electorate, candidates int) uint64 {
	status, data := ta.request(http.MethodPost, ElectionsEndpoint, ta.createRequest(e, candidates), ta.creator)
	qt.Assert(ta.t, status, qt.Equals, http.StatusOK, qt.Commentf("%s", data))
	res := &CreateElectionResponse{}
	ta.decode(data, res)
	return res.ElectionID
}

// vote posts a vote for election id signed by signer, on behalf of its
// address.
func (ta *testAPI) vote(id uint64, signer *ethereum.Signer, vp *types.VoteProof, mp *types.MerkleProof) (int, []byte) {
	req := &VoteRequest{ElectionID: id, Voter: signer.Address(), VoteProof: vp, MerkleProof: mp}
	return ta.request(http.MethodPost, ElectionPath(VotesEndpoint, id), req, signer)
}

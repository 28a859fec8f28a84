package client

import (
	"encoding/json"
	"fmt"

	"github.com/vocdoni/ballot-ledger/api"
	"github.com/vocdoni/ballot-ledger/ledger"
)

// APIError is an error response of the API. It unwraps to the ledger error
// class of its code, so errors.Is works the same on remote and local calls.
type APIError struct {
	Code       int    `json:"code"`
	Message    string `json:"error"`
	HTTPStatus int    `json:"-"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d (http %d): %s", e.Code, e.HTTPStatus, e.Message)
}

// Unwrap returns the ledger error class of the code, or nil.
func (e *APIError) Unwrap() error {
	return errorClasses[e.Code]
}

var errorClasses = map[int]error{
	api.ErrElectionNotFound.Code:      ledger.ErrElectionNotFound,
	api.ErrTimingViolation.Code:       ledger.ErrTiming,
	api.ErrInvalidVoteProof.Code:      ledger.ErrProofMalformed,
	api.ErrNullifierAlreadyUsed.Code:  ledger.ErrReplay,
	api.ErrInvalidCensusProof.Code:    ledger.ErrEligibility,
	api.ErrInvalidCandidate.Code:      ledger.ErrCandidate,
	api.ErrInvalidElectionParams.Code: ledger.ErrConstruction,
	api.ErrUnauthorized.Code:          ledger.ErrAuthorization,
	api.ErrElectionClosed.Code:        ledger.ErrElectionClosed,
}

func decodeError(status int, data []byte) error {
	e := &APIError{HTTPStatus: status}
	if err := json.Unmarshal(data, e); err != nil || e.Code == 0 {
		return &APIError{HTTPStatus: status, Message: string(data)}
	}
	return e
}

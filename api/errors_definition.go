//nolint:lll
package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/vocdoni/ballot-ledger/census"
	"github.com/vocdoni/ballot-ledger/census/censusdb"
	"github.com/vocdoni/ballot-ledger/ledger"
)

// The custom Error type satisfies the error interface.
// Error() returns a human-readable description of the error.
//
// Error codes in the 40001-49999 range are the user's fault,
// and they return HTTP Status 400, 401, 403, 404 or 409, whatever is most appropriate.
//
// Error codes 50001-59999 are the server's fault
// and they return HTTP Status 500 or 503, or something else if appropriate.
//
// NEVER change any of the current error codes, only append new errors after the current last 4XXX or 5XXX.
// If you notice there's a gap, DON'T fill in the gap: that code was used in the past and shouldn't be reused.
// There's no correlation between Code and HTTP Status.
var (
	ErrResourceNotFound      = Error{Code: 40001, HTTPstatus: http.StatusNotFound, Err: fmt.Errorf("resource not found")}
	ErrMalformedBody         = Error{Code: 40004, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("malformed JSON body")}
	ErrInvalidSignature      = Error{Code: 40005, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("invalid signature")}
	ErrMalformedElectionID   = Error{Code: 40006, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("malformed election ID")}
	ErrElectionNotFound      = Error{Code: 40007, HTTPstatus: http.StatusNotFound, Err: fmt.Errorf("election not found")}
	ErrInvalidCensusProof    = Error{Code: 40008, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("invalid census proof")}
	ErrInvalidVoteProof      = Error{Code: 40009, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("invalid vote proof")}
	ErrCensusNotFound        = Error{Code: 40011, HTTPstatus: http.StatusNotFound, Err: fmt.Errorf("census not found")}
	ErrUnauthorized          = Error{Code: 40014, HTTPstatus: http.StatusForbidden, Err: fmt.Errorf("unauthorized")}
	ErrMalformedParam        = Error{Code: 40015, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("malformed parameter")}
	ErrMalformedNullifier    = Error{Code: 40016, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("malformed nullifier")}
	ErrMalformedAddress      = Error{Code: 40017, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("malformed address")}
	ErrNullifierAlreadyUsed  = Error{Code: 40018, HTTPstatus: http.StatusConflict, Err: fmt.Errorf("nullifier already used")}
	ErrTimingViolation       = Error{Code: 40020, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("operation outside the allowed time window")}
	ErrInvalidCandidate      = Error{Code: 40023, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("invalid candidate")}
	ErrInvalidElectionParams = Error{Code: 40024, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("invalid election parameters")}
	ErrElectionClosed        = Error{Code: 40025, HTTPstatus: http.StatusConflict, Err: fmt.Errorf("election already closed")}
	ErrMissingSignature      = Error{Code: 40026, HTTPstatus: http.StatusUnauthorized, Err: fmt.Errorf("missing request signature")}
	ErrStaleRequest          = Error{Code: 40027, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("signed request expired")}
	ErrMalformedCensusRoot   = Error{Code: 40028, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("malformed census root")}
	ErrRequestReplayed       = Error{Code: 40029, HTTPstatus: http.StatusConflict, Err: fmt.Errorf("signed request already processed")}

	ErrMarshalingServerJSONFailed = Error{Code: 50001, HTTPstatus: http.StatusInternalServerError, Err: fmt.Errorf("marshaling (server-side) JSON failed")}
	ErrGenericInternalServerError = Error{Code: 50002, HTTPstatus: http.StatusInternalServerError, Err: fmt.Errorf("internal server error")}
)

// ledgerError maps a ledger or census error to its API error.
func ledgerError(err error) Error {
	var target Error
	switch {
	case errors.Is(err, ledger.ErrElectionNotFound):
		target = ErrElectionNotFound
	case errors.Is(err, ledger.ErrTiming):
		target = ErrTimingViolation
	case errors.Is(err, ledger.ErrProofMalformed):
		target = ErrInvalidVoteProof
	case errors.Is(err, ledger.ErrReplay):
		target = ErrNullifierAlreadyUsed
	case errors.Is(err, ledger.ErrEligibility):
		target = ErrInvalidCensusProof
	case errors.Is(err, ledger.ErrCandidate):
		target = ErrInvalidCandidate
	case errors.Is(err, ledger.ErrConstruction), errors.Is(err, census.ErrEmptyCensus):
		target = ErrInvalidElectionParams
	case errors.Is(err, ledger.ErrAuthorization):
		target = ErrUnauthorized
	case errors.Is(err, ledger.ErrElectionClosed):
		target = ErrElectionClosed
	case errors.Is(err, censusdb.ErrCensusNotFound):
		target = ErrCensusNotFound
	case errors.Is(err, census.ErrIdentityNotFound):
		target = ErrResourceNotFound
	default:
		return ErrGenericInternalServerError.WithErr(err)
	}
	return target.WithErr(err)
}

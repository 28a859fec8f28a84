package verifier

import "errors"

// Rejection classes of a vote attempt. Every error returned by Check wraps
// exactly one of them.
var (
	ErrElectionNotFound = errors.New("election not found")
	ErrTiming           = errors.New("timing violation")
	ErrProofMalformed   = errors.New("malformed proof")
	ErrReplay           = errors.New("nullifier already used")
	ErrEligibility      = errors.New("voter not eligible")
	ErrCandidate        = errors.New("invalid candidate")
)

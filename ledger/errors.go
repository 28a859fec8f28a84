package ledger

import (
	"errors"

	"github.com/vocdoni/ballot-ledger/verifier"
)

var (
	ErrConstruction   = errors.New("invalid election parameters")
	ErrAuthorization  = errors.New("caller not authorized")
	ErrElectionClosed = errors.New("election already closed")

	// Vote rejection classes, shared with the off-chain mirror.
	ErrElectionNotFound = verifier.ErrElectionNotFound
	ErrTiming           = verifier.ErrTiming
	ErrProofMalformed   = verifier.ErrProofMalformed
	ErrReplay           = verifier.ErrReplay
	ErrEligibility      = verifier.ErrEligibility
	ErrCandidate        = verifier.ErrCandidate
)

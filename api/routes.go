package api

import (
	"fmt"
	"net/url"
	"strings"
)

// Route constants for the API endpoints

const (
	// Health endpoints
	PingEndpoint = "/ping" // Health check endpoint

	// Election endpoints
	ElectionURLParam    = "electionId"                                                 // URL parameter for election ID
	CandidateURLParam   = "candidateId"                                                // URL parameter for candidate ID
	NullifierURLParam   = "nullifier"                                                  // URL parameter for nullifier
	NullifierQueryParam = "nullifier"                                                  // URL query param of the view endpoint
	ElectionsEndpoint   = "/elections"                                                 // POST: Create election (signed)
	ElectionEndpoint    = ElectionsEndpoint + "/{" + ElectionURLParam + "}"            // GET: Get election info
	CandidatesEndpoint  = ElectionEndpoint + "/candidates"                             // GET: List candidates
	CandidateEndpoint   = CandidatesEndpoint + "/{" + CandidateURLParam + "}"          // GET: Get candidate, POST: (de)activate it (signed, creator)
	VotesEndpoint       = ElectionEndpoint + "/votes"                                  // POST: Cast a vote
	RootEndpoint        = ElectionEndpoint + "/root"                                   // POST: Replace the eligibility root (signed, owner)
	EndEndpoint         = ElectionEndpoint + "/end"                                    // POST: Close the election (signed, creator)
	NullifierEndpoint   = ElectionEndpoint + "/nullifiers/{" + NullifierURLParam + "}" // GET: Nullifier status
	ResultsEndpoint     = ElectionEndpoint + "/results"                                // GET: Final tally
	ViewEndpoint        = ElectionEndpoint + "/view"                                   // GET: Election view for off-chain checks

	// Census endpoints
	RootURLParam         = "root"                                                    // URL parameter for census root
	AddressURLParam      = "address"                                                 // URL parameter for identity address
	CensusEndpoint       = "/census"                                                 // POST: Build a census from identities
	CensusByRootEndpoint = CensusEndpoint + "/{" + RootURLParam + "}"                // GET: Census info
	CensusProofEndpoint  = CensusByRootEndpoint + "/proof/{" + AddressURLParam + "}" // GET: Merkle proof of an identity

	// SignatureHeader carries the hex signature of the request body.
	SignatureHeader = "X-Signature"
)

// EndpointWithParam creates an endpoint URL by replacing the parameter
// placeholder with the actual value. Used to build fully qualified
// endpoint URLs.
func EndpointWithParam(path, key, param string) string {
	rawKey := fmt.Sprintf("{%s}", key)

	// Always try to replace the placeholder, even if it's after the '?'
	if strings.Contains(path, rawKey) {
		return strings.Replace(path, rawKey, url.PathEscape(param), 1)
	}

	// Fallback: add as query param
	escapedKey := url.QueryEscape(key)
	escapedVal := url.QueryEscape(param)

	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}

	return fmt.Sprintf("%s%s%s=%s", path, sep, escapedKey, escapedVal)
}

// ElectionPath returns path with the election id placeholder filled in.
func ElectionPath(path string, electionID uint64) string {
	return EndpointWithParam(path, ElectionURLParam, fmt.Sprintf("%d", electionID))
}

// LogExcludedPrefixes defines URL prefixes to exclude from request logging
var LogExcludedPrefixes = []string{
	PingEndpoint,
}

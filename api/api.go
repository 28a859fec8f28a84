// Package api exposes the ledger and the census store over HTTP. Votes and
// privileged requests are authenticated with an Ethereum personal-sign
// signature of the request body, and the recovered address is the acting
// principal.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/vocdoni/ballot-ledger/census/censusdb"
	"github.com/vocdoni/ballot-ledger/ledger"
	"github.com/vocdoni/ballot-ledger/log"
	stg "github.com/vocdoni/ballot-ledger/storage"
)

const (
	maxRequestBodyLog = 512 // Maximum length of request body to log
)

// APIConfig type represents the configuration for the API HTTP server.
type APIConfig struct {
	Host    string
	Port    int // When zero no listener is started, see Router.
	Ledger  *ledger.Ledger
	Storage *stg.Storage
	Clock   func() time.Time // Optional: clock for signed request freshness
}

// API type represents the API HTTP server.
type API struct {
	router   *chi.Mux
	server   *http.Server
	ledger   *ledger.Ledger
	storage  *stg.Storage
	censusDB *censusdb.CensusDB
	clock    func() time.Time
	seen     *seenRequests
}

// New creates a new API instance with the given configuration and starts
// the HTTP server in the background.
func New(conf *APIConfig) (*API, error) {
	if conf == nil {
		return nil, fmt.Errorf("missing API configuration")
	}
	if conf.Ledger == nil {
		return nil, fmt.Errorf("missing ledger instance")
	}
	if conf.Storage == nil {
		return nil, fmt.Errorf("missing storage instance")
	}
	a := &API{
		ledger:   conf.Ledger,
		storage:  conf.Storage,
		censusDB: conf.Storage.CensusDB(),
		clock:    conf.Clock,
		seen:     newSeenRequests(),
	}
	if a.clock == nil {
		a.clock = time.Now
	}
	a.initRouter()
	if conf.Port == 0 {
		return a, nil
	}
	a.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", conf.Host, conf.Port),
		Handler:           a.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Infow("starting API server", "host", conf.Host, "port", conf.Port)
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("failed to start the API server: %v", err)
		}
	}()
	return a, nil
}

// Router returns the chi router for testing purposes
func (a *API) Router() *chi.Mux {
	return a.router
}

// Shutdown stops the HTTP server, waiting for in-flight requests until ctx
// is done.
func (a *API) Shutdown(ctx context.Context) error {
	if a.server == nil {
		return nil
	}
	return a.server.Shutdown(ctx)
}

// registerHandlers registers all the HTTP handlers for the API endpoints.
func (a *API) registerHandlers() {
	log.Infow("register handler", "endpoint", PingEndpoint, "method", "GET")
	a.router.Get(PingEndpoint, func(w http.ResponseWriter, r *http.Request) {
		httpWriteOK(w)
	})
	// election endpoints
	log.Infow("register handler", "endpoint", ElectionsEndpoint, "method", "POST")
	a.router.Post(ElectionsEndpoint, a.newElection)

	election := a.router.With(electionIDMiddleware)
	log.Infow("register handler", "endpoint", ElectionEndpoint, "method", "GET")
	election.Get(ElectionEndpoint, a.election)
	log.Infow("register handler", "endpoint", CandidatesEndpoint, "method", "GET")
	election.Get(CandidatesEndpoint, a.candidates)
	log.Infow("register handler", "endpoint", CandidateEndpoint, "method", "GET")
	election.Get(CandidateEndpoint, a.candidate)
	log.Infow("register handler", "endpoint", CandidateEndpoint, "method", "POST")
	election.Post(CandidateEndpoint, a.setCandidateActive)
	log.Infow("register handler", "endpoint", RootEndpoint, "method", "POST")
	election.Post(RootEndpoint, a.updateRoot)
	log.Infow("register handler", "endpoint", EndEndpoint, "method", "POST")
	election.Post(EndEndpoint, a.endElection)
	log.Infow("register handler", "endpoint", ResultsEndpoint, "method", "GET")
	election.Get(ResultsEndpoint, a.results)
	log.Infow("register handler", "endpoint", ViewEndpoint, "method", "GET", "parameters", NullifierQueryParam)
	election.Get(ViewEndpoint, a.view)
	// vote endpoints
	log.Infow("register handler", "endpoint", VotesEndpoint, "method", "POST")
	election.Post(VotesEndpoint, a.newVote)
	log.Infow("register handler", "endpoint", NullifierEndpoint, "method", "GET")
	election.Get(NullifierEndpoint, a.nullifierStatus)
	// census endpoints
	log.Infow("register handler", "endpoint", CensusEndpoint, "method", "POST")
	a.router.Post(CensusEndpoint, a.newCensus)
	log.Infow("register handler", "endpoint", CensusByRootEndpoint, "method", "GET")
	a.router.Get(CensusByRootEndpoint, a.census)
	log.Infow("register handler", "endpoint", CensusProofEndpoint, "method", "GET")
	a.router.Get(CensusProofEndpoint, a.censusProof)
}

// initRouter creates the router with all the routes and middleware.
func (a *API) initRouter() {
	a.router = chi.NewRouter()
	a.router.Use(cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", SignatureHeader},
		AllowCredentials: true,
		MaxAge:           300,
	}).Handler)
	a.router.Use(loggingMiddleware(maxRequestBodyLog))
	a.router.Use(middleware.Recoverer)
	a.router.Use(middleware.Throttle(100))
	a.router.Use(middleware.ThrottleBacklog(5000, 40000, 60*time.Second))
	a.router.Use(middleware.Timeout(45 * time.Second))

	a.registerHandlers()
}

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/common"

	"github.com/vocdoni/ballot-ledger/api"
	"github.com/vocdoni/ballot-ledger/db/metadb"
	"github.com/vocdoni/ballot-ledger/ledger"
	"github.com/vocdoni/ballot-ledger/log"
	"github.com/vocdoni/ballot-ledger/storage"
	"github.com/vocdoni/ballot-ledger/verifier"
)

// Services holds all the running services
type Services struct {
	Storage *storage.Storage
	Ledger  *ledger.Ledger
	API     *api.API
}

func main() {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}

	log.Init(cfg.Log.Level, cfg.Log.Output, nil)
	log.Infow("starting ballot-ledger", "version", Version)

	if err := validateConfig(cfg); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	services, err := setupServices(cfg)
	if err != nil {
		log.Fatalf("Failed to setup services: %v", err)
	}
	defer shutdownServices(services)

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	sig := <-sigCh
	log.Infow("received signal, shutting down", "signal", sig.String())
}

// setupServices opens the database, reloads the ledger and starts the API.
func setupServices(cfg *Config) (*Services, error) {
	services := &Services{}

	log.Infow("initializing storage", "datadir", cfg.Datadir, "type", cfg.DB.Type)
	database, err := metadb.New(cfg.DB.Type, cfg.Datadir)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	services.Storage = storage.New(database)

	policy := verifier.Policy{MaxProofAge: cfg.Ledger.MaxProofAge, MaxClockSkew: cfg.Ledger.ClockSkew}
	owner := common.HexToAddress(cfg.Ledger.Owner)
	services.Ledger, err = ledger.New(owner, services.Storage, ledger.WithPolicy(policy))
	if err != nil {
		services.Storage.Close()
		return nil, fmt.Errorf("failed to load ledger: %w", err)
	}
	log.Infow("ledger loaded",
		"owner", owner.Hex(),
		"elections", services.Ledger.ElectionCount(),
		"maxProofAge", policy.MaxProofAge.String(),
		"clockSkew", policy.MaxClockSkew.String())

	services.API, err = api.New(&api.APIConfig{
		Host:    cfg.API.Host,
		Port:    cfg.API.Port,
		Ledger:  services.Ledger,
		Storage: services.Storage,
	})
	if err != nil {
		services.Storage.Close()
		return nil, fmt.Errorf("failed to start API: %w", err)
	}
	return services, nil
}

// shutdownServices stops the API and closes the database.
func shutdownServices(services *Services) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if services.API != nil {
		if err := services.API.Shutdown(ctx); err != nil {
			log.Warnw("API shutdown failed", "error", err)
		}
	}
	if services.Storage != nil {
		services.Storage.Close()
	}
	log.Info("shutdown complete")
}

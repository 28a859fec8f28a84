package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	flag "github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/vocdoni/ballot-ledger/db"
	"github.com/vocdoni/ballot-ledger/proof"
)

const (
	defaultAPIHost   = "0.0.0.0"
	defaultAPIPort   = 9090
	defaultLogLevel  = "info"
	defaultLogOutput = "stdout"
	defaultDatadir   = ".ballot-ledger" // Will be prefixed with user's home directory
	defaultDBType    = db.TypePebble
	shutdownTimeout  = 10 * time.Second
)

// Version is the build version, set at build time with -ldflags
var Version = "dev"

// Config holds the application configuration
type Config struct {
	API     APIConfig
	Ledger  LedgerConfig
	Log     LogConfig
	DB      DBConfig
	Datadir string
}

// APIConfig holds the API-specific configuration
type APIConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// LedgerConfig holds the ledger owner and the vote freshness window
type LedgerConfig struct {
	Owner       string        `mapstructure:"owner"`
	MaxProofAge time.Duration `mapstructure:"maxProofAge"`
	ClockSkew   time.Duration `mapstructure:"clockSkew"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Output string `mapstructure:"output"`
}

// DBConfig holds the database backend configuration
type DBConfig struct {
	Type string `mapstructure:"type"`
}

// loadConfig loads configuration from flags, environment variables, and defaults
func loadConfig() (*Config, error) {
	v := viper.New()

	userHomeDir, err := os.UserHomeDir()
	if err != nil {
		userHomeDir = "."
	}
	defaultDatadirPath := filepath.Join(userHomeDir, defaultDatadir)

	v.SetDefault("api.host", defaultAPIHost)
	v.SetDefault("api.port", defaultAPIPort)
	v.SetDefault("ledger.maxProofAge", proof.MaxProofAge)
	v.SetDefault("ledger.clockSkew", proof.MaxClockSkew)
	v.SetDefault("log.level", defaultLogLevel)
	v.SetDefault("log.output", defaultLogOutput)
	v.SetDefault("db.type", defaultDBType)
	v.SetDefault("datadir", defaultDatadirPath)

	// Configure flags
	flag.StringP("ledger.owner", "w", "", "address of the ledger owner, allowed to replace eligibility roots (required)")
	flag.Duration("ledger.maxProofAge", proof.MaxProofAge, "maximum age of a vote timestamp")
	flag.Duration("ledger.clockSkew", proof.MaxClockSkew, "maximum time a vote timestamp may be ahead of the ledger clock")
	flag.StringP("api.host", "a", defaultAPIHost, "API host")
	flag.IntP("api.port", "p", defaultAPIPort, "API port")
	flag.StringP("log.level", "l", defaultLogLevel, "log level (debug, info, warn, error)")
	flag.StringP("log.output", "o", defaultLogOutput, "log output (stdout, stderr or filepath)")
	flag.StringP("datadir", "d", defaultDatadirPath, "data directory for database files")
	flag.String("db.type", defaultDBType, fmt.Sprintf("database backend (%s or %s)", db.TypePebble, db.TypeInMem))

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "ballot-ledger v%s\n\n", Version)
		fmt.Fprintf(os.Stderr, "Usage: ballot-ledger [flags]\n\n")
		fmt.Fprintf(os.Stderr, "Flags:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nEnvironment variables are also available with the same name as flags,\n")
		fmt.Fprintf(os.Stderr, "  except for dots (.) which are replaced by underscores (_).\n")
		fmt.Fprintf(os.Stderr, "  For example, BALLOTLEDGER_LEDGER_OWNER or BALLOTLEDGER_API_PORT\n")
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  # Start with a persistent database in the default datadir\n")
		fmt.Fprintf(os.Stderr, "  ballot-ledger --ledger.owner=0x123...\n\n")
		fmt.Fprintf(os.Stderr, "  # Start an ephemeral ledger with debug logs\n")
		fmt.Fprintf(os.Stderr, "  ballot-ledger --ledger.owner=0x123... --db.type=%s --log.level=debug\n", db.TypeInMem)
	}

	flag.CommandLine.SortFlags = false
	flag.Parse()

	// Configure Viper to use environment variables
	v.SetEnvPrefix("BALLOTLEDGER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.BindPFlags(flag.CommandLine); err != nil {
		return nil, fmt.Errorf("error binding flags: %w", err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	return cfg, nil
}

// validateConfig validates the loaded configuration
func validateConfig(cfg *Config) error {
	if cfg.Ledger.Owner == "" {
		return fmt.Errorf("ledger owner is required (use --ledger.owner flag or BALLOTLEDGER_LEDGER_OWNER environment variable)")
	}
	if !common.IsHexAddress(cfg.Ledger.Owner) {
		return fmt.Errorf("invalid ledger owner address %q", cfg.Ledger.Owner)
	}
	if cfg.Ledger.MaxProofAge <= 0 || cfg.Ledger.ClockSkew < 0 {
		return fmt.Errorf("invalid vote freshness window: max age %s, clock skew %s",
			cfg.Ledger.MaxProofAge, cfg.Ledger.ClockSkew)
	}
	if cfg.API.Port <= 0 || cfg.API.Port > 65535 {
		return fmt.Errorf("invalid API port %d", cfg.API.Port)
	}
	switch cfg.DB.Type {
	case db.TypePebble, db.TypeInMem:
	default:
		return fmt.Errorf("invalid database type %q", cfg.DB.Type)
	}
	return nil
}

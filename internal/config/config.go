// Package config loads the validator's configuration from environment
// variables and an optional YAML overlay file, via a Load()/Validate()
// pair: safe defaults for operational knobs, no default for anything
// security sensitive.
package config

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all runtime configuration for a dan-core validator process.
type Config struct {
	// Identity & data directory
	ValidatorID    string
	DataDir        string
	Ed25519KeyPath string
	BLSKeyPath     string

	// Server
	ListenAddr  string // JSON-RPC (§6)
	MetricsAddr string
	HealthAddr  string

	// Storage backend
	StoreBackend string // "memory" | "goleveldb"
	StoreDir     string

	// Sharding / committee bootstrap
	NumPreshards int    // power of two, §4.1
	ChainID      string // gossip topic / domain separation namespace

	// Epoch manager (external collaborator, §6)
	EpochManagerAddr string

	// HotStuff pacemaker
	ViewTimeout     time.Duration
	ProposalTimeout time.Duration

	// Gossip
	GossipBootstrapPeers []string
}

// Load reads configuration from environment variables. Required values
// have no default and must be checked with Validate().
func Load() (*Config, error) {
	cfg := &Config{
		ValidatorID:    getEnv("VALIDATOR_ID", ""),
		DataDir:        getEnv("DATA_DIR", "./data"),
		Ed25519KeyPath: getEnv("ED25519_KEY_PATH", ""),
		BLSKeyPath:     getEnv("BLS_KEY_PATH", ""),

		ListenAddr:  getEnv("LISTEN_ADDR", "0.0.0.0:18000"),
		MetricsAddr: getEnv("METRICS_ADDR", "0.0.0.0:19000"),
		HealthAddr:  getEnv("HEALTH_ADDR", "0.0.0.0:19001"),

		StoreBackend: getEnv("STORE_BACKEND", "memory"),
		StoreDir:     getEnv("STORE_DIR", "./data/store"),

		NumPreshards: getEnvInt("NUM_PRESHARDS", 64),
		ChainID:      getEnv("CHAIN_ID", "dan-devnet"),

		EpochManagerAddr: getEnv("EPOCH_MANAGER_ADDR", ""),

		ViewTimeout:     getEnvDuration("VIEW_TIMEOUT", 5*time.Second),
		ProposalTimeout: getEnvDuration("PROPOSAL_TIMEOUT", 2*time.Second),

		GossipBootstrapPeers: parseList(getEnv("GOSSIP_BOOTSTRAP_PEERS", "")),
	}
	if cfg.Ed25519KeyPath == "" {
		cfg.Ed25519KeyPath = cfg.DataDir + "/ed25519_key.hex"
	}
	if cfg.BLSKeyPath == "" {
		cfg.BLSKeyPath = cfg.DataDir + "/bls_key.hex"
	}

	if path := getEnv("CONFIG_FILE", ""); path != "" {
		if err := applyYamlOverlay(cfg, path); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// yamlOverlay mirrors Config's fields that operators may want to pin in
// a checked-in file rather than per-process environment variables.
// Zero-value fields are left untouched so the file only needs to name
// what it overrides.
type yamlOverlay struct {
	ListenAddr           string   `yaml:"listen_addr"`
	MetricsAddr          string   `yaml:"metrics_addr"`
	HealthAddr           string   `yaml:"health_addr"`
	StoreBackend         string   `yaml:"store_backend"`
	StoreDir             string   `yaml:"store_dir"`
	NumPreshards         int      `yaml:"num_preshards"`
	ChainID              string   `yaml:"chain_id"`
	EpochManagerAddr     string   `yaml:"epoch_manager_addr"`
	ViewTimeout          string   `yaml:"view_timeout"`
	ProposalTimeout      string   `yaml:"proposal_timeout"`
	GossipBootstrapPeers []string `yaml:"gossip_bootstrap_peers"`
}

// applyYamlOverlay reads a YAML file, substitutes ${VAR_NAME} references
// against the process environment, and merges any non-zero fields into
// cfg. A field already set from the environment takes precedence only if
// the overlay leaves it zero; otherwise the file wins.
func applyYamlOverlay(cfg *Config, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read overlay file %s: %w", path, err)
	}
	expanded := substituteEnvVars(string(raw))

	var overlay yamlOverlay
	if err := yaml.Unmarshal([]byte(expanded), &overlay); err != nil {
		return fmt.Errorf("config: parse overlay file %s: %w", path, err)
	}

	if overlay.ListenAddr != "" {
		cfg.ListenAddr = overlay.ListenAddr
	}
	if overlay.MetricsAddr != "" {
		cfg.MetricsAddr = overlay.MetricsAddr
	}
	if overlay.HealthAddr != "" {
		cfg.HealthAddr = overlay.HealthAddr
	}
	if overlay.StoreBackend != "" {
		cfg.StoreBackend = overlay.StoreBackend
	}
	if overlay.StoreDir != "" {
		cfg.StoreDir = overlay.StoreDir
	}
	if overlay.NumPreshards != 0 {
		cfg.NumPreshards = overlay.NumPreshards
	}
	if overlay.ChainID != "" {
		cfg.ChainID = overlay.ChainID
	}
	if overlay.EpochManagerAddr != "" {
		cfg.EpochManagerAddr = overlay.EpochManagerAddr
	}
	if overlay.ViewTimeout != "" {
		d, err := time.ParseDuration(overlay.ViewTimeout)
		if err != nil {
			return fmt.Errorf("config: invalid view_timeout %q: %w", overlay.ViewTimeout, err)
		}
		cfg.ViewTimeout = d
	}
	if overlay.ProposalTimeout != "" {
		d, err := time.ParseDuration(overlay.ProposalTimeout)
		if err != nil {
			return fmt.Errorf("config: invalid proposal_timeout %q: %w", overlay.ProposalTimeout, err)
		}
		cfg.ProposalTimeout = d
	}
	if len(overlay.GossipBootstrapPeers) > 0 {
		cfg.GossipBootstrapPeers = overlay.GossipBootstrapPeers
	}
	return nil
}

// envVarPattern matches ${VAR_NAME} or ${VAR_NAME:-default}.
var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(:-([^}]*))?\}`)

// substituteEnvVars replaces ${VAR_NAME} with its environment value,
// falling back to the :- default when the variable is unset or empty.
func substituteEnvVars(content string) string {
	return envVarPattern.ReplaceAllStringFunc(content, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		if len(groups) < 2 {
			return match
		}
		varName := groups[1]
		defaultValue := ""
		if len(groups) >= 4 {
			defaultValue = groups[3]
		}
		if value := os.Getenv(varName); value != "" {
			return value
		}
		return defaultValue
	})
}

// Validate checks that all required configuration is present and
// internally consistent.
func (c *Config) Validate() error {
	var errs []string

	if c.ValidatorID == "" {
		errs = append(errs, "VALIDATOR_ID is required but not set")
	}
	if c.NumPreshards <= 0 || (c.NumPreshards&(c.NumPreshards-1)) != 0 {
		errs = append(errs, "NUM_PRESHARDS must be a power of two")
	}
	switch c.StoreBackend {
	case "memory", "goleveldb":
	default:
		errs = append(errs, fmt.Sprintf("STORE_BACKEND %q is not one of memory|goleveldb", c.StoreBackend))
	}
	if c.ViewTimeout <= 0 {
		errs = append(errs, "VIEW_TIMEOUT must be positive")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultValue
}

func parseList(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

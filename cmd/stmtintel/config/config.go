// Package config builds component configurations from CLI flags and
// environment settings.
package config

import (
	"fmt"

	"statement-intel-service/internal/api"
	"statement-intel-service/internal/classify"
	"statement-intel-service/internal/detect"
	"statement-intel-service/internal/normalize"
	"statement-intel-service/internal/store"

	"github.com/shopspring/decimal"
)

// CreateNormalizerConfig creates a normalizer configuration with CLI overrides.
func CreateNormalizerConfig(mcaMinAmount float64) (*normalize.Config, error) {
	config := normalize.DefaultConfig()

	if mcaMinAmount > 0 {
		config.MCAMinAmount = decimal.NewFromFloat(mcaMinAmount)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid normalizer config: %w", err)
	}
	return config, nil
}

// CreateDetectorConfig creates a detector configuration with CLI overrides.
func CreateDetectorConfig(minGroupSize int) (*detect.Config, error) {
	config := detect.DefaultConfig()

	if minGroupSize > 0 {
		config.MinGroupSize = minGroupSize
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid detector config: %w", err)
	}
	return config, nil
}

// CreateRuleset loads the classification ruleset, falling back to the
// built-in rules when no file is given.
func CreateRuleset(rulesFile string) (*classify.Ruleset, error) {
	if rulesFile == "" {
		return classify.DefaultRuleset(), nil
	}
	ruleset, err := classify.LoadRuleset(rulesFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load classification rules: %w", err)
	}
	return ruleset, nil
}

// CreateStore opens the persistence backend: SQLite when a database path is
// given, in-memory otherwise.
func CreateStore(dbPath string) (store.Store, error) {
	if dbPath == "" {
		return store.NewMemoryStore(), nil
	}
	return store.NewSQLiteStore(dbPath)
}

// CreateServerConfig creates the HTTP server configuration.
func CreateServerConfig(addr, jwtSecret string) (*api.Config, error) {
	config := api.DefaultConfig()
	if addr != "" {
		config.Addr = addr
	}
	config.JWTSecret = jwtSecret

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid server config: %w", err)
	}
	return config, nil
}

package normalize

import (
	"statement-intel-service/pkg/errors"

	"github.com/shopspring/decimal"
)

// Config holds configuration parameters for transaction normalization.
type Config struct {
	// MCAMinAmount is the minimum transaction amount for the MCA keyword
	// flag. Small fee lines match the keyword set too often to be useful.
	MCAMinAmount decimal.Decimal `json:"mca_min_amount"`

	// DefaultDirectionDebit makes ambiguous lines debits. Assuming an
	// outflow is the conservative reading for underwriting.
	DefaultDirectionDebit bool `json:"default_direction_debit"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		MCAMinAmount:          decimal.NewFromInt(100),
		DefaultDirectionDebit: true,
	}
}

// Validate checks if the normalizer configuration is valid.
func (c *Config) Validate() error {
	if c.MCAMinAmount.IsNegative() {
		return errors.ConfigurationError("mca_min_amount", c.MCAMinAmount.String(), nil)
	}
	return nil
}

// Clone creates a copy of the configuration.
func (c *Config) Clone() *Config {
	if c == nil {
		return nil
	}
	copied := *c
	return &copied
}

// Package detect identifies recurring payment patterns in a normalized
// transaction set: payroll runs, rent, MCA/lender debits, subscriptions and
// bank fees, each with a confidence score and anomaly flags.
//
// The detector uses a multi-stage approach:
//  1. Candidate grouping by normalized description key
//  2. Merging of prefix-related groups
//  3. Cadence classification from inter-occurrence gaps
//  4. Keyword classification and weighted confidence scoring
//  5. Per-transaction anomaly flagging within each group
package detect

import (
	"statement-intel-service/pkg/errors"

	"github.com/shopspring/decimal"
)

// Config holds configuration parameters for pattern detection.
type Config struct {
	// MinGroupSize is the minimum number of occurrences for a group to be
	// promoted to a pattern. A pattern requires repetition.
	MinGroupSize int `json:"min_group_size"`

	// AnomalyAmountRatio flags a member transaction whose amount is more
	// than this multiple of the group's median amount, or less than the
	// median divided by it. The median keeps a single outlier from moving
	// its own baseline.
	AnomalyAmountRatio decimal.Decimal `json:"anomaly_amount_ratio"`

	// MCATypicalMin and MCATypicalMax bound the amount range typical of
	// merchant cash advance debits; averages inside the range raise
	// confidence for mca_lender patterns.
	MCATypicalMin decimal.Decimal `json:"mca_typical_min"`
	MCATypicalMax decimal.Decimal `json:"mca_typical_max"`

	// MinPrefixTokens is the number of shared leading tokens required to
	// merge two candidate groups whose keys are not identical.
	MinPrefixTokens int `json:"min_prefix_tokens"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		MinGroupSize:       2,
		AnomalyAmountRatio: decimal.NewFromInt(2),
		MCATypicalMin:      decimal.NewFromInt(100),
		MCATypicalMax:      decimal.NewFromInt(5000),
		MinPrefixTokens:    2,
	}
}

// Validate checks if the detector configuration is valid.
func (c *Config) Validate() error {
	if c.MinGroupSize < 2 {
		return errors.ConfigurationError("min_group_size", c.MinGroupSize, nil).
			WithSuggestion("a pattern requires at least 2 occurrences")
	}
	if c.AnomalyAmountRatio.LessThanOrEqual(decimal.NewFromInt(1)) {
		return errors.ConfigurationError("anomaly_amount_ratio", c.AnomalyAmountRatio.String(), nil).
			WithSuggestion("the ratio must exceed 1 or every member is anomalous")
	}
	if c.MCATypicalMin.IsNegative() || c.MCATypicalMax.LessThan(c.MCATypicalMin) {
		return errors.ConfigurationError("mca_typical_range",
			c.MCATypicalMin.String()+"-"+c.MCATypicalMax.String(), nil)
	}
	if c.MinPrefixTokens < 1 {
		return errors.ConfigurationError("min_prefix_tokens", c.MinPrefixTokens, nil)
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

// Confidence signal weights. Weights are additive and the final score is
// capped at 100.
const (
	weightMCAKeyword       = 30
	weightDailyCadence     = 20
	weightHighCount        = 20
	weightTypicalMCARange  = 15
	weightAmountConsistent = 15

	highCountThreshold = 10
)

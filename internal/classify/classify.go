// Package classify provides deterministic keyword-based classification of
// recurring pattern groups. Rules are plain data: categories can be extended
// from a YAML file without touching the grouping or scoring algorithms.
package classify

import (
	"fmt"
	"os"
	"strings"

	"statement-intel-service/internal/models"

	"gopkg.in/yaml.v3"
)

// Rule maps a set of description keywords to a category. Rules are evaluated
// in priority order (lower value = higher priority) and the first keyword hit
// wins.
type Rule struct {
	Category models.Category `yaml:"category"`
	Priority int             `yaml:"priority"`
	Keywords []string        `yaml:"keywords"`
}

// Ruleset is an ordered collection of classification rules plus the keyword
// sets used for the MCA and NSF line-level flags.
type Ruleset struct {
	Rules       []Rule   `yaml:"rules"`
	MCAKeywords []string `yaml:"mca_keywords"`
	NSFKeywords []string `yaml:"nsf_keywords"`
}

// DefaultRuleset returns the compiled-in classification rules. MCA/lender
// keywords take highest priority since those patterns are business-critical
// to flag on funding applications.
func DefaultRuleset() *Ruleset {
	return &Ruleset{
		Rules: []Rule{
			{
				Category: models.CategoryMCALender,
				Priority: 0,
				Keywords: []string{
					"capital", "advance", "funding", "lending", "merchant",
					"mca", "daily pay", "lender",
				},
			},
			{
				Category: models.CategoryPayroll,
				Priority: 1,
				Keywords: []string{
					"payroll", "adp", "gusto", "paychex", "salary", "wages",
					"direct dep payroll",
				},
			},
			{
				Category: models.CategoryRentLease,
				Priority: 2,
				Keywords: []string{
					"rent", "lease", "property", "realty", "landlord", "mgmt",
				},
			},
			{
				Category: models.CategoryUtilities,
				Priority: 3,
				Keywords: []string{
					"electric", "gas", "water", "utility", "power", "energy",
					"internet", "comcast", "verizon", "at&t", "telecom",
				},
			},
			{
				Category: models.CategoryTransfers,
				Priority: 4,
				Keywords: []string{
					"transfer", "xfer", "zelle", "wire", "venmo", "online trf",
				},
			},
			{
				Category: models.CategoryBankFees,
				Priority: 5,
				Keywords: []string{
					"fee", "service charge", "maintenance", "overdraft",
					"nsf", "analysis charge",
				},
			},
			{
				Category: models.CategorySubscriptions,
				Priority: 6,
				Keywords: []string{
					"subscription", "netflix", "spotify", "adobe", "microsoft",
					"google", "software", "saas", "monthly plan",
				},
			},
		},
		MCAKeywords: []string{
			"ach", "loan", "payment", "lending", "merchant", "advance", "capital",
		},
		NSFKeywords: []string{
			"nsf", "insufficient funds", "returned item", "overdraft item",
		},
	}
}

// LoadRuleset reads a ruleset from a YAML file. Missing keyword sets fall
// back to the defaults so a file can override just the category rules.
func LoadRuleset(path string) (*Ruleset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read ruleset file: %w", err)
	}

	var rs Ruleset
	if err := yaml.Unmarshal(data, &rs); err != nil {
		return nil, fmt.Errorf("parse ruleset file: %w", err)
	}

	defaults := DefaultRuleset()
	if len(rs.Rules) == 0 {
		rs.Rules = defaults.Rules
	}
	if len(rs.MCAKeywords) == 0 {
		rs.MCAKeywords = defaults.MCAKeywords
	}
	if len(rs.NSFKeywords) == 0 {
		rs.NSFKeywords = defaults.NSFKeywords
	}

	if err := rs.Validate(); err != nil {
		return nil, err
	}
	return &rs, nil
}

// Validate checks that every rule names a known category and carries at
// least one keyword.
func (rs *Ruleset) Validate() error {
	for i, rule := range rs.Rules {
		if !rule.Category.IsValid() {
			return fmt.Errorf("rule %d: unknown category %q", i, rule.Category)
		}
		if len(rule.Keywords) == 0 {
			return fmt.Errorf("rule %d (%s): no keywords", i, rule.Category)
		}
	}
	return nil
}

// Classify assigns a category to a normalized group description. Rules are
// checked in priority order; the default category is "other" when nothing
// matches.
func (rs *Ruleset) Classify(description string) models.Category {
	desc := strings.ToLower(description)

	best := models.CategoryOther
	bestPriority := -1
	for _, rule := range rs.Rules {
		if bestPriority != -1 && rule.Priority >= bestPriority {
			continue
		}
		for _, kw := range rule.Keywords {
			if strings.Contains(desc, kw) {
				best = rule.Category
				bestPriority = rule.Priority
				break
			}
		}
	}
	return best
}

// MatchesMCA reports whether the description contains any MCA/lender keyword.
func (rs *Ruleset) MatchesMCA(description string) bool {
	return containsAnyKeyword(description, rs.MCAKeywords)
}

// MatchesNSF reports whether the line matches insufficient-funds keywords.
func (rs *Ruleset) MatchesNSF(description string) bool {
	return containsAnyKeyword(description, rs.NSFKeywords)
}

func containsAnyKeyword(s string, keywords []string) bool {
	lower := strings.ToLower(s)
	for _, kw := range keywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

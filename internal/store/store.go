// Package store persists the per-opportunity financial intelligence records:
// bank transactions, recurring patterns, and the analysis aggregate.
//
// The store is treated as opaque CRUD by the rest of the pipeline. Two
// implementations exist: an in-memory store for tests and development, and a
// SQLite-backed store for standalone operation. Both guarantee that
// "replace" operations are atomic per opportunity so concurrent readers
// never observe half-old, half-new row sets.
package store

import (
	"context"

	"statement-intel-service/internal/models"
)

// Store is the persistence contract for the statement intelligence core.
type Store interface {
	// GetAnalysis returns the analysis record for an opportunity, or a
	// store error with CodeRecordMissing when none exists.
	GetAnalysis(ctx context.Context, opportunityID string) (*models.FinancialAnalysis, error)

	// SaveAnalysis inserts or updates the analysis record.
	SaveAnalysis(ctx context.Context, analysis *models.FinancialAnalysis) error

	// ReplaceTransactions atomically deletes all transactions for the
	// opportunity and inserts the new set. A re-parse is never additive.
	ReplaceTransactions(ctx context.Context, opportunityID string, txs []*models.BankTransaction) error

	// ListTransactions returns all transactions for the opportunity ordered
	// by date.
	ListTransactions(ctx context.Context, opportunityID string) ([]*models.BankTransaction, error)

	// ApplyDetection atomically replaces the opportunity's pattern set and
	// rewrites the transactions carrying the detector's group assignments.
	ApplyDetection(ctx context.Context, opportunityID string, patterns []*models.RecurringPattern, txs []*models.BankTransaction) error

	// GetPattern returns a single pattern by id.
	GetPattern(ctx context.Context, patternID string) (*models.RecurringPattern, error)

	// UpdatePattern persists review-state mutations on an existing pattern.
	UpdatePattern(ctx context.Context, pattern *models.RecurringPattern) error

	// ListPatterns returns all patterns for the opportunity in the contract
	// display order (MCA first, then descending total amount).
	ListPatterns(ctx context.Context, opportunityID string) ([]*models.RecurringPattern, error)

	// Close releases any underlying resources.
	Close() error
}

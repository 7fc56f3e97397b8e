package store

import (
	"context"
	"sync"

	"statement-intel-service/internal/models"
	"statement-intel-service/pkg/errors"
)

// MemoryStore is an in-memory Store used by tests and local development.
// All mutating operations copy their inputs so callers cannot alias stored
// state.
type MemoryStore struct {
	mu           sync.RWMutex
	analyses     map[string]*models.FinancialAnalysis
	transactions map[string][]*models.BankTransaction // keyed by opportunity id
	patterns     map[string][]*models.RecurringPattern
	patternIndex map[string]string // pattern id -> opportunity id
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		analyses:     make(map[string]*models.FinancialAnalysis),
		transactions: make(map[string][]*models.BankTransaction),
		patterns:     make(map[string][]*models.RecurringPattern),
		patternIndex: make(map[string]string),
	}
}

// GetAnalysis implements Store.
func (m *MemoryStore) GetAnalysis(ctx context.Context, opportunityID string) (*models.FinancialAnalysis, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	analysis, ok := m.analyses[opportunityID]
	if !ok {
		return nil, errors.StoreError(errors.CodeRecordMissing, "get_analysis", nil).
			WithContext("opportunity_id", opportunityID)
	}
	copied := *analysis
	return &copied, nil
}

// SaveAnalysis implements Store.
func (m *MemoryStore) SaveAnalysis(ctx context.Context, analysis *models.FinancialAnalysis) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	copied := *analysis
	m.analyses[analysis.OpportunityID] = &copied
	return nil
}

// ReplaceTransactions implements Store.
func (m *MemoryStore) ReplaceTransactions(ctx context.Context, opportunityID string, txs []*models.BankTransaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.transactions[opportunityID] = copyTransactions(txs)
	return nil
}

// ListTransactions implements Store.
func (m *MemoryStore) ListTransactions(ctx context.Context, opportunityID string) ([]*models.BankTransaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := copyTransactions(m.transactions[opportunityID])
	models.SortTransactionsByDate(result)
	return result, nil
}

// ApplyDetection implements Store.
func (m *MemoryStore) ApplyDetection(ctx context.Context, opportunityID string, patterns []*models.RecurringPattern, txs []*models.BankTransaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Drop index entries for the prior pattern set before replacing it.
	for _, old := range m.patterns[opportunityID] {
		delete(m.patternIndex, old.ID)
	}

	m.patterns[opportunityID] = copyPatterns(patterns)
	for _, p := range patterns {
		m.patternIndex[p.ID] = opportunityID
	}
	m.transactions[opportunityID] = copyTransactions(txs)
	return nil
}

// GetPattern implements Store.
func (m *MemoryStore) GetPattern(ctx context.Context, patternID string) (*models.RecurringPattern, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	opportunityID, ok := m.patternIndex[patternID]
	if !ok {
		return nil, errors.StoreError(errors.CodeRecordMissing, "get_pattern", nil).
			WithContext("pattern_id", patternID)
	}
	for _, p := range m.patterns[opportunityID] {
		if p.ID == patternID {
			copied := *p
			return &copied, nil
		}
	}
	return nil, errors.StoreError(errors.CodeRecordMissing, "get_pattern", nil).
		WithContext("pattern_id", patternID)
}

// UpdatePattern implements Store.
func (m *MemoryStore) UpdatePattern(ctx context.Context, pattern *models.RecurringPattern) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	opportunityID, ok := m.patternIndex[pattern.ID]
	if !ok {
		return errors.StoreError(errors.CodeRecordMissing, "update_pattern", nil).
			WithContext("pattern_id", pattern.ID)
	}
	for i, p := range m.patterns[opportunityID] {
		if p.ID == pattern.ID {
			copied := *pattern
			m.patterns[opportunityID][i] = &copied
			return nil
		}
	}
	return errors.StoreError(errors.CodeRecordMissing, "update_pattern", nil).
		WithContext("pattern_id", pattern.ID)
}

// ListPatterns implements Store.
func (m *MemoryStore) ListPatterns(ctx context.Context, opportunityID string) ([]*models.RecurringPattern, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := copyPatterns(m.patterns[opportunityID])
	models.SortPatternsForDisplay(result)
	return result, nil
}

// Close implements Store.
func (m *MemoryStore) Close() error {
	return nil
}

func copyTransactions(txs []*models.BankTransaction) []*models.BankTransaction {
	result := make([]*models.BankTransaction, len(txs))
	for i, tx := range txs {
		copied := *tx
		if tx.Balance != nil {
			b := *tx.Balance
			copied.Balance = &b
		}
		if tx.RecurringGroupID != nil {
			g := *tx.RecurringGroupID
			copied.RecurringGroupID = &g
		}
		if tx.Category != nil {
			c := *tx.Category
			copied.Category = &c
		}
		result[i] = &copied
	}
	return result
}

func copyPatterns(patterns []*models.RecurringPattern) []*models.RecurringPattern {
	result := make([]*models.RecurringPattern, len(patterns))
	for i, p := range patterns {
		copied := *p
		result[i] = &copied
	}
	return result
}

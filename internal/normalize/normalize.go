// Package normalize converts raw per-document statement text into
// structured bank transactions and computes the per-opportunity financial
// aggregates.
package normalize

import (
	"strings"
	"time"

	"statement-intel-service/internal/classify"
	"statement-intel-service/internal/models"
	"statement-intel-service/pkg/logger"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Normalizer turns extracted statement text into BankTransaction rows.
// Line parsing is delegated to format strategies tried in order; the
// generic parser is always last.
type Normalizer struct {
	config  *Config
	ruleset *classify.Ruleset
	parsers []LineParser
	logger  logger.Logger
}

// NewNormalizer creates a normalizer with the given configuration and
// classification ruleset. Nil arguments fall back to defaults.
func NewNormalizer(config *Config, ruleset *classify.Ruleset, extraParsers ...LineParser) *Normalizer {
	if config == nil {
		config = DefaultConfig()
	}
	if ruleset == nil {
		ruleset = classify.DefaultRuleset()
	}

	parsers := append([]LineParser{}, extraParsers...)
	parsers = append(parsers, NewGenericLineParser(config.DefaultDirectionDebit))

	return &Normalizer{
		config:  config,
		ruleset: ruleset,
		parsers: parsers,
		logger:  logger.GetGlobalLogger().WithComponent("normalizer"),
	}
}

// Normalize parses every document's text into transactions for the given
// opportunity. Documents are processed in input order so the result is
// deterministic across re-parses. Informational lines yielding no date or
// amount are discarded.
func (n *Normalizer) Normalize(opportunityID string, documents []string) []*models.BankTransaction {
	var transactions []*models.BankTransaction

	for docIdx, text := range documents {
		lines := strings.Split(text, "\n")
		parsed := 0
		for _, line := range lines {
			pl, ok := n.parseLine(line)
			if !ok {
				continue
			}
			if pl.Amount.IsZero() {
				continue
			}
			transactions = append(transactions, n.buildTransaction(opportunityID, pl))
			parsed++
		}
		n.logger.WithFields(logger.Fields{
			"opportunity_id": opportunityID,
			"document_index": docIdx,
			"lines":          len(lines),
			"transactions":   parsed,
		}).Debug("normalized document")
	}

	models.SortTransactionsByDate(transactions)
	return transactions
}

func (n *Normalizer) parseLine(line string) (*ParsedLine, bool) {
	for _, parser := range n.parsers {
		if pl, ok := parser.ParseLine(line); ok {
			return pl, true
		}
	}
	return nil, false
}

func (n *Normalizer) buildTransaction(opportunityID string, pl *ParsedLine) *models.BankTransaction {
	tx := &models.BankTransaction{
		ID:              uuid.NewString(),
		OpportunityID:   opportunityID,
		TransactionDate: pl.Date,
		Description:     pl.Description,
		Debit:           decimal.Zero,
		Credit:          decimal.Zero,
		Balance:         pl.Balance,
	}

	if pl.Direction == DirectionCredit {
		tx.Credit = pl.Amount
	} else {
		tx.Debit = pl.Amount
	}

	// MCA keyword hits on small amounts are almost always fees, not lender
	// debits, so the flag requires a minimum amount.
	if n.ruleset.MatchesMCA(pl.Description) && pl.Amount.GreaterThan(n.config.MCAMinAmount) {
		tx.IsMCA = true
	}

	return tx
}

// ComputeAggregates recalculates the FinancialAnalysis aggregate fields
// from the full transaction set. The caller owns the status transition.
func (n *Normalizer) ComputeAggregates(fa *models.FinancialAnalysis, txs []*models.BankTransaction) {
	fa.TotalTransactions = len(txs)
	fa.TotalDeposits = decimal.Zero
	fa.TotalWithdrawals = decimal.Zero
	fa.TotalMCAPayments = decimal.Zero
	fa.NSFCount = 0
	fa.NegativeDaysCount = 0
	fa.DateRangeStart = nil
	fa.DateRangeEnd = nil

	negativeDays := make(map[string]bool)
	var start, end time.Time

	for _, tx := range txs {
		fa.TotalDeposits = fa.TotalDeposits.Add(tx.Credit)
		fa.TotalWithdrawals = fa.TotalWithdrawals.Add(tx.Debit)
		if tx.IsMCA && !tx.Debit.IsZero() {
			fa.TotalMCAPayments = fa.TotalMCAPayments.Add(tx.Debit)
		}
		if n.ruleset.MatchesNSF(tx.Description) {
			fa.NSFCount++
		}
		if tx.Balance != nil && tx.Balance.IsNegative() {
			negativeDays[tx.TransactionDate.Format(models.DateFormat)] = true
		}

		if start.IsZero() || tx.TransactionDate.Before(start) {
			start = tx.TransactionDate
		}
		if end.IsZero() || tx.TransactionDate.After(end) {
			end = tx.TransactionDate
		}
	}

	fa.NetCashFlow = fa.TotalDeposits.Sub(fa.TotalWithdrawals)
	fa.NegativeDaysCount = len(negativeDays)
	if !start.IsZero() {
		fa.DateRangeStart = &start
		fa.DateRangeEnd = &end
	}
}

// Package models defines the entities shared by the statement intelligence
// pipeline: bank transactions, recurring payment patterns, and the
// per-opportunity financial analysis record.
//
// Field names used in JSON serialization are the external record store
// names and are load-bearing for every consumer built against this core.
// They must not be renamed.
package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DateFormat is the wire format for calendar dates. Transaction dates carry
// no time component.
const DateFormat = "2006-01-02"

// ParsingStatus represents the lifecycle state of an opportunity's
// statement ingestion run.
type ParsingStatus string

const (
	StatusPending    ParsingStatus = "pending"
	StatusProcessing ParsingStatus = "processing"
	StatusParsed     ParsingStatus = "parsed"
	StatusFailed     ParsingStatus = "failed"
)

// IsValid checks if the parsing status is a known value.
func (s ParsingStatus) IsValid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusParsed, StatusFailed:
		return true
	}
	return false
}

// CanTransitionTo reports whether the status may move to next. The lifecycle
// only moves forward (pending -> processing -> parsed|failed); a new
// ingestion request from a terminal state re-enters processing.
func (s ParsingStatus) CanTransitionTo(next ParsingStatus) bool {
	switch s {
	case StatusPending:
		return next == StatusProcessing
	case StatusProcessing:
		return next == StatusParsed || next == StatusFailed
	case StatusParsed, StatusFailed:
		return next == StatusProcessing
	}
	return false
}

// Category classifies a recurring pattern by the kind of obligation or
// income it represents.
type Category string

const (
	CategoryMCALender     Category = "mca_lender"
	CategoryPayroll       Category = "payroll"
	CategoryRentLease     Category = "rent_lease"
	CategoryUtilities     Category = "utilities"
	CategoryTransfers     Category = "transfers"
	CategoryBankFees      Category = "bank_fees"
	CategorySubscriptions Category = "subscriptions"
	CategoryOther         Category = "other"
)

// AllCategories lists every valid category value.
func AllCategories() []Category {
	return []Category{
		CategoryMCALender, CategoryPayroll, CategoryRentLease,
		CategoryUtilities, CategoryTransfers, CategoryBankFees,
		CategorySubscriptions, CategoryOther,
	}
}

// IsValid checks if the category is a known value.
func (c Category) IsValid() bool {
	for _, valid := range AllCategories() {
		if c == valid {
			return true
		}
	}
	return false
}

// Frequency classifies the cadence of a recurring pattern.
type Frequency string

const (
	FrequencyDaily     Frequency = "daily"
	FrequencyWeekly    Frequency = "weekly"
	FrequencyBiweekly  Frequency = "biweekly"
	FrequencyMonthly   Frequency = "monthly"
	FrequencyIrregular Frequency = "irregular"
)

// IsValid checks if the frequency is a known value.
func (f Frequency) IsValid() bool {
	switch f {
	case FrequencyDaily, FrequencyWeekly, FrequencyBiweekly, FrequencyMonthly, FrequencyIrregular:
		return true
	}
	return false
}

// ConfidenceBand labels a confidence score for display.
type ConfidenceBand string

const (
	BandHigh   ConfidenceBand = "High"
	BandMedium ConfidenceBand = "Medium"
	BandLow    ConfidenceBand = "Low"
)

// BandForScore maps a confidence score to its display band.
func BandForScore(score int) ConfidenceBand {
	switch {
	case score >= 75:
		return BandHigh
	case score >= 50:
		return BandMedium
	default:
		return BandLow
	}
}

// BankTransaction is one normalized statement line for an opportunity.
// Exactly one of Debit/Credit is normally nonzero; informational lines with
// both zero are discarded during normalization.
type BankTransaction struct {
	ID               string
	OpportunityID    string
	TransactionDate  time.Time
	Description      string
	Debit            decimal.Decimal
	Credit           decimal.Decimal
	Balance          *decimal.Decimal
	IsMCA            bool
	IsRecurring      bool
	RecurringGroupID *string
	Category         *Category
	IsAnomaly        bool
}

// Amount returns the transaction's nonzero amount, preferring debit when
// both are set.
func (t *BankTransaction) Amount() decimal.Decimal {
	if !t.Debit.IsZero() {
		return t.Debit
	}
	return t.Credit
}

// IsDebit reports whether the transaction is an outflow.
func (t *BankTransaction) IsDebit() bool {
	return !t.Debit.IsZero()
}

// IsCredit reports whether the transaction is an inflow.
func (t *BankTransaction) IsCredit() bool {
	return t.Debit.IsZero() && !t.Credit.IsZero()
}

// Validate performs basic validation on the BankTransaction.
func (t *BankTransaction) Validate() error {
	if strings.TrimSpace(t.ID) == "" {
		return fmt.Errorf("transaction id cannot be empty")
	}
	if strings.TrimSpace(t.OpportunityID) == "" {
		return fmt.Errorf("transaction opportunity_id cannot be empty")
	}
	if t.TransactionDate.IsZero() {
		return fmt.Errorf("transaction date cannot be zero")
	}
	if t.Debit.IsNegative() {
		return fmt.Errorf("debit cannot be negative: %s", t.Debit)
	}
	if t.Credit.IsNegative() {
		return fmt.Errorf("credit cannot be negative: %s", t.Credit)
	}
	if t.IsRecurring && t.RecurringGroupID == nil {
		return fmt.Errorf("recurring transaction must reference a recurring group")
	}
	if !t.IsRecurring && t.RecurringGroupID != nil {
		return fmt.Errorf("non-recurring transaction cannot reference a recurring group")
	}
	if t.Category != nil && !t.Category.IsValid() {
		return fmt.Errorf("invalid category: %s", *t.Category)
	}
	return nil
}

// String returns a string representation of the BankTransaction.
func (t *BankTransaction) String() string {
	return fmt.Sprintf("BankTransaction{ID: %s, Date: %s, Desc: %q, Debit: %s, Credit: %s}",
		t.ID, t.TransactionDate.Format(DateFormat), t.Description, t.Debit, t.Credit)
}

// bankTransactionJSON is the wire shape with external field names.
type bankTransactionJSON struct {
	ID               string    `json:"id"`
	OpportunityID    string    `json:"opportunity_id"`
	TransactionDate  string    `json:"transaction_date"`
	Description      string    `json:"description"`
	Debit            string    `json:"debit"`
	Credit           string    `json:"credit"`
	Balance          *string   `json:"balance"`
	IsMCA            bool      `json:"is_mca"`
	IsRecurring      bool      `json:"is_recurring"`
	RecurringGroupID *string   `json:"recurring_group_id"`
	Category         *Category `json:"category"`
	IsAnomaly        bool      `json:"is_anomaly"`
}

// MarshalJSON serializes amounts as decimal strings and dates without a time
// component.
func (t *BankTransaction) MarshalJSON() ([]byte, error) {
	var balance *string
	if t.Balance != nil {
		s := t.Balance.String()
		balance = &s
	}
	return json.Marshal(&bankTransactionJSON{
		ID:               t.ID,
		OpportunityID:    t.OpportunityID,
		TransactionDate:  t.TransactionDate.Format(DateFormat),
		Description:      t.Description,
		Debit:            t.Debit.String(),
		Credit:           t.Credit.String(),
		Balance:          balance,
		IsMCA:            t.IsMCA,
		IsRecurring:      t.IsRecurring,
		RecurringGroupID: t.RecurringGroupID,
		Category:         t.Category,
		IsAnomaly:        t.IsAnomaly,
	})
}

// UnmarshalJSON parses the wire shape back into a BankTransaction.
func (t *BankTransaction) UnmarshalJSON(data []byte) error {
	var aux bankTransactionJSON
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	date, err := time.Parse(DateFormat, aux.TransactionDate)
	if err != nil {
		return fmt.Errorf("invalid transaction_date format: %w", err)
	}
	debit, err := decimal.NewFromString(aux.Debit)
	if err != nil {
		return fmt.Errorf("invalid debit format: %w", err)
	}
	credit, err := decimal.NewFromString(aux.Credit)
	if err != nil {
		return fmt.Errorf("invalid credit format: %w", err)
	}
	var balance *decimal.Decimal
	if aux.Balance != nil {
		b, err := decimal.NewFromString(*aux.Balance)
		if err != nil {
			return fmt.Errorf("invalid balance format: %w", err)
		}
		balance = &b
	}

	t.ID = aux.ID
	t.OpportunityID = aux.OpportunityID
	t.TransactionDate = date
	t.Description = aux.Description
	t.Debit = debit
	t.Credit = credit
	t.Balance = balance
	t.IsMCA = aux.IsMCA
	t.IsRecurring = aux.IsRecurring
	t.RecurringGroupID = aux.RecurringGroupID
	t.Category = aux.Category
	t.IsAnomaly = aux.IsAnomaly
	return nil
}

// RecurringPattern is a detected group of recurring transactions with its
// aggregate statistics and review state. Amount statistics are snapshots
// from the last detection run; only the Verification overlay mutates the
// review fields afterward.
type RecurringPattern struct {
	ID                 string
	OpportunityID      string
	DescriptionPattern string
	Category           Category
	Frequency          Frequency
	TransactionCount   int
	TotalAmount        decimal.Decimal
	AvgAmount          decimal.Decimal
	MinAmount          decimal.Decimal
	MaxAmount          decimal.Decimal
	FirstOccurrence    time.Time
	LastOccurrence     time.Time
	ConfidenceScore    int
	IsMCA              bool
	Verified           bool
	RepNotes           string
}

// Band returns the display band for the pattern's confidence score.
func (p *RecurringPattern) Band() ConfidenceBand {
	return BandForScore(p.ConfidenceScore)
}

// GroupKey returns the stable key used to match this pattern against
// patterns from a prior detection run when carrying forward review state.
func (p *RecurringPattern) GroupKey() string {
	return p.DescriptionPattern + "|" + string(p.Category)
}

// Validate performs basic validation on the RecurringPattern.
func (p *RecurringPattern) Validate() error {
	if strings.TrimSpace(p.ID) == "" {
		return fmt.Errorf("pattern id cannot be empty")
	}
	if strings.TrimSpace(p.OpportunityID) == "" {
		return fmt.Errorf("pattern opportunity_id cannot be empty")
	}
	if !p.Category.IsValid() {
		return fmt.Errorf("invalid category: %s", p.Category)
	}
	if !p.Frequency.IsValid() {
		return fmt.Errorf("invalid frequency: %s", p.Frequency)
	}
	if p.TransactionCount < 2 {
		return fmt.Errorf("pattern requires at least 2 transactions, got %d", p.TransactionCount)
	}
	if p.ConfidenceScore < 0 || p.ConfidenceScore > 100 {
		return fmt.Errorf("confidence score out of range: %d", p.ConfidenceScore)
	}
	if p.MinAmount.GreaterThan(p.AvgAmount) || p.AvgAmount.GreaterThan(p.MaxAmount) {
		return fmt.Errorf("amount statistics violate min <= avg <= max: %s / %s / %s",
			p.MinAmount, p.AvgAmount, p.MaxAmount)
	}
	if p.LastOccurrence.Before(p.FirstOccurrence) {
		return fmt.Errorf("last occurrence precedes first occurrence")
	}
	return nil
}

// String returns a string representation of the RecurringPattern.
func (p *RecurringPattern) String() string {
	return fmt.Sprintf("RecurringPattern{ID: %s, Pattern: %q, Category: %s, Freq: %s, Count: %d, Score: %d}",
		p.ID, p.DescriptionPattern, p.Category, p.Frequency, p.TransactionCount, p.ConfidenceScore)
}

// recurringPatternJSON is the wire shape with external field names.
type recurringPatternJSON struct {
	ID                 string    `json:"id"`
	OpportunityID      string    `json:"opportunity_id"`
	DescriptionPattern string    `json:"description_pattern"`
	Category           Category  `json:"category"`
	Frequency          Frequency `json:"frequency"`
	TransactionCount   int       `json:"transaction_count"`
	TotalAmount        string    `json:"total_amount"`
	AvgAmount          string    `json:"avg_amount"`
	MinAmount          string    `json:"min_amount"`
	MaxAmount          string    `json:"max_amount"`
	FirstOccurrence    string    `json:"first_occurrence"`
	LastOccurrence     string    `json:"last_occurrence"`
	ConfidenceScore    int       `json:"confidence_score"`
	IsMCA              bool      `json:"is_mca"`
	Verified           bool      `json:"verified"`
	RepNotes           string    `json:"rep_notes"`
}

// MarshalJSON serializes amounts as decimal strings and dates without a time
// component.
func (p *RecurringPattern) MarshalJSON() ([]byte, error) {
	return json.Marshal(&recurringPatternJSON{
		ID:                 p.ID,
		OpportunityID:      p.OpportunityID,
		DescriptionPattern: p.DescriptionPattern,
		Category:           p.Category,
		Frequency:          p.Frequency,
		TransactionCount:   p.TransactionCount,
		TotalAmount:        p.TotalAmount.String(),
		AvgAmount:          p.AvgAmount.String(),
		MinAmount:          p.MinAmount.String(),
		MaxAmount:          p.MaxAmount.String(),
		FirstOccurrence:    p.FirstOccurrence.Format(DateFormat),
		LastOccurrence:     p.LastOccurrence.Format(DateFormat),
		ConfidenceScore:    p.ConfidenceScore,
		IsMCA:              p.IsMCA,
		Verified:           p.Verified,
		RepNotes:           p.RepNotes,
	})
}

// UnmarshalJSON parses the wire shape back into a RecurringPattern.
func (p *RecurringPattern) UnmarshalJSON(data []byte) error {
	var aux recurringPatternJSON
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	first, err := time.Parse(DateFormat, aux.FirstOccurrence)
	if err != nil {
		return fmt.Errorf("invalid first_occurrence format: %w", err)
	}
	last, err := time.Parse(DateFormat, aux.LastOccurrence)
	if err != nil {
		return fmt.Errorf("invalid last_occurrence format: %w", err)
	}

	amounts := make([]decimal.Decimal, 4)
	for i, s := range []string{aux.TotalAmount, aux.AvgAmount, aux.MinAmount, aux.MaxAmount} {
		amounts[i], err = decimal.NewFromString(s)
		if err != nil {
			return fmt.Errorf("invalid amount format '%s': %w", s, err)
		}
	}

	p.ID = aux.ID
	p.OpportunityID = aux.OpportunityID
	p.DescriptionPattern = aux.DescriptionPattern
	p.Category = aux.Category
	p.Frequency = aux.Frequency
	p.TransactionCount = aux.TransactionCount
	p.TotalAmount = amounts[0]
	p.AvgAmount = amounts[1]
	p.MinAmount = amounts[2]
	p.MaxAmount = amounts[3]
	p.FirstOccurrence = first
	p.LastOccurrence = last
	p.ConfidenceScore = aux.ConfidenceScore
	p.IsMCA = aux.IsMCA
	p.Verified = aux.Verified
	p.RepNotes = aux.RepNotes
	return nil
}

// FinancialAnalysis is the per-opportunity aggregate and status record.
// One row exists per opportunity.
type FinancialAnalysis struct {
	OpportunityID     string
	ParsingStatus     ParsingStatus
	PDFCount          int
	TotalTransactions int
	TotalDeposits     decimal.Decimal
	TotalWithdrawals  decimal.Decimal
	NetCashFlow       decimal.Decimal
	TotalMCAPayments  decimal.Decimal
	NSFCount          int
	NegativeDaysCount int
	DateRangeStart    *time.Time
	DateRangeEnd      *time.Time
	Verified          bool
	ErrorMessage      *string
}

// NewFinancialAnalysis creates a fresh analysis record in the pending state.
func NewFinancialAnalysis(opportunityID string) *FinancialAnalysis {
	return &FinancialAnalysis{
		OpportunityID:    opportunityID,
		ParsingStatus:    StatusPending,
		TotalDeposits:    decimal.Zero,
		TotalWithdrawals: decimal.Zero,
		NetCashFlow:      decimal.Zero,
		TotalMCAPayments: decimal.Zero,
	}
}

// Validate performs basic validation on the FinancialAnalysis.
func (fa *FinancialAnalysis) Validate() error {
	if strings.TrimSpace(fa.OpportunityID) == "" {
		return fmt.Errorf("analysis opportunity_id cannot be empty")
	}
	if !fa.ParsingStatus.IsValid() {
		return fmt.Errorf("invalid parsing status: %s", fa.ParsingStatus)
	}
	if fa.PDFCount < 0 {
		return fmt.Errorf("pdf count cannot be negative: %d", fa.PDFCount)
	}
	if !fa.TotalDeposits.Sub(fa.TotalWithdrawals).Equal(fa.NetCashFlow) {
		return fmt.Errorf("net cash flow %s does not equal deposits %s minus withdrawals %s",
			fa.NetCashFlow, fa.TotalDeposits, fa.TotalWithdrawals)
	}
	return nil
}

// financialAnalysisJSON is the wire shape with external field names.
type financialAnalysisJSON struct {
	OpportunityID     string        `json:"opportunity_id"`
	ParsingStatus     ParsingStatus `json:"parsing_status"`
	PDFCount          int           `json:"pdf_count"`
	TotalTransactions int           `json:"total_transactions"`
	TotalDeposits     string        `json:"total_deposits"`
	TotalWithdrawals  string        `json:"total_withdrawals"`
	NetCashFlow       string        `json:"net_cash_flow"`
	TotalMCAPayments  string        `json:"total_mca_payments"`
	NSFCount          int           `json:"nsf_count"`
	NegativeDaysCount int           `json:"negative_days_count"`
	DateRangeStart    *string       `json:"date_range_start"`
	DateRangeEnd      *string       `json:"date_range_end"`
	Verified          bool          `json:"verified"`
	ErrorMessage      *string       `json:"error_message"`
}

// MarshalJSON serializes amounts as decimal strings and dates without a time
// component.
func (fa *FinancialAnalysis) MarshalJSON() ([]byte, error) {
	formatDate := func(t *time.Time) *string {
		if t == nil {
			return nil
		}
		s := t.Format(DateFormat)
		return &s
	}
	return json.Marshal(&financialAnalysisJSON{
		OpportunityID:     fa.OpportunityID,
		ParsingStatus:     fa.ParsingStatus,
		PDFCount:          fa.PDFCount,
		TotalTransactions: fa.TotalTransactions,
		TotalDeposits:     fa.TotalDeposits.String(),
		TotalWithdrawals:  fa.TotalWithdrawals.String(),
		NetCashFlow:       fa.NetCashFlow.String(),
		TotalMCAPayments:  fa.TotalMCAPayments.String(),
		NSFCount:          fa.NSFCount,
		NegativeDaysCount: fa.NegativeDaysCount,
		DateRangeStart:    formatDate(fa.DateRangeStart),
		DateRangeEnd:      formatDate(fa.DateRangeEnd),
		Verified:          fa.Verified,
		ErrorMessage:      fa.ErrorMessage,
	})
}

// UnmarshalJSON parses the wire shape back into a FinancialAnalysis.
func (fa *FinancialAnalysis) UnmarshalJSON(data []byte) error {
	var aux financialAnalysisJSON
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	parseDate := func(s *string, field string) (*time.Time, error) {
		if s == nil {
			return nil, nil
		}
		t, err := time.Parse(DateFormat, *s)
		if err != nil {
			return nil, fmt.Errorf("invalid %s format: %w", field, err)
		}
		return &t, nil
	}

	start, err := parseDate(aux.DateRangeStart, "date_range_start")
	if err != nil {
		return err
	}
	end, err := parseDate(aux.DateRangeEnd, "date_range_end")
	if err != nil {
		return err
	}

	amounts := make([]decimal.Decimal, 4)
	for i, s := range []string{aux.TotalDeposits, aux.TotalWithdrawals, aux.NetCashFlow, aux.TotalMCAPayments} {
		amounts[i], err = decimal.NewFromString(s)
		if err != nil {
			return fmt.Errorf("invalid amount format '%s': %w", s, err)
		}
	}

	fa.OpportunityID = aux.OpportunityID
	fa.ParsingStatus = aux.ParsingStatus
	fa.PDFCount = aux.PDFCount
	fa.TotalTransactions = aux.TotalTransactions
	fa.TotalDeposits = amounts[0]
	fa.TotalWithdrawals = amounts[1]
	fa.NetCashFlow = amounts[2]
	fa.TotalMCAPayments = amounts[3]
	fa.NSFCount = aux.NSFCount
	fa.NegativeDaysCount = aux.NegativeDaysCount
	fa.DateRangeStart = start
	fa.DateRangeEnd = end
	fa.Verified = aux.Verified
	fa.ErrorMessage = aux.ErrorMessage
	return nil
}

// ParseDecimalFromString parses a currency amount from statement text.
// Thousands separators and currency symbols are stripped before conversion
// so summed amounts never drift at the cent level.
func ParseDecimalFromString(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, fmt.Errorf("amount string cannot be empty")
	}

	s = strings.ReplaceAll(s, "$", "")
	s = strings.ReplaceAll(s, ",", "")
	s = strings.TrimSpace(s)

	// Trailing-minus and parenthesized negatives appear on some statements.
	negative := false
	if strings.HasSuffix(s, "-") {
		negative = true
		s = strings.TrimSuffix(s, "-")
	}
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = strings.TrimSuffix(strings.TrimPrefix(s, "("), ")")
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid decimal format '%s': %w", s, err)
	}
	if negative {
		d = d.Neg()
	}
	return d, nil
}

// ParseDateWithFormats attempts to parse a statement date using the formats
// seen across supported bank layouts.
func ParseDateWithFormats(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("date string cannot be empty")
	}

	formats := []string{
		"01/02/2006",
		"1/2/2006",
		"01/02/06",
		"2006-01-02",
		"01-02-2006",
		"Jan 2, 2006",
		"Jan 02 2006",
		"January 2, 2006",
	}

	var lastErr error
	for _, format := range formats {
		if t, err := time.Parse(format, s); err == nil {
			return t, nil
		} else {
			lastErr = err
		}
	}
	return time.Time{}, fmt.Errorf("unable to parse date '%s': %w", s, lastErr)
}

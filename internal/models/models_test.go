package models

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func createTestTransaction() *BankTransaction {
	groupID := "group-1"
	category := CategoryPayroll
	balance := decimal.NewFromFloat(9500.00)
	return &BankTransaction{
		ID:               "tx-1",
		OpportunityID:    "opp-1",
		TransactionDate:  time.Date(2025, 1, 6, 0, 0, 0, 0, time.UTC),
		Description:      "ACH DEBIT MCA CAPITAL FUNDING",
		Debit:            decimal.NewFromFloat(500.00),
		Credit:           decimal.Zero,
		Balance:          &balance,
		IsMCA:            true,
		IsRecurring:      true,
		RecurringGroupID: &groupID,
		Category:         &category,
	}
}

func TestParsingStatusTransitions(t *testing.T) {
	tests := []struct {
		name    string
		from    ParsingStatus
		to      ParsingStatus
		allowed bool
	}{
		{"pending to processing", StatusPending, StatusProcessing, true},
		{"processing to parsed", StatusProcessing, StatusParsed, true},
		{"processing to failed", StatusProcessing, StatusFailed, true},
		{"parsed to processing (re-parse)", StatusParsed, StatusProcessing, true},
		{"failed to processing (retry)", StatusFailed, StatusProcessing, true},
		{"pending to parsed skips processing", StatusPending, StatusParsed, false},
		{"parsed to pending", StatusParsed, StatusPending, false},
		{"failed to parsed", StatusFailed, StatusParsed, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.from.CanTransitionTo(tt.to); got != tt.allowed {
				t.Errorf("CanTransitionTo(%s -> %s) = %v, want %v", tt.from, tt.to, got, tt.allowed)
			}
		})
	}
}

func TestBandForScore(t *testing.T) {
	tests := []struct {
		score int
		band  ConfidenceBand
	}{
		{0, BandLow},
		{49, BandLow},
		{50, BandMedium},
		{74, BandMedium},
		{75, BandHigh},
		{100, BandHigh},
	}

	for _, tt := range tests {
		if got := BandForScore(tt.score); got != tt.band {
			t.Errorf("BandForScore(%d) = %s, want %s", tt.score, got, tt.band)
		}
	}
}

func TestBankTransactionValidate(t *testing.T) {
	valid := createTestTransaction()
	if err := valid.Validate(); err != nil {
		t.Fatalf("valid transaction failed validation: %v", err)
	}

	recurringNoGroup := createTestTransaction()
	recurringNoGroup.RecurringGroupID = nil
	if err := recurringNoGroup.Validate(); err == nil {
		t.Error("expected error for recurring transaction without group reference")
	}

	groupNotRecurring := createTestTransaction()
	groupNotRecurring.IsRecurring = false
	if err := groupNotRecurring.Validate(); err == nil {
		t.Error("expected error for group reference on non-recurring transaction")
	}

	negativeDebit := createTestTransaction()
	negativeDebit.Debit = decimal.NewFromFloat(-10)
	if err := negativeDebit.Validate(); err == nil {
		t.Error("expected error for negative debit")
	}
}

func TestBankTransactionJSONFieldNames(t *testing.T) {
	data, err := json.Marshal(createTestTransaction())
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	var raw map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("unmarshal to map failed: %v", err)
	}

	for _, field := range []string{
		"opportunity_id", "transaction_date", "debit", "credit", "balance",
		"is_mca", "is_recurring", "recurring_group_id", "category", "is_anomaly",
	} {
		if _, ok := raw[field]; !ok {
			t.Errorf("expected JSON field %q in output", field)
		}
	}

	if raw["transaction_date"] != "2025-01-06" {
		t.Errorf("transaction_date = %v, want date-only format", raw["transaction_date"])
	}
	if raw["debit"] != "500" {
		t.Errorf("debit = %v, want decimal string", raw["debit"])
	}
}

func TestBankTransactionJSONRoundTrip(t *testing.T) {
	original := createTestTransaction()
	data, err := json.Marshal(original)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	var decoded BankTransaction
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}

	if !decoded.Debit.Equal(original.Debit) {
		t.Errorf("debit changed across round trip: %s != %s", decoded.Debit, original.Debit)
	}
	if !decoded.TransactionDate.Equal(original.TransactionDate) {
		t.Errorf("date changed across round trip")
	}
	if decoded.RecurringGroupID == nil || *decoded.RecurringGroupID != *original.RecurringGroupID {
		t.Errorf("recurring group reference lost")
	}
}

func TestRecurringPatternValidate(t *testing.T) {
	base := func() *RecurringPattern {
		return &RecurringPattern{
			ID:                 "pat-1",
			OpportunityID:      "opp-1",
			DescriptionPattern: "MCA CAPITAL FUNDING",
			Category:           CategoryMCALender,
			Frequency:          FrequencyDaily,
			TransactionCount:   12,
			TotalAmount:        decimal.NewFromInt(3600),
			AvgAmount:          decimal.NewFromInt(300),
			MinAmount:          decimal.NewFromInt(295),
			MaxAmount:          decimal.NewFromInt(305),
			FirstOccurrence:    time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC),
			LastOccurrence:     time.Date(2025, 1, 17, 0, 0, 0, 0, time.UTC),
			ConfidenceScore:    85,
			IsMCA:              true,
		}
	}

	if err := base().Validate(); err != nil {
		t.Fatalf("valid pattern failed validation: %v", err)
	}

	singleton := base()
	singleton.TransactionCount = 1
	if err := singleton.Validate(); err == nil {
		t.Error("expected error for single-occurrence pattern")
	}

	outOfRange := base()
	outOfRange.ConfidenceScore = 101
	if err := outOfRange.Validate(); err == nil {
		t.Error("expected error for confidence score above 100")
	}

	badStats := base()
	badStats.MinAmount = decimal.NewFromInt(400)
	if err := badStats.Validate(); err == nil {
		t.Error("expected error for min > avg")
	}
}

func TestRecurringPatternGroupKey(t *testing.T) {
	a := &RecurringPattern{DescriptionPattern: "GUSTO PAYROLL", Category: CategoryPayroll}
	b := &RecurringPattern{DescriptionPattern: "GUSTO PAYROLL", Category: CategoryPayroll, Verified: true}
	if a.GroupKey() != b.GroupKey() {
		t.Error("patterns with same identity must share a group key")
	}

	c := &RecurringPattern{DescriptionPattern: "GUSTO PAYROLL", Category: CategoryTransfers}
	if a.GroupKey() == c.GroupKey() {
		t.Error("category change must change the group key")
	}
}

func TestFinancialAnalysisValidate(t *testing.T) {
	fa := NewFinancialAnalysis("opp-1")
	if fa.ParsingStatus != StatusPending {
		t.Errorf("new analysis status = %s, want pending", fa.ParsingStatus)
	}
	if err := fa.Validate(); err != nil {
		t.Fatalf("fresh analysis failed validation: %v", err)
	}

	fa.TotalDeposits = decimal.NewFromInt(1000)
	fa.TotalWithdrawals = decimal.NewFromInt(400)
	fa.NetCashFlow = decimal.NewFromInt(500)
	if err := fa.Validate(); err == nil {
		t.Error("expected error for inconsistent net cash flow")
	}

	fa.NetCashFlow = decimal.NewFromInt(600)
	if err := fa.Validate(); err != nil {
		t.Errorf("consistent analysis failed validation: %v", err)
	}
}

func TestFinancialAnalysisJSONFieldNames(t *testing.T) {
	fa := NewFinancialAnalysis("opp-1")
	start := time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC)
	end := time.Date(2025, 1, 31, 0, 0, 0, 0, time.UTC)
	fa.DateRangeStart = &start
	fa.DateRangeEnd = &end

	data, err := json.Marshal(fa)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	for _, field := range []string{
		"opportunity_id", "parsing_status", "pdf_count", "total_transactions",
		"total_deposits", "total_withdrawals", "net_cash_flow", "total_mca_payments",
		"nsf_count", "negative_days_count", "date_range_start", "date_range_end",
		"verified", "error_message",
	} {
		if !strings.Contains(string(data), `"`+field+`"`) {
			t.Errorf("expected JSON field %q in output", field)
		}
	}
}

func TestParseDecimalFromString(t *testing.T) {
	tests := []struct {
		input   string
		want    string
		wantErr bool
	}{
		{"2,500.00", "2500", false},
		{"$2,500.00", "2500", false},
		{"$ 125.50", "125.5", false},
		{"(45.00)", "-45", false},
		{"45.00-", "-45", false},
		{"-45.00", "-45", false},
		{"1,234,567.89", "1234567.89", false},
		{"", "", true},
		{"abc", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseDecimalFromString(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Errorf("ParseDecimalFromString(%q) expected error", tt.input)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseDecimalFromString(%q) failed: %v", tt.input, err)
			}
			want, _ := decimal.NewFromString(tt.want)
			if !got.Equal(want) {
				t.Errorf("ParseDecimalFromString(%q) = %s, want %s", tt.input, got, want)
			}
		})
	}
}

func TestParseDateWithFormats(t *testing.T) {
	tests := []struct {
		input string
		want  time.Time
	}{
		{"01/05/2025", time.Date(2025, 1, 5, 0, 0, 0, 0, time.UTC)},
		{"1/5/2025", time.Date(2025, 1, 5, 0, 0, 0, 0, time.UTC)},
		{"2025-01-05", time.Date(2025, 1, 5, 0, 0, 0, 0, time.UTC)},
		{"01-05-2025", time.Date(2025, 1, 5, 0, 0, 0, 0, time.UTC)},
		{"Jan 5, 2025", time.Date(2025, 1, 5, 0, 0, 0, 0, time.UTC)},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseDateWithFormats(tt.input)
			if err != nil {
				t.Fatalf("ParseDateWithFormats(%q) failed: %v", tt.input, err)
			}
			if !got.Equal(tt.want) {
				t.Errorf("ParseDateWithFormats(%q) = %s, want %s", tt.input, got, tt.want)
			}
		})
	}

	if _, err := ParseDateWithFormats("not a date"); err == nil {
		t.Error("expected error for unparseable date")
	}
}

func TestSortPatternsForDisplay(t *testing.T) {
	patterns := []*RecurringPattern{
		{DescriptionPattern: "B RENT", TotalAmount: decimal.NewFromInt(5000)},
		{DescriptionPattern: "A MCA", TotalAmount: decimal.NewFromInt(100), IsMCA: true},
		{DescriptionPattern: "C PAYROLL", TotalAmount: decimal.NewFromInt(9000)},
	}

	SortPatternsForDisplay(patterns)

	if !patterns[0].IsMCA {
		t.Errorf("MCA pattern must sort first, got %s", patterns[0].DescriptionPattern)
	}
	if patterns[1].DescriptionPattern != "C PAYROLL" {
		t.Errorf("expected highest total next, got %s", patterns[1].DescriptionPattern)
	}
	if patterns[2].DescriptionPattern != "B RENT" {
		t.Errorf("expected lowest total last, got %s", patterns[2].DescriptionPattern)
	}
}

func TestSortTransactionsByDate(t *testing.T) {
	txs := []*BankTransaction{
		{ID: "c", TransactionDate: time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC), Description: "Z"},
		{ID: "a", TransactionDate: time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC), Description: "A"},
		{ID: "b", TransactionDate: time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC), Description: "A"},
	}

	SortTransactionsByDate(txs)

	if txs[0].ID != "a" || txs[1].ID != "b" || txs[2].ID != "c" {
		t.Errorf("unexpected order: %s, %s, %s", txs[0].ID, txs[1].ID, txs[2].ID)
	}
}

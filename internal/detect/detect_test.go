package detect

import (
	"fmt"
	"testing"
	"time"

	"statement-intel-service/internal/models"

	"github.com/shopspring/decimal"
)

func makeDebit(id, desc string, date time.Time, amount float64) *models.BankTransaction {
	return &models.BankTransaction{
		ID:              id,
		OpportunityID:   "opp-1",
		TransactionDate: date,
		Description:     desc,
		Debit:           decimal.NewFromFloat(amount),
		Credit:          decimal.Zero,
	}
}

func makeCredit(id, desc string, date time.Time, amount float64) *models.BankTransaction {
	return &models.BankTransaction{
		ID:              id,
		OpportunityID:   "opp-1",
		TransactionDate: date,
		Description:     desc,
		Debit:           decimal.Zero,
		Credit:          decimal.NewFromFloat(amount),
	}
}

func day(d int) time.Time {
	return time.Date(2025, 1, d, 0, 0, 0, 0, time.UTC)
}

func TestNormalizeKey(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"ACH PAYMENT VENDOR 0012", "ach payment vendor"},
		{"GUSTO  PAYROLL  #8832", "gusto payroll"},
		{"Check 1042", "check"},
		{"12345", ""},
	}

	for _, tt := range tests {
		if got := normalizeKey(tt.input); got != tt.want {
			t.Errorf("normalizeKey(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestDetectRequiresMinGroupSize(t *testing.T) {
	d := NewDetector(nil, nil)

	txs := []*models.BankTransaction{
		makeDebit("1", "ONE OFF PURCHASE", day(5), 120),
		makeDebit("2", "ANOTHER SINGLE CHARGE", day(9), 80),
	}

	patterns := d.Detect("opp-1", txs)
	if len(patterns) != 0 {
		t.Fatalf("expected no patterns from singleton groups, got %d", len(patterns))
	}
	for _, tx := range txs {
		if tx.IsRecurring || tx.RecurringGroupID != nil {
			t.Errorf("ungrouped transaction %s must be non-recurring", tx.ID)
		}
	}
}

func TestDetectWeeklyPattern(t *testing.T) {
	d := NewDetector(nil, nil)

	var txs []*models.BankTransaction
	for i := 0; i < 5; i++ {
		txs = append(txs, makeCredit(
			fmt.Sprintf("dep-%d", i), "GUSTO PAYROLL 8832", day(3+7*i), 1850.00))
	}

	patterns := d.Detect("opp-1", txs)
	if len(patterns) != 1 {
		t.Fatalf("expected 1 pattern, got %d", len(patterns))
	}

	p := patterns[0]
	if p.Frequency != models.FrequencyWeekly {
		t.Errorf("frequency = %s, want weekly", p.Frequency)
	}
	if p.Category != models.CategoryPayroll {
		t.Errorf("category = %s, want payroll", p.Category)
	}
	if p.TransactionCount != 5 {
		t.Errorf("transaction count = %d, want 5", p.TransactionCount)
	}
	if !p.AvgAmount.Equal(decimal.NewFromFloat(1850.00)) {
		t.Errorf("avg amount = %s, want 1850", p.AvgAmount)
	}
	if !p.TotalAmount.Equal(decimal.NewFromFloat(9250.00)) {
		t.Errorf("total amount = %s, want 9250", p.TotalAmount)
	}
	if !p.FirstOccurrence.Equal(day(3)) || !p.LastOccurrence.Equal(day(31)) {
		t.Errorf("occurrence range = %s to %s", p.FirstOccurrence, p.LastOccurrence)
	}
	if err := p.Validate(); err != nil {
		t.Errorf("pattern failed validation: %v", err)
	}

	for _, tx := range txs {
		if !tx.IsRecurring || tx.RecurringGroupID == nil || *tx.RecurringGroupID != p.ID {
			t.Errorf("member %s not linked to pattern", tx.ID)
		}
		if tx.Category == nil || *tx.Category != models.CategoryPayroll {
			t.Errorf("member %s category not assigned", tx.ID)
		}
	}
}

func TestDetectDailyMCAHighConfidence(t *testing.T) {
	d := NewDetector(nil, nil)

	var txs []*models.BankTransaction
	for i := 0; i < 12; i++ {
		tx := makeDebit(fmt.Sprintf("mca-%d", i), "ACH DEBIT CAPITAL ADVANCE LLC", day(2+i), 300.00)
		tx.IsMCA = true
		txs = append(txs, tx)
	}

	patterns := d.Detect("opp-1", txs)
	if len(patterns) != 1 {
		t.Fatalf("expected 1 pattern, got %d", len(patterns))
	}

	p := patterns[0]
	if !p.IsMCA {
		t.Error("MCA-flagged group must produce an MCA pattern")
	}
	if p.Category != models.CategoryMCALender {
		t.Errorf("category = %s, want mca_lender", p.Category)
	}
	if p.Frequency != models.FrequencyDaily {
		t.Errorf("frequency = %s, want daily", p.Frequency)
	}
	if p.ConfidenceScore < 75 {
		t.Errorf("confidence = %d, want high band (>= 75)", p.ConfidenceScore)
	}
	if p.ConfidenceScore > 100 {
		t.Errorf("confidence = %d, exceeds cap", p.ConfidenceScore)
	}
	if p.Band() != models.BandHigh {
		t.Errorf("band = %s, want High", p.Band())
	}
}

func TestDetectSingleFlaggedMemberMakesMCAPattern(t *testing.T) {
	d := NewDetector(nil, nil)

	var txs []*models.BankTransaction
	for i := 0; i < 5; i++ {
		txs = append(txs, makeDebit(fmt.Sprintf("s-%d", i), "POS PURCHASE OFFICE SUPPLY", day(1+7*i), 80))
	}
	txs[2].IsMCA = true

	patterns := d.Detect("opp-1", txs)
	if len(patterns) != 1 {
		t.Fatalf("expected 1 pattern, got %d", len(patterns))
	}

	p := patterns[0]
	if !p.IsMCA {
		t.Error("one flagged member must make the whole pattern MCA")
	}
	if p.Category != models.CategoryMCALender {
		t.Errorf("category = %s, want mca_lender", p.Category)
	}
}

func TestDetectKeywordDescriptionMakesMCAPattern(t *testing.T) {
	d := NewDetector(nil, nil)

	// Debits below the normalizer's MCA amount floor carry no member flag;
	// the lender wording alone must still mark the pattern.
	var txs []*models.BankTransaction
	for i := 0; i < 4; i++ {
		txs = append(txs, makeDebit(fmt.Sprintf("k-%d", i), "CAPITAL ADVANCE LLC", day(1+7*i), 50))
	}

	patterns := d.Detect("opp-1", txs)
	if len(patterns) != 1 {
		t.Fatalf("expected 1 pattern, got %d", len(patterns))
	}

	p := patterns[0]
	if !p.IsMCA {
		t.Error("lender-keyword description must make the pattern MCA")
	}
	if p.Category != models.CategoryMCALender {
		t.Errorf("category = %s, want mca_lender", p.Category)
	}
	// The MCA weight must land in the score: 30 for the flag plus 15 for
	// the zero-spread amounts, weekly cadence and low count add nothing.
	if p.ConfidenceScore != 45 {
		t.Errorf("confidence = %d, want 45", p.ConfidenceScore)
	}
}

func TestDetectMergesPrefixGroups(t *testing.T) {
	d := NewDetector(nil, nil)

	txs := []*models.BankTransaction{
		makeDebit("1", "ACH PAYMENT VENDOR 0012", day(3), 450),
		makeDebit("2", "ACH PAYMENT VENDOR 0013", day(10), 450),
		makeDebit("3", "ACH PAYMENT VENDOR", day(17), 450),
	}

	patterns := d.Detect("opp-1", txs)
	if len(patterns) != 1 {
		t.Fatalf("expected trailing references to merge into 1 pattern, got %d", len(patterns))
	}
	if patterns[0].TransactionCount != 3 {
		t.Errorf("merged count = %d, want 3", patterns[0].TransactionCount)
	}
}

func TestDetectFrequencyBuckets(t *testing.T) {
	tests := []struct {
		name string
		gaps int
		want models.Frequency
	}{
		{"biweekly", 14, models.FrequencyBiweekly},
		{"monthly", 30, models.FrequencyMonthly},
		{"irregular", 19, models.FrequencyIrregular},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var dates []time.Time
			for i := 0; i < 4; i++ {
				dates = append(dates, day(1).AddDate(0, 0, i*tt.gaps))
			}
			if got := classifyFrequency(dates); got != tt.want {
				t.Errorf("classifyFrequency(gap=%d) = %s, want %s", tt.gaps, got, tt.want)
			}
		})
	}
}

func TestDetectFlagsAmountAnomaly(t *testing.T) {
	d := NewDetector(nil, nil)

	txs := []*models.BankTransaction{
		makeDebit("1", "SAAS TOOLS MONTHLY PLAN", day(1), 99),
		makeDebit("2", "SAAS TOOLS MONTHLY PLAN", day(2), 99),
		makeDebit("3", "SAAS TOOLS MONTHLY PLAN", day(3), 99),
		makeDebit("4", "SAAS TOOLS MONTHLY PLAN", day(4), 990),
	}

	patterns := d.Detect("opp-1", txs)
	if len(patterns) != 1 {
		t.Fatalf("expected 1 pattern, got %d", len(patterns))
	}

	if !txs[3].IsAnomaly {
		t.Error("10x amount spike must be flagged anomalous")
	}
	for _, tx := range txs[:3] {
		if tx.IsAnomaly {
			t.Errorf("normal member %s wrongly flagged", tx.ID)
		}
	}
	// The anomaly stays in the group statistics.
	if patterns[0].TransactionCount != 4 {
		t.Errorf("count = %d, anomalies must remain members", patterns[0].TransactionCount)
	}
}

func TestDetectFlagsCadenceGapAnomaly(t *testing.T) {
	d := NewDetector(nil, nil)

	// Daily cadence with one long silence before the final debit.
	var txs []*models.BankTransaction
	for i := 0; i < 6; i++ {
		txs = append(txs, makeDebit(fmt.Sprintf("d-%d", i), "DAILY PAY LENDER", day(2+i), 250))
	}
	late := makeDebit("late", "DAILY PAY LENDER", day(20), 250)
	txs = append(txs, late)

	d.Detect("opp-1", txs)

	if !late.IsAnomaly {
		t.Error("transaction after a missed-cadence gap must be flagged")
	}
	if txs[0].IsAnomaly {
		t.Error("on-cadence member wrongly flagged")
	}
}

func TestDetectIsIdempotent(t *testing.T) {
	d := NewDetector(nil, nil)

	var txs []*models.BankTransaction
	for i := 0; i < 4; i++ {
		txs = append(txs, makeDebit(fmt.Sprintf("r-%d", i), "MAIN ST PROPERTY MGMT", day(1).AddDate(0, i, 0), 2000))
	}

	first := d.Detect("opp-1", txs)
	second := d.Detect("opp-1", txs)

	if len(first) != 1 || len(second) != 1 {
		t.Fatalf("pattern counts = %d then %d, want 1 and 1", len(first), len(second))
	}
	if first[0].GroupKey() != second[0].GroupKey() {
		t.Error("group identity must be stable across runs")
	}
	if first[0].TransactionCount != second[0].TransactionCount {
		t.Error("re-detection must replace, not accumulate")
	}
}

func TestDetectDisplayOrder(t *testing.T) {
	d := NewDetector(nil, nil)

	var txs []*models.BankTransaction
	// Large non-MCA pattern.
	for i := 0; i < 3; i++ {
		txs = append(txs, makeCredit(fmt.Sprintf("p-%d", i), "GUSTO PAYROLL", day(1).AddDate(0, 0, 7*i), 5000))
	}
	// Smaller MCA pattern.
	for i := 0; i < 3; i++ {
		tx := makeDebit(fmt.Sprintf("m-%d", i), "MERCHANT ADVANCE CO", day(2+i), 200)
		tx.IsMCA = true
		txs = append(txs, tx)
	}

	patterns := d.Detect("opp-1", txs)
	if len(patterns) != 2 {
		t.Fatalf("expected 2 patterns, got %d", len(patterns))
	}
	if !patterns[0].IsMCA {
		t.Error("MCA pattern must sort first despite smaller total")
	}
}

func TestConfigValidate(t *testing.T) {
	valid := DefaultConfig()
	if err := valid.Validate(); err != nil {
		t.Fatalf("default config failed validation: %v", err)
	}

	small := DefaultConfig()
	small.MinGroupSize = 1
	if err := small.Validate(); err == nil {
		t.Error("expected error for min group size below 2")
	}

	ratio := DefaultConfig()
	ratio.AnomalyAmountRatio = decimal.NewFromInt(1)
	if err := ratio.Validate(); err == nil {
		t.Error("expected error for anomaly ratio at 1")
	}
}

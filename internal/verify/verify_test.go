package verify

import (
	"testing"
	"time"

	"statement-intel-service/internal/models"

	"github.com/shopspring/decimal"
)

func makePattern(desc string, category models.Category) *models.RecurringPattern {
	return &models.RecurringPattern{
		ID:                 "pat-" + desc,
		OpportunityID:      "opp-1",
		DescriptionPattern: desc,
		Category:           category,
		Frequency:          models.FrequencyMonthly,
		TransactionCount:   3,
		TotalAmount:        decimal.NewFromInt(600),
		AvgAmount:          decimal.NewFromInt(200),
		MinAmount:          decimal.NewFromInt(200),
		MaxAmount:          decimal.NewFromInt(200),
		FirstOccurrence:    time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		LastOccurrence:     time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
		ConfidenceScore:    60,
	}
}

func strPtr(s string) *string { return &s }

func TestApplyExplicitVerification(t *testing.T) {
	p := makePattern("GUSTO PAYROLL", models.CategoryPayroll)

	verified := true
	if err := Apply(p, Update{Verified: &verified}); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if !p.Verified {
		t.Error("pattern should be verified")
	}

	rejected := false
	if err := Apply(p, Update{Verified: &rejected}); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if p.Verified {
		t.Error("explicit rejection must clear the verified flag")
	}
}

func TestApplyEditImpliesVerified(t *testing.T) {
	p := makePattern("UNKNOWN VENDOR", models.CategoryOther)

	category := models.CategoryRentLease
	if err := Apply(p, Update{Category: &category}); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}

	if p.Category != models.CategoryRentLease {
		t.Errorf("category = %s, want rent_lease", p.Category)
	}
	if !p.Verified {
		t.Error("a correction is a review; the pattern must be marked verified")
	}
}

func TestApplyEditWithExplicitRejection(t *testing.T) {
	p := makePattern("UNKNOWN VENDOR", models.CategoryOther)

	rejected := false
	notes := "needs another look"
	if err := Apply(p, Update{RepNotes: &notes, Verified: &rejected}); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}

	if p.RepNotes != notes {
		t.Errorf("rep notes = %q", p.RepNotes)
	}
	if p.Verified {
		t.Error("explicit verified=false must win over the edit-implies-verified rule")
	}
}

func TestApplyCategorySyncsMCAFlag(t *testing.T) {
	p := makePattern("DAILY DEBIT CO", models.CategoryOther)

	mca := models.CategoryMCALender
	if err := Apply(p, Update{Category: &mca}); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if !p.IsMCA {
		t.Error("reclassifying to mca_lender must set the MCA flag")
	}

	other := models.CategoryTransfers
	if err := Apply(p, Update{Category: &other}); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if p.IsMCA {
		t.Error("reclassifying away from mca_lender must clear the MCA flag")
	}
}

func TestApplyNeverTouchesStatistics(t *testing.T) {
	p := makePattern("GUSTO PAYROLL", models.CategoryPayroll)
	wantTotal := p.TotalAmount
	wantCount := p.TransactionCount
	wantScore := p.ConfidenceScore

	freq := models.FrequencyWeekly
	if err := Apply(p, Update{Frequency: &freq, DescriptionPattern: strPtr("GUSTO INC")}); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}

	if !p.TotalAmount.Equal(wantTotal) || p.TransactionCount != wantCount || p.ConfidenceScore != wantScore {
		t.Error("review edits must not change detector statistics")
	}
}

func TestApplyRejectsInvalidValues(t *testing.T) {
	p := makePattern("GUSTO PAYROLL", models.CategoryPayroll)

	badCategory := models.Category("groceries")
	if err := Apply(p, Update{Category: &badCategory}); err == nil {
		t.Error("expected error for unknown category")
	}

	badFrequency := models.Frequency("hourly")
	if err := Apply(p, Update{Frequency: &badFrequency}); err == nil {
		t.Error("expected error for unknown frequency")
	}

	if err := Apply(p, Update{DescriptionPattern: strPtr("   ")}); err == nil {
		t.Error("expected error for blank description pattern")
	}

	if p.Category != models.CategoryPayroll {
		t.Error("failed update must not partially apply")
	}
}

func TestAllVerified(t *testing.T) {
	a := makePattern("A", models.CategoryPayroll)
	b := makePattern("B", models.CategoryRentLease)

	if AllVerified([]*models.RecurringPattern{a, b}) {
		t.Error("unreviewed patterns must not report verified")
	}

	a.Verified = true
	if AllVerified([]*models.RecurringPattern{a, b}) {
		t.Error("one unreviewed pattern must block the aggregate flag")
	}

	b.Verified = true
	if !AllVerified([]*models.RecurringPattern{a, b}) {
		t.Error("all patterns reviewed, aggregate must be verified")
	}

	if !AllVerified(nil) {
		t.Error("an empty pattern set is vacuously verified")
	}
}

func TestCarryForward(t *testing.T) {
	prior := makePattern("GUSTO PAYROLL", models.CategoryPayroll)
	prior.Verified = true
	prior.RepNotes = "confirmed with client"

	fresh := makePattern("GUSTO PAYROLL", models.CategoryPayroll)
	fresh.ID = "pat-new"
	unrelated := makePattern("NEW VENDOR", models.CategoryOther)

	CarryForward([]*models.RecurringPattern{fresh, unrelated}, []*models.RecurringPattern{prior})

	if !fresh.Verified || fresh.RepNotes != "confirmed with client" {
		t.Error("review state must carry forward onto the matching group")
	}
	if unrelated.Verified || unrelated.RepNotes != "" {
		t.Error("unmatched fresh pattern must start unreviewed")
	}
}

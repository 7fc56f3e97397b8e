package detect

import (
	"sort"
	"strings"
	"time"

	"statement-intel-service/internal/classify"
	"statement-intel-service/internal/models"
	"statement-intel-service/pkg/logger"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Detector groups a normalized transaction set into recurring patterns and
// flags anomalous members. Detection is a pure recompute: every run rebuilds
// the pattern set and rewrites the recurring fields on every transaction, so
// re-running on the same input is idempotent.
type Detector struct {
	config  *Config
	ruleset *classify.Ruleset
	logger  logger.Logger
}

// NewDetector creates a detector with the given configuration and
// classification ruleset. Nil arguments fall back to defaults.
func NewDetector(config *Config, ruleset *classify.Ruleset) *Detector {
	if config == nil {
		config = DefaultConfig()
	}
	if ruleset == nil {
		ruleset = classify.DefaultRuleset()
	}
	return &Detector{
		config:  config,
		ruleset: ruleset,
		logger:  logger.GetGlobalLogger().WithComponent("detector"),
	}
}

// candidateGroup is a working group of transactions under one normalized
// description key, before promotion to a pattern.
type candidateGroup struct {
	key     string
	members []*models.BankTransaction
}

// Detect runs pattern detection over the full transaction set for one
// opportunity. It mutates the recurring fields on the transactions in place
// and returns the detected patterns in display order. Transactions that end
// up in no group are explicitly reset to non-recurring.
func (d *Detector) Detect(opportunityID string, txs []*models.BankTransaction) []*models.RecurringPattern {
	for _, tx := range txs {
		tx.IsRecurring = false
		tx.RecurringGroupID = nil
		tx.Category = nil
		tx.IsAnomaly = false
	}

	groups := d.buildGroups(txs)

	var patterns []*models.RecurringPattern
	for _, g := range groups {
		if len(g.members) < d.config.MinGroupSize {
			continue
		}
		p := d.buildPattern(opportunityID, g)
		d.flagAnomalies(p, g.members)

		groupID := p.ID
		category := p.Category
		for _, tx := range g.members {
			tx.IsRecurring = true
			tx.RecurringGroupID = &groupID
			c := category
			tx.Category = &c
		}
		patterns = append(patterns, p)
	}

	models.SortPatternsForDisplay(patterns)

	d.logger.WithFields(logger.Fields{
		"opportunity_id": opportunityID,
		"transactions":   len(txs),
		"patterns":       len(patterns),
	}).Info("pattern detection complete")

	return patterns
}

// buildGroups assigns every transaction to a candidate group by normalized
// description key, then merges groups whose keys share a leading token run.
// Merging catches descriptions that differ only in a trailing reference,
// like "ACH PAYMENT VENDOR 0012" vs "ACH PAYMENT VENDOR".
func (d *Detector) buildGroups(txs []*models.BankTransaction) []*candidateGroup {
	byKey := make(map[string]*candidateGroup)
	var order []string

	for _, tx := range txs {
		key := normalizeKey(tx.Description)
		if key == "" {
			continue
		}
		g, ok := byKey[key]
		if !ok {
			g = &candidateGroup{key: key}
			byKey[key] = g
			order = append(order, key)
		}
		g.members = append(g.members, tx)
	}

	// Merge longer keys into shorter ones when the shorter key is a full
	// leading-token prefix of the longer. Keys are visited longest first so
	// chains collapse toward the shortest common form.
	sort.Slice(order, func(i, j int) bool {
		if len(order[i]) != len(order[j]) {
			return len(order[i]) > len(order[j])
		}
		return order[i] < order[j]
	})

	for _, key := range order {
		g, ok := byKey[key]
		if !ok {
			continue
		}
		target := d.mergeTarget(byKey, key)
		if target == "" {
			continue
		}
		byKey[target].members = append(byKey[target].members, g.members...)
		delete(byKey, key)
	}

	var groups []*candidateGroup
	for _, g := range byKey {
		sort.Slice(g.members, func(i, j int) bool {
			return g.members[i].TransactionDate.Before(g.members[j].TransactionDate)
		})
		groups = append(groups, g)
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].key < groups[j].key })
	return groups
}

// mergeTarget finds the shortest existing key that is a leading-token prefix
// of key and long enough to be distinctive.
func (d *Detector) mergeTarget(byKey map[string]*candidateGroup, key string) string {
	tokens := strings.Fields(key)
	if len(tokens) <= d.config.MinPrefixTokens {
		return ""
	}
	for n := d.config.MinPrefixTokens; n < len(tokens); n++ {
		prefix := strings.Join(tokens[:n], " ")
		if _, ok := byKey[prefix]; ok {
			return prefix
		}
	}
	return ""
}

// normalizeKey reduces a raw description to its stable identity: lowercase,
// digits and punctuation stripped, whitespace collapsed. Reference numbers
// and dates embedded in descriptions vary per occurrence and must not split
// a group.
func normalizeKey(description string) string {
	var b strings.Builder
	b.Grow(len(description))
	for _, r := range strings.ToLower(description) {
		switch {
		case r >= 'a' && r <= 'z':
			b.WriteRune(r)
		default:
			b.WriteByte(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// buildPattern computes the aggregate statistics, cadence, category and
// confidence score for a promoted group. Members are date-sorted on entry.
func (d *Detector) buildPattern(opportunityID string, g *candidateGroup) *models.RecurringPattern {
	amounts := make([]decimal.Decimal, 0, len(g.members))
	total := decimal.Zero
	debits := 0
	mcaFlagged := 0
	for _, tx := range g.members {
		amt := tx.Amount()
		amounts = append(amounts, amt)
		total = total.Add(amt)
		if tx.IsDebit() {
			debits++
		}
		if tx.IsMCA {
			mcaFlagged++
		}
	}

	min, max := amounts[0], amounts[0]
	for _, a := range amounts[1:] {
		if a.LessThan(min) {
			min = a
		}
		if a.GreaterThan(max) {
			max = a
		}
	}
	avg := total.Div(decimal.NewFromInt(int64(len(amounts)))).Round(2)

	// Representative description comes from the most recent member; the
	// normalized key loses the original casing and punctuation.
	representative := g.members[len(g.members)-1].Description

	frequency := classifyFrequency(occurrenceDates(g.members))
	category := d.ruleset.Classify(representative)

	// A group is an MCA pattern when any member carries the MCA flag from
	// normalization or the description itself reads as an advance lender.
	// The flag never relies on a member majority: one flagged debit in a
	// group is already MCA exposure worth surfacing.
	isMCA := mcaFlagged > 0 || category == models.CategoryMCALender ||
		d.ruleset.MatchesMCA(representative)
	if isMCA {
		category = models.CategoryMCALender
	}

	p := &models.RecurringPattern{
		ID:                 uuid.NewString(),
		OpportunityID:      opportunityID,
		DescriptionPattern: representative,
		Category:           category,
		Frequency:          frequency,
		TransactionCount:   len(g.members),
		TotalAmount:        total,
		AvgAmount:          avg,
		MinAmount:          min,
		MaxAmount:          max,
		FirstOccurrence:    g.members[0].TransactionDate,
		LastOccurrence:     g.members[len(g.members)-1].TransactionDate,
		IsMCA:              isMCA,
	}
	p.ConfidenceScore = d.score(p)
	return p
}

// occurrenceDates returns the distinct occurrence dates in ascending order.
// Same-day duplicates (common for daily MCA debits split across postings)
// would otherwise produce zero gaps and skew the cadence.
func occurrenceDates(members []*models.BankTransaction) []time.Time {
	var dates []time.Time
	seen := make(map[string]bool)
	for _, tx := range members {
		key := tx.TransactionDate.Format(models.DateFormat)
		if seen[key] {
			continue
		}
		seen[key] = true
		dates = append(dates, tx.TransactionDate)
	}
	return dates
}

// classifyFrequency buckets the median gap between consecutive occurrences.
// The median tolerates a single missed or doubled occurrence that would
// wreck a mean-based estimate.
func classifyFrequency(dates []time.Time) models.Frequency {
	if len(dates) < 2 {
		return models.FrequencyIrregular
	}

	gaps := make([]int, 0, len(dates)-1)
	for i := 1; i < len(dates); i++ {
		gaps = append(gaps, daysBetween(dates[i-1], dates[i]))
	}
	sort.Ints(gaps)
	median := gaps[len(gaps)/2]

	switch {
	case median <= 1:
		return models.FrequencyDaily
	case median >= 6 && median <= 8:
		return models.FrequencyWeekly
	case median >= 13 && median <= 15:
		return models.FrequencyBiweekly
	case median >= 27 && median <= 31:
		return models.FrequencyMonthly
	default:
		return models.FrequencyIrregular
	}
}

func daysBetween(a, b time.Time) int {
	return int(b.Sub(a).Hours() / 24)
}

// score combines the pattern's signals into a 0-100 confidence score.
func (d *Detector) score(p *models.RecurringPattern) int {
	score := 0

	if p.IsMCA {
		score += weightMCAKeyword
	}
	if p.Frequency == models.FrequencyDaily {
		score += weightDailyCadence
	}
	if p.TransactionCount >= highCountThreshold {
		score += weightHighCount
	}
	if p.Category == models.CategoryMCALender &&
		p.AvgAmount.GreaterThanOrEqual(d.config.MCATypicalMin) &&
		p.AvgAmount.LessThanOrEqual(d.config.MCATypicalMax) {
		score += weightTypicalMCARange
	}
	score += amountConsistencyPoints(p)

	if score > 100 {
		score = 100
	}
	return score
}

// amountConsistencyPoints rewards tight amount spreads. Fixed obligations
// like rent repeat to the cent; variable spend does not.
func amountConsistencyPoints(p *models.RecurringPattern) int {
	if p.AvgAmount.IsZero() {
		return 0
	}
	relSpread := p.MaxAmount.Sub(p.MinAmount).Div(p.AvgAmount)
	switch {
	case relSpread.LessThanOrEqual(decimal.NewFromFloat(0.1)):
		return weightAmountConsistent
	case relSpread.LessThanOrEqual(decimal.NewFromFloat(0.25)):
		return weightAmountConsistent * 2 / 3
	case relSpread.LessThanOrEqual(decimal.NewFromFloat(0.5)):
		return weightAmountConsistent / 3
	default:
		return 0
	}
}

// flagAnomalies marks group members that break the group's own norms: an
// amount far outside the group spread, or an occurrence gap far off the
// expected cadence. Anomalies stay in the group; they are flagged for
// review, not excluded from the statistics.
func (d *Detector) flagAnomalies(p *models.RecurringPattern, members []*models.BankTransaction) {
	median := medianAmount(members)
	if !median.IsZero() {
		upper := median.Mul(d.config.AnomalyAmountRatio)
		lower := median.Div(d.config.AnomalyAmountRatio)
		for _, tx := range members {
			amt := tx.Amount()
			if amt.GreaterThan(upper) || amt.LessThan(lower) {
				tx.IsAnomaly = true
			}
		}
	}

	expected := expectedGapDays(p.Frequency)
	if expected == 0 {
		return
	}
	for i := 1; i < len(members); i++ {
		gap := daysBetween(members[i-1].TransactionDate, members[i].TransactionDate)
		// A gap more than double the cadence means a missed occurrence;
		// flag the transaction that resumed after the silence.
		if gap > expected*2 {
			members[i].IsAnomaly = true
		}
	}
}

func medianAmount(members []*models.BankTransaction) decimal.Decimal {
	amounts := make([]decimal.Decimal, 0, len(members))
	for _, tx := range members {
		amounts = append(amounts, tx.Amount())
	}
	sort.Slice(amounts, func(i, j int) bool { return amounts[i].LessThan(amounts[j]) })
	mid := len(amounts) / 2
	if len(amounts)%2 == 1 {
		return amounts[mid]
	}
	return amounts[mid-1].Add(amounts[mid]).Div(decimal.NewFromInt(2))
}

func expectedGapDays(f models.Frequency) int {
	switch f {
	case models.FrequencyDaily:
		return 1
	case models.FrequencyWeekly:
		return 7
	case models.FrequencyBiweekly:
		return 14
	case models.FrequencyMonthly:
		return 30
	default:
		return 0
	}
}

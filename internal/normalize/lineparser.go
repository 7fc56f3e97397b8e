package normalize

import (
	"regexp"
	"strings"
	"time"

	"statement-intel-service/internal/models"

	"github.com/shopspring/decimal"
)

// Direction is the parsed money direction of a statement line.
type Direction int

const (
	DirectionUnknown Direction = iota
	DirectionDebit
	DirectionCredit
)

// ParsedLine is the raw result of extracting one statement line, before
// normalization assigns ids and applies classification flags.
type ParsedLine struct {
	Date        time.Time
	Description string
	Amount      decimal.Decimal
	Balance     *decimal.Decimal
	Direction   Direction
}

// LineParser extracts a candidate transaction from one line of statement
// text. Parsers are format strategies: bank layouts differ enough that the
// direction heuristics need to be swappable without touching grouping or
// scoring. ParseLine returns false for lines that are not transactions
// (headers, footers, disclaimers).
type LineParser interface {
	Name() string
	ParseLine(line string) (*ParsedLine, bool)
}

var (
	// Date token at or near the start of the line. Covers MM/DD/YYYY,
	// MM/DD/YY, MM-DD-YYYY and ISO dates.
	dateRe = regexp.MustCompile(`\b(\d{1,2}[/-]\d{1,2}[/-]\d{2,4}|\d{4}-\d{2}-\d{2})\b`)

	// Dollar amount with optional currency symbol, thousands separators,
	// parentheses or trailing minus.
	amountRe = regexp.MustCompile(`\(?-?\$?\s?\d[\d,]*\.\d{2}\)?-?`)
)

// Keyword cues for direction classification. Checked against the uppercased
// line so statement abbreviations like "WD" only match as whole words.
var (
	creditCues = []string{"DEP", "DEPOSIT", "CREDIT", "CR MEMO", "REFUND", "INTEREST PAID"}
	debitCues  = []string{"WD", "DEBIT", "CHECK", "ACH DEBIT", "WITHDRAWAL", "PURCHASE", "POS", "PAYMENT", "FEE"}
)

// GenericLineParser handles the common single-line statement layout:
// date, description, amount, optional running balance. It is the
// conservative default format strategy.
type GenericLineParser struct {
	defaultDebit bool
}

// NewGenericLineParser creates the default line parser. When defaultDebit
// is true, ambiguous lines are classified as outflows.
func NewGenericLineParser(defaultDebit bool) *GenericLineParser {
	return &GenericLineParser{defaultDebit: defaultDebit}
}

// Name implements LineParser.
func (p *GenericLineParser) Name() string {
	return "generic"
}

// ParseLine implements LineParser.
func (p *GenericLineParser) ParseLine(line string) (*ParsedLine, bool) {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil, false
	}

	dateLoc := dateRe.FindStringIndex(line)
	amountLocs := amountRe.FindAllStringIndex(line, -1)

	// A line with neither a date nor an amount is a header or disclaimer.
	if dateLoc == nil || len(amountLocs) == 0 {
		return nil, false
	}

	date, err := models.ParseDateWithFormats(line[dateLoc[0]:dateLoc[1]])
	if err != nil {
		return nil, false
	}

	// The trailing amount is the transaction amount unless a second
	// trailing amount is present, in which case the last is the running
	// balance.
	var amountStr string
	var balanceStr string
	switch {
	case len(amountLocs) >= 2:
		last := amountLocs[len(amountLocs)-1]
		prev := amountLocs[len(amountLocs)-2]
		amountStr = line[prev[0]:prev[1]]
		balanceStr = line[last[0]:last[1]]
	default:
		last := amountLocs[0]
		amountStr = line[last[0]:last[1]]
	}

	amount, err := models.ParseDecimalFromString(amountStr)
	if err != nil {
		return nil, false
	}

	var balance *decimal.Decimal
	if balanceStr != "" {
		if b, err := models.ParseDecimalFromString(balanceStr); err == nil {
			balance = &b
		}
	}

	// Description is everything between the date and the first trailing
	// amount.
	descEnd := len(line)
	if len(amountLocs) >= 2 {
		descEnd = amountLocs[len(amountLocs)-2][0]
	} else {
		descEnd = amountLocs[0][0]
	}
	descStart := dateLoc[1]
	if descStart > descEnd {
		descStart = 0
	}
	description := strings.TrimSpace(line[descStart:descEnd])
	if description == "" {
		return nil, false
	}

	direction := classifyDirection(line, amount)
	if direction == DirectionUnknown {
		if p.defaultDebit {
			direction = DirectionDebit
		} else {
			direction = DirectionCredit
		}
	}

	return &ParsedLine{
		Date:        date,
		Description: description,
		Amount:      amount.Abs(),
		Balance:     balance,
		Direction:   direction,
	}, true
}

// classifyDirection applies sign and keyword cues. An explicit negative
// amount always means a debit; otherwise keyword cues decide, with credit
// cues checked first since "DEPOSIT" lines occasionally also contain "POS".
func classifyDirection(line string, amount decimal.Decimal) Direction {
	if amount.IsNegative() {
		return DirectionDebit
	}

	upper := strings.ToUpper(line)
	for _, cue := range creditCues {
		if containsWord(upper, cue) {
			return DirectionCredit
		}
	}
	for _, cue := range debitCues {
		if containsWord(upper, cue) {
			return DirectionDebit
		}
	}
	return DirectionUnknown
}

// containsWord checks for cue as a whole word so "WD" does not match inside
// "FORWARD".
func containsWord(s, cue string) bool {
	idx := 0
	for {
		i := strings.Index(s[idx:], cue)
		if i < 0 {
			return false
		}
		start := idx + i
		end := start + len(cue)
		beforeOK := start == 0 || !isAlnum(s[start-1])
		afterOK := end == len(s) || !isAlnum(s[end])
		if beforeOK && afterOK {
			return true
		}
		idx = start + 1
		if idx >= len(s) {
			return false
		}
	}
}

func isAlnum(b byte) bool {
	return (b >= 'A' && b <= 'Z') || (b >= 'a' && b <= 'z') || (b >= '0' && b <= '9')
}

// Package report renders the result of a statement analysis run for human
// and programmatic consumption.
//
// Supported output formats:
//   - Console: Human-readable tabular output for terminal display
//   - JSON: Structured data format for programmatic consumption
//   - CSV: Comma-separated pattern export for spreadsheet applications
package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"statement-intel-service/internal/models"
)

// OutputFormat represents the supported report output formats.
type OutputFormat string

const (
	FormatConsole OutputFormat = "console"
	FormatJSON    OutputFormat = "json"
	FormatCSV     OutputFormat = "csv"
)

// IsValid checks if the output format is supported
func (f OutputFormat) IsValid() bool {
	switch f {
	case FormatConsole, FormatJSON, FormatCSV:
		return true
	default:
		return false
	}
}

// Config holds configuration options for report generation
type Config struct {
	// Output format
	Format OutputFormat `json:"format"`

	// Detail level options
	IncludePatterns     bool `json:"include_patterns"`
	IncludeTransactions bool `json:"include_transactions"`
	IncludeAnomalies    bool `json:"include_anomalies"`

	// CSV options
	CSVDelimiter rune `json:"csv_delimiter"`
	CSVHeaders   bool `json:"csv_headers"`
}

// DefaultConfig returns a default report configuration
func DefaultConfig() *Config {
	return &Config{
		Format:           FormatConsole,
		IncludePatterns:  true,
		IncludeAnomalies: true,
		CSVDelimiter:     ',',
		CSVHeaders:       true,
	}
}

// Validate validates the report configuration
func (c *Config) Validate() error {
	if !c.Format.IsValid() {
		return fmt.Errorf("invalid output format: %s", c.Format)
	}
	return nil
}

// AnalysisReport bundles everything one analysis run produced.
type AnalysisReport struct {
	GeneratedAt  time.Time                  `json:"generated_at"`
	Analysis     *models.FinancialAnalysis  `json:"analysis"`
	Patterns     []*models.RecurringPattern `json:"patterns,omitempty"`
	Transactions []*models.BankTransaction  `json:"transactions,omitempty"`
}

// Generator renders analysis reports in the configured format.
type Generator struct {
	config *Config
}

// NewGenerator creates a report generator with the specified configuration
func NewGenerator(config *Config) (*Generator, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid report configuration: %w", err)
	}
	return &Generator{config: config}, nil
}

// Generate writes the report to the provided writer.
func (g *Generator) Generate(r *AnalysisReport, writer io.Writer) error {
	if r == nil || r.Analysis == nil {
		return fmt.Errorf("analysis report cannot be nil")
	}

	switch g.config.Format {
	case FormatConsole:
		return g.generateConsole(r, writer)
	case FormatJSON:
		return g.generateJSON(r, writer)
	case FormatCSV:
		return g.generateCSV(r, writer)
	default:
		return fmt.Errorf("unsupported output format: %s", g.config.Format)
	}
}

func (g *Generator) generateConsole(r *AnalysisReport, writer io.Writer) error {
	fa := r.Analysis

	fmt.Fprintf(writer, "STATEMENT ANALYSIS REPORT\n")
	fmt.Fprintf(writer, "Generated: %s\n", r.GeneratedAt.Format(time.RFC3339))
	fmt.Fprintf(writer, "Opportunity: %s\n", fa.OpportunityID)
	fmt.Fprintf(writer, "Status: %s\n\n", fa.ParsingStatus)

	fmt.Fprintf(writer, "=== CASH FLOW SUMMARY ===\n")
	fmt.Fprintf(writer, "%-22s %d\n", "Documents:", fa.PDFCount)
	fmt.Fprintf(writer, "%-22s %d\n", "Transactions:", fa.TotalTransactions)
	fmt.Fprintf(writer, "%-22s $%s\n", "Total Deposits:", fa.TotalDeposits.StringFixed(2))
	fmt.Fprintf(writer, "%-22s $%s\n", "Total Withdrawals:", fa.TotalWithdrawals.StringFixed(2))
	fmt.Fprintf(writer, "%-22s $%s\n", "Net Cash Flow:", fa.NetCashFlow.StringFixed(2))
	fmt.Fprintf(writer, "%-22s $%s\n", "MCA Payments:", fa.TotalMCAPayments.StringFixed(2))
	fmt.Fprintf(writer, "%-22s %d\n", "NSF Incidents:", fa.NSFCount)
	fmt.Fprintf(writer, "%-22s %d\n", "Negative Balance Days:", fa.NegativeDaysCount)
	if fa.DateRangeStart != nil && fa.DateRangeEnd != nil {
		fmt.Fprintf(writer, "%-22s %s to %s\n", "Date Range:",
			fa.DateRangeStart.Format(models.DateFormat), fa.DateRangeEnd.Format(models.DateFormat))
	}
	if fa.ErrorMessage != nil {
		fmt.Fprintf(writer, "%-22s %s\n", "Warning:", *fa.ErrorMessage)
	}
	fmt.Fprintf(writer, "\n")

	if g.config.IncludePatterns && len(r.Patterns) > 0 {
		fmt.Fprintf(writer, "=== RECURRING PATTERNS ===\n")
		fmt.Fprintf(writer, "%-30s %-12s %-10s %5s %12s %6s %5s\n",
			"DESCRIPTION", "CATEGORY", "FREQUENCY", "COUNT", "AVG AMOUNT", "SCORE", "MCA")
		for _, p := range r.Patterns {
			mca := ""
			if p.IsMCA {
				mca = "yes"
			}
			fmt.Fprintf(writer, "%-30s %-12s %-10s %5d %12s %6d %5s\n",
				truncate(p.DescriptionPattern, 30), p.Category, p.Frequency,
				p.TransactionCount, "$"+p.AvgAmount.StringFixed(2), p.ConfidenceScore, mca)
		}
		fmt.Fprintf(writer, "\n")
	}

	if g.config.IncludeAnomalies {
		anomalies := 0
		for _, tx := range r.Transactions {
			if tx.IsAnomaly {
				anomalies++
			}
		}
		if anomalies > 0 {
			fmt.Fprintf(writer, "=== ANOMALIES ===\n")
			fmt.Fprintf(writer, "%d transaction(s) flagged for review\n", anomalies)
			for _, tx := range r.Transactions {
				if tx.IsAnomaly {
					fmt.Fprintf(writer, "  %s  %-30s  $%s\n",
						tx.TransactionDate.Format(models.DateFormat),
						truncate(tx.Description, 30), tx.Amount().StringFixed(2))
				}
			}
			fmt.Fprintf(writer, "\n")
		}
	}

	return nil
}

func (g *Generator) generateJSON(r *AnalysisReport, writer io.Writer) error {
	out := *r
	if !g.config.IncludePatterns {
		out.Patterns = nil
	}
	if !g.config.IncludeTransactions {
		out.Transactions = nil
	}

	encoder := json.NewEncoder(writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(&out)
}

// generateCSV exports the pattern table; the aggregate summary does not fit
// a row-oriented format.
func (g *Generator) generateCSV(r *AnalysisReport, writer io.Writer) error {
	w := csv.NewWriter(writer)
	w.Comma = g.config.CSVDelimiter

	if g.config.CSVHeaders {
		header := []string{
			"description_pattern", "category", "frequency", "transaction_count",
			"total_amount", "avg_amount", "min_amount", "max_amount",
			"first_occurrence", "last_occurrence", "confidence_score", "is_mca", "verified",
		}
		if err := w.Write(header); err != nil {
			return err
		}
	}

	for _, p := range r.Patterns {
		record := []string{
			p.DescriptionPattern,
			string(p.Category),
			string(p.Frequency),
			fmt.Sprintf("%d", p.TransactionCount),
			p.TotalAmount.StringFixed(2),
			p.AvgAmount.StringFixed(2),
			p.MinAmount.StringFixed(2),
			p.MaxAmount.StringFixed(2),
			p.FirstOccurrence.Format(models.DateFormat),
			p.LastOccurrence.Format(models.DateFormat),
			fmt.Sprintf("%d", p.ConfidenceScore),
			fmt.Sprintf("%t", p.IsMCA),
			fmt.Sprintf("%t", p.Verified),
		}
		if err := w.Write(record); err != nil {
			return err
		}
	}

	w.Flush()
	return w.Error()
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	if max <= 3 {
		return s[:max]
	}
	return s[:max-3] + "..."
}

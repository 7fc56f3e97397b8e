package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"statement-intel-service/cmd/stmtintel/config"
	"statement-intel-service/internal/detect"
	"statement-intel-service/internal/extract"
	"statement-intel-service/internal/ingest"
	"statement-intel-service/internal/normalize"
	"statement-intel-service/internal/report"
	"statement-intel-service/internal/service"
	"statement-intel-service/internal/store"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Flags for the analyze command
var (
	analyzeOpportunityID string
	analyzeStatements    []string
	analyzeRulesFile     string
	analyzeOutputFormat  string
	analyzeOutputFile    string
	analyzeMinGroupSize  int
	analyzeMCAMinAmount  float64
	analyzeSkipDetection bool
)

// analyzeCmd represents the analyze command
var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Analyze bank statement PDFs locally",
	Long: `Analyze runs the full pipeline against local PDF files without the HTTP
service: text extraction, transaction normalization, cash-flow aggregation
and recurring pattern detection.

Examples:
  # Basic analysis with console output
  stmtintel analyze --opportunity-id opp-123 --statements jan.pdf,feb.pdf

  # JSON report written to a file
  stmtintel analyze --opportunity-id opp-123 --statements jan.pdf \
    --output-format json --output-file report.json

  # Custom classification rules, skip pattern detection
  stmtintel analyze --opportunity-id opp-123 --statements jan.pdf \
    --rules rules.yaml --skip-detection`,

	PreRunE: validateAnalyzeFlags,
	RunE:    runAnalyze,
}

func init() {
	rootCmd.AddCommand(analyzeCmd)

	// Required flags
	analyzeCmd.Flags().StringVarP(&analyzeOpportunityID, "opportunity-id", "i", "", "opportunity identifier (required)")
	analyzeCmd.Flags().StringSliceVarP(&analyzeStatements, "statements", "s", []string{}, "comma-separated paths to statement PDF files (required)")

	// Output flags
	analyzeCmd.Flags().StringVarP(&analyzeOutputFormat, "output-format", "f", "console", "output format: console, json, csv")
	analyzeCmd.Flags().StringVarP(&analyzeOutputFile, "output-file", "o", "", "output file path (default: stdout)")

	// Pipeline configuration flags
	analyzeCmd.Flags().StringVar(&analyzeRulesFile, "rules", "", "YAML classification ruleset (default: built-in rules)")
	analyzeCmd.Flags().IntVar(&analyzeMinGroupSize, "min-group-size", 0, "minimum occurrences for a recurring pattern")
	analyzeCmd.Flags().Float64Var(&analyzeMCAMinAmount, "mca-min-amount", 0, "minimum amount for the MCA keyword flag")
	analyzeCmd.Flags().BoolVar(&analyzeSkipDetection, "skip-detection", false, "skip recurring pattern detection")

	analyzeCmd.MarkFlagRequired("opportunity-id")
	analyzeCmd.MarkFlagRequired("statements")

	viper.BindPFlag("output-format", analyzeCmd.Flags().Lookup("output-format"))
	viper.BindPFlag("output-file", analyzeCmd.Flags().Lookup("output-file"))
}

func validateAnalyzeFlags(cmd *cobra.Command, args []string) error {
	if analyzeOpportunityID == "" {
		return fmt.Errorf("opportunity-id is required")
	}
	if len(analyzeStatements) == 0 {
		return fmt.Errorf("at least one statement file is required")
	}

	for _, path := range analyzeStatements {
		info, err := os.Stat(path)
		if os.IsNotExist(err) {
			return fmt.Errorf("statement file does not exist: %s", path)
		}
		if err != nil {
			return fmt.Errorf("error accessing statement file %s: %w", path, err)
		}
		if info.IsDir() {
			return fmt.Errorf("statement path is a directory, expected a file: %s", path)
		}
	}

	format := report.OutputFormat(analyzeOutputFormat)
	if !format.IsValid() {
		return fmt.Errorf("invalid output format '%s'. Valid formats: console, json, csv", analyzeOutputFormat)
	}
	return nil
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	ruleset, err := config.CreateRuleset(analyzeRulesFile)
	if err != nil {
		return err
	}
	normalizerConfig, err := config.CreateNormalizerConfig(analyzeMCAMinAmount)
	if err != nil {
		return err
	}
	detectorConfig, err := config.CreateDetectorConfig(analyzeMinGroupSize)
	if err != nil {
		return err
	}

	docs := make([]ingest.Document, 0, len(analyzeStatements))
	for _, path := range analyzeStatements {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", path, err)
		}
		docs = append(docs, ingest.Document{Filename: path, Data: data})
	}

	svc := service.NewAnalysisService(
		store.NewMemoryStore(),
		ingest.NewIngestor(extract.NewPDFExtractor(), 4),
		normalize.NewNormalizer(normalizerConfig, ruleset),
		detect.NewDetector(detectorConfig, ruleset),
	)

	analysis, err := svc.IngestStatements(ctx, analyzeOpportunityID, docs)
	if err != nil {
		return fmt.Errorf("statement analysis failed: %w", err)
	}

	result := &report.AnalysisReport{
		GeneratedAt: time.Now(),
		Analysis:    analysis,
	}

	if !analyzeSkipDetection {
		patterns, err := svc.DetectPatterns(ctx, analyzeOpportunityID)
		if err != nil {
			return fmt.Errorf("pattern detection failed: %w", err)
		}
		result.Patterns = patterns

		analysis, err = svc.GetAnalysis(ctx, analyzeOpportunityID)
		if err != nil {
			return err
		}
		result.Analysis = analysis
	}

	txs, err := svc.ListTransactions(ctx, analyzeOpportunityID)
	if err != nil {
		return err
	}
	result.Transactions = txs

	reportConfig := report.DefaultConfig()
	reportConfig.Format = report.OutputFormat(analyzeOutputFormat)
	reportConfig.IncludeTransactions = reportConfig.Format == report.FormatJSON
	generator, err := report.NewGenerator(reportConfig)
	if err != nil {
		return err
	}

	var output *os.File
	if analyzeOutputFile != "" {
		output, err = os.Create(analyzeOutputFile)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer output.Close()
	} else {
		output = os.Stdout
	}

	if err := generator.Generate(result, output); err != nil {
		return fmt.Errorf("failed to generate report: %w", err)
	}

	if viper.GetBool("verbose") {
		fmt.Fprintf(os.Stderr, "\nAnalysis completed: %d transactions, %d patterns.\n",
			len(result.Transactions), len(result.Patterns))
	}
	return nil
}

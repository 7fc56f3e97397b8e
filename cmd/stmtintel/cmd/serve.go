package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"statement-intel-service/cmd/stmtintel/config"
	"statement-intel-service/internal/api"
	"statement-intel-service/internal/detect"
	"statement-intel-service/internal/extract"
	"statement-intel-service/internal/ingest"
	"statement-intel-service/internal/normalize"
	"statement-intel-service/internal/service"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Flags for the serve command
var (
	serveAddr        string
	serveDBPath      string
	serveJWTSecret   string
	serveRulesFile   string
	serveConcurrency int
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the statement intelligence HTTP service",
	Long: `Serve starts the HTTP API for statement ingestion, pattern detection
and pattern review.

Examples:
  # In-memory store, no auth (development)
  stmtintel serve --addr :8080

  # SQLite persistence with bearer-token auth
  stmtintel serve --addr :8080 --db analyses.db --jwt-secret $STMTINTEL_JWT_SECRET`,

	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveAddr, "addr", ":8080", "listen address")
	serveCmd.Flags().StringVar(&serveDBPath, "db", "", "SQLite database path (default: in-memory store)")
	serveCmd.Flags().StringVar(&serveJWTSecret, "jwt-secret", "", "HMAC secret for bearer-token auth (empty disables auth)")
	serveCmd.Flags().StringVar(&serveRulesFile, "rules", "", "YAML classification ruleset (default: built-in rules)")
	serveCmd.Flags().IntVar(&serveConcurrency, "extract-concurrency", 4, "concurrent document extractions per request")

	viper.BindPFlag("addr", serveCmd.Flags().Lookup("addr"))
	viper.BindPFlag("db", serveCmd.Flags().Lookup("db"))
	viper.BindPFlag("jwt-secret", serveCmd.Flags().Lookup("jwt-secret"))
	viper.BindPFlag("rules", serveCmd.Flags().Lookup("rules"))
	viper.BindPFlag("extract-concurrency", serveCmd.Flags().Lookup("extract-concurrency"))
}

func runServe(cmd *cobra.Command, args []string) error {
	serveAddr = viper.GetString("addr")
	serveDBPath = viper.GetString("db")
	serveJWTSecret = viper.GetString("jwt-secret")
	serveRulesFile = viper.GetString("rules")
	serveConcurrency = viper.GetInt("extract-concurrency")

	ruleset, err := config.CreateRuleset(serveRulesFile)
	if err != nil {
		return err
	}

	st, err := config.CreateStore(serveDBPath)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer st.Close()

	serverConfig, err := config.CreateServerConfig(serveAddr, serveJWTSecret)
	if err != nil {
		return err
	}

	svc := service.NewAnalysisService(
		st,
		ingest.NewIngestor(extract.NewPDFExtractor(), serveConcurrency),
		normalize.NewNormalizer(nil, ruleset),
		detect.NewDetector(nil, ruleset),
	)
	server := api.NewServer(serverConfig, svc)

	// Shut down cleanly on SIGINT/SIGTERM so in-flight requests finish.
	done := make(chan error, 1)
	go func() { done <- server.Listen() }()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-done:
		return err
	case sig := <-stop:
		fmt.Fprintf(os.Stderr, "Received %s, shutting down...\n", sig)
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(ctx)
	}
}

package cmd

import (
	"fmt"
	"os"

	"statement-intel-service/pkg/errors"
	"statement-intel-service/pkg/logger"

	"github.com/spf13/viper"
)

// CLIErrorHandler provides user-friendly error handling for CLI operations
type CLIErrorHandler struct {
	logger  logger.Logger
	verbose bool
}

// NewCLIErrorHandler creates a new CLI error handler
func NewCLIErrorHandler() *CLIErrorHandler {
	return &CLIErrorHandler{
		logger:  logger.GetGlobalLogger().WithComponent("cli"),
		verbose: viper.GetBool("verbose"),
	}
}

// ExitCode maps an error onto a process exit code and prints any available
// context to stderr.
func (h *CLIErrorHandler) ExitCode(err error) int {
	if err == nil {
		return 0
	}

	appErr, ok := errors.AsError(err)
	if !ok {
		return 1
	}

	if appErr.Suggestion != "" {
		fmt.Fprintf(os.Stderr, "Suggestion: %s\n", appErr.Suggestion)
	}
	fmt.Fprintf(os.Stderr, "\n%s\n", h.categoryHelp(appErr.Category))

	if h.verbose && appErr.Cause != nil {
		fmt.Fprintf(os.Stderr, "\nUnderlying error: %v\n", appErr.Cause)
	}
	return appErr.GetExitCode()
}

// categoryHelp returns category-specific help text
func (h *CLIErrorHandler) categoryHelp(category errors.Category) string {
	switch category {
	case errors.CategoryValidation:
		return `Validation error help:
• Check the opportunity identifier and file paths
• Verify that at least one statement PDF was supplied
• Use 'stmtintel analyze --help' to see all available options`

	case errors.CategoryExtraction:
		return `Extraction error help:
• Verify the files are text-based PDF bank statements
• Scanned-image statements cannot be read; re-export them from online banking
• Try each file individually to isolate the unreadable one`

	case errors.CategoryPrecondition:
		return `Precondition error help:
• Statements must be ingested successfully before detecting patterns
• Check the analysis parsing status and any recorded error message`

	case errors.CategoryConflict:
		return `Conflict error help:
• Another request is processing the same opportunity
• Wait for the in-flight run to complete and retry`

	case errors.CategoryConfig:
		return `Configuration error help:
• Check your command-line flags and arguments
• Verify configuration file syntax if using --config
• Try running with default settings first`

	default:
		return `For more help:
• Use 'stmtintel --help' for general help
• Run with --verbose for detailed error information`
	}
}

// Package errors defines the error taxonomy shared by all statement
// intelligence components.
//
// Every failure surfaced by the service belongs to one of a small set of
// categories, each with specific handling semantics:
//   - validation: malformed or missing input, surfaced immediately, not retried
//   - extraction: a specific document could not be read; non-fatal unless all fail
//   - precondition: an operation invoked in the wrong lifecycle state
//   - conflict: concurrent write collision on an opportunity's data set
//   - processing: unexpected failure during normalization or detection
package errors

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// Category classifies an error for handling and propagation decisions.
type Category string

const (
	CategoryValidation   Category = "validation"
	CategoryExtraction   Category = "extraction"
	CategoryPrecondition Category = "precondition"
	CategoryConflict     Category = "conflict"
	CategoryProcessing   Category = "processing"
	CategoryStore        Category = "store"
	CategoryConfig       Category = "configuration"
)

// Code identifies a specific failure mode within a category.
type Code string

const (
	// Validation codes
	CodeNoDocuments        Code = "no_documents"
	CodeInvalidOpportunity Code = "invalid_opportunity"
	CodeMissingField       Code = "missing_field"
	CodeInvalidValue       Code = "invalid_value"

	// Extraction codes
	CodeUnreadableDocument Code = "unreadable_document"
	CodeEmptyDocument      Code = "empty_document"
	CodeAllDocumentsFailed Code = "all_documents_failed"

	// Precondition codes
	CodeNotParsed         Code = "not_parsed"
	CodeAlreadyProcessing Code = "already_processing"
	CodeUnknownPattern    Code = "unknown_pattern"

	// Conflict codes
	CodeOpportunityBusy Code = "opportunity_busy"
	CodeStaleWrite      Code = "stale_write"

	// Processing codes
	CodeNoTransactions Code = "no_transactions"
	CodeUnexpected     Code = "unexpected_error"

	// Store codes
	CodeQueryFailed   Code = "query_failed"
	CodeRecordMissing Code = "record_missing"

	// Configuration codes
	CodeInvalidConfig Code = "invalid_config"
)

// Error is the base error type for all application errors. It carries a
// category and code for programmatic handling plus a human-readable message
// and optional suggestion for the caller.
type Error struct {
	Category   Category          `json:"category"`
	Code       Code              `json:"code"`
	Message    string            `json:"message"`
	Suggestion string            `json:"suggestion,omitempty"`
	Context    Context           `json:"context,omitempty"`
	Cause      error             `json:"-"`
	StackTrace errors.StackTrace `json:"-"`
}

// Context provides additional information about the error.
type Context map[string]interface{}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Suggestion != "" {
		return fmt.Sprintf("%s (suggestion: %s)", e.Message, e.Suggestion)
	}
	return e.Message
}

// Unwrap returns the underlying cause error.
func (e *Error) Unwrap() error {
	return e.Cause
}

// WithContext adds context information to the error.
func (e *Error) WithContext(key string, value interface{}) *Error {
	if e.Context == nil {
		e.Context = make(Context)
	}
	e.Context[key] = value
	return e
}

// WithSuggestion adds a suggestion for fixing the error.
func (e *Error) WithSuggestion(suggestion string) *Error {
	e.Suggestion = suggestion
	return e
}

// GetExitCode returns an appropriate process exit code for CLI usage.
func (e *Error) GetExitCode() int {
	switch e.Category {
	case CategoryValidation, CategoryPrecondition:
		return 2
	case CategoryExtraction:
		return 3
	case CategoryConfig:
		return 4
	case CategoryConflict:
		return 5
	case CategoryProcessing, CategoryStore:
		return 6
	default:
		return 1
	}
}

// New creates a new Error with a captured stack trace.
func New(category Category, code Code, message string) *Error {
	return &Error{
		Category:   category,
		Code:       code,
		Message:    message,
		StackTrace: errors.New("").(stackTracer).StackTrace(),
	}
}

// Wrap wraps an existing error with category and code context.
func Wrap(err error, category Category, code Code, message string) *Error {
	if err == nil {
		return nil
	}
	return &Error{
		Category:   category,
		Code:       code,
		Message:    message,
		Cause:      err,
		StackTrace: errors.WithStack(err).(stackTracer).StackTrace(),
	}
}

// stackTracer interface for extracting stack traces
type stackTracer interface {
	StackTrace() errors.StackTrace
}

// ValidationError reports malformed or missing input to an operation.
// These are thrown synchronously and never recorded on the analysis record.
func ValidationError(code Code, field string, value interface{}) *Error {
	var message, suggestion string
	switch code {
	case CodeNoDocuments:
		message = "no documents supplied"
		suggestion = "upload at least one bank statement PDF"
	case CodeInvalidOpportunity:
		message = fmt.Sprintf("invalid opportunity reference: %v", value)
		suggestion = "provide a non-empty opportunity identifier"
	case CodeMissingField:
		message = fmt.Sprintf("required field '%s' is missing or empty", field)
		suggestion = "provide a value for this required field"
	default:
		message = fmt.Sprintf("invalid value for field '%s': %v", field, value)
		suggestion = "check the field value and format"
	}

	return New(CategoryValidation, code, message).
		WithSuggestion(suggestion).
		WithContext("field", field).
		WithContext("value", value)
}

// ExtractionError reports a document that could not be decoded. It is
// recorded per document and does not abort the batch unless every document
// fails.
func ExtractionError(code Code, filename string, err error) *Error {
	var message, suggestion string
	switch code {
	case CodeUnreadableDocument:
		message = fmt.Sprintf("could not extract readable text from %s", filename)
		suggestion = "the PDF may be scanned or use custom font encodings; try re-exporting it"
	case CodeEmptyDocument:
		message = fmt.Sprintf("document %s produced no text", filename)
		suggestion = "verify the file is a text-based bank statement PDF"
	case CodeAllDocumentsFailed:
		message = "text extraction failed for every document in the batch"
		suggestion = "check that the uploads are valid, text-based PDFs"
	default:
		message = fmt.Sprintf("extraction error for %s", filename)
		suggestion = "verify the document and retry"
	}

	var result *Error
	if err != nil {
		result = Wrap(err, CategoryExtraction, code, message)
	} else {
		result = New(CategoryExtraction, code, message)
	}
	return result.
		WithSuggestion(suggestion).
		WithContext("filename", filename)
}

// PreconditionError reports an operation invoked in the wrong state, such as
// pattern detection before a successful parse.
func PreconditionError(code Code, opportunityID string, state string) *Error {
	var message, suggestion string
	switch code {
	case CodeNotParsed:
		message = fmt.Sprintf("opportunity %s is not in parsed state (current: %s)", opportunityID, state)
		suggestion = "ingest statements successfully before detecting patterns"
	case CodeAlreadyProcessing:
		message = fmt.Sprintf("opportunity %s is already being processed", opportunityID)
		suggestion = "wait for the in-flight run to complete and retry"
	case CodeUnknownPattern:
		message = fmt.Sprintf("pattern %s does not exist", state)
		suggestion = "run pattern detection before applying overrides"
	default:
		message = fmt.Sprintf("operation not allowed for opportunity %s in state %s", opportunityID, state)
		suggestion = "check the parsing status and retry"
	}

	return New(CategoryPrecondition, code, message).
		WithSuggestion(suggestion).
		WithContext("opportunity_id", opportunityID).
		WithContext("state", state)
}

// ConflictError reports a concurrent write collision on the same
// opportunity's transaction or pattern set.
func ConflictError(code Code, opportunityID string) *Error {
	var message, suggestion string
	switch code {
	case CodeOpportunityBusy:
		message = fmt.Sprintf("another request is processing opportunity %s", opportunityID)
		suggestion = "retry after the in-flight request finishes"
	default:
		message = fmt.Sprintf("write conflict on opportunity %s", opportunityID)
		suggestion = "re-read the current state and retry"
	}

	return New(CategoryConflict, code, message).
		WithSuggestion(suggestion).
		WithContext("opportunity_id", opportunityID)
}

// ProcessingError reports an unexpected failure during normalization or
// detection. It always results in parsing_status=failed on the analysis
// record, never a silent partial write.
func ProcessingError(code Code, operation string, err error) *Error {
	var message, suggestion string
	switch code {
	case CodeNoTransactions:
		message = "no transactions found"
		suggestion = "verify the statements contain transaction lines the parser recognizes"
	default:
		message = fmt.Sprintf("unexpected error during %s", operation)
		suggestion = "retry the operation; report if the problem persists"
	}

	var result *Error
	if err != nil {
		result = Wrap(err, CategoryProcessing, code, message)
	} else {
		result = New(CategoryProcessing, code, message)
	}
	return result.
		WithSuggestion(suggestion).
		WithContext("operation", operation)
}

// StoreError reports a persistence failure from the record store.
func StoreError(code Code, operation string, err error) *Error {
	var message string
	switch code {
	case CodeRecordMissing:
		message = fmt.Sprintf("record not found during %s", operation)
	default:
		message = fmt.Sprintf("store operation %s failed", operation)
	}

	var result *Error
	if err != nil {
		result = Wrap(err, CategoryStore, code, message)
	} else {
		result = New(CategoryStore, code, message)
	}
	return result.WithContext("operation", operation)
}

// ConfigurationError reports an invalid component configuration.
func ConfigurationError(setting string, value interface{}, err error) *Error {
	message := fmt.Sprintf("invalid configuration for '%s': %v", setting, value)

	var result *Error
	if err != nil {
		result = Wrap(err, CategoryConfig, CodeInvalidConfig, message)
	} else {
		result = New(CategoryConfig, CodeInvalidConfig, message)
	}
	return result.
		WithSuggestion("check the configuration documentation for valid values").
		WithContext("setting", setting).
		WithContext("value", value)
}

// ErrorSummary aggregates multiple errors, used for per-document extraction
// failures within one ingestion batch.
type ErrorSummary struct {
	Total      int              `json:"total"`
	ByCategory map[Category]int `json:"by_category"`
	ByCode     map[Code]int     `json:"by_code"`
	Errors     []*Error         `json:"errors"`
}

// NewErrorSummary creates a summary over the given errors.
func NewErrorSummary(errs []*Error) *ErrorSummary {
	summary := &ErrorSummary{
		Total:      len(errs),
		ByCategory: make(map[Category]int),
		ByCode:     make(map[Code]int),
		Errors:     errs,
	}
	for _, err := range errs {
		summary.ByCategory[err.Category]++
		summary.ByCode[err.Code]++
	}
	return summary
}

// Error returns a formatted message for the summary.
func (es *ErrorSummary) Error() string {
	if es.Total == 0 {
		return "no errors"
	}
	if es.Total == 1 {
		return es.Errors[0].Error()
	}

	var categories []string
	for category, count := range es.ByCategory {
		categories = append(categories, fmt.Sprintf("%s: %d", category, count))
	}
	return fmt.Sprintf("%d errors occurred (%s)", es.Total, strings.Join(categories, ", "))
}

// HasCategory checks if the summary contains errors of the given category.
func (es *ErrorSummary) HasCategory(category Category) bool {
	return es.ByCategory[category] > 0
}

// IsError checks if an error is an application Error.
func IsError(err error) bool {
	_, ok := err.(*Error)
	return ok
}

// AsError extracts an application Error from an error chain.
func AsError(err error) (*Error, bool) {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// IsCategory reports whether err is an application Error of the given category.
func IsCategory(err error, category Category) bool {
	if appErr, ok := AsError(err); ok {
		return appErr.Category == category
	}
	return false
}

// WrapIfNeeded wraps an error unless it is already an application Error.
func WrapIfNeeded(err error, category Category, code Code, message string) *Error {
	if err == nil {
		return nil
	}
	if appErr, ok := AsError(err); ok {
		return appErr
	}
	return Wrap(err, category, code, message)
}

// Package service orchestrates the statement intelligence pipeline: document
// ingestion, transaction normalization, recurring pattern detection and
// pattern review, on top of a persistence store.
package service

import (
	"context"
	"strings"
	"sync"

	"statement-intel-service/internal/detect"
	"statement-intel-service/internal/ingest"
	"statement-intel-service/internal/models"
	"statement-intel-service/internal/normalize"
	"statement-intel-service/internal/store"
	"statement-intel-service/internal/verify"
	"statement-intel-service/pkg/errors"
	"statement-intel-service/pkg/logger"
)

// AnalysisService is the single entry point for all statement intelligence
// operations. Writes to one opportunity are mutually exclusive; a second
// writer fails fast with a conflict error instead of queueing.
type AnalysisService struct {
	store      store.Store
	ingestor   *ingest.Ingestor
	normalizer *normalize.Normalizer
	detector   *detect.Detector
	logger     logger.Logger

	mu   sync.Mutex
	busy map[string]bool
}

// NewAnalysisService wires the pipeline stages together.
func NewAnalysisService(st store.Store, ing *ingest.Ingestor, norm *normalize.Normalizer, det *detect.Detector) *AnalysisService {
	return &AnalysisService{
		store:      st,
		ingestor:   ing,
		normalizer: norm,
		detector:   det,
		logger:     logger.GetGlobalLogger().WithComponent("analysis_service"),
		busy:       make(map[string]bool),
	}
}

// acquire marks the opportunity busy, failing fast if another write is in
// flight. Queueing writers would let a stale re-parse overwrite a newer one,
// so the loser is rejected instead.
func (s *AnalysisService) acquire(opportunityID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.busy[opportunityID] {
		return errors.ConflictError(errors.CodeOpportunityBusy, opportunityID)
	}
	s.busy[opportunityID] = true
	return nil
}

func (s *AnalysisService) release(opportunityID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.busy, opportunityID)
}

// IngestStatements runs the full parse pipeline for one opportunity: extract
// text from every document, normalize transactions, compute aggregates and
// persist the result. A re-ingest fully replaces the prior transaction set.
//
// Partial extraction failures do not fail the run; the analysis records a
// warning naming the unreadable documents. The run fails only when no
// document yields text or no transactions are found, in which case the
// analysis is persisted in the failed state with an error message.
func (s *AnalysisService) IngestStatements(ctx context.Context, opportunityID string, docs []ingest.Document) (*models.FinancialAnalysis, error) {
	if strings.TrimSpace(opportunityID) == "" {
		return nil, errors.ValidationError(errors.CodeInvalidOpportunity, "opportunity_id", opportunityID)
	}
	if len(docs) == 0 {
		return nil, errors.ValidationError(errors.CodeNoDocuments, "documents", 0)
	}

	if err := s.acquire(opportunityID); err != nil {
		return nil, err
	}
	defer s.release(opportunityID)

	analysis, err := s.loadOrCreateAnalysis(ctx, opportunityID)
	if err != nil {
		return nil, err
	}

	// The busy map guards this process; the persisted status guards against
	// a record another writer left mid-run.
	if !analysis.ParsingStatus.CanTransitionTo(models.StatusProcessing) {
		return nil, errors.ConflictError(errors.CodeOpportunityBusy, opportunityID).
			WithContext("parsing_status", string(analysis.ParsingStatus))
	}

	analysis.ParsingStatus = models.StatusProcessing
	analysis.PDFCount = len(docs)
	analysis.ErrorMessage = nil
	if err := s.store.SaveAnalysis(ctx, analysis); err != nil {
		return nil, err
	}

	results, err := s.ingestor.Ingest(ctx, docs)
	if err != nil {
		return nil, s.failAnalysis(ctx, analysis, err)
	}

	pages, failed := ingest.Split(results)
	if len(failed) == len(docs) {
		err := errors.ExtractionError(errors.CodeAllDocumentsFailed, ingest.FailureSummary(failed), nil)
		return nil, s.failAnalysis(ctx, analysis, err)
	}

	txs := s.normalizer.Normalize(opportunityID, pages)
	if len(txs) == 0 {
		err := errors.ProcessingError(errors.CodeNoTransactions, "normalize", nil)
		return nil, s.failAnalysis(ctx, analysis, err)
	}

	s.normalizer.ComputeAggregates(analysis, txs)
	analysis.ParsingStatus = models.StatusParsed
	if len(failed) > 0 {
		warning := ingest.FailureSummary(failed)
		analysis.ErrorMessage = &warning
		s.logger.WithFields(logger.Fields{
			"opportunity_id": opportunityID,
			"failures":       ingest.Summarize(failed).Error(),
		}).Warn("some documents could not be read")
	}

	if err := s.store.ReplaceTransactions(ctx, opportunityID, txs); err != nil {
		return nil, s.failAnalysis(ctx, analysis, err)
	}
	if err := s.store.SaveAnalysis(ctx, analysis); err != nil {
		return nil, err
	}

	s.logger.WithFields(logger.Fields{
		"opportunity_id": opportunityID,
		"documents":      len(docs),
		"failed":         len(failed),
		"transactions":   len(txs),
	}).Info("statements ingested")

	return analysis, nil
}

// DetectPatterns recomputes the recurring pattern set for a parsed
// opportunity. Detection fully replaces prior patterns; review state is
// carried forward onto patterns whose group identity is unchanged.
func (s *AnalysisService) DetectPatterns(ctx context.Context, opportunityID string) ([]*models.RecurringPattern, error) {
	if strings.TrimSpace(opportunityID) == "" {
		return nil, errors.ValidationError(errors.CodeInvalidOpportunity, "opportunity_id", opportunityID)
	}

	if err := s.acquire(opportunityID); err != nil {
		return nil, err
	}
	defer s.release(opportunityID)

	analysis, err := s.store.GetAnalysis(ctx, opportunityID)
	if err != nil {
		return nil, err
	}
	if analysis.ParsingStatus != models.StatusParsed {
		return nil, errors.PreconditionError(errors.CodeNotParsed, opportunityID, string(analysis.ParsingStatus))
	}

	// Detection itself never fails: an empty transaction set simply yields
	// an empty pattern set.
	txs, err := s.store.ListTransactions(ctx, opportunityID)
	if err != nil {
		return nil, err
	}

	prior, err := s.store.ListPatterns(ctx, opportunityID)
	if err != nil {
		return nil, err
	}

	patterns := s.detector.Detect(opportunityID, txs)
	verify.CarryForward(patterns, prior)

	if err := s.store.ApplyDetection(ctx, opportunityID, patterns, txs); err != nil {
		return nil, err
	}

	analysis.Verified = verify.AllVerified(patterns)
	if err := s.store.SaveAnalysis(ctx, analysis); err != nil {
		return nil, err
	}

	s.logger.WithFields(logger.Fields{
		"opportunity_id": opportunityID,
		"patterns":       len(patterns),
	}).Info("patterns detected")

	return patterns, nil
}

// UpdatePattern applies a rep review edit to one pattern and keeps the
// analysis-level verified flag consistent with the resulting pattern set.
func (s *AnalysisService) UpdatePattern(ctx context.Context, patternID string, update verify.Update) (*models.RecurringPattern, error) {
	if strings.TrimSpace(patternID) == "" {
		return nil, errors.ValidationError(errors.CodeUnknownPattern, "pattern_id", patternID)
	}
	if update.IsEmpty() {
		return nil, errors.ValidationError(errors.CodeMissingField, "update", nil).
			WithSuggestion("provide at least one field to change")
	}

	pattern, err := s.store.GetPattern(ctx, patternID)
	if err != nil {
		if appErr, ok := errors.AsError(err); ok && appErr.Code == errors.CodeRecordMissing {
			return nil, errors.ValidationError(errors.CodeUnknownPattern, "pattern_id", patternID)
		}
		return nil, err
	}

	if err := s.acquire(pattern.OpportunityID); err != nil {
		return nil, err
	}
	defer s.release(pattern.OpportunityID)

	if err := verify.Apply(pattern, update); err != nil {
		return nil, err
	}
	if err := s.store.UpdatePattern(ctx, pattern); err != nil {
		return nil, err
	}

	if err := s.refreshVerified(ctx, pattern.OpportunityID); err != nil {
		return nil, err
	}

	s.logger.WithFields(logger.Fields{
		"opportunity_id": pattern.OpportunityID,
		"pattern_id":     patternID,
		"verified":       pattern.Verified,
	}).Info("pattern updated")

	return pattern, nil
}

// GetAnalysis returns the analysis record for an opportunity.
func (s *AnalysisService) GetAnalysis(ctx context.Context, opportunityID string) (*models.FinancialAnalysis, error) {
	return s.store.GetAnalysis(ctx, opportunityID)
}

// ListTransactions returns the opportunity's transactions in date order.
func (s *AnalysisService) ListTransactions(ctx context.Context, opportunityID string) ([]*models.BankTransaction, error) {
	return s.store.ListTransactions(ctx, opportunityID)
}

// ListPatterns returns the opportunity's patterns in display order.
func (s *AnalysisService) ListPatterns(ctx context.Context, opportunityID string) ([]*models.RecurringPattern, error) {
	return s.store.ListPatterns(ctx, opportunityID)
}

func (s *AnalysisService) loadOrCreateAnalysis(ctx context.Context, opportunityID string) (*models.FinancialAnalysis, error) {
	analysis, err := s.store.GetAnalysis(ctx, opportunityID)
	if err == nil {
		return analysis, nil
	}
	if appErr, ok := errors.AsError(err); ok && appErr.Code == errors.CodeRecordMissing {
		return models.NewFinancialAnalysis(opportunityID), nil
	}
	return nil, err
}

// failAnalysis records the failure on the analysis record and returns the
// original error. The persisted failed state is the API contract; the save
// error only supersedes it when persisting the failure itself broke.
func (s *AnalysisService) failAnalysis(ctx context.Context, analysis *models.FinancialAnalysis, cause error) error {
	msg := cause.Error()
	analysis.ParsingStatus = models.StatusFailed
	analysis.ErrorMessage = &msg

	if saveErr := s.store.SaveAnalysis(ctx, analysis); saveErr != nil {
		s.logger.WithError(saveErr).WithField("opportunity_id", analysis.OpportunityID).
			Error("failed to persist failure state")
		return saveErr
	}
	return cause
}

func (s *AnalysisService) refreshVerified(ctx context.Context, opportunityID string) error {
	patterns, err := s.store.ListPatterns(ctx, opportunityID)
	if err != nil {
		return err
	}
	analysis, err := s.store.GetAnalysis(ctx, opportunityID)
	if err != nil {
		return err
	}
	analysis.Verified = verify.AllVerified(patterns)
	return s.store.SaveAnalysis(ctx, analysis)
}

// Package ingest turns a batch of uploaded statement documents into
// per-page text. Extraction fans out across the batch; results are joined
// back in input order so downstream parsing is deterministic.
package ingest

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"statement-intel-service/internal/extract"
	"statement-intel-service/pkg/errors"
	"statement-intel-service/pkg/logger"
)

// Document is one uploaded statement file.
type Document struct {
	Filename string
	Data     []byte
}

// Result is the extraction outcome for one document. Exactly one of Pages
// and Err is set.
type Result struct {
	Filename string
	Pages    []string
	Err      error
}

// Ingestor extracts text from statement document batches.
type Ingestor struct {
	extractor   extract.TextExtractor
	concurrency int
	logger      logger.Logger
}

// NewIngestor creates an ingestor using the given extractor. Concurrency
// below 1 falls back to 4.
func NewIngestor(extractor extract.TextExtractor, concurrency int) *Ingestor {
	if concurrency < 1 {
		concurrency = 4
	}
	return &Ingestor{
		extractor:   extractor,
		concurrency: concurrency,
		logger:      logger.GetGlobalLogger().WithComponent("ingestor"),
	}
}

// Ingest extracts text from every document in the batch. A failing document
// does not abort the batch; its Result carries the error and the caller
// decides the partial-failure policy. Results are in input order.
func (ing *Ingestor) Ingest(ctx context.Context, docs []Document) ([]Result, error) {
	if len(docs) == 0 {
		return nil, errors.ValidationError(errors.CodeNoDocuments, "documents", 0)
	}

	results := make([]Result, len(docs))
	sem := make(chan struct{}, ing.concurrency)
	var wg sync.WaitGroup

	for i, doc := range docs {
		wg.Add(1)
		go func(i int, doc Document) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			pages, err := ing.extractor.ExtractPages(ctx, doc.Filename, doc.Data)
			results[i] = Result{Filename: doc.Filename, Pages: pages, Err: err}

			if err != nil {
				ing.logger.WithError(err).WithField("filename", doc.Filename).
					Warn("document extraction failed")
			} else {
				ing.logger.WithFields(logger.Fields{
					"filename": doc.Filename,
					"pages":    len(pages),
				}).Debug("document extracted")
			}
		}(i, doc)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, errors.Wrap(err, errors.CategoryProcessing, errors.CodeUnexpected,
			"ingestion canceled")
	}
	return results, nil
}

// Split partitions results into extracted page texts and failures.
func Split(results []Result) (pages []string, failed []Result) {
	for _, r := range results {
		if r.Err != nil {
			failed = append(failed, r)
			continue
		}
		pages = append(pages, r.Pages...)
	}
	return pages, failed
}

// FailureSummary renders a short human-readable account of which documents
// failed, suitable for the analysis error_message field.
func FailureSummary(failed []Result) string {
	if len(failed) == 0 {
		return ""
	}
	names := make([]string, 0, len(failed))
	for _, r := range failed {
		names = append(names, r.Filename)
	}
	return fmt.Sprintf("%d document(s) could not be read: %s",
		len(failed), strings.Join(names, ", "))
}

// Summarize aggregates the failures' application errors by category and code.
func Summarize(failed []Result) *errors.ErrorSummary {
	errs := make([]*errors.Error, 0, len(failed))
	for _, r := range failed {
		errs = append(errs, errors.WrapIfNeeded(r.Err, errors.CategoryExtraction,
			errors.CodeUnreadableDocument, "extraction failed: "+r.Filename))
	}
	return errors.NewErrorSummary(errs)
}

package ingest

import (
	"context"
	"strings"
	"sync/atomic"
	"testing"

	"statement-intel-service/pkg/errors"
)

// fakeExtractor records call concurrency and fails configured filenames.
type fakeExtractor struct {
	fail     map[string]bool
	inFlight int32
	peak     int32
}

func (f *fakeExtractor) ExtractPages(ctx context.Context, filename string, data []byte) ([]string, error) {
	n := atomic.AddInt32(&f.inFlight, 1)
	for {
		peak := atomic.LoadInt32(&f.peak)
		if n <= peak || atomic.CompareAndSwapInt32(&f.peak, peak, n) {
			break
		}
	}
	defer atomic.AddInt32(&f.inFlight, -1)

	if f.fail[filename] {
		return nil, errors.ExtractionError(errors.CodeUnreadableDocument, filename, nil)
	}
	return []string{"page text for " + filename}, nil
}

func TestIngestRejectsEmptyBatch(t *testing.T) {
	ing := NewIngestor(&fakeExtractor{}, 2)

	_, err := ing.Ingest(context.Background(), nil)
	if err == nil {
		t.Fatal("expected error for empty batch")
	}
	appErr, ok := errors.AsError(err)
	if !ok || appErr.Code != errors.CodeNoDocuments {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestIngestPreservesInputOrder(t *testing.T) {
	ing := NewIngestor(&fakeExtractor{}, 2)

	docs := []Document{
		{Filename: "jan.pdf"},
		{Filename: "feb.pdf"},
		{Filename: "mar.pdf"},
	}
	results, err := ing.Ingest(context.Background(), docs)
	if err != nil {
		t.Fatalf("Ingest failed: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	for i, doc := range docs {
		if results[i].Filename != doc.Filename {
			t.Errorf("result %d = %s, want %s", i, results[i].Filename, doc.Filename)
		}
	}
}

func TestIngestCapturesPerDocumentFailures(t *testing.T) {
	ing := NewIngestor(&fakeExtractor{fail: map[string]bool{"bad.pdf": true}}, 2)

	results, err := ing.Ingest(context.Background(), []Document{
		{Filename: "good.pdf"},
		{Filename: "bad.pdf"},
	})
	if err != nil {
		t.Fatalf("a failing document must not abort the batch: %v", err)
	}

	if results[0].Err != nil {
		t.Errorf("good.pdf unexpectedly failed: %v", results[0].Err)
	}
	if results[1].Err == nil {
		t.Error("bad.pdf failure not captured")
	}

	pages, failed := Split(results)
	if len(pages) != 1 {
		t.Errorf("extracted pages = %d, want 1", len(pages))
	}
	if len(failed) != 1 || failed[0].Filename != "bad.pdf" {
		t.Errorf("failed = %v", failed)
	}

	summary := FailureSummary(failed)
	if !strings.Contains(summary, "bad.pdf") || !strings.Contains(summary, "1 document(s)") {
		t.Errorf("summary = %q", summary)
	}
}

func TestIngestBoundsConcurrency(t *testing.T) {
	fake := &fakeExtractor{}
	ing := NewIngestor(fake, 2)

	docs := make([]Document, 16)
	for i := range docs {
		docs[i] = Document{Filename: "doc.pdf"}
	}
	if _, err := ing.Ingest(context.Background(), docs); err != nil {
		t.Fatalf("Ingest failed: %v", err)
	}

	if peak := atomic.LoadInt32(&fake.peak); peak > 2 {
		t.Errorf("peak concurrency = %d, want <= 2", peak)
	}
}

func TestFailureSummaryEmpty(t *testing.T) {
	if s := FailureSummary(nil); s != "" {
		t.Errorf("summary for no failures = %q, want empty", s)
	}
}

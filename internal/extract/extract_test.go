package extract

import (
	"context"
	"strings"
	"testing"

	"statement-intel-service/pkg/errors"
)

func TestIsReadableText(t *testing.T) {
	statement := "FIRST NATIONAL BANK account statement\n" +
		"01/05/2025 DEPOSIT PAYROLL INC $2,500.00 balance $10,000.00"

	tests := []struct {
		name  string
		pages []string
		want  bool
	}{
		{"real statement text", []string{statement}, true},
		{"empty pages", []string{"", ""}, false},
		{"too short", []string{"bank"}, false},
		{"binary garbage", []string{strings.Repeat("\x80\xfe\x01", 60)}, false},
		{"readable but not a statement", []string{strings.Repeat("lorem ipsum dolor sit amet ", 10)}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsReadableText(tt.pages); got != tt.want {
				t.Errorf("IsReadableText = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestTextQuality(t *testing.T) {
	if q := textQuality([]string{"Deposit $1,250.00 on 01/05/2025"}); q < 0.95 {
		t.Errorf("clean text quality = %f, want near 1", q)
	}
	if q := textQuality([]string{strings.Repeat("Ã°Þ", 50)}); q > 0.3 {
		t.Errorf("mojibake quality = %f, want low", q)
	}
	if q := textQuality(nil); q != 0 {
		t.Errorf("empty input quality = %f, want 0", q)
	}
}

func TestPDFExtractorRejectsEmptyInput(t *testing.T) {
	e := NewPDFExtractor()

	_, err := e.ExtractPages(context.Background(), "empty.pdf", nil)
	if err == nil {
		t.Fatal("expected error for empty document")
	}
	appErr, ok := errors.AsError(err)
	if !ok || appErr.Code != errors.CodeEmptyDocument {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestPDFExtractorRejectsGarbageBytes(t *testing.T) {
	e := NewPDFExtractor()

	_, err := e.ExtractPages(context.Background(), "garbage.pdf", []byte("this is not a pdf"))
	if err == nil {
		t.Fatal("expected error for non-PDF bytes")
	}
	if !errors.IsCategory(err, errors.CategoryExtraction) {
		t.Errorf("unexpected error category: %v", err)
	}
}

func TestPDFExtractorHonorsContext(t *testing.T) {
	e := NewPDFExtractor()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := e.ExtractPages(ctx, "x.pdf", []byte("%PDF-1.4")); err == nil {
		t.Error("expected error for canceled context")
	}
}

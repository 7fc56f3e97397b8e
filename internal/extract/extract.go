// Package extract turns raw bank-statement PDF bytes into per-page plain
// text. Extraction is the only I/O-free external capability the pipeline
// depends on, so it is defined as an interface with the PDF implementation
// as the default.
package extract

import (
	"context"
	"strings"
	"unicode"
)

// TextExtractor produces per-page plain text from a single document's raw
// bytes. Implementations must not retain the data slice.
type TextExtractor interface {
	ExtractPages(ctx context.Context, filename string, data []byte) ([]string, error)
}

// textQuality returns the ratio of readable ASCII characters (letters,
// digits, common punctuation, whitespace) to total characters. A strict
// ASCII check is used because identity-encoded fonts produce garbage that
// still passes unicode.IsLetter.
func textQuality(pages []string) float64 {
	total := 0
	readable := 0
	for _, page := range pages {
		for _, r := range page {
			total++
			if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') ||
				(r >= '0' && r <= '9') || unicode.IsSpace(r) ||
				strings.ContainsRune(".,-/:;()'\"$%&@#!?+=*\t", r) {
				readable++
			}
		}
	}
	if total == 0 {
		return 0
	}
	return float64(readable) / float64(total)
}

// statementWords are terms that appear in virtually all bank statements.
// Extracted text containing none of them is treated as garbage.
var statementWords = []string{
	"bank", "account", "balance", "date", "payment", "statement",
	"total", "amount", "credit", "debit", "transaction", "deposit",
	"withdrawal", "check", "transfer", "beginning", "ending", "page",
}

func containsStatementWords(pages []string) bool {
	combined := strings.ToLower(strings.Join(pages, " "))
	for _, word := range statementWords {
		if strings.Contains(combined, word) {
			return true
		}
	}
	return false
}

// IsReadableText checks that pages contain enough text, that the text is
// readable rather than binary garbage, and that it contains at least one
// word expected on a bank statement.
func IsReadableText(pages []string) bool {
	if totalTextLen(pages) <= 50 {
		return false
	}
	if textQuality(pages) <= 0.6 {
		return false
	}
	return containsStatementWords(pages)
}

func totalTextLen(pages []string) int {
	n := 0
	for _, p := range pages {
		n += len(strings.TrimSpace(p))
	}
	return n
}

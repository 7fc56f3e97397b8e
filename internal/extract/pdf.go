package extract

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"math"
	"sort"
	"strings"

	"statement-intel-service/pkg/errors"
	"statement-intel-service/pkg/logger"

	"github.com/ledongthuc/pdf"
)

// PDFExtractor extracts text from PDF documents using the text layer.
// Several extraction paths are attempted in order of layout fidelity; the
// first one producing readable statement text wins. Scanned image-only PDFs
// are rejected rather than returning garbage.
type PDFExtractor struct {
	logger logger.Logger
}

// NewPDFExtractor creates a PDF text extractor.
func NewPDFExtractor() *PDFExtractor {
	return &PDFExtractor{
		logger: logger.GetGlobalLogger().WithComponent("pdf_extractor"),
	}
}

// ExtractPages implements TextExtractor.
func (e *PDFExtractor) ExtractPages(ctx context.Context, filename string, data []byte) (pages []string, err error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, errors.ExtractionError(errors.CodeEmptyDocument, filename, nil)
	}

	// The PDF library panics on some malformed files.
	defer func() {
		if r := recover(); r != nil {
			pages = nil
			err = errors.ExtractionError(errors.CodeUnreadableDocument, filename,
				fmt.Errorf("pdf library crashed: %v", r))
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, errors.ExtractionError(errors.CodeUnreadableDocument, filename, err)
	}

	numPages := reader.NumPage()
	if numPages == 0 {
		return nil, errors.ExtractionError(errors.CodeEmptyDocument, filename,
			fmt.Errorf("pdf has no pages"))
	}

	// Method 1: row-based extraction, best layout preservation.
	pages = extractByRow(reader, numPages)
	if IsReadableText(pages) {
		return pages, nil
	}

	// Method 2: coordinate-based row reconstruction from raw text objects.
	pages = extractByContent(reader, numPages)
	if IsReadableText(pages) {
		return pages, nil
	}

	// Method 3: whole-document plain text, different decode path.
	if text := extractPlainText(reader); IsReadableText([]string{text}) {
		return []string{text}, nil
	}

	e.logger.WithField("filename", filename).Warn("no readable text in document")
	return nil, errors.ExtractionError(errors.CodeUnreadableDocument, filename, nil)
}

// extractByRow uses the library's per-row text API.
func extractByRow(r *pdf.Reader, numPages int) []string {
	var pages []string
	for i := 1; i <= numPages; i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		rows, err := page.GetTextByRow()
		if err != nil {
			continue
		}
		var lines []string
		for _, row := range rows {
			var parts []string
			for _, word := range row.Content {
				parts = append(parts, word.S)
			}
			line := strings.TrimSpace(strings.Join(parts, " "))
			if line != "" {
				lines = append(lines, line)
			}
		}
		pages = append(pages, strings.Join(lines, "\n"))
	}
	return pages
}

// extractByContent groups raw text objects by Y coordinate to reconstruct
// rows, then orders each row left to right. Large X gaps become column
// separators so amount columns survive the flattening.
func extractByContent(r *pdf.Reader, numPages int) []string {
	var pages []string
	for i := 1; i <= numPages; i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		content := page.Content()
		if len(content.Text) == 0 {
			continue
		}

		type textItem struct {
			x float64
			s string
		}
		rowMap := make(map[int][]textItem)
		for _, t := range content.Text {
			if strings.TrimSpace(t.S) == "" {
				continue
			}
			yKey := int(math.Round(t.Y))
			rowMap[yKey] = append(rowMap[yKey], textItem{x: t.X, s: t.S})
		}

		// PDF Y runs bottom-to-top.
		yKeys := make([]int, 0, len(rowMap))
		for y := range rowMap {
			yKeys = append(yKeys, y)
		}
		sort.Sort(sort.Reverse(sort.IntSlice(yKeys)))

		var lines []string
		for _, y := range yKeys {
			items := rowMap[y]
			sort.Slice(items, func(a, b int) bool {
				return items[a].x < items[b].x
			})

			var parts []string
			var prevX float64
			for j, item := range items {
				if j > 0 && item.x-prevX > 15 {
					parts = append(parts, "  ")
				}
				parts = append(parts, item.s)
				prevX = item.x
			}
			line := strings.TrimSpace(strings.Join(parts, ""))
			if line != "" {
				lines = append(lines, line)
			}
		}
		pages = append(pages, strings.Join(lines, "\n"))
	}
	return pages
}

func extractPlainText(r *pdf.Reader) string {
	reader, err := r.GetPlainText()
	if err != nil {
		return ""
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

// Package pdftext validates PDFs and extracts their text layer. OCR uses
// it to detect born-digital pages; upload handling uses it for metadata.
package pdftext

import (
	"bytes"
	"fmt"
	"os"
	"strings"
	"unicode"

	"github.com/ledongthuc/pdf"
)

const (
	// MaxPages limits the number of pages to process.
	MaxPages = 2000

	// MaxTextSize limits the extracted text size (4MB).
	MaxTextSize = 4 * 1024 * 1024
)

// Metadata describes the text layer of a PDF.
type Metadata struct {
	PageCount int
	WordCount int
	Text      string
}

// Validate checks that the byte content parses as a PDF.
func Validate(data []byte) error {
	reader := bytes.NewReader(data)
	if _, err := pdf.NewReader(reader, int64(len(data))); err != nil {
		return fmt.Errorf("invalid PDF: %w", err)
	}
	return nil
}

// ExtractFile reads a PDF from disk and extracts its text layer.
func ExtractFile(path string) (*Metadata, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read PDF: %w", err)
	}
	return Extract(data)
}

// Extract pulls the text layer out of PDF bytes, page by page. Pages whose
// extraction fails are skipped rather than failing the whole document.
func Extract(data []byte) (*Metadata, error) {
	reader := bytes.NewReader(data)
	pdfReader, err := pdf.NewReader(reader, int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("failed to open PDF: %w", err)
	}

	totalPages := pdfReader.NumPage()
	if totalPages == 0 {
		return nil, fmt.Errorf("PDF has no pages")
	}
	if totalPages > MaxPages {
		return nil, fmt.Errorf("PDF has too many pages (%d), max allowed is %d", totalPages, MaxPages)
	}

	var textBuilder strings.Builder
	wordCount := 0

	for pageNum := 1; pageNum <= totalPages; pageNum++ {
		page := pdfReader.Page(pageNum)
		if page.V.IsNull() {
			continue
		}

		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}

		cleaned := cleanText(text)
		if cleaned != "" {
			fmt.Fprintf(&textBuilder, "\n--- Page %d ---\n", pageNum)
			textBuilder.WriteString(cleaned)
			textBuilder.WriteString("\n")
			wordCount += countWords(cleaned)
		}

		if textBuilder.Len() > MaxTextSize {
			textBuilder.WriteString("\n... [content truncated - size limit reached]")
			break
		}
	}

	extracted := textBuilder.String()
	if len(extracted) > MaxTextSize {
		extracted = extracted[:MaxTextSize] + "\n... [content truncated]"
	}

	return &Metadata{
		PageCount: totalPages,
		WordCount: wordCount,
		Text:      extracted,
	}, nil
}

// HasTextLayer reports whether the document carries a usable text layer.
// A scanned document typically extracts to nothing, which is the signal to
// run OCR instead.
func HasTextLayer(meta *Metadata) bool {
	if meta == nil {
		return false
	}
	// A few words per page on average is enough to call it born-digital.
	return meta.PageCount > 0 && meta.WordCount >= meta.PageCount*3
}

func cleanText(text string) string {
	text = strings.ReplaceAll(text, "\x00", "")
	text = normalizeWhitespace(text)
	return strings.TrimSpace(text)
}

func normalizeWhitespace(text string) string {
	var result strings.Builder
	lastWasSpace := false

	for _, r := range text {
		if unicode.IsSpace(r) {
			if !lastWasSpace {
				if r == '\n' {
					result.WriteRune('\n')
					lastWasSpace = false
				} else {
					result.WriteRune(' ')
					lastWasSpace = true
				}
			}
		} else {
			result.WriteRune(r)
			lastWasSpace = false
		}
	}

	return result.String()
}

func countWords(text string) int {
	count := 0
	inWord := false

	for _, r := range text {
		if unicode.IsSpace(r) || unicode.IsPunct(r) {
			if inWord {
				count++
				inWord = false
			}
		} else {
			inWord = true
		}
	}
	if inWord {
		count++
	}

	return count
}

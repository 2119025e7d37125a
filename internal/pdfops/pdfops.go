// Package pdfops implements the core PDF operations: merge, split,
// optimize, convert-to-curves, rasterize and bookmarks. Pure-Go paths go
// through pdfcpu; the Ghostscript paths shell out.
package pdfops

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
)

// ProgressFunc reports per-unit progress (current out of total).
type ProgressFunc func(current, total int)

// Engine selects the implementation used for operations with two paths.
type Engine string

const (
	EnginePDFCPU      Engine = "pdfcpu"
	EngineGhostscript Engine = "ghostscript"
)

// Result is the uniform outcome of a PDF operation.
type Result struct {
	Success      bool   `json:"success"`
	Message      string `json:"message"`
	OutputPath   string `json:"output_path,omitempty"`
	OriginalSize int64  `json:"original_size,omitempty"`
	FinalSize    int64  `json:"final_size,omitempty"`
	PageCount    int    `json:"page_count,omitempty"`
	FileCount    int    `json:"file_count,omitempty"`
}

// PageCount returns the number of pages in a PDF.
func PageCount(path string) (int, error) {
	n, err := api.PageCountFile(path)
	if err != nil {
		return 0, fmt.Errorf("page count: %w", err)
	}
	return n, nil
}

// fileSize returns the size of a file, 0 when stat fails.
func fileSize(path string) int64 {
	info, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return info.Size()
}

// baseName returns the file name without directory or extension.
func baseName(path string) string {
	name := filepath.Base(path)
	return strings.TrimSuffix(name, filepath.Ext(name))
}

// pageTag formats a 1-based page number zero-padded to the width of total.
func pageTag(page, total int) string {
	width := len(fmt.Sprintf("%d", total))
	return fmt.Sprintf("%0*d", width, page)
}

// SplitPageName builds the output name for one page of a split document.
func SplitPageName(input string, page, total int) string {
	return fmt.Sprintf("%s[split][page%s].pdf", baseName(input), pageTag(page, total))
}

// ImagePageName builds the output name for one rasterized page. Single-page
// documents omit the page tag.
func ImagePageName(input string, page, total, dpi int, format string) string {
	if total > 1 {
		return fmt.Sprintf("%s[DPI%d][page%s].%s", baseName(input), dpi, pageTag(page, total), format)
	}
	return fmt.Sprintf("%s[DPI%d].%s", baseName(input), dpi, format)
}

// BookmarkedName builds the output name for a bookmarked copy.
func BookmarkedName(input string) string {
	return baseName(input) + "[bookmarked].pdf"
}

// OCRName builds the output name for an OCR result with the given extension.
func OCRName(input, ext string) string {
	return baseName(input) + "[ocr]." + ext
}

// OCRPageName builds the per-page output name for an OCR result.
func OCRPageName(input string, page, total int) string {
	return fmt.Sprintf("%s[ocr][page%s].md", baseName(input), pageTag(page, total))
}

// OptimizedName builds the output name for an optimized copy.
func OptimizedName(input, preset string) string {
	return fmt.Sprintf("%s[optimized][%s].pdf", baseName(input), preset)
}

// CurvesName builds the output name for a text-to-curves copy.
func CurvesName(input string) string {
	return baseName(input) + "[curves].pdf"
}

// MergedName builds the output name for a merged document, derived
// from the first input when no name is given.
func MergedName(inputs []string, name string) string {
	if name != "" {
		if !strings.HasSuffix(strings.ToLower(name), ".pdf") {
			name += ".pdf"
		}
		return name
	}
	if len(inputs) > 0 {
		return baseName(inputs[0]) + "[merged].pdf"
	}
	return "merged.pdf"
}

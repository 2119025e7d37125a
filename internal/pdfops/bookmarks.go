package pdfops

import (
	"context"
	"fmt"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
)

// Bookmark is one outline entry: a 1-based page number and a title.
type Bookmark struct {
	Page  int    `json:"page"`
	Title string `json:"title"`
}

// ValidateBookmarks drops entries with empty titles or out-of-range pages.
// The returned slice preserves input order.
func ValidateBookmarks(bookmarks []Bookmark, pageCount int) []Bookmark {
	valid := make([]Bookmark, 0, len(bookmarks))
	for _, bm := range bookmarks {
		title := strings.TrimSpace(bm.Title)
		if title == "" {
			continue
		}
		if bm.Page <= 0 || bm.Page > pageCount {
			continue
		}
		valid = append(valid, Bookmark{Page: bm.Page, Title: title})
	}
	return valid
}

// AddBookmarks writes an outline into the PDF, replacing any existing one.
// Invalid entries are skipped; an error is returned when none survive
// validation.
func AddBookmarks(ctx context.Context, input, output string, bookmarks []Bookmark) (*Result, error) {
	if len(bookmarks) == 0 {
		return nil, fmt.Errorf("no bookmarks given")
	}

	pageCount, err := PageCount(input)
	if err != nil {
		return nil, err
	}

	valid := ValidateBookmarks(bookmarks, pageCount)
	if len(valid) == 0 {
		return nil, fmt.Errorf("no valid bookmarks: titles must be non-empty and pages within 1-%d", pageCount)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	bms := make([]pdfcpu.Bookmark, len(valid))
	for i, bm := range valid {
		bms[i] = pdfcpu.Bookmark{
			Title:    bm.Title,
			PageFrom: bm.Page,
		}
	}

	if err := api.AddBookmarksFile(input, output, bms, true, nil); err != nil {
		return nil, fmt.Errorf("add bookmarks: %w", err)
	}

	return &Result{
		Success:    true,
		Message:    fmt.Sprintf("added %d bookmarks", len(valid)),
		OutputPath: output,
		FileCount:  len(valid),
	}, nil
}

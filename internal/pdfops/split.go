package pdfops

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/pdfcpu/pdfcpu/pkg/api"
)

// Split writes every page of the input as its own PDF into outDir,
// creating the directory if needed. Output names follow
// <base>[split][pageNNN].pdf with NNN padded to the page-count width.
func Split(ctx context.Context, input, outDir string, progress ProgressFunc) (*Result, error) {
	if err := os.MkdirAll(outDir, 0700); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	total, err := PageCount(input)
	if err != nil {
		return nil, err
	}

	for page := 1; page <= total; page++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		output := filepath.Join(outDir, SplitPageName(input, page, total))
		selection := []string{strconv.Itoa(page)}
		if err := api.TrimFile(input, output, selection, nil); err != nil {
			return nil, fmt.Errorf("split page %d: %w", page, err)
		}

		if progress != nil {
			progress(page, total)
		}
	}

	return &Result{
		Success:   true,
		Message:   fmt.Sprintf("split into %d files", total),
		PageCount: total,
	}, nil
}

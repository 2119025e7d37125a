// Package ocr sends PDF pages to a configured OCR provider and collects
// the recognized markdown. Two provider families are supported: any
// OpenAI-compatible chat/completions API (page by page, using rasterized
// page images) and the Mistral document OCR API (whole document).
package ocr

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/ourpurple/PDFOptimizer/internal/models"
)

const (
	maxAttempts = 3
	retryDelay  = 2 * time.Second

	// pageSeparator joins page results in merged output.
	pageSeparator = "\n\n---\n\n"
)

// ProgressFunc reports page progress plus a rolling text preview.
type ProgressFunc func(current, total int, preview string)

// Request describes one OCR run.
type Request struct {
	// InputPath is the source PDF (used by whole-document providers).
	InputPath string

	// ImagePaths are the rasterized pages, in page order (used by
	// page-by-page providers).
	ImagePaths []string

	Progress ProgressFunc
}

// Result is the recognized content.
type Result struct {
	Pages       []string // markdown per page, in order
	PagesFailed int
	Model       string
	Provider    string
}

// Merged joins all page results with the page separator.
func (r *Result) Merged() string {
	return strings.Join(r.Pages, pageSeparator)
}

// Provider performs recognition against one API family.
type Provider interface {
	Name() string
	Recognize(ctx context.Context, req *Request) (*Result, error)
}

// Options tune provider construction.
type Options struct {
	Timeout time.Duration
	// RequestsPerSecond paces calls against the provider API. Zero
	// disables pacing.
	RequestsPerSecond float64
}

// NewProvider builds the provider matching the config's provider type.
func NewProvider(cfg *models.APIConfig, opts Options) (Provider, error) {
	timeout := opts.Timeout
	if timeout == 0 {
		timeout = 120 * time.Second
	}
	client := &http.Client{Timeout: timeout}

	var limiter *rate.Limiter
	if opts.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), 1)
	}

	switch cfg.Provider {
	case models.ProviderOpenAICompatible:
		return newOpenAIProvider(cfg, client, limiter), nil
	case models.ProviderMistral:
		return newMistralProvider(cfg, client, limiter), nil
	default:
		return nil, fmt.Errorf("unsupported OCR provider: %s", cfg.Provider)
	}
}

// withRetry runs fn up to maxAttempts times with a fixed delay between
// attempts. A nil error with empty (or whitespace-only) content counts as
// a failed attempt: some providers return 200 with an empty choice when
// overloaded.
func withRetry(ctx context.Context, fn func() (string, error)) (string, error) {
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		content, err := fn()
		if err == nil && strings.TrimSpace(content) != "" {
			return content, nil
		}
		if err == nil {
			err = fmt.Errorf("provider returned empty content")
		}
		lastErr = err

		if attempt < maxAttempts {
			select {
			case <-time.After(retryDelay):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}
	}
	return "", fmt.Errorf("failed after %d attempts: %w", maxAttempts, lastErr)
}

// wait applies the request pacing limiter if configured.
func wait(ctx context.Context, limiter *rate.Limiter) error {
	if limiter == nil {
		return nil
	}
	return limiter.Wait(ctx)
}

// failedPageMarker is inserted in place of a page whose retries were
// exhausted, so the surrounding pages still line up.
func failedPageMarker(page int, err error) string {
	return fmt.Sprintf("\n\n--- page %d failed: %v ---\n\n", page, err)
}

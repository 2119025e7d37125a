package services

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/ourpurple/PDFOptimizer/internal/ocr"
)

func TestOCRPageMetricsCountEachPageOnce(t *testing.T) {
	m := InitMetrics()
	s := &OperationService{metrics: m}

	// Failed pages keep their slot in Pages as marker blocks; they must
	// not also be counted as processed.
	result := &ocr.Result{
		Pages:       []string{"page one", "> recognition failed", "page three"},
		PagesFailed: 1,
	}
	s.recordOCRMetrics(result)

	if got := testutil.ToFloat64(m.OCRPagesProcessed); got != 2 {
		t.Errorf("processed pages = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.OCRPagesFailed); got != 1 {
		t.Errorf("failed pages = %v, want 1", got)
	}
}

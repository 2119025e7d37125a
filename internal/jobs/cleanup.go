package jobs

import (
	"context"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/ourpurple/PDFOptimizer/internal/convert"
	"github.com/ourpurple/PDFOptimizer/internal/database"
)

// OutputCleanupJob expires registered output documents.
type OutputCleanupJob struct {
	registry *convert.Registry
	interval time.Duration
}

// NewOutputCleanupJob creates the output expiry job.
func NewOutputCleanupJob(registry *convert.Registry, interval time.Duration) *OutputCleanupJob {
	if interval == 0 {
		interval = 2 * time.Minute
	}
	return &OutputCleanupJob{registry: registry, interval: interval}
}

func (j *OutputCleanupJob) Run(ctx context.Context) error {
	if n := j.registry.Cleanup(); n > 0 {
		log.Printf("🗑️  [CLEANUP] Removed %d expired output files", n)
	}
	return nil
}

func (j *OutputCleanupJob) GetNextRunTime() time.Time {
	return time.Now().Add(j.interval)
}

// TempCleanupJob removes leftover temp directories, e.g. rasterized
// OCR pages from jobs that crashed before their own cleanup ran.
type TempCleanupJob struct {
	tempDir  string
	maxAge   time.Duration
	interval time.Duration
}

// NewTempCleanupJob creates the temp sweep job.
func NewTempCleanupJob(tempDir string, maxAge, interval time.Duration) *TempCleanupJob {
	if maxAge == 0 {
		maxAge = time.Hour
	}
	if interval == 0 {
		interval = 15 * time.Minute
	}
	return &TempCleanupJob{tempDir: tempDir, maxAge: maxAge, interval: interval}
}

func (j *TempCleanupJob) Run(ctx context.Context) error {
	entries, err := os.ReadDir(j.tempDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	cutoff := time.Now().Add(-j.maxAge)
	removed := 0
	for _, entry := range entries {
		info, err := entry.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		path := filepath.Join(j.tempDir, entry.Name())
		if err := os.RemoveAll(path); err != nil {
			log.Printf("⚠️  [CLEANUP] Failed to remove stale temp path %s: %v", path, err)
			continue
		}
		removed++
	}
	if removed > 0 {
		log.Printf("🗑️  [CLEANUP] Removed %d stale temp entries", removed)
	}
	return nil
}

func (j *TempCleanupJob) GetNextRunTime() time.Time {
	return time.Now().Add(j.interval)
}

// HistoryPruneJob caps the job history table.
type HistoryPruneJob struct {
	db       *database.DB
	keep     int
	interval time.Duration
}

// NewHistoryPruneJob creates the history pruning job.
func NewHistoryPruneJob(db *database.DB, keep int, interval time.Duration) *HistoryPruneJob {
	if keep == 0 {
		keep = 500
	}
	if interval == 0 {
		interval = 24 * time.Hour
	}
	return &HistoryPruneJob{db: db, keep: keep, interval: interval}
}

func (j *HistoryPruneJob) Run(ctx context.Context) error {
	n, err := j.db.PruneJobs(j.keep)
	if err != nil {
		return err
	}
	if n > 0 {
		log.Printf("🗑️  [CLEANUP] Pruned %d old job history entries", n)
	}
	return nil
}

func (j *HistoryPruneJob) GetNextRunTime() time.Time {
	return time.Now().Add(j.interval)
}

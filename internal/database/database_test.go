package database

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/ourpurple/PDFOptimizer/internal/models"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })

	if err := db.Initialize(); err != nil {
		t.Fatal(err)
	}
	return db
}

func finishedJob(id string, status models.JobStatus, created time.Time) *models.Job {
	started := created.Add(time.Second)
	finished := created.Add(2 * time.Second)
	return &models.Job{
		ID:         id,
		Type:       models.JobOptimize,
		Status:     status,
		TotalUnits: 3,
		Files: []models.FileResult{
			{Index: 0, Input: "a.pdf", Success: true, SizeBefore: 100, SizeAfter: 50},
		},
		CreatedAt:  created,
		StartedAt:  &started,
		FinishedAt: &finished,
	}
}

func TestSaveAndGetJob(t *testing.T) {
	db := newTestDB(t)

	job := finishedJob("job-1", models.JobCompleted, time.Now().UTC().Truncate(time.Second))
	if err := db.SaveJob(job); err != nil {
		t.Fatal(err)
	}

	got, err := db.GetJob("job-1")
	if err != nil {
		t.Fatal(err)
	}
	if got == nil {
		t.Fatal("job not found")
	}
	if got.Type != models.JobOptimize || got.Status != models.JobCompleted {
		t.Errorf("got %+v", got)
	}
	if got.Progress != 100 {
		t.Errorf("completed job should report 100%%, got %d", got.Progress)
	}
	if len(got.Files) != 1 || got.Files[0].SizeAfter != 50 {
		t.Errorf("files lost: %+v", got.Files)
	}
}

func TestGetJobMissing(t *testing.T) {
	db := newTestDB(t)

	got, err := db.GetJob("missing")
	if err != nil {
		t.Fatal(err)
	}
	if got != nil {
		t.Errorf("expected nil for missing job, got %+v", got)
	}
}

func TestListJobsNewestFirst(t *testing.T) {
	db := newTestDB(t)

	base := time.Now().UTC().Truncate(time.Second)
	db.SaveJob(finishedJob("old", models.JobCompleted, base.Add(-2*time.Hour)))
	db.SaveJob(finishedJob("mid", models.JobFailed, base.Add(-time.Hour)))
	db.SaveJob(finishedJob("new", models.JobCompleted, base))

	jobs, err := db.ListJobs(2)
	if err != nil {
		t.Fatal(err)
	}
	if len(jobs) != 2 {
		t.Fatalf("expected 2 jobs, got %d", len(jobs))
	}
	if jobs[0].ID != "new" || jobs[1].ID != "mid" {
		t.Errorf("order wrong: %s, %s", jobs[0].ID, jobs[1].ID)
	}
}

func TestPruneJobs(t *testing.T) {
	db := newTestDB(t)

	base := time.Now().UTC().Truncate(time.Second)
	for i := 0; i < 5; i++ {
		db.SaveJob(finishedJob(
			string(rune('a'+i)),
			models.JobCompleted,
			base.Add(time.Duration(i)*time.Minute),
		))
	}

	pruned, err := db.PruneJobs(2)
	if err != nil {
		t.Fatal(err)
	}
	if pruned != 3 {
		t.Errorf("expected 3 pruned, got %d", pruned)
	}

	jobs, _ := db.ListJobs(10)
	if len(jobs) != 2 {
		t.Errorf("expected 2 remaining, got %d", len(jobs))
	}
}

package models

import (
	"time"
)

// JobType identifies the operation a job performs.
type JobType string

const (
	JobOptimize  JobType = "optimize"
	JobMerge     JobType = "merge"
	JobSplit     JobType = "split"
	JobCurves    JobType = "curves"
	JobToImages  JobType = "to_images"
	JobBookmarks JobType = "bookmarks"
	JobOCR       JobType = "ocr"
	JobMarkdown  JobType = "markdown"
)

// JobStatus is the lifecycle state of a job.
type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
	JobCancelled JobStatus = "cancelled"
)

// FileResult is the per-file outcome within a batch job.
type FileResult struct {
	Index      int    `json:"index"`
	Input      string `json:"input"`
	Output     string `json:"output,omitempty"`
	Success    bool   `json:"success"`
	Message    string `json:"message"`
	SizeBefore int64  `json:"size_before,omitempty"`
	SizeAfter  int64  `json:"size_after,omitempty"`
}

// Job is a background operation with live progress.
type Job struct {
	ID          string       `json:"id"`
	Type        JobType      `json:"type"`
	Status      JobStatus    `json:"status"`
	Progress    int          `json:"progress"` // 0-100
	CurrentUnit int          `json:"current_unit,omitempty"`
	TotalUnits  int          `json:"total_units,omitempty"`
	Message     string       `json:"message,omitempty"`
	Files       []FileResult `json:"files,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
	StartedAt   *time.Time   `json:"started_at,omitempty"`
	FinishedAt  *time.Time   `json:"finished_at,omitempty"`
}

// Terminal reports whether the job has reached a final state.
func (j *Job) Terminal() bool {
	switch j.Status {
	case JobCompleted, JobFailed, JobCancelled:
		return true
	}
	return false
}

// ProgressEvent is pushed to WebSocket subscribers as a job advances.
type ProgressEvent struct {
	JobID       string    `json:"job_id"`
	Type        JobType   `json:"type"`
	Status      JobStatus `json:"status"`
	Progress    int       `json:"progress"`
	CurrentUnit int       `json:"current_unit,omitempty"`
	TotalUnits  int       `json:"total_units,omitempty"`
	Message     string    `json:"message,omitempty"`
	Preview     string    `json:"preview,omitempty"` // rolling OCR text preview
}

package database

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/ourpurple/PDFOptimizer/internal/models"
)

// SaveJob records a finished job in the history table.
func (db *DB) SaveJob(job *models.Job) error {
	filesJSON, err := json.Marshal(job.Files)
	if err != nil {
		return fmt.Errorf("failed to marshal job files: %w", err)
	}

	_, err = db.Exec(`
		INSERT INTO job_history (id, type, status, message, total_units, files_json, created_at, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		job.ID, string(job.Type), string(job.Status), job.Message, job.TotalUnits,
		string(filesJSON), job.CreatedAt, job.StartedAt, job.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert job: %w", err)
	}
	return nil
}

// GetJob loads a job from history by ID.
func (db *DB) GetJob(id string) (*models.Job, error) {
	row := db.QueryRow(`
		SELECT id, type, status, message, total_units, files_json, created_at, started_at, finished_at
		FROM job_history WHERE id = ?`, id)

	job, err := scanJob(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return job, err
}

// ListJobs returns the most recent finished jobs, newest first.
func (db *DB) ListJobs(limit int) ([]*models.Job, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.Query(`
		SELECT id, type, status, message, total_units, files_json, created_at, started_at, finished_at
		FROM job_history ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*models.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// PruneJobs deletes history beyond the newest keep entries.
func (db *DB) PruneJobs(keep int) (int64, error) {
	res, err := db.Exec(`
		DELETE FROM job_history WHERE id NOT IN (
			SELECT id FROM (
				SELECT id FROM job_history ORDER BY created_at DESC LIMIT ?
			) recent
		)`, keep)
	if err != nil {
		return 0, fmt.Errorf("failed to prune jobs: %w", err)
	}
	return res.RowsAffected()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*models.Job, error) {
	var job models.Job
	var jobType, status string
	var filesJSON sql.NullString
	var message sql.NullString

	err := row.Scan(&job.ID, &jobType, &status, &message, &job.TotalUnits,
		&filesJSON, &job.CreatedAt, &job.StartedAt, &job.FinishedAt)
	if err != nil {
		return nil, err
	}

	job.Type = models.JobType(jobType)
	job.Status = models.JobStatus(status)
	job.Message = message.String
	if job.Status == models.JobCompleted {
		job.Progress = 100
	}
	if filesJSON.Valid && filesJSON.String != "" {
		if err := json.Unmarshal([]byte(filesJSON.String), &job.Files); err != nil {
			return nil, fmt.Errorf("failed to unmarshal job files: %w", err)
		}
	}
	return &job, nil
}

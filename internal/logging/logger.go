package logging

import (
	"log/slog"
	"os"
	"strings"
)

// Init configures the global slog logger.
// In production (ENVIRONMENT=production) it uses JSON output for log aggregation.
// Otherwise it uses the human-readable text handler.
func Init() {
	env := strings.ToLower(os.Getenv("ENVIRONMENT"))

	var handler slog.Handler
	if env == "production" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		})
	}

	slog.SetDefault(slog.New(handler))
}

// WithJob returns a logger with job context fields attached.
// Use this for all logging within a background job run.
func WithJob(jobID, jobType string) *slog.Logger {
	return slog.With(
		"job_id", jobID,
		"job_type", jobType,
	)
}

// WithFile returns a logger scoped to a specific file within a job.
func WithFile(logger *slog.Logger, index int, path string) *slog.Logger {
	return logger.With(
		"file_index", index,
		"file", path,
	)
}

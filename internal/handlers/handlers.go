package handlers

import (
	"github.com/ourpurple/PDFOptimizer/internal/config"
	"github.com/ourpurple/PDFOptimizer/internal/convert"
	"github.com/ourpurple/PDFOptimizer/internal/services"
)

// Handler bundles the services behind the HTTP API.
type Handler struct {
	cfg        *config.Config
	uploads    *services.FileCacheService
	registry   *convert.Registry
	configs    *services.ConfigService
	operations *services.OperationService
	jobs       *services.JobManager
	hub        *services.ProgressHub
	metrics    *services.Metrics
}

// New creates the API handler.
func New(cfg *config.Config, uploads *services.FileCacheService, registry *convert.Registry, configs *services.ConfigService, operations *services.OperationService, jobs *services.JobManager, hub *services.ProgressHub, metrics *services.Metrics) *Handler {
	return &Handler{
		cfg:        cfg,
		uploads:    uploads,
		registry:   registry,
		configs:    configs,
		operations: operations,
		jobs:       jobs,
		hub:        hub,
		metrics:    metrics,
	}
}

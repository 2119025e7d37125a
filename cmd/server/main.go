package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/joho/godotenv"

	"github.com/ourpurple/PDFOptimizer/internal/config"
	"github.com/ourpurple/PDFOptimizer/internal/convert"
	"github.com/ourpurple/PDFOptimizer/internal/crypto"
	"github.com/ourpurple/PDFOptimizer/internal/database"
	"github.com/ourpurple/PDFOptimizer/internal/handlers"
	"github.com/ourpurple/PDFOptimizer/internal/jobs"
	"github.com/ourpurple/PDFOptimizer/internal/logging"
	"github.com/ourpurple/PDFOptimizer/internal/middleware"
	"github.com/ourpurple/PDFOptimizer/internal/pdfops"
	"github.com/ourpurple/PDFOptimizer/internal/services"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	// Initialize structured logging (JSON in production, text in dev)
	logging.Init()

	log.Println("🚀 Starting PDFOptimizer Server...")

	// Load .env file (ignore error if file doesn't exist)
	if err := godotenv.Load(); err == nil {
		log.Println("✅ .env file loaded successfully")
	}

	cfg := config.Load()
	if err := cfg.EnsureDirs(); err != nil {
		log.Fatalf("❌ Failed to create data directories: %v", err)
	}
	log.Printf("📋 Configuration loaded (Port: %s, Data: %s)", cfg.Port, cfg.DataDir)

	// Database: SQLite under the data dir by default, MySQL via DATABASE_URL.
	dsn := cfg.DatabaseURL
	if dsn == "" {
		dsn = filepath.Join(cfg.DataDir, "pdfoptimizer.db")
	}
	db, err := database.New(dsn)
	if err != nil {
		log.Fatalf("❌ Failed to connect to database: %v", err)
	}
	defer db.Close()

	if err := db.Initialize(); err != nil {
		log.Fatalf("❌ Failed to initialize database: %v", err)
	}

	// Optional at-rest encryption of stored API keys.
	var enc *crypto.EncryptionService
	if cfg.MasterKey != "" {
		enc, err = crypto.NewEncryptionService(cfg.MasterKey)
		if err != nil {
			log.Fatalf("❌ Invalid PUREPDF_MASTER_KEY: %v", err)
		}
		log.Println("🔐 API key encryption enabled")
	} else {
		log.Println("⚠️  PUREPDF_MASTER_KEY not set - API keys stored in plaintext")
	}

	configService, err := services.NewConfigService(cfg.DataDir, enc)
	if err != nil {
		log.Fatalf("❌ Failed to load OCR configs: %v", err)
	}
	log.Printf("✅ OCR configs loaded (%d configs)", len(configService.List()))

	metrics := services.InitMetrics()
	hub := services.NewProgressHub(metrics)
	uploads := services.NewFileCacheService(30 * time.Minute)
	registry := convert.NewRegistry(time.Hour, 5*time.Minute)

	rootCtx, rootCancel := context.WithCancel(context.Background())
	defer rootCancel()

	jobManager := services.NewJobManager(rootCtx, db, hub, metrics)
	operations := services.NewOperationService(cfg, uploads, registry, configService, jobManager, metrics)
	h := handlers.New(cfg, uploads, registry, configService, operations, jobManager, hub, metrics)

	// External tool discovery results, logged once at startup.
	if gs := pdfops.GhostscriptPath(); gs != "" {
		log.Printf("✅ Ghostscript found: %s", gs)
	} else {
		log.Println("⚠️  Ghostscript not found - compression presets, curves and rasterization unavailable")
	}
	if pandoc := convert.PandocPath(); pandoc != "" {
		log.Printf("✅ Pandoc found: %s", pandoc)
	} else {
		log.Println("⚠️  Pandoc not found - docx export unavailable")
	}

	// Config hot reload for externally edited config files.
	watchDone := make(chan struct{})
	go func() {
		if err := configService.Watch(watchDone); err != nil {
			log.Printf("⚠️  Config watcher stopped: %v", err)
		}
	}()

	// Background maintenance jobs.
	scheduler := jobs.NewScheduler()
	scheduler.Register("output-cleanup", jobs.NewOutputCleanupJob(registry, 2*time.Minute))
	scheduler.Register("temp-cleanup", jobs.NewTempCleanupJob(cfg.TempDir, time.Hour, 15*time.Minute))
	scheduler.Register("history-prune", jobs.NewHistoryPruneJob(db, 500, 24*time.Hour))
	scheduler.Start()

	// Fiber app
	app := fiber.New(fiber.Config{
		AppName:      "PDFOptimizer v1.0",
		ReadTimeout:  300 * time.Second, // uploads of large PDFs over slow links
		WriteTimeout: 300 * time.Second,
		IdleTimeout:  300 * time.Second,
		BodyLimit:    cfg.MaxUploadSizeMB * 1024 * 1024,
	})

	app.Use(recover.New())
	app.Use(logger.New())

	prometheus := fiberprometheus.New("pdfoptimizer")
	prometheus.RegisterAt(app, "/metrics")
	app.Use(prometheus.Middleware)
	log.Println("📊 Prometheus metrics endpoint enabled at /metrics")

	allowedOrigins := os.Getenv("ALLOWED_ORIGINS")
	if allowedOrigins == "" {
		allowedOrigins = "http://localhost:5173,http://localhost:3000"
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins:     allowedOrigins,
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders:     "Origin,Content-Type,Accept,Authorization",
		AllowCredentials: allowedOrigins != "*",
	}))

	// Public endpoints
	app.Get("/health", h.Health)

	api := app.Group("/api", middleware.TokenAuth(cfg.APIToken))

	// Upload rate limiter keeps one client from flooding the disk.
	api.Post("/upload", limiter.New(limiter.Config{
		Max:        30,
		Expiration: time.Minute,
	}), h.Upload)
	api.Delete("/uploads/:id", h.DeleteUpload)
	api.Get("/download/:id", h.Download)

	// OCR API configs
	api.Get("/configs", h.ListConfigs)
	api.Post("/configs", h.CreateConfig)
	api.Post("/configs/validate", h.ValidateConfig)
	api.Get("/configs/export", h.ExportConfigs)
	api.Post("/configs/import", h.ImportConfigs)
	api.Get("/configs/:id", h.GetConfig)
	api.Put("/configs/:id", h.UpdateConfig)
	api.Delete("/configs/:id", h.DeleteConfig)
	api.Post("/configs/:id/activate", h.ActivateConfig)
	api.Post("/configs/:id/default", h.SetDefaultConfig)
	api.Post("/configs/:id/test", h.TestConfig)

	// Operations
	api.Post("/operations/optimize", h.Optimize)
	api.Post("/operations/merge", h.Merge)
	api.Post("/operations/split", h.Split)
	api.Post("/operations/curves", h.Curves)
	api.Post("/operations/images", h.ToImages)
	api.Post("/operations/bookmarks", h.Bookmarks)
	api.Post("/operations/ocr", h.OCR)
	api.Post("/operations/markdown", h.MarkdownConvert)
	api.Post("/operations/images-to-pdf", h.ImagesToPDF)

	// Jobs
	api.Get("/jobs", h.ListJobs)
	api.Get("/jobs/:id", h.GetJob)
	api.Get("/jobs/:id/outputs", h.ListOutputs)
	api.Post("/jobs/:id/cancel", h.CancelJob)

	// WebSocket progress stream
	app.Use("/ws/progress", middleware.TokenAuth(cfg.APIToken), func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/progress", websocket.New(h.Progress))

	log.Printf("📡 Health check: http://localhost:%s/health", cfg.Port)
	log.Printf("⚡ Progress stream: ws://localhost:%s/ws/progress", cfg.Port)

	// Handle graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Println("\n🛑 Shutting down server...")

		// Stop background jobs and the config watcher.
		scheduler.Stop()
		close(watchDone)

		// Cancel running jobs and wait briefly for them to wind down.
		rootCancel()
		if !jobManager.Wait(30 * time.Second) {
			log.Println("⚠️  Some jobs did not finish before shutdown timeout")
		}

		if err := app.Shutdown(); err != nil {
			log.Printf("⚠️ Error shutting down server: %v", err)
		}
	}()

	if err := app.Listen(":" + cfg.Port); err != nil {
		log.Fatalf("❌ Failed to start server: %v", err)
	}
}

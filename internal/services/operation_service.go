package services

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/ourpurple/PDFOptimizer/internal/config"
	"github.com/ourpurple/PDFOptimizer/internal/convert"
	"github.com/ourpurple/PDFOptimizer/internal/logging"
	"github.com/ourpurple/PDFOptimizer/internal/models"
	"github.com/ourpurple/PDFOptimizer/internal/ocr"
	"github.com/ourpurple/PDFOptimizer/internal/pdfops"
)

// OperationService builds background jobs for the PDF operations.
type OperationService struct {
	cfg      *config.Config
	uploads  *FileCacheService
	registry *convert.Registry
	configs  *ConfigService
	jobs     *JobManager
	metrics  *Metrics
}

// NewOperationService wires the operation layer.
func NewOperationService(cfg *config.Config, uploads *FileCacheService, registry *convert.Registry, configs *ConfigService, jobs *JobManager, metrics *Metrics) *OperationService {
	return &OperationService{
		cfg:      cfg,
		uploads:  uploads,
		registry: registry,
		configs:  configs,
		jobs:     jobs,
		metrics:  metrics,
	}
}

func (s *OperationService) resolve(fileIDs []string) ([]*UploadedFile, error) {
	if len(fileIDs) == 0 {
		return nil, fmt.Errorf("no files selected")
	}
	files := make([]*UploadedFile, 0, len(fileIDs))
	for _, id := range fileIDs {
		file, ok := s.uploads.Get(id)
		if !ok {
			return nil, fmt.Errorf("uploaded file not found: %s", id)
		}
		s.uploads.Touch(id)
		files = append(files, file)
	}
	return files, nil
}

// register records an output file for download and returns its URL.
func (s *OperationService) register(path, jobID string) string {
	doc, err := s.registry.Register(path, jobID)
	if err != nil {
		return ""
	}
	return doc.DownloadURL
}

func (s *OperationService) outputPath(name string) string {
	return filepath.Join(s.cfg.GeneratedDir, name)
}

// percent converts unit progress to 0-100.
func percent(current, total int) int {
	if total <= 0 {
		return 0
	}
	p := current * 100 / total
	if p > 100 {
		p = 100
	}
	return p
}

// Optimize compresses each selected PDF with the given quality preset.
// Files are processed independently; one failure does not stop the rest.
func (s *OperationService) Optimize(fileIDs []string, preset string, engine pdfops.Engine) (*models.Job, error) {
	files, err := s.resolve(fileIDs)
	if err != nil {
		return nil, err
	}
	if engine == pdfops.EngineGhostscript && !pdfops.GhostscriptInstalled() {
		return nil, pdfops.ErrGhostscriptNotFound
	}

	job := s.jobs.Start(models.JobOptimize, len(files), func(ctx context.Context, jobID string, report func(models.ProgressEvent)) ([]models.FileResult, error) {
		return s.perFile(ctx, models.JobOptimize, jobID, files, report, func(ctx context.Context, file *UploadedFile) (*pdfops.Result, []string, error) {
			out := s.outputPath(pdfops.OptimizedName(file.Filename, preset))
			res, err := pdfops.Optimize(ctx, file.FilePath, out, preset, engine, nil)
			if err != nil {
				return nil, nil, err
			}
			return res, []string{out}, nil
		})
	})
	return job, nil
}

// Curves converts the text of each selected PDF to outlines so it
// renders identically without embedded fonts. Requires Ghostscript.
func (s *OperationService) Curves(fileIDs []string) (*models.Job, error) {
	files, err := s.resolve(fileIDs)
	if err != nil {
		return nil, err
	}
	if !pdfops.GhostscriptInstalled() {
		return nil, pdfops.ErrGhostscriptNotFound
	}

	job := s.jobs.Start(models.JobCurves, len(files), func(ctx context.Context, jobID string, report func(models.ProgressEvent)) ([]models.FileResult, error) {
		return s.perFile(ctx, models.JobCurves, jobID, files, report, func(ctx context.Context, file *UploadedFile) (*pdfops.Result, []string, error) {
			out := s.outputPath(pdfops.CurvesName(file.Filename))
			res, err := pdfops.ConvertToCurves(ctx, file.FilePath, out)
			if err != nil {
				return nil, nil, err
			}
			return res, []string{out}, nil
		})
	})
	return job, nil
}

// perFile runs op over each file, recording per-file outcomes and
// continuing past failures. It errors only when every file failed.
func (s *OperationService) perFile(ctx context.Context, jobType models.JobType, jobID string, files []*UploadedFile, report func(models.ProgressEvent), op func(context.Context, *UploadedFile) (*pdfops.Result, []string, error)) ([]models.FileResult, error) {
	logger := logging.WithJob(jobID, string(jobType))
	results := make([]models.FileResult, 0, len(files))
	failed := 0

	for i, file := range files {
		if err := ctx.Err(); err != nil {
			return results, err
		}

		report(models.ProgressEvent{
			CurrentUnit: i + 1,
			TotalUnits:  len(files),
			Progress:    percent(i, len(files)),
			Message:     file.Filename,
		})

		fr := models.FileResult{Index: i, Input: file.Filename}
		res, outputs, err := op(ctx, file)
		if err != nil {
			if ctx.Err() != nil {
				return append(results, fr), ctx.Err()
			}
			failed++
			fr.Message = err.Error()
			logging.WithFile(logger, i, file.Filename).Warn("file failed, continuing with the rest", "error", err)
		} else {
			fr.Success = true
			fr.Message = res.Message
			fr.SizeBefore = res.OriginalSize
			fr.SizeAfter = res.FinalSize
			for _, out := range outputs {
				fr.Output = s.register(out, jobID)
			}
		}
		results = append(results, fr)

		report(models.ProgressEvent{
			CurrentUnit: i + 1,
			TotalUnits:  len(files),
			Progress:    percent(i+1, len(files)),
		})
	}

	if failed == len(files) {
		return results, fmt.Errorf("all %d files failed", len(files))
	}
	return results, nil
}

// Merge concatenates the selected PDFs, in order, into one document.
func (s *OperationService) Merge(fileIDs []string, outputName string, engine pdfops.Engine) (*models.Job, error) {
	files, err := s.resolve(fileIDs)
	if err != nil {
		return nil, err
	}
	if len(files) < 2 {
		return nil, fmt.Errorf("merge needs at least two files")
	}
	if engine == pdfops.EngineGhostscript && !pdfops.GhostscriptInstalled() {
		return nil, pdfops.ErrGhostscriptNotFound
	}

	inputs := make([]string, len(files))
	names := make([]string, len(files))
	for i, f := range files {
		inputs[i] = f.FilePath
		names[i] = f.Filename
	}
	out := s.outputPath(pdfops.MergedName(names, outputName))

	job := s.jobs.Start(models.JobMerge, len(files), func(ctx context.Context, jobID string, report func(models.ProgressEvent)) ([]models.FileResult, error) {
		res, err := pdfops.Merge(ctx, inputs, out, engine, func(current, total int) {
			report(models.ProgressEvent{CurrentUnit: current, TotalUnits: total, Progress: percent(current, total)})
		})
		if err != nil {
			return nil, err
		}
		return []models.FileResult{{
			Input:     fmt.Sprintf("%d files", len(files)),
			Output:    s.register(out, jobID),
			Success:   true,
			Message:   res.Message,
			SizeAfter: res.FinalSize,
		}}, nil
	})
	return job, nil
}

// Split writes every page of the selected PDF as its own document.
func (s *OperationService) Split(fileID string) (*models.Job, error) {
	files, err := s.resolve([]string{fileID})
	if err != nil {
		return nil, err
	}
	file := files[0]

	pages, err := pdfops.PageCount(file.FilePath)
	if err != nil {
		return nil, err
	}
	if pages < 2 {
		return nil, fmt.Errorf("document has only one page, nothing to split")
	}

	job := s.jobs.Start(models.JobSplit, pages, func(ctx context.Context, jobID string, report func(models.ProgressEvent)) ([]models.FileResult, error) {
		outDir, err := s.jobDir(jobID)
		if err != nil {
			return nil, err
		}

		res, err := pdfops.Split(ctx, file.FilePath, outDir, func(current, total int) {
			report(models.ProgressEvent{CurrentUnit: current, TotalUnits: total, Progress: percent(current, total)})
		})
		if err != nil {
			return nil, err
		}

		results := make([]models.FileResult, 0, pages)
		for page := 1; page <= pages; page++ {
			name := pdfops.SplitPageName(file.Filename, page, pages)
			results = append(results, models.FileResult{
				Index:   page - 1,
				Input:   file.Filename,
				Output:  s.register(filepath.Join(outDir, name), jobID),
				Success: true,
				Message: res.Message,
			})
		}
		return results, nil
	})
	return job, nil
}

// ToImages rasterizes the selected PDF to one image per page.
func (s *OperationService) ToImages(fileID, format string, dpi int) (*models.Job, error) {
	files, err := s.resolve([]string{fileID})
	if err != nil {
		return nil, err
	}
	file := files[0]

	if !pdfops.GhostscriptInstalled() {
		return nil, pdfops.ErrGhostscriptNotFound
	}
	if dpi <= 0 {
		dpi = 150
	}

	pages, err := pdfops.PageCount(file.FilePath)
	if err != nil {
		return nil, err
	}

	job := s.jobs.Start(models.JobToImages, pages, func(ctx context.Context, jobID string, report func(models.ProgressEvent)) ([]models.FileResult, error) {
		outDir, err := s.jobDir(jobID)
		if err != nil {
			return nil, err
		}

		paths, _, err := pdfops.ToImages(ctx, file.FilePath, outDir, format, dpi, func(current, total int) {
			report(models.ProgressEvent{CurrentUnit: current, TotalUnits: total, Progress: percent(current, total)})
		})
		if err != nil {
			return nil, err
		}

		results := make([]models.FileResult, 0, len(paths))
		for i, p := range paths {
			results = append(results, models.FileResult{
				Index:   i,
				Input:   file.Filename,
				Output:  s.register(p, jobID),
				Success: true,
			})
		}
		return results, nil
	})
	return job, nil
}

// Bookmarks adds an outline to the selected PDF. Entries beyond the
// page range are dropped up front.
func (s *OperationService) Bookmarks(fileID string, bookmarks []pdfops.Bookmark) (*models.Job, error) {
	files, err := s.resolve([]string{fileID})
	if err != nil {
		return nil, err
	}
	file := files[0]

	if len(bookmarks) == 0 {
		return nil, fmt.Errorf("no bookmarks given")
	}
	pages, err := pdfops.PageCount(file.FilePath)
	if err != nil {
		return nil, err
	}
	valid := pdfops.ValidateBookmarks(bookmarks, pages)
	if len(valid) == 0 {
		return nil, fmt.Errorf("no bookmarks fall inside the document's %d pages", pages)
	}

	out := s.outputPath(pdfops.BookmarkedName(file.Filename))

	job := s.jobs.Start(models.JobBookmarks, 1, func(ctx context.Context, jobID string, report func(models.ProgressEvent)) ([]models.FileResult, error) {
		res, err := pdfops.AddBookmarks(ctx, file.FilePath, out, valid)
		if err != nil {
			return nil, err
		}
		return []models.FileResult{{
			Input:   file.Filename,
			Output:  s.register(out, jobID),
			Success: true,
			Message: res.Message,
		}}, nil
	})
	return job, nil
}

// jobDir creates a per-job output directory.
func (s *OperationService) jobDir(jobID string) (string, error) {
	dir := filepath.Join(s.cfg.GeneratedDir, jobID)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}
	return dir, nil
}

// MarkdownToDocx converts markdown content to a Word document via
// pandoc, preserving math.
func (s *OperationService) MarkdownToDocx(markdown, filename string) (*models.Job, error) {
	if markdown == "" {
		return nil, fmt.Errorf("no markdown content given")
	}
	if !convert.PandocInstalled() {
		return nil, convert.ErrPandocNotFound
	}
	if filename == "" {
		filename = "document"
	}

	out := s.outputPath(filename + ".docx")

	job := s.jobs.Start(models.JobMarkdown, 1, func(ctx context.Context, jobID string, report func(models.ProgressEvent)) ([]models.FileResult, error) {
		if err := convert.MarkdownToDocx(ctx, markdown, out); err != nil {
			return nil, err
		}
		return []models.FileResult{{
			Input:   filename + ".md",
			Output:  s.register(out, jobID),
			Success: true,
			Message: "converted to docx",
		}}, nil
	})
	return job, nil
}

// MarkdownToPDF renders markdown content to an A4 PDF via headless
// Chromium.
func (s *OperationService) MarkdownToPDF(markdown, filename string) (*models.Job, error) {
	if markdown == "" {
		return nil, fmt.Errorf("no markdown content given")
	}
	if filename == "" {
		filename = "document"
	}

	out := s.outputPath(filename + ".pdf")

	job := s.jobs.Start(models.JobMarkdown, 1, func(ctx context.Context, jobID string, report func(models.ProgressEvent)) ([]models.FileResult, error) {
		if err := convert.MarkdownToPDF(ctx, markdown, filename, out, s.cfg.ChromiumPath); err != nil {
			return nil, err
		}
		return []models.FileResult{{
			Input:   filename + ".md",
			Output:  s.register(out, jobID),
			Success: true,
			Message: "converted to pdf",
		}}, nil
	})
	return job, nil
}

// ImagesToPDF assembles uploaded images, in order, into a single PDF.
func (s *OperationService) ImagesToPDF(fileIDs []string, outputName string) (*models.Job, error) {
	files, err := s.resolve(fileIDs)
	if err != nil {
		return nil, err
	}

	inputs := make([]string, len(files))
	for i, f := range files {
		inputs[i] = f.FilePath
	}
	if outputName == "" {
		outputName = "images"
	}
	out := s.outputPath(pdfops.MergedName(nil, outputName))

	job := s.jobs.Start(models.JobMerge, len(files), func(ctx context.Context, jobID string, report func(models.ProgressEvent)) ([]models.FileResult, error) {
		if err := convert.ImagesToPDF(inputs, out); err != nil {
			return nil, err
		}
		return []models.FileResult{{
			Input:   fmt.Sprintf("%d images", len(files)),
			Output:  s.register(out, jobID),
			Success: true,
			Message: "images assembled into PDF",
		}}, nil
	})
	return job, nil
}

// OCR recognizes the selected PDF with the given API config (the
// active config when configID is empty) and writes markdown output
// according to the config's save mode.
func (s *OperationService) OCR(fileID, configID string) (*models.Job, error) {
	files, err := s.resolve([]string{fileID})
	if err != nil {
		return nil, err
	}
	file := files[0]

	var apiCfg *models.APIConfig
	if configID != "" {
		cfg, ok := s.configs.Get(configID)
		if !ok {
			return nil, fmt.Errorf("API config not found: %s", configID)
		}
		apiCfg = cfg
	} else {
		cfg, ok := s.configs.Active()
		if !ok {
			return nil, fmt.Errorf("no active API config; add one first")
		}
		apiCfg = cfg
	}

	provider, err := ocr.NewProvider(apiCfg, ocr.Options{
		Timeout:           time.Duration(s.cfg.OCRTimeoutSeconds) * time.Second,
		RequestsPerSecond: s.cfg.OCRRequestsPerSecond,
	})
	if err != nil {
		return nil, err
	}

	pages, err := pdfops.PageCount(file.FilePath)
	if err != nil {
		return nil, err
	}

	needsImages := apiCfg.Provider == models.ProviderOpenAICompatible
	if needsImages && !pdfops.GhostscriptInstalled() {
		return nil, pdfops.ErrGhostscriptNotFound
	}

	job := s.jobs.Start(models.JobOCR, pages, func(ctx context.Context, jobID string, report func(models.ProgressEvent)) ([]models.FileResult, error) {
		req := &ocr.Request{
			InputPath: file.FilePath,
			Progress: func(current, total int, preview string) {
				report(models.ProgressEvent{
					CurrentUnit: current,
					TotalUnits:  total,
					Progress:    percent(current, total),
					Preview:     preview,
				})
			},
		}

		if needsImages {
			tmpDir := filepath.Join(s.cfg.TempDir, jobID)
			if err := os.MkdirAll(tmpDir, 0700); err != nil {
				return nil, fmt.Errorf("failed to create temp directory: %w", err)
			}
			defer os.RemoveAll(tmpDir)

			report(models.ProgressEvent{Message: "rasterizing pages"})
			images, _, err := pdfops.ToImages(ctx, file.FilePath, tmpDir, "png", 200, nil)
			if err != nil {
				return nil, fmt.Errorf("failed to rasterize pages: %w", err)
			}
			req.ImagePaths = images
		}

		result, err := provider.Recognize(ctx, req)
		if err != nil {
			return nil, err
		}
		s.recordOCRMetrics(result)

		return s.writeOCROutputs(ctx, file, apiCfg, result, jobID)
	})
	return job, nil
}

// recordOCRMetrics counts each page exactly once. Failed pages occupy
// slots in result.Pages as marker blocks, so they are subtracted from
// the processed total.
func (s *OperationService) recordOCRMetrics(result *ocr.Result) {
	for i := 0; i < len(result.Pages)-result.PagesFailed; i++ {
		s.metrics.RecordOCRPage(false)
	}
	for i := 0; i < result.PagesFailed; i++ {
		s.metrics.RecordOCRPage(true)
	}
}

// writeOCROutputs persists recognition results per the save mode: one
// markdown per page, or a single merged document.
func (s *OperationService) writeOCROutputs(ctx context.Context, file *UploadedFile, apiCfg *models.APIConfig, result *ocr.Result, jobID string) ([]models.FileResult, error) {
	if apiCfg.SaveMode == models.SaveModePerPage && len(result.Pages) > 1 {
		outDir, err := s.jobDir(jobID)
		if err != nil {
			return nil, err
		}

		results := make([]models.FileResult, 0, len(result.Pages))
		for i, page := range result.Pages {
			name := pdfops.OCRPageName(file.Filename, i+1, len(result.Pages))
			path := filepath.Join(outDir, name)
			if err := os.WriteFile(path, []byte(page), 0600); err != nil {
				return results, fmt.Errorf("failed to write page %d: %w", i+1, err)
			}
			results = append(results, models.FileResult{
				Index:   i,
				Input:   file.Filename,
				Output:  s.register(path, jobID),
				Success: true,
			})
		}
		return results, nil
	}

	out := s.outputPath(pdfops.OCRName(file.Filename, "md"))
	if err := os.WriteFile(out, []byte(result.Merged()), 0600); err != nil {
		return nil, fmt.Errorf("failed to write OCR output: %w", err)
	}

	msg := fmt.Sprintf("recognized %d pages with %s", len(result.Pages), result.Model)
	if result.PagesFailed > 0 {
		msg = fmt.Sprintf("%s (%d pages failed)", msg, result.PagesFailed)
	}
	results := []models.FileResult{{
		Input:   file.Filename,
		Output:  s.register(out, jobID),
		Success: true,
		Message: msg,
	}}

	// When pandoc is around, also produce a Word copy of the merged
	// markdown. Conversion trouble never fails the OCR job itself.
	if convert.PandocInstalled() {
		docxOut := s.outputPath(pdfops.OCRName(file.Filename, "docx"))
		if err := convert.MarkdownToDocx(ctx, result.Merged(), docxOut); err != nil {
			log.Printf("⚠️  [OCR] DOCX conversion failed for %s: %v", file.Filename, err)
		} else {
			results = append(results, models.FileResult{
				Index:   1,
				Input:   file.Filename,
				Output:  s.register(docxOut, jobID),
				Success: true,
				Message: "DOCX copy of recognized text",
			})
		}
	}
	return results, nil
}

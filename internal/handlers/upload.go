package handlers

import (
	"fmt"
	"log"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/ourpurple/PDFOptimizer/internal/pdftext"
	"github.com/ourpurple/PDFOptimizer/internal/services"
)

var allowedUploadExts = map[string]string{
	".pdf":  "application/pdf",
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".tiff": "image/tiff",
	".tif":  "image/tiff",
}

// Upload accepts one or more PDF or image files as multipart form data
// and caches them for later operations.
func (h *Handler) Upload(c *fiber.Ctx) error {
	form, err := c.MultipartForm()
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid multipart form",
		})
	}

	fileHeaders := form.File["files"]
	if len(fileHeaders) == 0 {
		if single := form.File["file"]; len(single) > 0 {
			fileHeaders = single
		}
	}
	if len(fileHeaders) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "No files in request (use the 'files' field)",
		})
	}

	maxSize := int64(h.cfg.MaxUploadSizeMB) * 1024 * 1024
	uploaded := make([]*services.UploadedFile, 0, len(fileHeaders))

	for _, fh := range fileHeaders {
		file, err := h.saveUpload(c, fh, maxSize)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": fmt.Sprintf("%s: %v", fh.Filename, err),
			})
		}
		uploaded = append(uploaded, file)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"files": uploaded,
	})
}

func (h *Handler) saveUpload(c *fiber.Ctx, fh *multipart.FileHeader, maxSize int64) (*services.UploadedFile, error) {
	if fh.Size > maxSize {
		return nil, fmt.Errorf("file exceeds the %d MB limit", h.cfg.MaxUploadSizeMB)
	}

	ext := strings.ToLower(filepath.Ext(fh.Filename))
	mimeType, ok := allowedUploadExts[ext]
	if !ok {
		return nil, fmt.Errorf("unsupported file type %q", ext)
	}

	fileID := uuid.New().String()
	dstPath := filepath.Join(h.cfg.UploadDir, fileID+ext)
	if err := c.SaveFile(fh, dstPath); err != nil {
		return nil, fmt.Errorf("failed to store file: %w", err)
	}

	file := &services.UploadedFile{
		FileID:     fileID,
		Filename:   filepath.Base(fh.Filename),
		FilePath:   dstPath,
		MimeType:   mimeType,
		Size:       fh.Size,
		UploadedAt: time.Now(),
	}

	if ext == ".pdf" {
		meta, err := pdftext.ExtractFile(dstPath)
		if err != nil {
			log.Printf("⚠️  [UPLOAD] Text extraction failed for %s: %v", fh.Filename, err)
		} else {
			file.PageCount = meta.PageCount
			file.WordCount = meta.WordCount
			file.HasText = pdftext.HasTextLayer(meta)
		}
	}

	h.uploads.Store(file)
	h.metrics.RecordUpload(fh.Size)

	return file, nil
}

// DeleteUpload drops a cached upload and its stored file, mirroring
// removing an entry from the file table before running anything.
func (h *Handler) DeleteUpload(c *fiber.Ctx) error {
	id := c.Params("id")
	file, ok := h.uploads.Get(id)
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Uploaded file not found"})
	}

	h.uploads.Remove(id)
	if err := os.Remove(file.FilePath); err != nil && !os.IsNotExist(err) {
		log.Printf("⚠️  [UPLOAD] Failed to delete stored file %s: %v", file.FilePath, err)
	}
	return c.JSON(fiber.Map{"success": true})
}

package handlers

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/ourpurple/PDFOptimizer/internal/models"
	"github.com/ourpurple/PDFOptimizer/internal/pdfops"
)

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseEngine(s string) pdfops.Engine {
	if s == string(pdfops.EngineGhostscript) {
		return pdfops.EngineGhostscript
	}
	return pdfops.EnginePDFCPU
}

func jobResponse(c *fiber.Ctx, job *models.Job, err error) error {
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	return c.Status(fiber.StatusAccepted).JSON(job)
}

// Optimize starts a compression job over the selected uploads.
func (h *Handler) Optimize(c *fiber.Ctx) error {
	var req struct {
		FileIDs []string `json:"file_ids"`
		Preset  string   `json:"preset"`
		Engine  string   `json:"engine"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if req.Preset == "" {
		req.Preset = pdfops.PresetBalanced
	}

	job, err := h.operations.Optimize(req.FileIDs, req.Preset, parseEngine(req.Engine))
	return jobResponse(c, job, err)
}

// Merge starts a merge job over the selected uploads, in order.
func (h *Handler) Merge(c *fiber.Ctx) error {
	var req struct {
		FileIDs    []string `json:"file_ids"`
		OutputName string   `json:"output_name"`
		Engine     string   `json:"engine"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	job, err := h.operations.Merge(req.FileIDs, req.OutputName, parseEngine(req.Engine))
	return jobResponse(c, job, err)
}

// Split starts a per-page split job.
func (h *Handler) Split(c *fiber.Ctx) error {
	var req struct {
		FileID string `json:"file_id"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	job, err := h.operations.Split(req.FileID)
	return jobResponse(c, job, err)
}

// Curves starts a text-to-outlines job over the selected uploads.
func (h *Handler) Curves(c *fiber.Ctx) error {
	var req struct {
		FileIDs []string `json:"file_ids"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	job, err := h.operations.Curves(req.FileIDs)
	return jobResponse(c, job, err)
}

// ToImages starts a rasterization job.
func (h *Handler) ToImages(c *fiber.Ctx) error {
	var req struct {
		FileID string `json:"file_id"`
		Format string `json:"format"`
		DPI    int    `json:"dpi"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if req.Format == "" {
		req.Format = "png"
	}

	job, err := h.operations.ToImages(req.FileID, req.Format, req.DPI)
	return jobResponse(c, job, err)
}

// Bookmarks starts a job that writes an outline into the document.
func (h *Handler) Bookmarks(c *fiber.Ctx) error {
	var req struct {
		FileID    string `json:"file_id"`
		Bookmarks []struct {
			Page  int    `json:"page"`
			Title string `json:"title"`
		} `json:"bookmarks"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	bookmarks := make([]pdfops.Bookmark, len(req.Bookmarks))
	for i, b := range req.Bookmarks {
		bookmarks[i] = pdfops.Bookmark{Page: b.Page, Title: b.Title}
	}

	job, err := h.operations.Bookmarks(req.FileID, bookmarks)
	return jobResponse(c, job, err)
}

// OCR starts a recognition job using the given (or active) API config.
func (h *Handler) OCR(c *fiber.Ctx) error {
	var req struct {
		FileID   string `json:"file_id"`
		ConfigID string `json:"config_id"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	job, err := h.operations.OCR(req.FileID, req.ConfigID)
	return jobResponse(c, job, err)
}

// MarkdownConvert converts markdown content to docx or pdf.
func (h *Handler) MarkdownConvert(c *fiber.Ctx) error {
	var req struct {
		Markdown string `json:"markdown"`
		Filename string `json:"filename"`
		Target   string `json:"target"` // "docx" or "pdf"
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	var (
		job *models.Job
		err error
	)
	switch req.Target {
	case "pdf":
		job, err = h.operations.MarkdownToPDF(req.Markdown, req.Filename)
	case "", "docx":
		job, err = h.operations.MarkdownToDocx(req.Markdown, req.Filename)
	default:
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "target must be docx or pdf"})
	}
	return jobResponse(c, job, err)
}

// ImagesToPDF assembles uploaded images into one PDF.
func (h *Handler) ImagesToPDF(c *fiber.Ctx) error {
	var req struct {
		FileIDs    []string `json:"file_ids"`
		OutputName string   `json:"output_name"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	job, err := h.operations.ImagesToPDF(req.FileIDs, req.OutputName)
	return jobResponse(c, job, err)
}

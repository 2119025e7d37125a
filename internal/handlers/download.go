package handlers

import (
	"log"

	"github.com/gofiber/fiber/v2"
)

// Download serves a generated output file and marks it so the cleanup
// job can expire it sooner.
func (h *Handler) Download(c *fiber.Ctx) error {
	documentID := c.Params("id")

	doc, exists := h.registry.Get(documentID)
	if !exists {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Document not found or already deleted",
		})
	}

	c.Set("Content-Disposition", "attachment; filename=\""+doc.Filename+"\"")
	c.Set("Content-Type", doc.ContentType)

	if err := c.SendFile(doc.FilePath); err != nil {
		log.Printf("❌ [DOWNLOAD] Failed to send %s: %v", doc.Filename, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to download file",
		})
	}

	h.registry.MarkDownloaded(documentID)
	return nil
}

// ListOutputs returns the registered outputs of one job.
func (h *Handler) ListOutputs(c *fiber.Ctx) error {
	jobID := c.Params("id")
	return c.JSON(fiber.Map{
		"documents": h.registry.ByJob(jobID),
	})
}

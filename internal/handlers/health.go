package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ourpurple/PDFOptimizer/internal/convert"
	"github.com/ourpurple/PDFOptimizer/internal/pdfops"
)

// Health reports service status and the availability of the external
// tools operations depend on.
func (h *Handler) Health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status": "healthy",
		"tools": fiber.Map{
			"ghostscript": pdfops.GhostscriptInstalled(),
			"pandoc":      convert.PandocInstalled(),
			"chromium":    convert.ChromiumInstalled(h.cfg.ChromiumPath),
		},
		"active_jobs":    h.jobs.ActiveCount(),
		"cached_uploads": h.uploads.Count(),
		"ws_subscribers": h.hub.Count(),
		"configured_ocr": len(h.configs.List()),
	})
}

package handlers

import (
	"bytes"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/ourpurple/PDFOptimizer/internal/models"
	"github.com/ourpurple/PDFOptimizer/internal/ocr"
)

type configRequest struct {
	Name        string         `json:"name"`
	Provider    string         `json:"provider"`
	APIKey      string         `json:"api_key"`
	APIBaseURL  string         `json:"api_base_url"`
	ModelName   string         `json:"model_name"`
	Temperature *float64       `json:"temperature"`
	Prompt      string         `json:"prompt"`
	SaveMode    string         `json:"save_mode"`
	IsDefault   bool           `json:"is_default"`
	ExtraParams map[string]any `json:"extra_params"`
}

func (r *configRequest) apply(cfg *models.APIConfig) {
	cfg.Name = r.Name
	cfg.Provider = r.Provider
	cfg.APIKey = r.APIKey
	cfg.APIBaseURL = r.APIBaseURL
	cfg.ModelName = r.ModelName
	if r.Temperature != nil {
		cfg.Temperature = *r.Temperature
	}
	if r.Prompt != "" {
		cfg.Prompt = r.Prompt
	}
	if r.SaveMode != "" {
		cfg.SaveMode = r.SaveMode
	}
	cfg.IsDefault = r.IsDefault
	if r.ExtraParams != nil {
		cfg.ExtraParams = r.ExtraParams
	}
}

// sanitized hides the stored API key from list/get responses.
func sanitized(cfg *models.APIConfig) *models.APIConfig {
	c := *cfg
	if len(c.APIKey) > 8 {
		c.APIKey = c.APIKey[:4] + "..." + c.APIKey[len(c.APIKey)-4:]
	} else if c.APIKey != "" {
		c.APIKey = "..."
	}
	return &c
}

// ListConfigs returns all OCR API configs with masked keys.
func (h *Handler) ListConfigs(c *fiber.Ctx) error {
	configs := h.configs.List()
	out := make([]*models.APIConfig, len(configs))
	for i, cfg := range configs {
		out[i] = sanitized(cfg)
	}

	profile := h.configs.Profile()
	return c.JSON(fiber.Map{
		"configs":           out,
		"active_config_id":  profile.ActiveConfigID,
		"default_config_id": profile.DefaultConfigID,
	})
}

// GetConfig returns one config with its key masked.
func (h *Handler) GetConfig(c *fiber.Ctx) error {
	cfg, ok := h.configs.Get(c.Params("id"))
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Config not found"})
	}
	return c.JSON(sanitized(cfg))
}

// CreateConfig adds a new OCR API config.
func (h *Handler) CreateConfig(c *fiber.Ctx) error {
	var req configRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	cfg := models.NewAPIConfig(req.Name, req.Provider)
	req.apply(cfg)

	if err := h.configs.Add(cfg); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	return c.Status(fiber.StatusCreated).JSON(sanitized(cfg))
}

// UpdateConfig modifies an existing config. An empty api_key keeps the
// stored one.
func (h *Handler) UpdateConfig(c *fiber.Ctx) error {
	existing, ok := h.configs.Get(c.Params("id"))
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Config not found"})
	}

	var req configRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	updated := *existing
	if req.APIKey == "" {
		req.APIKey = existing.APIKey
	}
	req.apply(&updated)
	updated.Touch()

	if err := h.configs.Update(existing.ID, &updated); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(sanitized(&updated))
}

// DeleteConfig removes a config.
func (h *Handler) DeleteConfig(c *fiber.Ctx) error {
	if err := h.configs.Remove(c.Params("id")); err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(fiber.Map{"success": true})
}

// ActivateConfig selects the config used for new OCR jobs.
func (h *Handler) ActivateConfig(c *fiber.Ctx) error {
	if err := h.configs.SetActive(c.Params("id")); err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(fiber.Map{"success": true})
}

// SetDefaultConfig marks a config as the default.
func (h *Handler) SetDefaultConfig(c *fiber.Ctx) error {
	if err := h.configs.SetDefault(c.Params("id")); err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(fiber.Map{"success": true})
}

// TestConfig verifies a config's credentials against the provider API.
func (h *Handler) TestConfig(c *fiber.Ctx) error {
	cfg, ok := h.configs.Get(c.Params("id"))
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Config not found"})
	}

	result := ocr.CheckConnection(c.Context(), cfg, 15*time.Second)
	return c.JSON(result)
}

// ValidateConfig runs validation on a config payload without saving it.
func (h *Handler) ValidateConfig(c *fiber.Ctx) error {
	var req configRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	cfg := models.NewAPIConfig(req.Name, req.Provider)
	req.apply(cfg)
	return c.JSON(cfg.Validate())
}

// ExportConfigs downloads the config store as JSON. Optional ids query
// parameter (comma-separated) limits the export.
func (h *Handler) ExportConfigs(c *fiber.Ctx) error {
	var ids []string
	if q := c.Query("ids"); q != "" {
		ids = splitCSV(q)
	}

	var buf bytes.Buffer
	if err := h.configs.Export(&buf, ids); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}

	c.Set("Content-Disposition", "attachment; filename=\"ocr_configs_export.json\"")
	c.Set("Content-Type", "application/json")
	return c.Send(buf.Bytes())
}

// ImportConfigs merges (default) or replaces configs from an uploaded
// JSON export.
func (h *Handler) ImportConfigs(c *fiber.Ctx) error {
	merge := c.Query("mode", "merge") != "replace"

	fh, err := c.FormFile("file")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Missing import file"})
	}
	f, err := fh.Open()
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Failed to open import file"})
	}
	defer f.Close()

	imported, err := h.configs.Import(f, merge)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	out := make([]*models.APIConfig, len(imported))
	for i, cfg := range imported {
		out[i] = sanitized(cfg)
	}
	return c.JSON(fiber.Map{"imported": out})
}

package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/ourpurple/PDFOptimizer/internal/config"
	"github.com/ourpurple/PDFOptimizer/internal/convert"
	"github.com/ourpurple/PDFOptimizer/internal/middleware"
	"github.com/ourpurple/PDFOptimizer/internal/services"
)

func newTestApp(t *testing.T) (*fiber.App, *Handler) {
	t.Helper()

	dataDir := t.TempDir()
	cfg := &config.Config{
		Port:            "0",
		DataDir:         dataDir,
		UploadDir:       dataDir + "/uploads",
		TempDir:         dataDir + "/temp",
		GeneratedDir:    dataDir + "/generated",
		MaxUploadSizeMB: 10,
	}
	if err := cfg.EnsureDirs(); err != nil {
		t.Fatal(err)
	}

	configService, err := services.NewConfigService(cfg.DataDir, nil)
	if err != nil {
		t.Fatal(err)
	}

	hub := services.NewProgressHub(nil)
	uploads := services.NewFileCacheService(time.Minute)
	registry := convert.NewRegistry(time.Hour, time.Hour)
	jobManager := services.NewJobManager(context.Background(), nil, hub, nil)
	operations := services.NewOperationService(cfg, uploads, registry, configService, jobManager, nil)

	h := New(cfg, uploads, registry, configService, operations, jobManager, hub, nil)

	app := fiber.New()
	app.Get("/health", h.Health)

	api := app.Group("/api", middleware.TokenAuth(cfg.APIToken))
	api.Post("/upload", h.Upload)
	api.Delete("/uploads/:id", h.DeleteUpload)
	api.Get("/download/:id", h.Download)
	api.Get("/configs", h.ListConfigs)
	api.Post("/configs", h.CreateConfig)
	api.Post("/configs/validate", h.ValidateConfig)
	api.Get("/configs/:id", h.GetConfig)
	api.Put("/configs/:id", h.UpdateConfig)
	api.Delete("/configs/:id", h.DeleteConfig)
	api.Post("/configs/:id/activate", h.ActivateConfig)
	api.Post("/operations/optimize", h.Optimize)
	api.Get("/jobs", h.ListJobs)
	api.Get("/jobs/:id", h.GetJob)

	return app, h
}

func doJSON(t *testing.T, app *fiber.App, method, path string, body any) *http.Response {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatal(err)
	}
	return resp
}

func decode(t *testing.T, resp *http.Response, out any) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		t.Fatal(err)
	}
}

func TestHealth(t *testing.T) {
	app, _ := newTestApp(t)

	resp := doJSON(t, app, http.MethodGet, "/health", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d", resp.StatusCode)
	}

	var body map[string]any
	decode(t, resp, &body)
	if body["status"] != "healthy" {
		t.Errorf("status field = %v", body["status"])
	}
	tools, ok := body["tools"].(map[string]any)
	if !ok {
		t.Fatal("health should report tool availability")
	}
	for _, tool := range []string{"ghostscript", "pandoc", "chromium"} {
		if _, ok := tools[tool]; !ok {
			t.Errorf("health tools missing %q", tool)
		}
	}
}

func TestConfigCRUD(t *testing.T) {
	app, _ := newTestApp(t)

	// Create
	resp := doJSON(t, app, http.MethodPost, "/api/configs", map[string]any{
		"name":         "primary",
		"provider":     "OpenAI-Compatible",
		"api_key":      "sk-secret-key-12345",
		"api_base_url": "https://api.example.com/v1",
		"model_name":   "gpt-4o",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status %d", resp.StatusCode)
	}
	var created map[string]any
	decode(t, resp, &created)
	id, _ := created["id"].(string)
	if id == "" {
		t.Fatal("no id in create response")
	}
	if key, _ := created["api_key"].(string); strings.Contains(key, "secret") {
		t.Errorf("API key must be masked in responses, got %q", key)
	}

	// List shows it as active (first added)
	resp = doJSON(t, app, http.MethodGet, "/api/configs", nil)
	var list map[string]any
	decode(t, resp, &list)
	if list["active_config_id"] != id {
		t.Errorf("active = %v, want %s", list["active_config_id"], id)
	}

	// Update without api_key keeps the stored key
	resp = doJSON(t, app, http.MethodPut, "/api/configs/"+id, map[string]any{
		"name":         "renamed",
		"provider":     "OpenAI-Compatible",
		"api_base_url": "https://api.example.com/v1",
		"model_name":   "gpt-4o",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("update status %d", resp.StatusCode)
	}

	// Delete
	resp = doJSON(t, app, http.MethodDelete, "/api/configs/"+id, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("delete status %d", resp.StatusCode)
	}
	resp = doJSON(t, app, http.MethodGet, "/api/configs/"+id, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("deleted config should 404, got %d", resp.StatusCode)
	}
}

func TestCreateConfigRejectsInvalid(t *testing.T) {
	app, _ := newTestApp(t)

	resp := doJSON(t, app, http.MethodPost, "/api/configs", map[string]any{
		"name":     "broken",
		"provider": "OpenAI-Compatible",
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status %d", resp.StatusCode)
	}
}

func TestValidateConfigEndpoint(t *testing.T) {
	app, _ := newTestApp(t)

	resp := doJSON(t, app, http.MethodPost, "/api/configs/validate", map[string]any{
		"name":     "check",
		"provider": "OpenAI-Compatible",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d", resp.StatusCode)
	}
	var result map[string]any
	decode(t, resp, &result)
	if result["is_valid"] != false {
		t.Error("config without key should be invalid")
	}
}

func TestUploadRejectsUnsupportedType(t *testing.T) {
	app, _ := newTestApp(t)

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, _ := writer.CreateFormFile("files", "evil.exe")
	part.Write([]byte("MZ"))
	writer.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/upload", &buf)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status %d", resp.StatusCode)
	}
}

func TestUploadAndOperateOnPDF(t *testing.T) {
	app, _ := newTestApp(t)

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, _ := writer.CreateFormFile("files", "doc.pdf")
	part.Write([]byte("%PDF-1.4\nfake content"))
	writer.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/upload", &buf)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("upload status %d", resp.StatusCode)
	}

	var body struct {
		Files []struct {
			FileID   string `json:"file_id"`
			Filename string `json:"filename"`
		} `json:"files"`
	}
	decode(t, resp, &body)
	if len(body.Files) != 1 || body.Files[0].FileID == "" {
		t.Fatalf("upload response %+v", body)
	}
	if body.Files[0].Filename != "doc.pdf" {
		t.Errorf("filename = %q", body.Files[0].Filename)
	}
}

func TestDeleteUpload(t *testing.T) {
	app, h := newTestApp(t)

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, _ := writer.CreateFormFile("files", "doc.pdf")
	part.Write([]byte("%PDF-1.4\ncontent"))
	writer.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/upload", &buf)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatal(err)
	}
	var body struct {
		Files []struct {
			FileID string `json:"file_id"`
		} `json:"files"`
	}
	decode(t, resp, &body)
	if len(body.Files) != 1 {
		t.Fatalf("upload response %+v", body)
	}
	id := body.Files[0].FileID

	file, ok := h.uploads.Get(id)
	if !ok {
		t.Fatal("upload not cached")
	}

	resp = doJSON(t, app, http.MethodDelete, "/api/uploads/"+id, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("delete status %d", resp.StatusCode)
	}
	if _, ok := h.uploads.Get(id); ok {
		t.Error("upload still cached after delete")
	}
	if _, err := os.Stat(file.FilePath); !os.IsNotExist(err) {
		t.Error("stored file should be removed from disk")
	}

	resp = doJSON(t, app, http.MethodDelete, "/api/uploads/"+id, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("deleting twice should 404, got %d", resp.StatusCode)
	}
}

func TestOptimizeUnknownFile(t *testing.T) {
	app, _ := newTestApp(t)

	resp := doJSON(t, app, http.MethodPost, "/api/operations/optimize", map[string]any{
		"file_ids": []string{"does-not-exist"},
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status %d", resp.StatusCode)
	}
}

func TestJobNotFound(t *testing.T) {
	app, _ := newTestApp(t)

	resp := doJSON(t, app, http.MethodGet, "/api/jobs/nope", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status %d", resp.StatusCode)
	}
}

func TestDownloadNotFound(t *testing.T) {
	app, _ := newTestApp(t)

	resp := doJSON(t, app, http.MethodGet, "/api/download/nope", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status %d", resp.StatusCode)
	}
}

func TestTokenAuth(t *testing.T) {
	app := fiber.New()
	app.Get("/protected", middleware.TokenAuth("topsecret"), func(c *fiber.Ctx) error {
		return c.SendString("ok")
	})

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	resp, _ := app.Test(req, -1)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("missing token: status %d", resp.StatusCode)
	}

	req = httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	resp, _ = app.Test(req, -1)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("wrong token: status %d", resp.StatusCode)
	}

	req = httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer topsecret")
	resp, _ = app.Test(req, -1)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("valid token: status %d", resp.StatusCode)
	}

	// Query parameter fallback for WebSocket clients.
	req = httptest.NewRequest(http.MethodGet, "/protected?token=topsecret", nil)
	resp, _ = app.Test(req, -1)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("query token: status %d", resp.StatusCode)
	}
}

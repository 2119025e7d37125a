package ocr

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ourpurple/PDFOptimizer/internal/models"
)

// CheckConnection verifies a config's credentials by listing the
// provider's models, reporting latency and model count.
func CheckConnection(ctx context.Context, cfg *models.APIConfig, timeout time.Duration) models.TestResult {
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	client := &http.Client{Timeout: timeout}

	base := strings.TrimSuffix(cfg.APIBaseURL, "/")
	switch cfg.Provider {
	case models.ProviderMistral:
		if base == "" {
			base = defaultMistralBaseURL
		}
		base += "/v1"
	case models.ProviderOpenAICompatible:
		if base == "" {
			return models.TestResult{Success: false, Message: "base URL is required"}
		}
	default:
		return models.TestResult{
			Success: false,
			Message: fmt.Sprintf("unsupported provider: %s", cfg.Provider),
		}
	}

	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"/models", nil)
	if err != nil {
		return models.TestResult{Success: false, Message: err.Error()}
	}
	req.Header.Set("Authorization", "Bearer "+cfg.APIKey)

	resp, err := client.Do(req)
	if err != nil {
		return models.TestResult{
			Success:      false,
			Message:      fmt.Sprintf("connection failed: %v", err),
			ResponseTime: time.Since(start).Seconds(),
		}
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	elapsed := time.Since(start).Seconds()

	if resp.StatusCode != http.StatusOK {
		return models.TestResult{
			Success:      false,
			Message:      fmt.Sprintf("connection failed: %d: %s", resp.StatusCode, strings.TrimSpace(string(body))),
			ResponseTime: elapsed,
		}
	}

	var listResp struct {
		Data []json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(body, &listResp); err != nil {
		return models.TestResult{
			Success:      false,
			Message:      fmt.Sprintf("unexpected response: %v", err),
			ResponseTime: elapsed,
		}
	}

	return models.TestResult{
		Success:      true,
		Message:      "connection ok",
		ResponseTime: elapsed,
		Details:      map[string]any{"model_count": len(listResp.Data)},
	}
}

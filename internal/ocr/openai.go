package ocr

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/time/rate"

	"github.com/ourpurple/PDFOptimizer/internal/models"
)

// DefaultPrompt instructs the model to transcribe a page to markdown.
const DefaultPrompt = "This is a PDF page. Transcribe all of its content accurately into well-structured Markdown."

const maxCompletionTokens = 4096

// openaiProvider recognizes one page image at a time through any
// OpenAI-compatible chat/completions endpoint.
type openaiProvider struct {
	cfg     *models.APIConfig
	client  *http.Client
	limiter *rate.Limiter
}

func newOpenAIProvider(cfg *models.APIConfig, client *http.Client, limiter *rate.Limiter) *openaiProvider {
	return &openaiProvider{cfg: cfg, client: client, limiter: limiter}
}

func (p *openaiProvider) Name() string { return models.ProviderOpenAICompatible }

// Recognize sends each rasterized page to the vision model. A page whose
// retries are exhausted contributes an error marker and processing
// continues with the next page.
func (p *openaiProvider) Recognize(ctx context.Context, req *Request) (*Result, error) {
	if len(req.ImagePaths) == 0 {
		return nil, fmt.Errorf("no page images to recognize")
	}

	prompt := p.cfg.Prompt
	if prompt == "" {
		prompt = DefaultPrompt
	}

	result := &Result{
		Model:    p.cfg.ModelName,
		Provider: p.Name(),
		Pages:    make([]string, 0, len(req.ImagePaths)),
	}

	total := len(req.ImagePaths)
	for i, imagePath := range req.ImagePaths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		page := i + 1
		content, err := withRetry(ctx, func() (string, error) {
			if err := wait(ctx, p.limiter); err != nil {
				return "", err
			}
			return p.recognizePage(ctx, imagePath, prompt)
		})
		if err != nil {
			slog.Warn("OCR page failed", "page", page, "error", err)
			result.Pages = append(result.Pages, failedPageMarker(page, err))
			result.PagesFailed++
		} else {
			result.Pages = append(result.Pages, content)
		}

		if req.Progress != nil {
			req.Progress(page, total, result.Merged())
		}
	}

	return result, nil
}

// recognizePage performs one chat/completions call with the page image
// attached as a base64 data URL.
func (p *openaiProvider) recognizePage(ctx context.Context, imagePath, prompt string) (string, error) {
	data, err := os.ReadFile(imagePath)
	if err != nil {
		return "", fmt.Errorf("read page image: %w", err)
	}

	mime := "image/png"
	if ext := strings.ToLower(filepath.Ext(imagePath)); ext == ".jpg" || ext == ".jpeg" {
		mime = "image/jpeg"
	}
	dataURL := fmt.Sprintf("data:%s;base64,%s", mime, base64.StdEncoding.EncodeToString(data))

	requestBody := map[string]any{
		"model": p.cfg.ModelName,
		"messages": []map[string]any{
			{
				"role": "user",
				"content": []map[string]any{
					{"type": "text", "text": prompt},
					{
						"type": "image_url",
						"image_url": map[string]any{
							"url": dataURL,
						},
					},
				},
			},
		},
		"max_tokens":  maxCompletionTokens,
		"temperature": p.cfg.Temperature,
	}

	requestJSON, err := json.Marshal(requestBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	apiURL := fmt.Sprintf("%s/chat/completions", strings.TrimSuffix(p.cfg.APIBaseURL, "/"))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL, bytes.NewReader(requestJSON))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("API error %d: %s", resp.StatusCode, string(body))
	}

	var apiResp struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}

	if len(apiResp.Choices) == 0 {
		return "", fmt.Errorf("no response from model")
	}

	return apiResp.Choices[0].Message.Content, nil
}

package ocr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/time/rate"

	"github.com/ourpurple/PDFOptimizer/internal/models"
)

// defaultMistralBaseURL is used when the config leaves the base URL empty.
const defaultMistralBaseURL = "https://api.mistral.ai"

// mistralProvider OCRs the whole PDF in one shot through the Mistral
// document OCR API: upload the file, fetch a signed URL, then run the OCR
// endpoint against it.
type mistralProvider struct {
	cfg     *models.APIConfig
	client  *http.Client
	limiter *rate.Limiter
}

func newMistralProvider(cfg *models.APIConfig, client *http.Client, limiter *rate.Limiter) *mistralProvider {
	return &mistralProvider{cfg: cfg, client: client, limiter: limiter}
}

func (p *mistralProvider) Name() string { return models.ProviderMistral }

func (p *mistralProvider) baseURL() string {
	base := strings.TrimSuffix(p.cfg.APIBaseURL, "/")
	if base == "" {
		return defaultMistralBaseURL
	}
	return base
}

// Recognize uploads the document and runs whole-document OCR with the
// standard bounded retry around each API step.
func (p *mistralProvider) Recognize(ctx context.Context, req *Request) (*Result, error) {
	if req.InputPath == "" {
		return nil, fmt.Errorf("no input document")
	}

	if req.Progress != nil {
		req.Progress(0, 1, "")
	}

	fileID, err := withRetry(ctx, func() (string, error) {
		if err := wait(ctx, p.limiter); err != nil {
			return "", err
		}
		return p.uploadFile(ctx, req.InputPath)
	})
	if err != nil {
		return nil, fmt.Errorf("upload document: %w", err)
	}

	signedURL, err := withRetry(ctx, func() (string, error) {
		if err := wait(ctx, p.limiter); err != nil {
			return "", err
		}
		return p.signedURL(ctx, fileID)
	})
	if err != nil {
		return nil, fmt.Errorf("fetch signed url: %w", err)
	}

	pages, err := p.runOCR(ctx, signedURL)
	if err != nil {
		return nil, err
	}

	result := &Result{
		Pages:    pages,
		Model:    p.cfg.ModelName,
		Provider: p.Name(),
	}

	if req.Progress != nil {
		req.Progress(1, 1, result.Merged())
	}

	return result, nil
}

// uploadFile posts the PDF to the files endpoint with purpose "ocr" and
// returns the file ID.
func (p *mistralProvider) uploadFile(ctx context.Context, path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open document: %w", err)
	}
	defer file.Close()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	if err := writer.WriteField("purpose", "ocr"); err != nil {
		return "", err
	}
	part, err := writer.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(part, file); err != nil {
		return "", fmt.Errorf("copy document: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL()+"/v1/files", &buf)
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", writer.FormDataContentType())
	httpReq.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)

	var uploadResp struct {
		ID string `json:"id"`
	}
	if err := p.do(httpReq, &uploadResp); err != nil {
		return "", err
	}
	if uploadResp.ID == "" {
		return "", fmt.Errorf("upload returned no file id")
	}
	return uploadResp.ID, nil
}

// signedURL fetches a short-lived download URL for an uploaded file.
func (p *mistralProvider) signedURL(ctx context.Context, fileID string) (string, error) {
	endpoint := fmt.Sprintf("%s/v1/files/%s/url?expiry=24", p.baseURL(), url.PathEscape(fileID))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)

	var urlResp struct {
		URL string `json:"url"`
	}
	if err := p.do(httpReq, &urlResp); err != nil {
		return "", err
	}
	if urlResp.URL == "" {
		return "", fmt.Errorf("no signed url in response")
	}
	return urlResp.URL, nil
}

// runOCR calls the OCR endpoint and returns per-page markdown. The whole
// call is retried as one unit; an empty page set counts as a failed
// attempt.
func (p *mistralProvider) runOCR(ctx context.Context, documentURL string) ([]string, error) {
	var pages []string
	_, err := withRetry(ctx, func() (string, error) {
		if err := wait(ctx, p.limiter); err != nil {
			return "", err
		}

		requestBody := map[string]any{
			"model": p.cfg.ModelName,
			"document": map[string]any{
				"type":         "document_url",
				"document_url": documentURL,
			},
			"include_image_base64": false,
		}
		requestJSON, err := json.Marshal(requestBody)
		if err != nil {
			return "", err
		}

		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL()+"/v1/ocr", bytes.NewReader(requestJSON))
		if err != nil {
			return "", err
		}
		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)

		var ocrResp struct {
			Pages []struct {
				Index    int    `json:"index"`
				Markdown string `json:"markdown"`
			} `json:"pages"`
		}
		if err := p.do(httpReq, &ocrResp); err != nil {
			return "", err
		}

		pages = pages[:0]
		for _, page := range ocrResp.Pages {
			pages = append(pages, page.Markdown)
		}
		return strings.Join(pages, "\n"), nil
	})
	if err != nil {
		return nil, fmt.Errorf("document OCR: %w", err)
	}
	return pages, nil
}

// do executes a request and decodes the JSON response into out.
func (p *mistralProvider) do(req *http.Request, out any) error {
	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("API error %d: %s", resp.StatusCode, string(body))
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

package ocr

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ourpurple/PDFOptimizer/internal/models"
)

func TestWithRetrySucceedsAfterFailure(t *testing.T) {
	calls := 0
	content, err := withRetry(context.Background(), func() (string, error) {
		calls++
		if calls < 2 {
			return "", fmt.Errorf("transient")
		}
		return "recognized text", nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if content != "recognized text" {
		t.Errorf("got %q", content)
	}
	if calls != 2 {
		t.Errorf("expected 2 calls, got %d", calls)
	}
}

func TestWithRetryEmptyContentCountsAsFailure(t *testing.T) {
	calls := 0
	_, err := withRetry(context.Background(), func() (string, error) {
		calls++
		return "   \n", nil // 200 with whitespace-only content
	})
	if err == nil {
		t.Fatal("expected error for persistently empty content")
	}
	if calls != maxAttempts {
		t.Errorf("expected %d attempts, got %d", maxAttempts, calls)
	}
	if !strings.Contains(err.Error(), "empty content") {
		t.Errorf("error should mention empty content: %v", err)
	}
}

func TestWithRetryRespectsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := withRetry(ctx, func() (string, error) {
		t.Fatal("fn must not run with a cancelled context")
		return "", nil
	})
	if err != context.Canceled {
		t.Errorf("got %v", err)
	}
}

func TestNewProviderDispatch(t *testing.T) {
	openai := &models.APIConfig{Provider: models.ProviderOpenAICompatible, APIKey: "k", APIBaseURL: "https://x/v1", ModelName: "m"}
	p, err := NewProvider(openai, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if p.Name() != models.ProviderOpenAICompatible {
		t.Errorf("got %q", p.Name())
	}

	mistral := &models.APIConfig{Provider: models.ProviderMistral, APIKey: "k", ModelName: "m"}
	p, err = NewProvider(mistral, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if p.Name() != models.ProviderMistral {
		t.Errorf("got %q", p.Name())
	}

	if _, err := NewProvider(&models.APIConfig{Provider: "Unknown"}, Options{}); err == nil {
		t.Error("unknown provider should error")
	}
}

func TestFailedPageMarker(t *testing.T) {
	marker := failedPageMarker(7, fmt.Errorf("boom"))
	if !strings.Contains(marker, "page 7") || !strings.Contains(marker, "boom") {
		t.Errorf("got %q", marker)
	}
}

func TestResultMerged(t *testing.T) {
	r := &Result{Pages: []string{"# One", "# Two"}}
	merged := r.Merged()
	if merged != "# One"+pageSeparator+"# Two" {
		t.Errorf("got %q", merged)
	}
}

func writeTestImage(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("fake png bytes"), 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestOpenAIRecognize(t *testing.T) {
	var prompts []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer test-key" {
			t.Errorf("bad auth header %q", auth)
		}
		prompts = append(prompts, "called")
		fmt.Fprintf(w, `{"choices":[{"message":{"content":"page %d text"}}]}`, len(prompts))
	}))
	defer server.Close()

	cfg := &models.APIConfig{
		Provider:   models.ProviderOpenAICompatible,
		APIKey:     "test-key",
		APIBaseURL: server.URL,
		ModelName:  "test-model",
	}
	provider, err := NewProvider(cfg, Options{})
	if err != nil {
		t.Fatal(err)
	}

	dir := t.TempDir()
	var progressCalls int
	result, err := provider.Recognize(context.Background(), &Request{
		ImagePaths: []string{
			writeTestImage(t, dir, "p1.png"),
			writeTestImage(t, dir, "p2.png"),
		},
		Progress: func(current, total int, preview string) {
			progressCalls++
			if total != 2 {
				t.Errorf("total = %d", total)
			}
			if preview == "" {
				t.Error("preview should carry the merged text so far")
			}
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	if len(result.Pages) != 2 || result.PagesFailed != 0 {
		t.Fatalf("unexpected result %+v", result)
	}
	if result.Pages[0] != "page 1 text" || result.Pages[1] != "page 2 text" {
		t.Errorf("pages out of order: %v", result.Pages)
	}
	if progressCalls != 2 {
		t.Errorf("expected 2 progress calls, got %d", progressCalls)
	}
}

func TestOpenAIRecognizeContinuesPastFailedPage(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		// First page fails on every attempt; second page succeeds.
		if calls <= maxAttempts {
			http.Error(w, "overloaded", http.StatusInternalServerError)
			return
		}
		fmt.Fprint(w, `{"choices":[{"message":{"content":"second page"}}]}`)
	}))
	defer server.Close()

	cfg := &models.APIConfig{
		Provider:   models.ProviderOpenAICompatible,
		APIKey:     "k",
		APIBaseURL: server.URL,
		ModelName:  "m",
	}
	provider, err := NewProvider(cfg, Options{})
	if err != nil {
		t.Fatal(err)
	}

	dir := t.TempDir()
	result, err := provider.Recognize(context.Background(), &Request{
		ImagePaths: []string{
			writeTestImage(t, dir, "p1.png"),
			writeTestImage(t, dir, "p2.png"),
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	if result.PagesFailed != 1 {
		t.Errorf("expected 1 failed page, got %d", result.PagesFailed)
	}
	if len(result.Pages) != 2 {
		t.Fatalf("failed page must keep its slot, got %d pages", len(result.Pages))
	}
	if !strings.Contains(result.Pages[0], "page 1 failed") {
		t.Errorf("first page should be an error marker, got %q", result.Pages[0])
	}
	if result.Pages[1] != "second page" {
		t.Errorf("got %q", result.Pages[1])
	}
}

func TestMistralRecognize(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/files", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(32 << 20); err != nil {
			t.Errorf("upload is not multipart: %v", err)
		}
		if got := r.FormValue("purpose"); got != "ocr" {
			t.Errorf("purpose = %q", got)
		}
		fmt.Fprint(w, `{"id":"file-123"}`)
	})
	mux.HandleFunc("/v1/files/file-123/url", func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("expiry"); got != "24" {
			t.Errorf("expiry = %q", got)
		}
		fmt.Fprint(w, `{"url":"https://signed.example/doc.pdf"}`)
	})
	mux.HandleFunc("/v1/ocr", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"pages":[{"index":0,"markdown":"# Page one"},{"index":1,"markdown":"# Page two"}]}`)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	doc := filepath.Join(t.TempDir(), "input.pdf")
	if err := os.WriteFile(doc, []byte("%PDF-1.4 fake"), 0600); err != nil {
		t.Fatal(err)
	}

	cfg := &models.APIConfig{
		Provider:   models.ProviderMistral,
		APIKey:     "k",
		APIBaseURL: server.URL,
		ModelName:  "mistral-ocr-latest",
	}
	provider, err := NewProvider(cfg, Options{})
	if err != nil {
		t.Fatal(err)
	}

	result, err := provider.Recognize(context.Background(), &Request{InputPath: doc})
	if err != nil {
		t.Fatal(err)
	}

	if len(result.Pages) != 2 {
		t.Fatalf("expected 2 pages, got %v", result.Pages)
	}
	if result.Pages[0] != "# Page one" || result.Pages[1] != "# Page two" {
		t.Errorf("unexpected pages %v", result.Pages)
	}
}

func TestCheckConnection(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/models" {
			t.Errorf("path = %s", r.URL.Path)
		}
		fmt.Fprint(w, `{"data":[{"id":"a"},{"id":"b"}]}`)
	}))
	defer server.Close()

	cfg := &models.APIConfig{
		Provider:   models.ProviderOpenAICompatible,
		APIKey:     "k",
		APIBaseURL: server.URL,
	}
	result := CheckConnection(context.Background(), cfg, 0)
	if !result.Success {
		t.Fatalf("expected success, got %q", result.Message)
	}
	if result.Details["model_count"] != 2 {
		t.Errorf("model_count = %v", result.Details["model_count"])
	}
}

func TestCheckConnectionFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad key", http.StatusUnauthorized)
	}))
	defer server.Close()

	cfg := &models.APIConfig{
		Provider:   models.ProviderOpenAICompatible,
		APIKey:     "wrong",
		APIBaseURL: server.URL,
	}
	result := CheckConnection(context.Background(), cfg, 0)
	if result.Success {
		t.Fatal("expected failure")
	}
	if !strings.Contains(result.Message, "401") {
		t.Errorf("message should carry the status code: %q", result.Message)
	}
}

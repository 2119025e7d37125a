package convert

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestPreprocessMarkdownUnwrapsFencedFormulas(t *testing.T) {
	in := "Before\n```latex\n$$E = mc^2$$\n```\nAfter"
	got := PreprocessMarkdown(in)
	if strings.Contains(got, "```") {
		t.Errorf("fence should be removed: %q", got)
	}
	if !strings.Contains(got, "$$E = mc^2$$") {
		t.Errorf("formula should survive: %q", got)
	}
}

func TestPreprocessMarkdownMultiline(t *testing.T) {
	in := "```\n$$\\sum_{i=1}^{n} i\n= \\frac{n(n+1)}{2}$$\n```"
	got := PreprocessMarkdown(in)
	if strings.Contains(got, "```") {
		t.Errorf("multi-line formula fence should be removed: %q", got)
	}
}

func TestPreprocessMarkdownLeavesCodeAlone(t *testing.T) {
	in := "```go\nfunc main() {}\n```"
	if got := PreprocessMarkdown(in); got != in {
		t.Errorf("ordinary code fences must not change: %q", got)
	}
}

func TestRenderHTML(t *testing.T) {
	md := "# Title\n\n| a | b |\n|---|---|\n| 1 | 2 |\n\n~~gone~~"
	html, err := RenderHTML(md, "Doc Title")
	if err != nil {
		t.Fatal(err)
	}

	for _, want := range []string{"<!DOCTYPE html>", "<title>Doc Title</title>", "<h1", "<table>", "<del>gone</del>"} {
		if !strings.Contains(html, want) {
			t.Errorf("rendered HTML missing %q", want)
		}
	}
}

func TestContentTypeFor(t *testing.T) {
	tests := map[string]string{
		"a.pdf":  "application/pdf",
		"b.MD":   "text/markdown; charset=utf-8",
		"c.docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
		"d.png":  "image/png",
		"e.bin":  "application/octet-stream",
	}
	for path, want := range tests {
		if got := contentTypeFor(path); got != want {
			t.Errorf("%s: got %q, want %q", path, got, want)
		}
	}
}

func writeOutput(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("content"), 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestRegistryRegisterAndGet(t *testing.T) {
	r := NewRegistry(time.Hour, 5*time.Minute)
	path := writeOutput(t, t.TempDir(), "out.pdf")

	doc, err := r.Register(path, "job-1")
	if err != nil {
		t.Fatal(err)
	}
	if doc.DownloadURL != "/api/download/"+doc.DocumentID {
		t.Errorf("download URL %q", doc.DownloadURL)
	}
	if doc.ContentType != "application/pdf" {
		t.Errorf("content type %q", doc.ContentType)
	}

	got, ok := r.Get(doc.DocumentID)
	if !ok || got.Filename != "out.pdf" {
		t.Errorf("Get returned %+v, %v", got, ok)
	}

	if _, err := r.Register(filepath.Join(t.TempDir(), "missing.pdf"), "job-1"); err == nil {
		t.Error("registering a missing file should error")
	}
}

func TestRegistryByJob(t *testing.T) {
	r := NewRegistry(time.Hour, 5*time.Minute)
	dir := t.TempDir()
	r.Register(writeOutput(t, dir, "a.pdf"), "job-1")
	r.Register(writeOutput(t, dir, "b.pdf"), "job-1")
	r.Register(writeOutput(t, dir, "c.pdf"), "job-2")

	if got := len(r.ByJob("job-1")); got != 2 {
		t.Errorf("expected 2 documents for job-1, got %d", got)
	}
}

func TestRegistryCleanupExpired(t *testing.T) {
	r := NewRegistry(10*time.Millisecond, time.Hour)
	path := writeOutput(t, t.TempDir(), "old.pdf")
	doc, _ := r.Register(path, "job-1")

	time.Sleep(20 * time.Millisecond)

	if n := r.Cleanup(); n != 1 {
		t.Fatalf("expected 1 cleaned document, got %d", n)
	}
	if _, ok := r.Get(doc.DocumentID); ok {
		t.Error("document should be gone after cleanup")
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("file should be deleted from disk")
	}
}

func TestRegistryCleanupDownloadedFastPath(t *testing.T) {
	r := NewRegistry(time.Hour, 10*time.Millisecond)
	path := writeOutput(t, t.TempDir(), "served.pdf")
	doc, _ := r.Register(path, "job-1")

	if n := r.Cleanup(); n != 0 {
		t.Fatalf("fresh document must survive, cleaned %d", n)
	}

	r.MarkDownloaded(doc.DocumentID)
	time.Sleep(20 * time.Millisecond)

	if n := r.Cleanup(); n != 1 {
		t.Errorf("downloaded document should expire on the fast path, cleaned %d", n)
	}
}

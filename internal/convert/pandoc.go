package convert

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
)

// ErrPandocNotFound is returned when pandoc is not installed.
var ErrPandocNotFound = fmt.Errorf("pandoc executable not found (install pandoc or set PANDOC_EXECUTABLE)")

var (
	pandocOnce sync.Once
	pandocPath string
)

// PandocPath locates the pandoc executable. The PANDOC_EXECUTABLE
// environment variable takes priority over PATH lookup. The result is
// cached for the process lifetime.
func PandocPath() string {
	pandocOnce.Do(func() {
		if env := os.Getenv("PANDOC_EXECUTABLE"); env != "" {
			if _, err := os.Stat(env); err == nil {
				pandocPath = env
				return
			}
		}
		if p, err := exec.LookPath("pandoc"); err == nil {
			pandocPath = p
		}
	})
	return pandocPath
}

// PandocInstalled reports whether pandoc is available.
func PandocInstalled() bool {
	return PandocPath() != ""
}

// MarkdownToDocx converts markdown content to a .docx file via pandoc.
// The markdown is written to a temporary file so pandoc can resolve
// relative resources, and math is passed through with tex_math_dollars
// so $...$ formulas become Word equations.
func MarkdownToDocx(ctx context.Context, markdown, outputPath string) error {
	bin := PandocPath()
	if bin == "" {
		return ErrPandocNotFound
	}

	markdown = PreprocessMarkdown(markdown)

	tmp, err := os.CreateTemp(filepath.Dir(outputPath), "pandoc-*.md")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.WriteString(markdown); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	cmd := exec.CommandContext(ctx, bin,
		tmpPath,
		"-f", "markdown+tex_math_dollars+hard_line_breaks",
		"-t", "docx",
		"-o", outputPath,
	)
	out, err := cmd.CombinedOutput()
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		msg := strings.TrimSpace(string(out))
		if msg == "" {
			msg = err.Error()
		}
		return fmt.Errorf("pandoc failed: %s", msg)
	}
	return nil
}

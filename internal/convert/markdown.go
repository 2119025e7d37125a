package convert

import (
	"bytes"
	"fmt"
	"regexp"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

// OCR models often wrap display formulas in code fences, which breaks
// downstream math rendering. Unwrap ```...$$...$$...``` back to bare $$...$$.
var fencedFormulaRe = regexp.MustCompile("(?s)```[a-zA-Z]*\\s*(\\$\\$.*?\\$\\$)\\s*```")

// PreprocessMarkdown normalizes OCR-produced markdown before conversion.
func PreprocessMarkdown(content string) string {
	return fencedFormulaRe.ReplaceAllString(content, "$1")
}

// RenderHTML converts markdown to a complete styled HTML document with
// GFM extensions (tables, strikethrough, task lists).
func RenderHTML(markdown, title string) (string, error) {
	var htmlBuf bytes.Buffer
	md := goldmark.New(
		goldmark.WithExtensions(
			extension.GFM,
		),
	)
	if err := md.Convert([]byte(markdown), &htmlBuf); err != nil {
		return "", fmt.Errorf("failed to convert markdown: %w", err)
	}

	fullHTML := fmt.Sprintf(`<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>%s</title>
    <style>
        body {
            font-family: 'Segoe UI', Arial, sans-serif;
            line-height: 1.6;
            max-width: 800px;
            margin: 0 auto;
            padding: 40px 20px;
            color: #333;
        }
        h1, h2, h3 { color: #2c3e50; }
        code { background-color: #f4f4f4; padding: 2px 6px; border-radius: 3px; }
        pre { background-color: #2d2d2d; color: #f8f8f2; padding: 16px; border-radius: 6px; }
        table { border-collapse: collapse; width: 100%%; margin: 20px 0; }
        th, td { border: 1px solid #ddd; padding: 12px; text-align: left; }
        th { background-color: #3498db; color: white; }
        blockquote { border-left: 4px solid #3498db; margin: 16px 0; padding: 4px 16px; color: #555; }
        img { max-width: 100%%; }
    </style>
</head>
<body>
    %s
</body>
</html>`, title, htmlBuf.String())

	return fullHTML, nil
}

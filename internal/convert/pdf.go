package convert

import (
	"context"
	"os"
	"os/exec"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
)

// ChromiumInstalled reports whether a usable browser binary exists,
// preferring the configured path over a PATH lookup.
func ChromiumInstalled(chromiumPath string) bool {
	if chromiumPath != "" {
		if _, err := os.Stat(chromiumPath); err == nil {
			return true
		}
	}
	for _, name := range []string{"chromium-browser", "chromium", "google-chrome"} {
		if _, err := exec.LookPath(name); err == nil {
			return true
		}
	}
	return false
}

// HTMLToPDF renders an HTML document to an A4 PDF file using a headless
// Chromium instance.
func HTMLToPDF(ctx context.Context, htmlContent, outputPath, chromiumPath string) error {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.NoSandbox,
		chromedp.DisableGPU,
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("no-first-run", true),
		chromedp.Flag("no-default-browser-check", true),
	)
	if chromiumPath != "" {
		opts = append(opts, chromedp.ExecPath(chromiumPath))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, opts...)
	defer allocCancel()

	cctx, cancel := chromedp.NewContext(allocCtx)
	defer cancel()

	cctx, cancel = context.WithTimeout(cctx, 60*time.Second)
	defer cancel()

	var pdfBuffer []byte
	if err := chromedp.Run(cctx,
		chromedp.Navigate("about:blank"),
		chromedp.ActionFunc(func(ctx context.Context) error {
			frameTree, err := page.GetFrameTree().Do(ctx)
			if err != nil {
				return err
			}
			return page.SetDocumentContent(frameTree.Frame.ID, htmlContent).Do(ctx)
		}),
		chromedp.ActionFunc(func(ctx context.Context) error {
			var err error
			pdfBuffer, _, err = page.PrintToPDF().
				WithPrintBackground(true).
				WithDisplayHeaderFooter(false).
				WithMarginTop(0.4).
				WithMarginBottom(0.4).
				WithMarginLeft(0.4).
				WithMarginRight(0.4).
				WithPaperWidth(8.27).   // A4 width in inches
				WithPaperHeight(11.69). // A4 height in inches
				WithScale(1.0).
				Do(ctx)
			return err
		}),
	); err != nil {
		return err
	}

	return os.WriteFile(outputPath, pdfBuffer, 0600)
}

// MarkdownToPDF converts markdown content to an A4 PDF by rendering it
// to styled HTML first.
func MarkdownToPDF(ctx context.Context, markdown, title, outputPath, chromiumPath string) error {
	html, err := RenderHTML(PreprocessMarkdown(markdown), title)
	if err != nil {
		return err
	}
	return HTMLToPDF(ctx, html, outputPath, chromiumPath)
}

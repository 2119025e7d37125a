package pdfops

import (
	"context"
)

// CurvesArgs builds the Ghostscript argument list for text-to-outlines
// conversion.
func CurvesArgs(input, output string) []string {
	return []string{
		"-sDEVICE=pdfwrite",
		"-o", output,
		"-dNOPAUSE",
		"-dBATCH",
		"-dQUIET",
		"-dNoOutputFonts",
		input,
	}
}

// ConvertToCurves converts all text in a PDF to vector outlines using
// Ghostscript. The result has no embedded fonts, which makes it safe for
// print workflows.
func ConvertToCurves(ctx context.Context, input, output string) (*Result, error) {
	if err := runGhostscript(ctx, CurvesArgs(input, output)...); err != nil {
		return nil, err
	}

	return &Result{
		Success:      true,
		Message:      "text converted to curves",
		OutputPath:   output,
		OriginalSize: fileSize(input),
		FinalSize:    fileSize(output),
	}, nil
}

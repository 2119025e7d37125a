package pdfops

import (
	"context"
	"fmt"

	"github.com/pdfcpu/pdfcpu/pkg/api"
)

// Quality presets for optimization.
const (
	PresetLow      = "low"      // maximum compression
	PresetBalanced = "balanced" // recommended
	PresetHigh     = "high"     // light optimization
)

// gsPDFSettings maps quality presets to Ghostscript -dPDFSETTINGS values.
// See https://ghostscript.com/doc/current/VectorDevices.htm#PDFSETTINGS
var gsPDFSettings = map[string]string{
	PresetLow:      "/screen",
	PresetBalanced: "/ebook",
	PresetHigh:     "/printer",
}

// OptimizeArgs builds the Ghostscript argument list for a preset.
func OptimizeArgs(input, output, preset string) []string {
	settings, ok := gsPDFSettings[preset]
	if !ok {
		settings = gsPDFSettings[PresetBalanced]
	}
	return []string{
		"-sDEVICE=pdfwrite",
		"-dCompatibilityLevel=1.4",
		"-dPDFSETTINGS=" + settings,
		"-dNOPAUSE",
		"-dBATCH",
		"-dQUIET",
		"-o" + output,
		input,
	}
}

// Optimize rewrites a PDF with reduced size. The pdfcpu engine performs
// lossless structural optimization; the Ghostscript engine recompresses
// content according to the quality preset.
func Optimize(ctx context.Context, input, output, preset string, engine Engine, progress ProgressFunc) (*Result, error) {
	switch engine {
	case EngineGhostscript:
		if err := runGhostscript(ctx, OptimizeArgs(input, output, preset)...); err != nil {
			return nil, err
		}
	case EnginePDFCPU, "":
		if err := api.OptimizeFile(input, output, nil); err != nil {
			return nil, fmt.Errorf("optimize: %w", err)
		}
	default:
		return nil, fmt.Errorf("unknown optimize engine: %s", engine)
	}

	if progress != nil {
		progress(1, 1)
	}

	return &Result{
		Success:      true,
		Message:      "optimization complete",
		OutputPath:   output,
		OriginalSize: fileSize(input),
		FinalSize:    fileSize(output),
	}, nil
}

package pdfops

import (
	"context"
	"fmt"

	"github.com/pdfcpu/pdfcpu/pkg/api"
)

// MergeArgs builds the Ghostscript argument list for merging.
func MergeArgs(inputs []string, output string) []string {
	args := []string{
		"-dBATCH",
		"-dNOPAUSE",
		"-q",
		"-sDEVICE=pdfwrite",
		"-sOutputFile=" + output,
	}
	return append(args, inputs...)
}

// Merge concatenates the input PDFs into a single document, preserving
// input order. The pdfcpu engine is the default; the Ghostscript engine
// re-renders, which can repair damaged inputs.
func Merge(ctx context.Context, inputs []string, output string, engine Engine, progress ProgressFunc) (*Result, error) {
	if len(inputs) == 0 {
		return nil, fmt.Errorf("no input files to merge")
	}

	switch engine {
	case EngineGhostscript:
		if err := runGhostscript(ctx, MergeArgs(inputs, output)...); err != nil {
			return nil, err
		}
	case EnginePDFCPU, "":
		if err := api.MergeCreateFile(inputs, output, false, nil); err != nil {
			return nil, fmt.Errorf("merge: %w", err)
		}
	default:
		return nil, fmt.Errorf("unknown merge engine: %s", engine)
	}

	if progress != nil {
		progress(len(inputs), len(inputs))
	}

	return &Result{
		Success:    true,
		Message:    fmt.Sprintf("merged %d files", len(inputs)),
		OutputPath: output,
		FileCount:  len(inputs),
		FinalSize:  fileSize(output),
	}, nil
}

package pdfops

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

// gsImageDevices maps output formats to Ghostscript raster devices.
var gsImageDevices = map[string]string{
	"png":  "png16m",
	"jpg":  "jpeg",
	"jpeg": "jpeg",
	"tiff": "tiff24nc",
}

// RasterArgs builds the Ghostscript argument list for rasterizing a single
// page at the given resolution.
func RasterArgs(input, output, format string, page, dpi int) ([]string, error) {
	device, ok := gsImageDevices[format]
	if !ok {
		return nil, fmt.Errorf("unsupported image format: %s", format)
	}
	return []string{
		"-dQUIET",
		"-dNOPAUSE",
		"-dBATCH",
		"-sDEVICE=" + device,
		"-r" + strconv.Itoa(dpi),
		"-dFirstPage=" + strconv.Itoa(page),
		"-dLastPage=" + strconv.Itoa(page),
		"-sOutputFile=" + output,
		input,
	}, nil
}

// ToImages rasterizes every page of the input PDF into outDir. Returns the
// paths of the generated images, in page order.
func ToImages(ctx context.Context, input, outDir, format string, dpi int, progress ProgressFunc) ([]string, *Result, error) {
	if err := os.MkdirAll(outDir, 0700); err != nil {
		return nil, nil, fmt.Errorf("create output dir: %w", err)
	}

	total, err := PageCount(input)
	if err != nil {
		return nil, nil, err
	}

	paths := make([]string, 0, total)
	for page := 1; page <= total; page++ {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}

		output := filepath.Join(outDir, ImagePageName(input, page, total, dpi, format))
		args, err := RasterArgs(input, output, format, page, dpi)
		if err != nil {
			return nil, nil, err
		}
		if err := runGhostscript(ctx, args...); err != nil {
			return nil, nil, fmt.Errorf("rasterize page %d: %w", page, err)
		}

		paths = append(paths, output)
		if progress != nil {
			progress(page, total)
		}
	}

	return paths, &Result{
		Success:   true,
		Message:   fmt.Sprintf("converted to %d images", total),
		PageCount: total,
	}, nil
}

package convert

import (
	"fmt"

	"github.com/pdfcpu/pdfcpu/pkg/api"
)

// ImagesToPDF assembles one or more image files into a single PDF, one
// page per image.
func ImagesToPDF(imagePaths []string, outputPath string) error {
	if len(imagePaths) == 0 {
		return fmt.Errorf("no images to convert")
	}
	if err := api.ImportImagesFile(imagePaths, outputPath, nil, nil); err != nil {
		return fmt.Errorf("failed to import images: %w", err)
	}
	return nil
}

package processor

import (
	"bytes"
	"fmt"
	"image"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"

	"github.com/adverant/nexus/juxtapose-worker/internal/errors"
)

// Supported image extensions (matched case-insensitively).
var imageExtensions = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".webp": true,
	".gif": true, ".bmp": true, ".tif": true, ".tiff": true,
}

// CheckImageExtension rejects files whose extension is not a raster format
// the pipeline can decode. Files without an extension (e.g. temp uploads)
// pass and are judged by their content when loaded.
func CheckImageExtension(path string) error {
	ext := strings.ToLower(filepath.Ext(path))
	if ext == "" || imageExtensions[ext] {
		return nil
	}
	return errors.NewUnsupportedFormatError(path, ext)
}

// loadImage decodes the file at path. EXIF orientation is deliberately not
// applied so pixel coordinates match what the OCR engines see.
func loadImage(path string) (image.Image, error) {
	img, err := imaging.Open(path)
	if err != nil {
		return nil, err
	}
	if b := img.Bounds(); b.Dx() <= 0 || b.Dy() <= 0 {
		return nil, fmt.Errorf("image has no pixels: %dx%d", b.Dx(), b.Dy())
	}
	return img, nil
}

func sizeOf(img image.Image) ImageSize {
	b := img.Bounds()
	return ImageSize{Width: b.Dx(), Height: b.Dy()}
}

// DetectImageExtension names the raster format of data from its magic
// bytes, or returns "" when it is not recognized. Queue uploads arrive as
// raw bytes without a trustworthy filename.
func DetectImageExtension(data []byte) string {
	switch {
	case len(data) < 4:
		return ""

	// PNG: 0x89 'P' 'N' 'G' 0x0D 0x0A 0x1A 0x0A
	case bytes.HasPrefix(data, []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}):
		return ".png"

	// JPEG: 0xFF 0xD8 0xFF
	case bytes.HasPrefix(data, []byte{0xFF, 0xD8, 0xFF}):
		return ".jpg"

	// GIF87a / GIF89a
	case bytes.HasPrefix(data, []byte("GIF87a")), bytes.HasPrefix(data, []byte("GIF89a")):
		return ".gif"

	// WebP: 'R' 'I' 'F' 'F' .... 'W' 'E' 'B' 'P'
	case len(data) >= 12 && bytes.HasPrefix(data, []byte("RIFF")) && string(data[8:12]) == "WEBP":
		return ".webp"

	// TIFF, little and big endian
	case bytes.HasPrefix(data, []byte{0x49, 0x49, 0x2A, 0x00}), bytes.HasPrefix(data, []byte{0x4D, 0x4D, 0x00, 0x2A}):
		return ".tif"

	// JPEG 2000 signature box; recognized so it can be rejected by name
	case bytes.HasPrefix(data, []byte{0x00, 0x00, 0x00, 0x0C, 0x6A, 0x50, 0x20, 0x20}):
		return ".jp2"

	// PDF; recognized so it can be rejected by name
	case bytes.HasPrefix(data, []byte("%PDF")):
		return ".pdf"

	// BMP: 'B' 'M'
	case bytes.HasPrefix(data, []byte("BM")):
		return ".bmp"
	}
	return ""
}

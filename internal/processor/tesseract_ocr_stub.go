//go:build !gosseract

package processor

import (
	"context"
	"fmt"

	"github.com/adverant/nexus/juxtapose-worker/internal/errors"
)

// LibraryBackendLinked reports whether libtesseract is compiled in.
const LibraryBackendLinked = false

// TesseractOCR stands in for the library backend in builds without the
// gosseract tag. Every call fails with ENGINE_UNAVAILABLE.
type TesseractOCR struct{}

// NewTesseractOCR returns the stand-in; cfg is ignored.
func NewTesseractOCR(*TesseractConfig) *TesseractOCR {
	return &TesseractOCR{}
}

func (t *TesseractOCR) Name() Engine { return EngineTesseract }

func (t *TesseractOCR) Recognize(context.Context, string, Granularity) ([]TextUnit, error) {
	return nil, errors.NewEngineUnavailableError(string(EngineTesseract),
		fmt.Errorf("library backend not compiled in; rebuild with -tags gosseract or set TESSERACT_BACKEND=cli"))
}

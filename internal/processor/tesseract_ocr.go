//go:build gosseract

/**
 * Tesseract OCR - library backend
 *
 * Links libtesseract through gosseract instead of running the binary.
 * Letters come from the SYMBOL page-iterator level, words from WORD.
 * Built only with -tags gosseract, since it needs the tesseract and
 * leptonica headers at compile time.
 */

package processor

import (
	"context"
	"fmt"
	"strings"

	"github.com/otiai10/gosseract/v2"

	"github.com/adverant/nexus/juxtapose-worker/internal/errors"
)

// TesseractOCR handles OCR using the linked Tesseract library
type TesseractOCR struct {
	language       string
	tessdataPrefix string
	clientFactory  func() *gosseract.Client
}

// NewTesseractOCR creates a new Tesseract OCR instance. A client is created
// per Recognize call; gosseract clients are not safe to share.
func NewTesseractOCR(cfg *TesseractConfig) *TesseractOCR {
	lang := cfg.Language
	if lang == "" {
		lang = "eng"
	}
	return &TesseractOCR{
		language:       lang,
		tessdataPrefix: cfg.TessdataPrefix,
		clientFactory:  gosseract.NewClient,
	}
}

func (t *TesseractOCR) Name() Engine { return EngineTesseract }

// LibraryBackendLinked reports whether libtesseract is compiled in.
const LibraryBackendLinked = true

func iteratorLevel(g Granularity) gosseract.PageIteratorLevel {
	if g == GranularityLetter {
		return gosseract.RIL_SYMBOL
	}
	return gosseract.RIL_WORD
}

// Recognize performs OCR using Tesseract
func (t *TesseractOCR) Recognize(ctx context.Context, imagePath string, g Granularity) ([]TextUnit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	client := t.clientFactory()
	defer client.Close()

	if t.tessdataPrefix != "" {
		if err := client.SetTessdataPrefix(t.tessdataPrefix); err != nil {
			return nil, fmt.Errorf("failed to set tessdata prefix: %w", err)
		}
	}
	if err := client.SetLanguage(t.language); err != nil {
		return nil, fmt.Errorf("failed to set language: %w", err)
	}
	if err := client.SetPageSegMode(gosseract.PSM_AUTO); err != nil {
		return nil, fmt.Errorf("failed to set page segmentation mode: %w", err)
	}
	if err := client.SetImage(imagePath); err != nil {
		return nil, fmt.Errorf("failed to set image: %w", err)
	}

	boxes, err := client.GetBoundingBoxes(iteratorLevel(g))
	if err != nil {
		// Initialization is lazy in gosseract: missing traineddata shows up here.
		if strings.Contains(err.Error(), "TessBaseAPI") {
			return nil, errors.NewEngineUnavailableError(string(EngineTesseract), err)
		}
		return nil, fmt.Errorf("tesseract OCR failed: %w", err)
	}

	units := make([]TextUnit, 0, len(boxes))
	for _, b := range boxes {
		units = append(units, TextUnit{
			Text: b.Word,
			Box: BoundingBox{
				Left:   b.Box.Min.X,
				Top:    b.Box.Min.Y,
				Width:  b.Box.Dx(),
				Height: b.Box.Dy(),
			},
			Confidence:  b.Confidence / 100.0,
			Granularity: g,
		})
	}

	return units, nil
}

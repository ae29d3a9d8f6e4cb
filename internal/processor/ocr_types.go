/**
 * OCR Types - Shared data structures for extraction and composition
 *
 * Engine-specific output (gosseract boxes, hOCR, EasyOCR JSON) is normalized
 * into these types at the extractor boundary; the composer only sees them.
 */

package processor

import (
	"fmt"
	"image"
	"strings"

	"github.com/adverant/nexus/juxtapose-worker/internal/errors"
)

// Engine names an OCR backend
type Engine string

const (
	EngineTesseract Engine = "tesseract"
	EngineEasyOCR   Engine = "easyocr"
)

// ParseEngine accepts the engine names as well as the labels shown in the
// comparison UI ("Pytesseract", "EasyOCR").
func ParseEngine(s string) (Engine, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "tesseract", "pytesseract":
		return EngineTesseract, nil
	case "easyocr":
		return EngineEasyOCR, nil
	}
	return "", errors.NewEngineUnavailableError(s, fmt.Errorf("unknown engine"))
}

// Granularity is the unit of text recognition
type Granularity string

const (
	GranularityLetter Granularity = "letter"
	GranularityWord   Granularity = "word"
)

// ParseGranularity accepts "letter"/"word" and the plural UI spellings.
func ParseGranularity(s string) (Granularity, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "letter", "letters":
		return GranularityLetter, nil
	case "word", "words":
		return GranularityWord, nil
	}
	return "", errors.NewUnsupportedGranularityError(s)
}

// Valid reports whether g is one of the supported modes.
func (g Granularity) Valid() bool {
	return g == GranularityLetter || g == GranularityWord
}

// CollageFilename is the fixed artifact name for a comparison mode.
func (g Granularity) CollageFilename() string {
	return fmt.Sprintf("juxtaposed_%s_collage_final.png", g)
}

// SuccessMessage is the user-facing confirmation for a finished collage.
func (g Granularity) SuccessMessage() string {
	return fmt.Sprintf("Juxtaposed %s collage created successfully!", g)
}

// BoundingBox represents coordinates of a region in source-image pixels
type BoundingBox struct {
	Left   int
	Top    int
	Width  int
	Height int
}

func (b BoundingBox) Right() int  { return b.Left + b.Width }
func (b BoundingBox) Bottom() int { return b.Top + b.Height }

// Empty reports whether the box has no area.
func (b BoundingBox) Empty() bool { return b.Width <= 0 || b.Height <= 0 }

// Rect converts the box to an image.Rectangle.
func (b BoundingBox) Rect() image.Rectangle {
	return image.Rect(b.Left, b.Top, b.Right(), b.Bottom())
}

// Clip intersects the box with [0,width) x [0,height). The second return
// value is false when nothing of the box remains.
func (b BoundingBox) Clip(size ImageSize) (BoundingBox, bool) {
	x0 := max(b.Left, 0)
	y0 := max(b.Top, 0)
	x1 := min(b.Right(), size.Width)
	y1 := min(b.Bottom(), size.Height)
	if x1 <= x0 || y1 <= y0 {
		return BoundingBox{}, false
	}
	return BoundingBox{Left: x0, Top: y0, Width: x1 - x0, Height: y1 - y0}, true
}

// ImageSize holds source image dimensions
type ImageSize struct {
	Width  int
	Height int
}

// TextUnit is one recognized letter or word.
// Confidence is normalized to [0,1] for every engine.
type TextUnit struct {
	Text        string
	Box         BoundingBox
	Confidence  float64
	Granularity Granularity
}

// ExtractionResult holds the ordered units recognized in one image.
// It is immutable: accessors hand out copies.
type ExtractionResult struct {
	units       []TextUnit
	size        ImageSize
	sourcePath  string
	engine      Engine
	granularity Granularity
}

// NewExtractionResult copies units into a new result. A nil slice becomes
// an empty one.
func NewExtractionResult(sourcePath string, engine Engine, g Granularity, size ImageSize, units []TextUnit) *ExtractionResult {
	owned := make([]TextUnit, len(units))
	copy(owned, units)
	return &ExtractionResult{
		units:       owned,
		size:        size,
		sourcePath:  sourcePath,
		engine:      engine,
		granularity: g,
	}
}

// Units returns a copy of the recognized units in reading order.
func (r *ExtractionResult) Units() []TextUnit {
	out := make([]TextUnit, len(r.units))
	copy(out, r.units)
	return out
}

func (r *ExtractionResult) Len() int                 { return len(r.units) }
func (r *ExtractionResult) Empty() bool              { return len(r.units) == 0 }
func (r *ExtractionResult) Size() ImageSize          { return r.size }
func (r *ExtractionResult) SourcePath() string       { return r.sourcePath }
func (r *ExtractionResult) Engine() Engine           { return r.engine }
func (r *ExtractionResult) Granularity() Granularity { return r.granularity }

// Text joins the unit texts, one space between words; letters are joined
// without a separator.
func (r *ExtractionResult) Text() string {
	sep := " "
	if r.granularity == GranularityLetter {
		sep = ""
	}
	parts := make([]string, 0, len(r.units))
	for _, u := range r.units {
		parts = append(parts, u.Text)
	}
	return strings.Join(parts, sep)
}

// CollageArtifact describes the written side-by-side comparison image
type CollageArtifact struct {
	Path           string
	Width          int
	Height         int
	SeparatorWidth int
	UnitsA         int
	UnitsB         int
}

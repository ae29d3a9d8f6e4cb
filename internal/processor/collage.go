/**
 * Collage Composer - side-by-side annotated comparison image
 *
 * Each source is reloaded, every recognized unit is outlined on a copy,
 * and the two copies are pasted onto one white canvas with a separator
 * bar between them. The shorter image is top-aligned, never stretched.
 */

package processor

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"os"
	"path/filepath"
	"time"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/adverant/nexus/juxtapose-worker/internal/errors"
	"github.com/adverant/nexus/juxtapose-worker/internal/logging"
)

// Default separator between the two halves, in pixels.
const DefaultSeparatorWidth = 10

// NoTextLabel is drawn on a half whose extraction found nothing.
const NoTextLabel = "no text detected"

var (
	boxColor       = color.NRGBA{R: 255, A: 255}
	separatorColor = color.NRGBA{R: 64, G: 64, B: 64, A: 255}
	canvasColor    = color.NRGBA{R: 255, G: 255, B: 255, A: 255}
	labelColor     = color.NRGBA{A: 255}
)

const boxStroke = 2

// Composer renders two extraction results into one collage file
type Composer interface {
	Compose(ctx context.Context, a, b *ExtractionResult, imagePathA, imagePathB string) (*CollageArtifact, error)
}

// ComposerOptions configures a CollageComposer
type ComposerOptions struct {
	OutputDir      string
	SeparatorWidth int
}

// CollageComposer writes juxtaposed_<granularity>_collage_final.png
type CollageComposer struct {
	granularity Granularity
	outputDir   string
	separator   int
	logger      *logging.Logger
}

// NewCollageComposer creates a composer for one granularity. An empty
// output directory means the current working directory.
func NewCollageComposer(g Granularity, opts ComposerOptions) *CollageComposer {
	dir := opts.OutputDir
	if dir == "" {
		dir = "."
	}
	sep := opts.SeparatorWidth
	if sep < 0 {
		sep = 0
	}
	return &CollageComposer{
		granularity: g,
		outputDir:   dir,
		separator:   sep,
		logger:      logging.NewLogger("composer").With("granularity", string(g)),
	}
}

// InDir returns a copy of the composer writing into dir.
func (c *CollageComposer) InDir(dir string) *CollageComposer {
	cp := *c
	if dir != "" {
		cp.outputDir = dir
	}
	return &cp
}

// OutputPath is where Compose writes the collage.
func (c *CollageComposer) OutputPath() string {
	return filepath.Join(c.outputDir, c.granularity.CollageFilename())
}

// Compose annotates both images and writes the collage, replacing any
// previous artifact at OutputPath. Empty results are not an error.
func (c *CollageComposer) Compose(ctx context.Context, a, b *ExtractionResult, imagePathA, imagePathB string) (*CollageArtifact, error) {
	if a == nil || b == nil {
		return nil, fmt.Errorf("compose: extraction result is nil")
	}
	startTime := time.Now()

	left, err := c.annotate(imagePathA, a)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	right, err := c.annotate(imagePathB, b)
	if err != nil {
		return nil, err
	}

	canvas := c.juxtapose(left, right)
	path := c.OutputPath()
	if err := writePNGAtomic(path, canvas); err != nil {
		return nil, errors.NewWriteFailedError(path, err)
	}

	bounds := canvas.Bounds()
	c.logger.Info("Collage written",
		"path", path,
		"width", bounds.Dx(),
		"height", bounds.Dy(),
		"units_a", a.Len(),
		"units_b", b.Len(),
		"duration", time.Since(startTime))

	return &CollageArtifact{
		Path:           path,
		Width:          bounds.Dx(),
		Height:         bounds.Dy(),
		SeparatorWidth: c.separator,
		UnitsA:         a.Len(),
		UnitsB:         b.Len(),
	}, nil
}

// annotate reloads the source and draws every unit on a copy of it.
func (c *CollageComposer) annotate(path string, result *ExtractionResult) (*image.NRGBA, error) {
	src, err := loadImage(path)
	if err != nil {
		return nil, errors.NewEmptyInputError(path, err)
	}

	img := imaging.Clone(src)
	for _, u := range result.Units() {
		strokeRect(img, u.Box.Rect(), boxStroke, boxColor)
	}
	if result.Empty() {
		drawLabel(img, NoTextLabel)
	}
	return img, nil
}

// juxtapose pastes left and right onto a white canvas, top-aligned, with
// the separator bar between them.
func (c *CollageComposer) juxtapose(left, right *image.NRGBA) *image.NRGBA {
	wl, hl := left.Bounds().Dx(), left.Bounds().Dy()
	wr, hr := right.Bounds().Dx(), right.Bounds().Dy()

	canvas := imaging.New(wl+c.separator+wr, max(hl, hr), canvasColor)
	if c.separator > 0 {
		bar := image.Rect(wl, 0, wl+c.separator, canvas.Bounds().Dy())
		draw.Draw(canvas, bar, image.NewUniform(separatorColor), image.Point{}, draw.Src)
	}
	canvas = imaging.Paste(canvas, left, image.Pt(0, 0))
	canvas = imaging.Paste(canvas, right, image.Pt(wl+c.separator, 0))
	return canvas
}

// strokeRect outlines r with a stroke drawn inward, clipped to img.
func strokeRect(img draw.Image, r image.Rectangle, stroke int, col color.Color) {
	r = r.Intersect(img.Bounds())
	if r.Empty() {
		return
	}
	s := min(stroke, r.Dx(), r.Dy())
	fill := image.NewUniform(col)
	edges := []image.Rectangle{
		image.Rect(r.Min.X, r.Min.Y, r.Max.X, r.Min.Y+s), // top
		image.Rect(r.Min.X, r.Max.Y-s, r.Max.X, r.Max.Y), // bottom
		image.Rect(r.Min.X, r.Min.Y, r.Min.X+s, r.Max.Y), // left
		image.Rect(r.Max.X-s, r.Min.Y, r.Max.X, r.Max.Y), // right
	}
	for _, e := range edges {
		draw.Draw(img, e, fill, image.Point{}, draw.Src)
	}
}

// drawLabel writes text in the top-left corner on a white plate.
func drawLabel(img draw.Image, text string) {
	face := basicfont.Face7x13
	const pad = 4
	width := font.MeasureString(face, text).Ceil()
	plate := image.Rect(0, 0, width+2*pad, face.Height+2*pad).Intersect(img.Bounds())
	draw.Draw(img, plate, image.NewUniform(canvasColor), image.Point{}, draw.Src)

	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(labelColor),
		Face: face,
		Dot:  fixed.P(pad, pad+face.Ascent),
	}
	d.DrawString(text)
}

// writePNGAtomic encodes img next to path and renames it into place, so a
// reader never sees a partially written collage.
func writePNGAtomic(path string, img image.Image) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp := filepath.Join(dir, fmt.Sprintf(".%s.%s.tmp", filepath.Base(path), uuid.New().String()))

	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if err := imaging.Encode(f, img, imaging.PNG); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}

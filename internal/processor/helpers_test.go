package processor

import (
	"context"
	"image"
	"image/color"
	"image/draw"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"testing"

	"github.com/disintegration/imaging"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// writeBlankPNG writes a white w x h PNG and returns its path.
func writeBlankPNG(t *testing.T, dir, name string, w, h int) string {
	t.Helper()
	img := imaging.New(w, h, color.White)
	path := filepath.Join(dir, name)
	if err := imaging.Save(img, path); err != nil {
		t.Fatalf("save %s: %v", name, err)
	}
	return path
}

// writeTextPNG renders text in basicfont and scales it up so OCR engines
// can read it.
func writeTextPNG(t *testing.T, dir, name, text string) string {
	t.Helper()
	face := basicfont.Face7x13
	width := font.MeasureString(face, text).Ceil() + 20
	img := image.NewRGBA(image.Rect(0, 0, width, 30))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: color.White}, image.Point{}, draw.Src)

	d := &font.Drawer{
		Dst:  img,
		Src:  image.Black,
		Face: face,
		Dot:  fixed.P(10, 20),
	}
	d.DrawString(text)

	scaled := imaging.Resize(img, width*4, 0, imaging.NearestNeighbor)
	path := filepath.Join(dir, name)
	if err := imaging.Save(scaled, path); err != nil {
		t.Fatalf("save %s: %v", name, err)
	}
	return path
}

func ensureTesseractAvailable(t *testing.T) string {
	t.Helper()
	path, err := exec.LookPath("tesseract")
	if err != nil {
		t.Skip("tesseract not installed in PATH")
	}
	return path
}

// fakeRecognizer returns canned units per granularity and records calls.
type fakeRecognizer struct {
	engine Engine
	units  map[Granularity][]TextUnit
	err    error

	mu    sync.Mutex
	calls []string
}

func (f *fakeRecognizer) Name() Engine { return f.engine }

func (f *fakeRecognizer) Recognize(ctx context.Context, path string, g Granularity) ([]TextUnit, error) {
	f.mu.Lock()
	f.calls = append(f.calls, filepath.Base(path)+":"+string(g))
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.units[g], nil
}

func word(text string, left, top, width, height int, conf float64) TextUnit {
	return TextUnit{
		Text:       text,
		Box:        BoundingBox{Left: left, Top: top, Width: width, Height: height},
		Confidence: conf,
	}
}

func countColor(img image.Image, rect image.Rectangle, want color.NRGBA) int {
	n := 0
	for y := rect.Min.Y; y < rect.Max.Y; y++ {
		for x := rect.Min.X; x < rect.Max.X; x++ {
			if color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA) == want {
				n++
			}
		}
	}
	return n
}

func readFile(t *testing.T, path string) []byte {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return data
}

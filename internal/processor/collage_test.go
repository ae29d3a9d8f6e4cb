package processor

import (
	"bytes"
	"context"
	"image"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/disintegration/imaging"

	"github.com/adverant/nexus/juxtapose-worker/internal/errors"
)

func threeWords() []TextUnit {
	return []TextUnit{
		word("one", 10, 10, 40, 20, 0.9),
		word("two", 70, 10, 40, 20, 0.9),
		word("three", 10, 60, 40, 20, 0.9),
	}
}

func TestComposeScenarioThreeVersusNone(t *testing.T) {
	dir := t.TempDir()
	pathA := writeBlankPNG(t, dir, "a.png", 200, 100)
	pathB := writeBlankPNG(t, dir, "b.png", 200, 100)

	a := NewExtractionResult(pathA, EngineTesseract, GranularityWord, ImageSize{200, 100}, threeWords())
	b := NewExtractionResult(pathB, EngineTesseract, GranularityWord, ImageSize{200, 100}, nil)

	c := NewCollageComposer(GranularityWord, ComposerOptions{OutputDir: dir, SeparatorWidth: DefaultSeparatorWidth})
	artifact, err := c.Compose(context.Background(), a, b, pathA, pathB)
	if err != nil {
		t.Fatalf("Compose() error = %v", err)
	}

	if artifact.Width != 400+DefaultSeparatorWidth || artifact.Height != 100 {
		t.Fatalf("artifact size = %dx%d", artifact.Width, artifact.Height)
	}
	if artifact.UnitsA != 3 || artifact.UnitsB != 0 {
		t.Fatalf("artifact units = %d/%d", artifact.UnitsA, artifact.UnitsB)
	}
	if filepath.Base(artifact.Path) != "juxtaposed_word_collage_final.png" {
		t.Fatalf("artifact path = %s", artifact.Path)
	}

	img, err := imaging.Open(artifact.Path)
	if err != nil {
		t.Fatalf("open collage: %v", err)
	}
	if img.Bounds().Dx() != artifact.Width || img.Bounds().Dy() != artifact.Height {
		t.Fatalf("written image is %v", img.Bounds())
	}

	// Each 40x20 box outlined with a 2px stroke: 40*20 - 36*16 pixels.
	perBox := 40*20 - 36*16
	if got := countColor(img, image.Rect(0, 0, 200, 100), boxColor); got != 3*perBox {
		t.Fatalf("side A has %d box pixels, want %d", got, 3*perBox)
	}
	sideB := image.Rect(200+DefaultSeparatorWidth, 0, artifact.Width, 100)
	if got := countColor(img, sideB, boxColor); got != 0 {
		t.Fatalf("side B has %d box pixels, want 0", got)
	}
	if got := countColor(img, sideB, labelColor); got == 0 {
		t.Fatal("side B should carry the no-text label")
	}
	bar := image.Rect(200, 0, 200+DefaultSeparatorWidth, 100)
	if got := countColor(img, bar, separatorColor); got != DefaultSeparatorWidth*100 {
		t.Fatalf("separator has %d pixels, want %d", got, DefaultSeparatorWidth*100)
	}
}

func TestComposeDifferentSizesPadsWithoutStretching(t *testing.T) {
	dir := t.TempDir()
	pathA := writeBlankPNG(t, dir, "a.png", 120, 80)
	pathB := writeBlankPNG(t, dir, "b.jpg", 60, 150)

	a := NewExtractionResult(pathA, EngineEasyOCR, GranularityLetter, ImageSize{120, 80}, []TextUnit{word("x", 0, 0, 10, 10, 1)})
	b := NewExtractionResult(pathB, EngineEasyOCR, GranularityLetter, ImageSize{60, 150}, []TextUnit{word("y", 50, 140, 10, 10, 1)})

	for _, sep := range []int{0, 7} {
		c := NewCollageComposer(GranularityLetter, ComposerOptions{OutputDir: dir, SeparatorWidth: sep})
		artifact, err := c.Compose(context.Background(), a, b, pathA, pathB)
		if err != nil {
			t.Fatalf("Compose() error = %v", err)
		}
		if artifact.Width != 120+sep+60 || artifact.Height != 150 {
			t.Fatalf("sep=%d: size = %dx%d", sep, artifact.Width, artifact.Height)
		}

		img, err := imaging.Open(artifact.Path)
		if err != nil {
			t.Fatal(err)
		}
		// The area under the shorter image is padding, not stretched pixels.
		if got := countColor(img, image.Rect(0, 80, 120, 150), boxColor); got != 0 {
			t.Fatalf("sep=%d: padding contains box pixels", sep)
		}
		if got := countColor(img, image.Rect(0, 80, 120, 150), canvasColor); got != 120*70 {
			t.Fatalf("sep=%d: padding should be plain canvas, got %d canvas pixels", sep, got)
		}
		// B's box sits in its bottom-right corner, offset by A and the separator.
		corner := image.Rect(120+sep+50, 140, 120+sep+60, 150)
		if got := countColor(img, corner, boxColor); got == 0 {
			t.Fatalf("sep=%d: box on side B not found at its offset", sep)
		}
	}
}

func TestComposeIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	pathA := writeBlankPNG(t, dir, "a.png", 200, 100)
	pathB := writeBlankPNG(t, dir, "b.png", 150, 90)
	a := NewExtractionResult(pathA, EngineTesseract, GranularityWord, ImageSize{200, 100}, threeWords())
	b := NewExtractionResult(pathB, EngineTesseract, GranularityWord, ImageSize{150, 90}, threeWords()[:1])

	c := NewCollageComposer(GranularityWord, ComposerOptions{OutputDir: dir, SeparatorWidth: 10})
	if err := os.WriteFile(c.OutputPath(), []byte("stale artifact"), 0o644); err != nil {
		t.Fatal(err)
	}

	first, err := c.Compose(context.Background(), a, b, pathA, pathB)
	if err != nil {
		t.Fatalf("first Compose() error = %v", err)
	}
	firstBytes := readFile(t, first.Path)

	second, err := c.Compose(context.Background(), a, b, pathA, pathB)
	if err != nil {
		t.Fatalf("second Compose() error = %v", err)
	}
	if first.Path != second.Path {
		t.Fatalf("paths differ: %s vs %s", first.Path, second.Path)
	}
	if !bytes.Equal(firstBytes, readFile(t, second.Path)) {
		t.Fatal("repeated compose must produce identical bytes")
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".tmp") {
			t.Fatalf("temp file left behind: %s", e.Name())
		}
	}
}

func TestComposeDoesNotModifySources(t *testing.T) {
	dir := t.TempDir()
	pathA := writeBlankPNG(t, dir, "a.png", 50, 50)
	before := readFile(t, pathA)

	a := NewExtractionResult(pathA, EngineTesseract, GranularityWord, ImageSize{50, 50}, []TextUnit{word("x", 5, 5, 20, 20, 1)})
	c := NewCollageComposer(GranularityWord, ComposerOptions{OutputDir: dir})
	if _, err := c.Compose(context.Background(), a, a, pathA, pathA); err != nil {
		t.Fatalf("Compose() error = %v", err)
	}
	if !bytes.Equal(before, readFile(t, pathA)) {
		t.Fatal("source image was modified")
	}
}

func TestComposeMissingSource(t *testing.T) {
	dir := t.TempDir()
	pathA := writeBlankPNG(t, dir, "a.png", 20, 20)
	missing := filepath.Join(dir, "gone.png")
	a := NewExtractionResult(pathA, EngineTesseract, GranularityWord, ImageSize{20, 20}, nil)

	c := NewCollageComposer(GranularityWord, ComposerOptions{OutputDir: dir})
	_, err := c.Compose(context.Background(), a, a, pathA, missing)
	if !errors.HasCode(err, errors.ErrorEmptyInput) {
		t.Fatalf("expected EMPTY_INPUT, got %v", err)
	}
	if _, statErr := os.Stat(c.OutputPath()); !os.IsNotExist(statErr) {
		t.Fatal("no collage should be written when a source is missing")
	}
}

func TestComposerInDir(t *testing.T) {
	c := NewCollageComposer(GranularityLetter, ComposerOptions{})
	if c.OutputPath() != "juxtaposed_letter_collage_final.png" {
		t.Fatalf("default output path = %s", c.OutputPath())
	}
	moved := c.InDir("out")
	if moved.OutputPath() != filepath.Join("out", "juxtaposed_letter_collage_final.png") {
		t.Fatalf("moved output path = %s", moved.OutputPath())
	}
	if c.OutputPath() != "juxtaposed_letter_collage_final.png" {
		t.Fatal("InDir must not modify the original composer")
	}
}

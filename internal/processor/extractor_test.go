package processor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/adverant/nexus/juxtapose-worker/internal/errors"
)

func TestExtractClipsAndOrders(t *testing.T) {
	dir := t.TempDir()
	path := writeBlankPNG(t, dir, "a.png", 200, 100)

	rec := &fakeRecognizer{engine: EngineTesseract, units: map[Granularity][]TextUnit{
		GranularityWord: {
			word("second", 120, 10, 100, 30, 0.9), // runs past the right edge
			word("first", -10, 12, 60, 30, 0.9),   // starts left of the image
		},
	}}
	ex := NewEngineExtractor(rec, NormalizeOptions{})

	result, err := ex.Extract(context.Background(), path, GranularityWord)
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if result.Size() != (ImageSize{200, 100}) {
		t.Fatalf("unexpected size %+v", result.Size())
	}
	units := result.Units()
	if len(units) != 2 || units[0].Text != "first" || units[1].Text != "second" {
		t.Fatalf("unexpected units: %+v", units)
	}
	for _, u := range units {
		if u.Box.Left < 0 || u.Box.Top < 0 || u.Box.Right() > 200 || u.Box.Bottom() > 100 {
			t.Fatalf("box out of bounds: %+v", u.Box)
		}
	}
}

func TestExtractBlankImageIsEmptyNotError(t *testing.T) {
	path := writeBlankPNG(t, t.TempDir(), "blank.png", 50, 50)
	ex := NewEngineExtractor(&fakeRecognizer{engine: EngineTesseract}, NormalizeOptions{})

	for _, g := range []Granularity{GranularityLetter, GranularityWord} {
		result, err := ex.Extract(context.Background(), path, g)
		if err != nil {
			t.Fatalf("Extract(%s) error = %v", g, err)
		}
		if result == nil || result.Units() == nil || !result.Empty() {
			t.Fatalf("Extract(%s) must return an empty, non-nil result", g)
		}
	}
}

func TestExtractMissingFile(t *testing.T) {
	rec := &fakeRecognizer{engine: EngineTesseract}
	ex := NewEngineExtractor(rec, NormalizeOptions{})

	result, err := ex.Extract(context.Background(), filepath.Join(t.TempDir(), "missing.png"), GranularityWord)
	if result != nil {
		t.Fatalf("expected no result, got %+v", result)
	}
	if !errors.HasCode(err, errors.ErrorImageLoadFailed) {
		t.Fatalf("expected IMAGE_LOAD_FAILED, got %v", err)
	}
	if len(rec.calls) != 0 {
		t.Fatalf("engine must not run for an unreadable image: %v", rec.calls)
	}
}

func TestExtractCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "corrupt.png")
	if err := os.WriteFile(path, []byte("\x89PNG not really"), 0o644); err != nil {
		t.Fatal(err)
	}
	ex := NewEngineExtractor(&fakeRecognizer{engine: EngineTesseract}, NormalizeOptions{})
	if _, err := ex.Extract(context.Background(), path, GranularityLetter); !errors.HasCode(err, errors.ErrorImageLoadFailed) {
		t.Fatalf("expected IMAGE_LOAD_FAILED, got %v", err)
	}
}

func TestExtractUnsupportedGranularity(t *testing.T) {
	path := writeBlankPNG(t, t.TempDir(), "a.png", 10, 10)
	ex := NewEngineExtractor(&fakeRecognizer{engine: EngineTesseract}, NormalizeOptions{})
	if _, err := ex.Extract(context.Background(), path, Granularity("sentence")); !errors.HasCode(err, errors.ErrorUnsupportedGranularity) {
		t.Fatalf("expected UNSUPPORTED_GRANULARITY, got %v", err)
	}
}

func TestExtractErrorMapping(t *testing.T) {
	path := writeBlankPNG(t, t.TempDir(), "a.png", 10, 10)

	tests := []struct {
		name string
		err  error
		code errors.ErrorCode
	}{
		{"engine crash", fmt.Errorf("segfault"), errors.ErrorOCRFailed},
		{"coded error passes through", errors.NewEngineUnavailableError("tesseract", nil), errors.ErrorEngineUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ex := NewEngineExtractor(&fakeRecognizer{engine: EngineTesseract, err: tt.err}, NormalizeOptions{})
			_, err := ex.Extract(context.Background(), path, GranularityWord)
			if !errors.HasCode(err, tt.code) {
				t.Fatalf("expected %s, got %v", tt.code, err)
			}
		})
	}
}

func TestUnavailableRecognizerSurfacesError(t *testing.T) {
	path := writeBlankPNG(t, t.TempDir(), "a.png", 10, 10)
	ex := NewEngineExtractor(unavailableRecognizer{engine: EngineEasyOCR, err: fmt.Errorf("python not found")}, NormalizeOptions{})
	if _, err := ex.Extract(context.Background(), path, GranularityWord); !errors.HasCode(err, errors.ErrorEngineUnavailable) {
		t.Fatalf("expected ENGINE_UNAVAILABLE, got %v", err)
	}
}

// writeFakeTesseract installs a script that records its arguments and
// prints canned hOCR, so the CLI backend can be exercised without tesseract.
func writeFakeTesseract(t *testing.T, hocr string) (bin, argsFile string) {
	t.Helper()
	dir := t.TempDir()
	out := filepath.Join(dir, "page.hocr")
	if err := os.WriteFile(out, []byte(hocr), 0o644); err != nil {
		t.Fatal(err)
	}
	argsFile = filepath.Join(dir, "args.txt")
	bin = filepath.Join(dir, "tesseract")
	script := "#!/bin/sh\necho \"$@\" >> '" + argsFile + "'\ncat '" + out + "'\n"
	if err := os.WriteFile(bin, []byte(script), 0o755); err != nil {
		t.Fatal(err)
	}
	return bin, argsFile
}

func TestTesseractCLIRoutesGranularity(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell script stand-in needs a POSIX shell")
	}
	bin, argsFile := writeFakeTesseract(t, sampleHOCR)
	img := writeBlankPNG(t, t.TempDir(), "a.png", 400, 100)
	ex := NewEngineExtractor(NewTesseractCLI(TesseractCLIConfig{Binary: bin}), NormalizeOptions{})

	letters, err := ex.Extract(context.Background(), img, GranularityLetter)
	if err != nil {
		t.Fatalf("letter Extract() error = %v", err)
	}
	words, err := ex.Extract(context.Background(), img, GranularityWord)
	if err != nil {
		t.Fatalf("word Extract() error = %v", err)
	}
	if letters.Text() != "Hi" || words.Text() != "Hi there&" {
		t.Fatalf("letters=%q words=%q", letters.Text(), words.Text())
	}

	calls := strings.Split(strings.TrimSpace(string(readFile(t, argsFile))), "\n")
	if len(calls) != 2 {
		t.Fatalf("expected 2 invocations, got %q", calls)
	}
	if !strings.Contains(calls[0], "hocr_char_boxes=1") || strings.Contains(calls[1], "hocr_char_boxes=1") {
		t.Fatalf("letter and word mode must use distinct configurations: %q", calls)
	}
}

func TestTesseractCLIMissingBinary(t *testing.T) {
	cli := NewTesseractCLI(TesseractCLIConfig{Binary: filepath.Join(t.TempDir(), "tesseract")})
	_, err := cli.Recognize(context.Background(), "a.png", GranularityWord)
	if !errors.HasCode(err, errors.ErrorEngineUnavailable) {
		t.Fatalf("expected ENGINE_UNAVAILABLE, got %v", err)
	}
}

func TestTesseractIntegration(t *testing.T) {
	bin := ensureTesseractAvailable(t)
	dir := t.TempDir()
	img := writeTextPNG(t, dir, "hello.png", "HELLO WORLD")

	ex := NewEngineExtractor(NewTesseractCLI(TesseractCLIConfig{Binary: bin}), NormalizeOptions{})
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	words, err := ex.Extract(ctx, img, GranularityWord)
	if err != nil {
		t.Fatalf("word Extract() error = %v", err)
	}
	letters, err := ex.Extract(ctx, img, GranularityLetter)
	if err != nil {
		t.Fatalf("letter Extract() error = %v", err)
	}
	if words.Empty() {
		t.Fatal("expected words in rendered text")
	}
	if letters.Empty() {
		t.Skip("tesseract build does not emit character boxes in hOCR")
	}
	if letters.Len() < words.Len() {
		t.Fatalf("letters (%d) should not be fewer than words (%d)", letters.Len(), words.Len())
	}
	size := words.Size()
	for _, u := range append(words.Units(), letters.Units()...) {
		if u.Box.Left < 0 || u.Box.Top < 0 || u.Box.Right() > size.Width || u.Box.Bottom() > size.Height {
			t.Fatalf("box out of bounds: %+v", u.Box)
		}
	}

	blank := writeBlankPNG(t, dir, "blank.png", 300, 120)
	empty, err := ex.Extract(ctx, blank, GranularityWord)
	if err != nil {
		t.Fatalf("blank Extract() error = %v", err)
	}
	if !empty.Empty() {
		t.Fatalf("blank image should yield no words, got %q", empty.Text())
	}
}

package main

import (
	"bytes"
	"context"
	"image/color"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/disintegration/imaging"

	"github.com/adverant/nexus/juxtapose-worker/internal/config"
)

const emptyHOCR = `<html><body><div class='ocr_page' title='bbox 0 0 10 10'></div></body></html>`

// writeFakeTesseract installs a script that answers every call with an
// hOCR page containing no words.
func writeFakeTesseract(t *testing.T) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell script stand-in needs a POSIX shell")
	}
	dir := t.TempDir()
	page := filepath.Join(dir, "page.hocr")
	if err := os.WriteFile(page, []byte(emptyHOCR), 0o644); err != nil {
		t.Fatal(err)
	}
	bin := filepath.Join(dir, "tesseract")
	if err := os.WriteFile(bin, []byte("#!/bin/sh\ncat '"+page+"'\n"), 0o755); err != nil {
		t.Fatal(err)
	}
	return bin
}

func writeWhitePNG(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := imaging.Save(imaging.New(40, 30, color.White), path); err != nil {
		t.Fatal(err)
	}
	return path
}

func testConfig(t *testing.T, tesseractPath string) *config.Config {
	t.Helper()
	dir := t.TempDir()
	return &config.Config{
		Engine:            "tesseract",
		Granularity:       "word",
		TesseractPath:     tesseractPath,
		TesseractBackend:  "cli",
		TesseractLanguage: "eng",
		PythonPath:        filepath.Join(dir, "missing-python"),
		EasyOCRLanguages:  []string{"en"},
		OutputDir:         dir,
		SeparatorWidth:    10,
		ExtractionTimeout: time.Minute,
		WorkerConcurrency: 2,
	}
}

func TestRunCompareNoTextIsNotAnError(t *testing.T) {
	cfg := testConfig(t, writeFakeTesseract(t))
	dir := t.TempDir()
	cmd := &compareCmd{ImageA: writeWhitePNG(t, dir, "a.png"), ImageB: writeWhitePNG(t, dir, "b.png")}

	var out bytes.Buffer
	if code := runCompare(context.Background(), cfg, cmd, &out); code != exitOK {
		t.Fatalf("exit code = %d, output:\n%s", code, out.String())
	}
	got := out.String()
	if strings.Count(got, "no text detected") != 2 {
		t.Fatalf("both sides should report no text:\n%s", got)
	}
	if strings.Contains(got, "could not process image") {
		t.Fatalf("empty result reported as a failure:\n%s", got)
	}
	if _, err := os.Stat(filepath.Join(cfg.OutputDir, "juxtaposed_word_collage_final.png")); err != nil {
		t.Fatalf("collage not written: %v", err)
	}
}

func TestRunCompareFailures(t *testing.T) {
	dir := t.TempDir()
	png := writeWhitePNG(t, dir, "a.png")

	tests := []struct {
		name      string
		tesseract string
		cmd       compareCmd
		code      int
		mention   string
	}{
		{
			name: "unsupported extension", tesseract: "",
			cmd:  compareCmd{ImageA: png, ImageB: filepath.Join(dir, "b.jp2")},
			code: exitUsage, mention: "UNSUPPORTED_FORMAT",
		},
		{
			name: "unsupported granularity", tesseract: "",
			cmd:  compareCmd{selection: selection{Granularity: "line"}, ImageA: png, ImageB: png},
			code: exitUsage, mention: "UNSUPPORTED_GRANULARITY",
		},
		{
			name: "engine unavailable", tesseract: filepath.Join(dir, "no-tesseract"),
			cmd:  compareCmd{ImageA: png, ImageB: png},
			code: exitUnavailable, mention: "ENGINE_UNAVAILABLE",
		},
		{
			name: "missing image", tesseract: "fake",
			cmd:  compareCmd{ImageA: png, ImageB: filepath.Join(dir, "gone.png")},
			code: exitFailed, mention: "IMAGE_LOAD_FAILED",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bin := tt.tesseract
			if bin == "" || bin == "fake" {
				bin = writeFakeTesseract(t)
			}
			cmd := tt.cmd
			var out bytes.Buffer
			code := runCompare(context.Background(), testConfig(t, bin), &cmd, &out)
			if code != tt.code {
				t.Fatalf("exit code = %d, want %d; output:\n%s", code, tt.code, out.String())
			}
			if !strings.HasPrefix(out.String(), "could not process image") || !strings.Contains(out.String(), tt.mention) {
				t.Fatalf("output should report %s as a processing failure:\n%s", tt.mention, out.String())
			}
		})
	}
}

func TestRunBatch(t *testing.T) {
	cfg := testConfig(t, writeFakeTesseract(t))
	dir := t.TempDir()
	writeWhitePNG(t, dir, "a.png")
	writeWhitePNG(t, dir, "b.png")
	manifest := filepath.Join(dir, "pairs.json")
	body := `[{"id":"good","imageA":"a.png","imageB":"b.png"},{"id":"broken","imageA":"a.png","imageB":"missing.png"}]`
	if err := os.WriteFile(manifest, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	var out bytes.Buffer
	code := runBatch(context.Background(), cfg, &batchCmd{Manifest: manifest, Parallel: 2}, &out)
	if code != exitFailed {
		t.Fatalf("exit code = %d, want %d; output:\n%s", code, exitFailed, out.String())
	}
	got := out.String()
	for _, want := range []string{
		"good: " + filepath.Join(cfg.OutputDir, "good", "juxtaposed_word_collage_final.png"),
		"(A: no text detected, B: no text detected)",
		"broken: could not process",
		"1 of 2 pairs compared",
		"IMAGE_LOAD_FAILED: 1",
	} {
		if !strings.Contains(got, want) {
			t.Fatalf("output missing %q:\n%s", want, got)
		}
	}
}

func TestRunBatchBadManifest(t *testing.T) {
	var out bytes.Buffer
	code := runBatch(context.Background(), testConfig(t, ""), &batchCmd{Manifest: filepath.Join(t.TempDir(), "none.json")}, &out)
	if code != exitUsage {
		t.Fatalf("exit code = %d, want %d", code, exitUsage)
	}
}

func TestDescriptionNamesRejectedFormats(t *testing.T) {
	d := args{}.Description()
	if !strings.Contains(d, "JPEG 2000") || !strings.Contains(d, "UNSUPPORTED_FORMAT") {
		t.Fatalf("description should state JPEG 2000 is not accepted: %q", d)
	}
}

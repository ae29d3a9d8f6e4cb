package processor

import (
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/adverant/nexus/juxtapose-worker/internal/errors"
)

// TesseractCLI runs the tesseract binary and parses its hOCR output.
// Every call starts a fresh process, so instances are safe for concurrent use.
type TesseractCLI struct {
	binary         string
	language       string
	tessdataPrefix string
}

// TesseractCLIConfig holds the resolved binary and recognition settings
type TesseractCLIConfig struct {
	Binary         string
	Language       string
	TessdataPrefix string
}

// TesseractConfig holds settings for the linked library backend
type TesseractConfig struct {
	Language       string
	TessdataPrefix string
}

// NewTesseractCLI creates a recognizer for an already resolved binary
func NewTesseractCLI(cfg TesseractCLIConfig) *TesseractCLI {
	if cfg.Language == "" {
		cfg.Language = "eng"
	}
	return &TesseractCLI{
		binary:         cfg.Binary,
		language:       cfg.Language,
		tessdataPrefix: cfg.TessdataPrefix,
	}
}

func (t *TesseractCLI) Name() Engine { return EngineTesseract }

// args builds the command line. Word mode reads ocrx_word spans; letter mode
// additionally asks tesseract for per-character boxes (ocrx_cinfo spans).
func (t *TesseractCLI) args(imagePath string, g Granularity) []string {
	args := []string{imagePath, "stdout", "-l", t.language, "--psm", "3", "-c", "hocr_font_info=0"}
	if g == GranularityLetter {
		args = append(args, "-c", "hocr_char_boxes=1")
	}
	if t.tessdataPrefix != "" {
		args = append(args, "--tessdata-dir", t.tessdataPrefix)
	}
	return append(args, "hocr")
}

// Recognize performs OCR on one image file
func (t *TesseractCLI) Recognize(ctx context.Context, imagePath string, g Granularity) ([]TextUnit, error) {
	cmd := exec.CommandContext(ctx, t.binary, t.args(imagePath, g)...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if isMissingExecutable(err) || isMissingModel(stderr.String()) {
			return nil, errors.NewEngineUnavailableError(string(EngineTesseract),
				fmt.Errorf("%v: %s", err, strings.TrimSpace(stderr.String())))
		}
		return nil, fmt.Errorf("tesseract %s: %w\nStderr: %s", imagePath, err, strings.TrimSpace(stderr.String()))
	}

	return parseHOCR(stdout.Bytes(), g)
}

func isMissingExecutable(err error) bool {
	return stderrors.Is(err, exec.ErrNotFound) || stderrors.Is(err, os.ErrNotExist) || stderrors.Is(err, os.ErrPermission)
}

// isMissingModel matches tesseract's messages for absent traineddata.
func isMissingModel(stderr string) bool {
	return strings.Contains(stderr, "Error opening data file") ||
		strings.Contains(stderr, "Failed loading language")
}

/**
 * EasyOCR - learned-model recognizer driven through a Python subprocess
 *
 * The embedded runner prints one JSON line; detections come back as
 * four-point polygons which are reduced to axis-aligned boxes here.
 * Letter mode disables horizontal merging and splits every detection
 * into per-character boxes (see split.go).
 */

package processor

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"math"
	"os/exec"
	"strings"

	"github.com/adverant/nexus/juxtapose-worker/internal/errors"
)

//go:embed easyocr_runner.py
var easyOCRScript string

// Exit status the runner uses when easyocr or its model weights are missing.
const easyOCRUnavailableExit = 3

// EasyOCR handles OCR through the easyocr Python package
type EasyOCR struct {
	python    string
	languages []string
	gpu       bool
}

// EasyOCRConfig holds EasyOCR configuration
type EasyOCRConfig struct {
	PythonPath string
	Languages  []string
	GPU        bool
}

// NewEasyOCR creates a recognizer for an already resolved interpreter
func NewEasyOCR(cfg EasyOCRConfig) *EasyOCR {
	langs := cfg.Languages
	if len(langs) == 0 {
		langs = []string{"en"}
	}
	return &EasyOCR{
		python:    cfg.PythonPath,
		languages: langs,
		gpu:       cfg.GPU,
	}
}

func (e *EasyOCR) Name() Engine { return EngineEasyOCR }

func (e *EasyOCR) args(imagePath string, g Granularity) []string {
	gpu := "0"
	if e.gpu {
		gpu = "1"
	}
	return []string{"-c", easyOCRScript, imagePath, string(g), strings.Join(e.languages, ","), gpu}
}

// Recognize performs OCR on one image file
func (e *EasyOCR) Recognize(ctx context.Context, imagePath string, g Granularity) ([]TextUnit, error) {
	cmd := exec.CommandContext(ctx, e.python, e.args(imagePath, g)...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	if runErr != nil && ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if runErr != nil && isMissingExecutable(runErr) {
		return nil, errors.NewEngineUnavailableError(string(EngineEasyOCR), runErr)
	}

	detections, envelope, parseErr := parseEasyOCROutput(stdout.Bytes())
	if envelope != nil {
		if envelope.Code == "engine_unavailable" || exitCode(runErr) == easyOCRUnavailableExit {
			return nil, errors.NewEngineUnavailableError(string(EngineEasyOCR), fmt.Errorf("%s", envelope.Error))
		}
		return nil, fmt.Errorf("easyocr %s: %s", imagePath, envelope.Error)
	}
	if runErr != nil {
		return nil, fmt.Errorf("easyocr %s: %w\nStderr: %s", imagePath, runErr, strings.TrimSpace(stderr.String()))
	}
	if parseErr != nil {
		return nil, parseErr
	}

	units := make([]TextUnit, 0, len(detections))
	for _, d := range detections {
		unit := TextUnit{
			Text:        d.Text,
			Box:         quadBounds(d.Box),
			Confidence:  d.Confidence,
			Granularity: g,
		}
		if g == GranularityLetter {
			units = append(units, splitLetters(unit)...)
			continue
		}
		units = append(units, unit)
	}
	return units, nil
}

type easyOCRDetection struct {
	Text       string       `json:"text"`
	Box        [][2]float64 `json:"box"`
	Confidence float64      `json:"confidence"`
}

type easyOCREnvelope struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// parseEasyOCROutput decodes the last non-empty stdout line, which is either
// a detection array or an error envelope. Anything the model libraries print
// before it is ignored.
func parseEasyOCROutput(out []byte) ([]easyOCRDetection, *easyOCREnvelope, error) {
	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	last := strings.TrimSpace(lines[len(lines)-1])
	if last == "" {
		return nil, nil, fmt.Errorf("easyocr produced no output")
	}

	if strings.HasPrefix(last, "{") {
		var env easyOCREnvelope
		if err := json.Unmarshal([]byte(last), &env); err != nil {
			return nil, nil, fmt.Errorf("decode easyocr error envelope: %w", err)
		}
		return nil, &env, nil
	}

	var detections []easyOCRDetection
	if err := json.Unmarshal([]byte(last), &detections); err != nil {
		return nil, nil, fmt.Errorf("decode easyocr output: %w", err)
	}
	return detections, nil, nil
}

// quadBounds returns the axis-aligned box enclosing a polygon. Coordinates
// are floored/ceiled so the box never shrinks below the detection.
func quadBounds(points [][2]float64) BoundingBox {
	if len(points) == 0 {
		return BoundingBox{}
	}
	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for _, p := range points {
		minX = math.Min(minX, p[0])
		minY = math.Min(minY, p[1])
		maxX = math.Max(maxX, p[0])
		maxY = math.Max(maxY, p[1])
	}
	left, top := int(math.Floor(minX)), int(math.Floor(minY))
	return BoundingBox{
		Left:   left,
		Top:    top,
		Width:  int(math.Ceil(maxX)) - left,
		Height: int(math.Ceil(maxY)) - top,
	}
}

func exitCode(err error) int {
	if ee, ok := err.(*exec.ExitError); ok {
		return ee.ExitCode()
	}
	return 0
}

/**
 * Comparison job payload and the run logic shared by both consumers
 *
 * A job names two images either by path (shared volume) or by content.
 * Content arrives base64-encoded or as a serialized Node.js Buffer; it is
 * written to temp files for the duration of the job and removed afterwards.
 */

package queue

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/adverant/nexus/juxtapose-worker/internal/errors"
	"github.com/adverant/nexus/juxtapose-worker/internal/logging"
	"github.com/adverant/nexus/juxtapose-worker/internal/processor"
)

// TaskTypeCompare is the asynq task type and the list job type
const TaskTypeCompare = "compare-handwriting"

// Default processing timeout for one job.
const defaultProcessingTimeout = 5 * time.Minute

// JobPayload contains the comparison request
type JobPayload struct {
	JobID       string `json:"jobId"`
	Engine      string `json:"engine"`
	Granularity string `json:"granularity"`
	ImagePathA  string `json:"imagePathA,omitempty"`
	ImagePathB  string `json:"imagePathB,omitempty"`
	FilenameA   string `json:"filenameA,omitempty"`
	FilenameB   string `json:"filenameB,omitempty"`
	OutputDir   string `json:"outputDir,omitempty"`
	ImageA      []byte `json:"-"` // set by UnmarshalJSON
	ImageB      []byte `json:"-"` // set by UnmarshalJSON
}

// MarshalJSON writes image content as base64 strings.
func (p JobPayload) MarshalJSON() ([]byte, error) {
	type Alias JobPayload
	return json.Marshal(&struct {
		Alias
		ImageA string `json:"imageA,omitempty"`
		ImageB string `json:"imageB,omitempty"`
	}{
		Alias:  Alias(p),
		ImageA: encodeImage(p.ImageA),
		ImageB: encodeImage(p.ImageB),
	})
}

func encodeImage(b []byte) string {
	if len(b) == 0 {
		return ""
	}
	return base64.StdEncoding.EncodeToString(b)
}

// UnmarshalJSON accepts imageA/imageB as base64 strings or as Node.js
// Buffer objects ({"type":"Buffer","data":[...]}).
func (p *JobPayload) UnmarshalJSON(data []byte) error {
	type Alias JobPayload
	aux := &struct {
		ImageA interface{} `json:"imageA,omitempty"`
		ImageB interface{} `json:"imageB,omitempty"`
		*Alias
	}{
		Alias: (*Alias)(p),
	}

	if err := json.Unmarshal(data, &aux); err != nil {
		return fmt.Errorf("failed to unmarshal JobPayload: %w", err)
	}

	var err error
	if p.ImageA, err = decodeBuffer("imageA", aux.ImageA); err != nil {
		return err
	}
	if p.ImageB, err = decodeBuffer("imageB", aux.ImageB); err != nil {
		return err
	}
	return nil
}

func decodeBuffer(field string, raw interface{}) ([]byte, error) {
	switch v := raw.(type) {
	case nil:
		return nil, nil

	case string:
		decoded, err := base64.StdEncoding.DecodeString(v)
		if err != nil {
			return nil, fmt.Errorf("failed to decode base64 %s: %w", field, err)
		}
		return decoded, nil

	case map[string]interface{}:
		if bufferType, ok := v["type"].(string); !ok || bufferType != "Buffer" {
			return nil, fmt.Errorf("%s: invalid Buffer object format (missing or incorrect 'type' field)", field)
		}
		dataArray, ok := v["data"].([]interface{})
		if !ok {
			return nil, fmt.Errorf("%s: Buffer object missing 'data' array", field)
		}
		out := make([]byte, len(dataArray))
		for i, val := range dataArray {
			f, ok := val.(float64)
			if !ok || f < 0 || f > 255 {
				return nil, fmt.Errorf("%s: invalid byte value in Buffer data array at index %d", field, i)
			}
			out[i] = byte(f)
		}
		return out, nil
	}
	return nil, fmt.Errorf("%s must be either base64 string or Buffer object, got %T", field, raw)
}

// Validate checks the payload before any work is done.
func (p *JobPayload) Validate() error {
	if p.JobID == "" {
		return fmt.Errorf("jobId is required")
	}
	// The id names the job's default output directory.
	if p.JobID == "." || p.JobID == ".." || strings.ContainsAny(p.JobID, `/\`) {
		return fmt.Errorf("jobId %q must not contain path separators", p.JobID)
	}
	if p.ImagePathA == "" && len(p.ImageA) == 0 {
		return fmt.Errorf("job %s: imagePathA or imageA is required", p.JobID)
	}
	if p.ImagePathB == "" && len(p.ImageB) == 0 {
		return fmt.Errorf("job %s: imagePathB or imageB is required", p.JobID)
	}
	return nil
}

// jobRunner turns a payload into a processor request and runs it.
// Jobs without an output directory write to outputDir/<jobId>.
type jobRunner struct {
	processor processor.ComparisonProcessorInterface
	outputDir string
	tempDir   string
	timeout   time.Duration
	logger    *logging.Logger
}

func newJobRunner(proc processor.ComparisonProcessorInterface, outputDir, tempDir string, timeout time.Duration, component string) *jobRunner {
	if timeout <= 0 {
		timeout = defaultProcessingTimeout
	}
	return &jobRunner{
		processor: proc,
		outputDir: outputDir,
		tempDir:   tempDir,
		timeout:   timeout,
		logger:    logging.NewLogger(component),
	}
}

// run executes one job under the processing timeout. Temp files created
// for inline images are removed before it returns.
func (r *jobRunner) run(ctx context.Context, p *JobPayload) (*processor.CompareResult, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	engine, err := processor.ParseEngine(p.Engine)
	if err != nil {
		return nil, err
	}
	g, err := processor.ParseGranularity(p.Granularity)
	if err != nil {
		return nil, err
	}

	var cleanup []string
	defer func() {
		for _, path := range cleanup {
			if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
				r.logger.Warn("Failed to remove temp image", "job_id", p.JobID, "path", path, "error", err.Error())
			}
		}
	}()

	pathA, err := r.materialize(p.ImagePathA, p.ImageA, p.FilenameA, &cleanup)
	if err != nil {
		return nil, err
	}
	pathB, err := r.materialize(p.ImagePathB, p.ImageB, p.FilenameB, &cleanup)
	if err != nil {
		return nil, err
	}

	r.logger.Info("Processing comparison job",
		"job_id", p.JobID,
		"engine", string(engine),
		"granularity", string(g),
		"timeout", r.timeout)

	outputDir := p.OutputDir
	if outputDir == "" {
		outputDir = filepath.Join(r.outputDir, p.JobID)
	}

	processCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	result, err := r.processor.ProcessComparison(processCtx, &processor.CompareRequest{
		JobID:       p.JobID,
		Engine:      engine,
		Granularity: g,
		ImagePathA:  pathA,
		ImagePathB:  pathB,
		OutputDir:   outputDir,
	})
	if err != nil {
		if processCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil && !errors.HasCode(err, errors.ErrorProcessingTimeout) {
			return nil, errors.NewProcessingTimeoutError(p.JobID, r.timeout, err)
		}
		return nil, err
	}
	return result, nil
}

// materialize returns path when the job references a file, otherwise
// writes data to a uniquely named temp file and records it for cleanup.
func (r *jobRunner) materialize(path string, data []byte, filename string, cleanup *[]string) (string, error) {
	if path != "" {
		if err := processor.CheckImageExtension(path); err != nil {
			return "", err
		}
		return path, nil
	}

	ext := processor.DetectImageExtension(data)
	if ext == "" {
		ext = strings.ToLower(filepath.Ext(filename))
	}
	name := "juxtapose-" + uuid.New().String() + ext
	if err := processor.CheckImageExtension(name); err != nil {
		return "", err
	}

	tmp := filepath.Join(r.tempDir, name)
	if r.tempDir == "" {
		tmp = filepath.Join(os.TempDir(), name)
	}
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return "", fmt.Errorf("failed to write temp image: %w", err)
	}
	*cleanup = append(*cleanup, tmp)
	return tmp, nil
}

// resultMap is the status payload recorded for a completed job.
func resultMap(result *processor.CompareResult) map[string]interface{} {
	m := map[string]interface{}{
		"engine":         string(result.Engine),
		"granularity":    string(result.Granularity),
		"unitsA":         result.UnitsA,
		"unitsB":         result.UnitsB,
		"textA":          result.TextA,
		"textB":          result.TextB,
		"noTextA":        result.NoTextA,
		"noTextB":        result.NoTextB,
		"message":        result.Message,
		"processingTime": result.ProcessingTimeMs,
	}
	if result.Artifact != nil {
		m["collagePath"] = result.Artifact.Path
		m["collageWidth"] = result.Artifact.Width
		m["collageHeight"] = result.Artifact.Height
	}
	return m
}

// errorMap is the status payload recorded for a failed job.
func errorMap(jobID string, err error) map[string]interface{} {
	if pe, ok := errors.AsProcessingError(err); ok {
		m := pe.ToMap()
		m["error"] = err.Error()
		if _, ok := m["job_id"]; !ok {
			m["job_id"] = jobID
		}
		return m
	}
	return map[string]interface{}{
		"error":  err.Error(),
		"job_id": jobID,
	}
}

// retryable reports whether a job that has failed attempts times should run
// again. maxRetries counts retries, so a job runs at most maxRetries+1 times.
func retryable(err error, attempts, maxRetries int) bool {
	return !permanent(err) && attempts <= maxRetries
}

// permanent reports whether retrying err cannot help: bad input, missing
// engines and unsupported modes fail the same way every time.
func permanent(err error) bool {
	for _, code := range []errors.ErrorCode{
		errors.ErrorImageLoadFailed,
		errors.ErrorUnsupportedGranularity,
		errors.ErrorEngineUnavailable,
		errors.ErrorUnsupportedFormat,
		errors.ErrorEmptyInput,
	} {
		if errors.HasCode(err, code) {
			return true
		}
	}
	return false
}

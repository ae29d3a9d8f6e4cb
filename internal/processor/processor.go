/**
 * Comparison Processor for the Juxtapose Worker
 *
 * Orchestrates one handwriting comparison:
 * - resolves the (engine, granularity) pair from the registry
 * - extracts image A, then image B, each under its own timeout
 * - composes the annotated side-by-side collage
 */

package processor

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/adverant/nexus/juxtapose-worker/internal/errors"
	"github.com/adverant/nexus/juxtapose-worker/internal/logging"
)

// ComparisonProcessorInterface defines the interface for handwriting comparison
type ComparisonProcessorInterface interface {
	ProcessComparison(ctx context.Context, req *CompareRequest) (*CompareResult, error)
}

// ProcessorConfig holds processor configuration
type ProcessorConfig struct {
	Registry          *Registry
	ExtractionTimeout time.Duration
}

// CompareRequest represents one comparison of two handwriting images
type CompareRequest struct {
	JobID       string
	Engine      Engine
	Granularity Granularity
	ImagePathA  string
	ImagePathB  string
	// OutputDir overrides the composer's directory when set.
	OutputDir string
}

// CompareResult represents the comparison result
type CompareResult struct {
	Artifact         *CollageArtifact
	Engine           Engine
	Granularity      Granularity
	UnitsA           int
	UnitsB           int
	TextA            string
	TextB            string
	NoTextA          bool
	NoTextB          bool
	Message          string
	ProcessingTimeMs int64
}

// ComparisonProcessor handles handwriting comparisons
type ComparisonProcessor struct {
	registry          *Registry
	extractionTimeout time.Duration
	logger            *logging.Logger
}

// NewComparisonProcessor creates a new comparison processor
func NewComparisonProcessor(cfg *ProcessorConfig) (*ComparisonProcessor, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if cfg.Registry == nil {
		return nil, fmt.Errorf("registry is required")
	}
	return &ComparisonProcessor{
		registry:          cfg.Registry,
		extractionTimeout: cfg.ExtractionTimeout,
		logger:            logging.NewLogger("processor"),
	}, nil
}

// ProcessComparison runs the extraction and juxtaposition pipeline
func (p *ComparisonProcessor) ProcessComparison(ctx context.Context, req *CompareRequest) (*CompareResult, error) {
	startTime := time.Now()
	logger := p.logger.With("job_id", req.JobID)

	// Step 1: Resolve the engine pair
	pair, err := p.registry.Lookup(req.Engine, req.Granularity)
	if err != nil {
		return nil, err
	}
	logger.Info("Starting comparison",
		"engine", string(req.Engine),
		"granularity", string(req.Granularity))

	// Step 2: Extract image A, then image B
	resultA, err := p.extract(ctx, pair.Extractor, req, req.ImagePathA)
	if err != nil {
		return nil, err
	}
	logger.Info("Image A extracted", "units", resultA.Len())

	resultB, err := p.extract(ctx, pair.Extractor, req, req.ImagePathB)
	if err != nil {
		return nil, err
	}
	logger.Info("Image B extracted", "units", resultB.Len())

	// Step 3: Compose the collage
	composer := pair.Composer
	if cc, ok := composer.(*CollageComposer); ok && req.OutputDir != "" {
		composer = cc.InDir(req.OutputDir)
	}
	artifact, err := composer.Compose(ctx, resultA, resultB, req.ImagePathA, req.ImagePathB)
	if err != nil {
		return nil, err
	}

	result := &CompareResult{
		Artifact:         artifact,
		Engine:           req.Engine,
		Granularity:      req.Granularity,
		UnitsA:           resultA.Len(),
		UnitsB:           resultB.Len(),
		TextA:            resultA.Text(),
		TextB:            resultB.Text(),
		NoTextA:          resultA.Empty(),
		NoTextB:          resultB.Empty(),
		Message:          req.Granularity.SuccessMessage(),
		ProcessingTimeMs: time.Since(startTime).Milliseconds(),
	}

	logger.Info("Comparison complete",
		"collage", artifact.Path,
		"units_a", result.UnitsA,
		"units_b", result.UnitsB,
		"duration_ms", result.ProcessingTimeMs)

	return result, nil
}

// extract runs one extraction under the configured timeout. A timeout is
// reported as PROCESSING_TIMEOUT; cancellation of ctx itself is returned as is.
func (p *ComparisonProcessor) extract(ctx context.Context, ex Extractor, req *CompareRequest, path string) (*ExtractionResult, error) {
	if p.extractionTimeout <= 0 {
		return ex.Extract(ctx, path, req.Granularity)
	}

	extractCtx, cancel := context.WithTimeout(ctx, p.extractionTimeout)
	defer cancel()

	result, err := ex.Extract(extractCtx, path, req.Granularity)
	if err != nil {
		if ctx.Err() == nil && stderrors.Is(extractCtx.Err(), context.DeadlineExceeded) {
			return nil, errors.NewProcessingTimeoutError(req.JobID, p.extractionTimeout, err)
		}
		return nil, err
	}
	return result, nil
}

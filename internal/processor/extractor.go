package processor

import (
	"context"
	"fmt"
	"time"

	"github.com/adverant/nexus/juxtapose-worker/internal/errors"
	"github.com/adverant/nexus/juxtapose-worker/internal/logging"
)

// Extractor turns one image into an ordered set of recognized text units
type Extractor interface {
	Extract(ctx context.Context, imagePath string, g Granularity) (*ExtractionResult, error)
}

// Recognizer is the engine-specific half of an extractor. It returns units
// in source-image coordinates with confidence already scaled to [0,1];
// clipping, filtering and ordering happen in EngineExtractor.
type Recognizer interface {
	Name() Engine
	Recognize(ctx context.Context, imagePath string, g Granularity) ([]TextUnit, error)
}

// EngineExtractor adapts a Recognizer into an Extractor
type EngineExtractor struct {
	recognizer Recognizer
	opts       NormalizeOptions
	logger     *logging.Logger
}

// NewEngineExtractor creates an extractor around the given recognizer
func NewEngineExtractor(r Recognizer, opts NormalizeOptions) *EngineExtractor {
	return &EngineExtractor{
		recognizer: r,
		opts:       opts,
		logger:     logging.NewLogger("extractor").With("engine", string(r.Name())),
	}
}

// Extract loads the image, runs the recognizer for the requested granularity
// and normalizes the output. The returned result is never nil on success.
func (e *EngineExtractor) Extract(ctx context.Context, imagePath string, g Granularity) (*ExtractionResult, error) {
	if !g.Valid() {
		return nil, errors.NewUnsupportedGranularityError(string(g))
	}

	startTime := time.Now()

	img, err := loadImage(imagePath)
	if err != nil {
		return nil, errors.NewImageLoadError(imagePath, err)
	}
	size := sizeOf(img)

	raw, err := e.recognizer.Recognize(ctx, imagePath, g)
	if err != nil {
		if errors.CodeOf(err) != "" {
			return nil, err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("recognition interrupted: %w", ctxErr)
		}
		return nil, errors.NewOCRFailedError(imagePath, string(e.recognizer.Name()), err)
	}

	units := normalizeUnits(raw, size, g, e.opts)

	e.logger.Debug("Extraction complete",
		"path", imagePath,
		"granularity", string(g),
		"raw_units", len(raw),
		"units", len(units),
		"duration", time.Since(startTime))

	return NewExtractionResult(imagePath, e.recognizer.Name(), g, size, units), nil
}

// unavailableRecognizer stands in for an engine whose binary or runtime could
// not be resolved, so the failure surfaces on every extraction instead of the
// engine silently disappearing from the registry.
type unavailableRecognizer struct {
	engine Engine
	err    error
}

func (u unavailableRecognizer) Name() Engine { return u.engine }

func (u unavailableRecognizer) Recognize(context.Context, string, Granularity) ([]TextUnit, error) {
	if errors.CodeOf(u.err) == errors.ErrorEngineUnavailable {
		return nil, u.err
	}
	return nil, errors.NewEngineUnavailableError(string(u.engine), u.err)
}

package processor

import (
	"fmt"
	"sort"
	"sync"

	"github.com/adverant/nexus/juxtapose-worker/internal/config"
	"github.com/adverant/nexus/juxtapose-worker/internal/errors"
	"github.com/adverant/nexus/juxtapose-worker/internal/logging"
)

// Pair is the extractor/composer combination serving one (engine, granularity)
type Pair struct {
	Extractor Extractor
	Composer  Composer
}

type registryKey struct {
	engine      Engine
	granularity Granularity
}

// Registry resolves (engine, granularity) to the Pair that handles it
type Registry struct {
	mu    sync.RWMutex
	pairs map[registryKey]Pair
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{pairs: make(map[registryKey]Pair)}
}

// Register adds or replaces the pair for (engine, granularity).
func (r *Registry) Register(engine Engine, g Granularity, p Pair) error {
	if !g.Valid() {
		return errors.NewUnsupportedGranularityError(string(g))
	}
	if p.Extractor == nil || p.Composer == nil {
		return fmt.Errorf("register %s/%s: extractor and composer are required", engine, g)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pairs[registryKey{engine, g}] = p
	return nil
}

// Lookup returns the pair for (engine, granularity). Granularity is checked
// first so an invalid mode is reported as such regardless of engine.
func (r *Registry) Lookup(engine Engine, g Granularity) (Pair, error) {
	if !g.Valid() {
		return Pair{}, errors.NewUnsupportedGranularityError(string(g))
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.pairs[registryKey{engine, g}]
	if !ok {
		return Pair{}, errors.NewEngineUnavailableError(string(engine), fmt.Errorf("engine is not registered"))
	}
	return p, nil
}

// Engines lists the registered engines in name order.
func (r *Registry) Engines() []Engine {
	r.mu.RLock()
	defer r.mu.RUnlock()
	seen := make(map[Engine]bool)
	var out []Engine
	for k := range r.pairs {
		if !seen[k.engine] {
			seen[k.engine] = true
			out = append(out, k.engine)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// NewDefaultRegistry wires both engines for both granularities from cfg.
// An engine whose executable cannot be resolved is still registered; its
// extractor fails every call with EngineUnavailableError.
func NewDefaultRegistry(cfg *config.Config) *Registry {
	logger := logging.NewLogger("registry")
	opts := NormalizeOptions{MinConfidence: cfg.MinConfidence, KeepBlank: cfg.KeepBlankUnits}

	tesseract := newTesseractRecognizer(cfg, logger)
	easy := newEasyOCRRecognizer(cfg, logger)

	reg := NewRegistry()
	for _, g := range []Granularity{GranularityLetter, GranularityWord} {
		composer := NewCollageComposer(g, ComposerOptions{
			OutputDir:      cfg.OutputDir,
			SeparatorWidth: cfg.SeparatorWidth,
		})
		for _, r := range []Recognizer{tesseract, easy} {
			// Both arguments are valid by construction.
			_ = reg.Register(r.Name(), g, Pair{
				Extractor: NewEngineExtractor(r, opts),
				Composer:  composer,
			})
		}
	}
	return reg
}

func newTesseractRecognizer(cfg *config.Config, logger *logging.Logger) Recognizer {
	if cfg.TesseractBackend == "library" {
		if !LibraryBackendLinked {
			logger.Warn("Tesseract library backend requested but not compiled in")
		} else {
			logger.Info("Tesseract library backend enabled", "language", cfg.TesseractLanguage)
		}
		return NewTesseractOCR(&TesseractConfig{
			Language:       cfg.TesseractLanguage,
			TessdataPrefix: cfg.TessdataPrefix,
		})
	}

	binary, err := ResolveTesseract(cfg.TesseractPath)
	if err != nil {
		logger.Warn("Tesseract not found", "error", err.Error())
		return unavailableRecognizer{engine: EngineTesseract, err: err}
	}
	logger.Info("Tesseract resolved", "path", binary)
	return NewTesseractCLI(TesseractCLIConfig{
		Binary:         binary,
		Language:       cfg.TesseractLanguage,
		TessdataPrefix: cfg.TessdataPrefix,
	})
}

func newEasyOCRRecognizer(cfg *config.Config, logger *logging.Logger) Recognizer {
	python, err := ResolvePython(cfg.PythonPath)
	if err != nil {
		logger.Warn("Python not found, EasyOCR unavailable", "error", err.Error())
		return unavailableRecognizer{engine: EngineEasyOCR, err: err}
	}
	logger.Info("EasyOCR interpreter resolved", "path", python, "gpu", cfg.EasyOCRGPU)
	return NewEasyOCR(EasyOCRConfig{
		PythonPath: python,
		Languages:  cfg.EasyOCRLanguages,
		GPU:        cfg.EasyOCRGPU,
	})
}

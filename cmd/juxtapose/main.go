/**
 * juxtapose - command line front end for handwriting comparison
 *
 *   juxtapose compare a.png b.png --engine tesseract --granularity letter
 *   juxtapose batch manifest.json --out collages/ --parallel 4
 *   juxtapose enqueue a.png b.png --inline
 *
 * Defaults come from the same environment/.env settings as the worker.
 */

package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/alexflint/go-arg"
	"github.com/joho/godotenv"

	"github.com/adverant/nexus/juxtapose-worker/internal/config"
	"github.com/adverant/nexus/juxtapose-worker/internal/errors"
	"github.com/adverant/nexus/juxtapose-worker/internal/logging"
	"github.com/adverant/nexus/juxtapose-worker/internal/processor"
	"github.com/adverant/nexus/juxtapose-worker/internal/queue"
)

type selection struct {
	Engine      string `arg:"-e,--engine" help:"tesseract (pytesseract) or easyocr; default OCR_ENGINE"`
	Granularity string `arg:"-g,--granularity" help:"letter(s) or word(s); default OCR_GRANULARITY"`
}

type compareCmd struct {
	selection
	ImageA string `arg:"positional,required" help:"first handwriting sample (png, jpg, webp, gif, bmp, tif)"`
	ImageB string `arg:"positional,required" help:"second handwriting sample"`
	Out    string `arg:"-o,--out" help:"output directory; default OUTPUT_DIR"`
}

type batchCmd struct {
	selection
	Manifest string `arg:"positional,required" help:"JSON array of {id, imageA, imageB}"`
	Out      string `arg:"-o,--out" help:"root output directory; one subdirectory per pair"`
	Parallel int    `arg:"-p,--parallel" help:"pairs compared at once; default WORKER_CONCURRENCY"`
}

type enqueueCmd struct {
	selection
	ImageA string `arg:"positional,required"`
	ImageB string `arg:"positional,required"`
	Inline bool   `arg:"--inline" help:"send image bytes instead of paths"`
	JobID  string `arg:"--job-id" help:"job id; generated when empty"`
	Out    string `arg:"-o,--out" help:"output directory recorded in the job"`
}

type args struct {
	Compare *compareCmd `arg:"subcommand:compare" help:"compare two images and write the collage"`
	Batch   *batchCmd   `arg:"subcommand:batch" help:"compare every pair of a manifest"`
	Enqueue *enqueueCmd `arg:"subcommand:enqueue" help:"submit a comparison job to the worker queue"`
	Verbose bool        `arg:"-v,--verbose" help:"debug logging"`
}

func (args) Description() string {
	return "Juxtapose handwriting samples: OCR two images and write an annotated side-by-side collage.\n" +
		"Accepted images: PNG, JPEG, WebP, GIF, BMP and TIFF. JPEG 2000 (.jp2) and PDF are rejected as UNSUPPORTED_FORMAT."
}

// Exit codes
const (
	exitOK          = 0
	exitFailed      = 1
	exitUsage       = 2
	exitUnavailable = 3
)

func main() {
	_ = godotenv.Load()

	var a args
	p := arg.MustParse(&a)
	if p.Subcommand() == nil {
		p.Fail("missing subcommand (compare, batch or enqueue)")
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(exitUsage)
	}
	level := cfg.LogLevel
	if a.Verbose {
		level = "debug"
	}
	if err := logging.Configure(level, cfg.LogFormat); err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(exitUsage)
	}
	// Progress logs go to stderr so stdout carries only results.
	logging.SetOutput(os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var code int
	switch {
	case a.Compare != nil:
		code = runCompare(ctx, cfg, a.Compare, os.Stdout)
	case a.Batch != nil:
		code = runBatch(ctx, cfg, a.Batch, os.Stdout)
	case a.Enqueue != nil:
		code = runEnqueue(ctx, cfg, a.Enqueue, os.Stdout)
	}
	stop()
	os.Exit(code)
}

// resolve applies command-line overrides on top of the configured defaults.
func (s selection) resolve(cfg *config.Config) (processor.Engine, processor.Granularity, error) {
	engineName, granularityName := cfg.Engine, cfg.Granularity
	if s.Engine != "" {
		engineName = s.Engine
	}
	if s.Granularity != "" {
		granularityName = s.Granularity
	}
	engine, err := processor.ParseEngine(engineName)
	if err != nil {
		return "", "", err
	}
	g, err := processor.ParseGranularity(granularityName)
	if err != nil {
		return "", "", err
	}
	return engine, g, nil
}

func newProcessor(cfg *config.Config) (*processor.ComparisonProcessor, error) {
	return processor.NewComparisonProcessor(&processor.ProcessorConfig{
		Registry:          processor.NewDefaultRegistry(cfg),
		ExtractionTimeout: cfg.ExtractionTimeout,
	})
}

func runCompare(ctx context.Context, cfg *config.Config, cmd *compareCmd, out io.Writer) int {
	engine, g, err := cmd.resolve(cfg)
	if err != nil {
		return report(out, err)
	}
	for _, path := range []string{cmd.ImageA, cmd.ImageB} {
		if err := processor.CheckImageExtension(path); err != nil {
			return report(out, err)
		}
	}

	proc, err := newProcessor(cfg)
	if err != nil {
		return report(out, err)
	}
	result, err := proc.ProcessComparison(ctx, &processor.CompareRequest{
		JobID:       "cli",
		Engine:      engine,
		Granularity: g,
		ImagePathA:  cmd.ImageA,
		ImagePathB:  cmd.ImageB,
		OutputDir:   cmd.Out,
	})
	if err != nil {
		return report(out, err)
	}

	printResult(out, result)
	return exitOK
}

func printResult(out io.Writer, result *processor.CompareResult) {
	fmt.Fprintln(out, result.Message)
	fmt.Fprintf(out, "collage: %s (%dx%d)\n", result.Artifact.Path, result.Artifact.Width, result.Artifact.Height)
	fmt.Fprintf(out, "image A: %s\n", describeSide(result.UnitsA, result.NoTextA, result.Granularity))
	fmt.Fprintf(out, "image B: %s\n", describeSide(result.UnitsB, result.NoTextB, result.Granularity))
}

func describeSide(units int, noText bool, g processor.Granularity) string {
	if noText {
		return "no text detected"
	}
	return fmt.Sprintf("%d %s(s)", units, g)
}

func runBatch(ctx context.Context, cfg *config.Config, cmd *batchCmd, out io.Writer) int {
	engine, g, err := cmd.resolve(cfg)
	if err != nil {
		return report(out, err)
	}
	pairs, err := processor.LoadManifest(cmd.Manifest)
	if err != nil {
		fmt.Fprintf(out, "could not read manifest: %v\n", err)
		return exitUsage
	}
	proc, err := newProcessor(cfg)
	if err != nil {
		return report(out, err)
	}

	outDir := cmd.Out
	if outDir == "" {
		outDir = cfg.OutputDir
	}
	parallel := cmd.Parallel
	if parallel <= 0 {
		parallel = cfg.WorkerConcurrency
	}

	outcomes := processor.RunBatch(ctx, proc, engine, g, pairs, outDir, parallel)
	failed := 0
	for _, o := range outcomes {
		if o.Err != nil {
			failed++
			fmt.Fprintf(out, "%s: could not process: %v\n", o.Pair.ID, o.Err)
			continue
		}
		fmt.Fprintf(out, "%s: %s (A: %s, B: %s)\n", o.Pair.ID, o.Result.Artifact.Path,
			describeSide(o.Result.UnitsA, o.Result.NoTextA, g),
			describeSide(o.Result.UnitsB, o.Result.NoTextB, g))
	}
	fmt.Fprintf(out, "%d of %d pairs compared\n", len(outcomes)-failed, len(outcomes))
	for code, n := range processor.FailedOutcomes(outcomes) {
		if code != "" {
			fmt.Fprintf(out, "  %s: %d\n", code, n)
		}
	}
	if failed > 0 {
		return exitFailed
	}
	return exitOK
}

func runEnqueue(ctx context.Context, cfg *config.Config, cmd *enqueueCmd, out io.Writer) int {
	engine, g, err := cmd.resolve(cfg)
	if err != nil {
		return report(out, err)
	}

	payload := &queue.JobPayload{
		JobID:       cmd.JobID,
		Engine:      string(engine),
		Granularity: string(g),
		OutputDir:   cmd.Out,
	}
	if cmd.Inline {
		if payload.ImageA, err = os.ReadFile(cmd.ImageA); err != nil {
			return report(out, errors.NewImageLoadError(cmd.ImageA, err))
		}
		if payload.ImageB, err = os.ReadFile(cmd.ImageB); err != nil {
			return report(out, errors.NewImageLoadError(cmd.ImageB, err))
		}
		payload.FilenameA = filepath.Base(cmd.ImageA)
		payload.FilenameB = filepath.Base(cmd.ImageB)
	} else {
		if payload.ImagePathA, err = filepath.Abs(cmd.ImageA); err != nil {
			return report(out, err)
		}
		if payload.ImagePathB, err = filepath.Abs(cmd.ImageB); err != nil {
			return report(out, err)
		}
	}

	var id string
	if cfg.QueueBackend == "asynq" {
		consumer, err := queue.NewConsumer(&queue.ConsumerConfig{
			RedisURL:  cfg.RedisURL,
			QueueName: cfg.QueueName,
			Processor: noopProcessor{},
			MaxRetry:  cfg.JobMaxRetries,
		})
		if err != nil {
			return report(out, err)
		}
		defer consumer.Stop(ctx)
		id, err = consumer.Enqueue(ctx, payload)
		if err != nil {
			return report(out, err)
		}
	} else {
		consumer, err := queue.NewRedisConsumer(&queue.RedisConsumerConfig{
			RedisURL:   cfg.RedisURL,
			QueueName:  cfg.QueueName,
			Processor:  noopProcessor{},
			MaxRetries: cfg.JobMaxRetries,
		})
		if err != nil {
			return report(out, err)
		}
		defer consumer.Stop()
		id, err = consumer.Enqueue(ctx, payload)
		if err != nil {
			return report(out, err)
		}
	}

	fmt.Fprintf(out, "enqueued job %s on %s\n", id, cfg.QueueName)
	return exitOK
}

// noopProcessor satisfies the consumer constructors when only enqueueing.
type noopProcessor struct{}

func (noopProcessor) ProcessComparison(context.Context, *processor.CompareRequest) (*processor.CompareResult, error) {
	return nil, fmt.Errorf("enqueue-only client cannot process jobs")
}

// report prints err in the "could not process image" form and maps it to
// an exit code.
func report(out io.Writer, err error) int {
	fmt.Fprintf(out, "could not process image: %v\n", err)
	switch errors.CodeOf(err) {
	case errors.ErrorUnsupportedGranularity, errors.ErrorUnsupportedFormat:
		return exitUsage
	case errors.ErrorEngineUnavailable:
		return exitUnavailable
	}
	return exitFailed
}

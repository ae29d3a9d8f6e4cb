package processor

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"golang.org/x/sync/errgroup"

	"github.com/adverant/nexus/juxtapose-worker/internal/errors"
)

// BatchPair is one entry of a batch manifest
type BatchPair struct {
	ID     string `json:"id"`
	ImageA string `json:"imageA"`
	ImageB string `json:"imageB"`
}

// BatchOutcome is the result of one pair; exactly one of Result and Err is set.
type BatchOutcome struct {
	Pair   BatchPair
	Result *CompareResult
	Err    error
}

var batchIDRe = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

// LoadManifest reads a JSON array of pairs. Relative image paths are taken
// relative to the manifest's directory. IDs must be unique and usable as a
// directory name.
func LoadManifest(path string) ([]BatchPair, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	var pairs []BatchPair
	if err := json.Unmarshal(data, &pairs); err != nil {
		return nil, fmt.Errorf("decode manifest %s: %w", path, err)
	}

	base := filepath.Dir(path)
	seen := make(map[string]bool, len(pairs))
	for i := range pairs {
		p := &pairs[i]
		if !batchIDRe.MatchString(p.ID) || p.ID == "." || p.ID == ".." {
			return nil, fmt.Errorf("manifest entry %d: invalid id %q", i, p.ID)
		}
		if seen[p.ID] {
			return nil, fmt.Errorf("manifest entry %d: duplicate id %q", i, p.ID)
		}
		seen[p.ID] = true
		if p.ImageA == "" || p.ImageB == "" {
			return nil, fmt.Errorf("manifest entry %q: imageA and imageB are required", p.ID)
		}
		if !filepath.IsAbs(p.ImageA) {
			p.ImageA = filepath.Join(base, p.ImageA)
		}
		if !filepath.IsAbs(p.ImageB) {
			p.ImageB = filepath.Join(base, p.ImageB)
		}
	}
	return pairs, nil
}

// RunBatch compares every pair, at most concurrency at a time, writing each
// collage to outputDir/<id>/. A failing pair does not stop the others;
// outcomes are returned in manifest order.
func RunBatch(ctx context.Context, proc ComparisonProcessorInterface, engine Engine, g Granularity, pairs []BatchPair, outputDir string, concurrency int) []BatchOutcome {
	if concurrency < 1 {
		concurrency = 1
	}
	outcomes := make([]BatchOutcome, len(pairs))

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(concurrency)
	for i, pair := range pairs {
		i, pair := i, pair
		outcomes[i].Pair = pair
		eg.Go(func() error {
			if err := egCtx.Err(); err != nil {
				outcomes[i].Err = err
				return nil
			}
			for _, path := range []string{pair.ImageA, pair.ImageB} {
				if err := CheckImageExtension(path); err != nil {
					outcomes[i].Err = err
					return nil
				}
			}
			result, err := proc.ProcessComparison(egCtx, &CompareRequest{
				JobID:       pair.ID,
				Engine:      engine,
				Granularity: g,
				ImagePathA:  pair.ImageA,
				ImagePathB:  pair.ImageB,
				OutputDir:   filepath.Join(outputDir, pair.ID),
			})
			outcomes[i].Result = result
			outcomes[i].Err = err
			return nil
		})
	}
	_ = eg.Wait()
	return outcomes
}

// FailedOutcomes counts outcomes that carry an error, grouped by error code.
// Errors without a code are counted under "".
func FailedOutcomes(outcomes []BatchOutcome) map[errors.ErrorCode]int {
	counts := make(map[errors.ErrorCode]int)
	for _, o := range outcomes {
		if o.Err != nil {
			counts[errors.CodeOf(o.Err)]++
		}
	}
	return counts
}

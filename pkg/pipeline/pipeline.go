// Package pipeline provides the filter pipeline for dogstack.
//
// This package implements the complete decode → DoG → stack pipeline that
// is used by both the CLI and the HTTP server. By centralizing this logic,
// both entry points apply the same defaults, cache keys and failure policy.
//
// # Architecture
//
// The pipeline consists of three stages:
//
//  1. Decode: turn each input's raw bytes into a raster
//  2. Filter: compute the Difference of Gaussians of every input
//  3. Stack: place all results on one canvas, top to bottom in input order
//
// Filtering is cached per input, keyed by the content hash of the raw bytes
// and the filter parameters. A batch is all-or-nothing: the first failing
// input aborts the run and the returned error names it.
//
// # Usage
//
//	runner := pipeline.NewRunner(cache, nil, logger)
//	inputs, err := pipeline.LoadInputs(ctx, []string{"a.png", "https://example.com/b.jpg"})
//	if err != nil {
//	    return err
//	}
//	opts := pipeline.NewOptions()
//	opts.Sigma = 2
//	result, err := runner.Execute(ctx, inputs, opts)
//	if err != nil {
//	    name, _ := errors.FailedInput(err)
//	    ...
//	}
//	err = imageio.Save(opts.Output, result.Image, opts.Quality)
package pipeline

import (
	"image/color"
	"io"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/dogstack/pkg/cache"
	"github.com/matzehuels/dogstack/pkg/core/blur"
	"github.com/matzehuels/dogstack/pkg/core/dog"
	"github.com/matzehuels/dogstack/pkg/core/kernel"
	"github.com/matzehuels/dogstack/pkg/core/markers"
	"github.com/matzehuels/dogstack/pkg/core/raster"
	"github.com/matzehuels/dogstack/pkg/core/stack"
	errs "github.com/matzehuels/dogstack/pkg/errors"
	"github.com/matzehuels/dogstack/pkg/history"
	"github.com/matzehuels/dogstack/pkg/imageio"
)

// =============================================================================
// Default Values - Single Source of Truth for CLI and API
// =============================================================================

const (
	// DefaultSigma is the standard deviation of the narrow Gaussian.
	DefaultSigma = dog.DefaultSigma

	// DefaultK is the ratio of the wide Gaussian to the narrow one.
	DefaultK = dog.DefaultK

	// DefaultOutput is where the CLI writes the stacked result.
	DefaultOutput = "output.jpg"

	// DefaultBackground fills canvas regions next to narrower images.
	DefaultBackground = "black"

	// DefaultQuality is the JPEG quality of encoded output.
	DefaultQuality = imageio.DefaultQuality

	// DefaultParallel is the number of inputs filtered at once.
	DefaultParallel = 1
)

// ErrNoInputs is the message shown when a run has nothing to process.
const ErrNoInputs = "please specify one or several images"

// =============================================================================
// Options - Pipeline Configuration
// =============================================================================

// Options contains all configuration for a pipeline run.
// This struct supports JSON serialization for API requests.
type Options struct {
	// Filter options
	Sigma    float64 `json:"sigma"`
	K        float64 `json:"k"`
	Radius   string  `json:"radius,omitempty"`   // "support" (default) or "legacy"
	Boundary string  `json:"boundary,omitempty"` // "zero" (default) or "renormalize"
	Method   string  `json:"method,omitempty"`   // "two-pass" (default) or "single-pass"
	Workers  int     `json:"workers,omitempty"`  // row goroutines per image
	Refresh  bool    `json:"refresh,omitempty"`  // ignore cached results

	// Batch options
	Parallel int `json:"parallel,omitempty"` // images filtered concurrently

	// Output options
	Output     string   `json:"output,omitempty"`
	Background string   `json:"background,omitempty"`
	Quality    int      `json:"quality,omitempty"`
	Marks      []string `json:"marks,omitempty"` // "x,y[,r]" in canvas coordinates

	// Runtime options (not serialized)
	Logger     *log.Logger                          `json:"-"`
	OnProgress func(done, total int, input string) `json:"-"`

	// Resolved by ValidateAndSetDefaults.
	params     dog.Params
	background color.NRGBA
	points     []markers.Point
	validated  bool
}

// NewOptions returns options populated with every default.
func NewOptions() Options {
	return Options{
		Sigma:      DefaultSigma,
		K:          DefaultK,
		Parallel:   DefaultParallel,
		Output:     DefaultOutput,
		Background: DefaultBackground,
		Quality:    DefaultQuality,
	}
}

// Result contains the outputs of a pipeline run.
type Result struct {
	// Image is the stacked canvas with markers applied.
	Image *raster.Image

	// Inputs describes each processed input in order.
	Inputs []InputResult

	// Stats contains timing information.
	Stats Stats

	// CacheInfo tracks cache usage across inputs.
	CacheInfo CacheInfo
}

// InputResult describes one filtered input.
type InputResult struct {
	Name     string
	Hash     string
	Width    int
	Height   int
	Cached   bool
	Duration time.Duration
}

// Stats contains pipeline execution statistics.
type Stats struct {
	FilterTime time.Duration
	StackTime  time.Duration
	TotalTime  time.Duration
}

// CacheInfo tracks cache hits across the inputs of a run.
type CacheInfo struct {
	Hits   int
	Misses int
}

// =============================================================================
// Options Methods
// =============================================================================

// ValidateAndSetDefaults checks every field and resolves the typed settings.
// Sigma and K are never defaulted here: zero is rejected as INVALID_PARAMETER.
// This method is idempotent - calling it multiple times has the same effect as calling it once.
func (o *Options) ValidateAndSetDefaults() error {
	if o.validated {
		return nil
	}
	o.SetOutputDefaults()

	radius, err := kernel.ParseRadiusPolicy(o.Radius)
	if err != nil {
		return err
	}
	boundary, err := blur.ParseBoundary(o.Boundary)
	if err != nil {
		return err
	}
	method, err := dog.ParseMethod(o.Method)
	if err != nil {
		return err
	}
	o.params = dog.Params{
		Sigma:    o.Sigma,
		K:        o.K,
		Radius:   radius,
		Boundary: boundary,
		Method:   method,
		Workers:  o.Workers,
	}
	if err := o.params.Validate(); err != nil {
		return err
	}
	if o.Parallel < 0 {
		return errs.New(errs.ErrCodeInvalidParameter, "parallel must be >= 0, got %d", o.Parallel)
	}

	if o.background, err = stack.ParseColor(o.Background); err != nil {
		return err
	}
	o.points = o.points[:0]
	for _, m := range o.Marks {
		p, err := markers.ParsePoint(m)
		if err != nil {
			return err
		}
		o.points = append(o.points, p)
	}

	o.validated = true
	return nil
}

// SetOutputDefaults fills unset output and runtime fields.
func (o *Options) SetOutputDefaults() {
	if o.Parallel == 0 {
		o.Parallel = DefaultParallel
	}
	if o.Background == "" {
		o.Background = DefaultBackground
	}
	if o.Quality == 0 {
		o.Quality = DefaultQuality
	}
	if o.Logger == nil {
		o.Logger = log.NewWithOptions(io.Discard, log.Options{})
	}
}

// ValidateForSave checks the output path and its encoder.
func (o *Options) ValidateForSave() error {
	if o.Output == "" {
		o.Output = DefaultOutput
	}
	if err := errs.ValidateOutputPath(o.Output); err != nil {
		return err
	}
	_, err := imageio.FormatFor(o.Output)
	return err
}

// Copy returns o with resolved state cleared, so that fields changed on the
// copy are validated again.
func (o Options) Copy() Options {
	o.Marks = append([]string(nil), o.Marks...)
	o.params = dog.Params{}
	o.background = color.NRGBA{}
	o.points = nil
	o.validated = false
	return o
}

// Params returns the resolved filter parameters.
// Only meaningful after ValidateAndSetDefaults.
func (o *Options) Params() dog.Params {
	return o.params
}

// ImageKeyOpts returns cache key options for filtered images.
func (o *Options) ImageKeyOpts() cache.ImageKeyOpts {
	return cache.ImageKeyOpts{
		Sigma:    o.params.Sigma,
		K:        o.params.K,
		Radius:   o.params.Radius.String(),
		Boundary: o.params.Boundary.String(),
		Method:   o.params.Method.String(),
	}
}

// HistoryParams returns the parameters in run-history form.
func (o *Options) HistoryParams() history.Params {
	return history.Params{
		Sigma:    o.params.Sigma,
		K:        o.params.K,
		Radius:   o.params.Radius.String(),
		Boundary: o.params.Boundary.String(),
		Method:   o.params.Method.String(),
		Workers:  o.params.Workers,
	}
}

// HistoryInputs converts per-input results for a run record.
func (r *Result) HistoryInputs() []history.Input {
	out := make([]history.Input, len(r.Inputs))
	for i, in := range r.Inputs {
		out[i] = history.Input{
			Name:   in.Name,
			Hash:   in.Hash,
			Width:  in.Width,
			Height: in.Height,
			Cached: in.Cached,
		}
	}
	return out
}

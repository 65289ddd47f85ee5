package pipeline

import (
	"context"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"github.com/matzehuels/dogstack/pkg/cache"
	"github.com/matzehuels/dogstack/pkg/core/dog"
	"github.com/matzehuels/dogstack/pkg/core/markers"
	"github.com/matzehuels/dogstack/pkg/core/raster"
	"github.com/matzehuels/dogstack/pkg/core/stack"
	errs "github.com/matzehuels/dogstack/pkg/errors"
	"github.com/matzehuels/dogstack/pkg/httputil"
	"github.com/matzehuels/dogstack/pkg/imageio"
	"github.com/matzehuels/dogstack/pkg/observability"
)

// Input is one image to process: a display name and its encoded bytes.
type Input struct {
	Name string
	Data []byte
}

// LoadInputs reads every path into memory. Paths that are http(s) URLs are
// downloaded. The first unreadable input aborts the load and is named in the
// error.
func LoadInputs(ctx context.Context, paths []string) ([]Input, error) {
	if len(paths) == 0 {
		return nil, errs.New(errs.ErrCodeInvalidInput, ErrNoInputs)
	}
	var client *httputil.Client
	inputs := make([]Input, len(paths))
	for i, p := range paths {
		var (
			data []byte
			err  error
		)
		if httputil.IsURL(p) {
			if client == nil {
				client = httputil.NewClient(map[string]string{"User-Agent": "dogstack"})
			}
			data, err = client.Fetch(ctx, p)
		} else {
			data, err = imageio.LoadBytes(p)
		}
		if err != nil {
			return nil, errs.ForInput(p, err)
		}
		inputs[i] = Input{Name: p, Data: data}
	}
	return inputs, nil
}

// Runner encapsulates pipeline execution with caching.
// Both CLI and API can use this to avoid duplicating caching logic.
//
// The Runner is stateless except for the cache and logger - it doesn't
// store pipeline results. Multiple goroutines can safely use the same
// Runner with different options.
type Runner struct {
	Cache  cache.Cache
	Keyer  cache.Keyer
	Logger *log.Logger

	// TTL is the lifetime of cached results; zero means cache.TTLImage.
	TTL time.Duration

	// MaxPixels caps the size of a decoded input; zero means
	// imageio.DefaultMaxPixels.
	MaxPixels int
}

// NewRunner creates a runner with the given cache and keyer.
// If keyer is nil, a DefaultKeyer is used.
// If cache is nil, a NullCache is used (caching disabled).
func NewRunner(c cache.Cache, keyer cache.Keyer, logger *log.Logger) *Runner {
	if keyer == nil {
		keyer = cache.NewDefaultKeyer()
	}
	if c == nil {
		c = cache.NewNullCache()
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Runner{
		Cache:  c,
		Keyer:  keyer,
		Logger: logger,
	}
}

// Execute filters every input, stacks the results and draws markers.
// Any failing input aborts the whole run; no partial result is returned.
func (r *Runner) Execute(ctx context.Context, inputs []Input, opts Options) (*Result, error) {
	r.applyLogger(&opts)
	if err := opts.ValidateAndSetDefaults(); err != nil {
		return nil, err
	}
	if len(inputs) == 0 {
		return nil, errs.New(errs.ErrCodeInvalidInput, ErrNoInputs)
	}
	start := time.Now()

	result := &Result{Inputs: make([]InputResult, len(inputs))}
	images := make([]*raster.Image, len(inputs))

	// Stage 1+2: Decode and filter
	filterStart := time.Now()
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Parallel)

	progress := make(chan string, len(inputs))
	done := make(chan struct{})
	go func() {
		defer close(done)
		n := 0
		for name := range progress {
			n++
			if opts.OnProgress != nil {
				opts.OnProgress(n, len(inputs), name)
			}
		}
	}()

	for i, in := range inputs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			img, info, err := r.filter(gctx, in, opts)
			if err != nil {
				return err
			}
			images[i] = img
			result.Inputs[i] = info
			progress <- in.Name
			return nil
		})
	}
	err := g.Wait()
	close(progress)
	<-done
	if err != nil {
		return nil, err
	}
	result.Stats.FilterTime = time.Since(filterStart)

	for _, info := range result.Inputs {
		if info.Cached {
			result.CacheInfo.Hits++
		} else {
			result.CacheInfo.Misses++
		}
	}

	// Stage 3: Stack
	stackStart := time.Now()
	canvas, err := stack.Stack(images, stack.WithBackground(opts.background))
	if err == nil && len(opts.points) > 0 {
		canvas, err = markers.Draw(canvas, opts.points, markers.Magenta)
	}
	result.Stats.StackTime = time.Since(stackStart)
	if canvas != nil {
		observability.Pipeline().OnStackComplete(ctx, len(images), canvas.Width, canvas.Height, result.Stats.StackTime, err)
	} else {
		observability.Pipeline().OnStackComplete(ctx, len(images), 0, 0, result.Stats.StackTime, err)
	}
	if err != nil {
		return nil, err
	}
	result.Image = canvas
	result.Stats.TotalTime = time.Since(start)

	opts.Logger.Info("stacked images",
		"images", len(images),
		"width", canvas.Width,
		"height", canvas.Height,
		"cache_hits", result.CacheInfo.Hits,
		"duration", result.Stats.TotalTime)

	return result, nil
}

// filter runs one input through the cache-aware filter stage and reports
// hooks. Errors are attributed to the input.
func (r *Runner) filter(ctx context.Context, in Input, opts Options) (*raster.Image, InputResult, error) {
	observability.Pipeline().OnImageStart(ctx, in.Name)
	start := time.Now()

	img, hash, hit, err := r.FilterWithCacheInfo(ctx, in, opts)
	d := time.Since(start)
	observability.Pipeline().OnImageComplete(ctx, in.Name, hit, d, err)
	if err != nil {
		return nil, InputResult{}, errs.ForInput(in.Name, err)
	}

	opts.Logger.Debug("filtered image",
		"input", in.Name,
		"size", [2]int{img.Width, img.Height},
		"cached", hit,
		"duration", d)

	return img, InputResult{
		Name:     in.Name,
		Hash:     hash,
		Width:    img.Width,
		Height:   img.Height,
		Cached:   hit,
		Duration: d,
	}, nil
}

// FilterWithCacheInfo decodes and filters one input with caching. It returns
// the filtered raster, the content hash of the input and whether the result
// came from the cache.
func (r *Runner) FilterWithCacheInfo(ctx context.Context, in Input, opts Options) (*raster.Image, string, bool, error) {
	r.applyLogger(&opts)
	if err := opts.ValidateAndSetDefaults(); err != nil {
		return nil, "", false, err
	}

	hash := cache.Hash(in.Data)
	cacheKey := r.Keyer.ImageKey(hash, opts.ImageKeyOpts())

	// Try cache first (unless refresh requested)
	if !opts.Refresh {
		data, hit, err := r.Cache.Get(ctx, cacheKey)
		if err != nil {
			opts.Logger.Warn("cache read failed", "input", in.Name, "error", err)
		}
		if err == nil && hit {
			if img, err := imageio.ReadBytes(data); err == nil {
				observability.Cache().OnCacheHit(ctx, "image")
				return img, hash, true, nil
			}
			// Undecodable entry: fall through and overwrite it.
		}
		observability.Cache().OnCacheMiss(ctx, "image")
	}

	src, err := imageio.ReadBytesLimit(in.Data, r.MaxPixels)
	if err != nil {
		return nil, hash, false, err
	}
	out, err := dog.Apply(ctx, src, opts.params)
	if err != nil {
		return nil, hash, false, err
	}

	// PNG is lossless, so a cached result is byte-identical to a fresh one.
	if data, err := imageio.Encode(out, imageio.PNG, 0); err == nil {
		ttl := r.TTL
		if ttl <= 0 {
			ttl = cache.TTLImage
		}
		if err := r.Cache.Set(ctx, cacheKey, data, ttl); err != nil {
			opts.Logger.Warn("cache write failed", "input", in.Name, "error", err)
		} else {
			observability.Cache().OnCacheSet(ctx, "image", len(data))
		}
	}

	return out, hash, false, nil
}

// Filter is a convenience wrapper that calls FilterWithCacheInfo and discards the cache info.
func (r *Runner) Filter(ctx context.Context, in Input, opts Options) (*raster.Image, error) {
	img, _, _, err := r.FilterWithCacheInfo(ctx, in, opts)
	return img, err
}

// Close releases resources held by the runner (primarily the cache).
func (r *Runner) Close() error {
	if r.Cache != nil {
		return r.Cache.Close()
	}
	return nil
}

// applyLogger sets the runner's logger on options if not already set.
func (r *Runner) applyLogger(opts *Options) {
	if opts.Logger == nil {
		opts.Logger = r.Logger
	}
}

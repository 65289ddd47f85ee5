package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/matzehuels/dogstack/pkg/config"
	errs "github.com/matzehuels/dogstack/pkg/errors"
	"github.com/matzehuels/dogstack/pkg/history"
	"github.com/matzehuels/dogstack/pkg/imageio"
	"github.com/matzehuels/dogstack/pkg/pipeline"
)

// runFlags holds the flags of the run command. Only flags the user set
// override the config file.
type runFlags struct {
	output     string
	sigma      float64
	k          float64
	radius     string
	boundary   string
	method     string
	workers    int
	parallel   int
	background string
	quality    int
	marks      []string
	noCache    bool
	refresh    bool
	tui        bool
}

// runCommand creates the run command that filters and stacks images.
func (c *CLI) runCommand() *cobra.Command {
	var f runFlags

	cmd := &cobra.Command{
		Use:   "run <image>...",
		Short: "Filter images with a Difference of Gaussians and stack them",
		Long: `Filter each image with a Difference of Gaussians and stack the results
vertically, in argument order, into a single output image.

Inputs may be local files or http(s) URLs. Filter results are cached by
image content and parameters; use --refresh to recompute or --no-cache to
bypass the cache entirely.`,
		Example: `  # Filter two images with the defaults (sigma 3, k 1.6)
  dogstack run a.png b.jpg

  # Finer scale, white canvas, PNG output
  dogstack run --sigma 1.5 --background white -o stacked.png a.png b.png

  # Mark two points on the final canvas
  dogstack run --mark 10,20 --mark 40,80,5 a.png`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return errs.New(errs.ErrCodeInvalidInput, pipeline.ErrNoInputs)
			}
			cfg, err := c.loadConfig()
			if err != nil {
				return err
			}
			opts := cfg.PipelineOptions()
			f.apply(cmd.Flags(), &opts)
			return c.runPipeline(cmd.Context(), cfg, args, opts, f)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&f.output, "output", "o", pipeline.DefaultOutput, "output file, format taken from the extension")
	flags.Float64Var(&f.sigma, "sigma", pipeline.DefaultSigma, "standard deviation of the finer Gaussian")
	flags.Float64Var(&f.k, "k", pipeline.DefaultK, "scale factor of the second Gaussian")
	flags.StringVar(&f.radius, "radius", "support", "kernel radius policy: support, legacy")
	flags.StringVar(&f.boundary, "boundary", "zero", "edge handling: zero, renormalize")
	flags.StringVar(&f.method, "method", "two-pass", "DoG method: two-pass, single-pass")
	flags.IntVar(&f.workers, "workers", 1, "row goroutines per image")
	flags.IntVarP(&f.parallel, "parallel", "p", pipeline.DefaultParallel, "images filtered at once")
	flags.StringVar(&f.background, "background", pipeline.DefaultBackground, "canvas color: black, white, gray or #rrggbb")
	flags.IntVarP(&f.quality, "quality", "q", pipeline.DefaultQuality, "JPEG quality (1-100)")
	flags.StringArrayVar(&f.marks, "mark", nil, "draw a point at x,y[,r] on the result (repeatable)")
	flags.BoolVar(&f.noCache, "no-cache", false, "disable the result cache")
	flags.BoolVar(&f.refresh, "refresh", false, "recompute results even when cached")
	flags.BoolVar(&f.tui, "tui", false, "show an interactive per-image progress view")

	return cmd
}

// apply copies every flag the user set onto opts.
func (f runFlags) apply(flags *pflag.FlagSet, opts *pipeline.Options) {
	set := flags.Changed
	if set("output") {
		opts.Output = f.output
	}
	if set("sigma") {
		opts.Sigma = f.sigma
	}
	if set("k") {
		opts.K = f.k
	}
	if set("radius") {
		opts.Radius = f.radius
	}
	if set("boundary") {
		opts.Boundary = f.boundary
	}
	if set("method") {
		opts.Method = f.method
	}
	if set("workers") {
		opts.Workers = f.workers
	}
	if set("parallel") {
		opts.Parallel = f.parallel
	}
	if set("background") {
		opts.Background = f.background
	}
	if set("quality") {
		opts.Quality = f.quality
	}
	opts.Marks = f.marks
	opts.Refresh = f.refresh
}

// runPipeline loads, filters, stacks and saves, then records the run.
func (c *CLI) runPipeline(ctx context.Context, cfg config.Config, paths []string, opts pipeline.Options, f runFlags) (err error) {
	opts.Logger = c.Logger
	if err := opts.ValidateAndSetDefaults(); err != nil {
		return err
	}
	if err := opts.ValidateForSave(); err != nil {
		return err
	}

	store, err := c.openHistory(ctx, cfg)
	if err != nil {
		c.Logger.Warn("history unavailable, run will not be recorded", "error", err)
		store = history.NullStore{}
	}
	defer store.Close()

	run := history.NewRun(history.SourceCLI)
	run.Params = opts.HistoryParams()
	run.Output = opts.Output
	defer func() {
		run.Finish(err)
		if recErr := store.Record(context.WithoutCancel(ctx), run); recErr != nil {
			c.Logger.Warn("record run failed", "id", run.ID, "error", recErr)
		}
	}()

	runner, err := c.newRunner(ctx, cfg, f.noCache)
	if err != nil {
		return err
	}
	defer runner.Close()

	prog := newProgress(c.Logger)

	inputs, err := pipeline.LoadInputs(ctx, paths)
	if err != nil {
		return err
	}
	c.Logger.Debug("loaded inputs", "count", len(inputs))

	var result *pipeline.Result
	if f.tui {
		result, err = executeWithTUI(ctx, runner, inputs, opts)
	} else {
		result, err = c.executeWithSpinner(ctx, runner, inputs, opts)
	}
	if err != nil {
		return err
	}
	run.Inputs = result.HistoryInputs()
	run.Width, run.Height = result.Image.Width, result.Image.Height

	if err := imageio.Save(opts.Output, result.Image, opts.Quality); err != nil {
		return err
	}
	prog.done(fmt.Sprintf("Wrote %dx%d image", result.Image.Width, result.Image.Height))

	printSuccess("Stacked %d images", len(result.Inputs))
	for _, in := range result.Inputs {
		printInputStats(in.Name, in.Width, in.Height, in.Duration, in.Cached)
	}
	printFile(opts.Output)
	if cfg.History.Backend != config.BackendNone {
		printNextStep("Inspect this run", appName+" history show "+run.ID)
	}
	return nil
}

// executeWithSpinner runs the pipeline behind a spinner that names the most
// recently finished image.
func (c *CLI) executeWithSpinner(ctx context.Context, runner *pipeline.Runner, inputs []pipeline.Input, opts pipeline.Options) (*pipeline.Result, error) {
	spinner := newSpinnerWithContext(ctx, fmt.Sprintf("Filtering %d images...", len(inputs)))
	opts.OnProgress = func(done, total int, name string) {
		spinner.SetMessage(fmt.Sprintf("Filtered %d/%d %s", done, total, name))
	}
	spinner.Start()
	result, err := runner.Execute(ctx, inputs, opts)
	if err != nil {
		spinner.Stop()
		if spinner.Cancelled() {
			return nil, ctx.Err()
		}
		return nil, err
	}
	spinner.Stop()
	return result, nil
}

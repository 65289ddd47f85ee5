package cli

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"github.com/matzehuels/dogstack/pkg/api"
	"github.com/matzehuels/dogstack/pkg/config"
	"github.com/matzehuels/dogstack/pkg/history"
	"github.com/matzehuels/dogstack/pkg/imageio"
	"github.com/matzehuels/dogstack/pkg/observability"
)

// serveCommand creates the serve command that exposes the pipeline over HTTP.
func (c *CLI) serveCommand() *cobra.Command {
	var (
		addr        string
		maxUploadMB int
		maxPixels   int
		noCache     bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the DoG pipeline over HTTP",
		Long: `Serve the DoG pipeline over HTTP.

POST one or more images as multipart "image" parts to /v1/dog and receive
the stacked result. Filter parameters are query parameters and default to
the config file values. Runs are recorded in the history store, and
/v1/stats reports pipeline, cache and request counters.`,
		Example: `  dogstack serve --addr :9000
  curl -F image=@a.png -F image=@b.png 'localhost:9000/v1/dog?sigma=2' -o out.png`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.loadConfig()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("addr") {
				cfg.Server.Addr = addr
			}
			if cmd.Flags().Changed("max-upload-mb") {
				cfg.Server.MaxUploadMB = maxUploadMB
			}
			if cmd.Flags().Changed("max-pixels") {
				cfg.Server.MaxPixels = maxPixels
			}
			err = c.serve(cmd.Context(), cfg, noCache)
			if errors.Is(err, context.Canceled) {
				printInfo("Server stopped")
				return nil
			}
			return err
		},
	}

	cmd.Flags().StringVar(&addr, "addr", api.DefaultAddr, "listen address")
	cmd.Flags().IntVar(&maxUploadMB, "max-upload-mb", api.DefaultMaxUploadBytes>>20, "request body limit in MiB")
	cmd.Flags().IntVar(&maxPixels, "max-pixels", imageio.DefaultMaxPixels, "largest accepted input in pixels")
	cmd.Flags().BoolVar(&noCache, "no-cache", false, "disable the result cache")

	return cmd
}

// serve runs the HTTP server until ctx is cancelled.
func (c *CLI) serve(ctx context.Context, cfg config.Config, noCache bool) error {
	runner, err := c.newRunner(ctx, cfg, noCache)
	if err != nil {
		return err
	}
	defer runner.Close()

	store, err := c.openHistory(ctx, cfg)
	if err != nil {
		c.Logger.Warn("history unavailable, runs will not be recorded", "error", err)
		store = history.NullStore{}
	}
	defer store.Close()

	counters := observability.NewCounters()
	observability.SetPipelineHooks(counters)
	observability.SetCacheHooks(counters)
	observability.SetHTTPHooks(counters)
	defer observability.Reset()

	defaults := cfg.PipelineOptions()
	if err := defaults.ValidateAndSetDefaults(); err != nil {
		return err
	}

	srv := api.New(api.Config{
		Addr:           cfg.Server.Addr,
		MaxUploadBytes: int64(cfg.Server.MaxUploadMB) << 20,
		Defaults:       defaults,
	}, runner, store, counters, c.Logger)

	printInfo("Serving on %s", StyleHighlight.Render(cfg.Server.Addr))
	printDetail("Cache: %s · History: %s", cfg.Cache.Backend, cfg.History.Backend)
	return srv.ListenAndServe(ctx)
}

package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/matzehuels/dogstack/pkg/cache"
	"github.com/matzehuels/dogstack/pkg/config"
)

// cacheCommand creates the cache management command.
func (c *CLI) cacheCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the filter result cache",
	}

	cmd.AddCommand(c.cacheClearCommand())
	cmd.AddCommand(c.cachePathCommand())
	cmd.AddCommand(c.cacheInfoCommand())

	return cmd
}

// cacheClearCommand creates the "cache clear" subcommand.
func (c *CLI) cacheClearCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Remove every cached filter result",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.loadConfig()
			if err != nil {
				return err
			}
			ch, err := cfg.OpenCache(cmd.Context())
			if err != nil {
				return err
			}
			defer ch.Close()

			clearer, ok := ch.(cache.Clearer)
			if !ok {
				printInfo("Cache backend %q has nothing to clear", cfg.Cache.Backend)
				return nil
			}

			var before int
			fc, isFile := ch.(*cache.FileCache)
			if isFile {
				before, _, _ = fc.Usage()
				if before == 0 {
					printInfo("Cache is empty")
					return nil
				}
			}

			if err := clearer.Clear(cmd.Context()); err != nil {
				return err
			}

			if isFile {
				printSuccess("Cleared %d cached entries", before)
				printDetail("Directory: %s", fc.Dir())
			} else {
				printSuccess("Cleared %s cache", cfg.Cache.Backend)
			}
			return nil
		},
	}
}

// cachePathCommand creates the "cache path" subcommand.
func (c *CLI) cachePathCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the cache directory path",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.loadConfig()
			if err != nil {
				return err
			}
			dir, err := cacheDirFor(cfg)
			if err != nil {
				return fmt.Errorf("get cache dir: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), dir)
			return nil
		},
	}
}

// cacheInfoCommand creates the "cache info" subcommand.
func (c *CLI) cacheInfoCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Show the cache backend and its usage",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.loadConfig()
			if err != nil {
				return err
			}
			printKeyValue("Backend", cfg.Cache.Backend)
			printKeyValue("TTL", cfg.Cache.TTL)

			switch cfg.Cache.Backend {
			case config.BackendRedis:
				printKeyValue("Address", cfg.Cache.RedisAddr)
			case config.BackendFile:
				ch, err := cfg.OpenCache(cmd.Context())
				if err != nil {
					return err
				}
				defer ch.Close()
				fc := ch.(*cache.FileCache)
				entries, size, err := fc.Usage()
				if err != nil {
					return err
				}
				printKeyValue("Directory", fc.Dir())
				printKeyValue("Entries", fmt.Sprintf("%d", entries))
				printKeyValue("Size", formatBytes(size))
			}
			return nil
		},
	}
}

// cacheDirFor returns the directory a file cache would use under cfg.
func cacheDirFor(cfg config.Config) (string, error) {
	if cfg.Cache.Dir != "" {
		return cfg.Cache.Dir, nil
	}
	return config.CacheDir()
}

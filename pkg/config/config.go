// Package config loads dogstack settings from a TOML file.
//
// Settings resolve in three layers: built-in defaults, then the config file,
// then command-line flags (applied by the caller). A missing default config
// file is not an error; a missing file named explicitly with --config is.
//
// # File Format
//
//	sigma = 3.0
//	k = 1.6
//	boundary = "renormalize"
//
//	[cache]
//	backend = "redis"
//	redis_addr = "localhost:6379"
//
//	[history]
//	backend = "file"
//
// Unknown keys are rejected so that typos do not silently fall back to
// defaults.
package config

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/matzehuels/dogstack/pkg/cache"
	errs "github.com/matzehuels/dogstack/pkg/errors"
	"github.com/matzehuels/dogstack/pkg/history"
	"github.com/matzehuels/dogstack/pkg/imageio"
	"github.com/matzehuels/dogstack/pkg/pipeline"
)

// AppName names the per-user config and cache directories.
const AppName = "dogstack"

// Backend names accepted in the [cache] and [history] sections.
const (
	BackendNone  = "none"
	BackendFile  = "file"
	BackendRedis = "redis"
	BackendMongo = "mongo"
)

// Config is the decoded configuration file.
type Config struct {
	Sigma      float64 `toml:"sigma"`
	K          float64 `toml:"k"`
	Radius     string  `toml:"radius"`
	Boundary   string  `toml:"boundary"`
	Method     string  `toml:"method"`
	Workers    int     `toml:"workers"`
	Parallel   int     `toml:"parallel"`
	Background string  `toml:"background"`
	Output     string  `toml:"output"`
	Quality    int     `toml:"quality"`

	Cache   CacheConfig   `toml:"cache"`
	History HistoryConfig `toml:"history"`
	Server  ServerConfig  `toml:"server"`
}

// CacheConfig selects and configures the result cache.
type CacheConfig struct {
	Backend       string `toml:"backend"`
	Dir           string `toml:"dir"`
	RedisAddr     string `toml:"redis_addr"`
	RedisPassword string `toml:"redis_password"`
	RedisDB       int    `toml:"redis_db"`
	TTL           string `toml:"ttl"`

	// Namespace prefixes every key, so deployments can share one Redis.
	Namespace string `toml:"namespace"`
}

// HistoryConfig selects and configures the run history store.
type HistoryConfig struct {
	Backend       string `toml:"backend"`
	Dir           string `toml:"dir"`
	MongoURI      string `toml:"mongo_uri"`
	MongoDatabase string `toml:"mongo_database"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr        string `toml:"addr"`
	MaxUploadMB int    `toml:"max_upload_mb"`

	// MaxPixels caps the decoded size of every input, uploaded or loaded
	// from a path or URL.
	MaxPixels int `toml:"max_pixels"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Sigma:      pipeline.DefaultSigma,
		K:          pipeline.DefaultK,
		Radius:     "support",
		Boundary:   "zero",
		Method:     "two-pass",
		Workers:    1,
		Parallel:   pipeline.DefaultParallel,
		Background: pipeline.DefaultBackground,
		Output:     pipeline.DefaultOutput,
		Quality:    pipeline.DefaultQuality,
		Cache: CacheConfig{
			Backend:   BackendFile,
			RedisAddr: "localhost:6379",
			TTL:       cache.TTLImage.String(),
		},
		History: HistoryConfig{
			Backend:       BackendNone,
			MongoURI:      "mongodb://localhost:27017",
			MongoDatabase: "dogstack",
		},
		Server: ServerConfig{
			Addr:        ":8080",
			MaxUploadMB: 32,
			MaxPixels:   imageio.DefaultMaxPixels,
		},
	}
}

// =============================================================================
// Loading
// =============================================================================

// Load reads the config file at path on top of the defaults. An empty path
// selects DefaultPath, which may be absent.
func Load(path string) (Config, error) {
	cfg := Default()
	explicit := path != ""
	if !explicit {
		p, err := DefaultPath()
		if err != nil {
			return cfg, nil
		}
		path = p
	}

	md, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return Default(), nil
		}
		if errors.Is(err, fs.ErrNotExist) {
			return Config{}, errs.Wrap(errs.ErrCodeIO, err, "config file %s", path)
		}
		return Config{}, errs.Wrap(errs.ErrCodeInvalidConfig, err, "parse %s", path)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		sort.Strings(keys)
		return Config{}, errs.New(errs.ErrCodeInvalidConfig, "unknown keys in %s: %s", path, strings.Join(keys, ", "))
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks settings that the pipeline does not validate itself.
func (c Config) Validate() error {
	switch c.Cache.Backend {
	case BackendNone, BackendFile, BackendRedis:
	default:
		return errs.New(errs.ErrCodeInvalidConfig, "cache.backend must be none, file or redis, got %q", c.Cache.Backend)
	}
	switch c.History.Backend {
	case BackendNone, BackendFile, BackendMongo:
	default:
		return errs.New(errs.ErrCodeInvalidConfig, "history.backend must be none, file or mongo, got %q", c.History.Backend)
	}
	if _, err := c.CacheTTL(); err != nil {
		return err
	}
	if c.Quality < 1 || c.Quality > 100 {
		return errs.New(errs.ErrCodeInvalidConfig, "quality must be between 1 and 100, got %d", c.Quality)
	}
	if c.Server.MaxUploadMB <= 0 {
		return errs.New(errs.ErrCodeInvalidConfig, "server.max_upload_mb must be > 0, got %d", c.Server.MaxUploadMB)
	}
	if c.Server.MaxPixels <= 0 {
		return errs.New(errs.ErrCodeInvalidConfig, "server.max_pixels must be > 0, got %d", c.Server.MaxPixels)
	}
	return nil
}

// Keyer returns the cache keyer, scoped to cache.namespace when set.
func (c Config) Keyer() cache.Keyer {
	if c.Cache.Namespace == "" {
		return cache.NewDefaultKeyer()
	}
	return cache.NewScopedKeyer(cache.NewDefaultKeyer(), c.Cache.Namespace+":")
}

// CacheTTL parses the cache.ttl setting. An empty value selects cache.TTLImage.
func (c Config) CacheTTL() (time.Duration, error) {
	if c.Cache.TTL == "" {
		return cache.TTLImage, nil
	}
	d, err := time.ParseDuration(c.Cache.TTL)
	if err != nil || d <= 0 {
		return 0, errs.New(errs.ErrCodeInvalidConfig, "cache.ttl must be a positive duration, got %q", c.Cache.TTL)
	}
	return d, nil
}

// PipelineOptions returns pipeline options populated from the config.
// Flags override individual fields afterwards.
func (c Config) PipelineOptions() pipeline.Options {
	return pipeline.Options{
		Sigma:      c.Sigma,
		K:          c.K,
		Radius:     c.Radius,
		Boundary:   c.Boundary,
		Method:     c.Method,
		Workers:    c.Workers,
		Parallel:   c.Parallel,
		Output:     c.Output,
		Background: c.Background,
		Quality:    c.Quality,
	}
}

// =============================================================================
// Paths
// =============================================================================

// DefaultPath returns $XDG_CONFIG_HOME/dogstack/config.toml, falling back
// to ~/.config/dogstack/config.toml.
func DefaultPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// ConfigDir returns the per-user config directory.
func ConfigDir() (string, error) {
	if configHome := os.Getenv("XDG_CONFIG_HOME"); configHome != "" {
		return filepath.Join(configHome, AppName), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", AppName), nil
}

// CacheDir returns the per-user cache directory.
func CacheDir() (string, error) {
	if cacheHome := os.Getenv("XDG_CACHE_HOME"); cacheHome != "" {
		return filepath.Join(cacheHome, AppName), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".cache", AppName), nil
}

// =============================================================================
// Backends
// =============================================================================

// OpenCache constructs the configured cache backend.
func (c Config) OpenCache(ctx context.Context) (cache.Cache, error) {
	switch c.Cache.Backend {
	case BackendNone:
		return cache.NewNullCache(), nil
	case BackendRedis:
		rc, err := cache.NewRedisCache(ctx, cache.RedisConfig{
			Addr:     c.Cache.RedisAddr,
			Password: c.Cache.RedisPassword,
			DB:       c.Cache.RedisDB,
		})
		if err != nil {
			return nil, err
		}
		return rc, nil
	default:
		dir := c.Cache.Dir
		if dir == "" {
			d, err := CacheDir()
			if err != nil {
				return nil, errs.Wrap(errs.ErrCodeIO, err, "resolve cache dir")
			}
			dir = d
		}
		fc, err := cache.NewFileCache(dir)
		if err != nil {
			return nil, err
		}
		return fc, nil
	}
}

// OpenHistory constructs the configured history store.
func (c Config) OpenHistory(ctx context.Context) (history.Store, error) {
	switch c.History.Backend {
	case BackendFile:
		dir := c.History.Dir
		if dir == "" {
			d, err := ConfigDir()
			if err != nil {
				return nil, errs.Wrap(errs.ErrCodeIO, err, "resolve history dir")
			}
			dir = filepath.Join(d, "history")
		}
		store, err := history.NewFileStore(dir)
		if err != nil {
			return nil, err
		}
		return store, nil
	case BackendMongo:
		ms, err := history.NewMongoStore(ctx, history.MongoConfig{
			URI:      c.History.MongoURI,
			Database: c.History.MongoDatabase,
		})
		if err != nil {
			return nil, err
		}
		return ms, nil
	default:
		return history.NullStore{}, nil
	}
}

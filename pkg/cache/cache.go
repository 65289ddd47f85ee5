// Package cache stores filter results keyed by input content and parameters.
//
// A DoG result depends only on the input pixels and the filter parameters,
// so repeated runs over the same files can skip the convolution entirely.
// Entries are opaque byte slices (the pipeline stores lossless PNG).
//
// Backends:
//   - [FileCache]: sharded JSON envelopes on disk, for the CLI
//   - [RedisCache]: shared cache for multi-instance server deployments
//   - [NullCache]: disables caching
//
// Keys are produced by a [Keyer] so that every component derives the same key
// for the same work.
package cache

import (
	"context"
	"time"
)

// Default time-to-live values.
const (
	// TTLImage is how long a filtered image stays cached.
	TTLImage = 7 * 24 * time.Hour
)

// Cache is a byte-oriented key/value store with per-entry expiry.
type Cache interface {
	// Get returns the value for key. A miss is (nil, false, nil); an error
	// means the backend could not be queried.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores data under key. A ttl <= 0 means no expiry.
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Close releases backend resources.
	Close() error
}

// Clearer is implemented by caches that can drop every entry they own.
type Clearer interface {
	Clear(ctx context.Context) error
}

// ImageKeyOpts are the filter parameters that change a cached result.
// Worker count is not part of the key; parallel output is byte-identical.
type ImageKeyOpts struct {
	Sigma    float64 `json:"sigma"`
	K        float64 `json:"k"`
	Radius   string  `json:"radius"`
	Boundary string  `json:"boundary"`
	Method   string  `json:"method"`
}

// Keyer derives cache keys.
type Keyer interface {
	// ImageKey returns the key for the filtered version of an input whose
	// raw bytes hash to contentHash.
	ImageKey(contentHash string, opts ImageKeyOpts) string
}

// keyVersion is bumped whenever the filter output for identical parameters
// changes, so stale entries are never served.
const keyVersion = 1

// DefaultKeyer is the standard Keyer.
type DefaultKeyer struct{}

// NewDefaultKeyer creates the standard keyer.
func NewDefaultKeyer() Keyer {
	return DefaultKeyer{}
}

// ImageKey implements Keyer.
func (DefaultKeyer) ImageKey(contentHash string, opts ImageKeyOpts) string {
	return hashKey("dog", keyVersion, contentHash, opts)
}

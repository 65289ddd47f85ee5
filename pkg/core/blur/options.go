package blur

import (
	"context"
	"fmt"

	"github.com/matzehuels/dogstack/pkg/core/kernel"
	errs "github.com/matzehuels/dogstack/pkg/errors"
)

// Boundary selects how samples outside the image are treated.
type Boundary int

const (
	// BoundaryZero skips out-of-bounds samples without renormalizing the
	// kernel. Pixels near the border lose the skipped kernel mass and come
	// out darker than the interior.
	BoundaryZero Boundary = iota

	// BoundaryRenormalize divides by the in-bounds kernel mass, so borders
	// keep their brightness. A 1×1 image is returned unchanged.
	BoundaryRenormalize
)

var boundaryNames = map[Boundary]string{
	BoundaryZero:        "zero",
	BoundaryRenormalize: "renormalize",
}

// String returns the configuration name of the boundary policy.
func (b Boundary) String() string {
	if s, ok := boundaryNames[b]; ok {
		return s
	}
	return fmt.Sprintf("Boundary(%d)", int(b))
}

// Valid reports whether b is a known policy.
func (b Boundary) Valid() bool {
	_, ok := boundaryNames[b]
	return ok
}

// ParseBoundary parses a boundary policy name. The empty string selects
// BoundaryZero.
func ParseBoundary(s string) (Boundary, error) {
	switch s {
	case "", "zero":
		return BoundaryZero, nil
	case "renormalize":
		return BoundaryRenormalize, nil
	default:
		return 0, errs.New(errs.ErrCodeInvalidParameter, "invalid boundary policy: %q (must be 'zero' or 'renormalize')", s)
	}
}

// Option configures a blur.
type Option func(*config)

type config struct {
	ctx      context.Context
	policy   kernel.RadiusPolicy
	boundary Boundary
	workers  int
}

func newConfig(opts []Option) config {
	c := config{
		ctx:     context.Background(),
		policy:  kernel.RadiusSupport,
		workers: 1,
	}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

func (c config) validate() error {
	if !c.boundary.Valid() {
		return errs.New(errs.ErrCodeInvalidParameter, "unknown boundary policy %d", int(c.boundary))
	}
	if c.workers < 0 {
		return errs.New(errs.ErrCodeInvalidParameter, "workers must be >= 0, got %d", c.workers)
	}
	return nil
}

// WithRadiusPolicy sets how sigma maps to a window (default RadiusSupport).
func WithRadiusPolicy(p kernel.RadiusPolicy) Option {
	return func(c *config) { c.policy = p }
}

// WithBoundary sets the boundary policy (default BoundaryZero).
func WithBoundary(b Boundary) Option {
	return func(c *config) { c.boundary = b }
}

// WithWorkers splits the rows of each pass across n goroutines.
// 0 and 1 both mean single-threaded.
func WithWorkers(n int) Option {
	return func(c *config) { c.workers = n }
}

// WithContext makes the blur stop between row bands once ctx is done.
func WithContext(ctx context.Context) Option {
	return func(c *config) {
		if ctx != nil {
			c.ctx = ctx
		}
	}
}

// Package kernel evaluates the isotropic 2D Gaussian and precomputes the
// truncated, normalized tables the convolution stages iterate over.
//
// The 2D Gaussian factors into two identical 1D Gaussians:
//
//	Weight(dx, dy, σ) = g(dx)·g(dy),  g(x) = exp(-x²/2σ²) / (σ√(2π))
//
// so a [Table] stores only g over the window and reproduces any 2D weight
// with [Table.At]. Tables are scaled so the full 2D window sums to 1; a
// uniform region far from the image border is therefore reproduced exactly.
package kernel

import (
	"fmt"
	"math"

	errs "github.com/matzehuels/dogstack/pkg/errors"
)

// SupportFactor is the number of standard deviations covered by the
// support radius policy.
const SupportFactor = 3.0

// RadiusPolicy selects how a sigma is turned into an integer window.
type RadiusPolicy int

const (
	// RadiusSupport uses r = ceil(3σ) and the closed window [-r, r].
	RadiusSupport RadiusPolicy = iota

	// RadiusLegacy uses r = max(floor(σ), 1) and the half-open window
	// [-r, r). It under-samples the kernel tail and shifts the response
	// by half a pixel; it exists to compare against older outputs.
	RadiusLegacy
)

var radiusPolicyNames = map[RadiusPolicy]string{
	RadiusSupport: "support",
	RadiusLegacy:  "legacy",
}

// String returns the configuration name of the policy.
func (p RadiusPolicy) String() string {
	if s, ok := radiusPolicyNames[p]; ok {
		return s
	}
	return fmt.Sprintf("RadiusPolicy(%d)", int(p))
}

// Valid reports whether p is a known policy.
func (p RadiusPolicy) Valid() bool {
	_, ok := radiusPolicyNames[p]
	return ok
}

// ParseRadiusPolicy parses a policy name as used in flags and config files.
// The empty string selects RadiusSupport.
func ParseRadiusPolicy(s string) (RadiusPolicy, error) {
	switch s {
	case "", "support":
		return RadiusSupport, nil
	case "legacy":
		return RadiusLegacy, nil
	default:
		return 0, errs.New(errs.ErrCodeInvalidParameter, "invalid radius policy: %q (must be 'support' or 'legacy')", s)
	}
}

// Validate checks that sigma is a usable standard deviation.
func Validate(sigma float64) error {
	return errs.ValidatePositive("sigma", sigma)
}

// Weight evaluates the normalized isotropic 2D Gaussian density at integer
// offset (dx, dy). Callers must validate sigma first; Weight does not guard
// against sigma <= 0.
func Weight(dx, dy int, sigma float64) float64 {
	twoSigmaSq := 2 * sigma * sigma
	d2 := float64(dx*dx + dy*dy)
	return math.Exp(-d2/twoSigmaSq) / (math.Pi * twoSigmaSq)
}

// Radius returns the window half-extent for sigma under policy.
func Radius(sigma float64, policy RadiusPolicy) int {
	switch policy {
	case RadiusLegacy:
		r := int(sigma)
		if r < 1 {
			r = 1
		}
		return r
	default:
		return int(math.Ceil(sigma * SupportFactor))
	}
}

// Window returns the inclusive offset range [lo, hi] covered by a radius
// under policy.
func Window(radius int, policy RadiusPolicy) (lo, hi int) {
	if policy == RadiusLegacy {
		return -radius, radius - 1
	}
	return -radius, radius
}

// Table is a precomputed, normalized separable Gaussian kernel.
// A Table is immutable after construction and safe for concurrent reads.
type Table struct {
	Sigma  float64
	Policy RadiusPolicy
	Radius int
	Lo, Hi int // inclusive window offsets

	taps []float64 // taps[i-Lo] = g(i) / Σg
	mass float64   // Σ Weight(i, j) over the window before normalization
}

// NewTable builds the table for sigma under policy.
func NewTable(sigma float64, policy RadiusPolicy) (*Table, error) {
	if err := Validate(sigma); err != nil {
		return nil, err
	}
	if !policy.Valid() {
		return nil, errs.New(errs.ErrCodeInvalidParameter, "unknown radius policy %d", int(policy))
	}

	r := Radius(sigma, policy)
	lo, hi := Window(r, policy)

	// 1D density g(x); Weight(x, y) == g(x)*g(y).
	norm := 1 / (sigma * math.Sqrt(2*math.Pi))
	twoSigmaSq := 2 * sigma * sigma

	taps := make([]float64, hi-lo+1)
	var sum float64
	for i := lo; i <= hi; i++ {
		g := math.Exp(-float64(i*i)/twoSigmaSq) * norm
		taps[i-lo] = g
		sum += g
	}
	for i := range taps {
		taps[i] /= sum
	}

	return &Table{
		Sigma:  sigma,
		Policy: policy,
		Radius: r,
		Lo:     lo,
		Hi:     hi,
		taps:   taps,
		mass:   sum * sum,
	}, nil
}

// Tap returns the normalized 1D factor at offset i, or 0 outside the window.
func (t *Table) Tap(i int) float64 {
	if i < t.Lo || i > t.Hi {
		return 0
	}
	return t.taps[i-t.Lo]
}

// At returns the normalized 2D weight at (dx, dy), or 0 outside the window.
// At(dx, dy) == Weight(dx, dy, Sigma) / Mass().
func (t *Table) At(dx, dy int) float64 {
	return t.Tap(dx) * t.Tap(dy)
}

// Taps returns a copy of the 1D factors ordered from Lo to Hi.
func (t *Table) Taps() []float64 {
	out := make([]float64, len(t.taps))
	copy(out, t.taps)
	return out
}

// Len returns the number of taps along one axis.
func (t *Table) Len() int { return len(t.taps) }

// Mass returns the total continuous-density weight captured by the window,
// i.e. the sum of Weight over the window before normalization.
func (t *Table) Mass() float64 { return t.mass }

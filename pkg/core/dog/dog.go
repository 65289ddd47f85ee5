// Package dog computes the Difference of Gaussians of an image.
//
// DoG(img, σ, k) = Difference(Blur(img, k·σ), Blur(img, σ))
//
// Each Gaussian is applied with its own correctly sized window, then the
// narrow blur is subtracted from the wide one and clamped to [0, 1]. With
// k > 1 the result is bright where the wide blur exceeds the narrow one,
// i.e. on the dark side of edges and around small dark blobs.
//
// A uniform image yields black everywhere only when k > 1 or the boundary
// is [blur.BoundaryRenormalize]. With k < 1 under the default zero padding
// the subtracted blur is the wider one. It loses more mass near the border,
// so the result brightens toward the edges and corners.
//
// [SinglePass] evaluates the same difference in one sweep over the union of
// both windows without quantizing the intermediate blurs. It is kept as a
// cross-check and selectable through [MethodSinglePass].
package dog

import (
	"context"
	"fmt"

	"github.com/matzehuels/dogstack/pkg/core/blur"
	"github.com/matzehuels/dogstack/pkg/core/kernel"
	"github.com/matzehuels/dogstack/pkg/core/raster"
	errs "github.com/matzehuels/dogstack/pkg/errors"
)

// Default filter parameters.
const (
	DefaultSigma = 3.0
	DefaultK     = 1.6
)

// Method selects how the difference is evaluated.
type Method int

const (
	// MethodTwoPass blurs twice and subtracts the 8-bit results.
	MethodTwoPass Method = iota

	// MethodSinglePass accumulates the difference of both kernels directly.
	MethodSinglePass
)

var methodNames = map[Method]string{
	MethodTwoPass:    "two-pass",
	MethodSinglePass: "single-pass",
}

// String returns the configuration name of the method.
func (m Method) String() string {
	if s, ok := methodNames[m]; ok {
		return s
	}
	return fmt.Sprintf("Method(%d)", int(m))
}

// ParseMethod parses a method name. The empty string selects MethodTwoPass.
func ParseMethod(s string) (Method, error) {
	switch s {
	case "", "two-pass":
		return MethodTwoPass, nil
	case "single-pass":
		return MethodSinglePass, nil
	default:
		return 0, errs.New(errs.ErrCodeInvalidParameter, "invalid method: %q (must be 'two-pass' or 'single-pass')", s)
	}
}

// Params fully describes one DoG evaluation.
type Params struct {
	Sigma    float64             // Standard deviation of the narrow Gaussian (> 0)
	K        float64             // Scale of the wide Gaussian relative to Sigma (> 0)
	Radius   kernel.RadiusPolicy // Window policy, shared by both Gaussians
	Boundary blur.Boundary       // Out-of-bounds policy, shared by both Gaussians
	Method   Method              // Evaluation strategy
	Workers  int                 // Row parallelism; 0 or 1 runs serially
}

// DefaultParams returns the parameters used when nothing is configured.
func DefaultParams() Params {
	return Params{Sigma: DefaultSigma, K: DefaultK}
}

// Validate checks every field of p.
func (p Params) Validate() error {
	if err := errs.ValidatePositive("sigma", p.Sigma); err != nil {
		return err
	}
	if err := errs.ValidatePositive("k", p.K); err != nil {
		return err
	}
	if err := errs.ValidatePositive("k*sigma", p.K*p.Sigma); err != nil {
		return err
	}
	if _, ok := methodNames[p.Method]; !ok {
		return errs.New(errs.ErrCodeInvalidParameter, "unknown method %d", int(p.Method))
	}
	if !p.Boundary.Valid() {
		return errs.New(errs.ErrCodeInvalidParameter, "unknown boundary policy %d", int(p.Boundary))
	}
	if !p.Radius.Valid() {
		return errs.New(errs.ErrCodeInvalidParameter, "unknown radius policy %d", int(p.Radius))
	}
	if p.Workers < 0 {
		return errs.New(errs.ErrCodeInvalidParameter, "workers must be >= 0, got %d", p.Workers)
	}
	return nil
}

func (p Params) blurOptions(ctx context.Context) []blur.Option {
	return []blur.Option{
		blur.WithContext(ctx),
		blur.WithRadiusPolicy(p.Radius),
		blur.WithBoundary(p.Boundary),
		blur.WithWorkers(p.Workers),
	}
}

// DoG returns the Difference of Gaussians of img with the default window and
// boundary policies. It fails with INVALID_PARAMETER when sigma or k is not
// a finite positive number; no partial output is returned.
func DoG(img *raster.Image, sigma, k float64) (*raster.Image, error) {
	return Apply(context.Background(), img, Params{Sigma: sigma, K: k})
}

// Apply evaluates the DoG described by p.
func Apply(ctx context.Context, img *raster.Image, p Params) (*raster.Image, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if err := img.Validate(); err != nil {
		return nil, err
	}
	if p.Method == MethodSinglePass {
		return singlePass(ctx, img, p)
	}

	opts := p.blurOptions(ctx)
	wide, err := blur.Blur(img, p.K*p.Sigma, opts...)
	if err != nil {
		return nil, err
	}
	narrow, err := blur.Blur(img, p.Sigma, opts...)
	if err != nil {
		return nil, err
	}
	return Difference(wide, narrow)
}

// Difference subtracts b from a channel-wise and clamps the result through
// raster.ToPixel. Both images must have the same dimensions.
func Difference(a, b *raster.Image) (*raster.Image, error) {
	if err := a.Validate(); err != nil {
		return nil, err
	}
	if err := b.Validate(); err != nil {
		return nil, err
	}
	if !a.SameSize(b) {
		return nil, errs.New(errs.ErrCodeDimensionMismatch, "cannot subtract %dx%d from %dx%d",
			b.Width, b.Height, a.Width, a.Height)
	}

	out, err := raster.New(a.Width, a.Height)
	if err != nil {
		return nil, err
	}
	for y := 0; y < a.Height; y++ {
		for x := 0; x < a.Width; x++ {
			out.SetPixel(x, y, raster.ToPixel(a.At(x, y).Sub(b.At(x, y))))
		}
	}
	return out, nil
}

// SinglePass evaluates Blur(kσ) - Blur(σ) per pixel in one accumulation.
func SinglePass(img *raster.Image, sigma, k float64) (*raster.Image, error) {
	return Apply(context.Background(), img, Params{Sigma: sigma, K: k, Method: MethodSinglePass})
}

func singlePass(ctx context.Context, img *raster.Image, p Params) (*raster.Image, error) {
	wideT, err := kernel.NewTable(p.K*p.Sigma, p.Radius)
	if err != nil {
		return nil, err
	}
	narrowT, err := kernel.NewTable(p.Sigma, p.Radius)
	if err != nil {
		return nil, err
	}

	lo, hi := min(wideT.Lo, narrowT.Lo), max(wideT.Hi, narrowT.Hi)
	w, h := img.Width, img.Height
	renorm := p.Boundary == blur.BoundaryRenormalize

	out, err := raster.New(w, h)
	if err != nil {
		return nil, err
	}

	err = blur.ForEachBand(ctx, h, p.Workers, func(y0, y1 int) {
		for y := y0; y < y1; y++ {
			for x := 0; x < w; x++ {
				var accW, accN raster.Vec3
				var massW, massN float64

				for j := lo; j <= hi; j++ {
					sy := y + j
					if sy < 0 || sy >= h {
						continue
					}
					for i := lo; i <= hi; i++ {
						sx := x + i
						if sx < 0 || sx >= w {
							continue
						}
						c := img.At(sx, sy)
						ww, wn := wideT.At(i, j), narrowT.At(i, j)
						accW = accW.AddScaled(c, ww)
						accN = accN.AddScaled(c, wn)
						massW += ww
						massN += wn
					}
				}
				if renorm {
					if massW > 0 {
						accW = accW.Scale(1 / massW)
					}
					if massN > 0 {
						accN = accN.Scale(1 / massN)
					}
				}
				out.SetPixel(x, y, raster.ToPixel(accW.Sub(accN)))
			}
		}
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Package blur convolves images with a truncated Gaussian.
//
// [Blur] runs the convolution as two separable passes: a horizontal pass
// into a float64 buffer, then a vertical pass that maps the result back to
// bytes through [raster.ToPixel]. The intermediate buffer is never
// quantized. [Direct] evaluates the same sum with the full 2D table and is
// kept as the reference the separable form is checked against.
//
// Out-of-bounds samples are skipped. Under [BoundaryZero] the kernel is not
// renormalized, so border pixels darken; both blurs of a difference of
// Gaussians darken similarly and the subtraction cancels most of it.
package blur

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/matzehuels/dogstack/pkg/core/kernel"
	"github.com/matzehuels/dogstack/pkg/core/raster"
	errs "github.com/matzehuels/dogstack/pkg/errors"
)

// Blur returns img convolved with a Gaussian of standard deviation sigma.
// The result has the same dimensions as img; img is not modified.
//
// A 1×1 image comes back unchanged only under [BoundaryRenormalize]. Under
// the default [BoundaryZero] every sample but the center falls outside the
// image, so the pixel is scaled by the center weight and darkens.
func Blur(img *raster.Image, sigma float64, opts ...Option) (*raster.Image, error) {
	cfg := newConfig(opts)
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if err := img.Validate(); err != nil {
		return nil, err
	}
	tbl, err := kernel.NewTable(sigma, cfg.policy)
	if err != nil {
		return nil, err
	}
	return Apply(img, tbl, opts...)
}

// Apply convolves img with a prebuilt table. Radius policy options are
// ignored; the table already fixes the window.
func Apply(img *raster.Image, tbl *kernel.Table, opts ...Option) (*raster.Image, error) {
	cfg := newConfig(opts)
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if err := img.Validate(); err != nil {
		return nil, err
	}
	if tbl == nil {
		return nil, errs.New(errs.ErrCodeInvalidParameter, "kernel table is nil")
	}

	w, h := img.Width, img.Height
	out, err := raster.New(w, h)
	if err != nil {
		return nil, err
	}
	tmp := make([]float64, w*h*3)
	taps := tbl.Taps()
	renorm := cfg.boundary == BoundaryRenormalize

	err = ForEachBand(cfg.ctx, h, cfg.workers, func(y0, y1 int) {
		horizontal(img, tmp, taps, tbl.Lo, renorm, y0, y1)
	})
	if err != nil {
		return nil, err
	}
	err = ForEachBand(cfg.ctx, h, cfg.workers, func(y0, y1 int) {
		vertical(tmp, out, taps, tbl.Lo, renorm, y0, y1)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// horizontal convolves rows [y0, y1) of src along x into tmp (RGB float).
func horizontal(src *raster.Image, tmp []float64, taps []float64, lo int, renorm bool, y0, y1 int) {
	w := src.Width
	pix := src.Pix

	for y := y0; y < y1; y++ {
		row := y * w
		for x := 0; x < w; x++ {
			var acc raster.Vec3
			var mass float64

			for k, wt := range taps {
				sx := x + lo + k
				if sx < 0 || sx >= w {
					continue
				}
				i := (row + sx) * 4
				acc = acc.AddScaled(raster.ToVector(pix[i], pix[i+1], pix[i+2]), wt)
				mass += wt
			}
			if renorm && mass > 0 {
				acc = acc.Scale(1 / mass)
			}

			t := (row + x) * 3
			tmp[t+0] = acc[0]
			tmp[t+1] = acc[1]
			tmp[t+2] = acc[2]
		}
	}
}

// vertical convolves rows [y0, y1) of tmp along y and writes bytes to dst.
func vertical(tmp []float64, dst *raster.Image, taps []float64, lo int, renorm bool, y0, y1 int) {
	w, h := dst.Width, dst.Height

	for y := y0; y < y1; y++ {
		for x := 0; x < w; x++ {
			var acc raster.Vec3
			var mass float64

			for k, wt := range taps {
				sy := y + lo + k
				if sy < 0 || sy >= h {
					continue
				}
				t := (sy*w + x) * 3
				acc = acc.AddScaled(raster.Vec3{tmp[t], tmp[t+1], tmp[t+2]}, wt)
				mass += wt
			}
			if renorm && mass > 0 {
				acc = acc.Scale(1 / mass)
			}

			dst.SetPixel(x, y, raster.ToPixel(acc))
		}
	}
}

// Direct is Blur evaluated with the full 2D kernel, O(w·h·r²).
func Direct(img *raster.Image, sigma float64, opts ...Option) (*raster.Image, error) {
	cfg := newConfig(opts)
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if err := img.Validate(); err != nil {
		return nil, err
	}
	tbl, err := kernel.NewTable(sigma, cfg.policy)
	if err != nil {
		return nil, err
	}

	w, h := img.Width, img.Height
	out, err := raster.New(w, h)
	if err != nil {
		return nil, err
	}
	renorm := cfg.boundary == BoundaryRenormalize

	err = ForEachBand(cfg.ctx, h, cfg.workers, func(y0, y1 int) {
		for y := y0; y < y1; y++ {
			for x := 0; x < w; x++ {
				var acc raster.Vec3
				var mass float64
				for j := tbl.Lo; j <= tbl.Hi; j++ {
					sy := y + j
					if sy < 0 || sy >= h {
						continue
					}
					for i := tbl.Lo; i <= tbl.Hi; i++ {
						sx := x + i
						if sx < 0 || sx >= w {
							continue
						}
						wt := tbl.At(i, j)
						acc = acc.AddScaled(img.At(sx, sy), wt)
						mass += wt
					}
				}
				if renorm && mass > 0 {
					acc = acc.Scale(1 / mass)
				}
				out.SetPixel(x, y, raster.ToPixel(acc))
			}
		}
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ForEachBand calls fn over disjoint row bands covering [0, height), running
// up to workers bands at once. fn must only write rows inside its band.
// With workers <= 1 it runs inline as a single band.
func ForEachBand(ctx context.Context, height, workers int, fn func(y0, y1 int)) error {
	if workers <= 1 {
		if err := ctx.Err(); err != nil {
			return err
		}
		fn(0, height)
		return nil
	}

	// More bands than workers keeps the tail short when rows differ in cost.
	band := height / (workers * 4)
	if band < 1 {
		band = 1
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for y0 := 0; y0 < height; y0 += band {
		y1 := min(y0+band, height)
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			fn(y0, y1)
			return nil
		})
	}
	return g.Wait()
}

package blur

import (
	"context"
	"errors"
	"testing"

	"github.com/matzehuels/dogstack/pkg/core/kernel"
	"github.com/matzehuels/dogstack/pkg/core/raster"
	errs "github.com/matzehuels/dogstack/pkg/errors"
)

// pattern builds a deterministic, high-frequency test image.
func pattern(t *testing.T, w, h int) *raster.Image {
	t.Helper()
	img, err := raster.New(w, h)
	if err != nil {
		t.Fatal(err)
	}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetPixel(x, y, [4]uint8{
				uint8((x*37 + y*11) % 256),
				uint8((x * y * 7) % 256),
				uint8((255 - x*13 + y*29) % 256),
				255,
			})
		}
	}
	return img
}

func absDiff(a, b uint8) int {
	if a > b {
		return int(a - b)
	}
	return int(b - a)
}

func TestBlurPreservesDimensions(t *testing.T) {
	tests := []struct {
		name  string
		w, h  int
		sigma float64
	}{
		{"1x1", 1, 1, 1},
		{"row", 5, 1, 0.5},
		{"column", 1, 7, 2},
		{"wide", 7, 3, 1.6},
		{"square", 16, 16, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := Blur(pattern(t, tt.w, tt.h), tt.sigma)
			if err != nil {
				t.Fatalf("Blur() error: %v", err)
			}
			if out.Width != tt.w || out.Height != tt.h {
				t.Errorf("size = %dx%d, want %dx%d", out.Width, out.Height, tt.w, tt.h)
			}
			if err := out.Validate(); err != nil {
				t.Errorf("output invalid: %v", err)
			}
		})
	}
}

func TestBlurSinglePixel(t *testing.T) {
	src, _ := raster.NewUniform(1, 1, 200, 100, 50)

	t.Run("renormalize keeps the pixel", func(t *testing.T) {
		for _, sigma := range []float64{0.3, 1, 5} {
			out, err := Blur(src, sigma, WithBoundary(BoundaryRenormalize))
			if err != nil {
				t.Fatal(err)
			}
			if p := out.Pixel(0, 0); p != src.Pixel(0, 0) {
				t.Errorf("sigma=%v: Pixel = %v, want %v", sigma, p, src.Pixel(0, 0))
			}
		}
	})

	t.Run("zero keeps only the center weight", func(t *testing.T) {
		sigma := 1.0
		tbl, _ := kernel.NewTable(sigma, kernel.RadiusSupport)
		out, err := Blur(src, sigma)
		if err != nil {
			t.Fatal(err)
		}
		want := raster.ToPixel(src.At(0, 0).Scale(tbl.At(0, 0)))
		got := out.Pixel(0, 0)
		for c := 0; c < 3; c++ {
			if absDiff(got[c], want[c]) > 1 {
				t.Errorf("channel %d = %d, want %d", c, got[c], want[c])
			}
		}
	})
}

func TestBlurSolidRed(t *testing.T) {
	const sigma = 1.0
	src, _ := raster.NewUniform(4, 4, 255, 0, 0)
	tbl, _ := kernel.NewTable(sigma, kernel.RadiusSupport)

	// Fraction of the 1D kernel that lands inside [0, n) from position p.
	inside := func(p, n int) float64 {
		var s float64
		for i := tbl.Lo; i <= tbl.Hi; i++ {
			if p+i >= 0 && p+i < n {
				s += tbl.Tap(i)
			}
		}
		return s
	}

	out, err := Blur(src, sigma)
	if err != nil {
		t.Fatal(err)
	}
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			p := out.Pixel(x, y)
			want := raster.ToPixel(raster.Vec3{inside(x, 4) * inside(y, 4), 0, 0})
			if absDiff(p[0], want[0]) > 1 || p[1] != 0 || p[2] != 0 || p[3] != 255 {
				t.Errorf("Pixel(%d,%d) = %v, want ~%v", x, y, p, want)
			}
			if p[0] == 255 {
				t.Errorf("Pixel(%d,%d) red = 255, want attenuated under zero boundary", x, y)
			}
		}
	}

	// Corners lose the most mass.
	if out.Pixel(0, 0)[0] >= out.Pixel(1, 1)[0] {
		t.Errorf("corner %d should be darker than inner %d", out.Pixel(0, 0)[0], out.Pixel(1, 1)[0])
	}

	norm, err := Blur(src, sigma, WithBoundary(BoundaryRenormalize))
	if err != nil {
		t.Fatal(err)
	}
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			if p := norm.Pixel(x, y); p != [4]uint8{255, 0, 0, 255} {
				t.Errorf("renormalized Pixel(%d,%d) = %v, want pure red", x, y, p)
			}
		}
	}
}

func TestBlurUniformInterior(t *testing.T) {
	const sigma = 1.0
	src, _ := raster.NewUniform(20, 20, 100, 150, 200)
	r := kernel.Radius(sigma, kernel.RadiusSupport)

	out, err := Blur(src, sigma)
	if err != nil {
		t.Fatal(err)
	}
	for y := r; y < 20-r; y++ {
		for x := r; x < 20-r; x++ {
			if p := out.Pixel(x, y); p != src.Pixel(x, y) {
				t.Fatalf("interior Pixel(%d,%d) = %v, want %v", x, y, p, src.Pixel(x, y))
			}
		}
	}
}

func TestBlurMatchesDirect(t *testing.T) {
	src := pattern(t, 13, 9)

	for _, b := range []Boundary{BoundaryZero, BoundaryRenormalize} {
		for _, policy := range []kernel.RadiusPolicy{kernel.RadiusSupport, kernel.RadiusLegacy} {
			t.Run(b.String()+"/"+policy.String(), func(t *testing.T) {
				opts := []Option{WithBoundary(b), WithRadiusPolicy(policy)}
				sep, err := Blur(src, 1.4, opts...)
				if err != nil {
					t.Fatal(err)
				}
				ref, err := Direct(src, 1.4, opts...)
				if err != nil {
					t.Fatal(err)
				}
				for i := range sep.Pix {
					if absDiff(sep.Pix[i], ref.Pix[i]) > 1 {
						t.Fatalf("Pix[%d] = %d, direct = %d", i, sep.Pix[i], ref.Pix[i])
					}
				}
			})
		}
	}
}

func TestBlurWorkersDeterministic(t *testing.T) {
	src := pattern(t, 31, 23)

	serial, err := Blur(src, 2)
	if err != nil {
		t.Fatal(err)
	}
	for _, n := range []int{0, 2, 4, 64} {
		par, err := Blur(src, 2, WithWorkers(n))
		if err != nil {
			t.Fatalf("workers=%d: %v", n, err)
		}
		if string(par.Pix) != string(serial.Pix) {
			t.Errorf("workers=%d: output differs from serial", n)
		}
	}
}

func TestBlurDoesNotModifySource(t *testing.T) {
	src := pattern(t, 8, 8)
	before := src.Clone()
	if _, err := Blur(src, 1.5, WithWorkers(3)); err != nil {
		t.Fatal(err)
	}
	if string(src.Pix) != string(before.Pix) {
		t.Error("Blur() modified its input")
	}
}

func TestBlurErrors(t *testing.T) {
	src := pattern(t, 4, 4)

	tests := []struct {
		name string
		img  *raster.Image
		sig  float64
		opts []Option
		code errs.Code
	}{
		{"zero sigma", src, 0, nil, errs.ErrCodeInvalidParameter},
		{"negative sigma", src, -2, nil, errs.ErrCodeInvalidParameter},
		{"negative workers", src, 1, []Option{WithWorkers(-1)}, errs.ErrCodeInvalidParameter},
		{"unknown boundary", src, 1, []Option{WithBoundary(Boundary(5))}, errs.ErrCodeInvalidParameter},
		{"unknown policy", src, 1, []Option{WithRadiusPolicy(kernel.RadiusPolicy(5))}, errs.ErrCodeInvalidParameter},
		{"nil image", nil, 1, nil, errs.ErrCodeInvalidInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := Blur(tt.img, tt.sig, tt.opts...)
			if out != nil {
				t.Error("expected nil output on error")
			}
			if !errs.Is(err, tt.code) {
				t.Errorf("Blur() error = %v, want %s", err, tt.code)
			}
		})
	}
}

func TestBlurCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	for _, n := range []int{1, 4} {
		_, err := Blur(pattern(t, 16, 16), 1, WithContext(ctx), WithWorkers(n))
		if !errors.Is(err, context.Canceled) {
			t.Errorf("workers=%d: error = %v, want context.Canceled", n, err)
		}
	}
}

func TestParseBoundary(t *testing.T) {
	tests := []struct {
		in      string
		want    Boundary
		wantErr bool
	}{
		{"", BoundaryZero, false},
		{"zero", BoundaryZero, false},
		{"renormalize", BoundaryRenormalize, false},
		{"clamp", 0, true},
	}

	for _, tt := range tests {
		got, err := ParseBoundary(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseBoundary(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if err == nil && got != tt.want {
			t.Errorf("ParseBoundary(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

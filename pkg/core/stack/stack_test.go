package stack

import (
	"image"
	"image/color"
	"testing"

	"github.com/matzehuels/dogstack/pkg/core/raster"
	errs "github.com/matzehuels/dogstack/pkg/errors"
)

func TestPlan(t *testing.T) {
	l, err := Plan([]image.Point{{4, 2}, {6, 3}, {1, 1}})
	if err != nil {
		t.Fatal(err)
	}
	if l.Width != 6 || l.Height != 6 {
		t.Errorf("canvas = %dx%d, want 6x6", l.Width, l.Height)
	}
	want := []image.Point{{0, 0}, {0, 2}, {0, 5}}
	for i, off := range l.Offsets {
		if off != want[i] {
			t.Errorf("Offsets[%d] = %v, want %v", i, off, want[i])
		}
	}

	if _, err := Plan(nil); !errs.Is(err, errs.ErrCodeInvalidInput) {
		t.Errorf("Plan(nil) error = %v, want INVALID_INPUT", err)
	}
	if _, err := Plan([]image.Point{{0, 3}}); !errs.Is(err, errs.ErrCodeInvalidInput) {
		t.Errorf("Plan(0x3) error = %v, want INVALID_INPUT", err)
	}
}

func TestStack(t *testing.T) {
	red, _ := raster.NewUniform(2, 1, 255, 0, 0)
	blue, _ := raster.NewUniform(3, 2, 0, 0, 255)

	out, err := Stack([]*raster.Image{red, blue})
	if err != nil {
		t.Fatal(err)
	}
	if out.Width != 3 || out.Height != 3 {
		t.Fatalf("size = %dx%d, want 3x3", out.Width, out.Height)
	}

	tests := []struct {
		x, y int
		want [4]uint8
	}{
		{0, 0, [4]uint8{255, 0, 0, 255}},
		{1, 0, [4]uint8{255, 0, 0, 255}},
		{2, 0, [4]uint8{0, 0, 0, 255}}, // background right of the narrow image
		{0, 1, [4]uint8{0, 0, 255, 255}},
		{2, 2, [4]uint8{0, 0, 255, 255}},
	}
	for _, tt := range tests {
		if p := out.Pixel(tt.x, tt.y); p != tt.want {
			t.Errorf("Pixel(%d,%d) = %v, want %v", tt.x, tt.y, p, tt.want)
		}
	}
}

func TestStackBackground(t *testing.T) {
	narrow, _ := raster.NewUniform(1, 1, 10, 20, 30)
	wide, _ := raster.NewUniform(2, 1, 10, 20, 30)

	out, err := Stack([]*raster.Image{narrow, wide}, WithBackground(color.NRGBA{R: 255, G: 255, B: 255, A: 0}))
	if err != nil {
		t.Fatal(err)
	}
	if p := out.Pixel(1, 0); p != [4]uint8{255, 255, 255, 255} {
		t.Errorf("background Pixel = %v, want opaque white", p)
	}
}

func TestStackSingleImageIsCopy(t *testing.T) {
	src, _ := raster.NewUniform(3, 2, 1, 2, 3)
	out, err := Stack([]*raster.Image{src})
	if err != nil {
		t.Fatal(err)
	}
	if string(out.Pix) != string(src.Pix) {
		t.Error("single image stack should equal its input")
	}
	out.SetPixel(0, 0, [4]uint8{9, 9, 9, 255})
	if src.Pixel(0, 0) != [4]uint8{1, 2, 3, 255} {
		t.Error("Stack() output aliases its input")
	}
}

func TestStackErrors(t *testing.T) {
	if _, err := Stack(nil); !errs.Is(err, errs.ErrCodeInvalidInput) {
		t.Errorf("Stack(nil) error = %v, want INVALID_INPUT", err)
	}
	if _, err := Stack([]*raster.Image{nil}); !errs.Is(err, errs.ErrCodeInvalidInput) {
		t.Errorf("Stack([nil]) error = %v, want INVALID_INPUT", err)
	}
}

func TestParseColor(t *testing.T) {
	tests := []struct {
		in      string
		want    color.NRGBA
		wantErr bool
	}{
		{"", DefaultBackground, false},
		{"black", color.NRGBA{A: 255}, false},
		{" White ", color.NRGBA{R: 255, G: 255, B: 255, A: 255}, false},
		{"#ff8000", color.NRGBA{R: 255, G: 128, A: 255}, false},
		{"#0f0", color.NRGBA{G: 255, A: 255}, false},
		{"ff8000", color.NRGBA{}, true},
		{"#12345", color.NRGBA{}, true},
		{"#gggggg", color.NRGBA{}, true},
		{"mauve", color.NRGBA{}, true},
	}

	for _, tt := range tests {
		got, err := ParseColor(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseColor(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if err == nil && got != tt.want {
			t.Errorf("ParseColor(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}

	if s := FormatColor(color.NRGBA{R: 255, G: 128, A: 255}); s != "#ff8000" {
		t.Errorf("FormatColor() = %q", s)
	}
}

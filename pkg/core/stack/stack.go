// Package stack composites processed images into one tall canvas.
//
// Images are placed top to bottom in input order, left-aligned and without
// overlap. The canvas is as wide as the widest image and as tall as all
// images together; area to the right of narrower images shows the
// background color (opaque black unless configured).
package stack

import (
	"fmt"
	"image"
	"image/color"
	"strconv"
	"strings"

	"github.com/disintegration/imaging"

	"github.com/matzehuels/dogstack/pkg/core/raster"
	errs "github.com/matzehuels/dogstack/pkg/errors"
)

// DefaultBackground fills canvas regions not covered by any image.
var DefaultBackground = color.NRGBA{A: 255}

// Layout is the placement of a sequence of images on the canvas.
type Layout struct {
	Width   int
	Height  int
	Offsets []image.Point // top-left corner of each image, in input order
}

// Plan computes the layout for images of the given sizes.
func Plan(sizes []image.Point) (Layout, error) {
	if len(sizes) == 0 {
		return Layout{}, errs.New(errs.ErrCodeInvalidInput, "nothing to stack")
	}

	l := Layout{Offsets: make([]image.Point, len(sizes))}
	for i, s := range sizes {
		if s.X <= 0 || s.Y <= 0 {
			return Layout{}, errs.New(errs.ErrCodeInvalidInput, "image %d has invalid size %dx%d", i, s.X, s.Y)
		}
		l.Offsets[i] = image.Pt(0, l.Height)
		l.Width = max(l.Width, s.X)
		l.Height += s.Y
	}
	return l, nil
}

type config struct {
	background color.Color
}

// Option configures Stack.
type Option func(*config)

// WithBackground sets the fill color of uncovered canvas regions.
// Alpha is ignored; the canvas is always opaque.
func WithBackground(c color.Color) Option {
	return func(cfg *config) {
		if c != nil {
			cfg.background = c
		}
	}
}

// Stack places images vertically on a fresh canvas. The inputs are not
// modified.
func Stack(images []*raster.Image, opts ...Option) (*raster.Image, error) {
	cfg := config{background: DefaultBackground}
	for _, opt := range opts {
		opt(&cfg)
	}

	sizes := make([]image.Point, len(images))
	for i, img := range images {
		if err := img.Validate(); err != nil {
			return nil, errs.Wrap(errs.ErrCodeInvalidInput, err, "image %d", i)
		}
		sizes[i] = image.Pt(img.Width, img.Height)
	}
	layout, err := Plan(sizes)
	if err != nil {
		return nil, err
	}

	bg := color.NRGBAModel.Convert(cfg.background).(color.NRGBA)
	bg.A = 255
	canvas := imaging.New(layout.Width, layout.Height, bg)
	for i, img := range images {
		canvas = imaging.Paste(canvas, img.NRGBA(), layout.Offsets[i])
	}
	return raster.FromImage(canvas)
}

var namedColors = map[string]color.NRGBA{
	"black": {A: 255},
	"white": {R: 255, G: 255, B: 255, A: 255},
	"gray":  {R: 128, G: 128, B: 128, A: 255},
}

// ParseColor parses a background color given as a name (black, white, gray)
// or as #rgb / #rrggbb hex.
func ParseColor(s string) (color.NRGBA, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return DefaultBackground, nil
	}
	if c, ok := namedColors[s]; ok {
		return c, nil
	}

	hex, ok := strings.CutPrefix(s, "#")
	if !ok {
		return color.NRGBA{}, errs.New(errs.ErrCodeInvalidParameter, "invalid color %q: use a name or #rrggbb", s)
	}
	if len(hex) == 3 {
		hex = string([]byte{hex[0], hex[0], hex[1], hex[1], hex[2], hex[2]})
	}
	if len(hex) != 6 {
		return color.NRGBA{}, errs.New(errs.ErrCodeInvalidParameter, "invalid color %q: want 3 or 6 hex digits", s)
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return color.NRGBA{}, errs.Wrap(errs.ErrCodeInvalidParameter, err, "invalid color %q", s)
	}
	return color.NRGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 255}, nil
}

// FormatColor renders c as #rrggbb.
func FormatColor(c color.NRGBA) string {
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}

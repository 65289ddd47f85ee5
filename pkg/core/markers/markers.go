// Package markers draws point annotations onto processed images.
//
// Markers are filled disks rendered with gg. They are applied after the
// filter, so they never feed back into a blur.
package markers

import (
	"image/color"
	"strconv"
	"strings"

	"github.com/fogleman/gg"

	"github.com/matzehuels/dogstack/pkg/core/raster"
	errs "github.com/matzehuels/dogstack/pkg/errors"
)

// DefaultRadius is used when a point does not specify one.
const DefaultRadius = 3.0

// Magenta is the default marker color.
var Magenta = color.NRGBA{R: 255, B: 255, A: 255}

// Point is a disk centered at (X, Y) in pixel coordinates.
type Point struct {
	X, Y float64
	R    float64
}

// String renders p in the form accepted by ParsePoint.
func (p Point) String() string {
	f := func(v float64) string { return strconv.FormatFloat(v, 'g', -1, 64) }
	return f(p.X) + "," + f(p.Y) + "," + f(p.R)
}

// ParsePoint parses "x,y" or "x,y,r". The radius defaults to DefaultRadius.
func ParsePoint(s string) (Point, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 2 && len(parts) != 3 {
		return Point{}, errs.New(errs.ErrCodeInvalidParameter, "invalid marker %q: want x,y or x,y,r", s)
	}

	vals := make([]float64, len(parts))
	for i, part := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil {
			return Point{}, errs.Wrap(errs.ErrCodeInvalidParameter, err, "invalid marker %q", s)
		}
		vals[i] = v
	}

	p := Point{X: vals[0], Y: vals[1], R: DefaultRadius}
	if len(vals) == 3 {
		p.R = vals[2]
	}
	if p.R <= 0 {
		return Point{}, errs.New(errs.ErrCodeInvalidParameter, "invalid marker %q: radius must be > 0", s)
	}
	return p, nil
}

// Draw returns a copy of img with every point drawn as a filled disk of color
// c. Points partly or fully outside the image are clipped. A nil color
// selects Magenta.
func Draw(img *raster.Image, points []Point, c color.Color) (*raster.Image, error) {
	if err := img.Validate(); err != nil {
		return nil, err
	}
	if len(points) == 0 {
		return img.Clone(), nil
	}
	if c == nil {
		c = Magenta
	}

	dc := gg.NewContextForImage(img.NRGBA())
	dc.SetColor(c)
	for _, p := range points {
		dc.DrawCircle(p.X, p.Y, p.R)
		dc.Fill()
	}
	return raster.FromImage(dc.Image())
}

package raster

import (
	"image"
	"image/color"

	errs "github.com/matzehuels/dogstack/pkg/errors"
)

// Image is a width × height grid of RGBA8 pixels stored row-major.
// Pixel (x, y) starts at Pix[(y*Width+x)*4].
//
// An Image is owned by whichever stage holds it. Stages that produce an
// image allocate a fresh one and never write into an image they read.
type Image struct {
	Width  int
	Height int
	Pix    []uint8
}

// New allocates an opaque black image. Both dimensions must be > 0.
func New(width, height int) (*Image, error) {
	if width <= 0 || height <= 0 {
		return nil, errs.New(errs.ErrCodeInvalidInput, "image dimensions must be > 0, got %dx%d", width, height)
	}
	img := &Image{
		Width:  width,
		Height: height,
		Pix:    make([]uint8, width*height*4),
	}
	for i := 3; i < len(img.Pix); i += 4 {
		img.Pix[i] = Opaque
	}
	return img, nil
}

// NewUniform allocates an image where every pixel has the given color.
func NewUniform(width, height int, r, g, b uint8) (*Image, error) {
	img, err := New(width, height)
	if err != nil {
		return nil, err
	}
	img.Fill(r, g, b)
	return img, nil
}

// Fill sets every pixel to the given opaque color.
func (m *Image) Fill(r, g, b uint8) {
	for i := 0; i < len(m.Pix); i += 4 {
		m.Pix[i+0] = r
		m.Pix[i+1] = g
		m.Pix[i+2] = b
		m.Pix[i+3] = Opaque
	}
}

// Validate checks that the buffer matches the declared dimensions.
func (m *Image) Validate() error {
	if m == nil {
		return errs.New(errs.ErrCodeInvalidInput, "image is nil")
	}
	if m.Width <= 0 || m.Height <= 0 {
		return errs.New(errs.ErrCodeInvalidInput, "image dimensions must be > 0, got %dx%d", m.Width, m.Height)
	}
	if len(m.Pix) != m.Width*m.Height*4 {
		return errs.New(errs.ErrCodeInvalidInput, "pixel buffer has %d bytes, want %d for %dx%d",
			len(m.Pix), m.Width*m.Height*4, m.Width, m.Height)
	}
	return nil
}

// SameSize reports whether m and o have identical dimensions.
func (m *Image) SameSize(o *Image) bool {
	return m.Width == o.Width && m.Height == o.Height
}

// Offset returns the index of pixel (x, y) in Pix.
func (m *Image) Offset(x, y int) int {
	return (y*m.Width + x) * 4
}

// At returns pixel (x, y) as a normalized color vector.
func (m *Image) At(x, y int) Vec3 {
	i := m.Offset(x, y)
	return ToVector(m.Pix[i], m.Pix[i+1], m.Pix[i+2])
}

// Pixel returns the raw RGBA bytes of pixel (x, y).
func (m *Image) Pixel(x, y int) [4]uint8 {
	i := m.Offset(x, y)
	return [4]uint8{m.Pix[i], m.Pix[i+1], m.Pix[i+2], m.Pix[i+3]}
}

// SetPixel stores raw RGBA bytes at (x, y).
func (m *Image) SetPixel(x, y int, p [4]uint8) {
	i := m.Offset(x, y)
	copy(m.Pix[i:i+4], p[:])
}

// Clone returns a deep copy of m.
func (m *Image) Clone() *Image {
	pix := make([]uint8, len(m.Pix))
	copy(pix, m.Pix)
	return &Image{Width: m.Width, Height: m.Height, Pix: pix}
}

// Bounds returns the image rectangle anchored at the origin.
func (m *Image) Bounds() image.Rectangle {
	return image.Rect(0, 0, m.Width, m.Height)
}

// NRGBA returns a standard library view of m sharing its pixel buffer.
// Produced images are opaque, so straight and premultiplied alpha agree.
func (m *Image) NRGBA() *image.NRGBA {
	return &image.NRGBA{Pix: m.Pix, Stride: m.Width * 4, Rect: m.Bounds()}
}

// FromImage copies any image.Image into a new opaque Image.
// Color channels are taken un-premultiplied; alpha is discarded.
func FromImage(src image.Image) (*Image, error) {
	b := src.Bounds()
	dst, err := New(b.Dx(), b.Dy())
	if err != nil {
		return nil, err
	}

	if n, ok := src.(*image.NRGBA); ok {
		for y := 0; y < dst.Height; y++ {
			row := n.Pix[(y+b.Min.Y-n.Rect.Min.Y)*n.Stride+(b.Min.X-n.Rect.Min.X)*4:]
			for x := 0; x < dst.Width; x++ {
				i := dst.Offset(x, y)
				dst.Pix[i+0] = row[x*4+0]
				dst.Pix[i+1] = row[x*4+1]
				dst.Pix[i+2] = row[x*4+2]
			}
		}
		return dst, nil
	}

	for y := 0; y < dst.Height; y++ {
		for x := 0; x < dst.Width; x++ {
			c := color.NRGBAModel.Convert(src.At(b.Min.X+x, b.Min.Y+y)).(color.NRGBA)
			i := dst.Offset(x, y)
			dst.Pix[i+0] = c.R
			dst.Pix[i+1] = c.G
			dst.Pix[i+2] = c.B
		}
	}
	return dst, nil
}

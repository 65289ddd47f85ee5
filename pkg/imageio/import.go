package imageio

import (
	"bytes"
	"image"
	"io"
	"os"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"

	"github.com/matzehuels/dogstack/pkg/core/raster"
	errs "github.com/matzehuels/dogstack/pkg/errors"
)

// DefaultMaxPixels is the largest input, in pixels, that [ReadBytesLimit]
// decodes when no limit is given.
const DefaultMaxPixels = 100_000_000

// Read decodes an image from r. Read does not close r.
func Read(r io.Reader) (*raster.Image, error) {
	src, err := imaging.Decode(r, imaging.AutoOrientation(true))
	if err != nil {
		return nil, errs.Wrap(errs.ErrCodeDecode, err, "decode image")
	}
	img, err := raster.FromImage(src)
	if err != nil {
		return nil, errs.Wrap(errs.ErrCodeDecode, err, "decode image")
	}
	return img, nil
}

// ReadBytes decodes an in-memory image.
func ReadBytes(data []byte) (*raster.Image, error) {
	return Read(bytes.NewReader(data))
}

// CheckSize reads only the image header of data and rejects images with
// more than maxPixels pixels. A maxPixels <= 0 selects DefaultMaxPixels.
func CheckSize(data []byte, maxPixels int) error {
	if maxPixels <= 0 {
		maxPixels = DefaultMaxPixels
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return errs.Wrap(errs.ErrCodeDecode, err, "decode image")
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return errs.New(errs.ErrCodeDecode, "decode image: invalid size %dx%d", cfg.Width, cfg.Height)
	}
	if int64(cfg.Width)*int64(cfg.Height) > int64(maxPixels) {
		return errs.New(errs.ErrCodeInvalidInput,
			"image is %dx%d, more than the %d pixel limit", cfg.Width, cfg.Height, maxPixels)
	}
	return nil
}

// ReadBytesLimit is ReadBytes preceded by CheckSize, so oversized images
// are rejected before any pixel buffer is allocated.
func ReadBytesLimit(data []byte, maxPixels int) (*raster.Image, error) {
	if err := CheckSize(data, maxPixels); err != nil {
		return nil, err
	}
	return ReadBytes(data)
}

// Load reads and decodes the image file at path.
func Load(path string) (*raster.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errs.Wrap(errs.ErrCodeIO, err, "open %s", path)
	}
	defer f.Close()

	return Read(f)
}

// LoadBytes reads the raw file at path. Callers that key a cache on content
// read once and decode with ReadBytes.
func LoadBytes(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errs.Wrap(errs.ErrCodeIO, err, "read %s", path)
	}
	return data, nil
}

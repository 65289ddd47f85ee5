package imageio

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"

	"github.com/matzehuels/dogstack/pkg/core/raster"
	errs "github.com/matzehuels/dogstack/pkg/errors"
)

// DefaultQuality is the JPEG quality used when none is configured.
const DefaultQuality = 90

// Format is an output encoding.
type Format = imaging.Format

// Supported output formats.
const (
	PNG  = imaging.PNG
	JPEG = imaging.JPEG
	GIF  = imaging.GIF
	BMP  = imaging.BMP
	TIFF = imaging.TIFF
)

var contentTypes = map[Format]string{
	PNG:  "image/png",
	JPEG: "image/jpeg",
	GIF:  "image/gif",
	BMP:  "image/bmp",
	TIFF: "image/tiff",
}

// ParseFormat maps a format name or file extension ("png", ".jpg", "tiff")
// to its encoder.
func ParseFormat(name string) (Format, error) {
	f, err := imaging.FormatFromExtension(strings.ToLower(strings.TrimPrefix(name, ".")))
	if err != nil {
		return 0, errs.New(errs.ErrCodeUnsupported, "unsupported output format %q (use png, jpg, gif, bmp or tiff)", name)
	}
	return f, nil
}

// FormatFor returns the encoder selected by the extension of path.
func FormatFor(path string) (Format, error) {
	ext := filepath.Ext(path)
	if ext == "" {
		return 0, errs.New(errs.ErrCodeInvalidPath, "output path %q has no extension", path)
	}
	return ParseFormat(ext)
}

// ContentType returns the MIME type for f.
func ContentType(f Format) string {
	if s, ok := contentTypes[f]; ok {
		return s
	}
	return "application/octet-stream"
}

// Write encodes img to w. quality applies to JPEG only; values outside
// 1..100 select DefaultQuality.
func Write(w io.Writer, img *raster.Image, f Format, quality int) error {
	if err := img.Validate(); err != nil {
		return err
	}
	if quality < 1 || quality > 100 {
		quality = DefaultQuality
	}
	if err := imaging.Encode(w, img.NRGBA(), f, imaging.JPEGQuality(quality)); err != nil {
		return errs.Wrap(errs.ErrCodeEncode, err, "encode %s", f)
	}
	return nil
}

// Encode returns img encoded in memory.
func Encode(img *raster.Image, f Format, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := Write(&buf, img, f, quality); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Save encodes img into the file at path, choosing the format from the
// extension. The file is replaced atomically.
func Save(path string, img *raster.Image, quality int) error {
	if err := errs.ValidateOutputPath(path); err != nil {
		return err
	}
	f, err := FormatFor(path)
	if err != nil {
		return err
	}
	data, err := Encode(img, f, quality)
	if err != nil {
		return err
	}
	return writeFileAtomic(path, data)
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return errs.Wrap(errs.ErrCodeIO, err, "create %s", path)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return errs.Wrap(errs.ErrCodeIO, err, "write %s", path)
	}
	if err := tmp.Close(); err != nil {
		return errs.Wrap(errs.ErrCodeIO, err, "write %s", path)
	}
	if err := os.Chmod(tmp.Name(), 0644); err != nil {
		return errs.Wrap(errs.ErrCodeIO, err, "write %s", path)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return errs.Wrap(errs.ErrCodeIO, err, "write %s", path)
	}
	return nil
}

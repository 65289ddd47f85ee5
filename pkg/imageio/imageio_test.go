package imageio

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/matzehuels/dogstack/pkg/core/raster"
	errs "github.com/matzehuels/dogstack/pkg/errors"
)

func gradient(t *testing.T, w, h int) *raster.Image {
	t.Helper()
	img, err := raster.New(w, h)
	if err != nil {
		t.Fatal(err)
	}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetPixel(x, y, [4]uint8{uint8(x * 255 / w), uint8(y * 255 / h), 128, 255})
		}
	}
	return img
}

func TestLosslessRoundTrip(t *testing.T) {
	src := gradient(t, 9, 5)

	for _, f := range []Format{PNG, BMP, TIFF} {
		t.Run(f.String(), func(t *testing.T) {
			data, err := Encode(src, f, 0)
			if err != nil {
				t.Fatalf("Encode() error: %v", err)
			}
			got, err := ReadBytes(data)
			if err != nil {
				t.Fatalf("ReadBytes() error: %v", err)
			}
			if got.Width != src.Width || got.Height != src.Height {
				t.Fatalf("size = %dx%d, want %dx%d", got.Width, got.Height, src.Width, src.Height)
			}
			if !bytes.Equal(got.Pix, src.Pix) {
				t.Error("lossless round trip changed pixels")
			}
		})
	}
}

func TestJPEGRoundTrip(t *testing.T) {
	src, _ := raster.NewUniform(16, 16, 200, 100, 50)

	data, err := Encode(src, JPEG, 95)
	if err != nil {
		t.Fatal(err)
	}
	got, err := ReadBytes(data)
	if err != nil {
		t.Fatal(err)
	}
	p := got.Pixel(8, 8)
	want := [4]uint8{200, 100, 50, 255}
	for c := 0; c < 3; c++ {
		d := int(p[c]) - int(want[c])
		if d < -8 || d > 8 {
			t.Errorf("channel %d = %d, want ~%d", c, p[c], want[c])
		}
	}
	if p[3] != 255 {
		t.Errorf("alpha = %d, want 255", p[3])
	}
}

func TestSaveAndLoad(t *testing.T) {
	dir := t.TempDir()
	src := gradient(t, 4, 3)

	path := filepath.Join(dir, "out.png")
	if err := Save(path, src, 0); err != nil {
		t.Fatalf("Save() error: %v", err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if !bytes.Equal(got.Pix, src.Pix) {
		t.Error("Load(Save(img)) changed pixels")
	}

	// No temp files left behind.
	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 {
		t.Errorf("dir has %d entries, want 1", len(entries))
	}

	raw, err := LoadBytes(path)
	if err != nil || len(raw) == 0 {
		t.Errorf("LoadBytes() = %d bytes, %v", len(raw), err)
	}
}

func TestSaveErrors(t *testing.T) {
	dir := t.TempDir()
	src := gradient(t, 2, 2)

	tests := []struct {
		name string
		path string
		code errs.Code
	}{
		{"no extension", filepath.Join(dir, "out"), errs.ErrCodeInvalidPath},
		{"unknown extension", filepath.Join(dir, "out.webp"), errs.ErrCodeUnsupported},
		{"empty", "", errs.ErrCodeInvalidPath},
		{"missing dir", filepath.Join(dir, "nope", "out.png"), errs.ErrCodeIO},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := Save(tt.path, src, 0); !errs.Is(err, tt.code) {
				t.Errorf("Save(%q) error = %v, want %s", tt.path, err, tt.code)
			}
		})
	}
}

func TestReadErrors(t *testing.T) {
	if _, err := ReadBytes([]byte("definitely not an image")); !errs.Is(err, errs.ErrCodeDecode) {
		t.Errorf("ReadBytes(garbage) error = %v, want DECODE_ERROR", err)
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.png")); !errs.Is(err, errs.ErrCodeIO) {
		t.Errorf("Load(missing) error = %v, want IO_ERROR", err)
	}
	if _, err := LoadBytes(filepath.Join(t.TempDir(), "missing.png")); !errs.Is(err, errs.ErrCodeIO) {
		t.Errorf("LoadBytes(missing) error = %v, want IO_ERROR", err)
	}
}

// withPNGSize rewrites the IHDR dimensions of an encoded PNG and fixes up
// the chunk CRC, leaving the pixel data as it was.
func withPNGSize(t *testing.T, data []byte, w, h uint32) []byte {
	t.Helper()
	if len(data) < 33 || string(data[12:16]) != "IHDR" {
		t.Fatal("not a PNG with a leading IHDR chunk")
	}
	out := bytes.Clone(data)
	binary.BigEndian.PutUint32(out[16:20], w)
	binary.BigEndian.PutUint32(out[20:24], h)
	binary.BigEndian.PutUint32(out[29:33], crc32.ChecksumIEEE(out[12:29]))
	return out
}

func TestCheckSize(t *testing.T) {
	small, err := Encode(gradient(t, 8, 8), PNG, 0)
	if err != nil {
		t.Fatal(err)
	}
	huge := withPNGSize(t, small, 50000, 50000)

	tests := []struct {
		name      string
		data      []byte
		maxPixels int
		code      errs.Code
	}{
		{"within limit", small, 64, ""},
		{"default limit", small, 0, ""},
		{"one over", small, 63, errs.ErrCodeInvalidInput},
		{"huge header", huge, 0, errs.ErrCodeInvalidInput},
		{"garbage", []byte("not an image"), 0, errs.ErrCodeDecode},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckSize(tt.data, tt.maxPixels)
			if tt.code == "" {
				if err != nil {
					t.Fatalf("CheckSize() error = %v", err)
				}
				return
			}
			if !errs.Is(err, tt.code) {
				t.Errorf("CheckSize() error = %v, want %s", err, tt.code)
			}
		})
	}
}

func TestReadBytesLimit(t *testing.T) {
	data, err := Encode(gradient(t, 8, 8), PNG, 0)
	if err != nil {
		t.Fatal(err)
	}

	img, err := ReadBytesLimit(data, 64)
	if err != nil {
		t.Fatalf("ReadBytesLimit() error = %v", err)
	}
	if img.Width != 8 || img.Height != 8 {
		t.Errorf("size = %dx%d, want 8x8", img.Width, img.Height)
	}

	_, err = ReadBytesLimit(withPNGSize(t, data, 50000, 50000), 0)
	if !errs.Is(err, errs.ErrCodeInvalidInput) {
		t.Fatalf("ReadBytesLimit(huge) error = %v, want INVALID_INPUT", err)
	}
	if !strings.Contains(err.Error(), "50000x50000") {
		t.Errorf("error %q should report the declared size", err)
	}
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in   string
		want Format
	}{
		{"png", PNG},
		{".JPG", JPEG},
		{"jpeg", JPEG},
		{"tif", TIFF},
		{"bmp", BMP},
		{"gif", GIF},
	}
	for _, tt := range tests {
		got, err := ParseFormat(tt.in)
		if err != nil || got != tt.want {
			t.Errorf("ParseFormat(%q) = %v, %v, want %v", tt.in, got, err, tt.want)
		}
	}
	if _, err := ParseFormat("webp"); !errs.Is(err, errs.ErrCodeUnsupported) {
		t.Errorf("ParseFormat(webp) error = %v, want UNSUPPORTED", err)
	}

	if ct := ContentType(JPEG); ct != "image/jpeg" {
		t.Errorf("ContentType(JPEG) = %q", ct)
	}
}

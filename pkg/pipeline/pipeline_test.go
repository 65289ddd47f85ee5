package pipeline

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/matzehuels/dogstack/pkg/cache"
	"github.com/matzehuels/dogstack/pkg/core/raster"
	errs "github.com/matzehuels/dogstack/pkg/errors"
	"github.com/matzehuels/dogstack/pkg/imageio"
	"github.com/matzehuels/dogstack/pkg/observability"
)

func pngInput(t *testing.T, name string, img *raster.Image) Input {
	t.Helper()
	data, err := imageio.Encode(img, imageio.PNG, 0)
	if err != nil {
		t.Fatal(err)
	}
	return Input{Name: name, Data: data}
}

func uniformInput(t *testing.T, name string, w, h int) Input {
	t.Helper()
	img, err := raster.NewUniform(w, h, 200, 120, 40)
	if err != nil {
		t.Fatal(err)
	}
	return pngInput(t, name, img)
}

func gradientInput(t *testing.T, name string, w, h int) Input {
	t.Helper()
	img, err := raster.New(w, h)
	if err != nil {
		t.Fatal(err)
	}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetPixel(x, y, [4]uint8{uint8(x * 255 / w), uint8(y * 255 / h), uint8((x ^ y) * 16), 255})
		}
	}
	return pngInput(t, name, img)
}

func testOptions() Options {
	opts := NewOptions()
	opts.Sigma = 1
	opts.Boundary = "renormalize"
	return opts
}

func TestOptionsValidateAndSetDefaults(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Options)
		code   errs.Code
	}{
		{"defaults", func(*Options) {}, ""},
		{"zero sigma", func(o *Options) { o.Sigma = 0 }, errs.ErrCodeInvalidParameter},
		{"negative k", func(o *Options) { o.K = -1 }, errs.ErrCodeInvalidParameter},
		{"bad radius", func(o *Options) { o.Radius = "huge" }, errs.ErrCodeInvalidParameter},
		{"bad boundary", func(o *Options) { o.Boundary = "wrap" }, errs.ErrCodeInvalidParameter},
		{"bad method", func(o *Options) { o.Method = "fast" }, errs.ErrCodeInvalidParameter},
		{"negative workers", func(o *Options) { o.Workers = -2 }, errs.ErrCodeInvalidParameter},
		{"negative parallel", func(o *Options) { o.Parallel = -1 }, errs.ErrCodeInvalidParameter},
		{"bad background", func(o *Options) { o.Background = "plaid" }, errs.ErrCodeInvalidParameter},
		{"bad mark", func(o *Options) { o.Marks = []string{"1"} }, errs.ErrCodeInvalidParameter},
		{"legacy single-pass", func(o *Options) { o.Radius = "legacy"; o.Method = "single-pass" }, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := NewOptions()
			tt.modify(&opts)
			err := opts.ValidateAndSetDefaults()
			if tt.code == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if !errs.Is(err, tt.code) {
				t.Fatalf("error = %v, want code %s", err, tt.code)
			}
		})
	}
}

func TestOptionsDefaults(t *testing.T) {
	opts := Options{Sigma: 2, K: 1.6}
	if err := opts.ValidateAndSetDefaults(); err != nil {
		t.Fatal(err)
	}
	if opts.Parallel != DefaultParallel || opts.Quality != DefaultQuality || opts.Background != DefaultBackground {
		t.Errorf("defaults not applied: %+v", opts)
	}
	if opts.Logger == nil {
		t.Error("Logger should default to a discard logger")
	}

	// Idempotent
	if err := opts.ValidateAndSetDefaults(); err != nil {
		t.Fatal(err)
	}

	key := opts.ImageKeyOpts()
	if key.Radius != "support" || key.Boundary != "zero" || key.Method != "two-pass" {
		t.Errorf("ImageKeyOpts = %+v", key)
	}
	if hp := opts.HistoryParams(); hp.Sigma != 2 || hp.K != 1.6 {
		t.Errorf("HistoryParams = %+v", hp)
	}
}

func TestOptionsValidateForSave(t *testing.T) {
	tests := []struct {
		output  string
		wantErr bool
	}{
		{"", false},
		{"out.png", false},
		{"out.jpg", false},
		{"out", true},
		{"out.xyz", true},
	}
	for _, tt := range tests {
		opts := NewOptions()
		opts.Output = tt.output
		err := opts.ValidateForSave()
		if (err != nil) != tt.wantErr {
			t.Errorf("ValidateForSave(%q) error = %v, wantErr %v", tt.output, err, tt.wantErr)
		}
	}
}

func TestExecuteStacksInOrder(t *testing.T) {
	runner := NewRunner(nil, nil, nil)
	opts := testOptions()
	opts.Background = "white"

	inputs := []Input{
		uniformInput(t, "wide.png", 4, 3),
		uniformInput(t, "narrow.png", 2, 2),
	}
	result, err := runner.Execute(context.Background(), inputs, opts)
	if err != nil {
		t.Fatal(err)
	}

	img := result.Image
	if img.Width != 4 || img.Height != 5 {
		t.Fatalf("canvas = %dx%d, want 4x5", img.Width, img.Height)
	}
	if got := img.Pixel(0, 0); got != [4]uint8{0, 0, 0, 255} {
		t.Errorf("Pixel(0,0) = %v, want black", got)
	}
	if got := img.Pixel(1, 4); got != [4]uint8{0, 0, 0, 255} {
		t.Errorf("Pixel(1,4) = %v, want black", got)
	}
	if got := img.Pixel(3, 4); got != [4]uint8{255, 255, 255, 255} {
		t.Errorf("Pixel(3,4) = %v, want white background", got)
	}

	if len(result.Inputs) != 2 || result.Inputs[0].Name != "wide.png" || result.Inputs[1].Name != "narrow.png" {
		t.Errorf("Inputs = %+v", result.Inputs)
	}
	if result.Inputs[1].Width != 2 || result.Inputs[1].Height != 2 {
		t.Errorf("narrow input size = %dx%d", result.Inputs[1].Width, result.Inputs[1].Height)
	}
	if result.Inputs[0].Hash == "" || result.Inputs[0].Hash == result.Inputs[1].Hash {
		t.Errorf("hashes = %q, %q", result.Inputs[0].Hash, result.Inputs[1].Hash)
	}
}

func TestExecuteUsesCache(t *testing.T) {
	fc, err := cache.NewFileCache(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	runner := NewRunner(fc, nil, nil)
	defer runner.Close()

	inputs := []Input{gradientInput(t, "a.png", 10, 8), gradientInput(t, "b.png", 6, 6)}
	ctx := context.Background()

	first, err := runner.Execute(ctx, inputs, testOptions())
	if err != nil {
		t.Fatal(err)
	}
	if first.CacheInfo.Hits != 0 || first.CacheInfo.Misses != 2 {
		t.Errorf("first run cache = %+v, want 0 hits 2 misses", first.CacheInfo)
	}

	second, err := runner.Execute(ctx, inputs, testOptions())
	if err != nil {
		t.Fatal(err)
	}
	if second.CacheInfo.Hits != 2 {
		t.Errorf("second run cache = %+v, want 2 hits", second.CacheInfo)
	}
	if !bytes.Equal(first.Image.Pix, second.Image.Pix) {
		t.Error("cached result differs from computed result")
	}

	refresh := testOptions()
	refresh.Refresh = true
	third, err := runner.Execute(ctx, inputs, refresh)
	if err != nil {
		t.Fatal(err)
	}
	if third.CacheInfo.Hits != 0 {
		t.Errorf("refresh run cache = %+v, want 0 hits", third.CacheInfo)
	}

	// Different parameters must not reuse entries.
	other := testOptions()
	other.Sigma = 2
	fourth, err := runner.Execute(ctx, inputs, other)
	if err != nil {
		t.Fatal(err)
	}
	if fourth.CacheInfo.Hits != 0 {
		t.Errorf("sigma=2 run cache = %+v, want 0 hits", fourth.CacheInfo)
	}
}

func TestExecuteFailingInputAbortsBatch(t *testing.T) {
	runner := NewRunner(nil, nil, nil)
	inputs := []Input{
		uniformInput(t, "good.png", 4, 4),
		{Name: "broken.png", Data: []byte("not an image")},
		uniformInput(t, "also-good.png", 4, 4),
	}

	result, err := runner.Execute(context.Background(), inputs, testOptions())
	if result != nil {
		t.Error("result should be nil when an input fails")
	}
	if !errs.Is(err, errs.ErrCodeDecode) {
		t.Fatalf("error = %v, want DECODE_ERROR", err)
	}
	if name, ok := errs.FailedInput(err); !ok || name != "broken.png" {
		t.Errorf("FailedInput = %q, %v; want broken.png", name, ok)
	}
}

func TestExecuteNoInputs(t *testing.T) {
	runner := NewRunner(nil, nil, nil)
	_, err := runner.Execute(context.Background(), nil, testOptions())
	if !errs.Is(err, errs.ErrCodeInvalidInput) {
		t.Fatalf("error = %v, want INVALID_INPUT", err)
	}
	if errs.UserMessage(err) != ErrNoInputs {
		t.Errorf("message = %q, want %q", errs.UserMessage(err), ErrNoInputs)
	}
}

func TestExecuteInvalidOptions(t *testing.T) {
	runner := NewRunner(nil, nil, nil)
	opts := testOptions()
	opts.Sigma = -1
	_, err := runner.Execute(context.Background(), []Input{uniformInput(t, "a.png", 2, 2)}, opts)
	if !errs.Is(err, errs.ErrCodeInvalidParameter) {
		t.Fatalf("error = %v, want INVALID_PARAMETER", err)
	}
}

func TestExecuteParallelDeterministic(t *testing.T) {
	runner := NewRunner(nil, nil, nil)
	var inputs []Input
	for i := 0; i < 5; i++ {
		inputs = append(inputs, gradientInput(t, filepath.Join("in", string(rune('a'+i))+".png"), 8+i, 6))
	}

	serial := testOptions()
	want, err := runner.Execute(context.Background(), inputs, serial)
	if err != nil {
		t.Fatal(err)
	}

	for _, n := range []int{2, 8} {
		opts := testOptions()
		opts.Parallel = n
		opts.Workers = 3
		got, err := runner.Execute(context.Background(), inputs, opts)
		if err != nil {
			t.Fatal(err)
		}
		if !bytes.Equal(got.Image.Pix, want.Image.Pix) {
			t.Errorf("parallel=%d output differs from serial", n)
		}
		for i := range inputs {
			if got.Inputs[i].Name != inputs[i].Name {
				t.Errorf("parallel=%d Inputs[%d] = %s, want %s", n, i, got.Inputs[i].Name, inputs[i].Name)
			}
		}
	}
}

func TestExecuteDrawsMarkers(t *testing.T) {
	runner := NewRunner(nil, nil, nil)
	opts := testOptions()
	opts.Marks = []string{"4,4,3"}

	result, err := runner.Execute(context.Background(), []Input{uniformInput(t, "a.png", 8, 8)}, opts)
	if err != nil {
		t.Fatal(err)
	}
	if got := result.Image.Pixel(4, 4); got != [4]uint8{255, 0, 255, 255} {
		t.Errorf("marker pixel = %v, want magenta", got)
	}
	if got := result.Image.Pixel(0, 7); got != [4]uint8{0, 0, 0, 255} {
		t.Errorf("pixel outside marker = %v, want black", got)
	}
}

func TestExecuteReportsProgressAndHooks(t *testing.T) {
	counters := observability.NewCounters()
	observability.SetPipelineHooks(counters)
	observability.SetCacheHooks(counters)
	defer observability.Reset()

	var mu sync.Mutex
	var calls []int
	opts := testOptions()
	opts.Parallel = 3
	opts.OnProgress = func(done, total int, _ string) {
		mu.Lock()
		defer mu.Unlock()
		if total != 3 {
			t.Errorf("total = %d, want 3", total)
		}
		calls = append(calls, done)
	}

	runner := NewRunner(nil, nil, nil)
	inputs := []Input{uniformInput(t, "a.png", 3, 3), uniformInput(t, "b.png", 3, 3), uniformInput(t, "c.png", 3, 3)}
	if _, err := runner.Execute(context.Background(), inputs, opts); err != nil {
		t.Fatal(err)
	}

	if len(calls) != 3 || calls[0] != 1 || calls[2] != 3 {
		t.Errorf("progress calls = %v, want [1 2 3]", calls)
	}
	s := counters.Snapshot()
	if s.Images != 3 || s.Stacks != 1 || s.CacheMisses != 3 {
		t.Errorf("stats = %+v", s)
	}
}

func TestLoadInputs(t *testing.T) {
	dir := t.TempDir()
	in := uniformInput(t, "x", 2, 2)
	path := filepath.Join(dir, "x.png")
	if err := os.WriteFile(path, in.Data, 0o644); err != nil {
		t.Fatal(err)
	}

	inputs, err := LoadInputs(context.Background(), []string{path})
	if err != nil {
		t.Fatal(err)
	}
	if len(inputs) != 1 || inputs[0].Name != path || !bytes.Equal(inputs[0].Data, in.Data) {
		t.Errorf("LoadInputs = %+v", inputs)
	}

	missing := filepath.Join(dir, "missing.png")
	_, err = LoadInputs(context.Background(), []string{path, missing})
	if !errs.Is(err, errs.ErrCodeIO) {
		t.Fatalf("error = %v, want IO_ERROR", err)
	}
	if name, _ := errs.FailedInput(err); name != missing {
		t.Errorf("FailedInput = %q, want %q", name, missing)
	}

	if _, err := LoadInputs(context.Background(), nil); !errs.Is(err, errs.ErrCodeInvalidInput) {
		t.Errorf("LoadInputs(nil) error = %v, want INVALID_INPUT", err)
	}
}

func TestLoadInputsFromURL(t *testing.T) {
	in := uniformInput(t, "x", 2, 2)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing.png" {
			http.NotFound(w, r)
			return
		}
		w.Write(in.Data)
	}))
	defer server.Close()

	url := server.URL + "/a.png"
	inputs, err := LoadInputs(context.Background(), []string{url})
	if err != nil {
		t.Fatal(err)
	}
	if inputs[0].Name != url || !bytes.Equal(inputs[0].Data, in.Data) {
		t.Errorf("LoadInputs = %+v", inputs)
	}

	missing := server.URL + "/missing.png"
	_, err = LoadInputs(context.Background(), []string{url, missing})
	if !errs.Is(err, errs.ErrCodeNotFound) {
		t.Fatalf("error = %v, want NOT_FOUND", err)
	}
	if name, _ := errs.FailedInput(err); name != missing {
		t.Errorf("FailedInput = %q, want %q", name, missing)
	}
}

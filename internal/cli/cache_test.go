package cli

import (
	"path/filepath"
	"testing"

	"github.com/matzehuels/dogstack/pkg/config"
)

func TestCacheDirFor(t *testing.T) {
	t.Setenv("XDG_CACHE_HOME", "/tmp/xdg-cache")

	tests := []struct {
		name string
		dir  string
		want string
	}{
		{"configured", "/srv/dogstack-cache", "/srv/dogstack-cache"},
		{"xdg default", "", filepath.Join("/tmp/xdg-cache", "dogstack")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			cfg.Cache.Dir = tt.dir
			got, err := cacheDirFor(cfg)
			if err != nil {
				t.Fatalf("cacheDirFor() error: %v", err)
			}
			if got != tt.want {
				t.Errorf("cacheDirFor() = %q, want %q", got, tt.want)
			}
		})
	}
}

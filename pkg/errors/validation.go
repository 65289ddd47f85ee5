package errors

import (
	"math"
	"path/filepath"
	"strings"
	"unicode"
)

// ValidatePositive checks that a filter parameter is a finite number > 0.
// The name is used in the error message (e.g. "sigma", "k").
func ValidatePositive(name string, v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return New(ErrCodeInvalidParameter, "%s must be a finite number, got %v", name, v)
	}
	if v <= 0 {
		return New(ErrCodeInvalidParameter, "%s must be > 0, got %g", name, v)
	}
	return nil
}

// ValidateOutputPath validates the path an output image is written to.
//
// Validation rules:
//   - Path cannot be empty
//   - Maximum length of 4096 characters
//   - No null bytes or control characters
//   - Must carry a file extension (the extension selects the encoder)
func ValidateOutputPath(path string) error {
	if path == "" {
		return New(ErrCodeInvalidPath, "output path cannot be empty")
	}

	const maxPathLength = 4096
	if len(path) > maxPathLength {
		return New(ErrCodeInvalidPath, "output path too long (max %d characters)", maxPathLength)
	}

	for _, r := range path {
		if r == '\x00' || unicode.IsControl(r) {
			return New(ErrCodeInvalidPath, "output path contains invalid characters")
		}
	}

	if filepath.Ext(path) == "" {
		return New(ErrCodeInvalidPath, "output path %q has no extension", path)
	}

	return nil
}

// ValidateUploadName validates a client-supplied file name for safety.
// It ensures the name is a simple basename without path components.
func ValidateUploadName(name string) error {
	if name == "" {
		return New(ErrCodeInvalidInput, "file name cannot be empty")
	}

	if len(name) > 255 {
		return New(ErrCodeInvalidInput, "file name too long (max 255 characters)")
	}

	if strings.ContainsAny(name, "/\\") {
		return New(ErrCodeInvalidInput, "file name cannot contain path separators")
	}

	for _, r := range name {
		if unicode.IsControl(r) {
			return New(ErrCodeInvalidInput, "file name contains invalid control characters")
		}
	}

	if name == "." || name == ".." {
		return New(ErrCodeInvalidInput, "file name %q is not allowed", name)
	}

	return nil
}

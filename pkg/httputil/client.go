package httputil

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	errs "github.com/matzehuels/dogstack/pkg/errors"
)

const (
	httpTimeout = 30 * time.Second

	// DefaultMaxBytes caps the size of a downloaded image.
	DefaultMaxBytes = 64 << 20
)

// IsURL reports whether s names a remote input rather than a local path.
func IsURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

// Client downloads remote images. It is safe for concurrent use.
type Client struct {
	http     *http.Client
	headers  map[string]string
	maxBytes int64
	attempts int
	delay    time.Duration
}

// NewClient creates a Client with the given default headers.
// Pass nil for headers if no default headers are needed.
func NewClient(headers map[string]string) *Client {
	return &Client{
		http:     NewHTTPClient(),
		headers:  headers,
		maxBytes: DefaultMaxBytes,
		attempts: 3,
		delay:    time.Second,
	}
}

// NewHTTPClient creates an HTTP client with the standard download timeout.
func NewHTTPClient() *http.Client {
	return &http.Client{Timeout: httpTimeout}
}

// Fetch downloads url and returns the body, retrying transient failures.
func (c *Client) Fetch(ctx context.Context, url string) ([]byte, error) {
	var data []byte
	err := Retry(ctx, c.attempts, c.delay, func() error {
		var err error
		data, err = c.get(ctx, url)
		return err
	})
	if err != nil {
		return nil, unwrapRetryable(err)
	}
	return data, nil
}

func (c *Client) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errs.Wrap(errs.ErrCodeInvalidInput, err, "invalid url %s", url)
	}
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &RetryableError{Err: errs.Wrap(errs.ErrCodeNetwork, err, "fetch %s", url)}
	}
	defer resp.Body.Close()

	if err := checkStatus(url, resp.StatusCode); err != nil {
		return nil, err
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBytes+1))
	if err != nil {
		return nil, &RetryableError{Err: errs.Wrap(errs.ErrCodeNetwork, err, "read %s", url)}
	}
	if int64(len(data)) > c.maxBytes {
		return nil, errs.New(errs.ErrCodeInvalidInput, "%s exceeds %d bytes", url, c.maxBytes)
	}
	return data, nil
}

func checkStatus(url string, code int) error {
	switch {
	case code == http.StatusOK:
		return nil
	case code == http.StatusNotFound:
		return errs.New(errs.ErrCodeNotFound, "%s: status %d", url, code)
	case code >= 500, code == http.StatusTooManyRequests:
		return &RetryableError{Err: errs.New(errs.ErrCodeNetwork, "%s: status %d", url, code)}
	default:
		return errs.New(errs.ErrCodeNetwork, "%s: status %d", url, code)
	}
}

func unwrapRetryable(err error) error {
	if re, ok := err.(*RetryableError); ok {
		return re.Err
	}
	return err
}


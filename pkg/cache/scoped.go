package cache

// ScopedKeyer wraps a Keyer with a prefix for namespace isolation.
// The server uses it to keep its entries apart from CLI runs sharing the same
// Redis instance.
//
// Example usage:
//
//	keyer := NewScopedKeyer(NewDefaultKeyer(), "serve:")
type ScopedKeyer struct {
	inner  Keyer
	prefix string
}

// NewScopedKeyer creates a keyer with a prefix.
// The prefix is prepended to all generated keys.
func NewScopedKeyer(inner Keyer, prefix string) Keyer {
	if inner == nil {
		inner = NewDefaultKeyer()
	}
	return &ScopedKeyer{
		inner:  inner,
		prefix: prefix,
	}
}

// ImageKey generates a prefixed key for filtered image caching.
func (k *ScopedKeyer) ImageKey(contentHash string, opts ImageKeyOpts) string {
	return k.prefix + k.inner.ImageKey(contentHash, opts)
}

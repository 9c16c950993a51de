package semantic

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"sync"
)

// Embedder turns query text into a fixed-dimension vector. Implementations
// must be pure with respect to (text, salient context fields); the
// dimension D must stay consistent across every write into one storage
// instance.
type Embedder interface {
	Embed(ctx context.Context, text string, reqContext map[string]string) ([]float32, error)
}

// CachingEmbedder wraps an Embedder with a bounded FIFO reuse cache keyed
// by hash(normalized text || salient context fields), so repeated queries
// never re-embed. Fuzzy reuse of a near-identical text applies only to
// requests without context fields. Private and
// single-threaded from each caller's point of view: concurrent callers
// serialise on the internal lock.
type CachingEmbedder struct {
	inner     Embedder
	cacheSize int

	mu      sync.Mutex
	order   []string
	entries map[string][]float32
	texts   map[string]string // key -> normalized text, for fuzzy reuse matching
}

// NewCachingEmbedder wraps inner with a FIFO of the given size. A
// cacheSize <= 0 disables reuse entirely (every call embeds).
func NewCachingEmbedder(inner Embedder, cacheSize int) *CachingEmbedder {
	return &CachingEmbedder{
		inner:     inner,
		cacheSize: cacheSize,
		entries:   make(map[string][]float32),
		texts:     make(map[string]string),
	}
}

func (c *CachingEmbedder) Embed(ctx context.Context, text string, reqContext map[string]string) ([]float32, error) {
	key := reuseKey(text, reqContext)
	normalized := NormalizeQuery(text)

	c.mu.Lock()
	if v, ok := c.entries[key]; ok {
		c.mu.Unlock()
		return v, nil
	}
	if fuzzyKey, ok := fuzzyMatch(normalized, c.texts); ok && len(reqContext) == 0 {
		v := c.entries[fuzzyKey]
		c.mu.Unlock()
		return v, nil
	}
	c.mu.Unlock()

	v, err := c.inner.Embed(ctx, text, reqContext)
	if err != nil {
		return nil, err
	}

	if c.cacheSize > 0 {
		c.mu.Lock()
		if _, exists := c.entries[key]; !exists {
			if len(c.order) >= c.cacheSize {
				oldest := c.order[0]
				c.order = c.order[1:]
				delete(c.entries, oldest)
				delete(c.texts, oldest)
			}
			c.order = append(c.order, key)
			c.entries[key] = v
			if len(reqContext) == 0 {
				c.texts[key] = normalized
			}
		}
		c.mu.Unlock()
	}
	return v, nil
}

// reuseKey hashes the normalized text together with the context's sorted
// key=value pairs, so two requests differing only in whitespace/case reuse
// the same embedding, while any difference in a context field gives a
// different key.
func reuseKey(text string, reqContext map[string]string) string {
	var b strings.Builder
	b.WriteString(NormalizeQuery(text))
	if len(reqContext) > 0 {
		keys := make([]string, 0, len(reqContext))
		for k := range reqContext {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			b.WriteByte('\x00')
			b.WriteString(k)
			b.WriteByte('=')
			b.WriteString(reqContext[k])
		}
	}
	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

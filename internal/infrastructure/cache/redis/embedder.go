package redis

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"log/slog"
	"math"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/kirillkom/filing-qa/internal/core/ports"
)

const keyPrefix = "emb:"

// Cache is the byte store behind CachedEmbedder.
type Cache interface {
	MGetBytes(ctx context.Context, keys []string) ([][]byte, error)
	SetBytes(ctx context.Context, entries map[string][]byte, ttl time.Duration) error
}

// CachedEmbedder decorates an embedder with a vector cache. Cache failures
// fall through to the inner embedder.
type CachedEmbedder struct {
	inner  ports.Embedder
	model  string
	cache  Cache
	ttl    time.Duration
	group  singleflight.Group
	logger *slog.Logger
	hits   atomic.Int64
	misses atomic.Int64
}

func NewCachedEmbedder(inner ports.Embedder, model string, cache Cache, ttl time.Duration, logger *slog.Logger) *CachedEmbedder {
	if logger == nil {
		logger = slog.Default()
	}
	return &CachedEmbedder{
		inner:  inner,
		model:  model,
		cache:  cache,
		ttl:    ttl,
		logger: logger.With("component", "embedding-cache"),
	}
}

func (c *CachedEmbedder) Model() string { return c.model }

func (c *CachedEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	keys := make([]string, len(texts))
	for i, t := range texts {
		keys[i] = c.key(t)
	}

	cached, err := c.cache.MGetBytes(ctx, keys)
	if err != nil {
		c.logger.Warn("cache get failed", "keys", len(keys), "error", err)
		c.misses.Add(int64(len(texts)))
		return c.inner.Embed(ctx, texts)
	}

	out := make([][]float32, len(texts))
	var missing []int
	for i := range texts {
		if i < len(cached) {
			if v, ok := decodeVector(cached[i]); ok {
				out[i] = v
				continue
			}
		}
		missing = append(missing, i)
	}
	c.hits.Add(int64(len(texts) - len(missing)))
	c.misses.Add(int64(len(missing)))
	if len(missing) == 0 {
		return out, nil
	}

	pending := make([]string, len(missing))
	for j, i := range missing {
		pending[j] = texts[i]
	}
	vectors, err := c.inner.Embed(ctx, pending)
	if err != nil {
		return nil, err
	}

	entries := make(map[string][]byte, len(missing))
	for j, i := range missing {
		if j >= len(vectors) {
			break
		}
		out[i] = vectors[j]
		entries[keys[i]] = encodeVector(vectors[j])
	}
	if err := c.cache.SetBytes(ctx, entries, c.ttl); err != nil {
		c.logger.Warn("cache set failed", "keys", len(entries), "error", err)
	}
	return out, nil
}

// EmbedQuery collapses concurrent requests for the same text.
func (c *CachedEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	v, err, _ := c.group.Do(c.key(text), func() (any, error) {
		vectors, err := c.Embed(ctx, []string{text})
		if err != nil {
			return nil, err
		}
		return vectors[0], nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]float32), nil
}

func (c *CachedEmbedder) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

func (c *CachedEmbedder) key(text string) string {
	sum := sha256.Sum256([]byte(c.model + "\x00" + text))
	return keyPrefix + hex.EncodeToString(sum[:])
}

func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, x := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(x))
	}
	return buf
}

func decodeVector(raw []byte) ([]float32, bool) {
	if len(raw) == 0 || len(raw)%4 != 0 {
		return nil, false
	}
	out := make([]float32, len(raw)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[4*i:]))
	}
	return out, true
}

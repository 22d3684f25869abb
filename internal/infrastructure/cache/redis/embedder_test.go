package redis

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type innerFake struct {
	mu    sync.Mutex
	calls [][]string
	err   error
	delay time.Duration
}

func (f *innerFake) Embed(_ context.Context, texts []string) ([][]float32, error) {
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, append([]string(nil), texts...))
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = []float32{float32(len(t)), 0.5}
	}
	return out, nil
}

func (f *innerFake) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	v, err := f.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return v[0], nil
}

type cacheFake struct {
	mu      sync.Mutex
	data    map[string][]byte
	ttl     time.Duration
	getErr  error
	setErr  error
	setHits int
}

func newCacheFake() *cacheFake { return &cacheFake{data: make(map[string][]byte)} }

func (f *cacheFake) MGetBytes(_ context.Context, keys []string) ([][]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	out := make([][]byte, len(keys))
	for i, k := range keys {
		out[i] = f.data[k]
	}
	return out, nil
}

func (f *cacheFake) SetBytes(_ context.Context, entries map[string][]byte, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.setHits++
	if f.setErr != nil {
		return f.setErr
	}
	f.ttl = ttl
	for k, v := range entries {
		f.data[k] = v
	}
	return nil
}

func TestCachedEmbedderOnlyEmbedsMisses(t *testing.T) {
	inner := &innerFake{}
	cache := newCacheFake()
	emb := NewCachedEmbedder(inner, "ollama/nomic", cache, time.Hour, nil)

	if _, err := emb.Embed(context.Background(), []string{"alpha", "be"}); err != nil {
		t.Fatalf("Embed() error = %v", err)
	}
	vectors, err := emb.Embed(context.Background(), []string{"be", "gamma"})
	if err != nil {
		t.Fatalf("Embed() error = %v", err)
	}
	if vectors[0][0] != 2 || vectors[1][0] != 5 {
		t.Fatalf("unexpected vectors %v", vectors)
	}
	if len(inner.calls) != 2 || len(inner.calls[1]) != 1 || inner.calls[1][0] != "gamma" {
		t.Fatalf("expected only the miss embedded, got %v", inner.calls)
	}
	if cache.ttl != time.Hour {
		t.Fatalf("expected ttl forwarded, got %v", cache.ttl)
	}
	hits, misses := emb.Stats()
	if hits != 1 || misses != 3 {
		t.Fatalf("unexpected stats hits=%d misses=%d", hits, misses)
	}
}

func TestCachedEmbedderKeysDependOnModel(t *testing.T) {
	a := NewCachedEmbedder(&innerFake{}, "model-a", newCacheFake(), 0, nil)
	b := NewCachedEmbedder(&innerFake{}, "model-b", newCacheFake(), 0, nil)
	if a.key("text") == b.key("text") {
		t.Fatalf("expected model in cache key")
	}
}

func TestCachedEmbedderDegradesOnCacheFailure(t *testing.T) {
	inner := &innerFake{}
	cache := newCacheFake()
	cache.getErr = errors.New("connection refused")
	emb := NewCachedEmbedder(inner, "m", cache, time.Minute, nil)

	vectors, err := emb.Embed(context.Background(), []string{"alpha"})
	if err != nil {
		t.Fatalf("expected fallback to inner embedder, got %v", err)
	}
	if len(vectors) != 1 || cache.setHits != 0 {
		t.Fatalf("unexpected fallback result %v, sets=%d", vectors, cache.setHits)
	}

	cache.getErr = nil
	cache.setErr = errors.New("readonly replica")
	if _, err := emb.Embed(context.Background(), []string{"beta"}); err != nil {
		t.Fatalf("set failures must not fail embedding, got %v", err)
	}
}

func TestCachedEmbedderAgainstUnreachableRedis(t *testing.T) {
	client := NewClient("127.0.0.1:1", "", 0)
	defer client.Close()
	inner := &innerFake{}
	emb := NewCachedEmbedder(inner, "m", client, time.Minute, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	v, err := emb.EmbedQuery(ctx, "revenue")
	if err != nil {
		t.Fatalf("EmbedQuery() error = %v", err)
	}
	if v[0] != 7 {
		t.Fatalf("unexpected vector %v", v)
	}
}

func TestCachedEmbedderSingleflightQuery(t *testing.T) {
	inner := &innerFake{delay: 20 * time.Millisecond}
	emb := NewCachedEmbedder(inner, "m", newCacheFake(), time.Minute, nil)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := emb.EmbedQuery(context.Background(), "same question"); err != nil {
				t.Errorf("EmbedQuery() error = %v", err)
			}
		}()
	}
	wg.Wait()

	inner.mu.Lock()
	defer inner.mu.Unlock()
	if len(inner.calls) > 2 {
		t.Fatalf("expected concurrent identical queries collapsed, got %d inner calls", len(inner.calls))
	}
}

func TestVectorEncodingRoundTrip(t *testing.T) {
	in := []float32{1.5, -2.25, 0}
	out, ok := decodeVector(encodeVector(in))
	if !ok || len(out) != 3 || out[1] != -2.25 {
		t.Fatalf("unexpected decode %v %v", out, ok)
	}
	if _, ok := decodeVector([]byte{1, 2, 3}); ok {
		t.Fatalf("expected truncated value rejected")
	}
}

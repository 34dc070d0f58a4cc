package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/dgnsrekt/voicestudio/internal/cache"
	"github.com/dgnsrekt/voicestudio/internal/metrics"
	"github.com/dgnsrekt/voicestudio/internal/voice"
)

// Cached serves repeated (text, params) requests from memory. Every call
// still returns a fresh file, since callers move or delete what they get.
type Cached struct {
	next   Backend
	cache  *cache.Memory
	outDir string
}

// NewCached wraps next with a cache of capacity bytes.
func NewCached(next Backend, capacity int64, outDir string) *Cached {
	return &Cached{next: next, cache: cache.NewMemory(capacity), outDir: outDir}
}

// Name returns the wrapped backend's name.
func (c *Cached) Name() string {
	return c.next.Name()
}

// Stats returns the cache counters.
func (c *Cached) Stats() cache.Stats {
	return c.cache.Stats()
}

// Synthesize returns a copy of a cached clip or calls the wrapped backend
// and remembers its output.
func (c *Cached) Synthesize(ctx context.Context, text string, params voice.Params) (string, error) {
	encoded, err := json.Marshal(params)
	if err != nil {
		return "", fmt.Errorf("unable to encode voice params: %w", err)
	}
	key := cache.Key(c.next.Name(), text, string(encoded))

	if data, ok := c.cache.Get(key); ok {
		metrics.RecordSynthesisCache(true)
		path := outputPath(c.outDir, sniffExt(data))
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return "", err
		}
		return path, nil
	}
	metrics.RecordSynthesisCache(false)

	path, err := c.next.Synthesize(ctx, text, params)
	if err != nil {
		return "", err
	}
	if data, err := os.ReadFile(path); err == nil {
		// clips larger than the whole cache are simply not kept
		_ = c.cache.Put(key, data)
	}
	return path, nil
}

func sniffExt(data []byte) string {
	switch {
	case bytes.HasPrefix(data, []byte("OggS")):
		return ".ogg"
	case bytes.HasPrefix(data, []byte("fLaC")):
		return ".flac"
	case bytes.HasPrefix(data, []byte("ID3")), len(data) > 1 && data[0] == 0xFF && data[1]&0xE0 == 0xE0:
		return ".mp3"
	default:
		return ".wav"
	}
}

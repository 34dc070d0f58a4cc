package validator

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/charmbracelet/log"

	"github.com/dgnsrekt/voicestudio/internal/metrics"
)

// CacheStats reports model cache usage.
type CacheStats struct {
	Hits   int64    `json:"cache_hits"`
	Misses int64    `json:"cache_misses"`
	Models []string `json:"models"`
}

// ModelCache maps model tags to loaded models. Each tag is loaded at most
// once no matter how many goroutines ask for it concurrently. A tag whose
// backend is unavailable is remembered as such until Clear. There is no
// eviction; call Clear to release models.
type ModelCache struct {
	loader Loader

	mu          sync.RWMutex
	models      map[string]Model
	unavailable map[string]error

	hits   atomic.Int64
	misses atomic.Int64
}

// NewModelCache creates a cache backed by loader.
func NewModelCache(loader Loader) *ModelCache {
	return &ModelCache{
		loader:      loader,
		models:      make(map[string]Model),
		unavailable: make(map[string]error),
	}
}

// Get returns the model for tag, loading it on first use.
func (c *ModelCache) Get(ctx context.Context, tag string) (Model, error) {
	c.mu.RLock()
	m, ok := c.models[tag]
	failed := c.unavailable[tag]
	c.mu.RUnlock()
	if ok {
		c.hit()
		return m, nil
	}
	if failed != nil {
		return nil, failed
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// Another goroutine may have loaded it while we waited.
	if m, ok := c.models[tag]; ok {
		c.hit()
		return m, nil
	}
	if err := c.unavailable[tag]; err != nil {
		return nil, err
	}

	c.misses.Add(1)
	metrics.RecordCacheLookup(false)

	log.Info("Loading speech-to-text model", "model", tag)
	m, err := c.loader(ctx, tag)
	if err != nil {
		if errors.Is(err, ErrBackendUnavailable) {
			c.unavailable[tag] = err
		}
		return nil, err
	}
	c.models[tag] = m
	log.Info("Cached speech-to-text model", "model", tag, "backend", m.Name())
	return m, nil
}

func (c *ModelCache) hit() {
	c.hits.Add(1)
	metrics.RecordCacheLookup(true)
}

// Clear drops every model and closes its handle.
func (c *ModelCache) Clear() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var errs []error
	for tag, m := range c.models {
		if err := m.Close(); err != nil {
			errs = append(errs, err)
		}
		delete(c.models, tag)
	}
	clear(c.unavailable)
	return errors.Join(errs...)
}

// Stats returns hit and miss counts and the loaded tags.
func (c *ModelCache) Stats() CacheStats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	s := CacheStats{Hits: c.hits.Load(), Misses: c.misses.Load()}
	for tag := range c.models {
		s.Models = append(s.Models, tag)
	}
	return s
}

var (
	defaultMu    sync.Mutex
	defaultCache *ModelCache
)

// Init installs the process-wide cache. Calling it again replaces the
// previous cache after clearing it.
func Init(loader Loader) *ModelCache {
	defaultMu.Lock()
	defer defaultMu.Unlock()

	if defaultCache != nil {
		defaultCache.Clear()
	}
	defaultCache = NewModelCache(loader)
	return defaultCache
}

// Default returns the process-wide cache, or nil before Init.
func Default() *ModelCache {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	return defaultCache
}

// Shutdown clears and removes the process-wide cache. It is safe to call
// more than once.
func Shutdown() error {
	defaultMu.Lock()
	defer defaultMu.Unlock()

	if defaultCache == nil {
		return nil
	}
	err := defaultCache.Clear()
	defaultCache = nil
	return err
}

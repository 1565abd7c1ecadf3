package assets

import (
	"bytes"
	"context"
	"image"
	"sync"

	// Frame and pose assets are PNG or JPEG images.
	_ "image/jpeg"
	_ "image/png"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/normanking/orangeavatar/internal/bus"
)

// Resource is a fetched and decoded visual asset.
type Resource struct {
	Address string
	Data    []byte
	Image   image.Image
}

// CacheConfig configures the asset cache
type CacheConfig struct {
	FetchConcurrency int
}

// Cache holds decoded visual resources keyed by address. Entries are
// append-only for the life of the session: once populated an entry is
// never replaced or freed, and an address is fetched at most once,
// whether or not the fetch succeeded.
type Cache struct {
	transport   Transport
	eventBus    *bus.EventBus
	logger      zerolog.Logger
	concurrency int

	mu        sync.RWMutex
	entries   map[string]*Resource
	requested map[string]struct{}
	probes    map[string]bool
	warming   map[string]chan struct{}
}

// NewCache creates a new asset cache
func NewCache(cfg CacheConfig, transport Transport, eventBus *bus.EventBus, logger zerolog.Logger) *Cache {
	if cfg.FetchConcurrency <= 0 {
		cfg.FetchConcurrency = 8
	}
	return &Cache{
		transport:   transport,
		eventBus:    eventBus,
		logger:      logger.With().Str("component", "assets").Logger(),
		concurrency: cfg.FetchConcurrency,
		entries:     make(map[string]*Resource),
		requested:   make(map[string]struct{}),
		probes:      make(map[string]bool),
		warming:     make(map[string]chan struct{}),
	}
}

// Preload warms the cache with the behavior's full frame sequence.
//
// A single existence probe of frame 0 decides whether the behavior has a
// frame set at all; a failed probe pins the behavior to the pose fallback
// for the rest of the session. Individual fetch or decode failures leave
// that address missing from the cache and playback skips the frame.
// Preload is idempotent: addresses already cached or previously requested
// are not fetched again, and concurrent calls for the same behavior share
// one warm-up.
func (c *Cache) Preload(ctx context.Context, m Manifest) error {
	c.mu.Lock()
	if ch, ok := c.warming[m.Behavior]; ok {
		c.mu.Unlock()
		select {
		case <-ch:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	ch := make(chan struct{})
	c.warming[m.Behavior] = ch
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.warming, m.Behavior)
		c.mu.Unlock()
		close(ch)
	}()

	hasFrames, err := c.probeFrames(ctx, m)
	if err != nil {
		return err
	}
	if !hasFrames {
		return nil
	}

	c.publish(bus.EventTypePreloadStarted, map[string]any{
		"behavior": m.Behavior,
		"frames":   m.FrameCount,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)

	fetched := 0
	var fetchedMu sync.Mutex

	for i := 0; i < m.FrameCount; i++ {
		address := m.FrameAddress(i)
		if !c.claim(address) {
			continue
		}
		g.Go(func() error {
			if c.fetchAndStore(gctx, address) {
				fetchedMu.Lock()
				fetched++
				fetchedMu.Unlock()
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}

	c.logger.Info().
		Str("behavior", m.Behavior).
		Int("fetched", fetched).
		Int("declared", m.FrameCount).
		Msg("Frame preload settled")

	c.publish(bus.EventTypePreloadWarm, map[string]any{
		"behavior": m.Behavior,
		"fetched":  fetched,
	})

	return nil
}

// PreloadPoses warms the cache with the behavior's static pose images.
// Poses back the fallback path, so failures here are absorbed the same
// way frame failures are.
func (c *Cache) PreloadPoses(ctx context.Context, m Manifest) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)

	for i := 0; i < m.PoseCount(); i++ {
		address := m.PoseAddress(i)
		if !c.claim(address) {
			continue
		}
		g.Go(func() error {
			c.fetchAndStore(gctx, address)
			return nil
		})
	}

	return g.Wait()
}

// probeFrames runs the one-time existence probe for a behavior's frame
// set. The outcome is recorded once and reused by later preloads.
func (c *Cache) probeFrames(ctx context.Context, m Manifest) (bool, error) {
	c.mu.RLock()
	outcome, known := c.probes[m.Behavior]
	c.mu.RUnlock()
	if known {
		return outcome, nil
	}

	exists := false
	if m.FrameCount > 0 {
		var err error
		exists, err = c.transport.Probe(ctx, m.FrameAddress(0))
		if err != nil {
			if ctx.Err() != nil {
				return false, ctx.Err()
			}
			// A failed probe degrades to the pose fallback.
			c.logger.Warn().Err(err).Str("behavior", m.Behavior).Msg("Frame probe failed")
			exists = false
		}
	}

	c.mu.Lock()
	c.probes[m.Behavior] = exists
	c.mu.Unlock()

	c.logger.Info().
		Str("behavior", m.Behavior).
		Bool("hasFrames", exists).
		Msg("Frame probe resolved")

	c.publish(bus.EventTypeProbeResolved, map[string]any{
		"behavior":  m.Behavior,
		"hasFrames": exists,
	})

	return exists, nil
}

// claim marks an address as requested exactly once. It returns false if
// the address was already cached, in flight, or attempted before.
func (c *Cache) claim(address string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.requested[address]; ok {
		return false
	}
	c.requested[address] = struct{}{}
	return true
}

// fetchAndStore downloads and decodes one resource. Failures are logged
// and leave the address absent from the cache.
func (c *Cache) fetchAndStore(ctx context.Context, address string) bool {
	data, err := c.transport.Fetch(ctx, address)
	if err != nil {
		c.logger.Warn().Err(err).Str("address", address).Msg("Resource fetch failed")
		return false
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		c.logger.Warn().Err(err).Str("address", address).Msg("Resource decode failed")
		return false
	}

	c.mu.Lock()
	c.entries[address] = &Resource{
		Address: address,
		Data:    data,
		Image:   img,
	}
	c.mu.Unlock()
	return true
}

// Lookup returns the cached resource for an address, if present.
func (c *Cache) Lookup(address string) (*Resource, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	res, ok := c.entries[address]
	return res, ok
}

// HasFrames reports the recorded probe outcome for a behavior. The
// second result is false until the behavior has been probed.
func (c *Cache) HasFrames(behavior string) (hasFrames, known bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	outcome, ok := c.probes[behavior]
	return outcome, ok
}

// Size returns the number of cached entries.
func (c *Cache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *Cache) publish(eventType bus.EventType, data map[string]any) {
	if c.eventBus != nil {
		c.eventBus.Publish(bus.Event{Type: eventType, Data: data})
	}
}

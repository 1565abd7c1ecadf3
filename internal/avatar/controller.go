// Package avatar manages the avatar's behavioral states and drives
// frame playback and audio cues for them.
package avatar

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/normanking/orangeavatar/internal/assets"
	"github.com/normanking/orangeavatar/internal/audio"
	"github.com/normanking/orangeavatar/internal/bus"
	"github.com/normanking/orangeavatar/internal/config"
	"github.com/normanking/orangeavatar/internal/playback"
	"github.com/normanking/orangeavatar/internal/render"
)

// Behavior is one of the mutually exclusive avatar states
type Behavior string

const (
	BehaviorIdle     Behavior = "idle"
	BehaviorThinking Behavior = "thinking"
	BehaviorTalking  Behavior = "talking"
)

// StartOptions configures a behavior start
type StartOptions struct {
	// Loop keeps the animation cycling until stopped.
	Loop bool
	// PlayAudio starts the behavior's cue after the configured delay.
	PlayAudio bool
	// TestMode stops after exactly one full cycle.
	TestMode bool
	// CueAddress overrides the behavior's configured cue.
	CueAddress string
}

// Controller owns the avatar state machine. Exactly one behavior is
// active at any instant; idle carries no clock and no audio. All
// transitions are serialized: a new start fully observes the previous
// behavior's teardown before arming its own clock.
type Controller struct {
	cfg       config.AvatarConfig
	syncCfg   config.LoopSyncConfig
	renderCfg config.RenderConfig
	cache     *assets.Cache
	renderer  render.Adapter
	manifests map[Behavior]assets.Manifest
	eventBus  *bus.EventBus
	logger    zerolog.Logger

	clock   *playback.Clock
	players map[Behavior]*audio.Player

	mu         sync.Mutex
	active     Behavior
	testMode   bool
	gen        uint64
	watcher    *playback.Watcher
	audioTimer *time.Timer
	// replyAddr is the address of the reply cue currently in flight on
	// the talking channel, or empty when none is.
	replyAddr string
}

// NewController creates the avatar state controller
func NewController(
	cfg config.AvatarConfig,
	syncCfg config.LoopSyncConfig,
	renderCfg config.RenderConfig,
	cache *assets.Cache,
	renderer render.Adapter,
	engine audio.Engine,
	manifests map[Behavior]assets.Manifest,
	eventBus *bus.EventBus,
	logger zerolog.Logger,
) *Controller {
	c := &Controller{
		cfg:       cfg,
		syncCfg:   syncCfg,
		renderCfg: renderCfg,
		cache:     cache,
		renderer:  renderer,
		manifests: manifests,
		eventBus:  eventBus,
		logger:    logger.With().Str("component", "avatar").Logger(),
		clock:     playback.NewClock(eventBus, logger),
		players: map[Behavior]*audio.Player{
			BehaviorThinking: audio.NewPlayer(string(BehaviorThinking), engine, eventBus, logger),
			BehaviorTalking:  audio.NewPlayer(string(BehaviorTalking), engine, eventBus, logger),
		},
		active: BehaviorIdle,
	}

	// The talking channel doubles as the reply channel: the avatar
	// talks exactly while a reply cue on it is audible. The behavior's
	// own cues share the channel, so both handlers act only on the
	// reply address; a looping talking cue ending must not end the
	// behavior.
	talking := c.players[BehaviorTalking]
	talking.SetStartedHandler(func(address string) {
		if !c.isReply(address) {
			return
		}
		if err := c.StartTalking(StartOptions{Loop: true}); err != nil {
			c.logger.Warn().Err(err).Msg("Failed to start talking animation")
		}
	})
	talking.SetFinishedHandler(func(address string, err error) {
		c.mu.Lock()
		isReply := c.replyAddr != "" && address == c.replyAddr
		if isReply {
			c.replyAddr = ""
		}
		c.mu.Unlock()
		if isReply {
			c.Stop()
		}
	})

	return c
}

// Preload warms the frame and pose caches for all behaviors and waits
// briefly for the rendering host mesh. A missing mesh is not fatal.
func (c *Controller) Preload(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	for _, b := range []Behavior{BehaviorThinking, BehaviorTalking} {
		m, ok := c.manifests[b]
		if !ok {
			continue
		}
		g.Go(func() error {
			if err := c.cache.Preload(gctx, m); err != nil {
				return err
			}
			return c.cache.PreloadPoses(gctx, m)
		})
	}
	if m, ok := c.manifests[BehaviorIdle]; ok {
		g.Go(func() error {
			return c.cache.PreloadPoses(gctx, m)
		})
	}

	if err := g.Wait(); err != nil {
		return fmt.Errorf("preload failed: %w", err)
	}

	render.AwaitMesh(ctx, c.renderer, c.renderCfg.MeshRetryDelay, c.renderCfg.MeshRetryMax, c.logger)
	return nil
}

// StartThinking activates the thinking behavior.
func (c *Controller) StartThinking(opts StartOptions) error {
	return c.start(BehaviorThinking, opts)
}

// StartTalking activates the talking behavior.
func (c *Controller) StartTalking(opts StartOptions) error {
	return c.start(BehaviorTalking, opts)
}

// Stop returns the avatar to the idle pose. It is a no-op when already
// idle, apart from clearing the test-mode flag.
func (c *Controller) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	wasActive := c.active
	c.teardownLocked()
	// Idle carries no audio at all: silence every channel, including a
	// reply cue that has not confirmed playback yet.
	for _, player := range c.players {
		player.Stop()
	}
	c.replyAddr = ""
	c.active = BehaviorIdle
	c.testMode = false
	c.showIdleLocked()

	if wasActive != BehaviorIdle {
		c.logger.Info().Str("behavior", string(wasActive)).Msg("Behavior stopped")
		c.publish(bus.EventTypeBehaviorStopped, map[string]any{"behavior": string(wasActive)})
	}
}

// Active returns the currently active behavior.
func (c *Controller) Active() Behavior {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// TestMode reports whether the active behavior runs in test mode.
func (c *Controller) TestMode() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.testMode
}

// Player returns the cue player for a behavior channel.
func (c *Controller) Player(b Behavior) *audio.Player {
	return c.players[b]
}

// PlayReply plays a reply cue on the talking channel. The talking
// animation starts exactly when the engine confirms playback and the
// avatar returns to idle when the cue ends or errors.
func (c *Controller) PlayReply(ctx context.Context, address string) error {
	c.mu.Lock()
	c.replyAddr = address
	c.mu.Unlock()

	if err := c.players[BehaviorTalking].PlayOnce(ctx, address); err != nil {
		c.mu.Lock()
		c.replyAddr = ""
		c.mu.Unlock()
		return err
	}
	return nil
}

// isReply reports whether an address is the reply cue in flight.
func (c *Controller) isReply(address string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.replyAddr != "" && address == c.replyAddr
}

// start is the single transition path for thinking and talking.
func (c *Controller) start(b Behavior, opts StartOptions) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.active == b && c.clock.Running() {
		// Duplicate invocation is benign.
		c.logger.Debug().Str("behavior", string(b)).Msg("Behavior already active")
		return nil
	}

	c.teardownLocked()

	m, ok := c.manifests[b]
	if !ok {
		c.active = BehaviorIdle
		return fmt.Errorf("avatar: no manifest for behavior %q", b)
	}

	// The frame-vs-pose variant is decided once per start from the
	// recorded probe outcome, never re-checked per tick.
	hasFrames, known := c.cache.HasFrames(m.Behavior)
	useFrames := known && hasFrames

	var length int
	oscillate := false
	if useFrames {
		length = m.FrameCount
	} else {
		length = m.PoseCount()
		oscillate = b == BehaviorTalking
	}
	if length <= 0 {
		c.active = BehaviorIdle
		return fmt.Errorf("avatar: behavior %q has no frames and no poses", b)
	}

	loopDuration := c.behaviorConfig(b).LoopDuration
	if loopDuration <= 0 {
		loopDuration = 3 * time.Second
	}

	session := playback.Session{
		Behavior:     string(b),
		Length:       length,
		TickInterval: loopDuration / time.Duration(length),
		Loop:         opts.Loop,
		TestMode:     opts.TestMode,
		Oscillate:    oscillate,
	}

	c.gen++
	gen := c.gen

	if err := c.clock.Start(session, c.renderFunc(m, useFrames), func() {
		c.cycleComplete(b, gen)
	}); err != nil {
		c.active = BehaviorIdle
		return err
	}

	c.active = b
	c.testMode = opts.TestMode

	c.logger.Info().
		Str("behavior", string(b)).
		Bool("frames", useFrames).
		Int("length", length).
		Bool("loop", opts.Loop).
		Bool("testMode", opts.TestMode).
		Msg("Behavior started")

	c.publish(bus.EventTypeBehaviorStarted, map[string]any{
		"behavior": string(b),
		"frames":   useFrames,
		"length":   length,
	})

	if opts.PlayAudio {
		c.armAudioLocked(b, m, opts, gen, length, useFrames)
	}

	return nil
}

// armAudioLocked schedules the behavior cue after the configured delay
// and, for looping frame playback, arms the loop-audio watcher.
func (c *Controller) armAudioLocked(b Behavior, m assets.Manifest, opts StartOptions, gen uint64, length int, useFrames bool) {
	address := opts.CueAddress
	if address == "" {
		address = m.CueAddress()
	}
	if address == "" {
		return
	}

	player := c.players[b]

	delay := c.cfg.AudioStartDelay
	if delay <= 0 {
		delay = 500 * time.Millisecond
	}
	c.audioTimer = time.AfterFunc(delay, func() {
		c.startCue(gen, player, address)
	})

	// The boundary heuristic needs a long frame loop to read; the
	// short pose fallback plays its cue once without re-triggering.
	if opts.Loop && useFrames {
		c.watcher = playback.NewWatcher(playback.WatcherConfig{
			Length:        length,
			PollInterval:  c.syncCfg.PollInterval,
			NearStartFrac: c.syncCfg.NearStartFrac,
			NearEndFrac:   c.syncCfg.NearEndFrac,
		}, c.clock, player.Busy, func() {
			if err := player.PlayOnce(context.Background(), address); err != nil {
				c.logger.Warn().Err(err).Str("address", address).Msg("Cue re-trigger failed")
			}
		}, c.logger)
		c.watcher.Start()
	}
}

// startCue plays the delayed behavior cue unless the behavior was torn
// down while the delay ran. The lock is held across the engine call so
// a Stop cannot complete between the generation check and the cue
// actually starting, which would leave audio playing while idle.
func (c *Controller) startCue(gen uint64, player *audio.Player, address string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen {
		return
	}
	if err := player.PlayOnce(context.Background(), address); err != nil {
		c.logger.Warn().Err(err).Str("address", address).Msg("Cue start failed")
	}
}

// cycleComplete handles a test-mode cycle finishing: the behavior ends
// and the avatar returns to idle.
func (c *Controller) cycleComplete(b Behavior, gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.gen {
		return
	}

	c.teardownLocked()
	c.active = BehaviorIdle
	c.testMode = false
	c.showIdleLocked()

	c.logger.Info().Str("behavior", string(b)).Msg("Behavior cycle complete")
	c.publish(bus.EventTypeBehaviorStopped, map[string]any{
		"behavior": string(b),
		"cycle":    true,
	})
}

// teardownLocked stops everything belonging to the active behavior:
// watcher, pending delayed audio, clock, then the behavior's cue.
func (c *Controller) teardownLocked() {
	c.gen++

	if c.watcher != nil {
		c.watcher.Stop()
		c.watcher = nil
	}
	if c.audioTimer != nil {
		c.audioTimer.Stop()
		c.audioTimer = nil
	}
	c.clock.Stop()
	if c.active != BehaviorIdle {
		if player := c.players[c.active]; player != nil {
			player.Stop()
		}
		if c.active == BehaviorTalking {
			// Stopping the talking player killed any reply with it.
			c.replyAddr = ""
		}
	}
}

// renderFunc builds the per-tick render callback for a behavior. A
// missing resource never stalls the clock: the draw is skipped and the
// previous texture stays visible.
func (c *Controller) renderFunc(m assets.Manifest, useFrames bool) playback.RenderFunc {
	return func(cursor int) {
		var address string
		if useFrames {
			address = m.FrameAddress(cursor)
		} else {
			address = m.PoseAddress(cursor)
		}

		res, ok := c.cache.Lookup(address)
		if !ok {
			c.logger.Debug().Str("address", address).Msg("Resource missing, skipping render")
			c.publish(bus.EventTypeFrameSkipped, map[string]any{"address": address})
			return
		}

		if err := c.renderer.ShowResource(res); err != nil {
			c.logger.Debug().Err(err).Str("address", address).Msg("Render failed")
		}
	}
}

// showIdleLocked renders the idle rest pose, if available.
func (c *Controller) showIdleLocked() {
	m, ok := c.manifests[BehaviorIdle]
	if !ok || m.PoseCount() == 0 {
		return
	}
	res, ok := c.cache.Lookup(m.PoseAddress(0))
	if !ok {
		return
	}
	if err := c.renderer.ShowResource(res); err != nil {
		c.logger.Debug().Err(err).Msg("Idle render failed")
	}
}

func (c *Controller) behaviorConfig(b Behavior) config.BehaviorConfig {
	switch b {
	case BehaviorThinking:
		return c.cfg.Thinking
	case BehaviorTalking:
		return c.cfg.Talking
	default:
		return c.cfg.Idle
	}
}

func (c *Controller) publish(eventType bus.EventType, data map[string]any) {
	if c.eventBus != nil {
		c.eventBus.Publish(bus.Event{Type: eventType, Data: data})
	}
}

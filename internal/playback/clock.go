// Package playback drives timer-based frame playback for avatar
// behaviors and keeps looping audio cues aligned with the visual loop.
package playback

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/normanking/orangeavatar/internal/bus"
)

// Session describes one playback run. It is owned by the avatar
// controller and lives only while its behavior is active.
type Session struct {
	Behavior     string
	Length       int
	TickInterval time.Duration
	Loop         bool
	// TestMode stops after exactly one full cycle instead of looping.
	TestMode bool
	// Oscillate bounces the cursor between the ends of the sequence
	// instead of wrapping; used for the talking pose fallback.
	Oscillate bool
}

// RenderFunc receives the cursor on every tick. It must absorb missing
// resources itself (skip the draw, keep the previous texture) and must
// not call back into the Clock.
type RenderFunc func(cursor int)

// Clock is a periodic ticker that advances a frame cursor and re-arms
// itself against a per-loop timing reference, so scheduling jitter does
// not compound across loop iterations. Stop is deterministic: no tick
// callback runs after Stop returns.
type Clock struct {
	logger   zerolog.Logger
	eventBus *bus.EventBus

	mu              sync.Mutex
	session         Session
	render          RenderFunc
	onCycleComplete func()
	running         bool
	gen             uint64
	cursor          int
	direction       int
	ticks           int
	loopStart       time.Time
	timer           *time.Timer
}

// NewClock creates a new playback clock
func NewClock(eventBus *bus.EventBus, logger zerolog.Logger) *Clock {
	return &Clock{
		logger:    logger.With().Str("component", "playback").Logger(),
		eventBus:  eventBus,
		direction: 1,
	}
}

// Start begins playback of a session. Frame 0 is rendered immediately
// and the first tick is armed one interval later. A running session is
// stopped first.
func (c *Clock) Start(session Session, render RenderFunc, onCycleComplete func()) error {
	if session.Length <= 0 {
		return fmt.Errorf("playback: session for %q has no frames", session.Behavior)
	}
	if session.TickInterval <= 0 {
		return fmt.Errorf("playback: session for %q has no tick interval", session.Behavior)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.stopLocked()

	c.session = session
	c.render = render
	c.onCycleComplete = onCycleComplete
	c.running = true
	c.cursor = 0
	c.direction = 1
	c.ticks = 0
	c.loopStart = time.Now()

	c.logger.Debug().
		Str("behavior", session.Behavior).
		Int("length", session.Length).
		Dur("tickInterval", session.TickInterval).
		Bool("loop", session.Loop).
		Bool("testMode", session.TestMode).
		Bool("oscillate", session.Oscillate).
		Msg("Playback started")

	c.invokeRender(0)
	c.armLocked()

	return nil
}

// Stop cancels playback and resets the cursor. Any tick already in
// flight completes before Stop returns; none fire afterwards.
func (c *Clock) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.running {
		return
	}
	c.stopLocked()
	c.logger.Debug().Str("behavior", c.session.Behavior).Msg("Playback stopped")
}

// Cursor returns the current cursor and whether the clock is running.
func (c *Clock) Cursor() (int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cursor, c.running
}

// Running reports whether a session is active.
func (c *Clock) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// stopLocked invalidates pending ticks and resets cursor state.
func (c *Clock) stopLocked() {
	c.running = false
	c.gen++
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.cursor = 0
	c.direction = 1
	c.ticks = 0
}

// armLocked schedules the next tick against the loop timing reference
// rather than relative to now, correcting per-tick scheduling drift.
func (c *Clock) armLocked() {
	deadline := c.loopStart.Add(time.Duration(c.ticks+1) * c.session.TickInterval)
	delay := time.Until(deadline)
	if delay < 0 {
		delay = 0
	}
	gen := c.gen
	c.timer = time.AfterFunc(delay, func() { c.tick(gen) })
}

func (c *Clock) tick(gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// A stale timer from a stopped or restarted session.
	if !c.running || gen != c.gen {
		return
	}

	if c.session.Oscillate {
		c.tickOscillateLocked()
	} else {
		c.tickForwardLocked()
	}
}

// tickForwardLocked advances the cursor by one, wrapping or stopping at
// the end of the sequence.
func (c *Clock) tickForwardLocked() {
	next := c.cursor + 1
	if next >= c.session.Length {
		if c.session.TestMode || !c.session.Loop {
			c.completeCycleLocked()
			return
		}
		// Loop boundary: restart the timing reference so jitter from
		// this iteration does not leak into the next one.
		c.cursor = 0
		c.ticks = 0
		c.loopStart = time.Now()
		c.invokeRender(c.cursor)
		c.armLocked()
		return
	}

	c.cursor = next
	c.ticks++
	c.invokeRender(c.cursor)
	c.armLocked()
}

// tickOscillateLocked bounces the cursor between index 0 and the last
// index. One forward plus one backward traversal is a full cycle.
func (c *Clock) tickOscillateLocked() {
	if c.session.Length < 2 {
		// Degenerate single-pose sequence: every tick is a cycle.
		c.invokeRender(0)
		if c.session.TestMode || !c.session.Loop {
			c.completeCycleLocked()
			return
		}
		c.ticks = 0
		c.loopStart = time.Now()
		c.armLocked()
		return
	}

	c.cursor += c.direction
	if c.cursor >= c.session.Length-1 {
		c.cursor = c.session.Length - 1
		c.direction = -1
	} else if c.cursor <= 0 {
		c.cursor = 0
		c.direction = 1
		// Back at rest: the forward+backward traversal is complete.
		c.invokeRender(c.cursor)
		if c.session.TestMode || !c.session.Loop {
			c.completeCycleLocked()
			return
		}
		c.ticks = 0
		c.loopStart = time.Now()
		c.armLocked()
		return
	}

	c.ticks++
	c.invokeRender(c.cursor)
	c.armLocked()
}

// completeCycleLocked stops the clock after a finished cycle and
// notifies the owner asynchronously, outside the clock lock.
func (c *Clock) completeCycleLocked() {
	behavior := c.session.Behavior
	onComplete := c.onCycleComplete
	c.stopLocked()

	c.logger.Debug().Str("behavior", behavior).Msg("Playback cycle complete")

	if c.eventBus != nil {
		c.eventBus.Publish(bus.Event{
			Type: bus.EventTypeCycleComplete,
			Data: map[string]any{"behavior": behavior},
		})
	}
	if onComplete != nil {
		go onComplete()
	}
}

// invokeRender publishes the tick and calls the render callback,
// converting a panic into a logged no-op so a bad frame can never kill
// the timer loop. The tick event fires for every cursor advance, even
// when the render itself fails.
func (c *Clock) invokeRender(cursor int) {
	if c.eventBus != nil {
		c.eventBus.Publish(bus.Event{
			Type: bus.EventTypeTickFired,
			Data: map[string]any{"behavior": c.session.Behavior, "cursor": cursor},
		})
	}
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error().
				Interface("panic", r).
				Int("cursor", cursor).
				Msg("Render callback panicked")
		}
	}()
	if c.render != nil {
		c.render(cursor)
	}
}

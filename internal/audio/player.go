package audio

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/normanking/orangeavatar/internal/bus"
)

// CueState is the lifecycle state of a cue channel
type CueState string

const (
	CueStopped  CueState = "stopped"
	CueStarting CueState = "starting"
	CuePlaying  CueState = "playing"
)

// Player plays a single audio cue to completion on one behavior
// channel. At most one cue is ever playing on a channel; starting a new
// cue stops the old one first, so the lifecycle is always
// Stopped -> Starting -> Playing -> Ended/Error, never
// Playing -> Playing.
type Player struct {
	channel  string
	engine   Engine
	eventBus *bus.EventBus
	logger   zerolog.Logger

	mu      sync.Mutex
	state   CueState
	handle  Handle
	address string
	gen     uint64

	onStarted  func(address string)
	onFinished func(address string, err error)
}

// NewPlayer creates a cue player for one behavior channel
func NewPlayer(channel string, engine Engine, eventBus *bus.EventBus, logger zerolog.Logger) *Player {
	return &Player{
		channel:  channel,
		engine:   engine,
		eventBus: eventBus,
		logger:   logger.With().Str("component", "audio").Str("channel", channel).Logger(),
		state:    CueStopped,
	}
}

// SetStartedHandler sets the callback for confirmed playback start
func (p *Player) SetStartedHandler(handler func(address string)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onStarted = handler
}

// SetFinishedHandler sets the callback for cue completion. err is nil
// on natural end and non-nil when the cue errored or was rejected; an
// errored cue did not play and must not be retried automatically.
func (p *Player) SetFinishedHandler(handler func(address string, err error)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onFinished = handler
}

// PlayOnce stops any cue currently playing on this channel, then plays
// the addressed resource to natural completion. The returned error
// covers only cue creation; start rejection and playback failures are
// reported through events and the finished handler.
func (p *Player) PlayOnce(ctx context.Context, address string) error {
	p.mu.Lock()

	p.stopCurrentLocked()

	handle, err := p.engine.Create(address)
	if err != nil {
		p.state = CueStopped
		p.mu.Unlock()
		p.logger.Warn().Err(err).Str("address", address).Msg("Cue creation failed")
		p.publish(bus.EventTypeCueErrored, address, err)
		return fmt.Errorf("failed to create cue for %s: %w", address, err)
	}

	p.gen++
	gen := p.gen
	p.handle = handle
	p.address = address
	p.state = CueStarting
	p.mu.Unlock()

	p.logger.Debug().Str("address", address).Msg("Cue starting")

	go p.run(ctx, gen, handle, address)
	return nil
}

// Stop cancels the current cue, if any.
func (p *Player) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopCurrentLocked()
}

// State returns the current lifecycle state.
func (p *Player) State() CueState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Busy reports whether a cue is starting or playing. The loop watcher
// uses this to avoid re-triggering over a cue that is still audible.
func (p *Player) Busy() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state != CueStopped
}

// IsPlaying reports whether a cue has confirmed playback.
func (p *Player) IsPlaying() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state == CuePlaying
}

// Channel returns the behavior channel name.
func (p *Player) Channel() string {
	return p.channel
}

// stopCurrentLocked tears down the active handle and invalidates its
// pending lifecycle goroutine.
func (p *Player) stopCurrentLocked() {
	if p.handle == nil {
		p.state = CueStopped
		return
	}
	handle := p.handle
	p.handle = nil
	p.state = CueStopped
	p.gen++
	handle.Stop()
	p.logger.Debug().Str("address", p.address).Msg("Cue stopped")
}

// run follows one cue through start confirmation and completion.
func (p *Player) run(ctx context.Context, gen uint64, handle Handle, address string) {
	err := handle.Play(ctx)

	p.mu.Lock()
	if gen != p.gen {
		// Superseded by a later PlayOnce or Stop.
		p.mu.Unlock()
		return
	}
	if err != nil {
		p.handle = nil
		p.state = CueStopped
		onFinished := p.onFinished
		p.mu.Unlock()

		rejection := fmt.Errorf("%w: %s: %v", ErrPlaybackRejected, address, err)
		p.logger.Warn().Err(err).Str("address", address).Msg("Cue playback rejected")
		p.publish(bus.EventTypeCueErrored, address, rejection)
		if onFinished != nil {
			onFinished(address, rejection)
		}
		return
	}

	p.state = CuePlaying
	onStarted := p.onStarted
	p.mu.Unlock()

	p.logger.Debug().Str("address", address).Msg("Cue playing")
	p.publish(bus.EventTypeCueStarted, address, nil)
	if onStarted != nil {
		onStarted(address)
	}

	endErr := <-handle.Done()

	p.mu.Lock()
	if gen != p.gen {
		p.mu.Unlock()
		return
	}
	p.handle = nil
	p.state = CueStopped
	onFinished := p.onFinished
	p.mu.Unlock()

	if endErr != nil {
		p.logger.Warn().Err(endErr).Str("address", address).Msg("Cue errored")
		p.publish(bus.EventTypeCueErrored, address, endErr)
	} else {
		p.logger.Debug().Str("address", address).Msg("Cue ended")
		p.publish(bus.EventTypeCueEnded, address, nil)
	}
	if onFinished != nil {
		onFinished(address, endErr)
	}
}

func (p *Player) publish(eventType bus.EventType, address string, err error) {
	if p.eventBus == nil {
		return
	}
	data := map[string]any{
		"channel": p.channel,
		"address": address,
	}
	if err != nil {
		data["error"] = err.Error()
	}
	p.eventBus.Publish(bus.Event{Type: eventType, Data: data})
}

package playback

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// CursorSource exposes the frame cursor of a running clock.
type CursorSource interface {
	Cursor() (cursor int, active bool)
}

// WatcherConfig tunes the loop-boundary detection heuristic.
//
// There is no "loop restarted" signal from the clock that a watcher
// could subscribe to without coupling poll and tick rates, so the
// boundary is inferred from cursor samples: a crossing is declared when
// the cursor is observed inside a band near zero right after it was
// observed inside a band near the end of the sequence. The bands are
// fractions of the sequence length so they scale with frame count.
type WatcherConfig struct {
	Length        int
	PollInterval  time.Duration
	NearStartFrac float64
	NearEndFrac   float64
}

// DefaultWatcherConfig returns the reference tuning: for a 145-frame
// loop the bands come out as cursor <= 10 and previous >= 140.
func DefaultWatcherConfig(length int) WatcherConfig {
	return WatcherConfig{
		Length:        length,
		PollInterval:  100 * time.Millisecond,
		NearStartFrac: 0.07,
		NearEndFrac:   0.035,
	}
}

// Watcher polls a looping clock's cursor and re-triggers a one-shot
// audio cue exactly once per visual loop. It exists only while a
// looping behavior with audio is active.
type Watcher struct {
	src    CursorSource
	busy   func() bool
	fire   func()
	logger zerolog.Logger

	pollInterval  time.Duration
	lowThreshold  int
	highThreshold int

	mu      sync.Mutex
	last    int
	running bool
	done    chan struct{}
}

// NewWatcher creates a loop-audio watcher. busy reports whether a cue is
// currently playing on the behavior channel; fire re-triggers the cue.
func NewWatcher(cfg WatcherConfig, src CursorSource, busy func() bool, fire func(), logger zerolog.Logger) *Watcher {
	low := int(cfg.NearStartFrac * float64(cfg.Length))
	if low < 1 {
		low = 1
	}
	high := cfg.Length - int(cfg.NearEndFrac*float64(cfg.Length))
	if high > cfg.Length-1 {
		high = cfg.Length - 1
	}
	if high <= low {
		high = low + 1
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 100 * time.Millisecond
	}

	return &Watcher{
		src:           src,
		busy:          busy,
		fire:          fire,
		logger:        logger.With().Str("component", "loopsync").Logger(),
		pollInterval:  cfg.PollInterval,
		lowThreshold:  low,
		highThreshold: high,
		last:          -1,
		done:          make(chan struct{}),
	}
}

// Start begins polling the cursor.
func (w *Watcher) Start() {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return
	}
	w.running = true
	w.mu.Unlock()

	w.logger.Debug().
		Int("lowThreshold", w.lowThreshold).
		Int("highThreshold", w.highThreshold).
		Dur("pollInterval", w.pollInterval).
		Msg("Loop watcher started")

	go w.loop()
}

// Stop tears the watcher down. No fire happens after Stop returns.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.mu.Unlock()
	close(w.done)
}

func (w *Watcher) loop() {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.done:
			return
		case <-ticker.C:
			if !w.poll() {
				return
			}
		}
	}
}

// poll samples the cursor once. It returns false when the watcher
// should terminate because it was stopped or the clock went inactive.
func (w *Watcher) poll() bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.running {
		return false
	}

	cursor, active := w.src.Cursor()
	if !active {
		// The owning clock stopped; tear down with it.
		w.running = false
		return false
	}

	last := w.last
	w.last = cursor

	if cursor <= w.lowThreshold && last >= w.highThreshold && !w.busy() {
		w.logger.Debug().
			Int("cursor", cursor).
			Int("last", last).
			Msg("Loop boundary crossed, re-triggering cue")
		w.fire()
	}

	return true
}

package playback

import (
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

// scriptedCursor replays a fixed cursor sequence, holding the final
// value once the script is exhausted.
type scriptedCursor struct {
	mu           sync.Mutex
	values       []int
	idx          int
	deactivateAt int // poll index at which the clock reports inactive; -1 for never
}

func newScriptedCursor(values ...int) *scriptedCursor {
	return &scriptedCursor{values: values, deactivateAt: -1}
}

func (s *scriptedCursor) Cursor() (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.deactivateAt >= 0 && s.idx >= s.deactivateAt {
		return 0, false
	}
	v := s.values[s.idx]
	if s.idx < len(s.values)-1 {
		s.idx++
	}
	return v, true
}

func (s *scriptedCursor) exhausted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.idx >= len(s.values)-1
}

type fireCounter struct {
	mu sync.Mutex
	n  int
}

func (f *fireCounter) fire() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.n++
}

func (f *fireCounter) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.n
}

func notBusy() bool { return false }

func TestDefaultWatcherConfig(t *testing.T) {
	cfg := DefaultWatcherConfig(145)
	if cfg.Length != 145 {
		t.Errorf("Length = %d, want 145", cfg.Length)
	}
	if cfg.PollInterval != 100*time.Millisecond {
		t.Errorf("PollInterval = %v, want 100ms", cfg.PollInterval)
	}
	if cfg.NearStartFrac != 0.07 || cfg.NearEndFrac != 0.035 {
		t.Errorf("bands = (%v, %v), want (0.07, 0.035)", cfg.NearStartFrac, cfg.NearEndFrac)
	}
}

func TestWatcherFiresOncePerLoop(t *testing.T) {
	// Two full wraps of a 145-frame loop, sampled coarsely. The bands
	// come out as cursor <= 10 and previous >= 140.
	src := newScriptedCursor(0, 40, 90, 130, 141, 5, 40, 90, 130, 143, 9, 50, 50)
	fires := &fireCounter{}

	w := NewWatcher(WatcherConfig{
		Length:        145,
		PollInterval:  2 * time.Millisecond,
		NearStartFrac: 0.07,
		NearEndFrac:   0.035,
	}, src, notBusy, fires.fire, zerolog.Nop())
	w.Start()
	defer w.Stop()

	waitFor(t, 2*time.Second, "script to play out", src.exhausted)
	time.Sleep(20 * time.Millisecond)

	if got := fires.count(); got != 2 {
		t.Errorf("fired %d times, want 2 (once per wrap)", got)
	}
}

func TestWatcherThresholdBands(t *testing.T) {
	tests := []struct {
		name      string
		script    []int
		wantFires int
	}{
		{"exact band edges", []int{140, 10, 50}, 1},
		{"previous outside end band", []int{139, 10, 50}, 0},
		{"cursor outside start band", []int{140, 11, 50}, 0},
		{"mid-loop samples only", []int{20, 60, 100, 120, 60, 20}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := newScriptedCursor(tt.script...)
			fires := &fireCounter{}

			w := NewWatcher(WatcherConfig{
				Length:        145,
				PollInterval:  2 * time.Millisecond,
				NearStartFrac: 0.07,
				NearEndFrac:   0.035,
			}, src, notBusy, fires.fire, zerolog.Nop())
			w.Start()
			defer w.Stop()

			waitFor(t, 2*time.Second, "script to play out", src.exhausted)
			time.Sleep(20 * time.Millisecond)

			if got := fires.count(); got != tt.wantFires {
				t.Errorf("fired %d times, want %d", got, tt.wantFires)
			}
		})
	}
}

func TestWatcherShortSequenceBands(t *testing.T) {
	// Tiny sequences still get a usable band: the start band is at
	// least frame 1 and the end band clamps below the last frame.
	src := newScriptedCursor(3, 0, 2)
	fires := &fireCounter{}

	w := NewWatcher(WatcherConfig{
		Length:        4,
		PollInterval:  2 * time.Millisecond,
		NearStartFrac: 0.07,
		NearEndFrac:   0.035,
	}, src, notBusy, fires.fire, zerolog.Nop())
	w.Start()
	defer w.Stop()

	waitFor(t, 2*time.Second, "script to play out", src.exhausted)
	time.Sleep(20 * time.Millisecond)

	if got := fires.count(); got != 1 {
		t.Errorf("fired %d times, want 1", got)
	}
}

func TestWatcherSuppressedWhileCueBusy(t *testing.T) {
	src := newScriptedCursor(141, 5, 50)
	fires := &fireCounter{}
	busy := func() bool { return true }

	w := NewWatcher(WatcherConfig{
		Length:        145,
		PollInterval:  2 * time.Millisecond,
		NearStartFrac: 0.07,
		NearEndFrac:   0.035,
	}, src, busy, fires.fire, zerolog.Nop())
	w.Start()
	defer w.Stop()

	waitFor(t, 2*time.Second, "script to play out", src.exhausted)
	time.Sleep(20 * time.Millisecond)

	if got := fires.count(); got != 0 {
		t.Errorf("fired %d times while cue busy, want 0", got)
	}
}

func TestWatcherStopsWithClock(t *testing.T) {
	src := newScriptedCursor(10, 20, 30, 40, 50)
	src.deactivateAt = 2
	fires := &fireCounter{}

	w := NewWatcher(WatcherConfig{
		Length:        145,
		PollInterval:  2 * time.Millisecond,
		NearStartFrac: 0.07,
		NearEndFrac:   0.035,
	}, src, notBusy, fires.fire, zerolog.Nop())
	w.Start()

	time.Sleep(30 * time.Millisecond)

	// The clock went inactive, so the watcher tore itself down; a late
	// Stop must still be safe.
	w.Stop()
	if got := fires.count(); got != 0 {
		t.Errorf("fired %d times, want 0", got)
	}
}

func TestWatcherStopIsIdempotent(t *testing.T) {
	src := newScriptedCursor(10, 20, 30)
	w := NewWatcher(DefaultWatcherConfig(145), src, notBusy, func() {}, zerolog.Nop())

	w.Start()
	w.Stop()
	w.Stop()
	w.Start() // restart after Stop is not supported; must not fire or hang
}

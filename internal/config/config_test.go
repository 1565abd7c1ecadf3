package config

import (
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Backend.ServerURL == "" {
		t.Error("default backend server URL is empty")
	}
	if cfg.Backend.Timeout <= 0 {
		t.Error("default backend timeout is not positive")
	}

	for _, bc := range []struct {
		name string
		cfg  BehaviorConfig
	}{
		{"thinking", cfg.Avatar.Thinking},
		{"talking", cfg.Avatar.Talking},
	} {
		if bc.cfg.FrameCount <= 0 {
			t.Errorf("%s frame count = %d, want positive", bc.name, bc.cfg.FrameCount)
		}
		if bc.cfg.LoopDuration <= 0 {
			t.Errorf("%s loop duration = %v, want positive", bc.name, bc.cfg.LoopDuration)
		}
		if len(bc.cfg.PoseNames) == 0 {
			t.Errorf("%s has no fallback poses", bc.name)
		}
		if bc.cfg.CueName == "" {
			t.Errorf("%s has no audio cue", bc.name)
		}
	}

	if len(cfg.Avatar.Idle.PoseNames) == 0 {
		t.Error("idle behavior has no rest pose")
	}

	// The talking loop runs at half the thinking cadence over the same
	// frame count.
	if cfg.Avatar.Talking.LoopDuration != 2*cfg.Avatar.Thinking.LoopDuration {
		t.Errorf("loop durations = (%v, %v), want talking twice thinking",
			cfg.Avatar.Thinking.LoopDuration, cfg.Avatar.Talking.LoopDuration)
	}

	if cfg.LoopSync.PollInterval <= 0 {
		t.Error("loop sync poll interval is not positive")
	}
	if f := cfg.LoopSync.NearStartFrac; f <= 0 || f >= 1 {
		t.Errorf("near-start fraction = %v, want in (0,1)", f)
	}
	if f := cfg.LoopSync.NearEndFrac; f <= 0 || f >= 1 {
		t.Errorf("near-end fraction = %v, want in (0,1)", f)
	}

	if cfg.Avatar.AudioStartDelay != 500*time.Millisecond {
		t.Errorf("audio start delay = %v, want 500ms", cfg.Avatar.AudioStartDelay)
	}
	if cfg.Media.FetchConcurrency <= 0 {
		t.Error("fetch concurrency is not positive")
	}
}

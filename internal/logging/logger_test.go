package logging

import (
	"os"
	"strings"
	"testing"
)

func TestLoggerWritesToFile(t *testing.T) {
	dir := t.TempDir()

	logger, err := New(&Config{LogDir: dir, Level: LevelDebug, Console: false})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	zl := logger.Zerolog()
	zl.Info().Str("key", "value").Msg("test entry")
	cl := logger.Component("playback")
	cl.Debug().Msg("component entry")

	if err := logger.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	data, err := os.ReadFile(logger.GetLogPath())
	if err != nil {
		t.Fatalf("failed to read log file: %v", err)
	}
	content := string(data)

	if !strings.Contains(content, "test entry") {
		t.Error("log file missing plain entry")
	}
	if !strings.Contains(content, `"component":"playback"`) {
		t.Error("log file missing component field")
	}
	if !strings.Contains(content, `"app":"orangeavatar"`) {
		t.Error("log file missing app field")
	}
}

func TestLoggerLevelFiltering(t *testing.T) {
	dir := t.TempDir()

	logger, err := New(&Config{LogDir: dir, Level: LevelWarn, Console: false})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	zl := logger.Zerolog()
	zl.Debug().Msg("hidden entry")
	zl.Warn().Msg("visible entry")

	if err := logger.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	data, err := os.ReadFile(logger.GetLogPath())
	if err != nil {
		t.Fatalf("failed to read log file: %v", err)
	}
	content := string(data)

	if strings.Contains(content, "hidden entry") {
		t.Error("debug entry written despite warn level")
	}
	if !strings.Contains(content, "visible entry") {
		t.Error("warn entry missing")
	}
}

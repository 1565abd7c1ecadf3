package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/normanking/orangeavatar/internal/assets"
	"github.com/normanking/orangeavatar/internal/avatar"
	"github.com/normanking/orangeavatar/internal/bus"
	"github.com/normanking/orangeavatar/internal/config"
	"github.com/normanking/orangeavatar/internal/logging"
	"github.com/normanking/orangeavatar/internal/render"
	"github.com/normanking/orangeavatar/internal/speech"
	"github.com/normanking/orangeavatar/internal/voice"
)

func main() {
	var (
		sayText   = flag.String("say", "", "process a typed utterance and speak the reply")
		audioFile = flag.String("audio", "", "process a recorded utterance from a file")
		testCycle = flag.Bool("test-cycle", false, "run one thinking and one talking cycle, then exit")
		sessionID = flag.String("session", "", "session identifier (generated when empty)")
	)
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logging: %v\n", err)
		os.Exit(1)
	}
	defer logger.Close()

	zlog := logger.Zerolog()
	eventBus := bus.NewEventBus()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	transport := assets.NewHTTPTransport(assets.HTTPTransportConfig{
		ProbeTimeout: cfg.Media.ProbeTimeout,
		FetchTimeout: cfg.Media.FetchTimeout,
	}, zlog)

	cache := assets.NewCache(assets.CacheConfig{
		FetchConcurrency: cfg.Media.FetchConcurrency,
	}, transport, eventBus, zlog)

	renderer := render.NewWSAdapter(render.WSConfig{
		URL:              cfg.Render.WSURL,
		ReconnectDelay:   cfg.Render.ReconnectDelay,
		WriteTimeout:     cfg.Render.WriteTimeout,
		HandshakeTimeout: cfg.Render.HandshakeTimeout,
	}, eventBus, zlog)
	if err := renderer.Connect(ctx); err != nil {
		zlog.Fatal().Err(err).Msg("Failed to start renderer connection")
	}
	defer renderer.Disconnect()

	controller := avatar.NewController(
		cfg.Avatar,
		cfg.LoopSync,
		cfg.Render,
		cache,
		renderer,
		renderer,
		avatar.ResolveManifests(cfg),
		eventBus,
		zlog,
	)
	defer controller.Stop()

	zlog.Info().Msg("Preloading behavior assets")
	if err := controller.Preload(ctx); err != nil {
		zlog.Error().Err(err).Msg("Preload did not complete")
	}

	client := speech.NewClient(&speech.ClientConfig{
		ServerURL:   cfg.Backend.ServerURL,
		Timeout:     cfg.Backend.Timeout,
		UserID:      cfg.Session.UserID,
		ProjectName: cfg.Session.ProjectName,
		Language:    cfg.Backend.Language,
		TTSVoice:    cfg.Backend.TTSVoice,
		TTSEngine:   cfg.Backend.TTSEngine,
	}, zlog)

	conversation := voice.NewConversation(controller, client, eventBus, zlog, *sessionID)
	zlog.Info().Str("sessionId", conversation.SessionID()).Msg("OrangeAvatar ready")

	switch {
	case *testCycle:
		runTestCycle(ctx, controller, zlog)

	case *sayText != "":
		resp, err := conversation.ProcessText(ctx, *sayText)
		if err != nil {
			zlog.Error().Err(err).Msg("Exchange failed")
			break
		}
		fmt.Println(resp.Response)
		waitForIdle(ctx, controller)

	case *audioFile != "":
		data, err := os.ReadFile(*audioFile)
		if err != nil {
			zlog.Error().Err(err).Str("file", *audioFile).Msg("Failed to read audio file")
			break
		}
		resp, err := conversation.ProcessUtterance(ctx, data)
		if err != nil {
			zlog.Error().Err(err).Msg("Exchange failed")
			break
		}
		fmt.Printf("heard: %s\nreply: %s\n", resp.Transcription, resp.Response)
		waitForIdle(ctx, controller)

	default:
		zlog.Info().Msg("Idle; waiting for shutdown signal")
		<-ctx.Done()
	}
}

// runTestCycle exercises one full cycle of each behavior without audio.
func runTestCycle(ctx context.Context, controller *avatar.Controller, zlog zerolog.Logger) {
	steps := []struct {
		name  string
		start func(avatar.StartOptions) error
	}{
		{"thinking", controller.StartThinking},
		{"talking", controller.StartTalking},
	}
	for _, step := range steps {
		if err := step.start(avatar.StartOptions{TestMode: true}); err != nil {
			zlog.Error().Err(err).Str("behavior", step.name).Msg("Test cycle failed to start")
			continue
		}
		waitForIdle(ctx, controller)
	}
}

// waitForIdle blocks until the avatar returns to the idle state.
func waitForIdle(ctx context.Context, controller *avatar.Controller) {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if controller.Active() == avatar.BehaviorIdle {
				return
			}
		}
	}
}

// Package voice orchestrates one spoken exchange: thinking animation
// and cue while the backend works, talking animation while the reply
// audio plays.
package voice

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/normanking/orangeavatar/internal/avatar"
	"github.com/normanking/orangeavatar/internal/bus"
	"github.com/normanking/orangeavatar/internal/speech"
)

// Exchange records one completed user/assistant turn.
type Exchange struct {
	UserText      string    `json:"userText"`
	AssistantText string    `json:"assistantText"`
	Timestamp     time.Time `json:"timestamp"`
}

// Backend is the speech processing surface the conversation needs.
type Backend interface {
	ProcessAudio(ctx context.Context, sessionID string, audio []byte) (*speech.ProcessResponse, error)
	ProcessText(ctx context.Context, sessionID, text string) (*speech.ProcessResponse, error)
	ResolveAudioURL(audioURL string) string
}

// Conversation drives the avatar through a speech round trip. The
// session identifier is an opaque string owned here; everything else
// about session persistence belongs to the backend.
type Conversation struct {
	controller *avatar.Controller
	backend    Backend
	eventBus   *bus.EventBus
	logger     zerolog.Logger

	mu        sync.Mutex
	sessionID string
	exchanges []Exchange
	busy      bool
}

// NewConversation creates a conversation bound to one avatar controller.
// An empty sessionID gets a generated identifier.
func NewConversation(controller *avatar.Controller, backend Backend, eventBus *bus.EventBus, logger zerolog.Logger, sessionID string) *Conversation {
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	return &Conversation{
		controller: controller,
		backend:    backend,
		eventBus:   eventBus,
		logger:     logger.With().Str("component", "conversation").Logger(),
		sessionID:  sessionID,
	}
}

// SessionID returns the opaque session identifier.
func (c *Conversation) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

// ProcessUtterance runs one full exchange from a captured audio
// utterance: the avatar thinks (looping animation plus cue) during the
// backend round trip, then talks while the reply audio plays, then
// returns to idle. Only one exchange runs at a time.
func (c *Conversation) ProcessUtterance(ctx context.Context, audio []byte) (*speech.ProcessResponse, error) {
	return c.exchange(ctx, func(sessionID string) (*speech.ProcessResponse, error) {
		return c.backend.ProcessAudio(ctx, sessionID, audio)
	}, "")
}

// ProcessText runs one full exchange from typed text.
func (c *Conversation) ProcessText(ctx context.Context, text string) (*speech.ProcessResponse, error) {
	return c.exchange(ctx, func(sessionID string) (*speech.ProcessResponse, error) {
		return c.backend.ProcessText(ctx, sessionID, text)
	}, text)
}

func (c *Conversation) exchange(ctx context.Context, dispatch func(sessionID string) (*speech.ProcessResponse, error), userText string) (*speech.ProcessResponse, error) {
	c.mu.Lock()
	if c.busy {
		c.mu.Unlock()
		return nil, fmt.Errorf("conversation: exchange already in progress")
	}
	c.busy = true
	sessionID := c.sessionID
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.busy = false
		c.mu.Unlock()
	}()

	// Thinking starts before dispatch so the avatar never sits frozen
	// while the backend works.
	if err := c.controller.StartThinking(avatar.StartOptions{Loop: true, PlayAudio: true}); err != nil {
		return nil, fmt.Errorf("failed to start thinking: %w", err)
	}

	c.publish(bus.EventTypeSpeechDispatched, map[string]any{"sessionId": sessionID})

	resp, err := dispatch(sessionID)
	if err != nil {
		c.controller.Stop()
		c.publish(bus.EventTypeSpeechFailed, map[string]any{
			"sessionId": sessionID,
			"error":     err.Error(),
		})
		return nil, err
	}

	c.publish(bus.EventTypeSpeechReply, map[string]any{
		"sessionId":  sessionID,
		"transcript": resp.Transcription,
	})

	if userText == "" {
		userText = resp.Transcription
	}
	c.record(userText, resp.Response)

	audioURL := c.backend.ResolveAudioURL(resp.AudioURL)
	if audioURL == "" {
		// Nothing to speak; the reply is text only.
		c.controller.Stop()
		return resp, nil
	}

	// The controller swaps thinking for talking exactly when the reply
	// cue confirms playback, and returns to idle when it finishes.
	if err := c.controller.PlayReply(ctx, audioURL); err != nil {
		c.controller.Stop()
		return resp, fmt.Errorf("failed to play reply: %w", err)
	}

	return resp, nil
}

// record appends an exchange to the in-memory transcript.
func (c *Conversation) record(userText, assistantText string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.exchanges = append(c.exchanges, Exchange{
		UserText:      userText,
		AssistantText: assistantText,
		Timestamp:     time.Now(),
	})
}

// Exchanges returns a copy of the completed exchanges.
func (c *Conversation) Exchanges() []Exchange {
	c.mu.Lock()
	defer c.mu.Unlock()
	result := make([]Exchange, len(c.exchanges))
	copy(result, c.exchanges)
	return result
}

func (c *Conversation) publish(eventType bus.EventType, data map[string]any) {
	if c.eventBus != nil {
		c.eventBus.Publish(bus.Event{Type: eventType, Data: data})
	}
}

// Package speech provides the HTTP client for the remote
// speech-to-text, response generation and text-to-speech backend.
package speech

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// ClientConfig configures the speech backend client
type ClientConfig struct {
	ServerURL   string        // e.g., "http://localhost:5000"
	Timeout     time.Duration // HTTP request timeout
	UserID      string        // User ID for media routing
	ProjectName string        // Project name for media routing
	Language    string        // Language tag for transcription
	TTSVoice    string        // Voice for the reply audio
	TTSEngine   string        // TTS engine selection
}

// DefaultClientConfig returns sensible defaults
func DefaultClientConfig() *ClientConfig {
	return &ClientConfig{
		ServerURL:   "http://localhost:5000",
		Timeout:     120 * time.Second,
		UserID:      "talking-orange",
		ProjectName: "default",
		Language:    "en",
		TTSVoice:    "default",
		TTSEngine:   "auto",
	}
}

// ProcessRequest is the payload for a speech processing round trip
type ProcessRequest struct {
	Text        string `json:"text,omitempty"`
	AudioData   string `json:"audioData,omitempty"` // base64 encoded
	SessionID   string `json:"sessionId"`
	UserID      string `json:"userId,omitempty"`
	ProjectName string `json:"projectName,omitempty"`
	Language    string `json:"language,omitempty"`
	TTSVoice    string `json:"ttsVoice,omitempty"`
	TTSEngine   string `json:"ttsEngine,omitempty"`
}

// ProcessResponse carries the backend reply
type ProcessResponse struct {
	Transcription string `json:"transcription"`
	Response      string `json:"response"`
	AudioURL      string `json:"audioUrl,omitempty"`
	Error         string `json:"error,omitempty"`
}

// Client talks to the speech backend
type Client struct {
	config     *ClientConfig
	httpClient *http.Client
	logger     zerolog.Logger
}

// NewClient creates a new speech backend client
func NewClient(cfg *ClientConfig, logger zerolog.Logger) *Client {
	if cfg == nil {
		cfg = DefaultClientConfig()
	}

	return &Client{
		config: cfg,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		logger: logger.With().Str("component", "speech-client").Logger(),
	}
}

// ProcessAudio sends a captured utterance for transcription, response
// generation and reply synthesis.
func (c *Client) ProcessAudio(ctx context.Context, sessionID string, audio []byte) (*ProcessResponse, error) {
	if len(audio) == 0 {
		return nil, fmt.Errorf("no audio data provided")
	}
	return c.process(ctx, ProcessRequest{
		AudioData: base64.StdEncoding.EncodeToString(audio),
		SessionID: sessionID,
	})
}

// ProcessText sends a typed utterance for response generation and reply
// synthesis.
func (c *Client) ProcessText(ctx context.Context, sessionID, text string) (*ProcessResponse, error) {
	if text == "" {
		return nil, fmt.Errorf("no text provided")
	}
	return c.process(ctx, ProcessRequest{
		Text:      text,
		SessionID: sessionID,
	})
}

func (c *Client) process(ctx context.Context, reqBody ProcessRequest) (*ProcessResponse, error) {
	reqBody.UserID = c.config.UserID
	reqBody.ProjectName = c.config.ProjectName
	reqBody.Language = c.config.Language
	reqBody.TTSVoice = c.config.TTSVoice
	reqBody.TTSEngine = c.config.TTSEngine

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := c.config.ServerURL + "/api/speech/process"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("speech request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("speech request failed: %d - %s", resp.StatusCode, string(body))
	}

	var result ProcessResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if result.Error != "" {
		return nil, fmt.Errorf("speech backend error: %s", result.Error)
	}

	c.logger.Info().
		Dur("latency", time.Since(start)).
		Int("transcriptLen", len(result.Transcription)).
		Int("responseLen", len(result.Response)).
		Bool("hasAudio", result.AudioURL != "").
		Msg("Speech round trip complete")

	return &result, nil
}

// ResolveAudioURL makes a backend-relative reply audio URL absolute.
func (c *Client) ResolveAudioURL(audioURL string) string {
	if audioURL == "" {
		return ""
	}
	if len(audioURL) > 0 && audioURL[0] == '/' {
		return c.config.ServerURL + audioURL
	}
	return audioURL
}

package assets

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// ErrResourceUnavailable indicates a probe or fetch failure for an
// address. It is always absorbed by degrading to the pose fallback or
// skipping the frame, never treated as fatal.
var ErrResourceUnavailable = errors.New("resource unavailable")

// Transport fetches resources by address. Probe is a cheap existence
// check without a body download.
type Transport interface {
	Probe(ctx context.Context, address string) (bool, error)
	Fetch(ctx context.Context, address string) ([]byte, error)
}

// HTTPTransportConfig configures the HTTP transport
type HTTPTransportConfig struct {
	ProbeTimeout time.Duration
	FetchTimeout time.Duration
}

// HTTPTransport fetches resources over HTTP. Probes use HEAD requests.
type HTTPTransport struct {
	client       *http.Client
	probeTimeout time.Duration
	logger       zerolog.Logger
}

// NewHTTPTransport creates a new HTTP transport
func NewHTTPTransport(cfg HTTPTransportConfig, logger zerolog.Logger) *HTTPTransport {
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = 30 * time.Second
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = 5 * time.Second
	}
	return &HTTPTransport{
		client:       &http.Client{Timeout: cfg.FetchTimeout},
		probeTimeout: cfg.ProbeTimeout,
		logger:       logger.With().Str("component", "transport").Logger(),
	}
}

// Probe checks whether a resource exists without downloading it.
func (t *HTTPTransport) Probe(ctx context.Context, address string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, t.probeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, address, nil)
	if err != nil {
		return false, fmt.Errorf("failed to create probe request: %w", err)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("probe failed for %s: %w", address, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		return true, nil
	case resp.StatusCode == http.StatusNotFound:
		return false, nil
	default:
		return false, fmt.Errorf("probe for %s: unexpected status %d: %w",
			address, resp.StatusCode, ErrResourceUnavailable)
	}
}

// Fetch downloads a resource body.
func (t *HTTPTransport) Fetch(ctx context.Context, address string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, address, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create fetch request: %w", err)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch failed for %s: %w", address, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch for %s: status %d: %w",
			address, resp.StatusCode, ErrResourceUnavailable)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read body for %s: %w", address, err)
	}

	return data, nil
}

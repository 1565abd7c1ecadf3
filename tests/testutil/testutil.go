// Package testutil provides shared fakes and fixtures for integration
// and end-to-end tests.
package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/png"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/normanking/orangeavatar/internal/assets"
	"github.com/normanking/orangeavatar/internal/audio"
	"github.com/normanking/orangeavatar/internal/render"
	"github.com/normanking/orangeavatar/internal/speech"
)

// PNGBytes returns a minimal valid PNG payload.
func PNGBytes(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 1, 1))); err != nil {
		t.Fatalf("failed to encode test image: %v", err)
	}
	return buf.Bytes()
}

// StubRenderer implements render.Adapter with an always-ready mesh and
// records every shown address in order.
type StubRenderer struct {
	mu    sync.Mutex
	shown []string
}

func NewStubRenderer() *StubRenderer { return &StubRenderer{} }

func (r *StubRenderer) ShowResource(res *assets.Resource) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.shown = append(r.shown, res.Address)
	return nil
}

func (r *StubRenderer) Mesh() (render.Mesh, bool) { return struct{}{}, true }

// Shown returns a copy of the addresses rendered so far.
func (r *StubRenderer) Shown() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.shown))
	copy(out, r.shown)
	return out
}

// CountPrefix counts shown addresses under the given prefix.
func (r *StubRenderer) CountPrefix(prefix string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, a := range r.shown {
		if strings.HasPrefix(a, prefix) {
			n++
		}
	}
	return n
}

// StubCue is an engine cue whose completion the test delivers by hand.
type StubCue struct {
	Address string
	started chan error
	done    chan error
}

func (c *StubCue) Play(ctx context.Context) error {
	select {
	case err := <-c.started:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *StubCue) Stop() {
	err := errors.New("cue stopped")
	c.deliver(c.started, err)
	c.deliver(c.done, err)
}

func (c *StubCue) Done() <-chan error { return c.done }

// Confirm acknowledges playback start.
func (c *StubCue) Confirm() { c.deliver(c.started, nil) }

// Finish completes the cue with the given outcome.
func (c *StubCue) Finish(err error) { c.deliver(c.done, err) }

func (c *StubCue) deliver(ch chan error, err error) {
	select {
	case ch <- err:
	default:
	}
}

// StubEngine implements audio.Engine. With autoConfirm set, every cue
// acknowledges playback start immediately.
type StubEngine struct {
	autoConfirm bool

	mu   sync.Mutex
	cues []*StubCue
}

func NewStubEngine(autoConfirm bool) *StubEngine {
	return &StubEngine{autoConfirm: autoConfirm}
}

func (e *StubEngine) Create(address string) (audio.Handle, error) {
	c := &StubCue{
		Address: address,
		started: make(chan error, 1),
		done:    make(chan error, 1),
	}
	if e.autoConfirm {
		c.Confirm()
	}
	e.mu.Lock()
	e.cues = append(e.cues, c)
	e.mu.Unlock()
	return c, nil
}

// CueByAddress returns the first cue created for an address, or nil.
func (e *StubEngine) CueByAddress(address string) *StubCue {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, c := range e.cues {
		if c.Address == address {
			return c
		}
	}
	return nil
}

// CueCount returns the number of cues created so far.
func (e *StubEngine) CueCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.cues)
}

// MockBackend is an httptest server that plays the speech backend: it
// serves PNG media for every image path and answers speech processing
// round trips with a canned reply.
type MockBackend struct {
	*httptest.Server

	Reply speech.ProcessResponse

	mu       sync.Mutex
	requests []speech.ProcessRequest
}

// NewMockBackend starts a mock backend. The server is closed with the
// test.
func NewMockBackend(t *testing.T, reply speech.ProcessResponse) *MockBackend {
	t.Helper()
	m := &MockBackend{Reply: reply}
	payload := PNGBytes(t)

	m.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/api/speech/process" && r.Method == http.MethodPost:
			var req speech.ProcessRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			m.mu.Lock()
			m.requests = append(m.requests, req)
			m.mu.Unlock()
			json.NewEncoder(w).Encode(m.Reply)

		case strings.HasSuffix(r.URL.Path, ".png"):
			w.Write(payload)

		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(m.Server.Close)
	return m
}

// Requests returns a copy of the speech requests received so far.
func (m *MockBackend) Requests() []speech.ProcessRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]speech.ProcessRequest, len(m.requests))
	copy(out, m.requests)
	return out
}

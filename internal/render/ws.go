package render

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/normanking/orangeavatar/internal/assets"
	"github.com/normanking/orangeavatar/internal/audio"
	"github.com/normanking/orangeavatar/internal/bus"
)

// wsCommand is sent to the rendering host
type wsCommand struct {
	Type     string `json:"type"`
	Address  string `json:"address,omitempty"`
	MimeType string `json:"mime_type,omitempty"`
	Data     string `json:"data,omitempty"`
	Sequence int64  `json:"sequence,omitempty"`
	CueID    string `json:"cue_id,omitempty"`
}

// wsHostMessage is received from the rendering host
type wsHostMessage struct {
	Type    string `json:"type"`
	CueID   string `json:"cue_id,omitempty"`
	Message string `json:"message,omitempty"`
}

// WSConfig configures the WebSocket rendering adapter
type WSConfig struct {
	URL              string
	ReconnectDelay   time.Duration
	WriteTimeout     time.Duration
	HandshakeTimeout time.Duration
}

// WSAdapter forwards show-resource commands and audio cues to a remote
// rendering host over a WebSocket. The host owns the mesh, the material
// and the audio output (including any autoplay permission gate); this
// side only issues commands and tracks lifecycle acknowledgements.
//
// WSAdapter implements both render.Adapter and audio.Engine.
type WSAdapter struct {
	cfg      WSConfig
	eventBus *bus.EventBus
	logger   zerolog.Logger

	mu        sync.RWMutex
	conn      *websocket.Conn
	connected bool
	meshReady bool
	sequence  int64
	cancel    context.CancelFunc
	pending   map[string]*wsCue

	onError func(err error)
}

// meshToken is the opaque mesh handle reported once the host is ready.
type meshToken struct{}

// NewWSAdapter creates a new WebSocket rendering adapter
func NewWSAdapter(cfg WSConfig, eventBus *bus.EventBus, logger zerolog.Logger) *WSAdapter {
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = 5 * time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = 10 * time.Second
	}
	return &WSAdapter{
		cfg:      cfg,
		eventBus: eventBus,
		logger:   logger.With().Str("component", "render-ws").Logger(),
		pending:  make(map[string]*wsCue),
	}
}

// SetErrorCallback sets the callback for connection errors
func (a *WSAdapter) SetErrorCallback(cb func(err error)) {
	a.onError = cb
}

// Connect establishes the WebSocket connection in the background and
// keeps reconnecting until Disconnect is called.
func (a *WSAdapter) Connect(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	go a.connectLoop(ctx)
	return nil
}

// Disconnect closes the WebSocket connection
func (a *WSAdapter) Disconnect() {
	if a.cancel != nil {
		a.cancel()
	}
	a.mu.Lock()
	if a.conn != nil {
		a.conn.Close()
		a.conn = nil
	}
	a.connected = false
	a.meshReady = false
	a.mu.Unlock()
	a.failPendingCues(errors.New("renderer disconnected"))
}

// IsConnected returns connection status
func (a *WSAdapter) IsConnected() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.connected
}

// Mesh reports the host mesh handle once the host has announced it.
func (a *WSAdapter) Mesh() (Mesh, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if !a.meshReady {
		return nil, false
	}
	return meshToken{}, true
}

// ShowResource forwards a decoded resource to the rendering host.
func (a *WSAdapter) ShowResource(res *assets.Resource) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.connected || a.conn == nil {
		return fmt.Errorf("renderer not connected")
	}

	a.sequence++
	cmd := wsCommand{
		Type:     "show_resource",
		Address:  res.Address,
		MimeType: http.DetectContentType(res.Data),
		Data:     base64.StdEncoding.EncodeToString(res.Data),
		Sequence: a.sequence,
	}
	return a.writeLocked(cmd)
}

// Create prepares an audio cue on the rendering host (audio.Engine).
func (a *WSAdapter) Create(address string) (audio.Handle, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.connected || a.conn == nil {
		return nil, fmt.Errorf("renderer not connected")
	}

	cue := &wsCue{
		id:      uuid.NewString(),
		address: address,
		adapter: a,
		started: make(chan error, 1),
		done:    make(chan error, 1),
	}
	if err := a.writeLocked(wsCommand{Type: "cue_create", CueID: cue.id, Address: address}); err != nil {
		return nil, err
	}
	a.pending[cue.id] = cue
	return cue, nil
}

func (a *WSAdapter) connectLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		dialer := websocket.Dialer{HandshakeTimeout: a.cfg.HandshakeTimeout}
		conn, _, err := dialer.DialContext(ctx, a.cfg.URL, nil)
		if err != nil {
			a.logger.Warn().Err(err).Str("url", a.cfg.URL).Msg("Renderer connection failed")
			if a.onError != nil {
				a.onError(err)
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(a.cfg.ReconnectDelay):
			}
			continue
		}

		a.mu.Lock()
		a.conn = conn
		a.connected = true
		a.mu.Unlock()

		a.logger.Info().Str("url", a.cfg.URL).Msg("Connected to rendering host")
		a.publish(bus.EventTypeRenderConnected, nil)

		a.readLoop(ctx, conn)

		a.mu.Lock()
		a.conn = nil
		a.connected = false
		a.meshReady = false
		a.mu.Unlock()

		a.failPendingCues(errors.New("renderer connection lost"))
		a.publish(bus.EventTypeRenderDisconnected, nil)

		select {
		case <-ctx.Done():
			return
		case <-time.After(a.cfg.ReconnectDelay):
		}
	}
}

func (a *WSAdapter) readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		var msg wsHostMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if ctx.Err() == nil {
				a.logger.Warn().Err(err).Msg("Renderer read failed")
			}
			conn.Close()
			return
		}
		a.handleMessage(msg)
	}
}

func (a *WSAdapter) handleMessage(msg wsHostMessage) {
	switch msg.Type {
	case "mesh_ready":
		a.mu.Lock()
		a.meshReady = true
		a.mu.Unlock()
		a.logger.Info().Msg("Renderer mesh ready")

	case "cue_started":
		if cue := a.lookupCue(msg.CueID); cue != nil {
			cue.deliverStarted(nil)
		}

	case "cue_ended":
		if cue := a.takeCue(msg.CueID); cue != nil {
			cue.deliverDone(nil)
		}

	case "cue_rejected", "cue_error":
		err := errors.New(msg.Message)
		if cue := a.takeCue(msg.CueID); cue != nil {
			cue.deliverStarted(err)
			cue.deliverDone(err)
		}

	default:
		a.logger.Debug().Str("type", msg.Type).Msg("Ignoring unknown renderer message")
	}
}

// writeLocked sends a command; caller must hold a.mu.
func (a *WSAdapter) writeLocked(cmd wsCommand) error {
	a.conn.SetWriteDeadline(time.Now().Add(a.cfg.WriteTimeout))
	if err := a.conn.WriteJSON(cmd); err != nil {
		return fmt.Errorf("failed to send %s: %w", cmd.Type, err)
	}
	return nil
}

func (a *WSAdapter) send(cmd wsCommand) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.connected || a.conn == nil {
		return fmt.Errorf("renderer not connected")
	}
	return a.writeLocked(cmd)
}

func (a *WSAdapter) lookupCue(id string) *wsCue {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.pending[id]
}

func (a *WSAdapter) takeCue(id string) *wsCue {
	a.mu.Lock()
	defer a.mu.Unlock()
	cue := a.pending[id]
	delete(a.pending, id)
	return cue
}

func (a *WSAdapter) removeCue(id string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.pending, id)
}

func (a *WSAdapter) failPendingCues(err error) {
	a.mu.Lock()
	cues := make([]*wsCue, 0, len(a.pending))
	for _, cue := range a.pending {
		cues = append(cues, cue)
	}
	a.pending = make(map[string]*wsCue)
	a.mu.Unlock()

	for _, cue := range cues {
		cue.deliverStarted(err)
		cue.deliverDone(err)
	}
}

func (a *WSAdapter) publish(eventType bus.EventType, data map[string]any) {
	if a.eventBus != nil {
		a.eventBus.Publish(bus.Event{Type: eventType, Data: data})
	}
}

// wsCue is one prepared cue on the rendering host
type wsCue struct {
	id      string
	address string
	adapter *WSAdapter

	startedOnce sync.Once
	doneOnce    sync.Once
	started     chan error
	done        chan error
}

// Play asks the host to start the cue and waits for confirmation.
func (c *wsCue) Play(ctx context.Context) error {
	if err := c.adapter.send(wsCommand{Type: "cue_play", CueID: c.id}); err != nil {
		c.adapter.removeCue(c.id)
		return err
	}
	select {
	case err := <-c.started:
		if err != nil {
			c.adapter.removeCue(c.id)
		}
		return err
	case <-ctx.Done():
		c.adapter.removeCue(c.id)
		return ctx.Err()
	}
}

// Stop cancels the cue on the host and unblocks any lifecycle waiter.
func (c *wsCue) Stop() {
	_ = c.adapter.send(wsCommand{Type: "cue_stop", CueID: c.id})
	c.adapter.removeCue(c.id)
	err := errors.New("cue stopped")
	c.deliverStarted(err)
	c.deliverDone(err)
}

// Done yields the cue completion outcome.
func (c *wsCue) Done() <-chan error {
	return c.done
}

func (c *wsCue) deliverStarted(err error) {
	c.startedOnce.Do(func() { c.started <- err })
}

func (c *wsCue) deliverDone(err error) {
	c.doneOnce.Do(func() { c.done <- err })
}

// Package viewer publishes simulation frames to browser viewers over
// websockets and feeds their camera input back into the simulation.
package viewer

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/signalsfoundry/orbit-scene/internal/logging"
	"github.com/signalsfoundry/orbit-scene/internal/sim"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096

	defaultSendBuffer = 8
	defaultRate       = rate.Limit(120)
	defaultBurst      = 30
)

// InputSink accepts viewer input. *sim.Simulation satisfies it.
type InputSink interface {
	Submit(in sim.Input) bool
}

// Metrics receives hub measurements. *observability.ViewerCollector
// satisfies it.
type Metrics interface {
	SetConnected(n int)
	IncDropped()
	IncInbound(kind string)
	IncThrottled()
	ObserveEncode(d time.Duration)
}

type client struct {
	conn    *websocket.Conn
	send    chan []byte
	limiter *rate.Limiter
	log     logging.Logger
}

// Hub is a sim.Renderer that broadcasts each frame as JSON to every
// connected viewer. A viewer that cannot keep up misses frames rather than
// slowing the simulation.
type Hub struct {
	log      logging.Logger
	metrics  Metrics
	upgrader websocket.Upgrader

	limit      rate.Limit
	burst      int
	sendBuffer int

	mu       sync.RWMutex
	clients  map[*client]struct{}
	sink     InputSink
	viewport Viewport
	closed   bool
}

// Option customises a Hub.
type Option func(*Hub)

// WithMetrics attaches hub metrics.
func WithMetrics(m Metrics) Option {
	return func(h *Hub) { h.metrics = m }
}

// WithRateLimit bounds inbound messages per connection. Resizes are not
// limited.
func WithRateLimit(r rate.Limit, burst int) Option {
	return func(h *Hub) {
		h.limit = r
		h.burst = burst
	}
}

// WithSendBuffer sets how many frames may queue per viewer.
func WithSendBuffer(n int) Option {
	return func(h *Hub) {
		if n > 0 {
			h.sendBuffer = n
		}
	}
}

// WithCheckOrigin overrides the websocket origin check. All origins are
// accepted by default.
func WithCheckOrigin(fn func(r *http.Request) bool) Option {
	return func(h *Hub) { h.upgrader.CheckOrigin = fn }
}

// NewHub returns an empty hub.
func NewHub(log logging.Logger, opts ...Option) *Hub {
	if log == nil {
		log = logging.Noop()
	}
	h := &Hub{
		log: log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		limit:      defaultRate,
		burst:      defaultBurst,
		sendBuffer: defaultSendBuffer,
		clients:    make(map[*client]struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Bind sets where viewer input is delivered. Input received before Bind is
// discarded.
func (h *Hub) Bind(sink InputSink) {
	h.mu.Lock()
	h.sink = sink
	h.mu.Unlock()
}

// Clients reports the number of connected viewers.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// SetSize records the viewport announced to new viewers.
func (h *Hub) SetSize(width, height int) {
	h.mu.Lock()
	h.viewport = Viewport{Width: width, Height: height}
	h.mu.Unlock()
}

// Render encodes the frame once and queues it for every viewer. Viewers with
// a full queue skip this frame.
func (h *Hub) Render(ctx context.Context, f sim.Frame) error {
	if h.Clients() == 0 {
		return nil
	}

	start := time.Now()
	data, err := json.Marshal(Snapshot(f))
	if err != nil {
		return err
	}
	if h.metrics != nil {
		h.metrics.ObserveEncode(time.Since(start))
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			if h.metrics != nil {
				h.metrics.IncDropped()
			}
		}
	}
	return nil
}

// Close disconnects every viewer and rejects new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	conns := make([]*websocket.Conn, 0, len(h.clients))
	for c := range h.clients {
		conns = append(conns, c.conn)
	}
	h.mu.Unlock()

	for _, conn := range conns {
		_ = conn.Close()
	}
}

// ServeHTTP upgrades the request and serves one viewer until it disconnects.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn(r.Context(), "websocket upgrade failed", logging.Err(err))
		return
	}

	ctx, log := logging.WithSessionLogger(r.Context(), h.log)
	c := &client{
		conn:    conn,
		send:    make(chan []byte, h.sendBuffer),
		limiter: rate.NewLimiter(h.limit, h.burst),
		log:     log,
	}

	if err := h.register(ctx, c); err != nil {
		log.Warn(ctx, "viewer rejected", logging.Err(err))
		_ = conn.Close()
		return
	}
	log.Info(ctx, "viewer connected", logging.String("remote", r.RemoteAddr))

	done := make(chan struct{})
	go func() {
		defer close(done)
		h.writePump(ctx, c)
	}()
	h.readPump(ctx, c)

	h.unregister(c)
	<-done
	log.Info(ctx, "viewer disconnected")
}

var errHubClosed = errors.New("viewer hub closed")

// register adds the client and queues its hello ahead of any frame.
func (h *Hub) register(ctx context.Context, c *client) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return errHubClosed
	}
	hello, err := json.Marshal(HelloMessage{
		Type:     TypeHello,
		Session:  logging.SessionIDFromContext(ctx),
		Viewport: h.viewport,
	})
	if err != nil {
		return err
	}
	c.send <- hello
	h.clients[c] = struct{}{}
	if h.metrics != nil {
		h.metrics.SetConnected(len(h.clients))
	}
	return nil
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.send)
	if h.metrics != nil {
		h.metrics.SetConnected(len(h.clients))
	}
}

func (h *Hub) writePump(ctx context.Context, c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.log.Debug(ctx, "viewer write failed", logging.Err(err))
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *Hub) readPump(ctx context.Context, c *client) {
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Warn(ctx, "viewer read failed", logging.Err(err))
			}
			return
		}
		h.handle(ctx, c, data)
	}
}

func (h *Hub) handle(ctx context.Context, c *client, data []byte) {
	var msg ClientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		c.log.Debug(ctx, "malformed viewer message", logging.Err(err))
		return
	}
	// Resizes bypass the limiter; the simulation coalesces them.
	if msg.Type != TypeResize && !c.limiter.Allow() {
		if h.metrics != nil {
			h.metrics.IncThrottled()
		}
		return
	}
	in, err := msg.Input()
	if err != nil {
		c.log.Debug(ctx, "ignored viewer message", logging.Err(err))
		return
	}
	if h.metrics != nil {
		h.metrics.IncInbound(msg.Type)
	}

	h.mu.RLock()
	sink := h.sink
	h.mu.RUnlock()
	if sink == nil {
		return
	}
	if !sink.Submit(in) {
		c.log.Debug(ctx, "viewer input dropped", logging.String("type", msg.Type))
	}
}

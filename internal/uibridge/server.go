// Package uibridge exposes the capture pipeline to UI overlays over a local
// HTTP server: a websocket at /ws streaming controller events as JSON, a
// Prometheus scrape endpoint at /metrics, and health probes.
//
// The bridge is push-only. Clients never send anything upstream; recording is
// controlled through the CLI or the MCP server, and every connected overlay
// sees the same event stream.
package uibridge

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"log/slog"

	"github.com/coder/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/voxlog/voxlog/internal/observe"
	"github.com/voxlog/voxlog/internal/record"
)

const (
	// writeTimeout bounds a single event write. A client that cannot keep up
	// is dropped rather than stalling the broadcast.
	writeTimeout = 2 * time.Second

	shutdownTimeout = 5 * time.Second
)

// wireEvent is the JSON shape sent to overlay clients.
type wireEvent struct {
	Type     string       `json:"type"`
	Segment  *wireSegment `json:"segment,omitempty"`
	Interim  string       `json:"interim"`
	Speaking bool         `json:"speaking"`
	OffsetMs int64        `json:"offsetMs"`
}

// wireSegment mirrors record.Segment with millisecond offsets.
type wireSegment struct {
	Index   int    `json:"index"`
	StartMs int64  `json:"startMs"`
	EndMs   int64  `json:"endMs"`
	Text    string `json:"text"`
}

// Option is a functional option for configuring a Server.
type Option func(*Server)

// WithLogger overrides the logger. Default slog.Default().
func WithLogger(log *slog.Logger) Option {
	return func(s *Server) { s.log = log }
}

// WithCheckers registers readiness checkers served at /readyz.
func WithCheckers(checkers ...Checker) Option {
	return func(s *Server) { s.checkers = append(s.checkers, checkers...) }
}

// Server broadcasts controller events to websocket clients and serves the
// metrics and health endpoints.
type Server struct {
	addr     string
	events   <-chan record.Event
	log      *slog.Logger
	checkers []Checker

	mu      sync.Mutex
	clients map[*websocket.Conn]context.CancelFunc
}

// New creates a bridge listening on addr, broadcasting events from the given
// channel. The caller hands over ownership of the channel's read side.
func New(addr string, events <-chan record.Event, opts ...Option) *Server {
	s := &Server{
		addr:    addr,
		events:  events,
		log:     slog.Default(),
		clients: make(map[*websocket.Conn]context.CancelFunc),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// handler builds the full route table.
func (s *Server) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws", s.handleWS)
	mux.Handle("GET /metrics", promhttp.Handler())
	s.registerHealth(mux)
	return observe.Middleware(observe.DefaultMetrics())(mux)
}

// Run serves until ctx is cancelled or the listener fails. The event pump and
// the HTTP server share a lifetime: when either exits, Run tears both down.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.addr,
		Handler:      s.handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 0, // websocket writes manage their own deadlines
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		s.pump(gctx)
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		s.closeClients()
		return srv.Shutdown(shutCtx)
	})

	s.log.Info("uibridge: listening", "addr", s.addr)
	return g.Wait()
}

// handleWS upgrades the connection and parks it in the client set. The read
// side is discarded; this socket only pushes.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		// Overlays are local apps with file:// or app-scheme origins.
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		s.log.Warn("uibridge: websocket accept failed", "error", err)
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	s.mu.Lock()
	s.clients[conn] = cancel
	n := len(s.clients)
	s.mu.Unlock()
	s.log.Debug("uibridge: client connected", "clients", n)

	// CloseRead returns a context that ends when the client goes away.
	readCtx := conn.CloseRead(ctx)
	<-readCtx.Done()

	s.mu.Lock()
	delete(s.clients, conn)
	s.mu.Unlock()
	conn.Close(websocket.StatusNormalClosure, "")
}

// pump fans controller events out to every connected client.
func (s *Server) pump(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-s.events:
			if !ok {
				return
			}
			s.broadcast(ctx, ev)
		}
	}
}

func (s *Server) broadcast(ctx context.Context, ev record.Event) {
	data, err := json.Marshal(toWire(ev))
	if err != nil {
		s.log.Error("uibridge: marshal event", "error", err)
		return
	}

	s.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(s.clients))
	for c := range s.clients {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	for _, c := range conns {
		wctx, cancel := context.WithTimeout(ctx, writeTimeout)
		err := c.Write(wctx, websocket.MessageText, data)
		cancel()
		if err != nil {
			s.log.Debug("uibridge: dropping slow client", "error", err)
			s.drop(c)
		}
	}
}

func (s *Server) drop(c *websocket.Conn) {
	s.mu.Lock()
	cancel, ok := s.clients[c]
	delete(s.clients, c)
	s.mu.Unlock()
	if ok {
		cancel()
	}
	c.Close(websocket.StatusPolicyViolation, "write timeout")
}

func (s *Server) closeClients() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for c, cancel := range s.clients {
		cancel()
		c.Close(websocket.StatusGoingAway, "server shutting down")
		delete(s.clients, c)
	}
}

func toWire(ev record.Event) wireEvent {
	w := wireEvent{
		Type:     string(ev.Type),
		Interim:  ev.Interim,
		Speaking: ev.Speaking,
		OffsetMs: ev.Offset.Milliseconds(),
	}
	if ev.Segment != nil {
		w.Segment = &wireSegment{
			Index:   ev.Segment.Index,
			StartMs: ev.Segment.Start.Milliseconds(),
			EndMs:   ev.Segment.End.Milliseconds(),
			Text:    ev.Segment.Text,
		}
	}
	return w
}

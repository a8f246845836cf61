// Package gateway provides the WebSocket transport for the relay: it accepts
// connections, pumps frames between each socket and its relay session, and
// drives disconnect cleanup. One goroutine reads and one writes per
// connection; all shared state lives behind the relay coordinator.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/quickmatch/relay/internal/config"
	"github.com/quickmatch/relay/internal/protocol"
	"github.com/quickmatch/relay/internal/relay"
)

// Gateway accepts WebSocket connections on /ws and reports liveness on
// /healthz. It implements server.Service.
type Gateway struct {
	cfg        config.ServerConfig
	registry   *relay.Registry
	dispatcher *relay.Dispatcher
	coord      *relay.Coordinator
	logger     *zap.Logger
	upgrader   websocket.Upgrader
	httpServer *http.Server

	mu       sync.Mutex
	listener net.Listener
	running  bool
	conns    map[*websocket.Conn]struct{}
	wg       sync.WaitGroup
}

// New creates a Gateway serving the given registry, dispatcher, and
// coordinator.
//
// Precondition: all arguments must be non-nil and cfg validated.
func New(cfg config.ServerConfig, registry *relay.Registry, dispatcher *relay.Dispatcher, coord *relay.Coordinator, logger *zap.Logger) *Gateway {
	g := &Gateway{
		cfg:        cfg,
		registry:   registry,
		dispatcher: dispatcher,
		coord:      coord,
		logger:     logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// The relay fronts game clients, not browsers with credentials;
			// it accepts any origin.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		conns: make(map[*websocket.Conn]struct{}),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", g.serveWS)
	mux.HandleFunc("/healthz", g.serveHealth)
	g.httpServer = &http.Server{Handler: mux}

	return g
}

// Start listens on the configured address and serves until Stop is called.
// This method blocks.
//
// Precondition: The gateway must not already be running.
func (g *Gateway) Start() error {
	listener, err := net.Listen("tcp", g.cfg.Addr())
	if err != nil {
		return fmt.Errorf("listening on %s: %w", g.cfg.Addr(), err)
	}

	g.mu.Lock()
	g.listener = listener
	g.running = true
	g.mu.Unlock()

	g.logger.Info("gateway listening",
		zap.String("addr", listener.Addr().String()),
	)

	if err := g.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serving: %w", err)
	}
	return nil
}

// Stop shuts the HTTP server down, closes every live WebSocket, and waits
// for the per-connection goroutines to drain.
//
// Postcondition: All connections are closed when this method returns.
func (g *Gateway) Stop() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = g.httpServer.Shutdown(ctx)

	g.mu.Lock()
	for conn := range g.conns {
		_ = conn.Close()
	}
	g.running = false
	g.mu.Unlock()

	g.wg.Wait()
	g.logger.Info("gateway stopped")
}

// IsRunning reports whether the listener has been established.
func (g *Gateway) IsRunning() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.running
}

// Addr returns the bound listen address, or "" before Start.
func (g *Gateway) Addr() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.listener == nil {
		return ""
	}
	return g.listener.Addr().String()
}

func (g *Gateway) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.logger.Error("websocket upgrade failed",
			zap.String("remote_addr", r.RemoteAddr),
			zap.Error(err),
		)
		return
	}

	g.mu.Lock()
	g.conns[conn] = struct{}{}
	g.mu.Unlock()

	sess := g.registry.Register()
	log := g.logger.With(
		zap.String("conn_id", sess.ID()),
		zap.String("trace_id", uuid.NewString()),
		zap.String("remote_addr", r.RemoteAddr),
	)
	log.Info("client connected")

	// The welcome frame carries the issued id and must be the first thing
	// the client sees.
	_ = sess.Push(protocol.Welcome(sess.ID()))

	g.wg.Add(1)
	go g.writePump(conn, sess, log)

	g.readLoop(conn, sess, log)

	g.dispatcher.Disconnect(sess)

	g.mu.Lock()
	delete(g.conns, conn)
	g.mu.Unlock()
	_ = conn.Close()

	log.Info("client disconnected")
}

// readLoop reads frames until the connection drops and hands each to the
// dispatcher. Returns when the read side fails; cleanup belongs to serveWS.
func (g *Gateway) readLoop(conn *websocket.Conn, sess *relay.Session, log *zap.Logger) {
	conn.SetReadLimit(g.cfg.ReadLimit)
	if g.cfg.PongWait > 0 {
		_ = conn.SetReadDeadline(time.Now().Add(g.cfg.PongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(g.cfg.PongWait))
		})
	}

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Debug("read failed", zap.Error(err))
			}
			return
		}
		g.dispatcher.Dispatch(sess, data)
	}
}

// writePump drains the session's outbound buffer onto the socket and keeps
// the connection alive with pings. Write failures terminate the pump; the
// read side then notices the dead socket and triggers cleanup.
func (g *Gateway) writePump(conn *websocket.Conn, sess *relay.Session, log *zap.Logger) {
	defer g.wg.Done()

	var pings <-chan time.Time
	if g.cfg.PingInterval > 0 {
		ticker := time.NewTicker(g.cfg.PingInterval)
		defer ticker.Stop()
		pings = ticker.C
	}

	for {
		select {
		case frame, ok := <-sess.Frames():
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
					time.Now().Add(time.Second))
				return
			}
			if g.cfg.WriteTimeout > 0 {
				_ = conn.SetWriteDeadline(time.Now().Add(g.cfg.WriteTimeout))
			}
			if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				log.Debug("write failed", zap.Error(err))
				return
			}
		case <-pings:
			if g.cfg.WriteTimeout > 0 {
				_ = conn.SetWriteDeadline(time.Now().Add(g.cfg.WriteTimeout))
			}
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (g *Gateway) serveHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":   "ok",
		"sessions": g.registry.Count(),
		"rooms":    g.coord.RoomCount(),
		"queued":   g.coord.QueuedCount(),
	})
}

// Package gateway implements the Collector Gateway: it upgrades the
// collector's inbound HTTP connection to a WebSocket and demultiplexes
// incoming frames to the Command Bridge and the State Store.
package gateway

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/desktopai/runcontrol/internal/bridge"
	"github.com/desktopai/runcontrol/internal/domain"
	"github.com/desktopai/runcontrol/internal/logging"
)

// Bridge is the subset of the Command Bridge the gateway drives.
type Bridge interface {
	Attach(conn bridge.Conn) uint64
	Detach(conn bridge.Conn, generation uint64)
	HandleIncoming(result bridge.CommandResult)
}

// StateStore is the subset of the State Store the gateway feeds.
type StateStore interface {
	Record(evt domain.WindowEvent) domain.Observation
}

// BroadcastHub is the subset of the Broadcast Hub the gateway feeds.
type BroadcastHub interface {
	BroadcastJSON(payload any)
}

// DurableStore is the subset of the Durable Store the gateway feeds.
type DurableStore interface {
	AppendObservation(obs domain.Observation)
}

// Config constructs a Gateway.
type Config struct {
	Bridge       Bridge
	StateStore   StateStore
	BroadcastHub BroadcastHub
	DurableStore DurableStore
	Logger       logging.Logger
}

// Gateway is the Collector Gateway.
type Gateway struct {
	bridge   Bridge
	state    StateStore
	hub      BroadcastHub
	durable  DurableStore
	logger   logging.Logger
	upgrader websocket.Upgrader
}

// New constructs a Gateway from cfg.
func New(cfg Config) *Gateway {
	return &Gateway{
		bridge:  cfg.Bridge,
		state:   cfg.StateStore,
		hub:     cfg.BroadcastHub,
		durable: cfg.DurableStore,
		logger:  logging.OrNop(cfg.Logger).With("gateway"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// the collector runs on the same host as the backend; it is
			// not a browser client subject to CORS/origin concerns.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// wsConn adapts a *websocket.Conn to bridge.Conn, serializing writes with
// its own mutex since gorilla connections are not safe for concurrent
// writers.
type wsConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (c *wsConn) Send(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteJSON(v)
}

// ServeHTTP upgrades the request to a WebSocket and runs the read loop
// for the collector connection's lifetime.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.logger.Warn("collector upgrade failed: %v", err)
		return
	}

	wc := &wsConn{conn: conn}
	generation := g.bridge.Attach(wc)
	g.logger.Info("collector connected (generation %d)", generation)
	defer func() {
		g.bridge.Detach(wc, generation)
		_ = conn.Close()
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			g.logger.Info("collector connection closed (generation %d): %v", generation, err)
			return
		}
		g.handleFrame(raw)
	}
}

type inboundEnvelope struct {
	Type string `json:"type"`
}

func (g *Gateway) handleFrame(raw []byte) {
	var envelope inboundEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		g.logger.Warn("malformed collector frame, discarding: %v", err)
		return
	}

	if envelope.Type == "command_result" {
		var result bridge.CommandResult
		if err := json.Unmarshal(raw, &result); err != nil {
			g.logger.Warn("malformed command_result, discarding: %v", err)
			return
		}
		g.bridge.HandleIncoming(result)
		return
	}

	var evt domain.WindowEvent
	if err := json.Unmarshal(raw, &evt); err != nil {
		g.logger.Warn("malformed window event, discarding: %v", err)
		return
	}
	obs := g.state.Record(evt)
	g.hub.BroadcastJSON(map[string]any{"type": "observation", "observation": obs})
	if g.durable != nil {
		g.durable.AppendObservation(obs)
	}
}

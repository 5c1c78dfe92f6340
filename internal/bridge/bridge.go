// Package bridge implements the Command Bridge: a request/response RPC
// over a single duplex connection to the external collector process,
// with correlation-identifier matching, timeouts, and supersede-on-
// reattach disconnect semantics.
package bridge

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/desktopai/runcontrol/internal/apperrors"
	"github.com/desktopai/runcontrol/internal/idgen"
	"github.com/desktopai/runcontrol/internal/logging"
)

// Conn is the minimal transport the Bridge needs: something it can write
// a JSON-shaped command frame to. The Collector Gateway supplies a
// *gorilla/websocket.Conn-backed implementation serialized by a
// per-connection write mutex, since gorilla connections are not safe for
// concurrent writers.
type Conn interface {
	Send(v any) error
}

// CommandMessage is the outgoing wire shape for a dispatched action.
type CommandMessage struct {
	Type       string         `json:"type"`
	CommandID  string         `json:"command_id"`
	Action     string         `json:"action"`
	Parameters map[string]any `json:"parameters"`
	TimeoutMs  int64          `json:"timeout_ms"`
}

// CommandResult is the incoming wire shape correlated back to a
// CommandMessage by CommandID.
type CommandResult struct {
	Type          string         `json:"type"`
	CommandID     string         `json:"command_id"`
	OK            bool           `json:"ok"`
	Result        map[string]any `json:"result"`
	Error         string         `json:"error"`
	ScreenshotB64 string         `json:"screenshot_b64"`
}

type waiter struct {
	ch chan CommandResult
}

// Bridge is the Command Bridge. The zero value is not usable; construct
// with New.
type Bridge struct {
	logger logging.Logger

	mu         sync.Mutex
	conn       Conn
	generation uint64
	pending    map[string]*waiter
}

// New constructs an unattached Bridge.
func New(logger logging.Logger) *Bridge {
	return &Bridge{
		logger:  logging.OrNop(logger).With("bridge"),
		pending: make(map[string]*waiter),
	}
}

// Attach binds conn as the active connection, superseding any previously
// attached connection without failing its pending waiters (they remain
// resolvable on the new connection's command stream, keyed by the same
// correlation identifiers the collector is expected to echo back). It
// returns the generation stamp the caller must present to Detach.
func (b *Bridge) Attach(conn Conn) uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.conn = conn
	b.generation++
	b.logger.Info("collector attached (generation %d)", b.generation)
	return b.generation
}

// Detach unbinds conn if, and only if, generation matches the Bridge's
// current generation (i.e. conn has not already been superseded by a
// later Attach). A stale Detach is a no-op. A matching Detach fails every
// pending waiter with a transport error.
func (b *Bridge) Detach(conn Conn, generation uint64) {
	b.mu.Lock()
	if generation != b.generation || b.conn != conn {
		b.mu.Unlock()
		return
	}
	b.conn = nil
	pending := b.pending
	b.pending = make(map[string]*waiter)
	b.mu.Unlock()

	b.logger.Warn("collector detached (generation %d), failing %d pending calls", generation, len(pending))
	for _, w := range pending {
		select {
		case w.ch <- CommandResult{OK: false, Error: "collector disconnected"}:
		default:
		}
	}
}

// Execute dispatches action to the attached collector and blocks until a
// correlated reply arrives, ctx is cancelled, or timeout elapses.
func (b *Bridge) Execute(ctx context.Context, action string, parameters map[string]any, timeout time.Duration) (map[string]any, error) {
	b.mu.Lock()
	conn := b.conn
	if conn == nil {
		b.mu.Unlock()
		return nil, apperrors.Transport("bridge not connected")
	}
	commandID := idgen.NewCommandID()
	w := &waiter{ch: make(chan CommandResult, 1)}
	b.pending[commandID] = w
	b.mu.Unlock()

	msg := CommandMessage{
		Type:       "command",
		CommandID:  commandID,
		Action:     action,
		Parameters: parameters,
		TimeoutMs:  timeout.Milliseconds(),
	}
	if err := conn.Send(msg); err != nil {
		b.removeWaiter(commandID)
		return nil, apperrors.Transport(fmt.Sprintf("send command: %v", err))
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case result := <-w.ch:
		if !result.OK {
			errMsg := result.Error
			if errMsg == "" {
				errMsg = "collector disconnected"
			}
			return resultMap(result), apperrors.Transport(errMsg)
		}
		return resultMap(result), nil
	case <-timer.C:
		b.removeWaiter(commandID)
		return nil, apperrors.Timeout(fmt.Sprintf("command %s timed out after %s", commandID, timeout))
	case <-ctx.Done():
		b.removeWaiter(commandID)
		return nil, apperrors.Timeout(fmt.Sprintf("command %s cancelled: %v", commandID, ctx.Err()))
	}
}

func resultMap(r CommandResult) map[string]any {
	out := make(map[string]any, len(r.Result)+1)
	for k, v := range r.Result {
		out[k] = v
	}
	if r.ScreenshotB64 != "" {
		out["screenshot_b64"] = r.ScreenshotB64
	}
	return out
}

func (b *Bridge) removeWaiter(commandID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.pending, commandID)
}

// HandleIncoming routes a correlated result to the waiter registered
// under its CommandID. Unknown correlation identifiers are logged and
// discarded.
func (b *Bridge) HandleIncoming(result CommandResult) {
	b.mu.Lock()
	w, ok := b.pending[result.CommandID]
	if ok {
		delete(b.pending, result.CommandID)
	}
	b.mu.Unlock()

	if !ok {
		b.logger.Warn("unknown command result correlation id %q, discarding", result.CommandID)
		return
	}
	select {
	case w.ch <- result:
	default:
	}
}

// Status reports operator-visible bridge health.
type Status struct {
	Connected bool `json:"connected"`
	Pending   int  `json:"pending"`
}

// Status returns the Bridge's current connectivity and in-flight count.
func (b *Bridge) Status() Status {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Status{Connected: b.conn != nil, Pending: len(b.pending)}
}

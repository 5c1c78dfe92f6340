package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/desktopai/runcontrol/internal/domain"
	"github.com/desktopai/runcontrol/internal/logging"
	"github.com/desktopai/runcontrol/internal/netretry"
)

// cdpVersionInfo is the shape Chrome's /json/version debug endpoint
// returns; WebSocketDebuggerURL is what we dial to reach the first page.
type cdpVersionInfo struct {
	WebSocketDebuggerURL string `json:"webSocketDebuggerUrl"`
}

// cdpPageTarget is one entry of Chrome's /json/list debug endpoint.
type cdpPageTarget struct {
	Type                 string `json:"type"`
	WebSocketDebuggerURL string `json:"webSocketDebuggerUrl"`
}

type cdpRequest struct {
	ID     int64          `json:"id"`
	Method string         `json:"method"`
	Params map[string]any `json:"params,omitempty"`
}

type cdpResponse struct {
	ID     int64           `json:"id"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *cdpError       `json:"error,omitempty"`
}

type cdpError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

var browserUnsupportedActionMarker = "unsupported action for browser executor"

// BrowserExecutor drives a single page of the first open browser context
// over the Chrome DevTools Protocol debug port.
type BrowserExecutor struct {
	debugEndpoint string
	logger        logging.Logger
	breaker       *netretry.CircuitBreaker

	mu     sync.Mutex
	conn   *websocket.Conn
	nextID int64
}

// NewBrowserExecutor constructs a BrowserExecutor against debugEndpoint,
// e.g. "http://127.0.0.1:9222".
func NewBrowserExecutor(debugEndpoint string, logger logging.Logger) *BrowserExecutor {
	logger = logging.OrNop(logger).With("browser-executor")
	return &BrowserExecutor{
		debugEndpoint: strings.TrimRight(debugEndpoint, "/"),
		logger:        logger,
		breaker:       netretry.NewCircuitBreaker("browser-cdp", netretry.DefaultCircuitBreakerConfig(), logger),
	}
}

func (e *BrowserExecutor) Execute(ctx context.Context, action domain.Action, _ string, _ *domain.Observation) Result {
	conn, err := e.ensureConn(ctx)
	if err != nil {
		return failResult("browser", action.Name, err.Error())
	}

	var (
		method string
		params map[string]any
		decode func(json.RawMessage) map[string]any
	)

	switch action.Name {
	case "navigate":
		method = "Page.navigate"
		params = map[string]any{"url": action.Parameters["url"]}
		decode = passthroughDecode
	case "click":
		method = "Input.dispatchMouseEvent"
		params = map[string]any{"type": "mousePressed", "x": action.Parameters["x"], "y": action.Parameters["y"], "button": "left", "clickCount": 1}
		decode = passthroughDecode
	case "fill":
		method = "Input.insertText"
		params = map[string]any{"text": action.Parameters["text"]}
		decode = passthroughDecode
	case "read_text":
		method = "Runtime.evaluate"
		params = map[string]any{"expression": "document.body.innerText", "returnByValue": true}
		decode = passthroughDecode
	case "screenshot":
		method = "Page.captureScreenshot"
		params = map[string]any{}
		decode = passthroughDecode
	case "evaluate":
		method = "Runtime.evaluate"
		params = map[string]any{"expression": action.Parameters["expression"], "returnByValue": true}
		decode = passthroughDecode
	default:
		return failResult("browser", action.Name, fmt.Sprintf("%s: %q", browserUnsupportedActionMarker, action.Name))
	}

	raw, err := e.call(conn, method, params)
	if err != nil {
		return failResult("browser", action.Name, err.Error())
	}
	return Result{OK: true, Result: map[string]any{
		"executor": "browser",
		"action":   action.Name,
		"ok":       true,
		"cdp":      decode(raw),
	}}
}

func passthroughDecode(raw json.RawMessage) map[string]any {
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return map[string]any{"raw": string(raw)}
	}
	return out
}

func (e *BrowserExecutor) call(conn *websocket.Conn, method string, params map[string]any) (json.RawMessage, error) {
	e.mu.Lock()
	e.nextID++
	id := e.nextID
	req := cdpRequest{ID: id, Method: method, Params: params}
	if err := conn.WriteJSON(req); err != nil {
		e.mu.Unlock()
		return nil, fmt.Errorf("write cdp request: %w", err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(10 * time.Second))
	for {
		var resp cdpResponse
		if err := conn.ReadJSON(&resp); err != nil {
			e.mu.Unlock()
			return nil, fmt.Errorf("read cdp response: %w", err)
		}
		if resp.ID != id {
			continue
		}
		e.mu.Unlock()
		if resp.Error != nil {
			return nil, fmt.Errorf("cdp error %d: %s", resp.Error.Code, resp.Error.Message)
		}
		return resp.Result, nil
	}
}

func (e *BrowserExecutor) ensureConn(ctx context.Context) (*websocket.Conn, error) {
	e.mu.Lock()
	if e.conn != nil {
		conn := e.conn
		e.mu.Unlock()
		return conn, nil
	}
	e.mu.Unlock()

	var conn *websocket.Conn
	err := e.breaker.Execute(ctx, func(ctx context.Context) error {
		return netretry.Do(ctx, netretry.DefaultConfig(), e.logger, func(ctx context.Context) error {
			wsURL, err := e.discoverDebugTarget(ctx)
			if err != nil {
				return err
			}
			dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
			c, _, dialErr := dialer.DialContext(ctx, wsURL, nil)
			if dialErr != nil {
				return fmt.Errorf("dial cdp endpoint: %w", dialErr)
			}
			conn = c
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	e.conn = conn
	e.mu.Unlock()
	return conn, nil
}

func (e *BrowserExecutor) discoverDebugTarget(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.debugEndpoint+"/json/list", nil)
	if err != nil {
		return "", err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("list browser targets: %w", err)
	}
	defer resp.Body.Close()

	var targets []cdpPageTarget
	if err := json.NewDecoder(resp.Body).Decode(&targets); err != nil {
		return "", fmt.Errorf("decode browser targets: %w", err)
	}
	for _, t := range targets {
		if t.Type == "page" && t.WebSocketDebuggerURL != "" {
			return t.WebSocketDebuggerURL, nil
		}
	}
	return "", fmt.Errorf("no open page found at %s", e.debugEndpoint)
}

func (e *BrowserExecutor) Status(ctx context.Context) map[string]any {
	e.mu.Lock()
	connected := e.conn != nil
	e.mu.Unlock()
	return map[string]any{
		"executor":       "browser",
		"connected":      connected,
		"circuit_state":  e.breaker.State().String(),
		"debug_endpoint": e.debugEndpoint,
		"checked_at":     time.Now().UTC(),
	}
}

func (e *BrowserExecutor) Preflight(ctx context.Context) error {
	_, err := e.ensureConn(ctx)
	return err
}

package executor

import (
	"context"
	"fmt"
	"time"

	"github.com/desktopai/runcontrol/internal/bridge"
	"github.com/desktopai/runcontrol/internal/domain"
)

// Bridge is the subset of the Command Bridge the bridge-backed executor
// depends on.
type Bridge interface {
	Execute(ctx context.Context, action string, parameters map[string]any, timeout time.Duration) (map[string]any, error)
	Status() bridge.Status
}

// TextComposer is an optional collaborator the bridge-backed executor
// may ask to draft literal text for a compose_text action when the
// action's parameters don't already supply one. No concrete LLM-backed
// implementation ships in this core; composition is out of scope (§1).
type TextComposer interface {
	ComposeText(ctx context.Context, objective string, obs *domain.Observation) (string, error)
}

// remoteCommandAliases maps incoming abstract action names to the
// concrete remote command name the collector understands. Names absent
// from this table pass through unchanged, so newly added collector
// commands need no bridge code change.
var remoteCommandAliases = map[string]string{
	"send_keys":      "send_keys",
	"focus_search":   "send_keys",
	"send_or_submit": "send_keys",
	"observe_desktop": "observe",
	"verify_outcome":  "observe",
	"compose_text":    "send_keys",
}

// defaultBridgeTimeout is used when the caller does not override it via
// WithTimeout.
const defaultBridgeTimeout = 15 * time.Second

// BridgeExecutor dispatches actions to the remote collector via the
// Command Bridge.
type BridgeExecutor struct {
	bridge   Bridge
	timeout  time.Duration
	composer TextComposer
}

// NewBridgeExecutor constructs a BridgeExecutor. composer may be nil, in
// which case a compose_text action without a literal text is dispatched
// (as remote send_keys) with an empty "text".
func NewBridgeExecutor(b Bridge, timeout time.Duration, composer TextComposer) *BridgeExecutor {
	if timeout <= 0 {
		timeout = defaultBridgeTimeout
	}
	return &BridgeExecutor{bridge: b, timeout: timeout, composer: composer}
}

func (e *BridgeExecutor) Execute(ctx context.Context, action domain.Action, objective string, obs *domain.Observation) Result {
	params := action.Parameters
	if action.Name == "compose_text" {
		composed, ok := e.resolveComposeText(ctx, action, objective, obs)
		if !ok {
			return composed
		}
		params = cloneParams(action.Parameters)
		params["text"] = composed.Result["text"]
	}

	remoteName, ok := remoteCommandAliases[action.Name]
	if !ok {
		remoteName = action.Name
	}

	bridgeResult, err := e.bridge.Execute(ctx, remoteName, params, e.timeout)
	if err != nil {
		return failResult("bridge", action.Name, err.Error())
	}

	out := map[string]any{
		"executor":            "bridge",
		"action":              action.Name,
		"ok":                  true,
		"bridge_result":       bridgeResult,
		"screenshot_available": bridgeResult["screenshot_b64"] != nil,
	}
	return Result{OK: true, Result: out}
}

// resolveComposeText returns (composed, true) with a filled-in "text"
// result key on success, or (failureResult, false) to short-circuit.
func (e *BridgeExecutor) resolveComposeText(ctx context.Context, action domain.Action, objective string, obs *domain.Observation) (Result, bool) {
	if text, ok := action.Parameters["text"].(string); ok && text != "" {
		return Result{Result: map[string]any{"text": text}}, true
	}
	if e.composer == nil {
		return Result{Result: map[string]any{"text": ""}}, true
	}
	text, err := e.composer.ComposeText(ctx, objective, obs)
	if err != nil {
		return failResult("bridge", action.Name, fmt.Sprintf("compose text: %v", err)), false
	}
	return Result{Result: map[string]any{"text": text}}, true
}

func cloneParams(in map[string]any) map[string]any {
	out := make(map[string]any, len(in)+1)
	for k, v := range in {
		out[k] = v
	}
	return out
}

func (e *BridgeExecutor) Status(_ context.Context) map[string]any {
	status := e.bridge.Status()
	return map[string]any{"executor": "bridge", "connected": status.Connected, "pending": status.Pending, "checked_at": time.Now().UTC()}
}

func (e *BridgeExecutor) Preflight(_ context.Context) error {
	return nil
}

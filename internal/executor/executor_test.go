package executor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/desktopai/runcontrol/internal/bridge"
	"github.com/desktopai/runcontrol/internal/domain"
)

func TestSimulatedAlwaysSucceeds(t *testing.T) {
	e := NewSimulated()
	result := e.Execute(context.Background(), domain.Action{Name: "observe_desktop"}, "objective", nil)
	assert.True(t, result.OK)
	assert.Equal(t, "observe_desktop", result.Result["action"])
}

type fakeBridge struct {
	status    bridge.Status
	lastCall  string
	returnErr error
	returnMap map[string]any
}

func (f *fakeBridge) Execute(_ context.Context, action string, _ map[string]any, _ time.Duration) (map[string]any, error) {
	f.lastCall = action
	return f.returnMap, f.returnErr
}

func (f *fakeBridge) Status() bridge.Status { return f.status }

func TestBridgeExecutorAliasesActionName(t *testing.T) {
	fb := &fakeBridge{returnMap: map[string]any{"done": true}}
	e := NewBridgeExecutor(fb, time.Second, nil)

	result := e.Execute(context.Background(), domain.Action{Name: "send_or_submit"}, "obj", nil)
	require.True(t, result.OK)
	assert.Equal(t, "send_keys", fb.lastCall)
}

func TestBridgeExecutorPassesThroughUnknownAction(t *testing.T) {
	fb := &fakeBridge{returnMap: map[string]any{}}
	e := NewBridgeExecutor(fb, time.Second, nil)

	e.Execute(context.Background(), domain.Action{Name: "open_application"}, "obj", nil)
	assert.Equal(t, "open_application", fb.lastCall)
}

func TestBridgeExecutorReportsFailureOnBridgeError(t *testing.T) {
	fb := &fakeBridge{returnErr: assertErr("bridge not connected")}
	e := NewBridgeExecutor(fb, time.Second, nil)

	result := e.Execute(context.Background(), domain.Action{Name: "observe_desktop"}, "obj", nil)
	assert.False(t, result.OK)
	assert.Equal(t, "bridge", result.Result["executor"])
	assert.Equal(t, false, result.Result["ok"])
}

type fakeComposer struct{ text string }

func (f fakeComposer) ComposeText(_ context.Context, _ string, _ *domain.Observation) (string, error) {
	return f.text, nil
}

func TestBridgeExecutorComposesTextWhenMissing(t *testing.T) {
	fb := &fakeBridge{returnMap: map[string]any{}}
	e := NewBridgeExecutor(fb, time.Second, fakeComposer{text: "drafted reply"})

	result := e.Execute(context.Background(), domain.Action{Name: "compose_text", Parameters: map[string]any{}}, "obj", nil)
	assert.True(t, result.OK)
	assert.Equal(t, "send_keys", fb.lastCall)
}

func TestBridgeExecutorComposeTextUsesLiteralWhenProvided(t *testing.T) {
	fb := &fakeBridge{returnMap: map[string]any{}}
	e := NewBridgeExecutor(fb, time.Second, fakeComposer{text: "should not be used"})

	e.Execute(context.Background(), domain.Action{Name: "compose_text", Parameters: map[string]any{"text": "literal"}}, "obj", nil)
	assert.Equal(t, "send_keys", fb.lastCall)
}

func TestFactoryAutoPrefersBridgeWhenConfigured(t *testing.T) {
	fb := &fakeBridge{}
	e, err := Build(FactoryConfig{Mode: ModeAuto, Bridge: fb})
	require.NoError(t, err)
	_, ok := e.(*BridgeExecutor)
	assert.True(t, ok)
}

func TestFactoryAutoFallsBackToSimulated(t *testing.T) {
	e, err := Build(FactoryConfig{Mode: ModeAuto})
	require.NoError(t, err)
	_, ok := e.(*Simulated)
	assert.True(t, ok)
}

func TestFactoryExplicitBridgeWithoutBridgeIsConfigError(t *testing.T) {
	_, err := Build(FactoryConfig{Mode: ModeBridge})
	require.Error(t, err)
}

type assertErr string

func (e assertErr) Error() string { return string(e) }

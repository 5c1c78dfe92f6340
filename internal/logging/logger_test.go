package logging

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConsoleLoggerRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Options{Out: &buf, Level: "warn"}).With("orchestrator")

	logger.Info("should not appear %d", 1)
	logger.Warn("should appear %d", 2)

	out := buf.String()
	assert.NotContains(t, out, "should not appear")
	assert.Contains(t, out, "should appear 2")
	assert.Contains(t, out, "orchestrator")
}

func TestWithNestsComponentName(t *testing.T) {
	var buf bytes.Buffer
	root := New(Options{Out: &buf, Level: "debug"})
	nested := root.With("runner").With("worker")

	nested.Debug("hello")

	require.Contains(t, buf.String(), "runner.worker")
}

func TestOrNopNeverPanics(t *testing.T) {
	var nilLogger Logger
	logger := OrNop(nilLogger)
	assert.NotPanics(t, func() {
		logger.Info("noop")
	})
}

func TestContextRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Options{Out: &buf, Level: "debug"}).With("bridge")
	ctx := WithContext(context.Background(), logger)

	recovered := FromContext(ctx, Nop)
	recovered.Info("via context")

	assert.True(t, strings.Contains(buf.String(), "bridge"))
}

func TestFromContextFallsBackWhenAbsent(t *testing.T) {
	recovered := FromContext(context.Background(), Nop)
	assert.Equal(t, Nop, recovered)
}

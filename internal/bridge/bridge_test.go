package bridge

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/desktopai/runcontrol/internal/apperrors"
	"github.com/desktopai/runcontrol/internal/logging"
)

// fakeConn captures sent commands and optionally echoes a reply through
// the Bridge itself, simulating the collector's round trip.
type fakeConn struct {
	mu       sync.Mutex
	sent     []CommandMessage
	onSend   func(CommandMessage)
	sendErr  error
}

func (c *fakeConn) Send(v any) error {
	msg, ok := v.(CommandMessage)
	if !ok {
		return nil
	}
	c.mu.Lock()
	c.sent = append(c.sent, msg)
	c.mu.Unlock()
	if c.sendErr != nil {
		return c.sendErr
	}
	if c.onSend != nil {
		c.onSend(msg)
	}
	return nil
}

func TestExecuteNotConnected(t *testing.T) {
	b := New(logging.Nop)
	_, err := b.Execute(context.Background(), "observe_desktop", nil, time.Second)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrTransport)
}

func TestExecuteRoundTrip(t *testing.T) {
	b := New(logging.Nop)
	conn := &fakeConn{}
	conn.onSend = func(msg CommandMessage) {
		go b.HandleIncoming(CommandResult{CommandID: msg.CommandID, OK: true, Result: map[string]any{"ok": true}})
	}
	b.Attach(conn)

	result, err := b.Execute(context.Background(), "observe_desktop", map[string]any{"x": 1}, time.Second)
	require.NoError(t, err)
	assert.Equal(t, true, result["ok"])
}

func TestExecuteTimeout(t *testing.T) {
	b := New(logging.Nop)
	conn := &fakeConn{}
	b.Attach(conn)

	_, err := b.Execute(context.Background(), "observe_desktop", nil, 20*time.Millisecond)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrTimeout)
	assert.Equal(t, Status{Connected: true, Pending: 0}, b.Status())
}

func TestDetachFailsPendingWaiters(t *testing.T) {
	b := New(logging.Nop)
	conn := &fakeConn{}
	gen := b.Attach(conn)

	resultCh := make(chan error, 1)
	go func() {
		_, err := b.Execute(context.Background(), "observe_desktop", nil, time.Second)
		resultCh <- err
	}()

	// give Execute a moment to register its waiter
	time.Sleep(20 * time.Millisecond)
	b.Detach(conn, gen)

	err := <-resultCh
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrTransport)
}

func TestReattachSupersedesWithoutFailingPending(t *testing.T) {
	b := New(logging.Nop)
	oldConn := &fakeConn{}
	oldGen := b.Attach(oldConn)

	resultCh := make(chan error, 1)
	go func() {
		_, err := b.Execute(context.Background(), "observe_desktop", nil, 500*time.Millisecond)
		resultCh <- err
	}()
	time.Sleep(20 * time.Millisecond)

	newConn := &fakeConn{}
	b.Attach(newConn)

	// the old connection's detach is now stale and must be a no-op
	b.Detach(oldConn, oldGen)

	select {
	case err := <-resultCh:
		t.Fatalf("pending call resolved prematurely on stale detach: %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	// the in-flight call still times out on its own schedule rather than
	// being failed by the superseded connection's detach
	err := <-resultCh
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrTimeout)
}

func TestUnknownCorrelationIDDiscarded(t *testing.T) {
	b := New(logging.Nop)
	conn := &fakeConn{}
	b.Attach(conn)
	b.HandleIncoming(CommandResult{CommandID: "does-not-exist", OK: true})
	// no panic, no effect
	assert.Equal(t, 0, b.Status().Pending)
}

func TestConcurrentExecuteCorrelatesIndependently(t *testing.T) {
	b := New(logging.Nop)
	conn := &fakeConn{}
	conn.onSend = func(msg CommandMessage) {
		go b.HandleIncoming(CommandResult{CommandID: msg.CommandID, OK: true, Result: map[string]any{"action": msg.Action}})
	}
	b.Attach(conn)

	const n = 20
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			result, err := b.Execute(context.Background(), "observe_desktop", nil, time.Second)
			assert.NoError(t, err)
			assert.Equal(t, "observe_desktop", result["action"])
		}(i)
	}
	wg.Wait()
}

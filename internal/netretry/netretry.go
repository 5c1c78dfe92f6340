// Package netretry provides general-purpose backoff retry and error
// classification for outbound network calls that are not the Task
// Orchestrator's own step-dispatch retry loop (which is a simpler,
// fixed-delay, state-machine-transparent concern — see
// internal/orchestrator). This package is reserved for collaborators that
// talk to the network on their own schedule: the browser-backed
// executor's CDP dial.
package netretry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"net"
	"net/http"
	"strings"
	"syscall"
	"time"

	"github.com/desktopai/runcontrol/internal/logging"
)

// Config configures exponential backoff retry.
type Config struct {
	MaxAttempts  int           // total attempts including the first, default 3
	BaseDelay    time.Duration // default 1s
	MaxDelay     time.Duration // default 30s
	JitterFactor float64       // default 0.25 (±25%)
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:  3,
		BaseDelay:    1 * time.Second,
		MaxDelay:     30 * time.Second,
		JitterFactor: 0.25,
	}
}

// Func is a function that can be retried.
type Func func(ctx context.Context) error

// Do runs fn, retrying with exponential backoff while the error is
// classified transient, up to cfg.MaxAttempts. It stops immediately on a
// permanent error or context cancellation.
func Do(ctx context.Context, cfg Config, logger logging.Logger, fn Func) error {
	logger = logging.OrNop(logger)
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < cfg.MaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return fmt.Errorf("context cancelled: %w", ctx.Err())
		default:
		}

		err := fn(ctx)
		if err == nil {
			if attempt > 0 {
				logger.Info("retry succeeded after %d attempts", attempt+1)
			}
			return nil
		}
		lastErr = err
		if !IsTransient(err) {
			return err
		}
		if attempt == cfg.MaxAttempts-1 {
			break
		}
		delay := backoff(attempt, cfg)
		logger.Debug("attempt %d failed (%v), retrying in %v", attempt+1, err, delay)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return fmt.Errorf("context cancelled during retry backoff: %w", ctx.Err())
		}
	}
	return fmt.Errorf("max retries exceeded: %w", lastErr)
}

func backoff(attempt int, cfg Config) time.Duration {
	d := float64(cfg.BaseDelay) * math.Pow(2, float64(attempt))
	if max := float64(cfg.MaxDelay); cfg.MaxDelay > 0 && d > max {
		d = max
	}
	jitter := d * cfg.JitterFactor * (rand.Float64()*2 - 1)
	d += jitter
	if d < 0 {
		d = 0
	}
	return time.Duration(d)
}

// IsTransient classifies err as retryable: network timeouts/resets,
// common transient syscall errors, and 429/5xx-shaped HTTP errors.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return dnsErr.IsTimeout || dnsErr.IsTemporary
	}
	var errno syscall.Errno
	if errors.As(err, &errno) {
		switch errno {
		case syscall.ECONNREFUSED, syscall.ECONNRESET, syscall.EPIPE,
			syscall.ETIMEDOUT, syscall.ENETUNREACH, syscall.EHOSTUNREACH:
			return true
		}
	}
	lower := strings.ToLower(err.Error())
	for _, pattern := range []string{
		"connection refused", "timeout", "deadline exceeded",
		"connection reset", "broken pipe", "i/o timeout",
	} {
		if strings.Contains(lower, pattern) {
			return true
		}
	}
	if code := statusCodeIn(lower); code > 0 {
		switch code {
		case http.StatusTooManyRequests, http.StatusInternalServerError,
			http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			return true
		}
	}
	return false
}

func statusCodeIn(lowerMsg string) int {
	for _, code := range []int{429, 500, 502, 503, 504} {
		if strings.Contains(lowerMsg, fmt.Sprintf("%d", code)) {
			return code
		}
	}
	return 0
}

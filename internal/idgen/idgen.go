// Package idgen generates the identifiers and approval tokens the
// run-control subsystem hands out: tasks, steps, runs, commands, and the
// single-use tokens that gate irreversible steps.
package idgen

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"github.com/google/uuid"
)

func newID(prefix string) string {
	return fmt.Sprintf("%s-%s", prefix, uuid.NewString())
}

// NewTaskID returns a fresh task identifier.
func NewTaskID() string { return newID("task") }

// NewStepID returns a fresh step identifier.
func NewStepID() string { return newID("step") }

// NewRunID returns a fresh autonomy run identifier.
func NewRunID() string { return newID("run") }

// NewCommandID returns a fresh bridge correlation identifier.
func NewCommandID() string { return newID("cmd") }

// NewSubscriberID returns a fresh broadcast subscriber identifier.
func NewSubscriberID() string { return newID("sub") }

// approvalTokenBytes is 16 bytes (128 bits), matching the original
// implementation's secrets.token_urlsafe(16).
const approvalTokenBytes = 16

// NewApprovalToken returns a CSPRNG-backed, URL-safe, base64-encoded token
// with at least 128 bits of entropy. Callers must compare tokens in
// constant time (see the orchestrator package).
func NewApprovalToken() (string, error) {
	buf := make([]byte, approvalTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate approval token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

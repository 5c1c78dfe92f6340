package domain

import (
	"encoding/json"
	"time"
)

// Observation is a snapshot of the desktop captured when a step begins:
// the foreground window, the process that owns it, an accessibility
// summary truncated to stay usable as planner context, and an optional
// screenshot.
type Observation struct {
	WindowTitle         string    `json:"window_title"`
	ProcessID           int       `json:"process_id"`
	Timestamp           time.Time `json:"timestamp"`
	AccessibilitySummary string   `json:"accessibility_summary,omitempty"`
	Screenshot          []byte    `json:"screenshot,omitempty"`
}

// Clone returns a deep copy of o.
func (o Observation) Clone() Observation {
	out := o
	if o.Screenshot != nil {
		out.Screenshot = make([]byte, len(o.Screenshot))
		copy(out.Screenshot, o.Screenshot)
	}
	return out
}

// maxAccessibilitySummaryLen bounds the accessibility summary so it stays
// usable as LLM planner context regardless of how large the source UI
// Automation tree dump was.
const maxAccessibilitySummaryLen = 4000

// TruncateAccessibilitySummary trims s to the bound this repository
// carries over from the original implementation's UIA summarization.
func TruncateAccessibilitySummary(s string) string {
	if len(s) <= maxAccessibilitySummaryLen {
		return s
	}
	return s[:maxAccessibilitySummaryLen] + "...(truncated)"
}

// WindowEvent is the wire shape the Collector Gateway receives for a
// foreground window change. Extra carries any additional fields the
// collector's schema allows beyond the typed ones below.
type WindowEvent struct {
	Type        string         `json:"type"`
	WindowHandle int64         `json:"window_handle"`
	Title       string         `json:"title"`
	ProcessPath string         `json:"process_path"`
	ProcessID   int            `json:"process_id"`
	Timestamp   time.Time      `json:"timestamp"`
	Source      string         `json:"source,omitempty"`
	Extra       map[string]any `json:"-"`
}

type windowEventWire struct {
	Type         string    `json:"type"`
	WindowHandle int64     `json:"window_handle"`
	Title        string    `json:"title"`
	ProcessPath  string    `json:"process_path"`
	ProcessID    int       `json:"process_id"`
	Timestamp    time.Time `json:"timestamp"`
	Source       string    `json:"source,omitempty"`
}

// UnmarshalJSON decodes the typed fields normally and keeps any unknown
// top-level keys in Extra, preserving the collector schema's open-ended
// additional-fields allowance.
func (e *WindowEvent) UnmarshalJSON(data []byte) error {
	var wire windowEventWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	for _, known := range []string{"type", "window_handle", "title", "process_path", "process_id", "timestamp", "source"} {
		delete(raw, known)
	}
	extra := make(map[string]any, len(raw))
	for k, v := range raw {
		var val any
		if err := json.Unmarshal(v, &val); err != nil {
			continue
		}
		extra[k] = val
	}
	e.Type = wire.Type
	e.WindowHandle = wire.WindowHandle
	e.Title = wire.Title
	e.ProcessPath = wire.ProcessPath
	e.ProcessID = wire.ProcessID
	e.Timestamp = wire.Timestamp
	e.Source = wire.Source
	if len(extra) > 0 {
		e.Extra = extra
	}
	return nil
}

// MarshalJSON encodes the typed fields plus any Extra passthrough keys.
func (e WindowEvent) MarshalJSON() ([]byte, error) {
	out := map[string]any{
		"type":          e.Type,
		"window_handle": e.WindowHandle,
		"title":         e.Title,
		"process_path":  e.ProcessPath,
		"process_id":    e.ProcessID,
		"timestamp":     e.Timestamp,
	}
	if e.Source != "" {
		out["source"] = e.Source
	}
	for k, v := range e.Extra {
		out[k] = v
	}
	return json.Marshal(out)
}

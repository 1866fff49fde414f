// Package audit records delivery outcomes and terminal failures for the
// call orchestrator. Events are fire-and-forget: an audit write that fails
// must never mask the error it was recording.
package audit

import (
	"time"

	"github.com/fyrsmithlabs/dialerd/internal/faults"
)

// EventType names an audit event.
type EventType string

const (
	EventSessionStarted      EventType = "session.started"
	EventSessionEnded        EventType = "session.ended"
	EventDispositionSent     EventType = "disposition.sent"
	EventCallbackScheduled   EventType = "callback.scheduled"
	EventTerminalFailure     EventType = "failure.terminal"
	EventCircuitOpenRejected EventType = "failure.circuit_open"
)

// Event is one audit record.
type Event struct {
	Type        EventType         `json:"type"`
	CallID      string            `json:"call_id"`
	PhoneNumber string            `json:"phone_number,omitempty"`
	Timestamp   time.Time         `json:"timestamp"`

	// Delivery details, set for disposition/callback events.
	DispositionCode string `json:"disposition_code,omitempty"`
	DispositionID   string `json:"disposition_id,omitempty"`
	CallbackID      string `json:"callback_id,omitempty"`

	// Failure details, set for failure events.
	Error    string          `json:"error,omitempty"`
	Kind     faults.Kind     `json:"kind,omitempty"`
	Severity faults.Severity `json:"severity,omitempty"`

	Metadata map[string]string `json:"metadata,omitempty"`
}

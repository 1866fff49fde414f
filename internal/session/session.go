// Package session owns the authoritative in-memory state of every active
// call and the agent extension pool. Registry mutations are synchronous,
// in-memory operations; no I/O happens under a registry lock.
package session

import (
	"time"
)

// State is the lifecycle state of a call session.
type State string

const (
	StatePreConnect State = "PRE_CONNECT"
	StateConnected  State = "CONNECTED"
	StateInProgress State = "IN_PROGRESS"
	StateCompleting State = "COMPLETING"
	StateCompleted  State = "COMPLETED"
)

// CallStatus is the detected outcome of call-signal analysis.
type CallStatus string

const (
	StatusLivePerson   CallStatus = "LIVE_PERSON"
	StatusVoicemail    CallStatus = "VOICEMAIL"
	StatusDeadAir      CallStatus = "DEAD_AIR"
	StatusBusy         CallStatus = "BUSY"
	StatusFastBusy     CallStatus = "FAST_BUSY"
	StatusNoAnswer     CallStatus = "NO_ANSWER"
	StatusDisconnected CallStatus = "DISCONNECTED"
	StatusFaxTone      CallStatus = "FAX_TONE"
	StatusIVR          CallStatus = "IVR"
	StatusUnknown      CallStatus = "UNKNOWN"
)

// QualificationResult is the verdict from the external qualification service.
type QualificationResult string

const (
	Qualified    QualificationResult = "QUALIFIED"
	NotQualified QualificationResult = "NOT_QUALIFIED"
)

// Qualification carries the external qualification verdict for a lead.
type Qualification struct {
	Result QualificationResult `json:"result"`
	Score  int                 `json:"score"`
	Reason string              `json:"reason,omitempty"`
}

// CallSession tracks one active call's state, resource lease, and progress
// toward a disposition.
type CallSession struct {
	CallID         string     `json:"call_id"`
	PhoneNumber    string     `json:"phone_number"`
	State          State      `json:"state"`
	Status         CallStatus `json:"status"`
	AgentExtension string     `json:"agent_extension"`
	StartTime      time.Time  `json:"start_time"`
	EndTime        time.Time  `json:"end_time,omitzero"`

	// RetryAttempts counts domain-level validation retries for this call.
	// Independent from the transport retry executor.
	RetryAttempts int `json:"retry_attempts"`
	MaxRetries    int `json:"max_retries"`

	Validated     bool           `json:"validated"`
	Qualification *Qualification `json:"qualification,omitempty"`

	DispositionSent bool   `json:"disposition_sent"`
	DispositionCode string `json:"disposition_code,omitempty"`
	DispositionID   string `json:"disposition_id,omitempty"`

	CallbackScheduled bool      `json:"callback_scheduled"`
	CallbackTime      time.Time `json:"callback_time,omitzero"`

	// WithinBusinessHours is computed once at session creation and never
	// re-evaluated.
	WithinBusinessHours bool `json:"within_business_hours"`

	Metadata map[string]string `json:"metadata,omitempty"`
}

// snapshot returns a deep copy safe to hand outside the registry lock.
func (s *CallSession) snapshot() CallSession {
	cp := *s
	if s.Metadata != nil {
		cp.Metadata = make(map[string]string, len(s.Metadata))
		for k, v := range s.Metadata {
			cp.Metadata[k] = v
		}
	}
	if s.Qualification != nil {
		q := *s.Qualification
		cp.Qualification = &q
	}
	return cp
}

// Duration returns the call duration. For active sessions it measures
// against now; for ended sessions, against the recorded end time.
func (s CallSession) Duration(now time.Time) time.Duration {
	end := s.EndTime
	if end.IsZero() {
		end = now
	}
	return end.Sub(s.StartTime)
}

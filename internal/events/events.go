// Package events defines the voice-platform lifecycle payloads and decodes
// them tolerantly: platforms wrap, rename, and nest fields between versions,
// so decoding extracts known paths instead of strict-unmarshaling.
package events

// CallPhase is the coarse status carried by call-status events.
type CallPhase string

const (
	PhaseRinging    CallPhase = "ringing"
	PhaseInProgress CallPhase = "in-progress"
	PhaseEnded      CallPhase = "ended"
)

// CallStatusEvent is a live status update for a call.
type CallStatusEvent struct {
	CallID          string
	PhoneNumber     string
	Phase           CallPhase
	EndReason       string
	DurationSeconds int
}

// EndOfCallEvent is the platform's final report for a call.
type EndOfCallEvent struct {
	CallID       string
	EndedReason  string
	Transcript   string
	Summary      string
	MessageCount int
}

// QualificationEvent is the external qualification service's verdict.
type QualificationEvent struct {
	CallID string
	UserID string
	Result string
	Score  int
	Reason string
}

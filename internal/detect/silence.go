package detect

import (
	"sync"
	"time"
)

// SilenceTracker remembers, per call, when speech was last heard. Entries
// must be removed with Forget when the call ends or the map grows without
// bound.
type SilenceTracker struct {
	mu         sync.Mutex
	lastSpeech map[string]time.Time
}

// NewSilenceTracker creates an empty tracker.
func NewSilenceTracker() *SilenceTracker {
	return &SilenceTracker{lastSpeech: make(map[string]time.Time)}
}

// Speech records a speech event for the call, resetting its silence window.
func (t *SilenceTracker) Speech(callID string, at time.Time) {
	t.mu.Lock()
	t.lastSpeech[callID] = at
	t.mu.Unlock()
}

// SilentFor returns the gap since the call's last speech event. Returns
// zero and false when the call has never produced speech.
func (t *SilenceTracker) SilentFor(callID string, now time.Time) (time.Duration, bool) {
	t.mu.Lock()
	last, ok := t.lastSpeech[callID]
	t.mu.Unlock()
	if !ok {
		return 0, false
	}
	gap := now.Sub(last)
	if gap < 0 {
		gap = 0
	}
	return gap, true
}

// Forget drops the call's tracking entry. Safe to call for unknown calls.
func (t *SilenceTracker) Forget(callID string) {
	t.mu.Lock()
	delete(t.lastSpeech, callID)
	t.mu.Unlock()
}

// Tracked returns the number of calls currently tracked.
func (t *SilenceTracker) Tracked() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.lastSpeech)
}

// Package detect classifies raw call signals into a call status. Detection
// is pure: the only state lives in SilenceTracker, which callers must feed
// and discard explicitly.
package detect

import (
	"strings"
	"sync"
	"time"

	"github.com/fyrsmithlabs/dialerd/internal/config"
	"github.com/fyrsmithlabs/dialerd/internal/session"
)

// Signals is everything the detector may consider for one classification.
// Zero values mean "signal absent".
type Signals struct {
	// EndReason is the machine-reported reason string, when the platform
	// supplied one. Takes priority over every heuristic.
	EndReason string

	// Transcript is the accumulated free-text transcript, possibly empty.
	Transcript string

	// Connected reports whether the call was ever answered.
	Connected bool

	// RingDuration is how long the call has been ringing without pickup.
	RingDuration time.Duration

	// SilentFor is the gap since the last speech event, as reported by a
	// SilenceTracker. Zero when unknown.
	SilentFor time.Duration
}

// Detector classifies call signals into a status.
type Detector interface {
	Detect(sig Signals) session.CallStatus
}

// endReasonTable maps machine end-reason substrings to a status. Checked in
// order so more specific entries come first.
var endReasonTable = []struct {
	substr string
	status session.CallStatus
}{
	{"voicemail", session.StatusVoicemail},
	{"did-not-answer", session.StatusNoAnswer},
	{"no-answer", session.StatusNoAnswer},
	{"disconnect", session.StatusDisconnected},
	{"websocket", session.StatusDisconnected},
	{"busy", session.StatusBusy},
}

var defaultVoicemailKeywords = []string{
	"leave a message",
	"leave your message",
	"mailbox",
	"after the tone",
	"after the beep",
	"voice mail",
	"not available right now",
	"record your message",
}

var defaultIVRKeywords = []string{
	"press 1",
	"press one",
	"main menu",
	"para español",
	"your call is important",
	"please hold",
	"enter your",
}

var defaultTonePhrases = []string{
	"beep",
	"tone",
	"[noise]",
}

// KeywordDetector is the default Detector. Keyword lists and timing
// thresholds are swappable at runtime for config hot-reload.
type KeywordDetector struct {
	mu          sync.RWMutex
	voicemail   []string
	ivr         []string
	tonePhrases []string
	ringTimeout time.Duration
	silenceGap  time.Duration
}

// NewKeywordDetector builds a detector from configuration, substituting
// built-in lists and thresholds for anything unset.
func NewKeywordDetector(cfg config.DetectConfig) *KeywordDetector {
	d := &KeywordDetector{}
	d.Reload(cfg)
	return d
}

// Reload swaps in new keyword lists and thresholds. Safe to call while
// detections are in flight.
func (d *KeywordDetector) Reload(cfg config.DetectConfig) {
	voicemail := lowered(cfg.VoicemailKeywords, defaultVoicemailKeywords)
	ivr := lowered(cfg.IVRKeywords, defaultIVRKeywords)
	tones := lowered(cfg.TonePhrases, defaultTonePhrases)

	ringTimeout := cfg.RingTimeout.Duration()
	if ringTimeout <= 0 {
		ringTimeout = 30 * time.Second
	}
	silenceGap := cfg.SilenceGap.Duration()
	if silenceGap <= 0 {
		silenceGap = 6 * time.Second
	}

	d.mu.Lock()
	d.voicemail = voicemail
	d.ivr = ivr
	d.tonePhrases = tones
	d.ringTimeout = ringTimeout
	d.silenceGap = silenceGap
	d.mu.Unlock()
}

// SilenceGap returns the configured dead-air threshold.
func (d *KeywordDetector) SilenceGap() time.Duration {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.silenceGap
}

// Detect applies the classification rules in priority order; the first rule
// that matches wins.
func (d *KeywordDetector) Detect(sig Signals) session.CallStatus {
	d.mu.RLock()
	defer d.mu.RUnlock()

	// A structured end reason is authoritative: map it and stop, even when
	// no table entry matches.
	if sig.EndReason != "" {
		reason := strings.ToLower(sig.EndReason)
		for _, e := range endReasonTable {
			if strings.Contains(reason, e.substr) {
				return e.status
			}
		}
		return session.StatusUnknown
	}

	transcript := strings.ToLower(sig.Transcript)

	if sig.Connected {
		if containsAny(transcript, d.voicemail) {
			return session.StatusVoicemail
		}
		if containsAny(transcript, d.ivr) {
			return session.StatusIVR
		}
		if d.looksLikeFax(transcript) {
			return session.StatusFaxTone
		}
	}

	if !sig.Connected && sig.RingDuration >= d.ringTimeout {
		return session.StatusNoAnswer
	}

	if sig.SilentFor >= d.silenceGap && sig.SilentFor > 0 {
		return session.StatusDeadAir
	}

	if sig.Connected && transcript != "" {
		return session.StatusLivePerson
	}
	return session.StatusUnknown
}

// looksLikeFax holds for an answered call that produced no usable speech:
// an empty transcript, a long run of non-alphabetic noise, or literal
// tone/beep markers.
func (d *KeywordDetector) looksLikeFax(transcript string) bool {
	if strings.TrimSpace(transcript) == "" {
		return true
	}
	if containsAny(transcript, d.tonePhrases) {
		return true
	}
	run := 0
	for _, r := range transcript {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') {
			run = 0
			continue
		}
		run++
		if run >= 12 {
			return true
		}
	}
	return false
}

func containsAny(s string, keywords []string) bool {
	if s == "" {
		return false
	}
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}

func lowered(configured, fallback []string) []string {
	src := configured
	if len(src) == 0 {
		src = fallback
	}
	out := make([]string, len(src))
	for i, s := range src {
		out[i] = strings.ToLower(s)
	}
	return out
}

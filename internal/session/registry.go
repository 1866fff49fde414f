package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/dialerd/internal/logging"
)

var (
	// ErrNotFound is returned for lookups on an unknown call id. Session
	// absence is a legitimate terminal condition, not a fatal error.
	ErrNotFound = errors.New("session not found")

	// ErrSessionExists is returned when a session already exists for a call id.
	ErrSessionExists = errors.New("session already exists")

	// ErrMaxRetriesExceeded is returned when the per-session validation
	// retry budget is spent.
	ErrMaxRetriesExceeded = errors.New("max validation retries exceeded")
)

// Registry owns all active call sessions and the extension pool.
type Registry struct {
	pool       *Pool
	hours      Hours
	maxRetries int
	logger     *logging.Logger
	metrics    *Metrics

	// now is swapped in tests.
	now func() time.Time

	mu       sync.RWMutex
	sessions map[string]*CallSession
}

// RegistryOption customizes a Registry.
type RegistryOption func(*Registry)

// WithRegistryMetrics attaches registry metrics.
func WithRegistryMetrics(m *Metrics) RegistryOption {
	return func(r *Registry) { r.metrics = m }
}

// withClock replaces the wall clock. Test hook.
func withClock(now func() time.Time) RegistryOption {
	return func(r *Registry) { r.now = now }
}

// NewRegistry creates a registry with the given pool, schedule, and
// per-session validation retry limit.
func NewRegistry(pool *Pool, hours Hours, maxRetries int, logger *logging.Logger, opts ...RegistryOption) *Registry {
	if logger == nil {
		logger = logging.Nop()
	}
	r := &Registry{
		pool:       pool,
		hours:      hours,
		maxRetries: maxRetries,
		logger:     logger.Named("registry"),
		now:        time.Now,
		sessions:   make(map[string]*CallSession),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// CreateSession leases an extension, computes the business-hours flag once,
// and inserts a new session in PRE_CONNECT. Returns ErrPoolExhausted when
// no extension is free and ErrSessionExists for duplicate call ids.
func (r *Registry) CreateSession(ctx context.Context, callID, phoneNumber string) (CallSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sessions[callID]; exists {
		return CallSession{}, ErrSessionExists
	}

	ext, err := r.pool.Lease()
	if err != nil {
		r.logger.Warn(ctx, "rejecting session, no extension available",
			zap.String("call_id", callID),
		)
		return CallSession{}, err
	}

	now := r.now()
	s := &CallSession{
		CallID:              callID,
		PhoneNumber:         phoneNumber,
		State:               StatePreConnect,
		Status:              StatusUnknown,
		AgentExtension:      ext,
		StartTime:           now,
		MaxRetries:          r.maxRetries,
		WithinBusinessHours: r.hours.Within(now),
		Metadata:            make(map[string]string),
	}
	r.sessions[callID] = s

	r.logger.Info(ctx, "session created",
		zap.String("call_id", callID),
		logging.Phone("phone_number", phoneNumber),
		zap.String("extension", ext),
		zap.Bool("within_business_hours", s.WithinBusinessHours),
	)
	if r.metrics != nil {
		r.metrics.recordSessionStart(ctx, r.pool.Available())
	}
	return s.snapshot(), nil
}

// Get returns a snapshot of the session, or ErrNotFound.
func (r *Registry) Get(callID string) (CallSession, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[callID]
	if !ok {
		return CallSession{}, ErrNotFound
	}
	return s.snapshot(), nil
}

// UpdateState sets the lifecycle state.
func (r *Registry) UpdateState(callID string, state State) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[callID]
	if !ok {
		return ErrNotFound
	}
	s.State = state
	return nil
}

// UpdateStatus sets the detected call status. A status observation implies
// the call is connected, so the state is forced to CONNECTED as well.
func (r *Registry) UpdateStatus(callID string, status CallStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[callID]
	if !ok {
		return ErrNotFound
	}
	s.Status = status
	s.State = StateConnected
	return nil
}

// IncrementRetryAttempt bumps the validation retry counter and reports
// whether another attempt is still permitted. Once the budget is spent it
// refuses to increment further and returns ErrMaxRetriesExceeded.
func (r *Registry) IncrementRetryAttempt(callID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[callID]
	if !ok {
		return false, ErrNotFound
	}
	if s.RetryAttempts >= s.MaxRetries {
		return false, ErrMaxRetriesExceeded
	}
	s.RetryAttempts++
	return s.RetryAttempts < s.MaxRetries, nil
}

// HasExceededMaxRetries reports whether the validation retry budget is spent.
func (r *Registry) HasExceededMaxRetries(callID string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[callID]
	if !ok {
		return false, ErrNotFound
	}
	return s.RetryAttempts >= s.MaxRetries, nil
}

// MarkValidated flags the session's eligibility data as validated.
// Idempotent.
func (r *Registry) MarkValidated(callID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[callID]
	if !ok {
		return ErrNotFound
	}
	s.Validated = true
	return nil
}

// SetQualification records the external qualification verdict.
func (r *Registry) SetQualification(callID string, q Qualification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[callID]
	if !ok {
		return ErrNotFound
	}
	s.Qualification = &q
	return nil
}

// MarkDispositionSent flips the write-once disposition flag. This is the
// single authorized place the flag changes. Returns false without mutating
// anything if a disposition was already sent.
func (r *Registry) MarkDispositionSent(callID, code, dispositionID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[callID]
	if !ok {
		return false, ErrNotFound
	}
	if s.DispositionSent {
		return false, nil
	}
	s.DispositionSent = true
	s.DispositionCode = code
	s.DispositionID = dispositionID
	return true, nil
}

// MarkCallbackScheduled flips the callback flag. Returns false without
// mutating anything if a callback was already scheduled.
func (r *Registry) MarkCallbackScheduled(callID string, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[callID]
	if !ok {
		return false, ErrNotFound
	}
	if s.CallbackScheduled {
		return false, nil
	}
	s.CallbackScheduled = true
	s.CallbackTime = at
	return true, nil
}

// SetMetadata stores an open key/value pair on the session.
func (r *Registry) SetMetadata(callID, key, value string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[callID]
	if !ok {
		return ErrNotFound
	}
	s.Metadata[key] = value
	return nil
}

// EndSession records the end time, releases the leased extension, removes
// the session, and returns a final snapshot for audit logging. Ending an
// unknown call id is a no-op.
func (r *Registry) EndSession(ctx context.Context, callID string) (CallSession, bool) {
	r.mu.Lock()
	s, ok := r.sessions[callID]
	if !ok {
		r.mu.Unlock()
		return CallSession{}, false
	}
	s.EndTime = r.now()
	s.State = StateCompleted
	r.pool.Release(s.AgentExtension)
	delete(r.sessions, callID)
	snap := s.snapshot()
	r.mu.Unlock()

	r.logger.Info(ctx, "session ended",
		zap.String("call_id", callID),
		zap.String("extension", snap.AgentExtension),
		zap.String("status", string(snap.Status)),
		zap.Duration("duration", snap.EndTime.Sub(snap.StartTime)),
		zap.Bool("disposition_sent", snap.DispositionSent),
	)
	if r.metrics != nil {
		r.metrics.recordSessionEnd(ctx, r.pool.Available())
	}
	return snap, true
}

// ActiveCount returns the number of active sessions.
func (r *Registry) ActiveCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Sessions returns snapshots of all active sessions.
func (r *Registry) Sessions() []CallSession {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]CallSession, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s.snapshot())
	}
	return out
}

// InState returns snapshots of sessions in the given lifecycle state.
func (r *Registry) InState(state State) []CallSession {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []CallSession
	for _, s := range r.sessions {
		if s.State == state {
			out = append(out, s.snapshot())
		}
	}
	return out
}

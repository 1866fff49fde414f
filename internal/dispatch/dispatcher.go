// Package dispatch is the single authorized path from a terminal call
// outcome to a disposition delivered to the dialer system. It guarantees
// at-most-one delivery per call.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/dialerd/internal/audit"
	"github.com/fyrsmithlabs/dialerd/internal/config"
	"github.com/fyrsmithlabs/dialerd/internal/detect"
	"github.com/fyrsmithlabs/dialerd/internal/dialer"
	"github.com/fyrsmithlabs/dialerd/internal/faults"
	"github.com/fyrsmithlabs/dialerd/internal/logging"
	"github.com/fyrsmithlabs/dialerd/internal/resilience"
	"github.com/fyrsmithlabs/dialerd/internal/session"
)

// DialerAPI is the slice of the dialer client the dispatcher needs.
type DialerAPI interface {
	SubmitDisposition(ctx context.Context, req dialer.DispositionRequest) (*dialer.DispositionResponse, error)
	ScheduleCallback(ctx context.Context, req dialer.CallbackRequest) (*dialer.CallbackResponse, error)
}

// Result reports what one dispatch call did.
type Result struct {
	// Sent is true when a disposition went out on this call.
	Sent bool
	// Skipped names why nothing was sent, when Sent is false and there was
	// no error.
	Skipped string

	Code          dialer.DispositionCode
	DispositionID string
}

// Dispatcher composes the registry, outcome mapping, resilience executor,
// and audit trail into idempotent disposition delivery.
type Dispatcher struct {
	registry *session.Registry
	client   DialerAPI
	executor *resilience.Executor
	breakers *resilience.Breakers
	audit    audit.Store
	hours    session.Hours
	logger   *logging.Logger

	callbackHour int
	now          func() time.Time

	// inflight serializes dispatch per call so two concurrent callers
	// cannot both pass the dispositionSent or callbackScheduled guards.
	mu       sync.Mutex
	inflight map[string]struct{}
}

// Option customizes a Dispatcher.
type Option func(*Dispatcher)

// withClock replaces the wall clock. Test hook.
func withClock(now func() time.Time) Option {
	return func(d *Dispatcher) { d.now = now }
}

// New creates a dispatcher.
func New(
	registry *session.Registry,
	client DialerAPI,
	executor *resilience.Executor,
	breakers *resilience.Breakers,
	store audit.Store,
	hours session.Hours,
	cfg config.DialerConfig,
	logger *logging.Logger,
	opts ...Option,
) *Dispatcher {
	if logger == nil {
		logger = logging.Nop()
	}
	callbackHour := cfg.CallbackHour
	if callbackHour <= 0 {
		callbackHour = 10
	}
	d := &Dispatcher{
		registry:     registry,
		client:       client,
		executor:     executor,
		breakers:     breakers,
		audit:        store,
		hours:        hours,
		logger:       logger.Named("dispatch"),
		callbackHour: callbackHour,
		now:          time.Now,
		inflight:     make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// DispatchOutcome maps a detected status to its terminal code and delivers
// it. LIVE_PERSON is skipped: a live conversation's disposition must come
// from the qualification verdict.
func (d *Dispatcher) DispatchOutcome(ctx context.Context, callID string, status session.CallStatus) (Result, error) {
	code, ok := detect.DispositionForStatus(status)
	if !ok {
		return Result{Skipped: "awaiting qualification result"}, nil
	}
	return d.deliver(ctx, callID, code, nil)
}

// DispatchQualification records the verdict on the session and delivers the
// matching disposition with score and classification metadata.
func (d *Dispatcher) DispatchQualification(ctx context.Context, callID string, q session.Qualification) (Result, error) {
	if err := d.registry.SetQualification(callID, q); err != nil {
		return Result{}, err
	}
	code := detect.DispositionForQualification(q.Result)
	meta := map[string]string{
		"score":                strconv.Itoa(q.Score),
		"classificationResult": string(q.Result),
	}
	if q.Reason != "" {
		meta["reason"] = q.Reason
	}
	return d.deliver(ctx, callID, code, meta)
}

func (d *Dispatcher) deliver(ctx context.Context, callID string, code dialer.DispositionCode, meta map[string]string) (Result, error) {
	if !d.acquire(callID) {
		return Result{Skipped: "delivery already in flight"}, nil
	}
	defer d.release(callID)

	s, err := d.registry.Get(callID)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return Result{Skipped: "session not found"}, nil
		}
		return Result{}, err
	}
	if s.DispositionSent {
		d.logger.Debug(ctx, "disposition already sent, refusing duplicate",
			zap.String("call_id", callID),
			zap.String("code", s.DispositionCode),
		)
		return Result{Skipped: "disposition already sent", Code: dialer.DispositionCode(s.DispositionCode), DispositionID: s.DispositionID}, nil
	}

	if meta == nil {
		meta = make(map[string]string)
	}
	if s.Validated {
		meta["validated"] = "true"
	}

	req := dialer.DispositionRequest{
		LeadID:              leadID(s),
		PhoneNumber:         s.PhoneNumber,
		DispositionCode:     code,
		AgentID:             s.AgentExtension,
		CallDurationSeconds: int(s.Duration(d.now()).Seconds()),
		Metadata:            meta,
	}

	var resp *dialer.DispositionResponse
	err = d.breakers.For("dialer").Do(ctx, func(ctx context.Context) error {
		return d.executor.Do(ctx, config.CategoryDialer, func(ctx context.Context) error {
			var submitErr error
			resp, submitErr = d.client.SubmitDisposition(ctx, req)
			return submitErr
		})
	})
	if err != nil {
		d.recordFailure(ctx, s, code, err)
		return Result{}, err
	}

	first, err := d.registry.MarkDispositionSent(callID, string(code), resp.DispositionID)
	if err != nil && !errors.Is(err, session.ErrNotFound) {
		return Result{}, err
	}
	if !first && err == nil {
		// Should be unreachable given the in-flight guard; worth knowing if
		// it ever happens.
		d.logger.Warn(ctx, "disposition flag already set after delivery",
			zap.String("call_id", callID),
		)
	}

	d.audit.Record(ctx, audit.Event{
		Type:            audit.EventDispositionSent,
		CallID:          callID,
		PhoneNumber:     logging.MaskPhone(s.PhoneNumber),
		DispositionCode: string(code),
		DispositionID:   resp.DispositionID,
		Metadata:        meta,
	})
	return Result{Sent: true, Code: code, DispositionID: resp.DispositionID}, nil
}

// ScheduleCallback schedules a callback for the lead, defaulting to the
// next business day at the configured hour. Idempotent per call.
func (d *Dispatcher) ScheduleCallback(ctx context.Context, callID string, at time.Time, reason string) (Result, error) {
	if !d.acquire(callID) {
		return Result{Skipped: "dispatch already in flight"}, nil
	}
	defer d.release(callID)

	s, err := d.registry.Get(callID)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return Result{Skipped: "session not found"}, nil
		}
		return Result{}, err
	}
	if s.CallbackScheduled {
		return Result{Skipped: "callback already scheduled"}, nil
	}

	if at.IsZero() {
		at = d.hours.NextOpen(d.now(), d.callbackHour)
	}

	req := dialer.CallbackRequest{
		LeadID:           leadID(s),
		PhoneNumber:      s.PhoneNumber,
		CallbackDateTime: at,
		AgentID:          s.AgentExtension,
		Reason:           reason,
	}

	var resp *dialer.CallbackResponse
	err = d.breakers.For("dialer").Do(ctx, func(ctx context.Context) error {
		return d.executor.Do(ctx, config.CategoryDialer, func(ctx context.Context) error {
			var callErr error
			resp, callErr = d.client.ScheduleCallback(ctx, req)
			return callErr
		})
	})
	if err != nil {
		d.recordFailure(ctx, s, "", err)
		return Result{}, err
	}

	if _, err := d.registry.MarkCallbackScheduled(callID, resp.ScheduledFor); err != nil && !errors.Is(err, session.ErrNotFound) {
		return Result{}, err
	}

	d.audit.Record(ctx, audit.Event{
		Type:        audit.EventCallbackScheduled,
		CallID:      callID,
		PhoneNumber: logging.MaskPhone(s.PhoneNumber),
		CallbackID:  resp.CallbackID,
		Metadata:    map[string]string{"scheduled_for": resp.ScheduledFor.Format(time.RFC3339)},
	})
	return Result{Sent: true}, nil
}

// recordFailure persists a terminal failure for audit before the error is
// returned to the caller. Circuit-open rejections are logged at critical
// severity since they indicate a sustained outage.
func (d *Dispatcher) recordFailure(ctx context.Context, s session.CallSession, code dialer.DispositionCode, err error) {
	evType := audit.EventTerminalFailure
	severity := faults.SeverityOf(err)
	if errors.Is(err, resilience.ErrCircuitOpen) {
		// A rejected call means a sustained outage, not a transient blip.
		evType = audit.EventCircuitOpenRejected
		severity = faults.SeverityCritical
		d.logger.Error(ctx, "delivery rejected, dialer circuit open",
			zap.String("call_id", s.CallID),
			zap.String("severity", string(faults.SeverityCritical)),
		)
	}
	d.audit.Record(ctx, audit.Event{
		Type:            evType,
		CallID:          s.CallID,
		PhoneNumber:     logging.MaskPhone(s.PhoneNumber),
		DispositionCode: string(code),
		Error:           err.Error(),
		Kind:            faults.KindOf(err),
		Severity:        severity,
	})
}

func (d *Dispatcher) acquire(callID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, busy := d.inflight[callID]; busy {
		return false
	}
	d.inflight[callID] = struct{}{}
	return true
}

func (d *Dispatcher) release(callID string) {
	d.mu.Lock()
	delete(d.inflight, callID)
	d.mu.Unlock()
}

// leadID prefers an explicit lead id from session metadata, falling back to
// the call id so the dialer can still correlate the record.
func leadID(s session.CallSession) string {
	if id, ok := s.Metadata["lead_id"]; ok && id != "" {
		return id
	}
	return s.CallID
}

var _ DialerAPI = (*dialer.Client)(nil)

// String implements fmt.Stringer for logging dispatch results.
func (r Result) String() string {
	if r.Sent {
		return fmt.Sprintf("sent %s (%s)", r.Code, r.DispositionID)
	}
	if r.Skipped != "" {
		return "skipped: " + r.Skipped
	}
	return "not sent"
}

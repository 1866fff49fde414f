package httpapi

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/dialerd/internal/audit"
	"github.com/fyrsmithlabs/dialerd/internal/detect"
	"github.com/fyrsmithlabs/dialerd/internal/events"
	"github.com/fyrsmithlabs/dialerd/internal/faults"
	"github.com/fyrsmithlabs/dialerd/internal/logging"
	"github.com/fyrsmithlabs/dialerd/internal/session"
)

const maxWebhookBody = 1 << 20

// ackResponse acknowledges webhook receipt. Internal processing problems
// surface in Note, never as an error status toward the platform.
type ackResponse struct {
	Received bool   `json:"received"`
	Note     string `json:"note,omitempty"`
}

// errorResponse is the typed failure body for undecodable requests.
type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

// healthResponse is the JSON response for GET /health.
type healthResponse struct {
	Status         string `json:"status"`
	Service        string `json:"service"`
	ActiveSessions int    `json:"active_sessions"`
}

func readBody(c echo.Context) ([]byte, error) {
	return io.ReadAll(io.LimitReader(c.Request().Body, maxWebhookBody))
}

func badRequest(c echo.Context, err error) error {
	return c.JSON(http.StatusBadRequest, errorResponse{
		Error: err.Error(),
		Kind:  string(faults.KindOf(err)),
	})
}

func (s *Server) handleCallStatus(c echo.Context) error {
	body, err := readBody(c)
	if err != nil {
		return badRequest(c, err)
	}
	ev, err := events.DecodeCallStatus(body)
	if err != nil {
		return badRequest(c, err)
	}

	ctx := logging.WithCallID(c.Request().Context(), ev.CallID)

	switch ev.Phase {
	case events.PhaseRinging:
		_, err := s.registry.CreateSession(ctx, ev.CallID, ev.PhoneNumber)
		switch {
		case errors.Is(err, session.ErrSessionExists):
			// Platforms re-deliver status events; an existing session is fine.
		case errors.Is(err, session.ErrPoolExhausted):
			s.logger.Warn(ctx, "call rejected, extension pool exhausted",
				zap.String("call_id", ev.CallID),
			)
			return c.JSON(http.StatusOK, ackResponse{Received: true, Note: "pool exhausted"})
		case err != nil:
			s.logger.Error(ctx, "failed to create session", zap.Error(err))
			return c.JSON(http.StatusOK, ackResponse{Received: true, Note: "session create failed"})
		default:
			s.audit.Record(ctx, audit.Event{
				Type:        audit.EventSessionStarted,
				CallID:      ev.CallID,
				PhoneNumber: logging.MaskPhone(ev.PhoneNumber),
			})
		}

	case events.PhaseInProgress:
		if err := s.registry.UpdateState(ev.CallID, session.StateInProgress); err != nil {
			s.logger.Debug(ctx, "status event for unknown session",
				zap.String("call_id", ev.CallID),
			)
		}
		// A live status update counts as call activity for silence tracking.
		s.silence.Speech(ev.CallID, time.Now())

	case events.PhaseEnded:
		s.processEnd(ctx, ev.CallID, detect.Signals{
			EndReason: ev.EndReason,
			Connected: ev.DurationSeconds > 0,
		})

	default:
		s.logger.Debug(ctx, "ignoring unknown call phase",
			zap.String("phase", string(ev.Phase)),
		)
	}

	return c.JSON(http.StatusOK, ackResponse{Received: true})
}

func (s *Server) handleEndOfCall(c echo.Context) error {
	body, err := readBody(c)
	if err != nil {
		return badRequest(c, err)
	}
	ev, err := events.DecodeEndOfCall(body)
	if err != nil {
		return badRequest(c, err)
	}

	ctx := logging.WithCallID(c.Request().Context(), ev.CallID)
	s.processEnd(ctx, ev.CallID, detect.Signals{
		EndReason:  ev.EndedReason,
		Transcript: ev.Transcript,
		Connected:  true,
	})
	return c.JSON(http.StatusOK, ackResponse{Received: true})
}

func (s *Server) handleQualification(c echo.Context) error {
	body, err := readBody(c)
	if err != nil {
		return badRequest(c, err)
	}
	ev, err := events.DecodeQualification(body)
	if err != nil {
		return badRequest(c, err)
	}

	var result session.QualificationResult
	switch ev.Result {
	case string(session.Qualified):
		result = session.Qualified
	case string(session.NotQualified):
		result = session.NotQualified
	default:
		return badRequest(c, faults.New(faults.KindValidation, faults.SourceCRM,
			"httpapi.qualification", errors.New("unknown qualification result "+ev.Result)))
	}

	callID := ev.CallID
	ctx := logging.WithCallID(c.Request().Context(), callID)

	res, err := s.dispatcher.DispatchQualification(ctx, callID, session.Qualification{
		Result: result,
		Score:  ev.Score,
		Reason: ev.Reason,
	})
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return c.JSON(http.StatusOK, ackResponse{Received: true, Note: "session not found"})
		}
		// Terminal delivery failure: audited by the dispatcher, and the
		// session still ends so its extension returns to the pool.
		s.logger.Error(ctx, "qualification dispatch failed", zap.Error(err))
	}
	s.finishSession(ctx, callID)

	note := res.Skipped
	return c.JSON(http.StatusOK, ackResponse{Received: true, Note: note})
}

// processEnd runs detection and dispatch for a finished call. When the
// outcome is a live person the session stays open in COMPLETING until the
// qualification verdict arrives; every other outcome ends it now.
func (s *Server) processEnd(ctx context.Context, callID string, sig detect.Signals) {
	snap, err := s.registry.Get(callID)
	if err != nil {
		s.logger.Debug(ctx, "end event for unknown session",
			zap.String("call_id", callID),
		)
		s.silence.Forget(callID)
		return
	}

	now := time.Now()
	if !sig.Connected {
		// An unanswered call was ringing from session creation until now.
		sig.RingDuration = now.Sub(snap.StartTime)
	}
	if gap, ok := s.silence.SilentFor(callID, now); ok {
		sig.SilentFor = gap
	}

	status := s.detector.Detect(sig)
	if err := s.registry.UpdateStatus(callID, status); err != nil {
		s.logger.Debug(ctx, "session vanished before status update",
			zap.String("call_id", callID),
		)
		s.silence.Forget(callID)
		return
	}

	res, err := s.dispatcher.DispatchOutcome(ctx, callID, status)
	if err != nil {
		s.logger.Error(ctx, "disposition dispatch failed",
			zap.String("status", string(status)),
			zap.Error(err),
		)
		s.finishSession(ctx, callID)
		return
	}

	if !res.Sent && res.Skipped == "awaiting qualification result" {
		if err := s.registry.UpdateState(callID, session.StateCompleting); err != nil {
			s.logger.Debug(ctx, "session vanished before completing", zap.Error(err))
		}
		s.silence.Forget(callID)
		return
	}

	s.finishSession(ctx, callID)
}

func (s *Server) finishSession(ctx context.Context, callID string) {
	s.silence.Forget(callID)
	snap, ok := s.registry.EndSession(ctx, callID)
	if !ok {
		s.logger.Debug(ctx, "end requested for unknown session",
			zap.String("call_id", callID),
		)
		return
	}
	s.audit.Record(ctx, audit.Event{
		Type:        audit.EventSessionEnded,
		CallID:      callID,
		PhoneNumber: logging.MaskPhone(snap.PhoneNumber),
		Metadata: map[string]string{
			"state":            string(snap.State),
			"status":           string(snap.Status),
			"disposition_sent": strconv.FormatBool(snap.DispositionSent),
		},
	})
}

// callbackRequest is the operator-facing body for scheduling a callback.
// An omitted time defaults to the next business day at the configured hour.
type callbackRequest struct {
	CallbackDateTime time.Time `json:"callbackDateTime"`
	Reason           string    `json:"reason"`
}

type callbackResponse struct {
	Scheduled bool   `json:"scheduled"`
	Note      string `json:"note,omitempty"`
}

// handleScheduleCallback is an operator endpoint, not a webhook: delivery
// failures surface as error statuses so the caller knows to retry.
func (s *Server) handleScheduleCallback(c echo.Context) error {
	var req callbackRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, faults.New(faults.KindValidation, faults.SourceDialer,
			"httpapi.schedule_callback", err))
	}

	callID := c.Param("id")
	ctx := logging.WithCallID(c.Request().Context(), callID)

	res, err := s.dispatcher.ScheduleCallback(ctx, callID, req.CallbackDateTime, req.Reason)
	if err != nil {
		s.logger.Error(ctx, "callback scheduling failed", zap.Error(err))
		return c.JSON(http.StatusBadGateway, errorResponse{
			Error: "callback scheduling failed",
			Kind:  string(faults.KindOf(err)),
		})
	}
	if res.Skipped == "session not found" {
		return c.JSON(http.StatusNotFound, errorResponse{
			Error: "session not found",
			Kind:  string(faults.KindBusinessLogic),
		})
	}
	return c.JSON(http.StatusOK, callbackResponse{Scheduled: res.Sent, Note: res.Skipped})
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, healthResponse{
		Status:         "ok",
		Service:        "dialerd",
		ActiveSessions: s.registry.ActiveCount(),
	})
}

func (s *Server) handleSessions(c echo.Context) error {
	return c.JSON(http.StatusOK, s.registry.Sessions())
}

func (s *Server) handleSession(c echo.Context) error {
	snap, err := s.registry.Get(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusNotFound, errorResponse{
			Error: "session not found",
			Kind:  string(faults.KindBusinessLogic),
		})
	}
	return c.JSON(http.StatusOK, snap)
}

package dialer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/dialerd/internal/config"
	"github.com/fyrsmithlabs/dialerd/internal/faults"
	"github.com/fyrsmithlabs/dialerd/internal/logging"
)

// DispositionRequest is the outbound disposition submission payload.
type DispositionRequest struct {
	LeadID              string            `json:"leadId"`
	PhoneNumber         string            `json:"phoneNumber"`
	DispositionCode     DispositionCode   `json:"dispositionCode"`
	AgentID             string            `json:"agentId"`
	CallDurationSeconds int               `json:"callDurationSeconds"`
	Metadata            map[string]string `json:"metadata,omitempty"`
}

// DispositionResponse is the dialer system's acknowledgment.
type DispositionResponse struct {
	DispositionID string    `json:"dispositionId"`
	Timestamp     time.Time `json:"timestamp"`
}

// CallbackRequest schedules a callback for a lead.
type CallbackRequest struct {
	LeadID           string    `json:"leadId"`
	PhoneNumber      string    `json:"phoneNumber"`
	CallbackDateTime time.Time `json:"callbackDateTime"`
	AgentID          string    `json:"agentId"`
	Reason           string    `json:"reason"`
	Notes            string    `json:"notes,omitempty"`
}

// CallbackResponse is the dialer system's callback acknowledgment.
type CallbackResponse struct {
	CallbackID   string    `json:"callbackId"`
	ScheduledFor time.Time `json:"scheduledFor"`
}

// Client talks to the external dialer system over HTTP.
type Client struct {
	baseURL string
	token   config.Secret
	http    *http.Client
	logger  *logging.Logger
}

// NewClient builds a dialer client from configuration.
func NewClient(cfg config.DialerConfig, logger *logging.Logger) *Client {
	if logger == nil {
		logger = logging.Nop()
	}
	timeout := cfg.Timeout.Duration()
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: cfg.BaseURL,
		token:   cfg.APIToken,
		http:    &http.Client{Timeout: timeout},
		logger:  logger.Named("dialer"),
	}
}

// SubmitDisposition posts a terminal disposition for a lead.
func (c *Client) SubmitDisposition(ctx context.Context, req DispositionRequest) (*DispositionResponse, error) {
	const op = "dialer.submit_disposition"
	if !req.DispositionCode.Valid() {
		return nil, faults.New(faults.KindValidation, faults.SourceDialer, op,
			fmt.Errorf("unknown disposition code %q", req.DispositionCode))
	}

	var resp DispositionResponse
	if err := c.post(ctx, op, "/api/dispositions", req, &resp); err != nil {
		return nil, err
	}

	c.logger.Info(ctx, "disposition submitted",
		zap.String("lead_id", req.LeadID),
		logging.Phone("phone_number", req.PhoneNumber),
		zap.String("code", string(req.DispositionCode)),
		zap.String("disposition_id", resp.DispositionID),
	)
	return &resp, nil
}

// ScheduleCallback posts a callback request for a lead.
func (c *Client) ScheduleCallback(ctx context.Context, req CallbackRequest) (*CallbackResponse, error) {
	const op = "dialer.schedule_callback"
	if req.CallbackDateTime.IsZero() {
		return nil, faults.New(faults.KindValidation, faults.SourceDialer, op,
			fmt.Errorf("callback time is required"))
	}

	var resp CallbackResponse
	if err := c.post(ctx, op, "/api/callbacks", req, &resp); err != nil {
		return nil, err
	}

	c.logger.Info(ctx, "callback scheduled",
		zap.String("lead_id", req.LeadID),
		logging.Phone("phone_number", req.PhoneNumber),
		zap.Time("scheduled_for", resp.ScheduledFor),
		zap.String("callback_id", resp.CallbackID),
	)
	return &resp, nil
}

func (c *Client) post(ctx context.Context, op, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return faults.New(faults.KindValidation, faults.SourceDialer, op, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return faults.New(faults.KindValidation, faults.SourceDialer, op, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Request-ID", uuid.NewString())
	if c.token.IsSet() {
		httpReq.Header.Set("Authorization", "Bearer "+c.token.Value())
	}

	httpResp, err := c.http.Do(httpReq)
	if err != nil {
		return faults.New(faults.KindNetwork, faults.SourceDialer, op, err)
	}
	defer httpResp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(httpResp.Body, 1<<20))
	if err != nil {
		return faults.New(faults.KindNetwork, faults.SourceDialer, op, err)
	}

	if err := classifyStatus(op, httpResp.StatusCode, raw); err != nil {
		return err
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return faults.New(faults.KindExternalAPI, faults.SourceDialer, op,
			fmt.Errorf("malformed response: %w", err))
	}
	return nil
}

// classifyStatus turns non-2xx responses into faults. Rate limiting stays
// retryable; other 4xx responses fail fast.
func classifyStatus(op string, status int, body []byte) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusTooManyRequests:
		return faults.New(faults.KindExternalAPI, faults.SourceDialer, op,
			fmt.Errorf("rate limited (429): %s", truncate(body))).AsRetryable()
	case status >= 400 && status < 500:
		return faults.New(faults.KindValidation, faults.SourceDialer, op,
			fmt.Errorf("rejected (%d): %s", status, truncate(body)))
	default:
		return faults.New(faults.KindExternalAPI, faults.SourceDialer, op,
			fmt.Errorf("server error (%d): %s", status, truncate(body)))
	}
}

func truncate(body []byte) string {
	const max = 256
	if len(body) > max {
		return string(body[:max]) + "..."
	}
	return string(body)
}

package dialer

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/dialerd/internal/config"
	"github.com/fyrsmithlabs/dialerd/internal/faults"
	"github.com/fyrsmithlabs/dialerd/internal/logging"
)

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client := NewClient(config.DialerConfig{
		BaseURL:  srv.URL,
		APIToken: config.Secret("test-token"),
		Timeout:  config.Duration(2 * time.Second),
	}, logging.NewTestLogger().Logger)
	return client, srv
}

func TestSubmitDisposition(t *testing.T) {
	var got DispositionRequest
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/dispositions", r.URL.Path)
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		assert.NotEmpty(t, r.Header.Get("X-Request-ID"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		json.NewEncoder(w).Encode(DispositionResponse{
			DispositionID: "disp-42",
			Timestamp:     time.Now().UTC(),
		})
	}))

	resp, err := client.SubmitDisposition(context.Background(), DispositionRequest{
		LeadID:              "lead-1",
		PhoneNumber:         "+15551234567",
		DispositionCode:     DispositionAnsweringMachine,
		AgentID:             "101",
		CallDurationSeconds: 45,
		Metadata:            map[string]string{"validated": "true"},
	})
	require.NoError(t, err)

	assert.Equal(t, "disp-42", resp.DispositionID)
	assert.Equal(t, DispositionAnsweringMachine, got.DispositionCode)
	assert.Equal(t, 45, got.CallDurationSeconds)
}

func TestSubmitDisposition_InvalidCodeFailsFast(t *testing.T) {
	called := false
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	_, err := client.SubmitDisposition(context.Background(), DispositionRequest{
		LeadID:          "lead-1",
		PhoneNumber:     "+15551234567",
		DispositionCode: "made-up-code",
	})
	require.Error(t, err)
	assert.False(t, called, "invalid code must not reach the wire")
	assert.False(t, faults.Retryable(err))
	assert.Equal(t, faults.KindValidation, faults.KindOf(err))
}

func TestSubmitDisposition_ServerErrorIsRetryable(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream exploded", http.StatusBadGateway)
	}))

	_, err := client.SubmitDisposition(context.Background(), DispositionRequest{
		LeadID:          "lead-1",
		PhoneNumber:     "+15551234567",
		DispositionCode: DispositionNoAnswer,
	})
	require.Error(t, err)
	assert.True(t, faults.Retryable(err))
	assert.Equal(t, faults.KindExternalAPI, faults.KindOf(err))
}

func TestSubmitDisposition_ClientErrorNotRetryable(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unknown lead", http.StatusUnprocessableEntity)
	}))

	_, err := client.SubmitDisposition(context.Background(), DispositionRequest{
		LeadID:          "lead-1",
		PhoneNumber:     "+15551234567",
		DispositionCode: DispositionBusy,
	})
	require.Error(t, err)
	assert.False(t, faults.Retryable(err))
}

func TestSubmitDisposition_RateLimitedIsRetryable(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "slow down", http.StatusTooManyRequests)
	}))

	_, err := client.SubmitDisposition(context.Background(), DispositionRequest{
		LeadID:          "lead-1",
		PhoneNumber:     "+15551234567",
		DispositionCode: DispositionBusy,
	})
	require.Error(t, err)
	assert.True(t, faults.Retryable(err))
}

func TestScheduleCallback(t *testing.T) {
	scheduledFor := time.Date(2026, 8, 31, 10, 0, 0, 0, time.UTC)
	var got CallbackRequest
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/callbacks", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		json.NewEncoder(w).Encode(CallbackResponse{
			CallbackID:   "cb-7",
			ScheduledFor: scheduledFor,
		})
	}))

	resp, err := client.ScheduleCallback(context.Background(), CallbackRequest{
		LeadID:           "lead-1",
		PhoneNumber:      "+15551234567",
		CallbackDateTime: scheduledFor,
		AgentID:          "101",
		Reason:           "after-hours call",
	})
	require.NoError(t, err)

	assert.Equal(t, "cb-7", resp.CallbackID)
	assert.True(t, resp.ScheduledFor.Equal(scheduledFor))
	assert.True(t, got.CallbackDateTime.Equal(scheduledFor))
}

func TestScheduleCallback_MissingTimeFailsFast(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("request must not reach the wire")
	}))

	_, err := client.ScheduleCallback(context.Background(), CallbackRequest{
		LeadID:      "lead-1",
		PhoneNumber: "+15551234567",
	})
	require.Error(t, err)
	assert.False(t, faults.Retryable(err))
}

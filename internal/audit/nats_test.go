package audit

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/dialerd/internal/faults"
	"github.com/fyrsmithlabs/dialerd/internal/logging"
)

// startTestNATSServer starts an embedded NATS server for testing.
func startTestNATSServer(t *testing.T) *natsserver.Server {
	opts := &natsserver.Options{
		Host:   "127.0.0.1",
		Port:   -1, // Random port
		NoLog:  true,
		NoSigs: true,
	}

	server, err := natsserver.NewServer(opts)
	require.NoError(t, err)

	go server.Start()

	if !server.ReadyForConnections(5 * time.Second) {
		t.Fatal("NATS server not ready")
	}

	t.Cleanup(func() {
		server.Shutdown()
		server.WaitForShutdown()
	})

	return server
}

func TestNATSStore_Record(t *testing.T) {
	server := startTestNATSServer(t)
	nc, err := nats.Connect(server.ClientURL())
	require.NoError(t, err)
	defer nc.Close()

	sub, err := nc.SubscribeSync("dialerd.audit.>")
	require.NoError(t, err)

	store := NewNATSStore(nc, "dialerd.audit", logging.NewTestLogger().Logger)
	store.Record(context.Background(), Event{
		Type:            EventDispositionSent,
		CallID:          "c1",
		PhoneNumber:     "+15551234567",
		DispositionCode: "answering-machine",
		DispositionID:   "disp-1",
	})

	msg, err := sub.NextMsg(2 * time.Second)
	require.NoError(t, err)
	assert.Equal(t, "dialerd.audit.disposition.sent", msg.Subject)

	var got Event
	require.NoError(t, json.Unmarshal(msg.Data, &got))
	assert.Equal(t, EventDispositionSent, got.Type)
	assert.Equal(t, "c1", got.CallID)
	assert.Equal(t, "disp-1", got.DispositionID)
	assert.False(t, got.Timestamp.IsZero(), "timestamp is stamped when unset")
}

func TestNATSStore_TerminalFailureCarriesTaxonomy(t *testing.T) {
	server := startTestNATSServer(t)
	nc, err := nats.Connect(server.ClientURL())
	require.NoError(t, err)
	defer nc.Close()

	sub, err := nc.SubscribeSync("dialerd.audit.failure.>")
	require.NoError(t, err)

	store := NewNATSStore(nc, "dialerd.audit", logging.NewTestLogger().Logger)
	store.Record(context.Background(), Event{
		Type:     EventTerminalFailure,
		CallID:   "c2",
		Error:    "dialer.submit_disposition: server error (502)",
		Kind:     faults.KindExternalAPI,
		Severity: faults.SeverityError,
	})

	msg, err := sub.NextMsg(2 * time.Second)
	require.NoError(t, err)

	var got Event
	require.NoError(t, json.Unmarshal(msg.Data, &got))
	assert.Equal(t, faults.KindExternalAPI, got.Kind)
	assert.Contains(t, got.Error, "server error")
}

func TestMemoryStore(t *testing.T) {
	store := NewMemoryStore()
	store.Record(context.Background(), Event{Type: EventSessionStarted, CallID: "c1"})
	store.Record(context.Background(), Event{Type: EventSessionEnded, CallID: "c1"})
	store.Record(context.Background(), Event{Type: EventSessionStarted, CallID: "c2"})

	assert.Len(t, store.Events(), 3)
	assert.Len(t, store.OfType(EventSessionStarted), 2)
	assert.Len(t, store.OfType(EventTerminalFailure), 0)
}

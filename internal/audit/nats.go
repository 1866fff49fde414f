package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/dialerd/internal/logging"
)

// NATSStore publishes audit events as JSON to per-type subjects under a
// configurable prefix, e.g. "dialerd.audit.disposition.sent". Durability is
// the consumer's concern; the store only publishes.
type NATSStore struct {
	nc     *nats.Conn
	prefix string
	logger *logging.Logger
	now    func() time.Time
}

// NewNATSStore creates a store publishing on the given connection.
func NewNATSStore(nc *nats.Conn, subjectPrefix string, logger *logging.Logger) *NATSStore {
	if logger == nil {
		logger = logging.Nop()
	}
	if subjectPrefix == "" {
		subjectPrefix = "dialerd.audit"
	}
	return &NATSStore{
		nc:     nc,
		prefix: subjectPrefix,
		logger: logger.Named("audit"),
		now:    time.Now,
	}
}

// Record publishes the event. Publish failures are logged and dropped so
// auditing never masks the error being audited.
func (s *NATSStore) Record(ctx context.Context, ev Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = s.now()
	}

	data, err := json.Marshal(ev)
	if err != nil {
		s.logger.Error(ctx, "failed to marshal audit event",
			zap.String("event_type", string(ev.Type)),
			zap.String("call_id", ev.CallID),
			zap.Error(err),
		)
		return
	}

	subject := fmt.Sprintf("%s.%s", s.prefix, ev.Type)
	if err := s.nc.Publish(subject, data); err != nil {
		s.logger.Error(ctx, "failed to publish audit event",
			zap.String("subject", subject),
			zap.String("call_id", ev.CallID),
			zap.Error(err),
		)
	}
}

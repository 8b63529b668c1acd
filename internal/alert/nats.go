package alert

import (
	"context"
	"encoding/json"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/dbtflow/internal/logging"
)

// NATSNotifier publishes a Payload on "{prefix}.{status}".
type NATSNotifier struct {
	nc      *nats.Conn
	subject string
	status  string
	logger  *logging.Logger
}

// NewNATSNotifier returns a notifier publishing alerts of status on nc.
func NewNATSNotifier(nc *nats.Conn, prefix, status string, logger *logging.Logger) *NATSNotifier {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &NATSNotifier{nc: nc, subject: prefix + "." + status, status: status, logger: logger.Named("alert.nats")}
}

// Notify publishes the alert and flushes it to the server.
func (n *NATSNotifier) Notify(ctx context.Context, identifier string) bool {
	data, err := json.Marshal(newPayload(identifier, n.status))
	if err != nil {
		n.logger.Error(ctx, "marshal alert failed", zap.Error(err))
		return false
	}
	if err := n.nc.Publish(n.subject, data); err != nil {
		n.logger.Warn(ctx, "publish alert failed", zap.String("subject", n.subject), zap.Error(err))
		return false
	}
	flushCtx, cancel := context.WithTimeout(ctx, flushTimeout)
	defer cancel()
	if err := n.nc.FlushWithContext(flushCtx); err != nil {
		n.logger.Warn(ctx, "flush alert failed", zap.String("subject", n.subject), zap.Error(err))
		return false
	}
	return true
}

const flushTimeout = 5 * time.Second

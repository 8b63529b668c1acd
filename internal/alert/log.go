package alert

import (
	"context"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/dbtflow/internal/logging"
)

// LogNotifier writes alerts to the log. It never fails.
type LogNotifier struct {
	logger *logging.Logger
	status string
}

// NewLogNotifier returns a notifier logging alerts of status.
func NewLogNotifier(logger *logging.Logger, status string) *LogNotifier {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &LogNotifier{logger: logger.Named("alert.log"), status: status}
}

// Notify logs the alert. Failures are logged at error level.
func (n *LogNotifier) Notify(ctx context.Context, identifier string) bool {
	fields := []zap.Field{zap.String("identifier", identifier), zap.String("status", n.status)}
	if n.status == StatusFailure {
		n.logger.Error(ctx, "dbt pipeline failed", fields...)
	} else {
		n.logger.Info(ctx, "dbt pipeline succeeded", fields...)
	}
	return true
}

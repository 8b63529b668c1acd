package pipeline

import (
	"context"

	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/temporal"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/dbtflow/internal/logging"
)

// Notifier delivers one alert and reports whether it arrived.
type Notifier interface {
	Notify(ctx context.Context, identifier string) bool
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, identifier string) bool

// Notify calls f.
func (f NotifierFunc) Notify(ctx context.Context, identifier string) bool {
	return f(ctx, identifier)
}

// NopNotifier accepts every alert.
type NopNotifier struct{}

// Notify returns true.
func (NopNotifier) Notify(context.Context, string) bool { return true }

// AlertActivities wrap the success and failure notifiers as activities.
type AlertActivities struct {
	success Notifier
	failure Notifier
	logger  *logging.Logger
	metrics *Metrics
}

// NewAlertActivities returns alert activities. Nil notifiers become NopNotifier.
func NewAlertActivities(success, failure Notifier, logger *logging.Logger, metrics *Metrics) *AlertActivities {
	if success == nil {
		success = NopNotifier{}
	}
	if failure == nil {
		failure = NopNotifier{}
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	return &AlertActivities{success: success, failure: failure, logger: logger.Named("alert"), metrics: metrics}
}

// NotifySuccess delivers a success alert.
func (a *AlertActivities) NotifySuccess(ctx context.Context, identifier string) error {
	return a.dispatch(ctx, "success", a.success, identifier)
}

// NotifyFailure delivers a failure alert.
func (a *AlertActivities) NotifyFailure(ctx context.Context, identifier string) error {
	return a.dispatch(ctx, "failure", a.failure, identifier)
}

func (a *AlertActivities) dispatch(ctx context.Context, kind string, n Notifier, identifier string) error {
	delivered := n.Notify(ctx, identifier)
	a.metrics.recordAlert(ctx, kind, delivered)
	if delivered {
		a.logger.Info(ctx, "alert delivered", zap.String("kind", kind), zap.String("identifier", identifier))
		return nil
	}
	a.logger.Warn(ctx, "alert not delivered", zap.String("kind", kind), zap.String("identifier", identifier))
	cause := &NotificationFailedError{Identifier: identifier}
	return temporal.NewApplicationErrorWithCause(cause.Error(), ErrTypeNotificationFailed, cause, identifier)
}

// Register registers alert_success and alert_failure.
func (a *AlertActivities) Register(r ActivityRegistrar) {
	r.RegisterActivityWithOptions(a.NotifySuccess, activity.RegisterOptions{Name: AlertSuccessActivity})
	r.RegisterActivityWithOptions(a.NotifyFailure, activity.RegisterOptions{Name: AlertFailureActivity})
}

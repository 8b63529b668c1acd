// Package alert delivers pipeline alerts. Each notifier implements
// pipeline.Notifier for one status, success or failure, and reports delivery
// as a bool so the alert activity can retry.
package alert

import (
	"context"
	"time"

	"github.com/fyrsmithlabs/dbtflow/internal/pipeline"
)

// Alert statuses.
const (
	StatusSuccess = "success"
	StatusFailure = "failure"
)

// Payload is the JSON body sent by the webhook and NATS notifiers.
type Payload struct {
	Identifier string    `json:"identifier"`
	Status     string    `json:"status"`
	SentAt     time.Time `json:"sent_at"`
}

func newPayload(identifier, status string) Payload {
	return Payload{Identifier: identifier, Status: status, SentAt: time.Now().UTC()}
}

// Multi delivers to every notifier and succeeds only if all of them did.
// Every notifier is attempted even after one fails.
type Multi []pipeline.Notifier

// Notify implements pipeline.Notifier.
func (m Multi) Notify(ctx context.Context, identifier string) bool {
	ok := true
	for _, n := range m {
		if !n.Notify(ctx, identifier) {
			ok = false
		}
	}
	return ok
}

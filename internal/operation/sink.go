package operation

import (
	"context"

	"github.com/fyrsmithlabs/dbtflow/internal/dbt"
)

// Sink receives artifacts captured while writes were prevented. Store reports
// success; failures are signaled only through the return value.
type Sink interface {
	Store(ctx context.Context, identifier string, artifacts map[string]dbt.Artifact) bool
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, identifier string, artifacts map[string]dbt.Artifact) bool

// Store calls f.
func (f SinkFunc) Store(ctx context.Context, identifier string, artifacts map[string]dbt.Artifact) bool {
	return f(ctx, identifier, artifacts)
}

// NopSink discards artifacts and always succeeds.
type NopSink struct{}

// Store returns true.
func (NopSink) Store(context.Context, string, map[string]dbt.Artifact) bool { return true }

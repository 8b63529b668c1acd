package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestTemporalAdapter(t *testing.T) {
	logger := NewTestLogger()
	adapter := NewTemporalAdapter(logger.Logger)

	adapter.Info("Started Worker", "Namespace", "default", "TaskQueue", "dbt-update-operations")
	adapter.Warn("odd pair", "dangling")
	adapter.With("WorkflowID", "wf-1").Error("activity failed", zap.Int("attempt", 3))

	logger.AssertField(t, "Started Worker", "TaskQueue", "dbt-update-operations")
	logger.AssertField(t, "odd pair", "extra", "dangling")
	logger.AssertField(t, "activity failed", "WorkflowID", "wf-1")
	logger.AssertField(t, "activity failed", "attempt", int64(3))
	logger.AssertLogged(t, zapcore.ErrorLevel, "activity failed")

	entries := logger.FilterMessage("Started Worker").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "temporal", entries[0].LoggerName)
}

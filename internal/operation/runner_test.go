package operation

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/fyrsmithlabs/dbtflow/internal/dbt"
	"github.com/fyrsmithlabs/dbtflow/internal/logging"
)

type invocation struct {
	command       []string
	preventWrites bool
}

type fakeInvoker struct {
	result dbt.Result
	calls  []invocation
}

func (f *fakeInvoker) Invoke(_ context.Context, _ dbt.Target, command []string, preventWrites bool) dbt.Result {
	f.calls = append(f.calls, invocation{command: command, preventWrites: preventWrites})
	return f.result
}

type recordingSink struct {
	ok        bool
	ids       []string
	artifacts map[string]dbt.Artifact
}

func (s *recordingSink) Store(_ context.Context, id string, artifacts map[string]dbt.Artifact) bool {
	s.ids = append(s.ids, id)
	s.artifacts = artifacts
	return s.ok
}

var devTarget = dbt.Target{Environment: "dev", ProjectLocation: "./test"}

func successResult() dbt.Result {
	return dbt.Result{
		ExitCode:  dbt.ExitSuccess,
		Log:       "Completed successfully",
		Artifacts: map[string]dbt.Artifact{"manifest": {"nodes": map[string]any{}}},
	}
}

func TestRunner_Execute_CapturesAndStores(t *testing.T) {
	inv := &fakeInvoker{result: successResult()}
	sink := &recordingSink{ok: true}
	r := NewRunner(inv, WithSink(sink), WithPreventWrites(true))

	ok, err := r.Execute(context.Background(), Run, devTarget)

	require.NoError(t, err)
	assert.True(t, ok)
	require.Len(t, inv.calls, 1)
	assert.Equal(t, []string{"run", "--fail-fast"}, inv.calls[0].command)
	assert.True(t, inv.calls[0].preventWrites)
	assert.Equal(t, []string{"dev--run--test"}, sink.ids)
	assert.Contains(t, sink.artifacts, "manifest")
}

func TestRunner_Execute_SinkRejectionReturnsFalse(t *testing.T) {
	inv := &fakeInvoker{result: successResult()}
	r := NewRunner(inv, WithSink(&recordingSink{ok: false}), WithPreventWrites(true))

	ok, err := r.Execute(context.Background(), DocsGenerate, devTarget)

	require.NoError(t, err, "a sink failure is never raised")
	assert.False(t, ok)
}

func TestRunner_Execute_SinkPanicReturnsFalse(t *testing.T) {
	inv := &fakeInvoker{result: successResult()}
	tl := logging.NewTestLogger()
	panicking := SinkFunc(func(context.Context, string, map[string]dbt.Artifact) bool {
		panic("sink raised")
	})
	r := NewRunner(inv, WithSink(panicking), WithPreventWrites(true), WithLogger(tl.Logger))

	var (
		ok  bool
		err error
	)
	require.NotPanics(t, func() {
		ok, err = r.Execute(context.Background(), Run, devTarget)
	})

	require.NoError(t, err)
	assert.False(t, ok)
	tl.AssertLogged(t, zapcore.ErrorLevel, "artifact sink panicked")
}

func TestRunner_Execute_SinkSkipped(t *testing.T) {
	tests := []struct {
		name          string
		op            string
		preventWrites bool
	}{
		{"prevent writes off", Run, false},
		{"operation does not honor prevent writes", Debug, true},
		{"test sources", TestSources, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inv := &fakeInvoker{result: successResult()}
			sink := &recordingSink{ok: false}
			r := NewRunner(inv, WithSink(sink), WithPreventWrites(tt.preventWrites))

			ok, err := r.Execute(context.Background(), tt.op, devTarget)

			require.NoError(t, err)
			assert.True(t, ok)
			assert.Empty(t, sink.ids)
			assert.False(t, inv.calls[0].preventWrites)
		})
	}
}

func TestRunner_Execute_NonZeroExit(t *testing.T) {
	tl := logging.NewTestLogger()
	inv := &fakeInvoker{result: dbt.Result{ExitCode: dbt.ExitModelError, Log: "Could not find profile named 'x'"}}
	r := NewRunner(inv, WithLogger(tl.Logger))

	ok, err := r.Execute(context.Background(), Debug, devTarget)

	assert.False(t, ok)
	var failed *FailedError
	require.True(t, errors.As(err, &failed))
	assert.Equal(t, Debug, failed.Operation)
	assert.Equal(t, "dev--debug--test", failed.Identifier)
	assert.Equal(t, dbt.ExitModelError, failed.ExitCode)
	assert.Contains(t, failed.Log, "Could not find profile")
	assert.Len(t, inv.calls, 1, "the runner never retries")

	tl.AssertLogged(t, zapcore.ErrorLevel, "operation failed")
	tl.AssertField(t, "operation failed", "log", "Could not find profile named 'x'")
}

func TestRunner_Execute_UnknownOperation(t *testing.T) {
	inv := &fakeInvoker{result: successResult()}
	r := NewRunner(inv)

	_, err := r.Execute(context.Background(), "seed", devTarget)

	assert.ErrorIs(t, err, ErrUnknownOperation)
	assert.Empty(t, inv.calls)
}

func TestRunner_Execute_InvalidTarget(t *testing.T) {
	inv := &fakeInvoker{result: successResult()}
	r := NewRunner(inv)

	_, err := r.Execute(context.Background(), Run, dbt.Target{ProjectLocation: "./test"})

	assert.ErrorIs(t, err, dbt.ErrEmptyField)
	assert.Empty(t, inv.calls)
}

func TestRunner_Execute_WithWrapper(t *testing.T) {
	tool := dbt.ToolFunc(func(_ context.Context, inv dbt.Invocation) (bool, error) {
		return true, inv.Files.WriteFile("./test/target/run_results.json", dbt.Artifact{"elapsed_time": 2.0})
	})
	sink := &recordingSink{ok: true}
	r := NewRunner(dbt.NewWrapper(tool, nil), WithSink(sink), WithPreventWrites(true))

	ok, err := r.Execute(context.Background(), Run, devTarget)

	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, dbt.Artifact{"elapsed_time": 2.0}, sink.artifacts["run_results"])
}

func TestNopSink(t *testing.T) {
	assert.True(t, NopSink{}.Store(context.Background(), "id", nil))
}

func TestFailedError(t *testing.T) {
	err := &FailedError{Operation: "run", Identifier: "dev--run--test", ExitCode: 2}
	assert.Equal(t, "operation run failed (dev--run--test): exit code 2", err.Error())
}

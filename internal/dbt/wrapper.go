package dbt

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/dbtflow/internal/logging"
)

// Exit codes reported in Result.ExitCode.
const (
	ExitSuccess    = 0
	ExitModelError = 1
	ExitUnhandled  = 2
)

// Result is the outcome of one invocation.
type Result struct {
	ExitCode int
	// Log is everything the tool printed, unfiltered.
	Log string
	// Artifacts is keyed by file stem. Always empty unless writes were prevented.
	Artifacts map[string]Artifact
}

// Succeeded reports whether the invocation exited with ExitSuccess.
func (r Result) Succeeded() bool {
	return r.ExitCode == ExitSuccess
}

// Wrapper runs a Tool with captured output and optional write interception.
type Wrapper struct {
	tool   Tool
	logger *logging.Logger
}

// NewWrapper returns a Wrapper around tool. logger may be nil.
func NewWrapper(tool Tool, logger *logging.Logger) *Wrapper {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Wrapper{tool: tool, logger: logger.Named("dbt")}
}

// Invoke runs command against target. Every call gets its own output buffer
// and writer; nothing is shared between concurrent invocations.
func (w *Wrapper) Invoke(ctx context.Context, target Target, command []string, preventWrites bool) (result Result) {
	var stdout bytes.Buffer
	memory := NewMemoryWriter()
	var files FileWriter = DiskWriter{}
	if preventWrites {
		files = memory
	}

	inv := Invocation{
		Args:          target.Args(command),
		ProjectDir:    target.ProjectLocation,
		Stdout:        &stdout,
		Files:         files,
		PreventWrites: preventWrites,
	}

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(&stdout, "\nunhandled panic in dbt invocation: %v\n", r)
			result = Result{ExitCode: ExitUnhandled, Log: stdout.String(), Artifacts: map[string]Artifact{}}
		}
		w.observe(ctx, command, result, time.Since(start))
	}()

	succeeded, err := w.tool.Run(ctx, inv)
	switch {
	case err != nil:
		fmt.Fprintf(&stdout, "\nunhandled error in dbt invocation: %v\n", err)
		result.ExitCode = ExitUnhandled
	case succeeded:
		result.ExitCode = ExitSuccess
	default:
		result.ExitCode = ExitModelError
	}

	result.Log = stdout.String()
	result.Artifacts = map[string]Artifact{}
	if preventWrites {
		result.Artifacts = memory.Artifacts()
	}
	return result
}

func (w *Wrapper) observe(ctx context.Context, command []string, result Result, elapsed time.Duration) {
	name := "unknown"
	if len(command) > 0 {
		name = command[0]
	}
	InvocationsTotal.WithLabelValues(name, strconv.Itoa(result.ExitCode)).Inc()
	InvocationDuration.WithLabelValues(name).Observe(elapsed.Seconds())
	ArtifactsCaptured.Add(float64(len(result.Artifacts)))

	w.logger.Debug(ctx, "dbt invocation finished",
		zap.Strings("command", command),
		zap.Int("exit_code", result.ExitCode),
		zap.Int("artifacts", len(result.Artifacts)),
		zap.Duration("duration", elapsed),
	)
	w.logger.Trace(ctx, "dbt output", zap.String("log", result.Log))
}

package dbt

import (
	"context"
	"io"
)

// Invocation is everything a Tool receives for one call.
type Invocation struct {
	// Args is the full argument vector, target flags included.
	Args []string
	// ProjectDir is the dbt project the call runs against.
	ProjectDir string
	// Stdout receives all tool output. It is owned by this call only.
	Stdout io.Writer
	// Files receives every artifact the tool produces.
	Files FileWriter
	// PreventWrites is set when Files is an in-memory writer and the tool must
	// not write artifacts anywhere else.
	PreventWrites bool
}

// Tool runs the external build tool. It returns false with a nil error when the
// tool reports a model or run failure, and an error for anything unexpected.
type Tool interface {
	Run(ctx context.Context, inv Invocation) (bool, error)
}

// ToolFunc adapts a function to Tool.
type ToolFunc func(ctx context.Context, inv Invocation) (bool, error)

// Run calls f.
func (f ToolFunc) Run(ctx context.Context, inv Invocation) (bool, error) {
	return f(ctx, inv)
}

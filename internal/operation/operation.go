// Package operation maps logical dbt operations onto wrapper invocations.
package operation

import (
	"errors"
	"fmt"
	"slices"

	"github.com/fyrsmithlabs/dbtflow/internal/dbt"
)

// Operation names.
const (
	Run          = "run"
	DocsGenerate = "docs-generate"
	Debug        = "debug"
	Clean        = "clean"
	Deps         = "deps"
	Test         = "test"
	TestSources  = "test-sources"
)

// ErrUnknownOperation is returned for names outside the operation table.
var ErrUnknownOperation = errors.New("unknown operation")

// Spec describes one operation.
type Spec struct {
	Name string
	// Command is passed to dbt before the target flags.
	Command []string
	// HonorsPreventWrites marks operations whose artifacts are captured in
	// memory and handed to the sink instead of written to the project.
	HonorsPreventWrites bool
	// Activity is the name the operation is registered under on the worker.
	Activity string
}

var specs = []Spec{
	{Name: Run, Command: []string{"run", "--fail-fast"}, HonorsPreventWrites: true, Activity: "dbt_run"},
	{Name: DocsGenerate, Command: []string{"docs", "generate"}, HonorsPreventWrites: true, Activity: "dbt_docs_generate"},
	{Name: Debug, Command: []string{"debug"}, Activity: "dbt_debug"},
	{Name: Clean, Command: []string{"clean"}, Activity: "dbt_clean"},
	{Name: Deps, Command: []string{"deps"}, Activity: "dbt_deps"},
	{Name: Test, Command: []string{"test"}, Activity: "dbt_test"},
	{Name: TestSources, Command: []string{"test", "--select", "source:*"}, Activity: "dbt_test_source"},
}

// Lookup returns the Spec registered under name.
func Lookup(name string) (Spec, error) {
	i := slices.IndexFunc(specs, func(s Spec) bool { return s.Name == name })
	if i < 0 {
		return Spec{}, fmt.Errorf("%w: %q", ErrUnknownOperation, name)
	}
	s := specs[i]
	s.Command = slices.Clone(s.Command)
	return s, nil
}

// All returns every operation in table order.
func All() []Spec {
	out := make([]Spec, len(specs))
	for i, s := range specs {
		s.Command = slices.Clone(s.Command)
		out[i] = s
	}
	return out
}

// Identifier names one operation against one project and environment, as
// "{env}--{op}--{projectStem}". It is used for logs and sink keys.
func Identifier(env, op, projectDir string) string {
	return env + "--" + op + "--" + dbt.Stem(projectDir)
}

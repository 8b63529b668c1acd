// Package dbt runs single dbt invocations in isolation.
//
// Wrapper.Invoke captures everything the tool prints and, when asked to
// prevent writes, hands the tool an in-memory FileWriter so produced artifacts
// (manifest, run_results, catalog) are returned instead of written to disk.
// Failures are reported only through Result.ExitCode; Invoke never returns an
// error and never panics.
package dbt

import (
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"strings"
)

// Validation errors.
var (
	// ErrEmptyField indicates a required target field is empty.
	ErrEmptyField = errors.New("required field is empty")

	// ErrPathTraversal indicates a path contains ".." segments.
	ErrPathTraversal = errors.New("path traversal detected")
)

// Target identifies where and against what an operation runs. The JSON names
// match the payloads produced by the Python and Go dbt workers sharing the
// task queue.
type Target struct {
	Environment     string `json:"env"`
	ProjectLocation string `json:"project_location"`
	ProfileLocation string `json:"profile_location,omitempty"`
}

// Validate checks that the target can be handed to dbt.
func (t Target) Validate() error {
	if t.Environment == "" {
		return fmt.Errorf("%w: env", ErrEmptyField)
	}
	if t.ProjectLocation == "" {
		return fmt.Errorf("%w: project_location", ErrEmptyField)
	}
	if hasTraversal(t.ProjectLocation) {
		return fmt.Errorf("%w: project_location %q", ErrPathTraversal, t.ProjectLocation)
	}
	if t.ProfileLocation != "" && hasTraversal(t.ProfileLocation) {
		return fmt.Errorf("%w: profile_location %q", ErrPathTraversal, t.ProfileLocation)
	}
	return nil
}

func hasTraversal(p string) bool {
	return slices.Contains(strings.Split(filepath.ToSlash(p), "/"), "..")
}

// ProjectStem returns the final element of the project path without its
// extension: "./test" -> "test".
func (t Target) ProjectStem() string {
	return Stem(t.ProjectLocation)
}

// Args appends the target flags dbt needs to the command arguments.
func (t Target) Args(command []string) []string {
	args := make([]string, 0, len(command)+6)
	args = append(args, command...)
	args = append(args, "--project-dir", t.ProjectLocation, "--target", t.Environment)
	if t.ProfileLocation != "" {
		args = append(args, "--profiles-dir", t.ProfileLocation)
	}
	return args
}

// Stem returns the base name of p without directory or extension.
func Stem(p string) string {
	base := filepath.Base(filepath.Clean(p))
	if base == "." || base == string(filepath.Separator) {
		return ""
	}
	return strings.TrimSuffix(base, filepath.Ext(base))
}

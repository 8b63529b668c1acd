package dbt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"strings"
)

// dbt exits 1 when models or tests fail and 2 on unhandled errors.
const dbtModelFailureExit = 1

// ExecTool runs the dbt CLI as a child process.
type ExecTool struct {
	// Binary is the dbt executable, resolved through PATH when relative.
	Binary string
	// Env holds extra KEY=VALUE pairs appended to the worker environment.
	Env []string
	// ScratchDir is the parent for per-call target directories used when
	// writes are prevented. Empty means os.TempDir.
	ScratchDir string
}

// NewExecTool returns an ExecTool for binary with extra environment.
func NewExecTool(binary string, env map[string]string) *ExecTool {
	t := &ExecTool{Binary: binary}
	for k, v := range env {
		t.Env = append(t.Env, k+"="+v)
	}
	slices.Sort(t.Env)
	return t
}

// Run executes dbt. When inv.PreventWrites is set, dbt's --target-path and
// --log-path both point into a private scratch directory. The JSON artifacts
// left in the target path are decoded into inv.Files and the directory is
// removed before Run returns.
func (t *ExecTool) Run(ctx context.Context, inv Invocation) (bool, error) {
	args := inv.Args
	var scratch string
	if inv.PreventWrites {
		dir, err := os.MkdirTemp(t.ScratchDir, "dbtflow-target-*")
		if err != nil {
			return false, fmt.Errorf("creating scratch target path: %w", err)
		}
		defer os.RemoveAll(dir)
		scratch = dir
		args = append(slices.Clone(args),
			"--target-path", scratch,
			"--log-path", filepath.Join(scratch, "logs"),
		)
	}

	cmd := exec.CommandContext(ctx, t.Binary, args...)
	cmd.Stdout = inv.Stdout
	cmd.Stderr = inv.Stdout
	cmd.Env = append(os.Environ(), t.Env...)

	succeeded := true
	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) || exitErr.ExitCode() != dbtModelFailureExit {
			return false, fmt.Errorf("running %s %s: %w", t.Binary, strings.Join(inv.Args, " "), err)
		}
		succeeded = false
	}

	if scratch != "" {
		if err := collectArtifacts(scratch, filepath.Join(inv.ProjectDir, "target"), inv.Files); err != nil {
			return false, err
		}
	}
	return succeeded, nil
}

// collectArtifacts decodes every top-level *.json file in dir and hands it to
// files under the path dbt would normally have used.
func collectArtifacts(dir, targetDir string, files FileWriter) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("reading scratch target path: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return fmt.Errorf("reading artifact %s: %w", entry.Name(), err)
		}
		var content Artifact
		if err := json.Unmarshal(data, &content); err != nil {
			return fmt.Errorf("decoding artifact %s: %w", entry.Name(), err)
		}
		if err := files.WriteFile(filepath.Join(targetDir, entry.Name()), content); err != nil {
			return err
		}
	}
	return nil
}

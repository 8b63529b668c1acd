package dbt

import (
	"encoding/json"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"sync"
)

// Artifact is the decoded JSON content of one file dbt would write.
type Artifact = map[string]any

// FileWriter is the interception point for every artifact a tool writes.
type FileWriter interface {
	WriteFile(path string, content Artifact) error
}

// DiskWriter writes artifacts as indented JSON files.
type DiskWriter struct{}

// WriteFile creates parent directories and writes content to path.
func (DiskWriter) WriteFile(path string, content Artifact) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating artifact directory: %w", err)
	}
	data, err := json.MarshalIndent(content, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding artifact %s: %w", path, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing artifact %s: %w", path, err)
	}
	return nil
}

// MemoryWriter records artifacts keyed by file stem. Two paths with the same
// stem in different directories collide and the last write wins.
type MemoryWriter struct {
	mu        sync.Mutex
	artifacts map[string]Artifact
}

// NewMemoryWriter returns an empty writer.
func NewMemoryWriter() *MemoryWriter {
	return &MemoryWriter{artifacts: make(map[string]Artifact)}
}

// WriteFile records content under Stem(path). Nothing touches the filesystem.
func (m *MemoryWriter) WriteFile(path string, content Artifact) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.artifacts[Stem(path)] = content
	return nil
}

// Artifacts returns a copy of everything recorded so far.
func (m *MemoryWriter) Artifacts() map[string]Artifact {
	m.mu.Lock()
	defer m.mu.Unlock()
	return maps.Clone(m.artifacts)
}

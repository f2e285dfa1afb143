package tasks

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Load reads a tasks file. A missing file yields Default.
func Load(path string) (State, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Default(), nil
		}
		return State{}, fmt.Errorf("read tasks: %w", err)
	}
	return Parse(data)
}

// Parse decodes a tasks document. Blank task names are dropped.
func Parse(data []byte) (State, error) {
	var s State
	if err := yaml.Unmarshal(data, &s); err != nil {
		return State{}, fmt.Errorf("parse tasks: %w", err)
	}
	kept := s.Tasks[:0]
	for _, t := range s.Tasks {
		t.Task = strings.TrimSpace(t.Task)
		if t.Task != "" {
			kept = append(kept, t)
		}
	}
	s.Tasks = kept
	return s, nil
}

// Save writes s to path, creating the directory if needed. The file is
// replaced atomically so watchers never see a partial document.
func Save(path string, s State) error {
	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal tasks: %w", err)
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create tasks dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".tasks-*.yaml")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write tasks: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close tasks: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace tasks: %w", err)
	}
	return nil
}

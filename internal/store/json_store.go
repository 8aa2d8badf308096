// Package store persists application state under the workspace:
// settings with hot reload, the export index, and per-session scrape
// snapshots. Everything is plain JSON on disk; the scrape core itself
// persists nothing and the CLI layer calls in here.
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"scrollback/internal/logging"
)

const settingsFile = "settings.json"

// Store reads and writes the on-disk state rooted at the workspace dot
// directory. Export artifacts live outside it, in ExportsDir.
type Store struct {
	root       string // .scrollback
	exportsDir string
}

// New returns a Store for the given workspace root and export
// directory. Relative exportDir is taken relative to the workspace.
func New(workspace, exportDir string) *Store {
	if exportDir == "" {
		exportDir = "exports"
	}
	if !filepath.IsAbs(exportDir) {
		exportDir = filepath.Join(workspace, exportDir)
	}
	return &Store{
		root:       filepath.Join(workspace, ".scrollback"),
		exportsDir: exportDir,
	}
}

// Root returns the dot directory the store writes under.
func (s *Store) Root() string { return s.root }

// ExportsDir returns the directory export artifacts are written to.
func (s *Store) ExportsDir() string { return s.exportsDir }

func (s *Store) settingsPath() string { return filepath.Join(s.root, settingsFile) }

func (s *Store) indexPath() string { return filepath.Join(s.exportsDir, "index.json") }

func (s *Store) sessionsDir() string { return filepath.Join(s.root, "sessions") }

// writeJSON marshals v and replaces path atomically so a concurrent
// reader (or the settings watcher) never sees a partial file.
func writeJSON(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create %s: %w", filepath.Dir(path), err)
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", filepath.Base(path), err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("replace %s: %w", path, err)
	}
	logging.Store("wrote %s", path)
	return nil
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

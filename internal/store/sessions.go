package store

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// SessionSnapshot records the outcome of one scrape for later
// inspection. Written by the CLI after each session; the scrape core
// never touches disk.
type SessionSnapshot struct {
	ID          string    `json:"id"`
	URL         string    `json:"url"`
	StartedAt   time.Time `json:"started_at"`
	FinishedAt  time.Time `json:"finished_at"`
	Messages    int       `json:"messages"`
	Source      string    `json:"source"`
	Cycles      int       `json:"cycles"`
	Intercepted int       `json:"intercepted"`
	StoppedBy   string    `json:"stopped_by,omitempty"`
}

// SaveSession writes sessions/<id>.json.
func (s *Store) SaveSession(snap SessionSnapshot) error {
	if snap.ID == "" {
		return fmt.Errorf("session snapshot has no id")
	}
	return writeJSON(filepath.Join(s.sessionsDir(), snap.ID+".json"), snap)
}

// LoadSession reads one snapshot by ID.
func (s *Store) LoadSession(id string) (*SessionSnapshot, error) {
	var snap SessionSnapshot
	if err := readJSON(filepath.Join(s.sessionsDir(), id+".json"), &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

// ListSessions returns all snapshots, newest first.
func (s *Store) ListSessions() ([]SessionSnapshot, error) {
	entries, err := os.ReadDir(s.sessionsDir())
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var out []SessionSnapshot
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		var snap SessionSnapshot
		if err := readJSON(filepath.Join(s.sessionsDir(), entry.Name()), &snap); err != nil {
			continue // skip unreadable snapshots rather than failing the listing
		}
		out = append(out, snap)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].StartedAt.After(out[j].StartedAt)
	})
	return out, nil
}

package store

import (
	"os"
	"time"
)

// Settings are the user preferences commands read and the TUI can flip
// at runtime, kept separate from the workspace YAML config.
type Settings struct {
	LastURL         string    `json:"last_url,omitempty"`
	NameHint        string    `json:"name_hint,omitempty"`
	Reverse         bool      `json:"reverse"`
	PreferredFormat string    `json:"preferred_format"`
	AnalyzerEnabled bool      `json:"analyzer_enabled"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// DefaultSettings returns the defaults used when no settings file
// exists yet.
func DefaultSettings() Settings {
	return Settings{
		PreferredFormat: "jsonl",
		AnalyzerEnabled: true,
	}
}

// LoadSettings reads settings.json, falling back to defaults when the
// file is absent. A malformed file is an error, not silently replaced.
func (s *Store) LoadSettings() (Settings, error) {
	var st Settings
	err := readJSON(s.settingsPath(), &st)
	if os.IsNotExist(err) {
		return DefaultSettings(), nil
	}
	if err != nil {
		return Settings{}, err
	}
	if st.PreferredFormat == "" {
		st.PreferredFormat = "jsonl"
	}
	return st, nil
}

// SaveSettings stamps UpdatedAt and replaces settings.json atomically.
func (s *Store) SaveSettings(st Settings) error {
	st.UpdatedAt = time.Now()
	return writeJSON(s.settingsPath(), st)
}

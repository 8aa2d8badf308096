package store

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// ExportRecord is one entry in exports/index.json.
type ExportRecord struct {
	ID        string            `json:"id"`
	Character string            `json:"character,omitempty"`
	URL       string            `json:"url,omitempty"`
	Messages  int               `json:"messages"`
	Files     map[string]string `json:"files"` // format -> path
	CreatedAt time.Time         `json:"created_at"`
}

type exportIndex struct {
	Exports []ExportRecord `json:"exports"`
}

func (s *Store) loadIndex() (exportIndex, error) {
	var idx exportIndex
	err := readJSON(s.indexPath(), &idx)
	if os.IsNotExist(err) {
		return exportIndex{}, nil
	}
	if err != nil {
		return exportIndex{}, err
	}
	return idx, nil
}

// ListExports returns all indexed exports, newest first.
func (s *Store) ListExports() ([]ExportRecord, error) {
	idx, err := s.loadIndex()
	if err != nil {
		return nil, err
	}
	out := make([]ExportRecord, len(idx.Exports))
	for i, rec := range idx.Exports {
		out[len(out)-1-i] = rec
	}
	return out, nil
}

// AddExport appends a record to the index.
func (s *Store) AddExport(rec ExportRecord) error {
	idx, err := s.loadIndex()
	if err != nil {
		return err
	}
	idx.Exports = append(idx.Exports, rec)
	return writeJSON(s.indexPath(), idx)
}

// FindExport resolves an export by exact ID or unique ID prefix.
func (s *Store) FindExport(id string) (*ExportRecord, error) {
	idx, err := s.loadIndex()
	if err != nil {
		return nil, err
	}
	var match *ExportRecord
	for i := range idx.Exports {
		rec := &idx.Exports[i]
		if rec.ID == id {
			return rec, nil
		}
		if strings.HasPrefix(rec.ID, id) {
			if match != nil {
				return nil, fmt.Errorf("export id %q is ambiguous", id)
			}
			match = rec
		}
	}
	if match == nil {
		return nil, fmt.Errorf("export %q not found", id)
	}
	return match, nil
}

// RemoveExport drops a record from the index. The artifact files are
// left on disk for the caller to handle.
func (s *Store) RemoveExport(id string) error {
	idx, err := s.loadIndex()
	if err != nil {
		return err
	}
	kept := idx.Exports[:0]
	found := false
	for _, rec := range idx.Exports {
		if rec.ID == id {
			found = true
			continue
		}
		kept = append(kept, rec)
	}
	if !found {
		return fmt.Errorf("export %q not found", id)
	}
	idx.Exports = kept
	return writeJSON(s.indexPath(), idx)
}

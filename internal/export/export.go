// Package export writes scraped transcripts to disk. The JSONL format
// is the analyzer contract: one record per line with roles serialized
// "user"/"char". JSON and Markdown are for humans. Every export is
// registered in the store's index so later commands can find it by id.
package export

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"scrollback/internal/logging"
	"scrollback/internal/scrape"
	"scrollback/internal/store"
)

// File names inside an export directory. The analyzer writes its
// summary.md next to the JSONL it was given, so everything for one
// export lives in one directory.
const (
	JSONLName    = "transcript.jsonl"
	JSONName     = "transcript.json"
	MarkdownName = "transcript.md"
	SummaryName  = "summary.md"
)

var formatFiles = map[string]string{
	"jsonl":    JSONLName,
	"json":     JSONName,
	"markdown": MarkdownName,
}

// transcriptLine is the JSONL wire record the analyzer consumes.
type transcriptLine struct {
	TurnIndex int    `json:"turn_index"`
	Role      string `json:"role"` // "user" or "char"
	Text      string `json:"text"`
}

// wireRole maps in-memory roles to the analyzer's vocabulary.
func wireRole(r scrape.Role) string {
	if r == scrape.RoleViewer {
		return "user"
	}
	return "char"
}

// envelope is the pretty-JSON export shape.
type envelope struct {
	Character string                  `json:"character,omitempty"`
	URL       string                  `json:"url,omitempty"`
	ScrapedAt time.Time               `json:"scraped_at"`
	Messages  []scrape.ScrapedMessage `json:"messages"`
}

// Exporter writes transcript files and registers them in the store
// index.
type Exporter struct {
	store *store.Store
}

// New returns an Exporter over the given store.
func New(st *store.Store) *Exporter {
	return &Exporter{store: st}
}

// Export writes the transcript in each requested format under a fresh
// export directory and registers the result. Formats are written
// concurrently; the first failure aborts the rest and nothing is
// registered.
func (e *Exporter) Export(ctx context.Context, res *scrape.Result, character string, formats []string) (*store.ExportRecord, error) {
	if len(formats) == 0 {
		formats = []string{"jsonl"}
	}
	for _, f := range formats {
		if _, ok := formatFiles[f]; !ok {
			return nil, fmt.Errorf("unknown export format %q", f)
		}
	}

	id := uuid.NewString()
	dir := filepath.Join(e.store.ExportsDir(), id)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create export dir: %w", err)
	}

	files := make(map[string]string, len(formats))
	for _, f := range formats {
		files[f] = filepath.Join(dir, formatFiles[f])
	}

	g, ctx := errgroup.WithContext(ctx)
	for _, f := range formats {
		format, path := f, files[f]
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := writeFormat(format, path, res, character); err != nil {
				return fmt.Errorf("write %s: %w", format, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	rec := store.ExportRecord{
		ID:        id,
		Character: character,
		URL:       res.URL,
		Messages:  len(res.Messages),
		Files:     files,
		CreatedAt: time.Now(),
	}
	if err := e.store.AddExport(rec); err != nil {
		return nil, fmt.Errorf("register export: %w", err)
	}
	logging.Export("export %s: %d messages in %s", id, len(res.Messages), strings.Join(formats, ","))
	return &rec, nil
}

func writeFormat(format, path string, res *scrape.Result, character string) error {
	switch format {
	case "jsonl":
		return writeJSONL(path, res.Messages)
	case "json":
		return writeJSON(path, res, character)
	case "markdown":
		return writeMarkdown(path, res, character)
	default:
		return fmt.Errorf("unknown export format %q", format)
	}
}

func writeJSONL(path string, msgs []scrape.ScrapedMessage) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	for _, m := range msgs {
		line := transcriptLine{
			TurnIndex: m.TurnIndex,
			Role:      wireRole(m.Role),
			Text:      m.Text,
		}
		if err := enc.Encode(line); err != nil {
			return err
		}
	}
	return f.Sync()
}

func writeJSON(path string, res *scrape.Result, character string) error {
	env := envelope{
		Character: character,
		URL:       res.URL,
		ScrapedAt: res.FinishedAt,
		Messages:  res.Messages,
	}
	data, err := json.MarshalIndent(env, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}

func writeMarkdown(path string, res *scrape.Result, character string) error {
	name := character
	if name == "" {
		name = "Character"
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("# Conversation with %s\n\n", name))
	if res.URL != "" {
		sb.WriteString(fmt.Sprintf("Source: %s\n\n", res.URL))
	}
	sb.WriteString(fmt.Sprintf("Scraped: %s · %d messages\n\n---\n\n",
		res.FinishedAt.Format("2006-01-02 15:04"), len(res.Messages)))

	for _, m := range res.Messages {
		speaker := name
		if m.Role == scrape.RoleViewer {
			speaker = "You"
		}
		sb.WriteString(fmt.Sprintf("**%s:**\n\n%s\n\n", speaker, m.Text))
	}
	return os.WriteFile(path, []byte(sb.String()), 0o644)
}

// ReadJSONL loads a transcript back from its JSONL file, skipping
// malformed lines the way the analyzer does. Used by the viewer.
func ReadJSONL(path string) ([]scrape.ScrapedMessage, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var out []scrape.ScrapedMessage
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		var rec transcriptLine
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			continue
		}
		role := scrape.RoleCharacter
		if rec.Role == "user" {
			role = scrape.RoleViewer
		}
		out = append(out, scrape.ScrapedMessage{
			TurnIndex: rec.TurnIndex,
			Role:      role,
			Text:      rec.Text,
		})
	}
	return out, nil
}

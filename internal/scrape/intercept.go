package scrape

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"scrollback/internal/logging"
)

// Record is one intercepted message payload, kept opaque until the
// extractor resolves it. Identity, text, and role live under the field
// shapes in selectors.go.
type Record map[string]any

// CaptureStats counts what the aggregator saw during one session.
type CaptureStats struct {
	Responses      int `json:"responses"`
	Ignored        int `json:"ignored"`
	HistoryHits    int `json:"history_hits"`
	MetaHits       int `json:"meta_hits"`
	TransientWarns int `json:"transient_warns"`
	ParseFailures  int `json:"parse_failures"`
}

// assetSuffixes mark static bundle/media responses ignored outright.
var assetSuffixes = []string{
	".js", ".css", ".map", ".png", ".jpg", ".jpeg", ".webp", ".gif",
	".svg", ".ico", ".woff", ".woff2", ".ttf", ".mp3", ".mp4",
}

// telemetryMarkers mark analytics pings ignored outright.
var telemetryMarkers = []string{
	"analytics", "telemetry", "sentry", "gtag", "googletagmanager",
	"doubleclick", "hotjar", "clarity", "/collect", "/ping",
}

// metaMarkers mark character-metadata responses.
var metaMarkers = []string{
	"/character/info", "character_info", "/characters/", "/persona",
}

// defaultHistoryPatterns mark message-history responses.
var defaultHistoryPatterns = []string{"/chat", "/message", "/history", "/turn"}

// Aggregator passively captures message records off the page's response
// stream. It runs as an event callback concurrent with the scroll loop
// and never raises: one malformed response must not break interception
// of the next.
type Aggregator struct {
	mu      sync.Mutex
	records []Record
	meta    map[string]any
	stats   CaptureStats
	stop    func()

	historyPatterns []string
}

// NewAggregator returns an Aggregator matching history responses against
// the given URL substrings (defaults when empty).
func NewAggregator(historyPatterns []string) *Aggregator {
	if len(historyPatterns) == 0 {
		historyPatterns = defaultHistoryPatterns
	}
	return &Aggregator{historyPatterns: historyPatterns}
}

// Attach subscribes to the page's response stream. A previous
// subscription is released first.
func (a *Aggregator) Attach(page Page) error {
	if page == nil {
		return ErrNoPage
	}
	a.Detach()
	stop, err := page.SubscribeResponses(a.handle)
	if err != nil {
		return fmt.Errorf("subscribe responses: %w", err)
	}
	a.mu.Lock()
	a.stop = stop
	a.mu.Unlock()
	logging.Intercept("aggregator attached (%d history patterns)", len(a.historyPatterns))
	return nil
}

// Detach releases the response subscription, if any. Captured records
// are kept.
func (a *Aggregator) Detach() {
	a.mu.Lock()
	stop := a.stop
	a.stop = nil
	a.mu.Unlock()
	if stop != nil {
		stop()
	}
}

// Reset clears the buffer, metadata, and stats for a new session.
func (a *Aggregator) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.records = nil
	a.meta = nil
	a.stats = CaptureStats{}
}

// Count returns the current buffer size.
func (a *Aggregator) Count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.records)
}

// Records returns a snapshot copy of the buffer.
func (a *Aggregator) Records() []Record {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]Record, len(a.records))
	copy(out, a.records)
	return out
}

// CharacterMeta returns the most recent character-metadata payload, or
// nil if none was captured.
func (a *Aggregator) CharacterMeta() map[string]any {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.meta == nil {
		return nil
	}
	out := make(map[string]any, len(a.meta))
	for k, v := range a.meta {
		out[k] = v
	}
	return out
}

// Stats returns a snapshot of the capture counters.
func (a *Aggregator) Stats() CaptureStats {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stats
}

// handle classifies and, where relevant, parses one response. Runs on
// the event goroutine; must never block long or panic outward.
func (a *Aggregator) handle(resp Response) {
	defer func() {
		if r := recover(); r != nil {
			logging.InterceptError("response handler panic on %s: %v", resp.URL, r)
		}
	}()

	a.mu.Lock()
	a.stats.Responses++
	a.mu.Unlock()

	switch {
	case isAssetOrTelemetry(resp.URL):
		a.mu.Lock()
		a.stats.Ignored++
		a.mu.Unlock()

	case matchesAny(resp.URL, metaMarkers):
		payload, ok := a.decodeBody(resp, "metadata")
		if !ok {
			return
		}
		if m, isMap := payload.(map[string]any); isMap {
			a.mu.Lock()
			a.meta = m
			a.stats.MetaHits++
			a.mu.Unlock()
			logging.InterceptDebug("character metadata captured from %s", resp.URL)
		}

	case matchesAny(resp.URL, a.historyPatterns):
		payload, ok := a.decodeBody(resp, "history")
		if !ok {
			return
		}
		recs := findRecords(payload)
		if len(recs) == 0 {
			return
		}
		// Appended wholesale; validation and dedup belong to the extractor.
		a.mu.Lock()
		a.records = append(a.records, recs...)
		a.stats.HistoryHits++
		total := len(a.records)
		a.mu.Unlock()
		logging.Intercept("captured %d records from %s (buffer now %d)", len(recs), resp.URL, total)

	default:
		a.mu.Lock()
		a.stats.Ignored++
		a.mu.Unlock()
	}
}

// decodeBody turns a response body into decoded JSON, classifying
// failures: the known body-eviction race is a warning, anything else a
// failure-level log. Neither aborts interception.
func (a *Aggregator) decodeBody(resp Response, kind string) (any, bool) {
	if resp.BodyErr != nil {
		a.mu.Lock()
		if IsTransientBodyErr(resp.BodyErr) {
			a.stats.TransientWarns++
			a.mu.Unlock()
			logging.InterceptWarn("%s body unavailable (transient) from %s: %v", kind, resp.URL, resp.BodyErr)
		} else {
			a.stats.ParseFailures++
			a.mu.Unlock()
			logging.InterceptError("%s body read failed from %s: %v", kind, resp.URL, resp.BodyErr)
		}
		return nil, false
	}
	if resp.Status >= 400 {
		logging.InterceptDebug("skipping %s response %d from %s", kind, resp.Status, resp.URL)
		return nil, false
	}
	if len(resp.Body) == 0 {
		logging.InterceptDebug("empty %s body from %s", kind, resp.URL)
		return nil, false
	}
	var payload any
	if err := json.Unmarshal(resp.Body, &payload); err != nil {
		a.mu.Lock()
		a.stats.ParseFailures++
		a.mu.Unlock()
		logging.InterceptError("malformed %s body from %s: %v", kind, resp.URL, err)
		return nil, false
	}
	return payload, true
}

func isAssetOrTelemetry(url string) bool {
	path := url
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	lower := strings.ToLower(path)
	for _, suffix := range assetSuffixes {
		if strings.HasSuffix(lower, suffix) {
			return true
		}
	}
	return matchesAny(url, telemetryMarkers)
}

func matchesAny(url string, patterns []string) bool {
	lower := strings.ToLower(url)
	for _, p := range patterns {
		if strings.Contains(lower, strings.ToLower(p)) {
			return true
		}
	}
	return false
}

// findRecords digs a message-record array out of a decoded payload:
// top-level arrays, known history keys, or one nesting level under
// "data".
func findRecords(payload any) []Record {
	switch v := payload.(type) {
	case []any:
		return coerceRecords(v)
	case map[string]any:
		for _, key := range historyKeys {
			if arr, ok := v[key].([]any); ok {
				if recs := coerceRecords(arr); len(recs) > 0 {
					return recs
				}
			}
		}
		if data, ok := v["data"]; ok {
			return findRecords(data)
		}
	}
	return nil
}

// coerceRecords accepts an array only when it looks message-shaped:
// at least one of its leading elements carries a known record field.
func coerceRecords(arr []any) []Record {
	if len(arr) == 0 {
		return nil
	}
	probe := arr
	if len(probe) > 5 {
		probe = probe[:5]
	}
	like := false
	for _, el := range probe {
		m, ok := el.(map[string]any)
		if !ok {
			continue
		}
		for _, f := range recordShapeFields {
			if _, has := m[f]; has {
				like = true
				break
			}
		}
		if like {
			break
		}
	}
	if !like {
		return nil
	}
	out := make([]Record, 0, len(arr))
	for _, el := range arr {
		if m, ok := el.(map[string]any); ok {
			out = append(out, Record(m))
		}
	}
	return out
}

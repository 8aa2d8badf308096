package scrape

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"scrollback/internal/logging"
)

// Role marks which side of the conversation a message belongs to.
type Role string

const (
	RoleViewer    Role = "viewer"
	RoleCharacter Role = "character"
)

// ScrapedMessage is one transcript entry. TurnIndex values are
// contiguous ascending from 0 in array order, assigned only by the
// extractor's final reindex.
type ScrapedMessage struct {
	TurnIndex int    `json:"turn_index"`
	Role      Role   `json:"role"`
	Text      string `json:"text"`
}

// ExtractOptions tune one extraction pass.
type ExtractOptions struct {
	// Reverse flips the final array (oldest-last instead of oldest-first).
	Reverse bool
	// NameHint is the character's display name, stripped from DOM text.
	NameHint string
}

// Diagnostics describes how an extraction went. A zero MessageCount is
// a valid outcome the caller must check before downstream steps.
type Diagnostics struct {
	Source       string `json:"source"` // "network" or the winning DOM selector
	MessageCount int    `json:"message_count"`
	DurationMs   int64  `json:"duration_ms"`
}

// domScanJS scores container candidates by contained message-node
// count, then message selectors inside the winner the same way, and
// returns the winning nodes with text, role markers, and vertical
// position. Strictly-greater comparisons make earlier candidates win
// ties.
var domScanJS = buildDOMScanJS()

func buildDOMScanJS() string {
	containers, _ := json.Marshal(containerCandidates)
	messages, _ := json.Marshal(messageCandidates)
	return fmt.Sprintf(`() => {
	const containerSels = %s;
	const messageSels = %s;

	const countIn = (root) => {
		let best = 0;
		for (const mSel of messageSels) {
			best = Math.max(best, root.querySelectorAll(mSel).length);
		}
		return best;
	};

	let container = document;
	let containerSel = "document";
	let containerScore = 0;
	for (const cSel of containerSels) {
		const el = document.querySelector(cSel);
		if (!el) continue;
		const score = countIn(el);
		if (score > containerScore) {
			container = el;
			containerSel = cSel;
			containerScore = score;
		}
	}

	let winner = "";
	let winnerCount = 0;
	for (const mSel of messageSels) {
		const n = container.querySelectorAll(mSel).length;
		if (n > winnerCount) { winner = mSel; winnerCount = n; }
	}

	const nodes = [];
	if (winner) {
		for (const el of container.querySelectorAll(winner)) {
			const rect = el.getBoundingClientRect();
			const attrs = ((el.getAttribute('class') || '') + ' ' +
				(el.getAttribute('data-author') || '') + ' ' +
				(el.getAttribute('data-role') || '')).toLowerCase();
			let marker = '';
			if (/(^|[-_ ])(user|human|you|viewer|self|outgoing|sent)([-_ ]|$)/.test(attrs)) marker = 'viewer';
			else if (/(^|[-_ ])(bot|ai|char|character|assistant|incoming|received)([-_ ]|$)/.test(attrs)) marker = 'character';
			nodes.push({ text: el.innerText || '', marker: marker, top: rect.top });
		}
	}
	return { container: containerSel, selector: winner, nodes: nodes };
}`, containers, messages)
}

type domScanResult struct {
	Container string    `json:"container"`
	Selector  string    `json:"selector"`
	Nodes     []domNode `json:"nodes"`
}

type domNode struct {
	Text   string  `json:"text"`
	Marker string  `json:"marker"`
	Top    float64 `json:"top"`
}

func scanDOM(ctx context.Context, page Page) (*domScanResult, error) {
	if page == nil {
		return nil, ErrNoPage
	}
	var res domScanResult
	if err := page.RunScript(ctx, domScanJS, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Extractor reconciles intercepted records or a DOM scan into the final
// message list. A non-empty record buffer always wins: the DOM is never
// consulted then.
type Extractor struct {
	norm *Normalizer

	// domScan is swapped out by tests.
	domScan func(ctx context.Context, page Page) (*domScanResult, error)
}

// NewExtractor returns an Extractor with default normalization.
func NewExtractor() *Extractor {
	return &Extractor{
		norm:    NewNormalizer(),
		domScan: scanDOM,
	}
}

// Extract produces the ordered message list from the intercepted buffer
// (preferred) or a DOM scan (fallback). Zero messages is a valid
// outcome, not an error.
func (e *Extractor) Extract(ctx context.Context, buffer []Record, page Page, opts ExtractOptions) ([]ScrapedMessage, Diagnostics, error) {
	start := time.Now()

	if len(buffer) > 0 {
		msgs := finalize(e.fromRecords(buffer), opts.Reverse)
		diags := Diagnostics{
			Source:       "network",
			MessageCount: len(msgs),
			DurationMs:   time.Since(start).Milliseconds(),
		}
		if len(msgs) == 0 {
			logging.ScrapeWarn("network path yielded zero messages from %d records", len(buffer))
		} else {
			logging.Scrape("extracted %d messages from %d intercepted records", len(msgs), len(buffer))
		}
		return msgs, diags, nil
	}

	scan, err := e.domScan(ctx, page)
	if err != nil {
		return nil, Diagnostics{Source: "dom", DurationMs: time.Since(start).Milliseconds()},
			fmt.Errorf("dom scan: %w", err)
	}
	msgs := finalize(e.fromDOM(scan, opts), opts.Reverse)
	source := scan.Selector
	if source == "" {
		source = "dom"
	}
	diags := Diagnostics{
		Source:       source,
		MessageCount: len(msgs),
		DurationMs:   time.Since(start).Milliseconds(),
	}
	if len(msgs) == 0 {
		logging.ScrapeWarn("dom path yielded zero messages (container=%s selector=%s)", scan.Container, scan.Selector)
	} else {
		logging.Scrape("extracted %d messages from dom (%s)", len(msgs), source)
	}
	return msgs, diags, nil
}

// fromRecords maps intercepted records to messages: identity dedup,
// text resolution, role resolution, empty drop, adjacent collapse.
func (e *Extractor) fromRecords(records []Record) []ScrapedMessage {
	seen := make(map[string]bool, len(records))
	out := make([]ScrapedMessage, 0, len(records))
	for _, rec := range records {
		if key, ok := recordIdentity(rec); ok {
			if seen[key] {
				continue
			}
			seen[key] = true
		}
		text := e.norm.Clean(recordText(rec))
		if text == "" {
			continue
		}
		out = append(out, ScrapedMessage{Role: recordRole(rec), Text: text})
	}
	return collapseAdjacent(out)
}

// recordIdentity returns a dedup key from the first known identity
// shape. Records without one are kept as-is, never merged by content.
func recordIdentity(rec Record) (string, bool) {
	for _, f := range identityFields {
		if v, ok := rec[f]; ok {
			if s := stringifyID(v); s != "" {
				return f + ":" + s, true
			}
		}
	}
	if tk, ok := rec[turnKeyField].(map[string]any); ok {
		if s := stringifyID(tk[turnKeyIDField]); s != "" {
			return turnKeyField + ":" + s, true
		}
	}
	return "", false
}

func stringifyID(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case json.Number:
		return x.String()
	default:
		return ""
	}
}

// recordText resolves message text from known fields, falling back to
// the candidates sub-structure: the primary-flagged one, else the first.
func recordText(rec Record) string {
	for _, f := range textFields {
		if s, ok := rec[f].(string); ok && s != "" {
			return s
		}
	}
	cands, ok := rec[candidatesField].([]any)
	if !ok {
		return ""
	}
	var first map[string]any
	for _, c := range cands {
		m, isMap := c.(map[string]any)
		if !isMap {
			continue
		}
		if first == nil {
			first = m
		}
		for _, flag := range primaryFlags {
			if b, isBool := m[flag].(bool); isBool && b {
				return candidateText(m)
			}
		}
	}
	if first == nil {
		return ""
	}
	return candidateText(first)
}

func candidateText(m map[string]any) string {
	for _, f := range textFields {
		if s, ok := m[f].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

// recordRole resolves the speaker from author markers, defaulting to
// character when ambiguous.
func recordRole(rec Record) Role {
	author, ok := rec[authorField].(map[string]any)
	if !ok {
		return RoleCharacter
	}
	if b, isBool := author["is_human"].(bool); isBool && b {
		return RoleViewer
	}
	if s, isStr := author["role"].(string); isStr && viewerRoleTokens[strings.ToLower(s)] {
		return RoleViewer
	}
	return RoleCharacter
}

// fromDOM maps scanned nodes to messages: position ordering, noise
// stripping, role inference, empty drop, adjacent collapse.
func (e *Extractor) fromDOM(scan *domScanResult, opts ExtractOptions) []ScrapedMessage {
	nodes := orderByPosition(scan.Nodes)
	out := make([]ScrapedMessage, 0, len(nodes))
	for _, node := range nodes {
		text, sawName, sawYou := e.norm.StripNoise(node.Text, opts.NameHint)
		if text == "" {
			continue
		}
		role := RoleViewer
		switch {
		case node.Marker == "viewer":
			role = RoleViewer
		case node.Marker == "character":
			role = RoleCharacter
		case sawName:
			role = RoleCharacter
		case sawYou:
			role = RoleViewer
		}
		out = append(out, ScrapedMessage{Role: role, Text: text})
	}
	return collapseAdjacent(out)
}

// orderByPosition applies the vertical-position tie-break: when the
// first node sits below the last, the layout renders newest-first and
// the array is reversed. Single nodes and equal positions are left as
// matched; the heuristic is unverified for degenerate layouts.
func orderByPosition(nodes []domNode) []domNode {
	if len(nodes) < 2 {
		return nodes
	}
	if nodes[0].Top > nodes[len(nodes)-1].Top {
		rev := make([]domNode, len(nodes))
		for i, n := range nodes {
			rev[len(nodes)-1-i] = n
		}
		return rev
	}
	return nodes
}

// fingerprint keys a message for duplicate detection. Text is already
// clipped by the normalizer, keeping keys bounded.
func fingerprint(role Role, text string) string {
	return string(role) + "\x00" + text
}

// collapseAdjacent removes back-to-back repeats of the same (role,
// text) pair.
func collapseAdjacent(msgs []ScrapedMessage) []ScrapedMessage {
	out := make([]ScrapedMessage, 0, len(msgs))
	last := ""
	for _, m := range msgs {
		fp := fingerprint(m.Role, m.Text)
		if fp == last {
			continue
		}
		out = append(out, m)
		last = fp
	}
	return out
}

// finalize optionally reverses, then reindexes turn_index to match
// array order.
func finalize(msgs []ScrapedMessage, reverse bool) []ScrapedMessage {
	if reverse {
		for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
			msgs[i], msgs[j] = msgs[j], msgs[i]
		}
	}
	for i := range msgs {
		msgs[i].TurnIndex = i
	}
	return msgs
}

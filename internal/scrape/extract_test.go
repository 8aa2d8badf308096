package scrape

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

// spyExtractor returns an Extractor whose DOM scan is replaced by a
// counter serving canned nodes.
func spyExtractor(nodes []domNode, selector string) (*Extractor, *int) {
	e := NewExtractor()
	scans := new(int)
	e.domScan = func(ctx context.Context, page Page) (*domScanResult, error) {
		*scans++
		return &domScanResult{Container: "main", Selector: selector, Nodes: nodes}, nil
	}
	return e, scans
}

func rec(kv ...any) Record {
	r := Record{}
	for i := 0; i+1 < len(kv); i += 2 {
		r[kv[i].(string)] = kv[i+1]
	}
	return r
}

func TestExtractNetworkPathNeverConsultsDOM(t *testing.T) {
	// The DOM scan would produce content, but a non-empty buffer means
	// it must never even be invoked.
	e, scans := spyExtractor([]domNode{{Text: "dom says hi"}}, "[class*='message']")

	buffer := []Record{rec("uuid", "a", "text", "net says hi")}
	msgs, diags, err := e.Extract(context.Background(), buffer, nil, ExtractOptions{})
	require.NoError(t, err)
	require.Zero(t, *scans, "dom path invoked despite non-empty buffer")
	require.Equal(t, "network", diags.Source)
	require.Len(t, msgs, 1)
	require.Equal(t, "net says hi", msgs[0].Text)
}

func TestExtractIdentityDedup(t *testing.T) {
	e := NewExtractor()

	buffer := []Record{
		rec("uuid", "a", "text", "x"),
		rec("uuid", "a", "text", "x"),
		rec("uuid", "b", "text", "y"),
	}
	msgs, _, err := e.Extract(context.Background(), buffer, nil, ExtractOptions{})
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	require.Equal(t, "x", msgs[0].Text)
	require.Equal(t, "y", msgs[1].Text)
}

func TestExtractIdentityShapes(t *testing.T) {
	e := NewExtractor()

	buffer := []Record{
		rec("id", float64(7), "text", "one"),
		rec("id", float64(7), "text", "one"),
		rec("message_id", "m1", "text", "two"),
		rec("message_id", "m1", "text", "two"),
		rec("turn_key", map[string]any{"turn_id": "t9"}, "text", "three"),
		rec("turn_key", map[string]any{"turn_id": "t9"}, "text", "three"),
	}
	msgs, _, err := e.Extract(context.Background(), buffer, nil, ExtractOptions{})
	require.NoError(t, err)
	require.Len(t, msgs, 3)
}

func TestExtractDistinctIdentityFieldsDoNotCollide(t *testing.T) {
	e := NewExtractor()

	// Same raw value under different identity fields is two records.
	buffer := []Record{
		rec("uuid", "k", "text", "first"),
		rec("id", "k", "text", "second"),
	}
	msgs, _, err := e.Extract(context.Background(), buffer, nil, ExtractOptions{})
	require.NoError(t, err)
	require.Len(t, msgs, 2)
}

func TestExtractNoIdentityNeverContentMerged(t *testing.T) {
	e := NewExtractor()

	// Identical content, no identity, not adjacent: all kept.
	buffer := []Record{
		rec("text", "same"),
		rec("text", "other"),
		rec("text", "same"),
	}
	msgs, _, err := e.Extract(context.Background(), buffer, nil, ExtractOptions{})
	require.NoError(t, err)
	require.Len(t, msgs, 3)
}

func TestExtractTextResolution(t *testing.T) {
	tests := []struct {
		name string
		rec  Record
		want string
	}{
		{"direct text", rec("text", "hello"), "hello"},
		{"raw_content", rec("raw_content", "raw"), "raw"},
		{"content", rec("content", "con"), "con"},
		{"message", rec("message", "msg"), "msg"},
		{
			"primary candidate wins",
			rec("candidates", []any{
				map[string]any{"raw_content": "draft"},
				map[string]any{"raw_content": "final", "is_primary": true},
			}),
			"final",
		},
		{
			"is_final flag",
			rec("candidates", []any{
				map[string]any{"raw_content": "draft"},
				map[string]any{"raw_content": "kept", "is_final": true},
			}),
			"kept",
		},
		{
			"first candidate fallback",
			rec("candidates", []any{
				map[string]any{"raw_content": "first"},
				map[string]any{"raw_content": "second"},
			}),
			"first",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := NewExtractor()
			msgs, _, err := e.Extract(context.Background(), []Record{tt.rec}, nil, ExtractOptions{})
			require.NoError(t, err)
			require.Len(t, msgs, 1)
			require.Equal(t, tt.want, msgs[0].Text)
		})
	}
}

func TestExtractRoleResolution(t *testing.T) {
	tests := []struct {
		name string
		rec  Record
		want Role
	}{
		{"is_human true", rec("text", "t", "author", map[string]any{"is_human": true}), RoleViewer},
		{"is_human false", rec("text", "t", "author", map[string]any{"is_human": false}), RoleCharacter},
		{"role user", rec("text", "t", "author", map[string]any{"role": "user"}), RoleViewer},
		{"role HUMAN", rec("text", "t", "author", map[string]any{"role": "HUMAN"}), RoleViewer},
		{"role assistant", rec("text", "t", "author", map[string]any{"role": "assistant"}), RoleCharacter},
		{"no author defaults character", rec("text", "t"), RoleCharacter},
		{"empty author defaults character", rec("text", "t", "author", map[string]any{}), RoleCharacter},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := NewExtractor()
			msgs, _, err := e.Extract(context.Background(), []Record{tt.rec}, nil, ExtractOptions{})
			require.NoError(t, err)
			require.Len(t, msgs, 1)
			require.Equal(t, tt.want, msgs[0].Role)
		})
	}
}

func TestExtractDropsEmptyRecords(t *testing.T) {
	e := NewExtractor()

	buffer := []Record{
		rec("uuid", "a", "text", "   \n  "),
		rec("uuid", "b"),
		rec("uuid", "c", "text", "kept"),
	}
	msgs, _, err := e.Extract(context.Background(), buffer, nil, ExtractOptions{})
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	require.Equal(t, "kept", msgs[0].Text)
}

func TestExtractTurnIndexContiguous(t *testing.T) {
	e := NewExtractor()

	buffer := []Record{
		rec("uuid", "a", "text", "one"),
		rec("uuid", "b", "text", "two"),
		rec("uuid", "c", "text", "three"),
	}
	msgs, _, err := e.Extract(context.Background(), buffer, nil, ExtractOptions{})
	require.NoError(t, err)
	for i, m := range msgs {
		require.Equal(t, i, m.TurnIndex)
	}
}

func TestExtractReverseProperty(t *testing.T) {
	buffer := []Record{
		rec("uuid", "a", "text", "one", "author", map[string]any{"is_human": true}),
		rec("uuid", "b", "text", "two"),
		rec("uuid", "c", "text", "three"),
	}

	e := NewExtractor()
	forward, _, err := e.Extract(context.Background(), buffer, nil, ExtractOptions{})
	require.NoError(t, err)
	backward, _, err := e.Extract(context.Background(), buffer, nil, ExtractOptions{Reverse: true})
	require.NoError(t, err)

	want := make([]ScrapedMessage, len(forward))
	for i, m := range forward {
		m.TurnIndex = len(forward) - 1 - i
		want[len(forward)-1-i] = m
	}
	if diff := cmp.Diff(want, backward); diff != "" {
		t.Errorf("reverse mismatch (-want +got):\n%s", diff)
	}
}

func TestExtractAdjacentCollapse(t *testing.T) {
	e := NewExtractor()

	// Same role, "Hi" twice back-to-back, then "Bye".
	buffer := []Record{
		rec("text", "Hi"),
		rec("text", "Hi"),
		rec("text", "Bye"),
	}
	msgs, _, err := e.Extract(context.Background(), buffer, nil, ExtractOptions{})
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	require.Equal(t, "Hi", msgs[0].Text)
	require.Equal(t, 0, msgs[0].TurnIndex)
	require.Equal(t, "Bye", msgs[1].Text)
	require.Equal(t, 1, msgs[1].TurnIndex)
}

func TestExtractAdjacentCollapseRoleSensitive(t *testing.T) {
	e := NewExtractor()

	// Same text but different roles stays two messages.
	buffer := []Record{
		rec("text", "ok", "author", map[string]any{"is_human": true}),
		rec("text", "ok"),
	}
	msgs, _, err := e.Extract(context.Background(), buffer, nil, ExtractOptions{})
	require.NoError(t, err)
	require.Len(t, msgs, 2)
}

func TestExtractDOMPathRolesAndNoise(t *testing.T) {
	nodes := []domNode{
		{Text: "You\nhello there\nCopy", Top: 10},
		{Text: "Mira\n*smiles* welcome back\n14:32", Top: 20},
		{Text: "cool\nShare", Marker: "viewer", Top: 30},
		{Text: "indeed", Marker: "character", Top: 40},
	}
	e, _ := spyExtractor(nodes, "[class*='message']")

	msgs, diags, err := e.Extract(context.Background(), nil, nil, ExtractOptions{NameHint: "Mira"})
	require.NoError(t, err)
	require.Equal(t, "[class*='message']", diags.Source)
	require.Len(t, msgs, 4)

	require.Equal(t, ScrapedMessage{0, RoleViewer, "hello there"}, msgs[0])
	require.Equal(t, ScrapedMessage{1, RoleCharacter, "*smiles* welcome back"}, msgs[1])
	require.Equal(t, ScrapedMessage{2, RoleViewer, "cool"}, msgs[2])
	require.Equal(t, ScrapedMessage{3, RoleCharacter, "indeed"}, msgs[3])
}

func TestExtractDOMPathDropsEmptyNodes(t *testing.T) {
	nodes := []domNode{
		{Text: "Copy\nShare\n14:32", Top: 10}, // all noise
		{Text: "real message", Top: 20},
	}
	e, _ := spyExtractor(nodes, "[class*='message']")

	msgs, _, err := e.Extract(context.Background(), nil, nil, ExtractOptions{})
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	require.Equal(t, "real message", msgs[0].Text)
}

func TestExtractDOMPathVerticalTieBreak(t *testing.T) {
	// First node rendered below the last: newest-first layout, reversed.
	nodes := []domNode{
		{Text: "newest", Top: 300},
		{Text: "middle", Top: 200},
		{Text: "oldest", Top: 100},
	}
	e, _ := spyExtractor(nodes, "[class*='message']")

	msgs, _, err := e.Extract(context.Background(), nil, nil, ExtractOptions{})
	require.NoError(t, err)
	require.Equal(t, "oldest", msgs[0].Text)
	require.Equal(t, "newest", msgs[2].Text)
}

func TestExtractDOMPathEqualPositionsKeptAsMatched(t *testing.T) {
	nodes := []domNode{
		{Text: "first", Top: 50},
		{Text: "second", Top: 50},
	}
	e, _ := spyExtractor(nodes, "[class*='message']")

	msgs, _, err := e.Extract(context.Background(), nil, nil, ExtractOptions{})
	require.NoError(t, err)
	require.Equal(t, "first", msgs[0].Text)
	require.Equal(t, "second", msgs[1].Text)
}

func TestExtractDOMPathConsecutiveDedupExample(t *testing.T) {
	nodes := []domNode{
		{Text: "Hi", Marker: "character", Top: 10},
		{Text: "Hi", Marker: "character", Top: 20},
		{Text: "Bye", Marker: "character", Top: 30},
	}
	e, _ := spyExtractor(nodes, "[class*='message']")

	msgs, _, err := e.Extract(context.Background(), nil, nil, ExtractOptions{})
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	require.Equal(t, ScrapedMessage{0, RoleCharacter, "Hi"}, msgs[0])
	require.Equal(t, ScrapedMessage{1, RoleCharacter, "Bye"}, msgs[1])
}

func TestExtractEmptyEverything(t *testing.T) {
	e, _ := spyExtractor(nil, "")

	msgs, diags, err := e.Extract(context.Background(), nil, nil, ExtractOptions{})
	require.NoError(t, err, "zero messages is a valid outcome")
	require.Empty(t, msgs)
	require.Zero(t, diags.MessageCount)
}

func TestExtractNoAdjacentDuplicatesInvariant(t *testing.T) {
	// Mixed junk in, invariant out.
	buffer := []Record{
		rec("text", "a"), rec("text", "a"), rec("text", "b"),
		rec("text", "b"), rec("text", "a"), rec("text", "a"),
	}
	e := NewExtractor()
	msgs, _, err := e.Extract(context.Background(), buffer, nil, ExtractOptions{})
	require.NoError(t, err)
	for i := 1; i < len(msgs); i++ {
		same := msgs[i].Role == msgs[i-1].Role && msgs[i].Text == msgs[i-1].Text
		require.False(t, same, "adjacent duplicate at %d", i)
	}
	require.Len(t, msgs, 3) // a, b, a
}

package scrape

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func attachedAggregator(t *testing.T) (*Aggregator, *fakePage) {
	t.Helper()
	page := &fakePage{}
	agg := NewAggregator(nil)
	require.NoError(t, agg.Attach(page))
	return agg, page
}

func TestAggregatorCapturesHistoryShapes(t *testing.T) {
	tests := []struct {
		name string
		url  string
		body string
		want int
	}{
		{
			"top-level array",
			"https://app.example.com/api/chat/history?n=50",
			`[{"uuid":"a","text":"hi"},{"uuid":"b","text":"yo"}]`,
			2,
		},
		{
			"nested under turns",
			"https://app.example.com/api/chat/turns",
			`{"turns":[{"turn_key":{"turn_id":"t1"},"candidates":[{"raw_content":"x"}]}]}`,
			1,
		},
		{
			"nested under data.messages",
			"https://app.example.com/v2/message/page",
			`{"data":{"messages":[{"id":3,"text":"a"},{"id":4,"text":"b"},{"id":5,"text":"c"}]}}`,
			3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			agg, page := attachedAggregator(t)
			page.emit(Response{URL: tt.url, Status: 200, Body: []byte(tt.body)})
			require.Equal(t, tt.want, agg.Count())
		})
	}
}

func TestAggregatorIgnoresAssetsAndTelemetry(t *testing.T) {
	agg, page := attachedAggregator(t)

	for _, url := range []string{
		"https://cdn.example.com/bundle.chat.js",
		"https://cdn.example.com/chat/styles.css?v=2",
		"https://fonts.example.com/chat.woff2",
		"https://www.googletagmanager.com/gtag/js",
		"https://app.example.com/analytics/chat-view",
	} {
		page.emit(Response{URL: url, Status: 200, Body: []byte(`[{"text":"sneaky"}]`)})
	}

	require.Equal(t, 0, agg.Count())
	require.Equal(t, 5, agg.Stats().Ignored)
}

func TestAggregatorNeverBreaksOnMalformedBodies(t *testing.T) {
	agg, page := attachedAggregator(t)

	// Malformed JSON, then a valid capture, then junk again.
	page.emit(Response{URL: "https://x/api/chat/history", Status: 200, Body: []byte(`<html>oops`)})
	page.emit(Response{URL: "https://x/api/chat/history", Status: 200, Body: []byte(`[{"uuid":"a","text":"ok"}]`)})
	page.emit(Response{URL: "https://x/api/chat/history", Status: 200, Body: []byte(`{{{`)})

	require.Equal(t, 1, agg.Count())
	require.Equal(t, 2, agg.Stats().ParseFailures)
}

func TestAggregatorClassifiesBodyRace(t *testing.T) {
	agg, page := attachedAggregator(t)

	page.emit(Response{
		URL:     "https://x/api/chat/history",
		Status:  200,
		BodyErr: errors.New("No resource with given identifier found"),
	})
	page.emit(Response{
		URL:     "https://x/api/chat/history",
		Status:  200,
		BodyErr: errors.New("connection reset"),
	})

	stats := agg.Stats()
	require.Equal(t, 1, stats.TransientWarns, "eviction race counts as transient")
	require.Equal(t, 1, stats.ParseFailures, "other body errors count as failures")
	require.Equal(t, 0, agg.Count())
}

func TestAggregatorRejectsNonMessageArrays(t *testing.T) {
	agg, page := attachedAggregator(t)

	page.emit(Response{URL: "https://x/api/chat/config", Status: 200, Body: []byte(`["en","de","fr"]`)})
	page.emit(Response{URL: "https://x/api/chat/flags", Status: 200, Body: []byte(`{"turns":[{"feature":"dark_mode"}]}`)})

	require.Equal(t, 0, agg.Count())
}

func TestAggregatorCapturesCharacterMeta(t *testing.T) {
	agg, page := attachedAggregator(t)

	page.emit(Response{
		URL:    "https://x/api/character/info/abc",
		Status: 200,
		Body:   []byte(`{"name":"Mira","greeting":"hey"}`),
	})

	meta := agg.CharacterMeta()
	require.NotNil(t, meta)
	require.Equal(t, "Mira", meta["name"])
	require.Equal(t, 1, agg.Stats().MetaHits)
}

func TestAggregatorResetClearsSession(t *testing.T) {
	agg, page := attachedAggregator(t)

	page.emit(Response{URL: "https://x/api/chat/history", Status: 200, Body: []byte(`[{"text":"hi"}]`)})
	require.Equal(t, 1, agg.Count())

	agg.Reset()
	require.Equal(t, 0, agg.Count())
	require.Nil(t, agg.CharacterMeta())
	require.Equal(t, CaptureStats{}, agg.Stats())
}

func TestAggregatorDetachStopsSubscription(t *testing.T) {
	agg, page := attachedAggregator(t)
	agg.Detach()
	require.Equal(t, 1, page.stopCalls)

	page.emit(Response{URL: "https://x/api/chat/history", Status: 200, Body: []byte(`[{"text":"hi"}]`)})
	require.Equal(t, 0, agg.Count())
}

func TestAggregatorToleratesInterleavedArrival(t *testing.T) {
	agg, page := attachedAggregator(t)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 25; j++ {
				body := fmt.Sprintf(`[{"uuid":"g%d-%d","text":"m"}]`, i, j)
				page.emit(Response{URL: "https://x/api/chat/history", Status: 200, Body: []byte(body)})
			}
		}(i)
	}
	wg.Wait()

	require.Equal(t, 200, agg.Count())
	require.Equal(t, 200, agg.Stats().HistoryHits)
}

func TestAggregatorSkipsErrorStatuses(t *testing.T) {
	agg, page := attachedAggregator(t)
	page.emit(Response{URL: "https://x/api/chat/history", Status: 502, Body: []byte(`[{"text":"hi"}]`)})
	require.Equal(t, 0, agg.Count())
}

func TestAggregatorCustomPatterns(t *testing.T) {
	page := &fakePage{}
	agg := NewAggregator([]string{"/conversation/"})
	require.NoError(t, agg.Attach(page))

	page.emit(Response{URL: "https://x/api/conversation/42", Status: 200, Body: []byte(`[{"text":"hi"}]`)})
	page.emit(Response{URL: "https://x/api/chat/history", Status: 200, Body: []byte(`[{"text":"no"}]`)})

	require.Equal(t, 1, agg.Count())
}

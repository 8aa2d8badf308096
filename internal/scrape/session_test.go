package scrape

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

var errBoom = errors.New("boom")

const historyBody = `{"turns":[
	{"uuid":"t1","text":"Hi","author":{"is_human":true}},
	{"uuid":"t2","text":"Hey there","author":{"name":"Mira"}}
]}`

func TestScrapeChatNetworkPath(t *testing.T) {
	page := &fakePage{}
	probes := 0
	emitted := false
	page.scriptFn = func(js string, out any) error {
		switch v := out.(type) {
		case *domProbe:
			probes++
			v.Selector = "[class*='message']"
			v.Count = probes
			if !emitted {
				emitted = true
				page.emit(Response{
					URL:    "https://example.com/api/chat/history?cursor=0",
					Status: 200,
					MIME:   "application/json",
					Body:   []byte(historyBody),
				})
			}
		case *string:
			*v = "complete"
		}
		return nil
	}

	opts := testDriverOptions()
	opts.MaxCycles = 4
	s := New(page, Options{Driver: opts})

	res, err := s.ScrapeChat(context.Background(), "https://example.com/chat/abc", ExtractOptions{})
	require.NoError(t, err)
	require.NoError(t, uuid.Validate(res.SessionID))
	require.Equal(t, "https://example.com/chat/abc", res.URL)
	require.False(t, res.FinishedAt.Before(res.StartedAt))

	require.False(t, res.Empty())
	require.Len(t, res.Messages, 2)
	require.Equal(t, RoleViewer, res.Messages[0].Role)
	require.Equal(t, "Hi", res.Messages[0].Text)
	require.Equal(t, RoleCharacter, res.Messages[1].Role)
	require.Equal(t, "Hey there", res.Messages[1].Text)

	require.Equal(t, "network", res.Diagnostics.Source)
	require.Equal(t, 1, res.Capture.HistoryHits)
	require.NotNil(t, res.Drive)
	require.Equal(t, "cycle-cap", res.Drive.StoppedBy)
	require.Equal(t, 2, res.Drive.FinalInterceptedCount)

	require.Equal(t, []string{"https://example.com/chat/abc"}, page.navCalls)
	require.Equal(t, 1, page.stopCalls, "interceptor must detach when the session ends")
	require.Equal(t, 2, s.InterceptedCount())
}

func TestScrapeChatClearsBufferBetweenSessions(t *testing.T) {
	page := &fakePage{}
	emitted := false
	page.scriptFn = func(js string, out any) error {
		if _, ok := out.(*domProbe); ok && !emitted {
			emitted = true
			page.emit(Response{
				URL:    "https://example.com/api/chat/history",
				Status: 200,
				MIME:   "application/json",
				Body:   []byte(historyBody),
			})
		}
		if s, ok := out.(*string); ok {
			*s = "complete"
		}
		return nil
	}

	opts := testDriverOptions()
	opts.MaxCycles = 3
	s := New(page, Options{Driver: opts})

	first, err := s.ScrapeChat(context.Background(), "https://example.com/chat/abc", ExtractOptions{})
	require.NoError(t, err)
	require.Len(t, first.Messages, 2)

	// Nothing arrives in the second session; its result must not carry
	// the first session's records.
	second, err := s.ScrapeChat(context.Background(), "https://example.com/chat/def", ExtractOptions{})
	require.NoError(t, err)
	require.True(t, second.Empty())
	require.Equal(t, "dom", second.Diagnostics.Source)
	require.Zero(t, second.Capture.HistoryHits)
}

func TestScrapeChatNavigationFailurePropagates(t *testing.T) {
	page := &fakePage{navErrs: []error{errBoom, errBoom}}
	s := New(page, Options{Driver: testDriverOptions()})

	_, err := s.ScrapeChat(context.Background(), "https://example.com/chat/abc", ExtractOptions{})
	var navErr *NavigationError
	require.ErrorAs(t, err, &navErr)
	require.Equal(t, "https://example.com/chat/abc", navErr.URL)
	require.Equal(t, 1, page.stopCalls, "interceptor must detach even on failure")
}

func TestScrapeChatNilPage(t *testing.T) {
	s := New(nil, Options{})
	_, err := s.ScrapeChat(context.Background(), "https://example.com/chat/abc", ExtractOptions{})
	require.ErrorIs(t, err, ErrNoPage)
}

func TestScrapeChatSubscribeFailure(t *testing.T) {
	page := &fakePage{subscribeErr: errBoom}
	s := New(page, Options{Driver: testDriverOptions()})

	_, err := s.ScrapeChat(context.Background(), "https://example.com/chat/abc", ExtractOptions{})
	require.ErrorIs(t, err, errBoom)
	require.Empty(t, page.navCalls, "no navigation without an interceptor")
}

func TestScrapeChatInterventionDeclineStopsCleanly(t *testing.T) {
	page := &fakePage{scriptFn: staticProbe(2)}
	s := New(page, Options{Driver: testDriverOptions()})

	calls := 0
	s.RegisterManualInterventionHandler(func() bool {
		calls++
		return false
	})

	res, err := s.ScrapeChat(context.Background(), "https://example.com/chat/abc", ExtractOptions{})
	require.NoError(t, err)
	require.Equal(t, 1, calls)
	require.Equal(t, "declined", res.Drive.StoppedBy)
}

func TestHydrateCharactersCollectsPerURLResults(t *testing.T) {
	page := &fakePage{}
	emitted := false
	page.scriptFn = func(js string, out any) error {
		if s, ok := out.(*string); ok {
			*s = "complete"
			if !emitted {
				emitted = true
				page.emit(Response{
					URL:    "https://example.com/api/character_info?id=7",
					Status: 200,
					MIME:   "application/json",
					Body:   []byte(`{"name":"Mira","description":"pilot"}`),
				})
			}
		}
		return nil
	}

	s := New(page, Options{Driver: testDriverOptions()})
	out, err := s.HydrateCharacters(context.Background(), []string{
		"https://example.com/chat/abc",
		"https://example.com/chat/def",
	})
	require.NoError(t, err)
	require.Len(t, out, 2)

	require.NoError(t, out[0].Err)
	require.Equal(t, "Mira", out[0].Meta["name"])

	// No metadata arrived for the second URL and the first URL's capture
	// must not leak into it.
	require.Error(t, out[1].Err)
	require.Nil(t, out[1].Meta)

	require.Equal(t, 1, page.stopCalls)
}

func TestHydrateCharactersNavFailureContinues(t *testing.T) {
	page := &fakePage{navErrs: []error{errBoom, errBoom}}
	page.scriptFn = func(js string, out any) error {
		if s, ok := out.(*string); ok {
			*s = "complete"
		}
		return nil
	}

	s := New(page, Options{Driver: testDriverOptions()})
	out, err := s.HydrateCharacters(context.Background(), []string{
		"https://example.com/chat/abc",
		"https://example.com/chat/def",
	})
	require.NoError(t, err)
	require.Len(t, out, 2)

	var navErr *NavigationError
	require.ErrorAs(t, out[0].Err, &navErr)
	// Second URL still got its pass.
	require.Len(t, page.navCalls, 3)
}

func TestHydrateCharactersStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	page := &fakePage{}
	stateProbes := 0
	page.scriptFn = func(js string, out any) error {
		if s, ok := out.(*string); ok {
			*s = "complete"
			stateProbes++
			if stateProbes == 2 {
				cancel() // mid-second-URL: its result must not be appended
			}
		}
		return nil
	}

	s := New(page, Options{Driver: testDriverOptions()})
	out, err := s.HydrateCharacters(ctx, []string{
		"https://example.com/chat/abc",
		"https://example.com/chat/def",
	})
	require.ErrorIs(t, err, context.Canceled)
	require.Len(t, out, 1)
}

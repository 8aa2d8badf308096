package diagnose

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"scrollback/internal/scrape"
)

// stubPage scripts just enough of the page capability for checks.
type stubPage struct {
	url      string
	scriptFn func(js string, out any) error
	queryFn  func(selector string) (int, error)
}

func (s *stubPage) Navigate(ctx context.Context, url string) error { return nil }

func (s *stubPage) RunScript(ctx context.Context, js string, out any) error {
	if s.scriptFn != nil {
		return s.scriptFn(js, out)
	}
	return nil
}

func (s *stubPage) Wait(ctx context.Context, d time.Duration) error { return nil }

func (s *stubPage) SimulateWheel(ctx context.Context, dx, dy float64) error { return nil }

func (s *stubPage) SimulateKey(ctx context.Context, key string) error { return nil }

func (s *stubPage) MoveMouse(ctx context.Context, x, y float64) error { return nil }

func (s *stubPage) SubscribeResponses(h func(scrape.Response)) (func(), error) {
	return func() {}, nil
}

func (s *stubPage) QueryAll(ctx context.Context, selector string) (int, error) {
	if s.queryFn != nil {
		return s.queryFn(selector)
	}
	return 1, nil
}

func (s *stubPage) CurrentURL() string { return s.url }

func (s *stubPage) HTML(ctx context.Context) (string, error) { return "", nil }

// healthyPage answers every probe the default registry issues.
func healthyPage() *stubPage {
	return &stubPage{
		url: "https://example.com/chat/abc123",
		scriptFn: func(js string, out any) error {
			switch {
			case strings.Contains(js, "querySelectorAll(sel)"):
				return json.Unmarshal([]byte(`{"selector":"[class*='message']","count":7}`), out)
			case strings.Contains(js, "scrollHeight"):
				return json.Unmarshal([]byte(`{"found":true,"moved":true,"range":2400}`), out)
			default:
				return json.Unmarshal([]byte(`true`), out)
			}
		},
	}
}

func tally(t *testing.T, r *Report) {
	t.Helper()
	var got Summary
	for _, c := range r.Checks {
		switch c.Status {
		case StatusPass:
			got.Pass++
		case StatusWarn:
			got.Warn++
		case StatusFail:
			got.Fail++
		case StatusInfo:
			got.Info++
		}
	}
	require.Equal(t, got, r.Summary, "summary must equal the status tally")
}

func TestPipelineHealthyPage(t *testing.T) {
	env := &Context{Page: healthyPage(), Intercepted: func() int { return 3 }}
	report := NewPipeline().Run(context.Background(), env)

	require.Len(t, report.Checks, 8)
	require.Equal(t, Summary{Pass: 8}, report.Summary)
	tally(t, report)

	require.Equal(t, "https://example.com/chat/abc123", report.URL)
	require.False(t, report.FinishedAt.Before(report.StartedAt))
	require.GreaterOrEqual(t, report.DurationMs, int64(0))
	for _, c := range report.Checks {
		require.False(t, c.Timestamp.IsZero())
		require.NotEmpty(t, c.Message)
	}
}

func TestPipelineNoPage(t *testing.T) {
	report := NewPipeline().Run(context.Background(), &Context{})

	require.Len(t, report.Checks, 8)
	require.Equal(t, Summary{Fail: 7, Info: 1}, report.Summary)
	tally(t, report)
	require.Empty(t, report.URL)
}

func TestPipelineEmptyRegistry(t *testing.T) {
	report := (&Pipeline{}).Run(context.Background(), &Context{})

	require.Empty(t, report.Checks)
	require.Equal(t, Summary{}, report.Summary)
	tally(t, report)
}

func TestPipelinePanicBecomesFail(t *testing.T) {
	p := &Pipeline{}
	p.Register(Check{"exploder", "Exploder", func(ctx context.Context, env *Context) (Status, string, map[string]any) {
		panic("boom")
	}})
	p.Register(Check{"steady", "Steady", func(ctx context.Context, env *Context) (Status, string, map[string]any) {
		return StatusPass, "fine", nil
	}})

	report := p.Run(context.Background(), &Context{})
	require.Len(t, report.Checks, 2)
	require.Equal(t, StatusFail, report.Checks[0].Status)
	require.Contains(t, report.Checks[0].Message, "panicked")
	require.Equal(t, StatusPass, report.Checks[1].Status, "a panic must not abort the rest of the pipeline")
	require.Equal(t, Summary{Pass: 1, Fail: 1}, report.Summary)
	tally(t, report)
}

func TestRunSingle(t *testing.T) {
	p := NewPipeline()
	env := &Context{Page: healthyPage()}

	res := p.RunSingle(context.Background(), env, "scroll-capability")
	require.NotNil(t, res)
	require.Equal(t, StatusPass, res.Status)
	require.Equal(t, true, res.Details["moved"])

	require.Nil(t, p.RunSingle(context.Background(), env, "no-such-check"))
}

func TestCaptureActivityZeroIsInfo(t *testing.T) {
	p := NewPipeline()
	env := &Context{Page: healthyPage(), Intercepted: func() int { return 0 }}

	res := p.RunSingle(context.Background(), env, "network-capture-activity")
	require.NotNil(t, res)
	require.Equal(t, StatusInfo, res.Status)
}

func TestURLShapeWarnsOffConversation(t *testing.T) {
	p := NewPipeline()
	env := &Context{Page: &stubPage{url: "https://example.com/settings"}}

	res := p.RunSingle(context.Background(), env, "active-url-shape")
	require.NotNil(t, res)
	require.Equal(t, StatusWarn, res.Status)
}

func TestLandmarkQueryFailureIsFail(t *testing.T) {
	p := NewPipeline()
	page := healthyPage()
	page.queryFn = func(selector string) (int, error) { return 0, context.DeadlineExceeded }
	env := &Context{Page: page}

	res := p.RunSingle(context.Background(), env, "landmark-sidebar")
	require.NotNil(t, res)
	require.Equal(t, StatusFail, res.Status)
}

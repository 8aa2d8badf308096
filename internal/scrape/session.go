package scrape

import (
	"context"
	"fmt"
	neturl "net/url"
	"time"

	"github.com/google/uuid"

	"scrollback/internal/logging"
)

// Options configure a Scraper. Zero values fall back to production
// defaults.
type Options struct {
	// HistoryPatterns are case-insensitive URL substrings that mark
	// message-history responses.
	HistoryPatterns []string
	// Driver tunes the scroll loop.
	Driver DriverOptions
	// MaxTextRunes overrides the normalizer's clip length when > 0.
	MaxTextRunes int
}

// Scraper runs full capture sessions against a single page: stabilize,
// scroll, intercept, extract. One Scraper drives one page.
type Scraper struct {
	page Page
	agg  *Aggregator
	ext  *Extractor
	stab *Stabilizer

	driverOpts     DriverOptions
	onIntervention func() bool
}

// New returns a Scraper over the given page.
func New(page Page, opts Options) *Scraper {
	if opts.Driver == (DriverOptions{}) {
		opts.Driver = DefaultDriverOptions()
	}
	ext := NewExtractor()
	if opts.MaxTextRunes > 0 {
		ext.norm.MaxRunes = opts.MaxTextRunes
	}
	return &Scraper{
		page:       page,
		agg:        NewAggregator(opts.HistoryPatterns),
		ext:        ext,
		stab:       NewStabilizer(page),
		driverOpts: opts.Driver,
	}
}

// RegisterManualInterventionHandler installs the callback invoked when
// automated scrolling stalls hard. The handler blocks the session while
// the operator intervenes; returning true resumes, false stops with
// whatever was captured.
func (s *Scraper) RegisterManualInterventionHandler(fn func() bool) {
	s.onIntervention = fn
}

// Aggregator exposes the capture buffer for diagnostics wiring.
func (s *Scraper) Aggregator() *Aggregator {
	return s.agg
}

// InterceptedCount reports how many history records the current buffer
// holds.
func (s *Scraper) InterceptedCount() int {
	return s.agg.Count()
}

// Result is the outcome of one capture session.
type Result struct {
	SessionID     string           `json:"session_id"`
	URL           string           `json:"url"`
	StartedAt     time.Time        `json:"started_at"`
	FinishedAt    time.Time        `json:"finished_at"`
	Messages      []ScrapedMessage `json:"messages"`
	Diagnostics   Diagnostics      `json:"diagnostics"`
	Drive         *DriveResult     `json:"drive,omitempty"`
	Capture       CaptureStats     `json:"capture"`
	CharacterMeta map[string]any   `json:"character_meta,omitempty"`
}

// Empty reports whether the session produced no messages. An empty
// transcript is a valid outcome, not an error.
func (r *Result) Empty() bool {
	return len(r.Messages) == 0
}

// ScrapeChat captures the full transcript at url. The capture buffer is
// cleared at session start so stale records from a prior conversation
// can never leak into this one.
func (s *Scraper) ScrapeChat(ctx context.Context, url string, opts ExtractOptions) (*Result, error) {
	if s.page == nil {
		return nil, ErrNoPage
	}

	sessionID := uuid.NewString()
	started := time.Now()
	logging.Session("session %s: scraping %s", sessionID, url)

	s.agg.Reset()
	if err := s.agg.Attach(s.page); err != nil {
		return nil, fmt.Errorf("attach interceptor: %w", err)
	}
	defer s.agg.Detach()

	if err := s.stab.Prepare(ctx, url); err != nil {
		return nil, err
	}

	driver := NewDriver(s.page, s.agg, s.driverOpts)
	driver.OnIntervention(s.onIntervention)
	drive, err := driver.Run(ctx)
	if err != nil {
		return nil, err
	}

	messages, diags, err := s.ext.Extract(ctx, s.agg.Records(), s.page, opts)
	if err != nil {
		return nil, err
	}

	res := &Result{
		SessionID:     sessionID,
		URL:           url,
		StartedAt:     started,
		FinishedAt:    time.Now(),
		Messages:      messages,
		Diagnostics:   diags,
		Drive:         drive,
		Capture:       s.agg.Stats(),
		CharacterMeta: s.agg.CharacterMeta(),
	}
	if res.Empty() {
		logging.SessionWarn("session %s: finished empty via %s after %d cycles",
			sessionID, diags.Source, drive.Cycles)
	} else {
		logging.Session("session %s: %d messages via %s after %d cycles",
			sessionID, len(messages), diags.Source, drive.Cycles)
	}
	return res, nil
}

// Prepare navigates to url and settles the page without starting a
// capture session. Sidebar scans and metadata passes use it before
// reading the live DOM.
func (s *Scraper) Prepare(ctx context.Context, url string) error {
	if s.page == nil {
		return ErrNoPage
	}
	return s.stab.Prepare(ctx, url)
}

// ScanSidebar reads the live DOM for conversation links. Relative hrefs
// resolve against the page's current location.
func (s *Scraper) ScanSidebar(ctx context.Context) ([]CharacterSummary, error) {
	if s.page == nil {
		return nil, ErrNoPage
	}
	src, err := s.page.HTML(ctx)
	if err != nil {
		return nil, fmt.Errorf("read page html: %w", err)
	}
	entries, err := parseSidebar(src)
	if err != nil {
		return nil, fmt.Errorf("parse sidebar: %w", err)
	}
	if base, err := neturl.Parse(s.page.CurrentURL()); err == nil && base.IsAbs() {
		for i := range entries {
			if ref, err := neturl.Parse(entries[i].URL); err == nil {
				entries[i].URL = base.ResolveReference(ref).String()
			}
		}
	}
	logging.Session("sidebar scan found %d conversations", len(entries))
	return entries, nil
}

// HydrationResult is the per-URL outcome of a bulk metadata pass.
type HydrationResult struct {
	URL  string         `json:"url"`
	Meta map[string]any `json:"meta,omitempty"`
	Err  error          `json:"-"`
}

// HydrateCharacters visits each URL in turn and captures the character
// metadata its load traffic carries. Individual failures are collected
// per URL rather than aborting the batch; only cancellation stops it.
func (s *Scraper) HydrateCharacters(ctx context.Context, urls []string) ([]HydrationResult, error) {
	if s.page == nil {
		return nil, ErrNoPage
	}
	if err := s.agg.Attach(s.page); err != nil {
		return nil, fmt.Errorf("attach interceptor: %w", err)
	}
	defer s.agg.Detach()

	out := make([]HydrationResult, 0, len(urls))
	for _, u := range urls {
		if err := ctx.Err(); err != nil {
			return out, err
		}

		s.agg.Reset()
		hr := HydrationResult{URL: u}
		if err := s.stab.Prepare(ctx, u); err != nil {
			hr.Err = err
			logging.SessionWarn("hydrate %s: %v", u, err)
			out = append(out, hr)
			continue
		}
		if err := s.page.Wait(ctx, s.driverOpts.SettleMin); err != nil {
			return out, err
		}

		hr.Meta = s.agg.CharacterMeta()
		if hr.Meta == nil {
			hr.Err = fmt.Errorf("no character metadata captured for %s", u)
			logging.SessionWarn("hydrate %s: no metadata in load traffic", u)
		}
		out = append(out, hr)
	}
	return out, nil
}

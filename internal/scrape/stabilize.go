package scrape

import (
	"context"
	"time"

	"scrollback/internal/logging"
)

// focusInputJS focuses the primary input region and reports whether one
// was found.
const focusInputJS = `() => {
	const picks = ['textarea', '[contenteditable="true"]', 'input[type="text"]'];
	for (const sel of picks) {
		const el = document.querySelector(sel);
		if (el) {
			try { el.focus(); } catch (e) {}
			return true;
		}
	}
	return false;
}`

const readyStateJS = `() => document.readyState`

// Stabilizer settles a freshly navigated page: hydration wait, overlay
// dismissal, input focal point. Everything after navigation is
// best-effort and must not abort the scrape.
type Stabilizer struct {
	page Page

	// Settle is the fixed post-load interval.
	Settle time.Duration
	// KeyGap separates the two cancel-key presses.
	KeyGap time.Duration
}

// NewStabilizer returns a Stabilizer with default intervals.
func NewStabilizer(page Page) *Stabilizer {
	return &Stabilizer{
		page:   page,
		Settle: 2 * time.Second,
		KeyGap: 250 * time.Millisecond,
	}
}

// Prepare navigates to the URL and settles the page. Navigation gets
// exactly one reload retry before a NavigationError propagates.
func (s *Stabilizer) Prepare(ctx context.Context, url string) error {
	if s.page == nil {
		return ErrNoPage
	}

	if err := s.page.Navigate(ctx, url); err != nil {
		logging.BrowserWarn("navigation to %s failed, retrying once: %v", url, err)
		if err := s.page.Navigate(ctx, url); err != nil {
			return &NavigationError{URL: url, Err: err}
		}
	}

	if err := s.page.Wait(ctx, s.Settle); err != nil {
		return err
	}
	s.waitHydrated(ctx)
	s.dismissOverlays(ctx)
	s.restoreFocalPoint(ctx)
	return nil
}

// waitHydrated polls document.readyState for a short window. A SPA may
// keep painting after "complete"; this only guards against evaluating
// against a blank document.
func (s *Stabilizer) waitHydrated(ctx context.Context) {
	for i := 0; i < 10; i++ {
		var state string
		if err := s.page.RunScript(ctx, readyStateJS, &state); err != nil {
			logging.BrowserDebug("readyState probe failed: %v", err)
			return
		}
		if state == "complete" || state == "interactive" {
			return
		}
		if err := s.page.Wait(ctx, 200*time.Millisecond); err != nil {
			return
		}
	}
}

// dismissOverlays fires two cancel-key presses to clear modal overlays.
func (s *Stabilizer) dismissOverlays(ctx context.Context) {
	for i := 0; i < 2; i++ {
		if err := s.page.SimulateKey(ctx, "Escape"); err != nil {
			logging.BrowserDebug("overlay dismiss press failed: %v", err)
		}
		if err := s.page.Wait(ctx, s.KeyGap); err != nil {
			return
		}
	}
}

// restoreFocalPoint focuses the primary input region so wheel events
// land inside the conversation pane, falling back to a raw pointer move.
func (s *Stabilizer) restoreFocalPoint(ctx context.Context) {
	var focused bool
	err := s.page.RunScript(ctx, focusInputJS, &focused)
	if err == nil && focused {
		return
	}
	if err != nil {
		logging.BrowserDebug("input focus failed: %v", err)
	}
	if err := s.page.MoveMouse(ctx, 640, 400); err != nil {
		logging.BrowserDebug("pointer move failed: %v", err)
	}
}

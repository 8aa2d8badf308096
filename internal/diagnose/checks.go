package diagnose

import (
	"context"
	"fmt"
	neturl "net/url"
	"strings"

	"scrollback/internal/scrape"
)

const alivenessJS = `() => true`

func checkBrowserConnected(ctx context.Context, env *Context) (Status, string, map[string]any) {
	if env == nil || env.Page == nil {
		return StatusFail, "no live page (browser not launched)", nil
	}
	var ok bool
	if err := env.Page.RunScript(ctx, alivenessJS, &ok); err != nil {
		return StatusFail, fmt.Sprintf("page unresponsive: %v", err), nil
	}
	return StatusPass, "page responds to script evaluation", nil
}

func checkActiveURLShape(ctx context.Context, env *Context) (Status, string, map[string]any) {
	if env == nil || env.Page == nil {
		return StatusFail, "no live page", nil
	}
	raw := env.Page.CurrentURL()
	if raw == "" {
		return StatusWarn, "page reports no URL", nil
	}
	u, err := neturl.Parse(raw)
	if err != nil || !u.IsAbs() {
		return StatusFail, fmt.Sprintf("unparseable location %q", raw), nil
	}
	details := map[string]any{"url": raw}
	lower := strings.ToLower(u.Path)
	for _, marker := range scrape.ChatURLMarkers() {
		if strings.Contains(lower, marker) {
			return StatusPass, "location looks like a conversation", details
		}
	}
	return StatusWarn, "location does not look like a conversation", details
}

// landmarkCheck builds a presence check over one selector group.
func landmarkCheck(selector string) func(ctx context.Context, env *Context) (Status, string, map[string]any) {
	return func(ctx context.Context, env *Context) (Status, string, map[string]any) {
		if env == nil || env.Page == nil {
			return StatusFail, "no live page", nil
		}
		n, err := env.Page.QueryAll(ctx, selector)
		if err != nil {
			return StatusFail, fmt.Sprintf("query failed: %v", err), nil
		}
		details := map[string]any{"selector": selector, "count": n}
		if n == 0 {
			return StatusWarn, "landmark not found", details
		}
		return StatusPass, fmt.Sprintf("%d matching element(s)", n), details
	}
}

func checkMessageCount(ctx context.Context, env *Context) (Status, string, map[string]any) {
	if env == nil || env.Page == nil {
		return StatusFail, "no live page", nil
	}
	sel, count, err := scrape.ProbeMessages(ctx, env.Page)
	if err != nil {
		return StatusFail, fmt.Sprintf("message probe failed: %v", err), nil
	}
	if count == 0 {
		return StatusWarn, "no message nodes detected", nil
	}
	return StatusPass, fmt.Sprintf("%d message nodes via %s", count, sel),
		map[string]any{"selector": sel, "count": count}
}

func checkScrollCapability(ctx context.Context, env *Context) (Status, string, map[string]any) {
	if env == nil || env.Page == nil {
		return StatusFail, "no live page", nil
	}
	probe, err := scrape.ProbeScroll(ctx, env.Page)
	if err != nil {
		return StatusFail, fmt.Sprintf("scroll probe failed: %v", err), nil
	}
	details := map[string]any{"found": probe.Found, "moved": probe.Moved, "range": probe.Range}
	switch {
	case !probe.Found:
		return StatusWarn, "no scrollable container located", details
	case !probe.Moved:
		return StatusWarn, "scroll container found but offset would not move", details
	default:
		return StatusPass, "scroll container nudges and restores", details
	}
}

func checkCaptureActivity(ctx context.Context, env *Context) (Status, string, map[string]any) {
	if env == nil || env.Intercepted == nil {
		return StatusInfo, "no capture buffer wired", nil
	}
	n := env.Intercepted()
	details := map[string]any{"records": n}
	if n == 0 {
		return StatusInfo, "no intercepted records yet", details
	}
	return StatusPass, fmt.Sprintf("%d intercepted records buffered", n), details
}

package scrape

import (
	"context"
	"encoding/json"
	"fmt"
)

// probeMessagesJS counts message nodes; the first ranked selector with
// any matches wins.
var probeMessagesJS = buildProbeMessagesJS()

func buildProbeMessagesJS() string {
	sels, _ := json.Marshal(messageCandidates)
	return fmt.Sprintf(`() => {
	const sels = %s;
	for (const sel of sels) {
		const n = document.querySelectorAll(sel).length;
		if (n > 0) return { selector: sel, count: n };
	}
	return { selector: "", count: 0 };
}`, sels)
}

type domProbe struct {
	Selector string `json:"selector"`
	Count    int    `json:"count"`
}

// ProbeMessages returns the winning message selector and its node
// count, or ("", 0) when nothing matches.
func ProbeMessages(ctx context.Context, page Page) (string, int, error) {
	if page == nil {
		return "", 0, ErrNoPage
	}
	var probe domProbe
	if err := page.RunScript(ctx, probeMessagesJS, &probe); err != nil {
		return "", 0, err
	}
	return probe.Selector, probe.Count, nil
}

// scrollProbeJS nudges the largest-scroll-range element and restores it,
// reporting whether the offset actually moved.
const scrollProbeJS = `() => {
	const all = [document.scrollingElement || document.documentElement, ...document.querySelectorAll('*')];
	let best = null, bestRange = 0;
	for (const el of all) {
		const range = el.scrollHeight - el.clientHeight;
		if (range > bestRange) { best = el; bestRange = range; }
	}
	if (!best || bestRange <= 0) return { found: false, moved: false, range: 0 };
	const before = best.scrollTop;
	best.scrollTop = before > 0 ? before - 10 : before + 10;
	const after = best.scrollTop;
	best.scrollTop = before;
	return { found: true, moved: after !== before, range: bestRange };
}`

// ScrollProbe reports whether a usable scroll container exists.
type ScrollProbe struct {
	Found bool    `json:"found"`
	Moved bool    `json:"moved"`
	Range float64 `json:"range"`
}

// ProbeScroll locates the most plausible scrollable element, nudges its
// offset, confirms the nudge took, and restores the original offset.
func ProbeScroll(ctx context.Context, page Page) (*ScrollProbe, error) {
	if page == nil {
		return nil, ErrNoPage
	}
	var probe ScrollProbe
	if err := page.RunScript(ctx, scrollProbeJS, &probe); err != nil {
		return nil, err
	}
	return &probe, nil
}

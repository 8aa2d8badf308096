package scrape

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"time"

	"scrollback/internal/logging"
)

// backupScrollJS is the in-page fallback for the wheel gesture: walk the
// scroll-capable candidates top-down and pull the first one that has
// room upward by two viewport heights.
const backupScrollJS = `() => {
	const cands = [document.scrollingElement, document.documentElement, document.body,
		...document.querySelectorAll("main, [class*='chat'], [class*='scroll'], [class*='messages'], [class*='conversation']")];
	for (const el of cands) {
		if (!el) continue;
		if (el.scrollHeight - el.clientHeight > 0 && el.scrollTop > 0) {
			el.scrollTop = Math.max(0, el.scrollTop - el.clientHeight * 2);
			return true;
		}
	}
	return false;
}`

// aggressiveRevealJS forces the largest-scroll-range element toward its
// top: jump near the top first, then smooth-scroll the rest, then fire a
// synthetic scroll event for listeners that key off it.
const aggressiveRevealJS = `() => {
	const all = [document.scrollingElement || document.documentElement, ...document.querySelectorAll('*')];
	let best = null, bestRange = 0;
	for (const el of all) {
		const range = el.scrollHeight - el.clientHeight;
		if (range > bestRange) { best = el; bestRange = range; }
	}
	if (!best || bestRange <= 0) return false;
	best.scrollTop = Math.min(200, Math.floor(bestRange * 0.02));
	if (typeof best.scrollTo === 'function') {
		best.scrollTo({ top: 0, behavior: 'smooth' });
	} else {
		best.scrollTop = 0;
	}
	best.dispatchEvent(new Event('scroll', { bubbles: true }));
	return true;
}`

// recoverEarliestJS scrolls the first matched message node into view, a
// one-shot recovery when the automated loop never moved the DOM count.
var recoverEarliestJS = buildRecoverEarliestJS()

func buildRecoverEarliestJS() string {
	sels, _ := json.Marshal(messageCandidates)
	return fmt.Sprintf(`() => {
	const sels = %s;
	for (const sel of sels) {
		const nodes = document.querySelectorAll(sel);
		if (nodes.length > 0) {
			nodes[0].scrollIntoView({ block: 'start' });
			return true;
		}
	}
	return false;
}`, sels)
}

// DriverOptions tune the scroll loop. Tests shrink the intervals.
type DriverOptions struct {
	MaxCycles         int           // unconditional safety ceiling
	SettleMin         time.Duration // per-cycle settle lower bound
	SettleMax         time.Duration // per-cycle settle upper bound
	AggressiveSettle  time.Duration // extended settle after aggressive reveal
	AggressiveAfter   int           // stalled cycles before the aggressive tier
	InterventionAfter int           // stalled cycles before the manual tier
	LowConfidenceMin  int           // intercepted records below this = low confidence
	LowConfidenceWait time.Duration // post-loop manual-scroll grace window
	WheelDelta        float64       // wheel burst magnitude in pixels
}

// DefaultDriverOptions returns production tuning.
func DefaultDriverOptions() DriverOptions {
	return DriverOptions{
		MaxCycles:         60,
		SettleMin:         2 * time.Second,
		SettleMax:         3 * time.Second,
		AggressiveSettle:  3500 * time.Millisecond,
		AggressiveAfter:   2,
		InterventionAfter: 5,
		LowConfidenceMin:  5,
		LowConfidenceWait: 30 * time.Second,
		WheelDelta:        800,
	}
}

// progressState tracks one scrape call's scroll progress. Discarded on
// return.
type progressState struct {
	lastMessageCount     int
	lastInterceptedCount int
	noProgressCount      int
	cycle                int
}

// DriveResult summarizes one scroll loop.
type DriveResult struct {
	Cycles                int    `json:"cycles"`
	InitialDOMCount       int    `json:"initial_dom_count"`
	FinalDOMCount         int    `json:"final_dom_count"`
	FinalInterceptedCount int    `json:"final_intercepted_count"`
	Selector              string `json:"selector,omitempty"`
	StoppedBy             string `json:"stopped_by"` // cycle-cap, stagnation, declined
	AggressivePasses      int    `json:"aggressive_passes"`
	RecoveryAttempted     bool   `json:"recovery_attempted"`
	GraceApplied          bool   `json:"grace_applied"`
}

// Driver provokes the page into revealing older history until progress
// stops. Stagnation never errors; the loop degrades to partial results.
type Driver struct {
	page Page
	agg  *Aggregator
	opts DriverOptions

	onIntervention func() bool
	rnd            *rand.Rand
}

// NewDriver returns a Driver over the given page and aggregator.
func NewDriver(page Page, agg *Aggregator, opts DriverOptions) *Driver {
	return &Driver{
		page: page,
		agg:  agg,
		opts: opts,
		rnd:  rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// OnIntervention registers the manual-intervention callback. It blocks
// the loop while the operator decides; true resumes, false stops with
// partial results.
func (d *Driver) OnIntervention(fn func() bool) {
	d.onIntervention = fn
}

// Run executes the scroll loop. The returned error is only ever a
// precondition or context failure; page-level hiccups degrade to logs.
func (d *Driver) Run(ctx context.Context) (*DriveResult, error) {
	if d.page == nil {
		return nil, ErrNoPage
	}

	timer := logging.StartTimer(logging.CategoryScrape, "scroll loop")
	defer timer.Stop()

	state := &progressState{}
	res := &DriveResult{StoppedBy: "cycle-cap"}

	sel, count, err := ProbeMessages(ctx, d.page)
	if err != nil {
		logging.ScrapeWarn("initial message probe failed: %v", err)
	}
	state.lastMessageCount = count
	state.lastInterceptedCount = d.agg.Count()
	res.InitialDOMCount = count
	res.Selector = sel
	logging.Scrape("scroll loop starting: dom=%d intercepted=%d", count, state.lastInterceptedCount)

	for state.cycle = 0; state.cycle < d.opts.MaxCycles; state.cycle++ {
		if err := ctx.Err(); err != nil {
			d.finish(state, res)
			return res, err
		}
		res.Cycles++

		if state.noProgressCount >= d.opts.InterventionAfter {
			if d.onIntervention == nil {
				logging.Scrape("stalled %d cycles with no intervention handler; stopping", state.noProgressCount)
				res.StoppedBy = "stagnation"
				break
			}
			logging.Scrape("stalled %d cycles; requesting manual intervention", state.noProgressCount)
			if d.onIntervention() {
				state.noProgressCount = 0
				logging.Scrape("manual intervention accepted; resuming")
			} else {
				logging.Scrape("manual intervention declined; stopping with partial results")
				res.StoppedBy = "declined"
				break
			}
		}

		if state.noProgressCount >= d.opts.AggressiveAfter {
			d.aggressiveReveal(ctx)
			res.AggressivePasses++
			if err := d.page.Wait(ctx, d.opts.AggressiveSettle); err != nil {
				d.finish(state, res)
				return res, err
			}
		}

		if err := d.page.SimulateWheel(ctx, 0, -d.opts.WheelDelta); err != nil {
			logging.ScrapeDebug("wheel gesture failed: %v", err)
		}
		if err := d.page.RunScript(ctx, backupScrollJS, nil); err != nil {
			logging.ScrapeDebug("backup scroll failed: %v", err)
		}

		if err := d.page.Wait(ctx, d.settleInterval()); err != nil {
			d.finish(state, res)
			return res, err
		}

		probeSel, domCount, err := ProbeMessages(ctx, d.page)
		if err != nil {
			logging.ScrapeWarn("message probe failed on cycle %d: %v", state.cycle, err)
			domCount = state.lastMessageCount
		}
		if probeSel != "" {
			res.Selector = probeSel
		}
		interceptCount := d.agg.Count()

		if domCount > state.lastMessageCount || interceptCount > state.lastInterceptedCount {
			logging.ScrapeDebug("cycle %d progress: dom %d->%d intercepted %d->%d",
				state.cycle, state.lastMessageCount, domCount, state.lastInterceptedCount, interceptCount)
			if domCount > state.lastMessageCount {
				state.lastMessageCount = domCount
			}
			if interceptCount > state.lastInterceptedCount {
				state.lastInterceptedCount = interceptCount
			}
			state.noProgressCount = 0
		} else {
			state.noProgressCount++
			logging.ScrapeDebug("cycle %d no progress (%d consecutive)", state.cycle, state.noProgressCount)
		}
	}

	d.finish(state, res)

	if state.lastMessageCount <= res.InitialDOMCount {
		res.RecoveryAttempted = true
		logging.Scrape("dom count never grew; attempting scroll-earliest recovery")
		var ok bool
		if err := d.page.RunScript(ctx, recoverEarliestJS, &ok); err != nil {
			logging.ScrapeDebug("recovery scroll failed: %v", err)
		} else if ok {
			if err := d.page.Wait(ctx, d.opts.SettleMin); err != nil {
				return res, err
			}
			if _, n, err := ProbeMessages(ctx, d.page); err == nil && n > res.FinalDOMCount {
				res.FinalDOMCount = n
			}
		}
	}

	if d.agg.Count() < d.opts.LowConfidenceMin && d.opts.LowConfidenceWait > 0 {
		res.GraceApplied = true
		logging.Scrape("only %d intercepted records; holding %s for manual scrolling",
			d.agg.Count(), d.opts.LowConfidenceWait)
		if err := d.page.Wait(ctx, d.opts.LowConfidenceWait); err != nil {
			return res, err
		}
		res.FinalInterceptedCount = d.agg.Count()
	}

	logging.Scrape("scroll loop done: cycles=%d dom=%d intercepted=%d stopped_by=%s",
		res.Cycles, res.FinalDOMCount, res.FinalInterceptedCount, res.StoppedBy)
	return res, nil
}

func (d *Driver) finish(state *progressState, res *DriveResult) {
	res.FinalDOMCount = state.lastMessageCount
	res.FinalInterceptedCount = state.lastInterceptedCount
}

// aggressiveReveal runs the forced-scroll pass. Does not touch the
// stall counter; only measured progress does.
func (d *Driver) aggressiveReveal(ctx context.Context) {
	var found bool
	if err := d.page.RunScript(ctx, aggressiveRevealJS, &found); err != nil {
		logging.ScrapeWarn("aggressive reveal failed: %v", err)
		return
	}
	if !found {
		logging.ScrapeDebug("aggressive reveal found no scrollable element")
	}
}

func (d *Driver) settleInterval() time.Duration {
	lo, hi := d.opts.SettleMin, d.opts.SettleMax
	if hi <= lo {
		return lo
	}
	return lo + time.Duration(d.rnd.Int63n(int64(hi-lo)))
}

// Package scrape recovers ordered chat transcripts from a virtualized
// single-page application. It drives a live browser page through a
// black-box capability interface: a stabilization pass settles the page,
// a scroll driver provokes the UI into revealing older history while a
// network aggregator captures structured message records off the wire,
// and a dual-path extractor reconciles the two sources into the final
// message list. Network records, when present, always win over DOM
// heuristics.
package scrape

import (
	"context"
	"time"
)

// Page is the browser page capability the scrape core drives. The real
// implementation lives in internal/browser; tests substitute fakes.
type Page interface {
	// Navigate loads the URL and returns once the document reaches a
	// minimal loaded state, or errors on timeout.
	Navigate(ctx context.Context, url string) error

	// RunScript evaluates a JS function expression ("() => ...") against
	// the live document and unmarshals the returned value into out.
	// A nil out discards the result.
	RunScript(ctx context.Context, js string, out any) error

	// Wait sleeps for d or until ctx is done, returning ctx.Err() in the
	// latter case.
	Wait(ctx context.Context, d time.Duration) error

	// SimulateWheel dispatches wheel motion at the current pointer
	// position. Negative deltaY scrolls toward older content.
	SimulateWheel(ctx context.Context, deltaX, deltaY float64) error

	// SimulateKey presses and releases a named key ("Escape", "Enter").
	SimulateKey(ctx context.Context, key string) error

	// MoveMouse moves the pointer to viewport coordinates.
	MoveMouse(ctx context.Context, x, y float64) error

	// SubscribeResponses registers a handler invoked once per network
	// response until the returned stop function is called.
	SubscribeResponses(handler func(Response)) (stop func(), err error)

	// QueryAll returns the number of nodes matching the selector.
	QueryAll(ctx context.Context, selector string) (int, error)

	// CurrentURL returns the page's current location, or "" if unknown.
	CurrentURL() string

	// HTML returns the full serialized document.
	HTML(ctx context.Context) (string, error)
}

// Response is one observed network response. Body is nil when the body
// could not be fetched; BodyErr then carries the fetch failure for the
// aggregator to classify.
type Response struct {
	URL     string
	Status  int
	MIME    string
	Body    []byte
	BodyErr error
}

package browser

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/proto"

	"scrollback/internal/logging"
	"scrollback/internal/scrape"
)

// keyMap names the keys callers may press.
var keyMap = map[string]input.Key{
	"Escape":    input.Escape,
	"Enter":     input.Enter,
	"Tab":       input.Tab,
	"Home":      input.Home,
	"End":       input.End,
	"PageUp":    input.PageUp,
	"PageDown":  input.PageDown,
	"ArrowUp":   input.ArrowUp,
	"ArrowDown": input.ArrowDown,
}

// Page adapts a rod page to the scrape.Page capability. One Page wraps
// one browser tab.
type Page struct {
	p   *rod.Page
	nav time.Duration
}

var _ scrape.Page = (*Page)(nil)

// Navigate loads the URL and waits for the document load event, bounded
// by the navigation timeout.
func (pg *Page) Navigate(ctx context.Context, url string) error {
	page := pg.p.Context(ctx).Timeout(pg.nav)
	if err := page.Navigate(url); err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	if err := page.WaitLoad(); err != nil {
		return fmt.Errorf("load %s: %w", url, err)
	}
	return nil
}

// RunScript evaluates a JS function expression and unmarshals its
// resolved value into out. A nil out discards the result.
func (pg *Page) RunScript(ctx context.Context, js string, out any) error {
	res, err := pg.p.Context(ctx).Evaluate(&rod.EvalOptions{
		JS:           js,
		ByValue:      true,
		AwaitPromise: true,
	})
	if err != nil {
		return fmt.Errorf("evaluate: %w", err)
	}
	if out == nil || res == nil || res.Value.Nil() {
		return nil
	}
	raw, err := res.Value.MarshalJSON()
	if err != nil {
		return fmt.Errorf("read eval result: %w", err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode eval result: %w", err)
	}
	return nil
}

// Wait sleeps for d or until ctx is done.
func (pg *Page) Wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// SimulateWheel dispatches wheel motion at the current pointer position.
func (pg *Page) SimulateWheel(ctx context.Context, deltaX, deltaY float64) error {
	return pg.p.Context(ctx).Mouse.Scroll(deltaX, deltaY, 1)
}

// SimulateKey presses and releases a named key.
func (pg *Page) SimulateKey(ctx context.Context, key string) error {
	k, ok := keyMap[key]
	if !ok {
		return fmt.Errorf("unknown key %q", key)
	}
	return pg.p.Context(ctx).Keyboard.Press(k)
}

// MoveMouse moves the pointer to viewport coordinates.
func (pg *Page) MoveMouse(ctx context.Context, x, y float64) error {
	return pg.p.Context(ctx).Mouse.MoveTo(proto.Point{X: x, Y: y})
}

// SubscribeResponses streams every network response, body included, to
// the handler until the returned stop function is called. Body fetch
// failures are forwarded for the caller to classify; they are expected
// for short-lived resources.
func (pg *Page) SubscribeResponses(handler func(scrape.Response)) (func(), error) {
	if err := (proto.NetworkEnable{}).Call(pg.p); err != nil {
		return nil, fmt.Errorf("enable network events: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	page := pg.p.Context(ctx)
	wait := page.EachEvent(func(ev *proto.NetworkResponseReceived) {
		if ev.Response == nil {
			return
		}
		resp := scrape.Response{
			URL:    ev.Response.URL,
			Status: ev.Response.Status,
			MIME:   ev.Response.MIMEType,
		}
		body, err := proto.NetworkGetResponseBody{RequestID: ev.RequestID}.Call(page)
		switch {
		case err != nil:
			resp.BodyErr = err
		case body.Base64Encoded:
			decoded, derr := base64.StdEncoding.DecodeString(body.Body)
			if derr != nil {
				resp.BodyErr = fmt.Errorf("decode body: %w", derr)
			} else {
				resp.Body = decoded
			}
		default:
			resp.Body = []byte(body.Body)
		}
		handler(resp)
	})
	go wait()
	logging.BrowserDebug("response stream attached")

	return func() {
		cancel()
		logging.BrowserDebug("response stream detached")
	}, nil
}

// QueryAll returns the number of nodes matching the selector.
func (pg *Page) QueryAll(ctx context.Context, selector string) (int, error) {
	els, err := pg.p.Context(ctx).Elements(selector)
	if err != nil {
		return 0, fmt.Errorf("query %q: %w", selector, err)
	}
	return len(els), nil
}

// CurrentURL returns the page's location, or "" when unavailable.
func (pg *Page) CurrentURL() string {
	info, err := pg.p.Info()
	if err != nil {
		return ""
	}
	return info.URL
}

// HTML returns the serialized document.
func (pg *Page) HTML(ctx context.Context) (string, error) {
	return pg.p.Context(ctx).HTML()
}

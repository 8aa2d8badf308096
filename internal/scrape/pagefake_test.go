package scrape

import (
	"context"
	"strings"
	"sync"
	"time"
)

// fakePage scripts the page capability for tests. Waits do not sleep.
type fakePage struct {
	mu sync.Mutex

	navCalls []string
	navErrs  []error // popped per Navigate call; nil entry = success

	scripts  []string
	scriptFn func(js string, out any) error

	wheelCalls int
	keyCalls   []string
	moveCalls  int
	waits      []time.Duration

	handler      func(Response)
	subscribeErr error
	stopCalls    int

	queryFn func(selector string) (int, error)
	url     string
	html    string
	htmlErr error
}

func (f *fakePage) Navigate(ctx context.Context, url string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.navCalls = append(f.navCalls, url)
	if len(f.navErrs) > 0 {
		err := f.navErrs[0]
		f.navErrs = f.navErrs[1:]
		return err
	}
	return nil
}

func (f *fakePage) RunScript(ctx context.Context, js string, out any) error {
	f.mu.Lock()
	f.scripts = append(f.scripts, js)
	fn := f.scriptFn
	f.mu.Unlock()
	if fn != nil {
		return fn(js, out)
	}
	return nil
}

func (f *fakePage) Wait(ctx context.Context, d time.Duration) error {
	f.mu.Lock()
	f.waits = append(f.waits, d)
	f.mu.Unlock()
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return nil
	}
}

func (f *fakePage) SimulateWheel(ctx context.Context, dx, dy float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.wheelCalls++
	return nil
}

func (f *fakePage) SimulateKey(ctx context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.keyCalls = append(f.keyCalls, key)
	return nil
}

func (f *fakePage) MoveMouse(ctx context.Context, x, y float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.moveCalls++
	return nil
}

func (f *fakePage) SubscribeResponses(handler func(Response)) (func(), error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.subscribeErr != nil {
		return nil, f.subscribeErr
	}
	f.handler = handler
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.stopCalls++
		f.handler = nil
	}, nil
}

func (f *fakePage) QueryAll(ctx context.Context, selector string) (int, error) {
	f.mu.Lock()
	fn := f.queryFn
	f.mu.Unlock()
	if fn != nil {
		return fn(selector)
	}
	return 0, nil
}

func (f *fakePage) CurrentURL() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.url
}

func (f *fakePage) HTML(ctx context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.html, f.htmlErr
}

// emit delivers a response to the subscribed handler, as the browser
// event stream would.
func (f *fakePage) emit(resp Response) {
	f.mu.Lock()
	h := f.handler
	f.mu.Unlock()
	if h != nil {
		h(resp)
	}
}

func (f *fakePage) scriptCount(marker string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, js := range f.scripts {
		if strings.Contains(js, marker) {
			n++
		}
	}
	return n
}

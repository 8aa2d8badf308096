// Package browser owns the Chrome process and adapts rod pages to the
// capability interface the scrape core drives.
package browser

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"

	"scrollback/internal/logging"
)

// Options holds browser configuration.
type Options struct {
	// BinPath overrides Chrome binary discovery when non-empty.
	BinPath  string
	Headless bool
	Width    int
	Height   int
	// NavTimeout bounds a single navigation including its load wait.
	NavTimeout time.Duration
	// ControlFile persists the DevTools URL so later invocations reuse
	// the same Chrome instead of launching another.
	ControlFile string
}

// DefaultOptions returns sensible defaults.
func DefaultOptions() Options {
	return Options{
		Headless:    false,
		Width:       1280,
		Height:      900,
		NavTimeout:  25 * time.Second,
		ControlFile: filepath.Join(".scrollback", "browser", "control.txt"),
	}
}

func (o Options) width() int {
	if o.Width == 0 {
		return 1280
	}
	return o.Width
}

func (o Options) height() int {
	if o.Height == 0 {
		return 900
	}
	return o.Height
}

func (o Options) navTimeout() time.Duration {
	if o.NavTimeout == 0 {
		return 25 * time.Second
	}
	return o.NavTimeout
}

// Manager owns one Chrome connection and the single scraping page.
type Manager struct {
	opts Options

	mu         sync.Mutex
	browser    *rod.Browser
	launch     *launcher.Launcher
	cancel     context.CancelFunc
	controlURL string
	page       *Page
}

// NewManager creates a Manager. Call Start before opening pages.
func NewManager(opts Options) *Manager {
	return &Manager{opts: opts}
}

// Start connects to a previously launched Chrome via the control file,
// or launches a new one and records its DevTools URL for reuse. Safe to
// call repeatedly; a healthy connection is kept.
func (m *Manager) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.browser != nil {
		if _, err := m.browser.Version(); err == nil {
			return nil
		}
		logging.BrowserWarn("stale browser connection, reconnecting")
		m.dropLocked()
	}

	if u := m.readControlFile(); u != "" {
		if err := m.connectLocked(u); err == nil {
			logging.Browser("reusing browser at %s", u)
			return nil
		}
		logging.BrowserWarn("control file points at a dead browser, relaunching")
		_ = os.Remove(m.opts.ControlFile)
	}

	l := launcher.New().Headless(m.opts.Headless).Leakless(false)
	if m.opts.BinPath != "" {
		l = l.Bin(m.opts.BinPath)
	}
	u, err := l.Launch()
	if err != nil {
		return fmt.Errorf("launch chrome: %w", err)
	}

	if err := m.connectLocked(u); err != nil {
		l.Kill()
		l.Cleanup()
		return fmt.Errorf("connect to chrome: %w", err)
	}
	m.launch = l
	m.writeControlFile(u)
	logging.Browser("launched browser (headless=%v) at %s", m.opts.Headless, u)
	return nil
}

// connectLocked dials the DevTools URL under a manager-owned context so
// Stop can drop the websocket without killing Chrome.
func (m *Manager) connectLocked(controlURL string) error {
	ctx, cancel := context.WithCancel(context.Background())
	b := rod.New().ControlURL(controlURL).Context(ctx)
	if err := b.Connect(); err != nil {
		cancel()
		return err
	}
	m.browser = b
	m.cancel = cancel
	m.controlURL = controlURL
	return nil
}

// ConnectOnly attaches to a browser previously launched by this tool
// and fails when none is reachable. Commands that must not spawn Chrome
// themselves (diagnostics, status) use this instead of Start.
func (m *Manager) ConnectOnly() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.browser != nil {
		if _, err := m.browser.Version(); err == nil {
			return nil
		}
		m.dropLocked()
	}

	u := m.readControlFile()
	if u == "" {
		return errors.New("browser not launched")
	}
	if err := m.connectLocked(u); err != nil {
		return fmt.Errorf("browser at %s unreachable: %w", u, err)
	}
	logging.Browser("reusing browser at %s", u)
	return nil
}

// IsConnected reports whether a live browser connection exists.
func (m *Manager) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.browser != nil
}

// ControlURL returns the DevTools websocket URL, or "".
func (m *Manager) ControlURL() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.controlURL
}

// OpenPage returns the managed scraping page, creating it on first use
// with the configured viewport.
func (m *Manager) OpenPage() (*Page, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.browser == nil {
		return nil, errors.New("browser not started")
	}
	if m.page != nil {
		return m.page, nil
	}

	page, err := m.browser.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		return nil, fmt.Errorf("create page: %w", err)
	}

	if err := (proto.EmulationSetDeviceMetricsOverride{
		Width:             m.opts.width(),
		Height:            m.opts.height(),
		DeviceScaleFactor: 1.0,
		Mobile:            false,
	}).Call(page); err != nil {
		logging.BrowserWarn("set viewport: %v", err)
	}

	m.page = &Page{p: page, nav: m.opts.navTimeout()}
	return m.page, nil
}

// Stop detaches from Chrome but leaves the process running so the
// control file can reconnect later.
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.browser != nil {
		logging.Browser("detaching from browser at %s", m.controlURL)
	}
	m.dropLocked()
}

// Kill closes Chrome itself and removes the control file.
func (m *Manager) Kill() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var err error
	if m.browser != nil {
		err = proto.BrowserClose{}.Call(m.browser)
	}
	m.dropLocked()
	if m.launch != nil {
		m.launch.Kill()
		m.launch.Cleanup()
		m.launch = nil
	}
	if m.opts.ControlFile != "" {
		_ = os.Remove(m.opts.ControlFile)
	}
	logging.Browser("browser killed")
	return err
}

func (m *Manager) dropLocked() {
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	m.browser = nil
	m.page = nil
	m.controlURL = ""
}

func (m *Manager) readControlFile() string {
	if m.opts.ControlFile == "" {
		return ""
	}
	data, err := os.ReadFile(m.opts.ControlFile)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

func (m *Manager) writeControlFile(controlURL string) {
	if m.opts.ControlFile == "" {
		return
	}
	if err := os.MkdirAll(filepath.Dir(m.opts.ControlFile), 0o755); err != nil {
		logging.BrowserWarn("control file dir: %v", err)
		return
	}
	if err := os.WriteFile(m.opts.ControlFile, []byte(controlURL+"\n"), 0o644); err != nil {
		logging.BrowserWarn("control file write: %v", err)
	}
}

// Package diagnose runs health checks against the live page: landmark
// presence, scroll capability, capture activity. The pipeline is
// invokable at any time without starting a scrape.
package diagnose

import (
	"context"
	"fmt"
	"time"

	"scrollback/internal/logging"
	"scrollback/internal/scrape"
)

// Status classifies a check outcome.
type Status string

const (
	StatusPass Status = "pass"
	StatusWarn Status = "warn"
	StatusFail Status = "fail"
	StatusInfo Status = "info"
)

// CheckResult is produced fresh on every check invocation.
type CheckResult struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Status    Status         `json:"status"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Summary tallies check statuses.
type Summary struct {
	Pass int `json:"pass"`
	Warn int `json:"warn"`
	Fail int `json:"fail"`
	Info int `json:"info"`
}

// Report is the outcome of a whole-pipeline run. Summary always equals
// the tally of Checks, including the degenerate empty-registry case.
type Report struct {
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	DurationMs int64         `json:"duration_ms"`
	URL        string        `json:"url,omitempty"`
	Checks     []CheckResult `json:"checks"`
	Summary    Summary       `json:"summary"`
}

// Context carries what checks may inspect: the live page (nil when the
// browser is down) and the aggregator's current buffer size.
type Context struct {
	Page        scrape.Page
	Intercepted func() int
}

// Check is one registered diagnostic. Run returns a status, a
// human-readable message, and optional details; internal errors map to
// StatusFail rather than propagating.
type Check struct {
	ID   string
	Name string
	Run  func(ctx context.Context, env *Context) (Status, string, map[string]any)
}

// Pipeline holds the check registry in execution order.
type Pipeline struct {
	checks []Check
}

// NewPipeline returns a Pipeline with the default registry.
func NewPipeline() *Pipeline {
	p := &Pipeline{}
	p.Register(Check{"browser-connected", "Browser connected", checkBrowserConnected})
	p.Register(Check{"active-url-shape", "Active URL shape", checkActiveURLShape})
	p.Register(Check{"landmark-sidebar", "Sidebar landmark", landmarkCheck("aside, nav, [class*='sidebar']")})
	p.Register(Check{"landmark-input", "Input landmark", landmarkCheck("textarea, [contenteditable='true'], input[type='text']")})
	p.Register(Check{"landmark-root", "Root landmark", landmarkCheck("#root, #app, main")})
	p.Register(Check{"message-count", "Message detection", checkMessageCount})
	p.Register(Check{"scroll-capability", "Scroll capability", checkScrollCapability})
	p.Register(Check{"network-capture-activity", "Capture activity", checkCaptureActivity})
	return p
}

// Register appends a check to the registry.
func (p *Pipeline) Register(c Check) {
	p.checks = append(p.checks, c)
}

// IDs lists the registered check ids in execution order.
func (p *Pipeline) IDs() []string {
	out := make([]string, len(p.checks))
	for i, c := range p.checks {
		out[i] = c.ID
	}
	return out
}

// Run executes every registered check in order. A check that panics
// becomes a fail result; the pipeline never aborts partway.
func (p *Pipeline) Run(ctx context.Context, env *Context) *Report {
	report := &Report{
		StartedAt: time.Now(),
		Checks:    make([]CheckResult, 0, len(p.checks)),
	}
	if env != nil && env.Page != nil {
		report.URL = env.Page.CurrentURL()
	}

	for _, c := range p.checks {
		res := runOne(ctx, env, c)
		report.Checks = append(report.Checks, res)
		switch res.Status {
		case StatusPass:
			report.Summary.Pass++
			logging.Diagnose("check %s: pass (%s)", res.ID, res.Message)
		case StatusWarn:
			report.Summary.Warn++
			logging.DiagnoseWarn("check %s: warn (%s)", res.ID, res.Message)
		case StatusFail:
			report.Summary.Fail++
			logging.DiagnoseWarn("check %s: FAIL (%s)", res.ID, res.Message)
		case StatusInfo:
			report.Summary.Info++
			logging.Diagnose("check %s: info (%s)", res.ID, res.Message)
		}
	}

	report.FinishedAt = time.Now()
	report.DurationMs = report.FinishedAt.Sub(report.StartedAt).Milliseconds()
	return report
}

// RunSingle executes exactly one named check, or returns nil for an
// unknown id. Used as a lightweight is-scrolling-still-possible probe
// outside a full run.
func (p *Pipeline) RunSingle(ctx context.Context, env *Context, id string) *CheckResult {
	for _, c := range p.checks {
		if c.ID == id {
			res := runOne(ctx, env, c)
			return &res
		}
	}
	return nil
}

func runOne(ctx context.Context, env *Context, c Check) (res CheckResult) {
	defer func() {
		if r := recover(); r != nil {
			res = CheckResult{
				ID:        c.ID,
				Name:      c.Name,
				Status:    StatusFail,
				Message:   fmt.Sprintf("check panicked: %v", r),
				Timestamp: time.Now(),
			}
		}
	}()
	status, msg, details := c.Run(ctx, env)
	return CheckResult{
		ID:        c.ID,
		Name:      c.Name,
		Status:    status,
		Message:   msg,
		Details:   details,
		Timestamp: time.Now(),
	}
}

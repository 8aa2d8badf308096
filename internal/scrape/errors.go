package scrape

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNoPage indicates no live page is available. Fatal: callers must not
// retry without first establishing a browser session.
var ErrNoPage = errors.New("no live page (browser not launched)")

// NavigationError indicates the target URL did not reach a loaded state
// within the timeout, after the one permitted reload retry.
type NavigationError struct {
	URL string
	Err error
}

func (e *NavigationError) Error() string {
	return fmt.Sprintf("navigation to %s failed: %v", e.URL, e.Err)
}

func (e *NavigationError) Unwrap() error { return e.Err }

// transientBodyMarkers identify the CDP timing race where a response body
// is evicted before it can be fetched. These are warnings, not parse
// failures: the record simply arrived and left too fast.
var transientBodyMarkers = []string{
	"No resource with given identifier",
	"No data found for resource",
}

// IsTransientBodyErr reports whether a body-fetch failure is the known
// eviction race rather than a genuine protocol error.
func IsTransientBodyErr(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	for _, marker := range transientBodyMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

package scrape

// Ranked selector candidates. The target app ships no stable ids or
// class names, so structural guesses are tried in priority order; on
// equal match counts the earlier candidate wins.

// containerCandidates locate the element that holds the message list.
var containerCandidates = []string{
	"main [class*='chat']",
	"main [class*='conversation']",
	"main [class*='message-list']",
	"[class*='chat-body']",
	"[class*='conversation']",
	"main section",
	"main",
	"body",
}

// messageCandidates locate individual message nodes.
var messageCandidates = []string{
	"[class*='message-row']",
	"[class*='message']",
	"[data-testid*='message']",
	"[class*='msg']",
	"[class*='turn']",
	"[class*='bubble']",
	"main p",
}

// MessageSelectors returns a copy of the ranked message-node selectors,
// for callers (diagnostics) that probe the DOM themselves.
func MessageSelectors() []string {
	out := make([]string, len(messageCandidates))
	copy(out, messageCandidates)
	return out
}

// Intercepted-record field tables. Captured payloads vary across app
// revisions; these are the shapes observed so far, in priority order.

// identityFields carry a record's identity for dedup.
var identityFields = []string{"uuid", "id", "message_id"}

// turnKeyField nests the identity one level down in newer payloads.
const (
	turnKeyField   = "turn_key"
	turnKeyIDField = "turn_id"
)

// textFields carry message text directly.
var textFields = []string{"text", "raw_content", "content", "message"}

// candidatesField holds alternative generations; one may be flagged
// primary.
const candidatesField = "candidates"

// primaryFlags mark the preferred candidate.
var primaryFlags = []string{"is_primary", "primary", "is_final"}

// authorField holds the speaker sub-structure for role resolution.
const authorField = "author"

// viewerRoleTokens mark the human side in author markers.
var viewerRoleTokens = map[string]bool{
	"user":   true,
	"human":  true,
	"viewer": true,
	"you":    true,
}

// historyKeys are object keys under which a response may nest its
// message array.
var historyKeys = []string{"turns", "messages", "history", "items"}

// recordShapeFields make an object "message-like" when probing an array.
var recordShapeFields = []string{
	"text", "raw_content", "content", "candidates",
	"author", "uuid", "id", "message_id", "turn_key",
}

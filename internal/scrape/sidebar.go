package scrape

import (
	"strings"

	"golang.org/x/net/html"
)

// CharacterSummary is one conversation entry found by the sidebar scan.
type CharacterSummary struct {
	Name        string `json:"name"`
	URL         string `json:"url"`
	LastMessage string `json:"last_message,omitempty"`
}

// chatHrefMarkers identify conversation links among the page's anchors.
var chatHrefMarkers = []string{"/chat", "/c/", "/hist", "/conversation"}

// ChatURLMarkers returns the path substrings that mark conversation
// URLs, for callers that classify locations outside a sidebar scan.
func ChatURLMarkers() []string {
	out := make([]string, len(chatHrefMarkers))
	copy(out, chatHrefMarkers)
	return out
}

const previewMaxRunes = 120

// parseSidebar walks the document for chat-shaped anchors and reads a
// name plus an optional last-message preview out of each.
func parseSidebar(src string) ([]CharacterSummary, error) {
	doc, err := html.Parse(strings.NewReader(src))
	if err != nil {
		return nil, err
	}

	var entries []CharacterSummary
	seen := make(map[string]bool)

	var traverse func(*html.Node)
	traverse = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "a" {
			href := attrVal(n, "href")
			if href != "" && matchesAny(href, chatHrefMarkers) && !seen[href] {
				seen[href] = true
				name, preview := entryText(n)
				if name != "" {
					entries = append(entries, CharacterSummary{
						Name:        name,
						URL:         href,
						LastMessage: preview,
					})
				}
			}
			// Nested anchors don't occur in valid HTML; no need to recurse.
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			traverse(c)
		}
	}
	traverse(doc)

	return entries, nil
}

// entryText collects the anchor's text chunks: the first is the display
// name, the rest join into a clipped preview.
func entryText(n *html.Node) (name, preview string) {
	var chunks []string
	var traverse func(*html.Node)
	traverse = func(node *html.Node) {
		if node.Type == html.TextNode {
			if t := strings.TrimSpace(node.Data); t != "" {
				chunks = append(chunks, t)
			}
		}
		for c := node.FirstChild; c != nil; c = c.NextSibling {
			traverse(c)
		}
	}
	traverse(n)

	if len(chunks) == 0 {
		return "", ""
	}
	name = chunks[0]
	if len(chunks) > 1 {
		preview = strings.Join(chunks[1:], " ")
		if runes := []rune(preview); len(runes) > previewMaxRunes {
			preview = string(runes[:previewMaxRunes])
		}
	}
	return name, preview
}

func attrVal(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

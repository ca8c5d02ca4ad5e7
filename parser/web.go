package parser

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/net/html"
)

const (
	webUserAgent  = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	maxFetchBytes = 5 * 1024 * 1024
)

// Tags whose text content never belongs in the extracted body.
var strippedTags = map[string]bool{
	"script":   true,
	"style":    true,
	"noscript": true,
	"nav":      true,
	"footer":   true,
	"header":   true,
	"aside":    true,
}

// WebParser fetches a URL and extracts readable text from its HTML.
type WebParser struct {
	client *http.Client
}

func NewWebParser() *WebParser {
	return &WebParser{
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

// Fetch downloads the page at rawURL and returns its readable text.
// Bodies are capped at 5 MB; anything past the cap is dropped.
func (p *WebParser) Fetch(ctx context.Context, rawURL string) (*ParseResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", webUserAgent)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetching %s: unexpected status %d", rawURL, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFetchBytes))
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}

	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parsing HTML: %w", err)
	}

	title := pageTitle(doc)
	if title == "" {
		title = rawURL
	}

	text := normalizeWebText(collectText(contentRoot(doc)))

	return &ParseResult{
		Text:  text,
		Type:  "webpage",
		Title: title,
	}, nil
}

// contentRoot picks the node most likely to hold the main content. It tries
// main, article, .content, #content, .post, and .entry in that order, then
// falls back to body.
func contentRoot(doc *html.Node) *html.Node {
	byTag := func(name string) func(*html.Node) bool {
		return func(n *html.Node) bool { return n.Data == name }
	}
	byClass := func(name string) func(*html.Node) bool {
		return func(n *html.Node) bool { return hasClass(n, name) }
	}
	byID := func(id string) func(*html.Node) bool {
		return func(n *html.Node) bool { return attrVal(n, "id") == id }
	}

	selectors := []func(*html.Node) bool{
		byTag("main"),
		byTag("article"),
		byClass("content"),
		byID("content"),
		byClass("post"),
		byClass("entry"),
	}
	for _, match := range selectors {
		if n := findNode(doc, match); n != nil {
			return n
		}
	}
	if body := findNode(doc, byTag("body")); body != nil {
		return body
	}
	return doc
}

// findNode returns the first element node in document order matching match.
func findNode(n *html.Node, match func(*html.Node) bool) *html.Node {
	if n.Type == html.ElementNode && match(n) {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findNode(c, match); found != nil {
			return found
		}
	}
	return nil
}

func hasClass(n *html.Node, name string) bool {
	for _, f := range strings.Fields(attrVal(n, "class")) {
		if f == name {
			return true
		}
	}
	return false
}

func attrVal(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func pageTitle(doc *html.Node) string {
	n := findNode(doc, func(n *html.Node) bool { return n.Data == "title" })
	if n == nil {
		return ""
	}
	var b strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.TextNode {
			b.WriteString(c.Data)
		}
	}
	return strings.TrimSpace(b.String())
}

// collectText walks the subtree writing out text nodes, skipping stripped
// tags entirely and inserting a newline after block-level elements.
func collectText(root *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && strippedTags[n.Data] {
			return
		}
		if n.Type == html.TextNode {
			if t := strings.TrimSpace(n.Data); t != "" {
				b.WriteString(t)
				b.WriteString(" ")
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		if n.Type == html.ElementNode {
			switch n.Data {
			case "p", "div", "br", "li", "tr", "h1", "h2", "h3", "h4", "h5", "h6":
				b.WriteString("\n")
			}
		}
	}
	walk(root)
	return b.String()
}

// normalizeWebText collapses whitespace runs to single spaces and blank
// lines to nothing, so paragraphs end up separated by exactly one newline.
func normalizeWebText(s string) string {
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.Join(strings.Fields(line), " ")
		if line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}

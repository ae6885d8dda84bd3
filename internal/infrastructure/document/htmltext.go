package document

import (
	"strings"

	"golang.org/x/net/html"
)

type TextConfig struct {
	TagsToSkip    []string
	MaxOutputSize int
}

var DefaultTextConfig = TextConfig{
	TagsToSkip: []string{
		"script", "style", "noscript", "svg", "iframe",
		"link", "meta", "head", "title", "nav", "footer",
	},
	MaxOutputSize: 2_000_000,
}

var blockTags = map[string]bool{
	"p": true, "div": true, "section": true, "article": true, "br": true,
	"li": true, "ul": true, "ol": true, "table": true, "tr": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"pre": true, "blockquote": true,
}

// HTMLToText keeps the readable text of a page, one block per line.
func HTMLToText(rawHTML string, cfg *TextConfig) (string, error) {
	if cfg == nil {
		cfg = &DefaultTextConfig
	}

	doc, err := html.Parse(strings.NewReader(rawHTML))
	if err != nil {
		return "", err
	}

	root := findBodyNode(doc)
	if root == nil {
		root = doc
	}

	var sb strings.Builder
	collectText(root, cfg, &sb)

	text := normalizeLines(sb.String())
	if cfg.MaxOutputSize > 0 && len(text) > cfg.MaxOutputSize {
		text = text[:cfg.MaxOutputSize]
	}
	return text, nil
}

func findBodyNode(n *html.Node) *html.Node {
	if n.Type == html.ElementNode && n.Data == "body" {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if b := findBodyNode(c); b != nil {
			return b
		}
	}
	return nil
}

func collectText(n *html.Node, cfg *TextConfig, sb *strings.Builder) {
	switch n.Type {
	case html.CommentNode:
		return
	case html.TextNode:
		sb.WriteString(n.Data)
		return
	case html.ElementNode:
		if isOneOf(n.Data, cfg.TagsToSkip...) {
			return
		}
	}

	block := n.Type == html.ElementNode && blockTags[n.Data]
	if block {
		sb.WriteByte('\n')
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectText(c, cfg, sb)
	}
	if block {
		sb.WriteByte('\n')
	}
}

// normalizeLines collapses whitespace inside lines and drops empty ones.
func normalizeLines(s string) string {
	lines := strings.Split(s, "\n")
	kept := lines[:0]
	for _, line := range lines {
		line = strings.Join(strings.Fields(line), " ")
		if line != "" {
			kept = append(kept, line)
		}
	}
	return strings.Join(kept, "\n")
}

func isOneOf(s string, candidates ...string) bool {
	for _, c := range candidates {
		if s == c {
			return true
		}
	}
	return false
}

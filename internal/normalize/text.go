package normalize

import (
	"regexp"
	"strings"

	"golang.org/x/net/html"

	"github.com/ppiankov/shadowscore/internal/taxonomy"
)

var (
	markupPattern = regexp.MustCompile(`<\s*/?\s*[a-zA-Z][^>]*>`)
	spacePattern  = regexp.MustCompile(`\s+`)
	mdReplacer    = strings.NewReplacer("**", "", "__", "", "`", "", "~~", "")
)

// stopWords are dropped from root-cause summaries
var stopWords = map[string]bool{
	"a": true, "an": true, "the": true, "of": true, "in": true, "on": true,
	"to": true, "for": true, "and": true, "or": true, "is": true, "are": true,
	"was": true, "be": true, "been": true, "can": true, "could": true, "may": true,
	"might": true, "will": true, "would": true, "should": true, "that": true,
	"this": true, "these": true, "which": true, "with": true, "by": true,
	"from": true, "as": true, "at": true, "it": true, "its": true, "if": true,
	"when": true, "due": true, "via": true, "because": true, "than": true,
	"then": true, "into": true, "any": true, "all": true, "there": true,
	"so": true, "such": true, "also": true, "has": true, "have": true,
}

const maxSummaryTokens = 24

// visibleText reduces HTML fragments to their text nodes; plain text passes through
func visibleText(s string) string {
	if !markupPattern.MatchString(s) {
		return s
	}

	doc, err := html.Parse(strings.NewReader(s))
	if err != nil {
		return markupPattern.ReplaceAllString(s, " ")
	}

	var buf strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "script", "style", "noscript", "iframe":
				return
			}
		}

		if n.Type == html.TextNode {
			text := strings.TrimSpace(n.Data)
			if text != "" {
				buf.WriteString(text)
				buf.WriteString(" ")
			}
		}

		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	return buf.String()
}

// cleanText strips markdown emphasis and heading markers and collapses whitespace
func cleanText(s string) string {
	s = mdReplacer.Replace(s)

	lines := strings.Split(s, "\n")
	for i, line := range lines {
		line = strings.TrimSpace(line)
		line = strings.TrimLeft(line, "#>")
		line = strings.TrimPrefix(strings.TrimSpace(line), "- ")
		lines[i] = line
	}

	return strings.TrimSpace(spacePattern.ReplaceAllString(strings.Join(lines, " "), " "))
}

// firstSentence returns text up to the first sentence terminator followed by whitespace
func firstSentence(text string) string {
	text = strings.TrimSpace(text)
	for i, r := range text {
		if r != '.' && r != '!' && r != '?' {
			continue
		}
		// Avoid splitting on member access such as Vault.withdraw
		if i+1 < len(text) && (text[i+1] == ' ' || text[i+1] == '\t' || text[i+1] == '\n') {
			return strings.TrimSpace(text[:i])
		}
	}
	return strings.TrimRight(text, ".!?")
}

// summarize builds the normalized root-cause phrase used for similarity scoring
func summarize(text string) string {
	var kept []string
	for _, tok := range taxonomy.Tokenize(firstSentence(text)) {
		if stopWords[tok] || isNumber(tok) {
			continue
		}
		kept = append(kept, tok)
		if len(kept) == maxSummaryTokens {
			break
		}
	}
	return strings.Join(kept, " ")
}

// deriveTitle picks a short headline when the input carries none
func deriveTitle(text string) string {
	title := firstSentence(text)
	if len(title) > 120 {
		title = strings.TrimSpace(title[:120])
	}
	return title
}

func isNumber(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}

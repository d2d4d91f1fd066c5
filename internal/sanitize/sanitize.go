// Package sanitize strips untrusted recipe pages down to structural markup
// that is safe and compact enough to hand to a language model.
package sanitize

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/microcosm-cc/bluemonday"
)

var (
	// Subtrees dropped with their content.
	droppedSelectors = []string{"script", "style", "noscript", "template", "iframe", "object", "embed", "svg", "canvas"}

	whitespaceRe = regexp.MustCompile(`\s+`)

	policy = newPolicy()
)

// newPolicy allows structural and text elements and no attributes at all.
// Anything else, anchors and images included, loses its tag but keeps its text.
func newPolicy() *bluemonday.Policy {
	p := bluemonday.NewPolicy()
	p.AllowElements(
		"article", "section", "main", "header", "footer", "aside", "div", "span",
		"h1", "h2", "h3", "h4", "h5", "h6", "p", "br", "hr",
		"ul", "ol", "li", "dl", "dt", "dd",
		"table", "caption", "thead", "tbody", "tfoot", "tr", "th", "td",
		"strong", "em", "b", "i", "u", "small", "sup", "sub", "mark",
		"blockquote", "pre", "code", "figure", "figcaption", "time",
	)
	return p
}

// Sanitize returns the cleaned body content of rawHTML. It never fails; input
// that cannot be parsed yields an empty string.
func Sanitize(rawHTML string) string {
	if strings.TrimSpace(rawHTML) == "" {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		return ""
	}

	for _, sel := range droppedSelectors {
		doc.Find(sel).Remove()
	}

	// Keep the link text, lose the target.
	doc.Find("a").Each(func(_ int, a *goquery.Selection) {
		inner, err := a.Html()
		if err != nil {
			a.Remove()
			return
		}
		a.ReplaceWithHtml(inner)
	})

	body, err := doc.Find("body").First().Html()
	if err != nil {
		return ""
	}

	cleaned := policy.Sanitize(body)
	cleaned = whitespaceRe.ReplaceAllString(cleaned, " ")
	return strings.TrimSpace(cleaned)
}

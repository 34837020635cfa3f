package markup

import (
	"regexp"
	"sort"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// classRule allows a class attribute value on a set of elements.
type classRule struct {
	pattern  string
	elements []string
}

// classRules returns the marker classes of every enabled extension.
func classRules(ext Extensions) []classRule {
	var rules []classRule
	if ext.Highlight {
		rules = append(rules,
			classRule{`chroma`, []string{"pre", "div"}},
			classRule{`lntable`, []string{"table"}},
			classRule{`lntd`, []string{"td"}},
			// chroma token classes are at most three characters and only appear on spans
			classRule{`line|cl|hl|ln|lnt|[a-z][a-z0-9]{0,2}`, []string{"span"}})
	}
	if ext.Math {
		rules = append(rules, classRule{`math math-(?:inline|display)`, []string{"span", "div"}})
	}
	if ext.Mermaid {
		rules = append(rules, classRule{mermaidClass, []string{"pre"}})
	}
	if ext.Footnote {
		rules = append(rules,
			classRule{`footnote-(?:ref|backref)`, []string{"a"}},
			classRule{`footnotes`, []string{"div", "section"}})
	}
	return rules
}

// newPolicy builds the sanitizer for an extension set. Only one class pattern can be attached
// per element, so the rules are combined per element.
func newPolicy(ext Extensions) *bluemonday.Policy {
	p := bluemonday.NewPolicy()

	p.AllowElements(
		"p", "br", "hr", "blockquote", "pre", "code", "span", "div",
		"ul", "ol", "li", "em", "strong", "b", "i", "u", "s", "del", "ins", "mark",
		"sub", "sup", "kbd", "abbr", "small", "figure", "figcaption", "details", "summary",
		"h1", "h2", "h3", "h4", "h5", "h6",
	)
	p.AllowAttrs("id").Matching(regexp.MustCompile(`^[\p{L}\p{N}_-]+$`)).OnElements("h1", "h2", "h3", "h4", "h5", "h6")
	p.AllowAttrs("start").Matching(bluemonday.Integer).OnElements("ol")
	p.AllowAttrs("title").Matching(bluemonday.Paragraph).OnElements("abbr", "a", "img")

	p.RequireParseableURLs(true)
	p.AllowRelativeURLs(true)
	p.AllowURLSchemes("http", "https", "mailto")
	p.AllowAttrs("href").Matching(regexp.MustCompile(`^\S.*$`)).OnElements("a")
	p.AllowAttrs("src").Matching(regexp.MustCompile(`^\S.*$`)).OnElements("img")
	p.AllowAttrs("alt").OnElements("img")
	p.AllowAttrs("width", "height").Matching(bluemonday.NumberOrPercent).OnElements("img")

	if ext.Table {
		p.AllowElements("table", "thead", "tbody", "tfoot", "tr", "th", "td", "caption")
		p.AllowAttrs("align").Matching(regexp.MustCompile(`^(?:left|right|center)$`)).OnElements("th", "td")
	}
	if ext.DefinitionList {
		p.AllowElements("dl", "dt", "dd")
	}
	if ext.TaskList {
		p.AllowAttrs("type").Matching(regexp.MustCompile(`^checkbox$`)).OnElements("input")
		p.AllowAttrs("checked", "disabled").Matching(regexp.MustCompile(`^(?:|checked|disabled)$`)).OnElements("input")
	}
	if ext.Footnote {
		p.AllowAttrs("id").Matching(regexp.MustCompile(`^fn(?:ref\d*)?:[\p{L}\p{N}_-]+$`)).OnElements("sup", "li")
	}

	byElement := make(map[string][]string)
	for _, r := range classRules(ext) {
		for _, el := range r.elements {
			byElement[el] = append(byElement[el], r.pattern)
		}
	}
	elements := make([]string, 0, len(byElement))
	for el := range byElement {
		elements = append(elements, el)
	}
	sort.Strings(elements)
	for _, el := range elements {
		re := regexp.MustCompile(`^(?:` + strings.Join(byElement[el], "|") + `)$`)
		p.AllowAttrs("class").Matching(re).OnElements(el)
	}
	return p
}

// Sanitize applies the renderer's policy. Sanitize(Sanitize(x)) == Sanitize(x).
func (r *Renderer) Sanitize(html string) string {
	return r.policy.Sanitize(html)
}

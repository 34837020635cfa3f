package markup

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html"
)

// PlainText strips tags from an HTML fragment and collapses whitespace.
func PlainText(fragment string) string {
	var b strings.Builder
	z := html.NewTokenizer(strings.NewReader(fragment))
	skip := 0
	for {
		switch z.Next() {
		case html.ErrorToken:
			return strings.Join(strings.Fields(b.String()), " ")
		case html.StartTagToken:
			if name, _ := z.TagName(); isHiddenText(string(name)) {
				skip++
			}
		case html.EndTagToken:
			if name, _ := z.TagName(); isHiddenText(string(name)) && skip > 0 {
				skip--
			}
		case html.TextToken:
			if skip == 0 {
				b.Write(z.Text())
				b.WriteByte(' ')
			}
		}
	}
}

// isHiddenText reports elements whose text is not prose.
func isHiddenText(tag string) bool {
	switch tag {
	case "pre", "script", "style", "sup":
		return true
	}
	return false
}

// Summary returns at most limit runes of the document's plain text, cut at a word boundary.
func Summary(fragment string, limit int) string {
	text := PlainText(fragment)
	if limit <= 0 || utf8.RuneCountInString(text) <= limit {
		return text
	}
	runes := []rune(text)[:limit]
	cut := string(runes)
	if i := strings.LastIndexByte(cut, ' '); i > 0 {
		cut = cut[:i]
	}
	return strings.TrimRight(cut, " ,.;:") + "…"
}

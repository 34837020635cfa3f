package tmpl

import (
	"fmt"
	"net/url"
	"reflect"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/pagepress/pagepress/internal/model"
)

// Helpers exposes formatting utilities to templates as methods of Env.Helpers.
type Helpers struct {
	// Location is used for date formatting; nil means UTC.
	Location *time.Location
}

// momentTokens maps moment.js style tokens to Go layout fragments, longest first.
var momentTokens = []struct{ token, layout string }{
	{"YYYY", "2006"},
	{"MMMM", "January"},
	{"dddd", "Monday"},
	{"MMM", "Jan"},
	{"ddd", "Mon"},
	{"YY", "06"},
	{"MM", "01"},
	{"DD", "02"},
	{"HH", "15"},
	{"hh", "03"},
	{"mm", "04"},
	{"ss", "05"},
	{"M", "1"},
	{"D", "2"},
	{"H", "15"},
	{"h", "3"},
	{"A", "PM"},
	{"a", "pm"},
	{"Z", "-07:00"},
}

// MomentLayout converts a moment.js style format ("YYYY-MM-DD") to a Go time layout.
// Text in square brackets is copied literally.
func MomentLayout(format string) string {
	var b strings.Builder
	for i := 0; i < len(format); {
		if format[i] == '[' {
			if end := strings.IndexByte(format[i:], ']'); end > 0 {
				b.WriteString(format[i+1 : i+end])
				i += end + 1
				continue
			}
		}
		matched := false
		for _, t := range momentTokens {
			if strings.HasPrefix(format[i:], t.token) {
				b.WriteString(t.layout)
				i += len(t.token)
				matched = true
				break
			}
		}
		if !matched {
			b.WriteByte(format[i])
			i++
		}
	}
	return b.String()
}

// FormatDate formats t with a moment.js style layout. A nil or empty layout uses ISO dates.
func (h Helpers) FormatDate(t time.Time, layout any) string {
	format := "YYYY-MM-DD"
	if layout != nil {
		if s := fmt.Sprint(layout); s != "" {
			format = s
		}
	}
	loc := h.Location
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format(MomentLayout(format))
}

// JoinURL joins URL path segments with single slashes, preserving a scheme prefix.
func (h Helpers) JoinURL(base string, parts ...string) string {
	out := strings.TrimRight(base, "/")
	for _, p := range parts {
		p = strings.Trim(p, "/")
		if p == "" {
			continue
		}
		out += "/" + p
	}
	if out == "" {
		return "/"
	}
	return out
}

// Truncate shortens s to at most n runes, appending an ellipsis when cut.
func (h Helpers) Truncate(s string, n int) string {
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	return strings.TrimSpace(string([]rune(s)[:n])) + "…"
}

// Slugify exposes the slug normalization used for article URLs.
func (h Helpers) Slugify(s string) string {
	return model.Slugify(s)
}

// QueryEscape escapes s for use in a URL query.
func (h Helpers) QueryEscape(s string) string {
	return url.QueryEscape(s)
}

// Limit returns at most n articles. n may be any numeric value or numeric string; a missing
// or non-positive n returns every article.
func (h Helpers) Limit(articles []ArticleView, n any) []ArticleView {
	limit := toInt(n)
	if limit <= 0 || limit >= len(articles) {
		return articles
	}
	return articles[:limit]
}

func toInt(v any) int {
	if v == nil {
		return 0
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return int(rv.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return int(rv.Uint())
	case reflect.Float32, reflect.Float64:
		return int(rv.Float())
	case reflect.String:
		n, _ := strconv.Atoi(strings.TrimSpace(rv.String()))
		return n
	default:
		return 0
	}
}

package markup

import (
	"bytes"
	"log/slog"
	"regexp"
	"strings"

	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/text"
	"golang.org/x/net/html"

	"github.com/pagepress/pagepress/internal/logfields"
)

// refPattern matches an internal reference token: ":/" followed by a 32 hex digit id and an
// optional fragment.
var refPattern = regexp.MustCompile(`^:/([0-9a-fA-F]{32})(#\S*)?$`)

var refStateKey = parser.NewContextKey()

// refState collects reference outcomes for one render call.
type refState struct {
	opts       RenderOptions
	resources  []string
	seen       map[string]bool
	unresolved []string
}

func newRefState(opts RenderOptions) *refState {
	return &refState{opts: opts, seen: make(map[string]bool)}
}

// IsReference reports whether dest is an internal reference token.
func IsReference(dest string) bool {
	return refPattern.MatchString(dest)
}

// resolve maps a destination to its public URL. Non-reference destinations are returned
// unchanged; unknown references resolve to the empty string.
func (s *refState) resolve(dest string) string {
	m := refPattern.FindStringSubmatch(dest)
	if m == nil {
		return dest
	}
	id, fragment := strings.ToLower(m[1]), m[2]
	if s.opts.Lookup != nil {
		if u, ok := s.opts.Lookup.ArticleURL(id); ok {
			return u + fragment
		}
		if ext, ok := s.opts.Lookup.ResourceExtension(id); ok {
			if !s.seen[id] {
				s.seen[id] = true
				s.resources = append(s.resources, id)
			}
			return strings.TrimRight(s.opts.BaseURL, "/") + "/" + ResourceDir + "/" + id + "." + ext
		}
	}
	slog.Warn("Unresolved content reference", logfields.Resource(id))
	s.unresolved = append(s.unresolved, id)
	return ""
}

// refTransformer rewrites reference destinations of links and images.
type refTransformer struct{}

func (refTransformer) Transform(doc *ast.Document, _ text.Reader, pc parser.Context) {
	state, ok := pc.Get(refStateKey).(*refState)
	if !ok {
		return
	}
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch node := n.(type) {
		case *ast.Link:
			node.Destination = []byte(state.resolve(string(node.Destination)))
		case *ast.Image:
			node.Destination = []byte(state.resolve(string(node.Destination)))
		}
		return ast.WalkContinue, nil
	})
}

// rewriteRawReferences resolves reference tokens found in href and src attributes of raw HTML
// embedded in the document.
func rewriteRawReferences(src string, state *refState) string {
	if !strings.Contains(src, ":/") {
		return src
	}
	var out bytes.Buffer
	z := html.NewTokenizer(strings.NewReader(src))
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			break
		}
		raw := append([]byte(nil), z.Raw()...)
		if tt != html.StartTagToken && tt != html.SelfClosingTagToken {
			out.Write(raw)
			continue
		}
		tok := z.Token()
		changed := false
		for i, a := range tok.Attr {
			if (a.Key == "href" || a.Key == "src") && IsReference(a.Val) {
				tok.Attr[i].Val = state.resolve(a.Val)
				changed = true
			}
		}
		if changed {
			out.WriteString(tok.String())
		} else {
			out.Write(raw)
		}
	}
	return out.String()
}

package markup

import (
	"regexp"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/text"
)

var rawRefPattern = regexp.MustCompile(`(?:href|src)\s*=\s*["']:/([0-9a-fA-F]{32})`)

// ExtractReferences returns the ids referenced by a markdown document in first-use order,
// from link and image destinations, reference definitions and raw HTML attributes.
func ExtractReferences(src string) []string {
	body := []byte(src)
	pc := parser.NewContext()
	root := goldmark.New().Parser().Parse(text.NewReader(body), parser.WithContext(pc))

	var (
		ids  []string
		seen = make(map[string]bool)
	)
	add := func(dest string) {
		m := refPattern.FindStringSubmatch(dest)
		if m == nil {
			return
		}
		id := strings.ToLower(m[1])
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}

	_ = ast.Walk(root, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch node := n.(type) {
		case *ast.Link:
			add(string(node.Destination))
		case *ast.Image:
			add(string(node.Destination))
		}
		return ast.WalkContinue, nil
	})
	for _, ref := range pc.References() {
		add(string(ref.Destination()))
	}
	for _, m := range rawRefPattern.FindAllStringSubmatch(src, -1) {
		add(":/" + m[1])
	}
	return ids
}

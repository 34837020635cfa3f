package markup

import (
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer"
	"github.com/yuin/goldmark/text"
	"github.com/yuin/goldmark/util"
)

const mermaidClass = "mermaid"

// KindMermaid is the node kind of a mermaid diagram block.
var KindMermaid = ast.NewNodeKind("Mermaid")

// Mermaid replaces a fenced code block whose info string is "mermaid".
type Mermaid struct {
	ast.BaseBlock
}

func (n *Mermaid) Kind() ast.NodeKind { return KindMermaid }

func (n *Mermaid) IsRaw() bool { return true }

func (n *Mermaid) Dump(source []byte, level int) {
	ast.DumpHelper(n, source, level, nil, nil)
}

type mermaidTransformer struct{}

func (mermaidTransformer) Transform(doc *ast.Document, reader text.Reader, _ parser.Context) {
	source := reader.Source()
	var blocks []*ast.FencedCodeBlock
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		if fcb, ok := n.(*ast.FencedCodeBlock); ok && string(fcb.Language(source)) == "mermaid" {
			blocks = append(blocks, fcb)
		}
		return ast.WalkContinue, nil
	})
	for _, fcb := range blocks {
		m := &Mermaid{}
		m.SetLines(fcb.Lines())
		fcb.Parent().ReplaceChild(fcb.Parent(), fcb, m)
	}
}

type mermaidRenderer struct{}

func (mermaidRenderer) RegisterFuncs(reg renderer.NodeRendererFuncRegisterer) {
	reg.Register(KindMermaid, func(w util.BufWriter, source []byte, n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		_, _ = w.WriteString(`<pre class="` + mermaidClass + `">`)
		lines := n.Lines()
		for i := 0; i < lines.Len(); i++ {
			seg := lines.At(i)
			_, _ = w.Write(util.EscapeHTML(seg.Value(source)))
		}
		_, _ = w.WriteString("</pre>\n")
		return ast.WalkSkipChildren, nil
	})
}

type mermaidExtension struct{}

func (mermaidExtension) Extend(m goldmark.Markdown) {
	m.Parser().AddOptions(parser.WithASTTransformers(util.Prioritized(mermaidTransformer{}, 100)))
	m.Renderer().AddOptions(renderer.WithNodeRenderers(util.Prioritized(mermaidRenderer{}, 500)))
}

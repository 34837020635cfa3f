package markup

import (
	"bytes"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer"
	"github.com/yuin/goldmark/text"
	"github.com/yuin/goldmark/util"
)

// Marker classes emitted for math. The client loader renders elements carrying them.
const (
	mathInlineClass  = "math math-inline"
	mathDisplayClass = "math math-display"
)

// KindMathInline is the node kind of inline and inline-display math.
var KindMathInline = ast.NewNodeKind("MathInline")

// KindMathBlock is the node kind of $$ fenced display math.
var KindMathBlock = ast.NewNodeKind("MathBlock")

// MathInline is $...$ or $$...$$ within a paragraph.
type MathInline struct {
	ast.BaseInline
	Display bool
	Value   []byte
}

func (n *MathInline) Kind() ast.NodeKind { return KindMathInline }

func (n *MathInline) Dump(source []byte, level int) {
	ast.DumpHelper(n, source, level, map[string]string{"Value": string(n.Value)}, nil)
}

// MathBlock is display math between lines containing only $$.
type MathBlock struct {
	ast.BaseBlock
}

func (n *MathBlock) Kind() ast.NodeKind { return KindMathBlock }

func (n *MathBlock) IsRaw() bool { return true }

func (n *MathBlock) Dump(source []byte, level int) {
	ast.DumpHelper(n, source, level, nil, nil)
}

type mathInlineParser struct{}

func (mathInlineParser) Trigger() []byte { return []byte{'$'} }

func (mathInlineParser) Parse(_ ast.Node, block text.Reader, _ parser.Context) ast.Node {
	line, _ := block.PeekLine()
	delim := 1
	if len(line) > 1 && line[1] == '$' {
		delim = 2
	}
	end := -1
	for i := delim; i < len(line); i++ {
		switch {
		case line[i] == '\\':
			i++
		case line[i] == '$':
			if delim == 2 {
				if i+1 < len(line) && line[i+1] == '$' {
					end = i
				}
			} else {
				end = i
			}
		}
		if end >= 0 {
			break
		}
	}
	if end <= delim {
		return nil
	}
	value := line[delim:end]
	if delim == 1 {
		// Currency amounts like "$5 and $6" are not math.
		if isSpace(value[0]) || isSpace(value[len(value)-1]) {
			return nil
		}
		if end+1 < len(line) && line[end+1] >= '0' && line[end+1] <= '9' {
			return nil
		}
	}
	block.Advance(end + delim)
	return &MathInline{Display: delim == 2, Value: append([]byte(nil), bytes.TrimSpace(value)...)}
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r'
}

type mathBlockParser struct{}

type mathBlockData struct {
	indent int
}

var mathBlockKey = parser.NewContextKey()

func (mathBlockParser) Trigger() []byte { return []byte{'$'} }

func (mathBlockParser) Open(_ ast.Node, reader text.Reader, pc parser.Context) (ast.Node, parser.State) {
	line, _ := reader.PeekLine()
	pos := pc.BlockOffset()
	if pos < 0 || pos+1 >= len(line) || line[pos] != '$' || line[pos+1] != '$' {
		return nil, parser.NoChildren
	}
	if !util.IsBlank(line[pos+2:]) {
		return nil, parser.NoChildren
	}
	pc.Set(mathBlockKey, &mathBlockData{indent: pos})
	return &MathBlock{}, parser.NoChildren
}

func (mathBlockParser) Continue(node ast.Node, reader text.Reader, pc parser.Context) parser.State {
	line, segment := reader.PeekLine()
	data, _ := pc.Get(mathBlockKey).(*mathBlockData)
	indent := 0
	if data != nil {
		indent = data.indent
	}
	w, pos := util.IndentWidth(line, reader.LineOffset())
	if w < 4 && pos+1 < len(line) && line[pos] == '$' && line[pos+1] == '$' && util.IsBlank(line[pos+2:]) {
		reader.Advance(segment.Stop - segment.Start - segment.Padding)
		return parser.Close
	}
	pos, padding := util.IndentPosition(line, reader.LineOffset(), indent)
	if pos < 0 {
		pos, padding = 0, 0
	}
	seg := text.NewSegmentPadding(segment.Start+pos, segment.Stop, padding)
	node.Lines().Append(seg)
	reader.AdvanceAndSetPadding(segment.Stop-segment.Start-pos-1, padding)
	return parser.Continue | parser.NoChildren
}

func (mathBlockParser) Close(_ ast.Node, _ text.Reader, pc parser.Context) {
	pc.Set(mathBlockKey, nil)
}

func (mathBlockParser) CanInterruptParagraph() bool { return true }

func (mathBlockParser) CanAcceptIndentedLine() bool { return false }

type mathRenderer struct{}

func (mathRenderer) RegisterFuncs(reg renderer.NodeRendererFuncRegisterer) {
	reg.Register(KindMathInline, renderMathInline)
	reg.Register(KindMathBlock, renderMathBlock)
}

func renderMathInline(w util.BufWriter, _ []byte, n ast.Node, entering bool) (ast.WalkStatus, error) {
	if !entering {
		return ast.WalkContinue, nil
	}
	node := n.(*MathInline)
	class := mathInlineClass
	if node.Display {
		class = mathDisplayClass
	}
	_, _ = w.WriteString(`<span class="` + class + `">`)
	_, _ = w.Write(util.EscapeHTML(node.Value))
	_, _ = w.WriteString("</span>")
	return ast.WalkSkipChildren, nil
}

func renderMathBlock(w util.BufWriter, source []byte, n ast.Node, entering bool) (ast.WalkStatus, error) {
	if !entering {
		return ast.WalkContinue, nil
	}
	_, _ = w.WriteString(`<div class="` + mathDisplayClass + `">`)
	lines := n.Lines()
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		_, _ = w.Write(util.EscapeHTML(seg.Value(source)))
	}
	_, _ = w.WriteString("</div>\n")
	return ast.WalkSkipChildren, nil
}

type mathExtension struct{}

func (mathExtension) Extend(m goldmark.Markdown) {
	m.Parser().AddOptions(
		parser.WithBlockParsers(util.Prioritized(mathBlockParser{}, 701)),
		parser.WithInlineParsers(util.Prioritized(mathInlineParser{}, 501)),
	)
	m.Renderer().AddOptions(renderer.WithNodeRenderers(util.Prioritized(mathRenderer{}, 500)))
}

package md2canvas

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	extensionAST "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/text"

	"github.com/arran4/md2canvas/segment"
)

// TableBlockPrefix starts the placeholder that stands in for an extracted
// table, followed by its index into the table block list.
const TableBlockPrefix = "TABLE_BLOCK_"

var (
	htmlTableRe  = regexp.MustCompile(`(?is)<table\b.*?</table\s*>`)
	tableBlockRe = regexp.MustCompile(`^\s*` + TableBlockPrefix + `(\d+)\s*$`)
	wrapperRe    = regexp.MustCompile(`(?is)<mermaid\b[^>]*>.*?</mermaid\s*>|<equation\b[^>]*>.*?</equation\s*>`)
	blankLinesRe = regexp.MustCompile(`\n(?:[ \t]*\n)+`)
)

// ExtractTables replaces every HTML table in src with a TABLE_BLOCK_<n>
// paragraph and returns the tables in order. Markdown parsers end HTML
// blocks at the first blank line, which would split a table apart.
func ExtractTables(src string) (string, []string) {
	var blocks []string
	out := htmlTableRe.ReplaceAllStringFunc(src, func(m string) string {
		blocks = append(blocks, m)
		return fmt.Sprintf("\n\n%s%d\n\n", TableBlockPrefix, len(blocks)-1)
	})
	return out, blocks
}

// JoinWrappers drops blank lines inside <mermaid> and <equation> wrappers so
// each stays in a single HTML block or paragraph.
func JoinWrappers(src string) string {
	return wrapperRe.ReplaceAllStringFunc(src, func(m string) string {
		return blankLinesRe.ReplaceAllString(m, "\n")
	})
}

// ParseMarkdown tokenizes src with goldmark (GFM enabled) and converts the
// result into a Document. Extracted HTML tables are returned alongside.
func ParseMarkdown(src []byte) (*Document, []string) {
	s, blocks := ExtractTables(JoinWrappers(string(src)))
	data := []byte(s)
	md := goldmark.New(goldmark.WithExtensions(extension.GFM))
	root := md.Parser().Parse(text.NewReader(data))
	c := converter{src: data}
	return &Document{Children: c.children(root)}, blocks
}

type converter struct {
	src []byte
}

// children converts the children of n, merging runs of adjacent text.
func (c converter) children(n ast.Node) []Node {
	var out []Node
	for ch := n.FirstChild(); ch != nil; ch = ch.NextSibling() {
		nd := c.convert(ch)
		if nd == nil {
			continue
		}
		if t, ok := nd.(*Text); ok && len(out) > 0 {
			if prev, ok := out[len(out)-1].(*Text); ok {
				prev.Value += t.Value
				continue
			}
		}
		out = append(out, nd)
	}
	return out
}

func (c converter) convert(n ast.Node) Node {
	switch n := n.(type) {
	case *ast.Heading:
		return &Heading{Level: n.Level, Children: c.children(n)}
	case *ast.Paragraph, *ast.TextBlock:
		kids := c.children(n)
		if len(kids) == 1 {
			if t, ok := kids[0].(*Text); ok && tableBlockRe.MatchString(t.Value) {
				return &Text{Value: strings.TrimSpace(t.Value)}
			}
		}
		return &Paragraph{Children: kids}
	case *ast.List:
		start := 0
		if n.IsOrdered() {
			start = n.Start
		}
		return &List{Ordered: n.IsOrdered(), Start: start, Children: c.children(n)}
	case *ast.ListItem:
		return &ListItem{Children: c.children(n)}
	case *ast.ThematicBreak:
		return &ThematicBreak{}
	case *ast.HTMLBlock:
		v := c.lines(n.Lines())
		if n.HasClosure() {
			v += string(n.ClosureLine.Value(c.src))
		}
		return &HTML{Value: strings.TrimRight(v, "\n")}
	case *ast.FencedCodeBlock:
		body := strings.TrimRight(c.lines(n.Lines()), "\n")
		lang := string(n.Language(c.src))
		switch strings.ToLower(lang) {
		case "mermaid":
			return &HTML{Value: "<mermaid>\n" + body + "\n</mermaid>"}
		case "math", "latex", "tex":
			return &HTML{Value: segment.OpenTag + body + segment.CloseTag}
		}
		return &Code{Language: lang, Value: body}
	case *ast.CodeBlock:
		return &Code{Value: strings.TrimRight(c.lines(n.Lines()), "\n")}
	case *extensionAST.Table:
		return c.table(n)
	case *ast.Text:
		v := string(n.Segment.Value(c.src))
		switch {
		case n.HardLineBreak():
			v += "\n"
		case n.SoftLineBreak():
			v += " "
		}
		return &Text{Value: v}
	case *ast.String:
		return &Text{Value: string(n.Value)}
	case *ast.CodeSpan:
		return &Text{Value: PlainText(&Container{Children: c.children(n)})}
	case *ast.RawHTML:
		v := c.segments(n.Segments)
		// equation markers stay in the text so the segmenter sees them
		if t := strings.TrimSpace(v); t == segment.OpenTag || t == segment.CloseTag {
			return &Text{Value: v}
		}
		return &HTML{Value: v}
	case *ast.AutoLink:
		return &Text{Value: string(n.Label(c.src))}
	case *ast.Image:
		return &Image{Src: string(n.Destination), Alt: PlainText(&Container{Children: c.children(n)})}
	case *extensionAST.TaskCheckBox:
		if n.IsChecked {
			return &Text{Value: "[x] "}
		}
		return &Text{Value: "[ ] "}
	}
	if !n.HasChildren() {
		return nil
	}
	return &Container{Kind: n.Kind().String(), Children: c.children(n)}
}

func (c converter) table(t *extensionAST.Table) *Table {
	out := &Table{}
	for r := t.FirstChild(); r != nil; r = r.NextSibling() {
		switch r.(type) {
		case *extensionAST.TableHeader, *extensionAST.TableRow:
		default:
			continue
		}
		var row TableRow
		for cell := r.FirstChild(); cell != nil; cell = cell.NextSibling() {
			if _, ok := cell.(*extensionAST.TableCell); ok {
				row.Cells = append(row.Cells, TableCell{Children: c.children(cell)})
			}
		}
		out.Rows = append(out.Rows, row)
	}
	return out
}

func (c converter) lines(segs *text.Segments) string {
	var b bytes.Buffer
	for i := 0; i < segs.Len(); i++ {
		seg := segs.At(i)
		b.Write(seg.Value(c.src))
	}
	return b.String()
}

func (c converter) segments(segs *text.Segments) string {
	if segs == nil {
		return ""
	}
	return c.lines(segs)
}

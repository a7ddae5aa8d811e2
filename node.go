package md2canvas

import (
	"strings"

	"golang.org/x/net/html"
)

// Node is one element of a parsed document. The set of implementations is
// closed; the walker rejects anything else.
type Node interface {
	node()
}

type Document struct {
	Children []Node
}

// Heading carries its level (1-6) and inline children.
type Heading struct {
	Level    int
	Children []Node
}

type Paragraph struct {
	Children []Node
}

// List holds ListItem children. Start is the first ordinal of an ordered
// list; zero means 1.
type List struct {
	Ordered  bool
	Start    int
	Children []Node
}

type ListItem struct {
	Children []Node
}

type Table struct {
	Rows []TableRow
}

type TableRow struct {
	Cells []TableCell
}

type TableCell struct {
	Children []Node
}

type ThematicBreak struct{}

// HTML is raw markup, either a block or an inline tag.
type HTML struct {
	Value string
}

type Text struct {
	Value string
}

// Code is a fenced or indented code block, kept verbatim.
type Code struct {
	Language string
	Value    string
}

// Image references a picture by URL or path.
type Image struct {
	Src string
	Alt string
}

// Container is any other node with children, such as emphasis, links or
// block quotes. Kind names the source construct.
type Container struct {
	Kind     string
	Children []Node
}

func (*Document) node()      {}
func (*Heading) node()       {}
func (*Paragraph) node()     {}
func (*List) node()          {}
func (*ListItem) node()      {}
func (*Table) node()         {}
func (*ThematicBreak) node() {}
func (*HTML) node()          {}
func (*Text) node()          {}
func (*Code) node()          {}
func (*Image) node()         {}
func (*Container) node()     {}

// PlainText concatenates the text below n. Markup in HTML nodes is stripped
// and images contribute their alt text.
func PlainText(n Node) string {
	var b strings.Builder
	writeText(&b, n)
	return b.String()
}

func writeText(b *strings.Builder, n Node) {
	switch n := n.(type) {
	case *Text:
		b.WriteString(n.Value)
	case *Code:
		b.WriteString(n.Value)
	case *HTML:
		b.WriteString(stripTags(n.Value))
	case *Image:
		b.WriteString(n.Alt)
	case *Table:
		for i, row := range n.Rows {
			if i > 0 {
				b.WriteByte('\n')
			}
			for j, c := range row.Cells {
				if j > 0 {
					b.WriteString(" | ")
				}
				for _, ch := range c.Children {
					writeText(b, ch)
				}
			}
		}
	default:
		for _, ch := range children(n) {
			writeText(b, ch)
		}
	}
}

func children(n Node) []Node {
	switch n := n.(type) {
	case *Document:
		return n.Children
	case *Heading:
		return n.Children
	case *Paragraph:
		return n.Children
	case *List:
		return n.Children
	case *ListItem:
		return n.Children
	case *Container:
		return n.Children
	}
	return nil
}

// stripTags returns the text content of a markup fragment with entities
// decoded.
func stripTags(markup string) string {
	z := html.NewTokenizer(strings.NewReader(markup))
	var b strings.Builder
	for {
		switch z.Next() {
		case html.ErrorToken:
			return b.String()
		case html.TextToken:
			b.Write(z.Text())
		}
	}
}

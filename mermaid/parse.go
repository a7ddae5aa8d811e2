package mermaid

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/net/html"
)

var (
	ErrUnsupportedDiagram = errors.New("mermaid: unsupported diagram type")
	ErrSyntax             = errors.New("mermaid: syntax error")
)

type Direction string

const (
	TopDown   Direction = "TD"
	BottomUp  Direction = "BT"
	LeftRight Direction = "LR"
	RightLeft Direction = "RL"
)

type Shape int

const (
	ShapeRect Shape = iota
	ShapeRound
	ShapeStadium
	ShapeSubroutine
	ShapeCylinder
	ShapeCircle
	ShapeRhombus
	ShapeHexagon
	ShapeAsymmetric
)

type EdgeStyle int

const (
	EdgeSolid EdgeStyle = iota
	EdgeDotted
	EdgeThick
)

type Node struct {
	ID    string
	Label string
	Shape Shape
}

type Edge struct {
	From  string
	To    string
	Label string
	Style EdgeStyle
	Arrow bool
}

// Graph is a parsed flowchart. Nodes are kept in order of first appearance.
type Graph struct {
	Direction Direction
	Nodes     []*Node
	Edges     []Edge

	index map[string]*Node
}

func newGraph(dir Direction) *Graph {
	return &Graph{Direction: dir, index: make(map[string]*Node)}
}

// Node returns the node with id, or nil.
func (g *Graph) Node(id string) *Node {
	if g.index == nil {
		return nil
	}
	return g.index[id]
}

func (g *Graph) upsert(id, label string, shape Shape, labelled bool) {
	if n, ok := g.index[id]; ok {
		if labelled {
			n.Label = label
			n.Shape = shape
		}
		return
	}
	if !labelled {
		label = id
	}
	n := &Node{ID: id, Label: label, Shape: shape}
	g.index[id] = n
	g.Nodes = append(g.Nodes, n)
}

var ignoredStatements = map[string]bool{
	"subgraph": true, "end": true, "classDef": true, "class": true, "style": true,
	"linkStyle": true, "click": true, "direction": true,
}

// Parse reads the flowchart subset of Mermaid: graph/flowchart headers,
// nodes with the common shapes, chained and &-joined edges with optional
// |labels|. Styling statements are ignored. Text without a header is treated
// as a top-down flowchart.
func Parse(ctx context.Context, src string) (*Graph, error) {
	var g *Graph
	for lineNo, raw := range strings.Split(src, "\n") {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		line := stripComment(raw)
		if strings.TrimSpace(line) == "" {
			continue
		}
		stmts := splitStatements(line)
		if g == nil {
			fields := strings.Fields(stmts[0])
			switch {
			case len(fields) == 0:
				g = newGraph(TopDown)
			case fields[0] == "graph" || fields[0] == "flowchart":
				dir := TopDown
				if len(fields) > 1 {
					d, err := parseDirection(fields[1])
					if err != nil {
						return nil, fmt.Errorf("line %d: %w", lineNo+1, err)
					}
					dir = d
				}
				g = newGraph(dir)
				stmts = stmts[1:]
			case isHeader(fields[0]):
				return nil, fmt.Errorf("%w: %s", ErrUnsupportedDiagram, fields[0])
			default:
				g = newGraph(TopDown)
			}
		}
		for _, st := range stmts {
			st = strings.TrimSpace(st)
			if st == "" {
				continue
			}
			if kw := strings.Fields(st)[0]; ignoredStatements[kw] {
				continue
			}
			if err := parseStatement(g, st); err != nil {
				return nil, fmt.Errorf("line %d: %w", lineNo+1, err)
			}
		}
	}
	if g == nil {
		return newGraph(TopDown), nil
	}
	return g, nil
}

func parseDirection(s string) (Direction, error) {
	switch strings.ToUpper(s) {
	case "TD", "TB":
		return TopDown, nil
	case "BT":
		return BottomUp, nil
	case "LR":
		return LeftRight, nil
	case "RL":
		return RightLeft, nil
	}
	return "", fmt.Errorf("%w: unknown direction %q", ErrSyntax, s)
}

func stripComment(line string) string {
	if i := strings.Index(line, "%%"); i >= 0 && !insideQuote(line, i) {
		return line[:i]
	}
	return line
}

// splitStatements splits on semicolons that are outside quoted labels.
func splitStatements(line string) []string {
	var out []string
	var quote byte
	start := 0
	for i := 0; i < len(line); i++ {
		c := line[i]
		switch {
		case quote != 0:
			if c == quote {
				quote = 0
			}
		case c == '"':
			quote = c
		case c == ';':
			out = append(out, line[start:i])
			start = i + 1
		}
	}
	return append(out, line[start:])
}

type scanner struct {
	s   string
	pos int
}

func (sc *scanner) skipSpace() {
	for sc.pos < len(sc.s) && (sc.s[sc.pos] == ' ' || sc.s[sc.pos] == '\t') {
		sc.pos++
	}
}

func (sc *scanner) done() bool {
	sc.skipSpace()
	return sc.pos >= len(sc.s)
}

func (sc *scanner) errorf(format string, args ...any) error {
	return fmt.Errorf("%w at column %d: %s", ErrSyntax, sc.pos+1, fmt.Sprintf(format, args...))
}

var edgeRe = regexp.MustCompile(`^<?(?:-\.+-|-{2,}|={2,})[->ox]?`)

func parseStatement(g *Graph, st string) error {
	sc := &scanner{s: st}
	left, err := parseNodeGroup(g, sc)
	if err != nil {
		return err
	}
	for !sc.done() {
		op := edgeRe.FindString(sc.s[sc.pos:])
		if op == "" {
			return sc.errorf("expected edge, found %q", sc.s[sc.pos:])
		}
		sc.pos += len(op)
		e := Edge{Style: EdgeSolid}
		switch {
		case strings.Contains(op, "."):
			e.Style = EdgeDotted
		case strings.Contains(op, "="):
			e.Style = EdgeThick
		}
		last := op[len(op)-1]
		e.Arrow = last == '>' || last == 'o' || last == 'x'
		sc.skipSpace()
		if sc.pos < len(sc.s) && sc.s[sc.pos] == '|' {
			sc.pos++
			end := strings.IndexByte(sc.s[sc.pos:], '|')
			if end < 0 {
				return sc.errorf("unterminated edge label")
			}
			e.Label = cleanLabel(sc.s[sc.pos : sc.pos+end])
			sc.pos += end + 1
		}
		right, err := parseNodeGroup(g, sc)
		if err != nil {
			return err
		}
		for _, from := range left {
			for _, to := range right {
				e.From, e.To = from, to
				g.Edges = append(g.Edges, e)
			}
		}
		left = right
	}
	return nil
}

// parseNodeGroup reads one or more node references joined with &.
func parseNodeGroup(g *Graph, sc *scanner) ([]string, error) {
	var ids []string
	for {
		id, err := parseNode(g, sc)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
		sc.skipSpace()
		if sc.pos < len(sc.s) && sc.s[sc.pos] == '&' {
			sc.pos++
			continue
		}
		return ids, nil
	}
}

type shapeDelim struct {
	open, close string
	shape       Shape
}

// Longer openers first so "((" wins over "(".
var shapeDelims = []shapeDelim{
	{"([", "])", ShapeStadium},
	{"((", "))", ShapeCircle},
	{"[[", "]]", ShapeSubroutine},
	{"[(", ")]", ShapeCylinder},
	{"{{", "}}", ShapeHexagon},
	{"[", "]", ShapeRect},
	{"(", ")", ShapeRound},
	{"{", "}", ShapeRhombus},
	{">", "]", ShapeAsymmetric},
}

func isIDRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

func parseNode(g *Graph, sc *scanner) (string, error) {
	sc.skipSpace()
	start := sc.pos
	for sc.pos < len(sc.s) {
		r, size := utf8.DecodeRuneInString(sc.s[sc.pos:])
		if !isIDRune(r) {
			break
		}
		sc.pos += size
	}
	if sc.pos == start {
		return "", sc.errorf("expected node id")
	}
	id := sc.s[start:sc.pos]
	rest := sc.s[sc.pos:]
	for _, d := range shapeDelims {
		if !strings.HasPrefix(rest, d.open) {
			continue
		}
		sc.pos += len(d.open)
		label, err := readLabel(sc, d.close)
		if err != nil {
			return "", err
		}
		g.upsert(id, label, d.shape, true)
		return id, nil
	}
	g.upsert(id, "", ShapeRect, false)
	return id, nil
}

func readLabel(sc *scanner, closing string) (string, error) {
	sc.skipSpace()
	var raw string
	if sc.pos < len(sc.s) && sc.s[sc.pos] == '"' {
		end := strings.IndexByte(sc.s[sc.pos+1:], '"')
		if end < 0 {
			return "", sc.errorf("unterminated quoted label")
		}
		raw = sc.s[sc.pos+1 : sc.pos+1+end]
		sc.pos += end + 2
		sc.skipSpace()
		if !strings.HasPrefix(sc.s[sc.pos:], closing) {
			return "", sc.errorf("expected %q after label", closing)
		}
	} else {
		end := strings.Index(sc.s[sc.pos:], closing)
		if end < 0 {
			return "", sc.errorf("missing %q", closing)
		}
		raw = sc.s[sc.pos : sc.pos+end]
		sc.pos += end
	}
	sc.pos += len(closing)
	return cleanLabel(raw), nil
}

func cleanLabel(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	return html.UnescapeString(s)
}

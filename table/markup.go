// Package table turns HTML or pipe-delimited table markup into a grid of
// positioned cell rectangles and labels.
package table

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/text/unicode/norm"
)

var ErrNoRows = errors.New("table: no rows")

// Grid is an ordered list of rows of cell text. Rows may be ragged.
type Grid [][]string

// Columns returns the length of the longest row.
func (g Grid) Columns() int {
	n := 0
	for _, row := range g {
		n = max(n, len(row))
	}
	return n
}

// HTMLToMarkdown reads every <tr> in markup and returns the rows as a pipe
// table. Entities are decoded and runs of whitespace in a cell collapse to
// a single space.
func HTMLToMarkdown(markup string) (string, error) {
	doc, err := html.Parse(strings.NewReader(markup))
	if err != nil {
		return "", fmt.Errorf("parse table markup: %w", err)
	}
	var rows [][]string
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "tr" {
			if row := parseRow(n); len(row) > 0 {
				rows = append(rows, row)
			}
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	if len(rows) == 0 {
		return "", ErrNoRows
	}
	return ToMarkdown(rows), nil
}

func parseRow(tr *html.Node) []string {
	var row []string
	for c := tr.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && (c.Data == "td" || c.Data == "th") {
			row = append(row, CleanCell(textContent(c)))
		}
	}
	return row
}

func textContent(n *html.Node) string {
	var b strings.Builder
	var rec func(n *html.Node)
	rec = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			b.WriteString(n.Data)
		case html.ElementNode:
			switch n.Data {
			case "script", "style":
				return
			case "br":
				b.WriteByte(' ')
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			rec(c)
		}
		if n.Type == html.ElementNode {
			switch n.Data {
			case "p", "div", "li":
				b.WriteByte(' ')
			}
		}
	}
	rec(n)
	return b.String()
}

// CleanCell normalises cell text to NFC and collapses its whitespace.
func CleanCell(s string) string {
	return strings.Join(strings.Fields(norm.NFC.String(s)), " ")
}

// ToMarkdown joins rows into a pipe table. A --- separator row follows the
// first row only when there are at least two rows.
func ToMarkdown(rows [][]string) string {
	var sb strings.Builder
	writeRow := func(cells []string) {
		sb.WriteString("|")
		for _, c := range cells {
			sb.WriteString(" ")
			sb.WriteString(strings.ReplaceAll(c, "|", `\|`))
			sb.WriteString(" |")
		}
		sb.WriteString("\n")
	}
	for i, row := range rows {
		writeRow(row)
		if i == 0 && len(rows) >= 2 {
			sep := make([]string, len(row))
			for j := range sep {
				sep[j] = "---"
			}
			writeRow(sep)
		}
	}
	return strings.TrimSuffix(sb.String(), "\n")
}

var (
	separatorCellRe = regexp.MustCompile(`^:?-+:?$`)
	loosePipeRe     = regexp.MustCompile(`(^|[^\\])\|`)
	tabRe           = regexp.MustCompile(`\t+`)
	spacesRe        = regexp.MustCompile(` {2,}`)
	commaRe         = regexp.MustCompile(`\s*,\s*`)
)

// ParseGrid reads pipe-delimited rows, or rows split on tabs, runs of two or
// more spaces or commas when no line carries a pipe. Separator rows are
// dropped. Fewer than two non-blank lines yield an empty grid.
func ParseGrid(markdown string) Grid {
	var lines []string
	for _, ln := range strings.Split(strings.ReplaceAll(markdown, "\r\n", "\n"), "\n") {
		if ln = strings.TrimSpace(ln); ln != "" {
			lines = append(lines, ln)
		}
	}
	if len(lines) < 2 {
		return nil
	}
	piped := false
	for _, ln := range lines {
		if loosePipeRe.MatchString(ln) {
			piped = true
			break
		}
	}
	var g Grid
	for _, ln := range lines {
		var cells []string
		if piped {
			cells = splitPipes(ln)
		} else {
			cells = splitLoose(ln)
		}
		if isSeparator(cells) {
			continue
		}
		g = append(g, cells)
	}
	return g
}

func splitPipes(line string) []string {
	line = strings.TrimPrefix(line, "|")
	if strings.HasSuffix(line, "|") && !strings.HasSuffix(line, `\|`) {
		line = line[:len(line)-1]
	}
	var cells []string
	var cur strings.Builder
	for i := 0; i < len(line); i++ {
		switch {
		case line[i] == '\\' && i+1 < len(line) && line[i+1] == '|':
			cur.WriteByte('|')
			i++
		case line[i] == '|':
			cells = append(cells, strings.TrimSpace(cur.String()))
			cur.Reset()
		default:
			cur.WriteByte(line[i])
		}
	}
	return append(cells, strings.TrimSpace(cur.String()))
}

func splitLoose(line string) []string {
	var parts []string
	switch {
	case strings.Contains(line, "\t"):
		parts = tabRe.Split(line, -1)
	case spacesRe.MatchString(line):
		parts = spacesRe.Split(line, -1)
	default:
		parts = commaRe.Split(line, -1)
	}
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

func isSeparator(cells []string) bool {
	if len(cells) == 0 {
		return false
	}
	for _, c := range cells {
		if !separatorCellRe.MatchString(strings.ReplaceAll(c, " ", "")) {
			return false
		}
	}
	return true
}

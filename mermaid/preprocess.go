// Package mermaid cleans up loosely written Mermaid diagram text, parses the
// flowchart subset into a Graph and lays that graph out as canvas primitives.
package mermaid

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/net/html"
)

var (
	ErrTooManyLines = errors.New("mermaid: too many lines")
	ErrTooManyChars = errors.New("mermaid: too many characters")
)

// Limits caps the size of a diagram accepted by Sanitize and CheckLimits.
type Limits struct {
	MaxLines int
	MaxChars int
}

// DefaultLimits are used when a Limits field is zero.
var DefaultLimits = Limits{MaxLines: 300, MaxChars: 10000}

func (l Limits) withDefaults() Limits {
	if l.MaxLines <= 0 {
		l.MaxLines = DefaultLimits.MaxLines
	}
	if l.MaxChars <= 0 {
		l.MaxChars = DefaultLimits.MaxChars
	}
	return l
}

// LimitError reports which cap a diagram exceeded.
type LimitError struct {
	Err   error
	Limit int
	Got   int
}

func (e *LimitError) Error() string {
	return fmt.Sprintf("%v: %d exceeds limit of %d", e.Err, e.Got, e.Limit)
}

func (e *LimitError) Unwrap() error { return e.Err }

// DiagramTypes are the header keywords that mark the start of a diagram.
var DiagramTypes = []string{
	"graph", "flowchart", "sequenceDiagram", "classDiagram", "stateDiagram",
	"stateDiagram-v2", "erDiagram", "gantt", "pie", "journey", "mindmap",
	"timeline", "gitGraph", "quadrantChart", "requirementDiagram",
}

const defaultHeader = "flowchart TD"

var lineBreakRe = regexp.MustCompile(`(?i)<br\s*/?>`)

type bracket struct {
	open, close byte
}

var brackets = []bracket{
	{'[', ']'},
	{'(', ')'},
	{'{', '}'},
	{'|', '|'},
}

var simpleTokenRe = regexp.MustCompile(`^[\w\s.,:;!?%+\-*/=]*$`)

var labelEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"'", "&#39;",
)

// escapeLabel escapes & first so existing entities are not touched twice.
func escapeLabel(s string) string { return labelEscaper.Replace(s) }

func reescapeLabel(s string) string { return escapeLabel(html.UnescapeString(s)) }

// Normalize turns <br> markup into newlines and wraps every unquoted bracket
// label in double quotes, escaping its contents. Labels that start inside an
// existing quoted span are left alone, so Normalize(Normalize(s)) equals
// Normalize(s).
func Normalize(raw string) string {
	s := strings.ReplaceAll(raw, "\r\n", "\n")
	s = lineBreakRe.ReplaceAllString(s, "\n")
	lines := strings.Split(s, "\n")
	for i, ln := range lines {
		lines[i] = quoteBrackets(ln, brackets, escapeLabel)
	}
	return strings.Join(lines, "\n")
}

func bracketFor(set []bracket, c byte) (bracket, bool) {
	for _, b := range set {
		if b.open == c {
			return b, true
		}
	}
	return bracket{}, false
}

// quoteBrackets quotes the contents of every bracket pair from set in one
// left to right scan. Quote characters met outside a label open and close a
// quoted span in which brackets are ignored. A label starting with another
// opening bracket, as in A((x)) or A([x]), is entered and the inner pair
// quoted instead.
func quoteBrackets(line string, set []bracket, escape func(string) string) string {
	var quote byte
	for pos := 0; pos < len(line); pos++ {
		c := line[pos]
		if c == '\\' {
			pos++
			continue
		}
		if quote != 0 {
			if c == quote {
				quote = 0
			}
			continue
		}
		if c == '"' || c == '\'' {
			quote = c
			continue
		}
		b, ok := bracketFor(set, c)
		if !ok {
			continue
		}
		rel := strings.IndexByte(line[pos+1:], b.close)
		if rel < 0 {
			continue
		}
		end := pos + 1 + rel
		content := line[pos+1 : end]
		if b.open != b.close {
			if strings.IndexByte(content, b.open) >= 0 {
				continue
			}
			if t := strings.TrimSpace(content); t != "" {
				if _, nested := bracketFor(set, t[0]); nested && t[0] != '|' {
					continue
				}
			}
		}
		if skipContent(content, b) {
			pos = end
			continue
		}
		quoted := `"` + escape(content) + `"`
		line = line[:pos+1] + quoted + line[end:]
		pos += len(quoted) + 1
	}
	return line
}

func skipContent(content string, b bracket) bool {
	t := strings.TrimSpace(content)
	if t == "" {
		return true
	}
	if len(t) >= 2 && t[0] == '"' && t[len(t)-1] == '"' {
		return true
	}
	switch b.open {
	case '[':
		// cylinder shape A[(label)]; the parenthesis pass quotes the inside
		if t[0] == '(' && t[len(t)-1] == ')' {
			return true
		}
	case '(':
		if strings.ContainsAny(content, `"'`) && !simpleTokenRe.MatchString(content) {
			return true
		}
	}
	return false
}

// insideQuote reports whether offset falls inside a quoted span. Quotes
// preceded by a backslash do not toggle the state.
func insideQuote(line string, offset int) bool {
	var quote byte
	for i := 0; i < offset && i < len(line); i++ {
		c := line[i]
		if c == '\\' {
			i++
			continue
		}
		switch {
		case quote == 0 && (c == '"' || c == '\''):
			quote = c
		case c == quote:
			quote = 0
		}
	}
	return quote != 0
}

var (
	idBeforeLabelRe = regexp.MustCompile(`[^\s\[\]()"'|;&<>=\-]+\[`)
	quotedLabelRe   = regexp.MustCompile(`\["([^"]*)"\]`)
	invalidIDRe     = regexp.MustCompile(`[^A-Za-z0-9_]`)
)

// Sanitize is the lighter clean-up path. It maps curly braces to square
// brackets, quotes every square label, restricts node identifiers to
// [A-Za-z0-9_], re-escapes label text, adds a flowchart header when none is
// present and drops blank and repeated lines. A result larger than lim is an
// error.
func Sanitize(raw string, lim Limits) (string, error) {
	s := strings.ReplaceAll(raw, "\r\n", "\n")
	s = strings.NewReplacer("{", "[", "}", "]").Replace(s)

	var out []string
	seen := make(map[string]bool)
	hasHeader := false
	for _, ln := range strings.Split(s, "\n") {
		ln = strings.TrimSpace(ln)
		if ln == "" {
			continue
		}
		ln = quoteBrackets(ln, []bracket{{'[', ']'}}, reescapeLabel)
		ln = sanitizeIDs(ln)
		ln = quotedLabelRe.ReplaceAllStringFunc(ln, func(m string) string {
			inner := m[2 : len(m)-2]
			return `["` + reescapeLabel(inner) + `"]`
		})
		if seen[ln] {
			continue
		}
		seen[ln] = true
		if isHeader(ln) {
			hasHeader = true
		}
		out = append(out, ln)
	}
	if !hasHeader {
		out = append([]string{defaultHeader}, out...)
	}
	result := strings.Join(out, "\n")
	if err := CheckLimits(result, lim); err != nil {
		return "", err
	}
	return result, nil
}

func sanitizeIDs(line string) string {
	matches := idBeforeLabelRe.FindAllStringIndex(line, -1)
	if matches == nil {
		return line
	}
	var b strings.Builder
	last := 0
	for _, m := range matches {
		b.WriteString(line[last:m[0]])
		id := line[m[0] : m[1]-1]
		if insideQuote(line, m[0]) {
			b.WriteString(id)
		} else {
			b.WriteString(invalidIDRe.ReplaceAllString(id, "_"))
		}
		b.WriteByte('[')
		last = m[1]
	}
	b.WriteString(line[last:])
	return b.String()
}

func isHeader(line string) bool {
	first := line
	if i := strings.IndexAny(line, " \t;"); i >= 0 {
		first = line[:i]
	}
	for _, kw := range DiagramTypes {
		if first == kw {
			return true
		}
	}
	return false
}

// CheckLimits returns a *LimitError when s has more lines or characters than
// lim allows.
func CheckLimits(s string, lim Limits) error {
	lim = lim.withDefaults()
	if n := strings.Count(s, "\n") + 1; n > lim.MaxLines {
		return &LimitError{Err: ErrTooManyLines, Limit: lim.MaxLines, Got: n}
	}
	if n := len([]rune(s)); n > lim.MaxChars {
		return &LimitError{Err: ErrTooManyChars, Limit: lim.MaxChars, Got: n}
	}
	return nil
}

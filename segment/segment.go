// Package segment splits prose into plain text and inline equation pieces.
package segment

import (
	"iter"
	"strings"
)

// Kind distinguishes plain text from equation markup.
type Kind int

const (
	Text Kind = iota
	Equation
)

func (k Kind) String() string {
	switch k {
	case Text:
		return "text"
	case Equation:
		return "equation"
	default:
		return "unknown"
	}
}

// Segment is one piece of a split text blob.
type Segment struct {
	Kind    Kind
	Content string
}

const (
	OpenTag  = "<equation>"
	CloseTag = "</equation>"
)

// HasEquation reports whether s holds at least one complete equation marker.
func HasEquation(s string) bool {
	i := strings.Index(s, OpenTag)
	return i >= 0 && strings.Contains(s[i+len(OpenTag):], CloseTag)
}

// Split scans s left to right for <equation>...</equation> markers. Text
// around the markers is yielded as Text segments, whitespace-only runs are
// dropped, and marker contents are trimmed and yielded as Equation segments.
// An opening marker with no closing marker is kept as literal text. Markers do
// not nest: the first closing tag ends the equation. The sequence may be
// ranged over any number of times.
func Split(s string) iter.Seq[Segment] {
	return func(yield func(Segment) bool) {
		rest := s
		var pending strings.Builder
		emitText := func() bool {
			t := pending.String()
			pending.Reset()
			if strings.TrimSpace(t) == "" {
				return true
			}
			return yield(Segment{Kind: Text, Content: t})
		}
		for rest != "" {
			open := strings.Index(rest, OpenTag)
			if open < 0 {
				break
			}
			inner := rest[open+len(OpenTag):]
			end := strings.Index(inner, CloseTag)
			if end < 0 {
				break
			}
			pending.WriteString(rest[:open])
			if !emitText() {
				return
			}
			if !yield(Segment{Kind: Equation, Content: strings.TrimSpace(inner[:end])}) {
				return
			}
			rest = inner[end+len(CloseTag):]
		}
		pending.WriteString(rest)
		emitText()
	}
}

// All collects Split(s) into a slice.
func All(s string) []Segment {
	var out []Segment
	for seg := range Split(s) {
		out = append(out, seg)
	}
	return out
}

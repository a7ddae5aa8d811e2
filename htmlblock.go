package md2canvas

import (
	"regexp"
	"strings"
)

// HTMLKind is what an html node's markup is rendered as.
type HTMLKind int

const (
	HTMLDiagram HTMLKind = iota
	HTMLEquation
	HTMLTable
	HTMLText
)

func (k HTMLKind) String() string {
	switch k {
	case HTMLDiagram:
		return "diagram"
	case HTMLEquation:
		return "equation"
	case HTMLTable:
		return "table"
	case HTMLText:
		return "text"
	}
	return "unknown"
}

var (
	diagramTagRe  = regexp.MustCompile(`(?is)<mermaid\b[^>]*>(.*?)</mermaid\s*>`)
	equationTagRe = regexp.MustCompile(`(?is)<equation\b[^>]*>(.*?)</equation\s*>`)
	tableTagRe    = regexp.MustCompile(`(?i)<table\b`)
)

type htmlRule struct {
	kind HTMLKind
	// match reports whether the rule applies and returns the payload the
	// handler renders.
	match func(markup string) (string, bool)
}

// htmlRules are tried in order; the last always matches.
var htmlRules = []htmlRule{
	{HTMLDiagram, submatch(diagramTagRe)},
	{HTMLEquation, submatch(equationTagRe)},
	{HTMLTable, func(s string) (string, bool) { return s, tableTagRe.MatchString(s) }},
	{HTMLText, func(s string) (string, bool) {
		return strings.Join(strings.Fields(stripTags(s)), " "), true
	}},
}

func submatch(re *regexp.Regexp) func(string) (string, bool) {
	return func(s string) (string, bool) {
		m := re.FindStringSubmatch(s)
		if m == nil {
			return "", false
		}
		return m[1], true
	}
}

// ClassifyHTML picks the rendering for markup: a diagram wrapper wins over
// an equation wrapper, which wins over a table; anything else is rendered as
// its text content.
func ClassifyHTML(markup string) (HTMLKind, string) {
	for _, r := range htmlRules {
		if payload, ok := r.match(markup); ok {
			return r.kind, payload
		}
	}
	return HTMLText, ""
}

// Outside returns the text content of markup that lies outside the first
// diagram or equation wrapper; those renderings show only the wrapper's
// payload. It is empty for the other kinds.
func Outside(kind HTMLKind, markup string) string {
	var re *regexp.Regexp
	switch kind {
	case HTMLDiagram:
		re = diagramTagRe
	case HTMLEquation:
		re = equationTagRe
	default:
		return ""
	}
	loc := re.FindStringIndex(markup)
	if loc == nil {
		return ""
	}
	return strings.Join(strings.Fields(stripTags(markup[:loc[0]]+" "+markup[loc[1]:])), " ")
}

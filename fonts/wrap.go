package fonts

import (
	"bufio"
	"strings"
	"unicode"
)

// WrapLines breaks text into lines no wider than maxWidth. Existing line
// breaks are kept and runs of spaces inside a line are preserved.
func WrapLines(m Measurer, size float64, text string, maxWidth float64) []string {
	var lines []string
	scanner := bufio.NewScanner(strings.NewReader(text))
	scanner.Split(bufio.ScanLines)
	for scanner.Scan() {
		ln := scanner.Text()
		if ln == "" {
			lines = append(lines, "")
			continue
		}
		if maxWidth <= 0 || m.Measure(ln, size) <= maxWidth {
			lines = append(lines, ln)
			continue
		}
		lines = append(lines, wrapLinePreservingSpaces(m, size, ln, maxWidth)...)
	}
	if len(lines) == 0 {
		lines = append(lines, "")
	}
	return lines
}

func wrapLinePreservingSpaces(m Measurer, size float64, line string, maxWidth float64) []string {
	if line == "" {
		return []string{""}
	}
	tokens := SplitPreserveSpaces(line)
	var result []string
	var current strings.Builder
	var currentWidth float64

	flush := func() {
		result = append(result, strings.TrimRight(current.String(), " \t"))
		current.Reset()
		currentWidth = 0
	}

	for _, token := range tokens {
		if token == "" {
			continue
		}
		tokenWidth := m.Measure(token, size)
		if tokenWidth > maxWidth {
			if current.Len() > 0 {
				flush()
			}
			result = append(result, BreakLongToken(m, size, token, maxWidth)...)
			continue
		}
		if currentWidth+tokenWidth > maxWidth && current.Len() > 0 {
			flush()
			if unicode.IsSpace([]rune(token)[0]) {
				continue
			}
		}
		current.WriteString(token)
		currentWidth += tokenWidth
	}
	if current.Len() > 0 {
		flush()
	}
	if len(result) == 0 {
		result = append(result, "")
	}
	return result
}

// BreakLongToken splits a single word into pieces that each fit maxWidth.
func BreakLongToken(m Measurer, size float64, token string, maxWidth float64) []string {
	var parts []string
	var current strings.Builder
	var width float64
	for _, r := range token {
		ch := string(r)
		charWidth := m.Measure(ch, size)
		if width+charWidth > maxWidth && current.Len() > 0 {
			parts = append(parts, current.String())
			current.Reset()
			width = 0
		}
		current.WriteString(ch)
		width += charWidth
	}
	if current.Len() > 0 {
		parts = append(parts, current.String())
	}
	if len(parts) == 0 {
		parts = append(parts, token)
	}
	return parts
}

// SplitPreserveSpaces splits s into alternating runs of space and non-space.
func SplitPreserveSpaces(s string) []string {
	if s == "" {
		return nil
	}
	var parts []string
	var current strings.Builder
	lastType := 0 // 0 unknown, 1 space, 2 non-space
	for _, r := range s {
		typ := 2
		if unicode.IsSpace(r) {
			typ = 1
		}
		if lastType == 0 || typ == lastType {
			current.WriteRune(r)
			lastType = typ
			continue
		}
		parts = append(parts, current.String())
		current.Reset()
		current.WriteRune(r)
		lastType = typ
	}
	if current.Len() > 0 {
		parts = append(parts, current.String())
	}
	return parts
}

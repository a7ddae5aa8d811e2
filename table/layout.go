package table

import (
	"math"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/width"

	"github.com/arran4/md2canvas/canvas"
	"github.com/arran4/md2canvas/fonts"
)

// Options controls table sizing. Zero fields take the defaults below.
type Options struct {
	HeaderFontSize float64 `toml:"header_font_size"`
	BodyFontSize   float64 `toml:"body_font_size"`
	CellPadding    float64 `toml:"cell_padding"`
	LineHeight     float64 `toml:"line_height"` // multiple of the font size
	MinColWidth    float64 `toml:"min_col_width"`
	MaxColWidth    float64 `toml:"max_col_width"`
	MaxWidth       float64 `toml:"max_width"`
	CharWidth      float64 `toml:"char_width"` // average glyph advance as a multiple of the font size

	// Measurer sizes columns. When nil the average glyph advance is used.
	Measurer fonts.Measurer `toml:"-"`
}

func (o Options) withDefaults() Options {
	if o.HeaderFontSize <= 0 {
		o.HeaderFontSize = 16
	}
	if o.BodyFontSize <= 0 {
		o.BodyFontSize = 14
	}
	if o.CellPadding <= 0 {
		o.CellPadding = 8
	}
	if o.LineHeight <= 0 {
		o.LineHeight = 1.25
	}
	if o.MinColWidth <= 0 {
		o.MinColWidth = 80
	}
	if o.MaxColWidth <= 0 {
		o.MaxColWidth = 300
	}
	if o.MaxColWidth < o.MinColWidth {
		o.MaxColWidth = o.MinColWidth
	}
	if o.MaxWidth <= 0 {
		o.MaxWidth = 1000
	}
	if o.CharWidth <= 0 {
		o.CharWidth = 0.6
	}
	return o
}

func (o Options) fontSize(row int) float64 {
	if row == 0 {
		return o.HeaderFontSize
	}
	return o.BodyFontSize
}

// textWidth is the single width metric for both column sizing and cell
// wrapping, so a cell that set its column width never wraps.
func (o Options) textWidth(s string, size float64) float64 {
	if o.Measurer != nil {
		return o.Measurer.Measure(s, size)
	}
	return float64(charUnits(s)) * size * o.CharWidth
}

// Layout holds the column widths and row geometry of one table. It is
// computed once and not changed while cells are emitted.
type Layout struct {
	Columns []float64
	ColX    []float64
	Rows    []float64
	RowY    []float64
	Lines   [][][]string // wrapped text per row and cell
	Width   float64
	Height  float64
}

// ComputeLayout sizes every column and row of g.
func ComputeLayout(g Grid, opts Options) Layout {
	o := opts.withDefaults()
	l := Layout{Columns: columnWidths(g, o)}
	l.ColX = make([]float64, len(l.Columns))
	for i, w := range l.Columns {
		l.ColX[i] = l.Width
		l.Width += w
	}
	l.Rows = make([]float64, len(g))
	l.RowY = make([]float64, len(g))
	l.Lines = make([][][]string, len(g))
	for r, row := range g {
		size := o.fontSize(r)
		h := size*o.LineHeight + 2*o.CellPadding
		l.Lines[r] = make([][]string, len(row))
		for c, cell := range row {
			if c >= len(l.Columns) {
				break
			}
			lines := Wrap(cell, l.Columns[c]-2*o.CellPadding, func(t string) float64 { return o.textWidth(t, size) })
			l.Lines[r][c] = lines
			h = math.Max(h, float64(len(lines))*size*o.LineHeight+2*o.CellPadding)
		}
		l.Rows[r] = h
		l.RowY[r] = l.Height
		l.Height += h
	}
	return l
}

func columnWidths(g Grid, o Options) []float64 {
	cols := make([]float64, g.Columns())
	for r, row := range g {
		size := o.fontSize(r)
		for c, cell := range row {
			w := o.textWidth(cell, size)
			cols[c] = math.Max(cols[c], math.Ceil(w)+2*o.CellPadding)
		}
	}
	total := 0.0
	for i, w := range cols {
		cols[i] = math.Min(math.Max(w, o.MinColWidth), o.MaxColWidth)
		total += cols[i]
	}
	if total <= o.MaxWidth {
		return cols
	}
	scaled := 0.0
	for i, w := range cols {
		cols[i] = math.Max(o.MinColWidth, w*o.MaxWidth/total)
		scaled += cols[i]
	}
	// Columns held at the floor can leave the sum above the cap; take the
	// remainder from the slack of the wider ones.
	if excess := scaled - o.MaxWidth; excess > 0 {
		slack := 0.0
		for _, w := range cols {
			slack += w - o.MinColWidth
		}
		if slack > 0 {
			f := math.Min(1, excess/slack)
			for i, w := range cols {
				cols[i] = w - (w-o.MinColWidth)*f
			}
		}
	}
	return cols
}

// charUnits counts runes, with East Asian wide and fullwidth runes as two.
func charUnits(s string) int {
	n := 0
	for _, r := range s {
		switch width.LookupRune(r).Kind() {
		case width.EastAsianWide, width.EastAsianFullwidth:
			n += 2
		default:
			n++
		}
	}
	return n
}

// Wrap packs the words of s greedily onto lines no wider than avail as
// reported by measure. A word wider than a whole line is split mid-word. The
// result always has at least one line.
func Wrap(s string, avail float64, measure func(string) float64) []string {
	words := strings.Fields(s)
	if len(words) == 0 {
		return []string{""}
	}
	fits := func(t string) bool { return measure(t) <= avail }
	var lines []string
	cur := ""
	for _, w := range words {
		if !fits(w) {
			if cur != "" {
				lines = append(lines, cur)
			}
			chunks := splitWord(w, fits)
			lines = append(lines, chunks[:len(chunks)-1]...)
			cur = chunks[len(chunks)-1]
			continue
		}
		switch {
		case cur == "":
			cur = w
		case fits(cur + " " + w):
			cur += " " + w
		default:
			lines = append(lines, cur)
			cur = w
		}
	}
	if cur != "" {
		lines = append(lines, cur)
	}
	return lines
}

// splitWord cuts w into the longest rune prefixes that fit. Every chunk
// holds at least one rune.
func splitWord(w string, fits func(string) bool) []string {
	var chunks []string
	start := 0
	for i, r := range w {
		if i > start && !fits(w[start:i+utf8.RuneLen(r)]) {
			chunks = append(chunks, w[start:i])
			start = i
		}
	}
	if start < len(w) || len(chunks) == 0 {
		chunks = append(chunks, w[start:])
	}
	return chunks
}

// Build lays out the table in markdown with its top-left corner at (x, y).
// It returns one rectangle and one centred text per cell, and the table
// height. Markup with fewer than two non-blank lines yields nothing.
func Build(markdown string, x, y float64, ids *canvas.IDs, opts Options) ([]canvas.Primitive, float64) {
	g := ParseGrid(markdown)
	if len(g) == 0 {
		return nil, 0
	}
	return BuildGrid(g, x, y, ids, opts)
}

// BuildGrid is Build for an already parsed grid.
func BuildGrid(g Grid, x, y float64, ids *canvas.IDs, opts Options) ([]canvas.Primitive, float64) {
	o := opts.withDefaults()
	l := ComputeLayout(g, o)
	prims := make([]canvas.Primitive, 0, 2*len(g)*len(l.Columns))
	for r, row := range g {
		size := o.fontSize(r)
		fill := canvas.ColorTransparent
		if r == 0 {
			fill = canvas.ColorHeaderFill
		}
		for c := range row {
			if c >= len(l.Columns) {
				break
			}
			cx, cy := x+l.ColX[c], y+l.RowY[r]
			prims = append(prims, canvas.Primitive{
				Kind:            canvas.KindRectangle,
				ID:              ids.Next(canvas.KindRectangle),
				X:               cx,
				Y:               cy,
				Width:           l.Columns[c],
				Height:          l.Rows[r],
				StrokeColor:     canvas.ColorStroke,
				BackgroundColor: fill,
			})
			prims = append(prims, canvas.Primitive{
				Kind:        canvas.KindText,
				ID:          ids.Next(canvas.KindText),
				X:           cx + o.CellPadding,
				Y:           cy + o.CellPadding,
				Width:       l.Columns[c] - 2*o.CellPadding,
				Height:      l.Rows[r] - 2*o.CellPadding,
				Text:        strings.Join(l.Lines[r][c], "\n"),
				FontSize:    size,
				TextAlign:   canvas.AlignCenter,
				StrokeColor: canvas.ColorText,
			})
		}
	}
	return prims, l.Height
}

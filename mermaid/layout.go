package mermaid

import (
	"math"

	"github.com/arran4/md2canvas/canvas"
	"github.com/arran4/md2canvas/fonts"
)

// Conversion is the output of a converter: shapes relative to (0,0) and any
// image assets they reference.
type Conversion struct {
	Primitives []canvas.Primitive
	Files      []canvas.FileAsset
}

// LayeredConverter places nodes in ranks by longest path from the sources
// and draws each edge as a straight line between box borders.
type LayeredConverter struct {
	Measurer      fonts.Measurer
	FontSize      float64
	LabelFontSize float64
	NodeHeight    float64
	MinNodeWidth  float64
	RankGap       float64
	NodeGap       float64
	Padding       float64
}

var shapeFill = map[Shape]string{
	ShapeRhombus:  "#fff3bf",
	ShapeCircle:   "#d3f9d8",
	ShapeCylinder: "#d0ebff",
	ShapeStadium:  "#e5dbff",
	ShapeHexagon:  "#ffe8cc",
}

func (c *LayeredConverter) defaults() LayeredConverter {
	d := *c
	if d.FontSize <= 0 {
		d.FontSize = 16
	}
	if d.LabelFontSize <= 0 {
		d.LabelFontSize = 14
	}
	if d.NodeHeight <= 0 {
		d.NodeHeight = 50
	}
	if d.MinNodeWidth <= 0 {
		d.MinNodeWidth = 80
	}
	if d.RankGap <= 0 {
		d.RankGap = 70
	}
	if d.NodeGap <= 0 {
		d.NodeGap = 40
	}
	if d.Padding <= 0 {
		d.Padding = 16
	}
	return d
}

type box struct {
	x, y, w, h float64
}

func (b box) center() (float64, float64) { return b.x + b.w/2, b.y + b.h/2 }

// Convert lays g out. Node order within a rank follows first appearance in
// the source, so the output does not depend on map iteration.
func (c *LayeredConverter) Convert(g *Graph, ids *canvas.IDs) (Conversion, error) {
	var conv Conversion
	if g == nil || len(g.Nodes) == 0 {
		return conv, nil
	}
	cfg := c.defaults()
	measure := func(s string, size float64) float64 {
		if cfg.Measurer != nil {
			return cfg.Measurer.Measure(s, size)
		}
		return float64(len([]rune(s))) * size * 0.6
	}

	ranks := assignRanks(g)
	maxRank := 0
	for _, r := range ranks {
		maxRank = max(maxRank, r)
	}
	layers := make([][]*Node, maxRank+1)
	for _, n := range g.Nodes {
		layers[ranks[n.ID]] = append(layers[ranks[n.ID]], n)
	}

	sizes := make(map[string]box, len(g.Nodes))
	for _, n := range g.Nodes {
		w := math.Max(cfg.MinNodeWidth, math.Ceil(measure(n.Label, cfg.FontSize)+2*cfg.Padding))
		sizes[n.ID] = box{w: w, h: cfg.NodeHeight}
	}

	horizontal := g.Direction == LeftRight || g.Direction == RightLeft
	// extent of each layer along the cross axis, and thickness along the rank axis
	extents := make([]float64, len(layers))
	thick := make([]float64, len(layers))
	widest := 0.0
	for i, layer := range layers {
		for j, n := range layer {
			b := sizes[n.ID]
			along, across := b.h, b.w
			if horizontal {
				along, across = b.w, b.h
			}
			if j > 0 {
				extents[i] += cfg.NodeGap
			}
			extents[i] += across
			thick[i] = math.Max(thick[i], along)
		}
		widest = math.Max(widest, extents[i])
	}

	boxes := make(map[string]box, len(g.Nodes))
	rankPos := 0.0
	offsets := make([]float64, len(layers))
	for i := range layers {
		offsets[i] = rankPos
		rankPos += thick[i] + cfg.RankGap
	}
	total := rankPos - cfg.RankGap
	for i, layer := range layers {
		cross := (widest - extents[i]) / 2
		along := offsets[i]
		if g.Direction == BottomUp || g.Direction == RightLeft {
			along = total - offsets[i] - thick[i]
		}
		for _, n := range layer {
			b := sizes[n.ID]
			if horizontal {
				b.x, b.y = along+(thick[i]-b.w)/2, cross
				cross += b.h + cfg.NodeGap
			} else {
				b.x, b.y = cross, along+(thick[i]-b.h)/2
				cross += b.w + cfg.NodeGap
			}
			boxes[n.ID] = b
		}
	}

	for _, n := range g.Nodes {
		b := boxes[n.ID]
		fill := shapeFill[n.Shape]
		if fill == "" {
			fill = canvas.ColorTransparent
		}
		conv.Primitives = append(conv.Primitives, canvas.Primitive{
			Kind:            canvas.KindRectangle,
			ID:              ids.Next(canvas.KindRectangle),
			X:               b.x,
			Y:               b.y,
			Width:           b.w,
			Height:          b.h,
			StrokeColor:     canvas.ColorStroke,
			BackgroundColor: fill,
		})
		lineH := cfg.FontSize * 1.25
		conv.Primitives = append(conv.Primitives, canvas.Primitive{
			Kind:        canvas.KindText,
			ID:          ids.Next(canvas.KindText),
			X:           b.x + cfg.Padding/2,
			Y:           b.y + (b.h-lineH)/2,
			Width:       b.w - cfg.Padding,
			Height:      lineH,
			Text:        n.Label,
			FontSize:    cfg.FontSize,
			TextAlign:   canvas.AlignCenter,
			StrokeColor: canvas.ColorText,
		})
	}

	for _, e := range g.Edges {
		if e.From == e.To {
			continue
		}
		from, to := boxes[e.From], boxes[e.To]
		fx, fy := from.center()
		tx, ty := to.center()
		sx, sy := clip(from, tx-fx, ty-fy)
		ex, ey := clip(to, fx-tx, fy-ty)
		line := canvas.Primitive{
			Kind:        canvas.KindLine,
			ID:          ids.Next(canvas.KindLine),
			X:           sx,
			Y:           sy,
			Width:       math.Abs(ex - sx),
			Height:      math.Abs(ey - sy),
			StrokeColor: canvas.ColorStroke,
			Points:      []canvas.Point{{X: 0, Y: 0}, {X: ex - sx, Y: ey - sy}},
		}
		switch e.Style {
		case EdgeDotted:
			line.StrokeStyle = "dotted"
		case EdgeThick:
			line.StrokeWidth = 3
		}
		if e.Arrow {
			line.EndArrowhead = "arrow"
		}
		conv.Primitives = append(conv.Primitives, line)
		if e.Label != "" {
			lw := measure(e.Label, cfg.LabelFontSize)
			lh := cfg.LabelFontSize * 1.25
			conv.Primitives = append(conv.Primitives, canvas.Primitive{
				Kind:        canvas.KindText,
				ID:          ids.Next(canvas.KindText),
				X:           (sx+ex)/2 - lw/2,
				Y:           (sy+ey)/2 - lh/2,
				Width:       lw,
				Height:      lh,
				Text:        e.Label,
				FontSize:    cfg.LabelFontSize,
				TextAlign:   canvas.AlignCenter,
				StrokeColor: canvas.ColorText,
			})
		}
	}
	return conv, nil
}

// clip returns the point where a ray from the centre of b in direction
// (dx, dy) leaves the box.
func clip(b box, dx, dy float64) (float64, float64) {
	cx, cy := b.center()
	if dx == 0 && dy == 0 {
		return cx, cy
	}
	t := math.Inf(1)
	if dx != 0 {
		t = math.Min(t, b.w/2/math.Abs(dx))
	}
	if dy != 0 {
		t = math.Min(t, b.h/2/math.Abs(dy))
	}
	return cx + dx*t, cy + dy*t
}

// assignRanks gives every node the length of the longest path reaching it.
// Edges that close a cycle, found by a depth-first walk in node order, are
// ignored for ranking.
func assignRanks(g *Graph) map[string]int {
	adj := make(map[string][]string, len(g.Nodes))
	for _, e := range g.Edges {
		if e.From != e.To {
			adj[e.From] = append(adj[e.From], e.To)
		}
	}
	const (
		unvisited = iota
		active
		finished
	)
	state := make(map[string]int, len(g.Nodes))
	back := make(map[[2]string]bool)
	var visit func(id string)
	visit = func(id string) {
		state[id] = active
		for _, to := range adj[id] {
			switch state[to] {
			case unvisited:
				visit(to)
			case active:
				back[[2]string{id, to}] = true
			}
		}
		state[id] = finished
	}
	for _, n := range g.Nodes {
		if state[n.ID] == unvisited {
			visit(n.ID)
		}
	}

	ranks := make(map[string]int, len(g.Nodes))
	for _, n := range g.Nodes {
		ranks[n.ID] = 0
	}
	for range g.Nodes {
		changed := false
		for _, e := range g.Edges {
			if e.From == e.To || back[[2]string{e.From, e.To}] {
				continue
			}
			if next := ranks[e.From] + 1; next > ranks[e.To] {
				ranks[e.To] = next
				changed = true
			}
		}
		if !changed {
			break
		}
	}
	return ranks
}

package md2canvas

import (
	"context"
	"crypto/sha1"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"

	"github.com/arran4/md2canvas/canvas"
	"github.com/arran4/md2canvas/fonts"
	"github.com/arran4/md2canvas/mermaid"
	"github.com/arran4/md2canvas/segment"
	"github.com/arran4/md2canvas/table"
)

const lineHeightFactor = 1.25

// Walker lays out a document tree depth first, advancing a single vertical
// cursor. A Walker is not safe for concurrent use; each node is finished,
// including any equation or diagram render, before the next one starts.
type Walker struct {
	opts Options
	log  *slog.Logger
	ids  *canvas.IDs

	tableBlocks []string

	y     float64
	out   []canvas.Primitive
	files []canvas.FileAsset
	seen  map[string]bool
}

// NewWalker returns a Walker whose cursor starts at opts.StartY.
func NewWalker(opts Options) (*Walker, error) {
	o, err := opts.withDefaults()
	if err != nil {
		return nil, err
	}
	return &Walker{
		opts: o,
		log:  o.Logger,
		ids:  canvas.NewIDs(o.IDPrefix),
		y:    o.StartY,
		seen: make(map[string]bool),
	}, nil
}

// SetTableBlocks supplies the tables that TABLE_BLOCK_<n> placeholders refer to.
func (w *Walker) SetTableBlocks(blocks []string) { w.tableBlocks = blocks }

// Cursor returns the next free y coordinate.
func (w *Walker) Cursor() float64 { return w.y }

// SetCursor moves the cursor. The driver uses it to start at the viewport.
func (w *Walker) SetCursor(y float64) { w.y = y }

// Flush returns everything emitted since the previous Flush.
func (w *Walker) Flush() ([]canvas.Primitive, []canvas.FileAsset) {
	prims, files := w.out, w.files
	w.out, w.files = nil, nil
	return prims, files
}

// Result is the output of a complete layout pass.
type Result struct {
	Primitives []canvas.Primitive
	Files      []canvas.FileAsset
	Cursor     float64
}

// Layout walks every top-level child of doc at depth 0.
func Layout(ctx context.Context, doc *Document, tableBlocks []string, opts Options) (Result, error) {
	w, err := NewWalker(opts)
	if err != nil {
		return Result{}, err
	}
	w.SetTableBlocks(tableBlocks)
	for _, n := range doc.Children {
		if err := w.Walk(ctx, n, w.opts.StartX, 0); err != nil {
			return Result{}, err
		}
	}
	prims, files := w.Flush()
	return Result{Primitives: prims, Files: files, Cursor: w.y}, nil
}

// Walk lays out n with its left edge at x plus depth indents. Rendering
// failures inside a block are replaced by fallback text and never returned;
// the error is non-nil only when ctx is done or n is not a known node type.
func (w *Walker) Walk(ctx context.Context, n Node, x float64, depth int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	switch n := n.(type) {
	case *Heading:
		w.heading(n, x, depth)
	case *Paragraph:
		return w.paragraph(ctx, n, x, depth)
	case *HTML:
		return w.html(ctx, n.Value, x, depth)
	case *Table:
		w.table(n, x, depth)
	case *ThematicBreak:
		w.rule(x, depth)
	case *List:
		return w.list(ctx, n, x, depth)
	case *ListItem:
		return w.listItem(ctx, n, "- ", x, depth)
	case *Text:
		return w.text(ctx, n.Value, x, depth)
	case *Code:
		w.code(n, x, depth)
	case *Image:
		return w.image(ctx, n, x, depth)
	case *Document, *Container:
		for _, c := range children(n) {
			if err := w.Walk(ctx, c, x, depth+1); err != nil {
				return err
			}
		}
	default:
		return fmt.Errorf("md2canvas: unknown node type %T", n)
	}
	return nil
}

func (w *Walker) indent(x float64, depth int) float64 {
	return x + float64(depth)*w.opts.IndentUnit
}

// emitText places s at the cursor without moving it.
func (w *Walker) emitText(s string, x, size float64, color string, fallback bool) canvas.Primitive {
	return w.emitStyled(s, x, size, canvas.FontRegular, color, fallback)
}

func (w *Walker) measurer(f canvas.Font) fonts.Measurer {
	switch f {
	case canvas.FontBold:
		return w.opts.Fonts.Bold
	case canvas.FontMono:
		return w.opts.Fonts.Mono
	}
	return w.opts.Measurer
}

func (w *Walker) emitStyled(s string, x, size float64, font canvas.Font, color string, fallback bool) canvas.Primitive {
	m := w.measurer(font)
	lines := strings.Split(s, "\n")
	width := 0.0
	for _, ln := range lines {
		width = math.Max(width, m.Measure(ln, size))
	}
	p := canvas.Primitive{
		Kind:        canvas.KindText,
		ID:          w.ids.Next(canvas.KindText),
		X:           x,
		Y:           w.y,
		Width:       math.Ceil(width),
		Height:      float64(len(lines)) * size * lineHeightFactor,
		Text:        s,
		FontSize:    size,
		TextAlign:   canvas.AlignLeft,
		Font:        font,
		StrokeColor: color,
		Fallback:    fallback,
	}
	w.out = append(w.out, p)
	return p
}

// advanceText moves past a text primitive: the fixed increment for one line,
// plus the height of any further lines.
func (w *Walker) advanceText(p canvas.Primitive, base float64) {
	extra := p.Height - p.FontSize*lineHeightFactor
	w.y += base + math.Max(0, extra)
}

func (w *Walker) fallback(s string, x float64, depth int) {
	p := w.emitText(s, w.indent(x, depth), w.opts.FontSize, canvas.ColorError, true)
	w.advanceText(p, w.opts.FallbackAdvance)
}

func (w *Walker) heading(n *Heading, x float64, depth int) {
	size := math.Max(12, 20-2*float64(n.Level))
	w.emitStyled(strings.TrimSpace(PlainText(n)), w.indent(x, depth), size, canvas.FontBold, canvas.ColorText, false)
	w.y += size + 20
}

// code emits a code block verbatim in the monospace face.
func (w *Walker) code(n *Code, x float64, depth int) {
	if strings.TrimSpace(n.Value) == "" {
		return
	}
	p := w.emitStyled(n.Value, w.indent(x, depth), w.opts.FontSize, canvas.FontMono, canvas.ColorText, false)
	w.advanceText(p, w.opts.LineAdvance)
}

func (w *Walker) paragraph(ctx context.Context, n *Paragraph, x float64, depth int) error {
	if mixed(n) {
		return w.mixedParagraph(ctx, n, "", x, depth)
	}
	txt := strings.TrimSpace(PlainText(n))
	if tableBlockRe.MatchString(txt) {
		return w.text(ctx, txt, x, depth)
	}
	if txt == "" {
		return nil
	}
	if w.opts.WrapWidth > 0 {
		txt = strings.Join(fonts.WrapLines(w.opts.Measurer, w.opts.FontSize, txt, w.opts.WrapWidth), "\n")
	}
	p := w.emitText(txt, w.indent(x, depth), w.opts.FontSize, canvas.ColorText, false)
	w.advanceText(p, w.opts.LineAdvance)
	return nil
}

// mixed reports whether a paragraph holds images, rendered markup or
// equations that need their own primitives. Formatting tags stay inline.
func mixed(n Node) bool {
	var found bool
	var visit func(Node)
	visit = func(n Node) {
		switch n := n.(type) {
		case *HTML:
			if kind, _ := ClassifyHTML(n.Value); kind != HTMLText {
				found = true
			}
		case *Image:
			found = true
		case *Text:
			if segment.HasEquation(n.Value) {
				found = true
			}
		default:
			for _, c := range children(n) {
				visit(c)
			}
		}
	}
	for _, c := range children(n) {
		visit(c)
	}
	return found || segment.HasEquation(PlainText(n))
}

// mixedParagraph gives every piece its own primitive and cursor advance.
// Consecutive prose children are joined before segmenting so an emphasised
// word does not become a separate line. lead is prepended to the first piece.
func (w *Walker) mixedParagraph(ctx context.Context, n *Paragraph, lead string, x float64, depth int) error {
	var prose strings.Builder
	prose.WriteString(lead)
	flush := func() error {
		s := prose.String()
		prose.Reset()
		return w.segments(ctx, s, x, depth)
	}
	for _, c := range n.Children {
		switch c := c.(type) {
		case *HTML:
			if kind, _ := ClassifyHTML(c.Value); kind == HTMLText {
				prose.WriteString(stripTags(c.Value))
				continue
			}
			if err := flush(); err != nil {
				return err
			}
			if err := w.html(ctx, c.Value, x, depth); err != nil {
				return err
			}
		case *Image:
			if err := flush(); err != nil {
				return err
			}
			if err := w.image(ctx, c, x, depth); err != nil {
				return err
			}
		case *Container:
			if containsMarkup(c) {
				if err := flush(); err != nil {
					return err
				}
				if err := w.mixedParagraph(ctx, &Paragraph{Children: c.Children}, "", x, depth); err != nil {
					return err
				}
				continue
			}
			prose.WriteString(PlainText(c))
		default:
			prose.WriteString(PlainText(c))
		}
	}
	return flush()
}

func containsMarkup(n Node) bool {
	for _, c := range children(n) {
		switch c := c.(type) {
		case *HTML:
			if kind, _ := ClassifyHTML(c.Value); kind != HTMLText {
				return true
			}
		case *Image:
			return true
		}
		if containsMarkup(c) {
			return true
		}
	}
	return false
}

// segments emits the text and equation pieces of s in order.
func (w *Walker) segments(ctx context.Context, s string, x float64, depth int) error {
	for seg := range segment.Split(s) {
		switch seg.Kind {
		case segment.Text:
			p := w.emitText(seg.Content, w.indent(x, depth), w.opts.FontSize, canvas.ColorText, false)
			w.advanceText(p, w.opts.LineAdvance)
		case segment.Equation:
			if err := w.equation(ctx, seg.Content, x, depth); err != nil {
				return err
			}
		}
	}
	return nil
}

func (w *Walker) blockContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, w.opts.BlockTimeout)
}

func (w *Walker) equation(ctx context.Context, markup string, x float64, depth int) error {
	bctx, cancel := w.blockContext(ctx)
	img, err := w.opts.Rasterizer.Render(bctx, markup)
	cancel()
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		w.log.Warn("equation render failed", "block", "equation", "markup", markup, "err", err)
		w.fallback("LaTeX Error: "+markup, x, depth)
		return nil
	}
	id := w.addFile(img.Data, img.MimeType, img.DataURL())
	w.out = append(w.out, canvas.Primitive{
		Kind:   canvas.KindImage,
		ID:     w.ids.Next(canvas.KindImage),
		X:      w.indent(x, depth),
		Y:      w.y,
		Width:  img.Width,
		Height: img.Height,
		FileID: id,
	})
	w.y += img.Height + w.opts.EquationGap
	return nil
}

// addFile records an asset once per content hash and returns its id.
func (w *Walker) addFile(data []byte, mime, dataURL string) string {
	sum := sha1.Sum(data)
	id := hex.EncodeToString(sum[:])
	if !w.seen[id] {
		w.seen[id] = true
		w.files = append(w.files, canvas.FileAsset{
			ID:       id,
			DataURL:  dataURL,
			MimeType: mime,
			Created:  w.opts.Now().UnixMilli(),
		})
	}
	return id
}

func (w *Walker) diagram(ctx context.Context, src string, x float64, depth int) error {
	bctx, cancel := w.blockContext(ctx)
	g, err := w.parseDiagram(bctx, src)
	cancel()
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		level := slog.LevelWarn
		var le *mermaid.LimitError
		if errors.As(err, &le) {
			level = slog.LevelError
		}
		w.log.Log(ctx, level, "diagram render failed", "block", "diagram", "err", err)
		w.fallback("Diagram Error: "+firstLine(err.Error()), x, depth)
		return nil
	}
	pl, err := PlaceDiagram(w.opts.DiagramConverter, g, w.ids, w.indent(x, depth), w.y)
	if err != nil {
		w.log.Warn("diagram layout failed", "block", "diagram", "err", err)
		w.fallback("Diagram Error: "+firstLine(err.Error()), x, depth)
		return nil
	}
	if len(pl.Primitives) == 0 {
		p := w.emitText("(empty diagram)", w.indent(x, depth), w.opts.FontSize, canvas.ColorText, false)
		w.advanceText(p, w.opts.LineAdvance)
		return nil
	}
	w.out = append(w.out, pl.Primitives...)
	for _, f := range pl.Files {
		if !w.seen[f.ID] {
			w.seen[f.ID] = true
			w.files = append(w.files, f)
		}
	}
	w.y += pl.Height + w.opts.DiagramPadding
	return nil
}

// parseDiagram tries the quoting clean-up first and, when the result does
// not parse, the lighter sanitising pass.
func (w *Walker) parseDiagram(ctx context.Context, raw string) (*mermaid.Graph, error) {
	raw = strings.TrimSpace(raw)
	if err := mermaid.CheckLimits(raw, w.opts.DiagramLimits); err != nil {
		return nil, err
	}
	g, err := w.opts.DiagramParser.Parse(ctx, mermaid.Normalize(raw))
	if err == nil {
		return g, nil
	}
	if ctx.Err() != nil || errors.Is(err, mermaid.ErrUnsupportedDiagram) {
		return nil, err
	}
	light, lerr := mermaid.Sanitize(raw, w.opts.DiagramLimits)
	if lerr != nil {
		return nil, lerr
	}
	g, lerr = w.opts.DiagramParser.Parse(ctx, light)
	if lerr != nil {
		return nil, err
	}
	w.log.Debug("diagram parsed after sanitising", "block", "diagram", "first_err", err)
	return g, nil
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

func (w *Walker) html(ctx context.Context, markup string, x float64, depth int) error {
	kind, payload := ClassifyHTML(markup)
	if rest := Outside(kind, markup); rest != "" {
		w.log.Debug("content outside wrapper not rendered", "block", kind.String(), "dropped", rest)
	}
	switch kind {
	case HTMLDiagram:
		return w.diagram(ctx, payload, x, depth)
	case HTMLEquation:
		return w.equation(ctx, strings.TrimSpace(payload), x, depth)
	case HTMLTable:
		w.htmlTable(payload, x, depth)
	case HTMLText:
		if payload != "" {
			p := w.emitText(payload, w.indent(x, depth), w.opts.FontSize, canvas.ColorText, false)
			w.advanceText(p, w.opts.LineAdvance)
		}
	}
	return nil
}

func (w *Walker) htmlTable(markup string, x float64, depth int) {
	md, err := table.HTMLToMarkdown(markup)
	if err != nil {
		w.log.Warn("table conversion failed", "block", "table", "err", err)
		w.fallback("Table Error: "+firstLine(err.Error()), x, depth)
		return
	}
	w.tableMarkdown(md, x, depth)
}

// tableMarkdown lays out a pipe table. When no cells come out the cursor
// still moves by the table fallback, with the row text shown if there is
// any.
func (w *Walker) tableMarkdown(md string, x float64, depth int) {
	prims, h := table.Build(md, w.indent(x, depth), w.y, w.ids, w.opts.Table)
	for _, p := range prims {
		if p.Kind == canvas.KindRectangle {
			w.out = append(w.out, prims...)
			w.y += h + w.opts.TablePadding
			return
		}
	}
	if s := strings.TrimSpace(strings.Trim(strings.TrimSpace(md), "|")); s != "" {
		w.emitText(s, w.indent(x, depth), w.opts.FontSize, canvas.ColorText, false)
	}
	w.y += w.opts.TableFallback
}

func (w *Walker) table(n *Table, x float64, depth int) {
	var rows [][]string
	for _, r := range n.Rows {
		cells := make([]string, 0, len(r.Cells))
		for _, c := range r.Cells {
			cells = append(cells, table.CleanCell(PlainText(&Container{Children: c.Children})))
		}
		rows = append(rows, cells)
	}
	if len(rows) == 0 {
		return
	}
	w.tableMarkdown(table.ToMarkdown(rows), x, depth)
}

func (w *Walker) rule(x float64, depth int) {
	length := w.opts.RuleLength
	w.out = append(w.out, canvas.Primitive{
		Kind:        canvas.KindLine,
		ID:          w.ids.Next(canvas.KindLine),
		X:           w.indent(x, depth),
		Y:           w.y,
		Width:       length,
		StrokeColor: canvas.ColorStroke,
		Points:      []canvas.Point{{X: 0, Y: 0}, {X: length, Y: 0}},
	})
	w.y += w.opts.RuleAdvance
}

func (w *Walker) list(ctx context.Context, n *List, x float64, depth int) error {
	start := n.Start
	if !n.Ordered || start == 0 {
		start = 1
	}
	index := 0
	for _, c := range n.Children {
		item, ok := c.(*ListItem)
		if !ok {
			if err := w.Walk(ctx, c, x, depth); err != nil {
				return err
			}
			continue
		}
		marker := "- "
		if n.Ordered {
			marker = strconv.Itoa(start+index) + ". "
		}
		if err := w.listItem(ctx, item, marker, x, depth); err != nil {
			return err
		}
		index++
	}
	return nil
}

// listItem emits the item's prose as one line after marker. An item whose
// first paragraph holds equations or markup is laid out piece by piece with
// the marker leading the first piece. Nested lists and block content follow
// one indent deeper.
func (w *Walker) listItem(ctx context.Context, n *ListItem, marker string, x float64, depth int) error {
	var parts []string
	var nested []Node
	var lead *Paragraph
	for _, c := range n.Children {
		switch c := c.(type) {
		case *List, *Table, *ThematicBreak, *HTML, *Image, *Code:
			nested = append(nested, c)
		case *Paragraph:
			switch {
			case lead == nil && mixed(c) && len(parts) == 0 && len(nested) == 0:
				lead = c
			case lead != nil || mixed(c):
				nested = append(nested, c)
			default:
				parts = append(parts, strings.TrimSpace(PlainText(c)))
			}
		default:
			if lead != nil {
				nested = append(nested, c)
				continue
			}
			parts = append(parts, strings.TrimSpace(PlainText(c)))
		}
	}
	if lead != nil {
		if err := w.mixedParagraph(ctx, lead, marker, x, depth); err != nil {
			return err
		}
	} else {
		p := w.emitText(marker+strings.Join(parts, " "), w.indent(x, depth), w.opts.FontSize, canvas.ColorText, false)
		w.advanceText(p, w.opts.LineAdvance)
	}
	for _, c := range nested {
		if err := w.Walk(ctx, c, x, depth+1); err != nil {
			return err
		}
	}
	return nil
}

// text handles a standalone text node, substituting extracted tables for
// TABLE_BLOCK_<n> placeholders.
func (w *Walker) text(ctx context.Context, s string, x float64, depth int) error {
	if m := tableBlockRe.FindStringSubmatch(s); m != nil {
		idx, err := strconv.Atoi(m[1])
		if err != nil || idx >= len(w.tableBlocks) {
			w.log.Warn("missing table block", "block", "table", "placeholder", strings.TrimSpace(s))
			w.fallback("Table Error: missing "+strings.TrimSpace(s), x, depth)
			return nil
		}
		raw := w.tableBlocks[idx]
		if tableTagRe.MatchString(raw) {
			w.htmlTable(raw, x, depth)
		} else {
			w.tableMarkdown(raw, x, depth)
		}
		return nil
	}
	return w.segments(ctx, s, x, depth)
}

func (w *Walker) image(ctx context.Context, n *Image, x float64, depth int) error {
	if w.opts.Images == nil {
		w.imageFallback(n, nil, x, depth)
		return nil
	}
	bctx, cancel := w.blockContext(ctx)
	img, err := w.opts.Images.Load(bctx, n.Src)
	cancel()
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		w.imageFallback(n, err, x, depth)
		return nil
	}
	width, height := float64(img.Width), float64(img.Height)
	if width > w.opts.ImageMaxWidth {
		height = height * w.opts.ImageMaxWidth / width
		width = w.opts.ImageMaxWidth
	}
	dataURL := "data:" + img.MimeType + ";base64," + base64.StdEncoding.EncodeToString(img.Data)
	id := w.addFile(img.Data, img.MimeType, dataURL)
	w.out = append(w.out, canvas.Primitive{
		Kind:   canvas.KindImage,
		ID:     w.ids.Next(canvas.KindImage),
		X:      w.indent(x, depth),
		Y:      w.y,
		Width:  width,
		Height: height,
		FileID: id,
	})
	w.y += height + w.opts.EquationGap
	return nil
}

// imageFallback shows the alt text, or the destination in the error colour
// when there is none.
func (w *Walker) imageFallback(n *Image, err error, x float64, depth int) {
	if err != nil {
		w.log.Warn("image load failed", "block", "image", "src", n.Src, "err", err)
	}
	label, color := strings.TrimSpace(n.Alt), canvas.ColorText
	if label == "" {
		label, color = n.Src, canvas.ColorError
	}
	if label == "" {
		return
	}
	p := w.emitText(label, w.indent(x, depth), w.opts.FontSize, color, color == canvas.ColorError)
	w.advanceText(p, w.opts.LineAdvance)
}

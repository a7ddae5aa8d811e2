package md2canvas

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/arran4/md2canvas/canvas"
	"github.com/arran4/md2canvas/equation"
	"github.com/arran4/md2canvas/fonts"
	"github.com/arran4/md2canvas/mermaid"
)

type failingEngine struct{}

func (failingEngine) Init(context.Context) error { return nil }

func (failingEngine) Render(context.Context, string) (equation.Image, error) {
	return equation.Image{}, errors.New("no typesetter")
}

func ofKind(prims []canvas.Primitive, k canvas.Kind) []canvas.Primitive {
	var out []canvas.Primitive
	for _, p := range prims {
		if p.Kind == k {
			out = append(out, p)
		}
	}
	return out
}

func TestHeadingLayout(t *testing.T) {
	doc := &Document{Children: []Node{
		&Heading{Level: 1, Children: []Node{&Text{Value: "Title"}}},
	}}
	res, err := Layout(context.Background(), doc, nil, Options{})
	if err != nil {
		t.Fatalf("layout: %v", err)
	}
	if len(res.Primitives) != 1 {
		t.Fatalf("got %d primitives, want 1", len(res.Primitives))
	}
	p := res.Primitives[0]
	if p.Kind != canvas.KindText || p.Text != "Title" || p.FontSize != 18 || p.Y != 0 || p.X != 0 {
		t.Fatalf("unexpected heading primitive %+v", p)
	}
	if res.Cursor != 38 {
		t.Fatalf("cursor = %v, want 38", res.Cursor)
	}
}

func TestHeadingsBoldAndCodeMono(t *testing.T) {
	doc, _ := ParseMarkdown([]byte("# Title\n\n```go\nx := 1\ny := 2\n```\n\nafter\n"))
	if diff := cmp.Diff(&Code{Language: "go", Value: "x := 1\ny := 2"}, doc.Children[1]); diff != "" {
		t.Fatalf("code node mismatch (-want +got):\n%s", diff)
	}
	res, err := Layout(context.Background(), doc, nil, Options{})
	if err != nil {
		t.Fatalf("layout: %v", err)
	}
	if len(res.Primitives) != 3 {
		t.Fatalf("got %d primitives, want 3", len(res.Primitives))
	}
	fs, err := fonts.Default()
	if err != nil {
		t.Fatalf("fonts: %v", err)
	}
	h, code, after := res.Primitives[0], res.Primitives[1], res.Primitives[2]
	if h.Font != canvas.FontBold || h.Width != math.Ceil(fs.Bold.Measure("Title", 18)) {
		t.Fatalf("heading not measured in bold: %+v", h)
	}
	if code.Font != canvas.FontMono || code.Text != "x := 1\ny := 2" || code.Width != math.Ceil(fs.Mono.Measure("x := 1", 16)) {
		t.Fatalf("code not laid out in mono: %+v", code)
	}
	if code.Y != 38 || after.Y != 38+30+16*1.25 || after.Font != canvas.FontRegular {
		t.Fatalf("unexpected positions: code %v after %+v", code.Y, after)
	}
}

func TestHeadingSizes(t *testing.T) {
	for level, want := range map[int]float64{2: 16, 3: 14, 4: 12, 6: 12} {
		w, err := NewWalker(Options{})
		if err != nil {
			t.Fatalf("walker: %v", err)
		}
		if err := w.Walk(context.Background(), &Heading{Level: level, Children: []Node{&Text{Value: "h"}}}, 0, 0); err != nil {
			t.Fatalf("walk: %v", err)
		}
		prims, _ := w.Flush()
		if prims[0].FontSize != want || w.Cursor() != want+20 {
			t.Fatalf("level %d: size %v cursor %v, want %v", level, prims[0].FontSize, w.Cursor(), want)
		}
	}
}

func TestFailedEquationFallsBackInline(t *testing.T) {
	opts := Options{Rasterizer: equation.NewRasterizer(failingEngine{})}
	doc, _ := ParseMarkdown([]byte("Energy: <equation>E=mc^2</equation> is conserved.\n"))
	res, err := Layout(context.Background(), doc, nil, opts)
	if err != nil {
		t.Fatalf("layout: %v", err)
	}
	var got []string
	for _, p := range res.Primitives {
		got = append(got, p.Text)
	}
	want := []string{"Energy: ", "LaTeX Error: E=mc^2", " is conserved."}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("texts mismatch (-want +got):\n%s", diff)
	}
	for i := 1; i < len(res.Primitives); i++ {
		if res.Primitives[i].Y <= res.Primitives[i-1].Y {
			t.Fatalf("y not increasing: %v then %v", res.Primitives[i-1].Y, res.Primitives[i].Y)
		}
	}
	fb := res.Primitives[1]
	if !fb.Fallback || fb.StrokeColor != canvas.ColorError {
		t.Fatalf("fallback not error styled: %+v", fb)
	}
	if res.Primitives[0].StrokeColor == canvas.ColorError {
		t.Fatalf("plain text styled as error")
	}
}

func TestEquationRendersImage(t *testing.T) {
	w, err := NewWalker(Options{})
	if err != nil {
		t.Fatalf("walker: %v", err)
	}
	if err := w.Walk(context.Background(), &Text{Value: "<equation>x^2</equation><equation>x^2</equation>"}, 0, 0); err != nil {
		t.Fatalf("walk: %v", err)
	}
	prims, files := w.Flush()
	imgs := ofKind(prims, canvas.KindImage)
	if len(imgs) != 2 {
		t.Fatalf("got %d images, want 2", len(imgs))
	}
	if len(files) != 1 || imgs[0].FileID != files[0].ID || imgs[1].FileID != files[0].ID {
		t.Fatalf("expected one shared file, got %d", len(files))
	}
	if !strings.HasPrefix(files[0].DataURL, "data:image/png;base64,") {
		t.Fatalf("unexpected data url %.30s", files[0].DataURL)
	}
	if want := imgs[0].Y + imgs[0].Height + 10; imgs[1].Y != want {
		t.Fatalf("second equation at %v, want %v", imgs[1].Y, want)
	}
}

func TestTablePlaceholder(t *testing.T) {
	w, err := NewWalker(Options{})
	if err != nil {
		t.Fatalf("walker: %v", err)
	}
	w.SetTableBlocks([]string{"| A | B |\n| 1 | 2 |"})
	if err := w.Walk(context.Background(), &Text{Value: "TABLE_BLOCK_0"}, 0, 0); err != nil {
		t.Fatalf("walk: %v", err)
	}
	prims, _ := w.Flush()
	rects := ofKind(prims, canvas.KindRectangle)
	texts := ofKind(prims, canvas.KindText)
	if len(rects) != 4 || len(texts) != 4 {
		t.Fatalf("got %d rectangles and %d texts, want 4 and 4", len(rects), len(texts))
	}
	if rects[0].Y != rects[1].Y || rects[2].Y != rects[3].Y || rects[2].Y <= rects[0].Y {
		t.Fatalf("row positions wrong: %v %v %v %v", rects[0].Y, rects[1].Y, rects[2].Y, rects[3].Y)
	}
	if want := rects[3].Bottom() + 20; w.Cursor() != want {
		t.Fatalf("cursor = %v, want %v", w.Cursor(), want)
	}
}

func TestHTMLTableExtracted(t *testing.T) {
	src := "Intro\n\n<table>\n<tr><th>Name</th><th>Qty</th></tr>\n\n<tr><td>Apple</td><td>3</td></tr>\n</table>\n\nOutro\n"
	doc, blocks := ParseMarkdown([]byte(src))
	if len(blocks) != 1 {
		t.Fatalf("got %d table blocks, want 1", len(blocks))
	}
	res, err := Layout(context.Background(), doc, blocks, Options{})
	if err != nil {
		t.Fatalf("layout: %v", err)
	}
	if n := len(ofKind(res.Primitives, canvas.KindRectangle)); n != 4 {
		t.Fatalf("got %d rectangles, want 4", n)
	}
	last := res.Primitives[len(res.Primitives)-1]
	if last.Text != "Outro" {
		t.Fatalf("last primitive %q, want Outro", last.Text)
	}
}

func TestMissingTableBlockFallsBack(t *testing.T) {
	w, err := NewWalker(Options{})
	if err != nil {
		t.Fatalf("walker: %v", err)
	}
	if err := w.Walk(context.Background(), &Text{Value: "TABLE_BLOCK_3"}, 0, 0); err != nil {
		t.Fatalf("walk: %v", err)
	}
	prims, _ := w.Flush()
	if len(prims) != 1 || !prims[0].Fallback || !strings.HasPrefix(prims[0].Text, "Table Error:") {
		t.Fatalf("unexpected primitives %+v", prims)
	}
	if w.Cursor() != 30 {
		t.Fatalf("cursor = %v, want 30", w.Cursor())
	}
}

func TestSingleRowTableAdvancesFallback(t *testing.T) {
	w, err := NewWalker(Options{})
	if err != nil {
		t.Fatalf("walker: %v", err)
	}
	tbl := &Table{Rows: []TableRow{{Cells: []TableCell{{Children: []Node{&Text{Value: "only"}}}}}}}
	if err := w.Walk(context.Background(), tbl, 0, 0); err != nil {
		t.Fatalf("walk: %v", err)
	}
	prims, _ := w.Flush()
	if len(ofKind(prims, canvas.KindRectangle)) != 0 {
		t.Fatalf("single row table drew cells")
	}
	if w.Cursor() != 30 {
		t.Fatalf("cursor = %v, want 30", w.Cursor())
	}
}

func TestDiagramBlock(t *testing.T) {
	w, err := NewWalker(Options{StartY: 100})
	if err != nil {
		t.Fatalf("walker: %v", err)
	}
	if err := w.Walk(context.Background(), &HTML{Value: "<mermaid>\ngraph TD\nA[Start] --> B[End]\n</mermaid>"}, 0, 0); err != nil {
		t.Fatalf("walk: %v", err)
	}
	prims, _ := w.Flush()
	if len(ofKind(prims, canvas.KindRectangle)) != 2 {
		t.Fatalf("expected two node rectangles, got %+v", prims)
	}
	bottom := 0.0
	for _, p := range prims {
		if p.Y < 100 {
			t.Fatalf("primitive above block start: %+v", p)
		}
		bottom = max(bottom, p.Bottom())
	}
	if w.Cursor() < bottom {
		t.Fatalf("cursor %v inside diagram ending at %v", w.Cursor(), bottom)
	}
}

func TestUnsupportedDiagramFallsBack(t *testing.T) {
	w, err := NewWalker(Options{})
	if err != nil {
		t.Fatalf("walker: %v", err)
	}
	if err := w.Walk(context.Background(), &HTML{Value: "<mermaid>sequenceDiagram\nA->>B: hi</mermaid>"}, 0, 0); err != nil {
		t.Fatalf("walk: %v", err)
	}
	prims, _ := w.Flush()
	if len(prims) != 1 || !prims[0].Fallback || !strings.HasPrefix(prims[0].Text, "Diagram Error:") {
		t.Fatalf("unexpected primitives %+v", prims)
	}
	if w.Cursor() != 30 {
		t.Fatalf("cursor = %v, want 30", w.Cursor())
	}
}

func TestDiagramRetriesWithSanitisedSource(t *testing.T) {
	var calls []string
	parser := DiagramParserFunc(func(ctx context.Context, src string) (*mermaid.Graph, error) {
		calls = append(calls, src)
		if len(calls) == 1 {
			return nil, mermaid.ErrSyntax
		}
		return mermaid.Parse(ctx, src)
	})
	w, err := NewWalker(Options{DiagramParser: parser})
	if err != nil {
		t.Fatalf("walker: %v", err)
	}
	if err := w.Walk(context.Background(), &HTML{Value: "<mermaid>graph LR\nA --> B</mermaid>"}, 0, 0); err != nil {
		t.Fatalf("walk: %v", err)
	}
	if len(calls) != 2 {
		t.Fatalf("parser called %d times, want 2", len(calls))
	}
	prims, _ := w.Flush()
	for _, p := range prims {
		if p.Fallback {
			t.Fatalf("unexpected fallback %+v", p)
		}
	}
}

type stubConverter struct {
	prims []canvas.Primitive
	err   error
}

func (c stubConverter) Convert(*mermaid.Graph, *canvas.IDs) (mermaid.Conversion, error) {
	return mermaid.Conversion{Primitives: c.prims}, c.err
}

func TestPlaceDiagram(t *testing.T) {
	conv := stubConverter{prims: []canvas.Primitive{
		{Kind: canvas.KindLine, X: 0, Y: 0},
		{Kind: canvas.KindRectangle, X: 5, Y: 40, Height: 10},
		{Kind: canvas.KindText, X: 5, Y: 45},
	}}
	p, err := PlaceDiagram(conv, &mermaid.Graph{}, canvas.NewIDs("t"), 10, 200)
	if err != nil {
		t.Fatalf("place: %v", err)
	}
	if p.Height != 65 {
		t.Fatalf("height = %v, want 65", p.Height)
	}
	if p.Primitives[1].X != 15 || p.Primitives[1].Y != 240 {
		t.Fatalf("offset not applied: %+v", p.Primitives[1])
	}

	if _, err := PlaceDiagram(stubConverter{err: errors.New("boom")}, &mermaid.Graph{}, canvas.NewIDs("t"), 0, 0); err == nil {
		t.Fatalf("expected converter error")
	}
}

func TestEmptyDiagramPlaceholder(t *testing.T) {
	w, err := NewWalker(Options{DiagramConverter: stubConverter{}})
	if err != nil {
		t.Fatalf("walker: %v", err)
	}
	if err := w.Walk(context.Background(), &HTML{Value: "<mermaid>graph TD\nA --> B</mermaid>"}, 0, 0); err != nil {
		t.Fatalf("walk: %v", err)
	}
	prims, _ := w.Flush()
	if len(prims) != 1 || prims[0].Fallback {
		t.Fatalf("unexpected primitives %+v", prims)
	}
}

func TestClassifyHTML(t *testing.T) {
	tests := []struct {
		in      string
		kind    HTMLKind
		payload string
	}{
		{"<mermaid>graph TD\nA-->B</mermaid>", HTMLDiagram, "graph TD\nA-->B"},
		{"<div><mermaid>x</mermaid><equation>y</equation></div>", HTMLDiagram, "x"},
		{"<equation>a^2</equation><table></table>", HTMLEquation, "a^2"},
		{"<TABLE><tr><td>1</td></tr></TABLE>", HTMLTable, "<TABLE><tr><td>1</td></tr></TABLE>"},
		{"<p>Hello <b>there</b>\n  friend</p>", HTMLText, "Hello there friend"},
		{"<!-- note -->", HTMLText, ""},
	}
	for _, tc := range tests {
		kind, payload := ClassifyHTML(tc.in)
		if kind != tc.kind || payload != tc.payload {
			t.Fatalf("ClassifyHTML(%q) = %v %q, want %v %q", tc.in, kind, payload, tc.kind, tc.payload)
		}
	}
}

func TestContentOutsideWrapperIsLogged(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	w, err := NewWalker(Options{Logger: logger})
	if err != nil {
		t.Fatalf("walker: %v", err)
	}
	markup := "<div><mermaid>graph TD\nA --> B</mermaid><p>Figure 1</p></div>"
	if err := w.Walk(context.Background(), &HTML{Value: markup}, 0, 0); err != nil {
		t.Fatalf("walk: %v", err)
	}
	if !strings.Contains(buf.String(), `dropped="Figure 1"`) {
		t.Fatalf("dropped content not logged:\n%s", buf.String())
	}
	tests := []struct {
		kind   HTMLKind
		markup string
		want   string
	}{
		{HTMLDiagram, "<mermaid>x</mermaid>", ""},
		{HTMLDiagram, "<div>\n<mermaid>x</mermaid>\n</div>", ""},
		{HTMLDiagram, "<div><mermaid>x</mermaid><equation>y</equation></div>", "y"},
		{HTMLEquation, "see <equation>x</equation> here", "see here"},
		{HTMLTable, "<p>a</p><table></table>", ""},
	}
	for _, tc := range tests {
		if got := Outside(tc.kind, tc.markup); got != tc.want {
			t.Fatalf("Outside(%v, %q) = %q, want %q", tc.kind, tc.markup, got, tc.want)
		}
	}
}

func TestListLayout(t *testing.T) {
	doc, _ := ParseMarkdown([]byte("3. first\n4. second\n   - inner\n\n- plain\n"))
	res, err := Layout(context.Background(), doc, nil, Options{})
	if err != nil {
		t.Fatalf("layout: %v", err)
	}
	type line struct {
		Text string
		X, Y float64
	}
	var got []line
	for _, p := range res.Primitives {
		got = append(got, line{p.Text, p.X, p.Y})
	}
	want := []line{
		{"3. first", 0, 0},
		{"4. second", 0, 30},
		{"- inner", 20, 60},
		{"- plain", 0, 90},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("list mismatch (-want +got):\n%s", diff)
	}
}

func TestListItemWithEquationKeepsMarker(t *testing.T) {
	opts := Options{Rasterizer: equation.NewRasterizer(failingEngine{})}
	doc, _ := ParseMarkdown([]byte("- Energy <equation>E=mc^2</equation> here\n- next\n"))
	res, err := Layout(context.Background(), doc, nil, opts)
	if err != nil {
		t.Fatalf("layout: %v", err)
	}
	type line struct {
		Text string
		X, Y float64
	}
	var got []line
	for _, p := range res.Primitives {
		got = append(got, line{p.Text, p.X, p.Y})
	}
	want := []line{
		{"- Energy ", 0, 0},
		{"LaTeX Error: E=mc^2", 0, 30},
		{" here", 0, 60},
		{"- next", 0, 90},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("list mismatch (-want +got):\n%s", diff)
	}
}

func TestThematicBreak(t *testing.T) {
	w, err := NewWalker(Options{StartX: 5, StartY: 7})
	if err != nil {
		t.Fatalf("walker: %v", err)
	}
	if err := w.Walk(context.Background(), &ThematicBreak{}, 5, 1); err != nil {
		t.Fatalf("walk: %v", err)
	}
	prims, _ := w.Flush()
	want := []canvas.Point{{X: 0, Y: 0}, {X: 600, Y: 0}}
	if len(prims) != 1 || prims[0].X != 25 || prims[0].Y != 7 || !cmp.Equal(prims[0].Points, want) {
		t.Fatalf("unexpected rule %+v", prims)
	}
	if w.Cursor() != 37 {
		t.Fatalf("cursor = %v, want 37", w.Cursor())
	}
}

type bogusNode struct{ Document }

func TestUnknownNodeIsError(t *testing.T) {
	w, err := NewWalker(Options{})
	if err != nil {
		t.Fatalf("walker: %v", err)
	}
	if err := w.Walk(context.Background(), &bogusNode{}, 0, 0); err == nil {
		t.Fatalf("expected error for unknown node")
	}
}

func TestCursorNeverMovesBackwards(t *testing.T) {
	src := strings.Join([]string{
		"# Report",
		"Some *intro* text with <equation>\\frac{a}{b}</equation> inline.",
		"```mermaid\ngraph LR\nA --> B\nB --> C\n```",
		"| k | v |\n| --- | --- |\n| a | 1 |",
		"<div>loose <i>markup</i></div>",
		"---",
		"- one\n- two",
	}, "\n\n")
	doc, blocks := ParseMarkdown([]byte(src))
	w, err := NewWalker(Options{})
	if err != nil {
		t.Fatalf("walker: %v", err)
	}
	w.SetTableBlocks(blocks)
	for _, n := range doc.Children {
		before := w.Cursor()
		if err := w.Walk(context.Background(), n, 0, 0); err != nil {
			t.Fatalf("walk: %v", err)
		}
		prims, _ := w.Flush()
		if w.Cursor() < before {
			t.Fatalf("cursor moved back from %v to %v", before, w.Cursor())
		}
		for _, p := range prims {
			if p.Y < before {
				t.Fatalf("%T emitted %+v above %v", n, p, before)
			}
		}
	}
}

func TestCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	doc := &Document{Children: []Node{&Paragraph{Children: []Node{&Text{Value: "x"}}}}}
	if _, err := Layout(ctx, doc, nil, Options{}); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestParseMarkdown(t *testing.T) {
	src := "# Title\n\nHello *world*\n\n```mermaid\ngraph TD\nA-->B\n```\n\n```math\nx^2\n```\n\nbefore\n\n<table><tr><td>x</td></tr></table>\n\nafter\n"
	doc, blocks := ParseMarkdown([]byte(src))
	want := &Document{Children: []Node{
		&Heading{Level: 1, Children: []Node{&Text{Value: "Title"}}},
		&Paragraph{Children: []Node{
			&Text{Value: "Hello "},
			&Container{Kind: "Emphasis", Children: []Node{&Text{Value: "world"}}},
		}},
		&HTML{Value: "<mermaid>\ngraph TD\nA-->B\n</mermaid>"},
		&HTML{Value: "<equation>x^2</equation>"},
		&Paragraph{Children: []Node{&Text{Value: "before"}}},
		&Text{Value: "TABLE_BLOCK_0"},
		&Paragraph{Children: []Node{&Text{Value: "after"}}},
	}}
	if diff := cmp.Diff(want, doc); diff != "" {
		t.Fatalf("document mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"<table><tr><td>x</td></tr></table>"}, blocks); diff != "" {
		t.Fatalf("blocks mismatch (-want +got):\n%s", diff)
	}
}

func TestDiagramWithBlankLineStaysOneBlock(t *testing.T) {
	src := "<mermaid>\ngraph TD\n\nA[Start] --> B[End]\n  \n</mermaid>\n\nafter\n"
	doc, _ := ParseMarkdown([]byte(src))
	want := &Document{Children: []Node{
		&HTML{Value: "<mermaid>\ngraph TD\nA[Start] --> B[End]\n</mermaid>"},
		&Paragraph{Children: []Node{&Text{Value: "after"}}},
	}}
	if diff := cmp.Diff(want, doc); diff != "" {
		t.Fatalf("document mismatch (-want +got):\n%s", diff)
	}
	res, err := Layout(context.Background(), doc, nil, Options{})
	if err != nil {
		t.Fatalf("layout: %v", err)
	}
	if n := len(ofKind(res.Primitives, canvas.KindRectangle)); n != 2 {
		t.Fatalf("got %d rectangles, want 2: %+v", n, res.Primitives)
	}
	if got := JoinWrappers("a\n\nb <equation>x\n\ny</equation>"); got != "a\n\nb <equation>x\ny</equation>" {
		t.Fatalf("JoinWrappers = %q", got)
	}
}

func TestParseMarkdownKeepsInlineEquation(t *testing.T) {
	doc, _ := ParseMarkdown([]byte("Energy: <equation>E=mc^2</equation> is conserved.\n"))
	want := &Document{Children: []Node{
		&Paragraph{Children: []Node{&Text{Value: "Energy: <equation>E=mc^2</equation> is conserved."}}},
	}}
	if diff := cmp.Diff(want, doc); diff != "" {
		t.Fatalf("document mismatch (-want +got):\n%s", diff)
	}
}

func TestPlainText(t *testing.T) {
	n := &Paragraph{Children: []Node{
		&Text{Value: "see "},
		&Image{Src: "a.png", Alt: "chart"},
		&HTML{Value: "<b>bold</b>"},
	}}
	if got := PlainText(n); got != "see chartbold" {
		t.Fatalf("PlainText = %q", got)
	}
}

func writePNG(t *testing.T, path string, w, h int) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	img.Set(0, 0, color.Black)
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatalf("encode: %v", err)
	}
}

func TestImageLoader(t *testing.T) {
	dir := t.TempDir()
	writePNG(t, filepath.Join(dir, "dot.png"), 4, 3)
	l := NewImageLoader(dir)
	img, err := l.Load(context.Background(), "dot.png")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if img.MimeType != "image/png" || img.Width != 4 || img.Height != 3 {
		t.Fatalf("unexpected image %s %dx%d", img.MimeType, img.Width, img.Height)
	}
	if _, err := l.Load(context.Background(), "ftp://example.com/x.png"); err == nil {
		t.Fatalf("expected unsupported scheme error")
	}
	if _, err := l.Load(context.Background(), "missing.png"); err == nil {
		t.Fatalf("expected missing file error")
	}
}

func TestImageNodes(t *testing.T) {
	dir := t.TempDir()
	writePNG(t, filepath.Join(dir, "wide.png"), 1200, 300)
	w, err := NewWalker(Options{Images: NewImageLoader(dir)})
	if err != nil {
		t.Fatalf("walker: %v", err)
	}
	ctx := context.Background()
	for _, n := range []Node{
		&Image{Src: "wide.png", Alt: "wide"},
		&Image{Src: "wide.png"},
		&Image{Src: "gone.png", Alt: "missing chart"},
		&Image{Src: "gone.png"},
	} {
		if err := w.Walk(ctx, n, 0, 0); err != nil {
			t.Fatalf("walk: %v", err)
		}
	}
	prims, files := w.Flush()
	imgs := ofKind(prims, canvas.KindImage)
	if len(imgs) != 2 || len(files) != 1 {
		t.Fatalf("got %d images and %d files, want 2 and 1", len(imgs), len(files))
	}
	if imgs[0].Width != 600 || imgs[0].Height != 150 {
		t.Fatalf("image not scaled: %vx%v", imgs[0].Width, imgs[0].Height)
	}
	texts := ofKind(prims, canvas.KindText)
	if len(texts) != 2 || texts[0].Text != "missing chart" || texts[0].Fallback || !texts[1].Fallback {
		t.Fatalf("unexpected image fallbacks %+v", texts)
	}
}

type countingPacer struct{ n int }

func (p *countingPacer) Pace(ctx context.Context) error {
	p.n++
	return ctx.Err()
}

func TestRenderPushesEachBlock(t *testing.T) {
	scene := canvas.NewScene(canvas.AppState{})
	pacer := &countingPacer{}
	err := Render(context.Background(), []byte("# A\n\nbody\n\n---\n"), scene, Options{Pacer: pacer})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if scene.Updates() != 3 {
		t.Fatalf("updates = %d, want 3", scene.Updates())
	}
	if pacer.n != 2 {
		t.Fatalf("paced %d times, want 2", pacer.n)
	}
	els := scene.SceneElements()
	if len(els) != 3 || els[0].Type != "text" || els[2].Type != "line" {
		t.Fatalf("unexpected elements %+v", els)
	}
}

func TestRenderKeepsExistingElements(t *testing.T) {
	scene := canvas.NewScene(canvas.AppState{ScrollX: -40, ScrollY: -100})
	if err := scene.UpdateScene([]canvas.Element{{ID: "existing", Type: "rectangle"}}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := Render(context.Background(), []byte("hello\n"), scene, Options{ViewportOrigin: true}); err != nil {
		t.Fatalf("render: %v", err)
	}
	els := scene.SceneElements()
	if len(els) != 2 || els[0].ID != "existing" {
		t.Fatalf("existing element lost: %+v", els)
	}
	if els[1].X != 40 || els[1].Y != 100 {
		t.Fatalf("text at (%v,%v), want (40,100)", els[1].X, els[1].Y)
	}
}

func TestRenderStopsWhenPacerFails(t *testing.T) {
	scene := canvas.NewScene(canvas.AppState{})
	stop := errors.New("stop")
	pacer := PacerFunc(func(context.Context) error { return stop })
	err := Render(context.Background(), []byte("a\n\nb\n"), scene, Options{Pacer: pacer})
	if !errors.Is(err, stop) {
		t.Fatalf("err = %v, want stop", err)
	}
	if scene.Updates() != 1 {
		t.Fatalf("updates = %d, want 1", scene.Updates())
	}
}

func TestDelayHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := Delay(1 << 40).Pace(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestInlineTagsStayOnOneLine(t *testing.T) {
	doc, _ := ParseMarkdown([]byte("Hello <b>bold</b> world\n"))
	res, err := Layout(context.Background(), doc, nil, Options{})
	if err != nil {
		t.Fatalf("layout: %v", err)
	}
	if len(res.Primitives) != 1 || res.Primitives[0].Text != "Hello bold world" {
		t.Fatalf("unexpected primitives %+v", res.Primitives)
	}
}

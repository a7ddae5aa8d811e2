// Package preview rasterises a canvas scene to an image so a layout can be
// checked without a drawing host.
package preview

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"math"
	"strconv"
	"strings"

	"github.com/golang/freetype"
	xdraw "golang.org/x/image/draw"

	"github.com/arran4/md2canvas/canvas"
	"github.com/arran4/md2canvas/fonts"
)

// ---- Styles & theme ----

type Theme struct {
	BG color.Color
	// FG replaces the default ink colour so dark backgrounds stay readable.
	FG          color.Color
	Placeholder color.Color
}

var (
	LightTheme = Theme{
		BG:          color.RGBA{0xFF, 0xFF, 0xFF, 0xFF},
		FG:          color.RGBA{0x1E, 0x1E, 0x1E, 0xFF},
		Placeholder: color.RGBA{0xDD, 0xDD, 0xDD, 0xFF},
	}
	DarkTheme = Theme{
		BG:          color.RGBA{0x12, 0x12, 0x14, 0xFF},
		FG:          color.RGBA{0xEE, 0xEE, 0xF0, 0xFF},
		Placeholder: color.RGBA{0x33, 0x33, 0x36, 0xFF},
	}
)

// ThemeByName returns a built-in theme by name ("light" or "dark").
func ThemeByName(name string) (Theme, error) {
	switch strings.ToLower(name) {
	case "light", "":
		return LightTheme, nil
	case "dark":
		return DarkTheme, nil
	default:
		return Theme{}, errors.New("unknown theme: " + name)
	}
}

// Options configure a preview. Zero values enable the defaults: 48px margin,
// light theme, bundled fonts.
type Options struct {
	Margin int
	Theme  Theme
	Fonts  fonts.Fonts
	// MaxHeight bounds the output; content below it is cut off.
	MaxHeight int
}

// ---- Drawing surface ----

type surface struct {
	img    *image.RGBA
	dc     *freetype.Context
	th     Theme
	fonts  fonts.Fonts
	dx, dy float64
}

func (s *surface) ink(hex string) color.Color {
	if hex == canvas.ColorText || hex == canvas.ColorStroke {
		return s.th.FG
	}
	c, ok := ParseColor(hex)
	if !ok {
		return nil
	}
	return c
}

func (s *surface) pt(x, y float64) image.Point {
	return image.Pt(int(math.Round(x+s.dx)), int(math.Round(y+s.dy)))
}

// Render draws elements with their image files onto a new image sized to fit
// them plus the margin.
func Render(elements []canvas.Element, files []canvas.FileAsset, opts Options) (*image.RGBA, error) {
	if opts.Margin <= 0 {
		opts.Margin = 48
	}
	if opts.MaxHeight <= 0 {
		opts.MaxHeight = 4096 * 4
	}
	if (opts.Theme == Theme{}) {
		opts.Theme = LightTheme
	}
	if opts.Fonts.Regular == nil {
		fallback, err := fonts.Default()
		if err != nil {
			return nil, err
		}
		opts.Fonts = fallback
	}

	minX, minY, maxX, maxY := bounds(elements)
	width := int(math.Ceil(maxX-minX)) + 2*opts.Margin
	height := min(int(math.Ceil(maxY-minY))+2*opts.Margin, opts.MaxHeight)
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(img, img.Bounds(), image.NewUniform(opts.Theme.BG), image.Point{}, draw.Src)

	dc := freetype.NewContext()
	dc.SetDPI(72)
	dc.SetClip(img.Bounds())
	dc.SetDst(img)

	s := &surface{
		img:   img,
		dc:    dc,
		th:    opts.Theme,
		fonts: opts.Fonts,
		dx:    float64(opts.Margin) - minX,
		dy:    float64(opts.Margin) - minY,
	}
	byID := make(map[string]canvas.FileAsset, len(files))
	for _, f := range files {
		byID[f.ID] = f
	}
	for _, e := range elements {
		if e.IsDeleted {
			continue
		}
		switch e.Type {
		case string(canvas.KindRectangle):
			s.rectangle(e)
		case string(canvas.KindLine), "arrow":
			s.polyline(e)
		case string(canvas.KindText):
			if err := s.text(e); err != nil {
				return nil, err
			}
		case string(canvas.KindImage):
			s.drawImage(e, byID[e.FileID])
		}
	}
	return img, nil
}

func bounds(elements []canvas.Element) (minX, minY, maxX, maxY float64) {
	if len(elements) == 0 {
		return 0, 0, 1, 1
	}
	minX, minY = math.Inf(1), math.Inf(1)
	maxX, maxY = math.Inf(-1), math.Inf(-1)
	for _, e := range elements {
		x0, y0, x1, y1 := e.X, e.Y, e.X+e.Width, e.Y+e.Height
		for _, p := range e.Points {
			x0, y0 = math.Min(x0, e.X+p[0]), math.Min(y0, e.Y+p[1])
			x1, y1 = math.Max(x1, e.X+p[0]), math.Max(y1, e.Y+p[1])
		}
		minX, minY = math.Min(minX, x0), math.Min(minY, y0)
		maxX, maxY = math.Max(maxX, x1), math.Max(maxY, y1)
	}
	return minX, minY, maxX, maxY
}

func (s *surface) rectangle(e canvas.Element) {
	r := image.Rectangle{Min: s.pt(e.X, e.Y), Max: s.pt(e.X+e.Width, e.Y+e.Height)}
	if bg, ok := ParseColor(e.BackgroundColor); ok {
		draw.Draw(s.img, r, image.NewUniform(bg), image.Point{}, draw.Over)
	}
	stroke := s.ink(e.StrokeColor)
	if stroke == nil {
		return
	}
	u := image.NewUniform(stroke)
	draw.Draw(s.img, image.Rect(r.Min.X, r.Min.Y, r.Max.X, r.Min.Y+1), u, image.Point{}, draw.Src)
	draw.Draw(s.img, image.Rect(r.Min.X, r.Max.Y-1, r.Max.X, r.Max.Y), u, image.Point{}, draw.Src)
	draw.Draw(s.img, image.Rect(r.Min.X, r.Min.Y, r.Min.X+1, r.Max.Y), u, image.Point{}, draw.Src)
	draw.Draw(s.img, image.Rect(r.Max.X-1, r.Min.Y, r.Max.X, r.Max.Y), u, image.Point{}, draw.Src)
}

func (s *surface) polyline(e canvas.Element) {
	col := s.ink(e.StrokeColor)
	if col == nil || len(e.Points) < 2 {
		return
	}
	for i := 1; i < len(e.Points); i++ {
		a := s.pt(e.X+e.Points[i-1][0], e.Y+e.Points[i-1][1])
		b := s.pt(e.X+e.Points[i][0], e.Y+e.Points[i][1])
		s.segment(a, b, col)
	}
	if e.EndArrowhead == "" {
		return
	}
	n := len(e.Points)
	tip := e.Points[n-1]
	prev := e.Points[n-2]
	angle := math.Atan2(tip[1]-prev[1], tip[0]-prev[0])
	end := s.pt(e.X+tip[0], e.Y+tip[1])
	for _, side := range []float64{-0.5, 0.5} {
		wx := tip[0] - 10*math.Cos(angle+side)
		wy := tip[1] - 10*math.Sin(angle+side)
		s.segment(end, s.pt(e.X+wx, e.Y+wy), col)
	}
}

// segment draws a one pixel line from a to b.
func (s *surface) segment(a, b image.Point, col color.Color) {
	dx, dy := abs(b.X-a.X), -abs(b.Y-a.Y)
	sx, sy := 1, 1
	if a.X > b.X {
		sx = -1
	}
	if a.Y > b.Y {
		sy = -1
	}
	e := dx + dy
	for {
		s.img.Set(a.X, a.Y, col)
		if a == b {
			return
		}
		e2 := 2 * e
		if e2 >= dy {
			e += dy
			a.X += sx
		}
		if e2 <= dx {
			e += dx
			a.Y += sy
		}
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

func (s *surface) text(e canvas.Element) error {
	col := s.ink(e.StrokeColor)
	if col == nil {
		col = s.th.FG
	}
	size := e.FontSize
	if size <= 0 {
		size = 16
	}
	lh := e.LineHeight
	if lh <= 0 {
		lh = 1.25
	}
	fnt := faceFor(s.fonts, e)
	s.dc.SetFont(fnt.Font)
	s.dc.SetFontSize(size)
	s.dc.SetSrc(image.NewUniform(col))
	for i, ln := range strings.Split(e.Text, "\n") {
		x := e.X
		if e.TextAlign == canvas.AlignCenter {
			x += (e.Width - fnt.Measure(ln, size)) / 2
		}
		p := s.pt(x, e.Y+float64(i)*size*lh+size)
		if _, err := s.dc.DrawString(ln, freetype.Pt(p.X, p.Y)); err != nil {
			return fmt.Errorf("preview: drawing text: %w", err)
		}
	}
	return nil
}

// faceFor picks the face recorded on a text element, falling back to the
// regular face when the requested one is not loaded.
func faceFor(fs fonts.Fonts, e canvas.Element) *fonts.FontAndFace {
	var want canvas.Font
	if e.CustomData != nil {
		want = e.CustomData.Font
	}
	if e.FontFamily == canvas.FamilyCode {
		want = canvas.FontMono
	}
	switch {
	case want == canvas.FontBold && fs.Bold != nil:
		return fs.Bold
	case want == canvas.FontMono && fs.Mono != nil:
		return fs.Mono
	}
	return fs.Regular
}

// drawImage draws a raster file scaled into the element box. Files that cannot
// be decoded, such as SVG equations, are shown as a filled placeholder.
func (s *surface) drawImage(e canvas.Element, f canvas.FileAsset) {
	r := image.Rectangle{Min: s.pt(e.X, e.Y), Max: s.pt(e.X+e.Width, e.Y+e.Height)}
	src, err := decodeDataURL(f.DataURL)
	if err != nil {
		draw.Draw(s.img, r, image.NewUniform(s.th.Placeholder), image.Point{}, draw.Src)
		return
	}
	xdraw.CatmullRom.Scale(s.img, r, src, src.Bounds(), xdraw.Over, nil)
}

func decodeDataURL(u string) (image.Image, error) {
	_, payload, ok := strings.Cut(u, ";base64,")
	if !ok {
		return nil, errors.New("preview: not a base64 data url")
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, err
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	return img, err
}

// ParseColor reads #rgb and #rrggbb values. "transparent" and anything
// unrecognised report false.
func ParseColor(s string) (color.RGBA, bool) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(s) == 3 {
		s = string([]byte{s[0], s[0], s[1], s[1], s[2], s[2]})
	}
	if len(s) != 6 {
		return color.RGBA{}, false
	}
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return color.RGBA{}, false
	}
	return color.RGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 0xFF}, true
}

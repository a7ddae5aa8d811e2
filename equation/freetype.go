package equation

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"math"

	"github.com/golang/freetype"
	xdraw "golang.org/x/image/draw"

	"github.com/arran4/md2canvas/fonts"
)

// FreetypeEngine draws linearised equations with the bundled Go fonts.
type FreetypeEngine struct {
	Size     float64     // font size in px, default 20
	Padding  int         // transparent border in px, default 4
	MaxWidth int         // wider images are scaled down, 0 disables
	Color    color.Color // glyph colour, default near-black
	Fonts    fonts.Fonts // zero value loads the bundled fonts

	face *fonts.FontAndFace
}

func (e *FreetypeEngine) Init(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f := e.Fonts
	if f.Regular == nil {
		var err error
		if f, err = fonts.Default(); err != nil {
			return err
		}
	}
	if f.Regular == nil {
		return errors.New("equation: no regular font")
	}
	e.face = f.Regular
	if e.Size <= 0 {
		e.Size = 20
	}
	if e.Padding <= 0 {
		e.Padding = 4
	}
	if e.Color == nil {
		e.Color = color.RGBA{0x1e, 0x1e, 0x1e, 0xff}
	}
	return nil
}

func (e *FreetypeEngine) Render(ctx context.Context, markup string) (Image, error) {
	if e.face == nil {
		return Image{}, ErrEngineUnavailable
	}
	line, err := Linearize(markup)
	if err != nil {
		return Image{}, err
	}
	if line == "" {
		return Image{}, ErrEmptyImage
	}
	if err := ctx.Err(); err != nil {
		return Image{}, err
	}

	textWidth := int(math.Ceil(e.face.Measure(line, e.Size)))
	w := textWidth + 2*e.Padding
	h := int(math.Ceil(e.Size*1.4)) + 2*e.Padding
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), image.Transparent, image.Point{}, draw.Src)

	dc := freetype.NewContext()
	dc.SetDPI(72)
	dc.SetClip(img.Bounds())
	dc.SetDst(img)
	dc.SetSrc(image.NewUniform(e.Color))
	dc.SetFont(e.face.Font)
	dc.SetFontSize(e.Size)
	pt := freetype.Pt(e.Padding, e.Padding+int(e.Size))
	if _, err := dc.DrawString(line, pt); err != nil {
		return Image{}, err
	}

	var out image.Image = img
	if e.MaxWidth > 0 {
		out = scaleImageToWidth(img, e.MaxWidth)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, out); err != nil {
		return Image{}, err
	}
	b := out.Bounds()
	return Image{
		Data:     buf.Bytes(),
		MimeType: "image/png",
		Width:    float64(b.Dx()),
		Height:   float64(b.Dy()),
	}, nil
}

func scaleImageToWidth(img image.Image, maxWidth int) image.Image {
	if img == nil {
		return nil
	}
	if maxWidth <= 0 {
		return img
	}
	bounds := img.Bounds()
	if bounds.Dx() <= maxWidth {
		return img
	}
	scale := float64(maxWidth) / float64(bounds.Dx())
	height := int(float64(bounds.Dy()) * scale)
	if height <= 0 {
		height = 1
	}
	dst := image.NewRGBA(image.Rect(0, 0, maxWidth, height))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), img, bounds, xdraw.Over, nil)
	return dst
}

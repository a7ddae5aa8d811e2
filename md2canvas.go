// Package md2canvas lays out AI-generated Markdown (prose, inline equations,
// Mermaid diagrams and tables) as positioned shapes on an infinite canvas.
package md2canvas

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/arran4/md2canvas/canvas"
	"github.com/arran4/md2canvas/equation"
	"github.com/arran4/md2canvas/fonts"
	"github.com/arran4/md2canvas/mermaid"
	"github.com/arran4/md2canvas/table"
)

// Options configure a layout pass. Zero values enable the defaults noted on
// each field.
type Options struct {
	StartX float64
	StartY float64
	// ViewportOrigin places the document at the host's visible top-left
	// instead of (StartX, StartY).
	ViewportOrigin bool

	IndentUnit      float64 // horizontal step per depth, 20
	FontSize        float64 // body text, 16
	LineAdvance     float64 // paragraph, list item and text advance, 30
	RuleLength      float64 // thematic break, 600
	RuleAdvance     float64 // 30
	FallbackAdvance float64 // 30
	DiagramPadding  float64 // 20
	TablePadding    float64 // 20
	TableFallback   float64 // advance when a table yields no cells, 30
	EquationGap     float64 // space below an equation image, 10
	ImageMaxWidth   float64 // wider Markdown images are scaled down, 600

	// WrapWidth wraps plain paragraphs to this many pixels when positive.
	WrapWidth float64

	// BlockTimeout bounds each equation and diagram render, 10s.
	BlockTimeout time.Duration

	IDPrefix string

	Fonts    fonts.Fonts
	Measurer fonts.Measurer

	Rasterizer       *equation.Rasterizer
	DiagramParser    DiagramParser
	DiagramConverter DiagramConverter
	DiagramLimits    mermaid.Limits
	Table            table.Options
	Images           *ImageLoader

	Pacer  Pacer
	Logger *slog.Logger
	Now    func() time.Time
}

func (o Options) withDefaults() (Options, error) {
	def := func(v *float64, d float64) {
		if *v <= 0 {
			*v = d
		}
	}
	def(&o.IndentUnit, 20)
	def(&o.FontSize, 16)
	def(&o.LineAdvance, 30)
	def(&o.RuleLength, 600)
	def(&o.RuleAdvance, 30)
	def(&o.FallbackAdvance, 30)
	def(&o.DiagramPadding, 20)
	def(&o.TablePadding, 20)
	def(&o.TableFallback, 30)
	def(&o.EquationGap, 10)
	def(&o.ImageMaxWidth, 600)
	if o.BlockTimeout <= 0 {
		o.BlockTimeout = 10 * time.Second
	}
	if o.IDPrefix == "" {
		o.IDPrefix = "md2c"
	}

	// Fill in missing fonts using the bundled defaults.
	if o.Fonts.Regular == nil || o.Fonts.Bold == nil || o.Fonts.Mono == nil {
		fallback, err := fonts.Default()
		if err != nil {
			return o, err
		}
		if o.Fonts.Regular == nil {
			o.Fonts.Regular = fallback.Regular
		}
		if o.Fonts.Bold == nil {
			o.Fonts.Bold = fallback.Bold
		}
		if o.Fonts.Mono == nil {
			o.Fonts.Mono = fallback.Mono
		}
	}
	if o.Fonts.Regular == nil {
		return o, errors.New("md2canvas: incomplete font configuration")
	}
	if o.Measurer == nil {
		o.Measurer = o.Fonts.Regular
	}
	if o.Table.Measurer == nil {
		o.Table.Measurer = o.Measurer
	}
	if o.Rasterizer == nil {
		o.Rasterizer = equation.NewRasterizer(&equation.FreetypeEngine{Fonts: o.Fonts})
	}
	if o.DiagramParser == nil {
		o.DiagramParser = DiagramParserFunc(mermaid.Parse)
	}
	if o.DiagramConverter == nil {
		o.DiagramConverter = &mermaid.LayeredConverter{Measurer: o.Measurer}
	}
	if o.Logger == nil {
		o.Logger = slog.New(slog.DiscardHandler)
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o, nil
}

// Render parses src and pushes its layout to host one top-level block at a
// time.
func Render(ctx context.Context, src []byte, host canvas.Host, opts Options) error {
	doc, blocks := ParseMarkdown(src)
	w, err := NewWalker(opts)
	if err != nil {
		return err
	}
	d := &Driver{Host: host, Walker: w, Pacer: w.opts.Pacer, ViewportOrigin: opts.ViewportOrigin}
	return d.Run(ctx, doc, blocks)
}

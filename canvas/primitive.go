// Package canvas holds the positioned shapes produced by the layout engine and
// the host-side scene they are merged into.
package canvas

import (
	"fmt"
	"strconv"
)

// Kind identifies which visual primitive a Primitive describes.
type Kind string

const (
	KindText      Kind = "text"
	KindImage     Kind = "image"
	KindLine      Kind = "line"
	KindRectangle Kind = "rectangle"
)

// Colours shared by the producers.
const (
	ColorText        = "#1e1e1e"
	ColorError       = "#e03131"
	ColorHeaderFill  = "#e9ecef"
	ColorTransparent = "transparent"
	ColorStroke      = "#1e1e1e"
)

// TextAlign values for text primitives.
const (
	AlignLeft   = "left"
	AlignCenter = "center"
)

// Font selects the face a text primitive is measured and drawn with.
type Font string

const (
	FontRegular Font = ""
	FontBold    Font = "bold"
	FontMono    Font = "mono"
)

// Excalidraw font family numbers.
const (
	FamilyHand = 1
	FamilyCode = 3
)

// Point is a polyline vertex relative to the owning primitive's position.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Primitive is a single positioned shape. All fields are assigned by the
// producer; after emission only a diagram block's X/Y offset is rewritten.
type Primitive struct {
	Kind   Kind    `json:"type"`
	ID     string  `json:"id"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`

	StrokeColor     string  `json:"strokeColor,omitempty"`
	BackgroundColor string  `json:"backgroundColor,omitempty"`
	StrokeStyle     string  `json:"strokeStyle,omitempty"`
	StrokeWidth     float64 `json:"strokeWidth,omitempty"`
	Opacity         float64 `json:"opacity,omitempty"`

	// text
	Text      string  `json:"text,omitempty"`
	FontSize  float64 `json:"fontSize,omitempty"`
	TextAlign string  `json:"textAlign,omitempty"`
	Font      Font    `json:"font,omitempty"`

	// image
	FileID string `json:"fileId,omitempty"`

	// line
	Points       []Point `json:"points,omitempty"`
	EndArrowhead string  `json:"endArrowhead,omitempty"`

	// Fallback marks a substitute emitted in place of a block that failed to render.
	Fallback bool `json:"fallback,omitempty"`
}

// Bottom returns the lowest y coordinate the primitive occupies.
func (p Primitive) Bottom() float64 { return p.Y + p.Height }

// FileAsset is a binary payload referenced by image primitives.
type FileAsset struct {
	ID       string `json:"id"`
	DataURL  string `json:"dataURL"`
	MimeType string `json:"mimeType"`
	Created  int64  `json:"created"`
}

// IDs hands out identifiers unique within one render pass.
type IDs struct {
	prefix string
	n      int
}

// NewIDs returns a generator whose identifiers start with prefix.
func NewIDs(prefix string) *IDs {
	if prefix == "" {
		prefix = "el"
	}
	return &IDs{prefix: prefix}
}

// Next returns a fresh identifier tagged with kind.
func (g *IDs) Next(kind Kind) string {
	g.n++
	return fmt.Sprintf("%s-%s-%s", g.prefix, kind, strconv.Itoa(g.n))
}

// Count reports how many identifiers have been issued.
func (g *IDs) Count() int { return g.n }

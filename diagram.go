package md2canvas

import (
	"context"
	"errors"
	"fmt"

	"github.com/arran4/md2canvas/canvas"
	"github.com/arran4/md2canvas/mermaid"
)

// DiagramParser turns diagram source into a graph.
type DiagramParser interface {
	Parse(ctx context.Context, src string) (*mermaid.Graph, error)
}

// DiagramParserFunc adapts a function to DiagramParser.
type DiagramParserFunc func(ctx context.Context, src string) (*mermaid.Graph, error)

func (f DiagramParserFunc) Parse(ctx context.Context, src string) (*mermaid.Graph, error) {
	return f(ctx, src)
}

// DiagramConverter maps a graph to primitives positioned relative to (0,0).
type DiagramConverter interface {
	Convert(g *mermaid.Graph, ids *canvas.IDs) (mermaid.Conversion, error)
}

// defaultPrimitiveHeight is assumed for converted primitives with no height.
const defaultPrimitiveHeight = 20

// Placement is a diagram moved into document space.
type Placement struct {
	Primitives []canvas.Primitive
	Files      []canvas.FileAsset
	// Height is the extent of the block below its offset.
	Height float64
}

// PlaceDiagram converts g and shifts every primitive by (offsetX, offsetY).
// An empty Placement means the converter produced nothing; callers put a
// placeholder in its place.
func PlaceDiagram(conv DiagramConverter, g *mermaid.Graph, ids *canvas.IDs, offsetX, offsetY float64) (Placement, error) {
	if conv == nil {
		return Placement{}, errors.New("md2canvas: no diagram converter")
	}
	c, err := conv.Convert(g, ids)
	if err != nil {
		return Placement{}, fmt.Errorf("md2canvas: converting diagram: %w", err)
	}
	p := Placement{
		Primitives: make([]canvas.Primitive, 0, len(c.Primitives)),
		Files:      c.Files,
	}
	for _, prim := range c.Primitives {
		h := prim.Height
		if h == 0 {
			h = defaultPrimitiveHeight
		}
		p.Height = max(p.Height, prim.Y+h)
		prim.X += offsetX
		prim.Y += offsetY
		p.Primitives = append(p.Primitives, prim)
	}
	return p, nil
}

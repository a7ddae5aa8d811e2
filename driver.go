package md2canvas

import (
	"context"
	"fmt"
	"time"

	"github.com/arran4/md2canvas/canvas"
)

// Pacer is consulted between top-level blocks so the host can repaint.
type Pacer interface {
	Pace(ctx context.Context) error
}

// PacerFunc adapts a function to Pacer.
type PacerFunc func(ctx context.Context) error

func (f PacerFunc) Pace(ctx context.Context) error { return f(ctx) }

// Delay is a Pacer that sleeps for a fixed duration.
type Delay time.Duration

func (d Delay) Pace(ctx context.Context) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(time.Duration(d))
	select {
	case <-ctx.Done():
		if !t.Stop() {
			<-t.C
		}
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Driver pushes a document to a Host block by block. Each top-level child is
// laid out, its files are registered, and the scene is replaced with the
// existing elements plus the new ones before the next child starts.
type Driver struct {
	Host   canvas.Host
	Walker *Walker
	Pacer  Pacer
	// ViewportOrigin starts the cursor at the host's visible top-left.
	ViewportOrigin bool
}

// Run walks every top-level child of doc.
func (d *Driver) Run(ctx context.Context, doc *Document, tableBlocks []string) error {
	if d.Host == nil || d.Walker == nil {
		return fmt.Errorf("md2canvas: driver needs a host and a walker")
	}
	w := d.Walker
	w.SetTableBlocks(tableBlocks)
	x := w.opts.StartX
	if d.ViewportOrigin {
		st := d.Host.AppState()
		x = -st.ScrollX
		w.SetCursor(-st.ScrollY)
	}
	for i, n := range doc.Children {
		if i > 0 && d.Pacer != nil {
			if err := d.Pacer.Pace(ctx); err != nil {
				return err
			}
		}
		if err := w.Walk(ctx, n, x, 0); err != nil {
			return err
		}
		prims, files := w.Flush()
		if len(files) > 0 {
			if err := d.Host.AddFiles(files); err != nil {
				return fmt.Errorf("md2canvas: adding files: %w", err)
			}
		}
		if len(prims) == 0 {
			continue
		}
		elements := append(d.Host.SceneElements(), canvas.ToElements(prims)...)
		if err := d.Host.UpdateScene(elements); err != nil {
			return fmt.Errorf("md2canvas: updating scene: %w", err)
		}
		w.log.Debug("block pushed", "index", i, "elements", len(prims), "cursor", w.Cursor())
	}
	return nil
}

// Package equation turns LaTeX-style markup into standalone raster images.
package equation

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"sync"
)

var (
	ErrEngineUnavailable = errors.New("equation: engine not loaded")
	ErrEmptyMarkup       = errors.New("equation: empty markup")
	ErrEmptyImage        = errors.New("equation: engine produced no image")
)

// Image is an encoded equation picture. The zero value is the empty result.
type Image struct {
	Data     []byte
	MimeType string
	Width    float64
	Height   float64
}

// Empty reports whether the image carries no payload.
func (img Image) Empty() bool { return len(img.Data) == 0 }

// DataURL returns the payload as a base64 data URL.
func (img Image) DataURL() string {
	if img.Empty() {
		return ""
	}
	return "data:" + img.MimeType + ";base64," + base64.StdEncoding.EncodeToString(img.Data)
}

// Engine is a typesetting backend.
type Engine interface {
	// Init prepares the engine. It is called at most once successfully.
	Init(ctx context.Context) error
	Render(ctx context.Context, markup string) (Image, error)
}

// Rasterizer owns an Engine and initialises it lazily on first use.
type Rasterizer struct {
	engine Engine

	mu    sync.Mutex
	ready bool
}

// NewRasterizer returns a Rasterizer backed by engine. A nil engine yields a
// Rasterizer whose every Render fails with ErrEngineUnavailable.
func NewRasterizer(engine Engine) *Rasterizer {
	return &Rasterizer{engine: engine}
}

// ensureReady runs Init once. Concurrent callers wait for the same
// initialisation; a failed Init is retried on the next call.
func (r *Rasterizer) ensureReady(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ready {
		return nil
	}
	if r.engine == nil {
		return ErrEngineUnavailable
	}
	if err := r.engine.Init(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrEngineUnavailable, err)
	}
	r.ready = true
	return nil
}

// Render typesets markup. On any failure the returned Image is empty and the
// error says why; callers fall back to showing the literal markup.
func (r *Rasterizer) Render(ctx context.Context, markup string) (Image, error) {
	if strings.TrimSpace(markup) == "" {
		return Image{}, ErrEmptyMarkup
	}
	if err := ctx.Err(); err != nil {
		return Image{}, err
	}
	if err := r.ensureReady(ctx); err != nil {
		return Image{}, err
	}
	img, err := r.engine.Render(ctx, markup)
	if err != nil {
		return Image{}, fmt.Errorf("equation: rendering %q: %w", markup, err)
	}
	if img.Empty() {
		return Image{}, ErrEmptyImage
	}
	return img, nil
}

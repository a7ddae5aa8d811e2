// Package fonts loads the faces used to measure and rasterise text.
package fonts

import (
	"image"
	"image/color"
	"os"
	"sync"

	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/gomono"
	"golang.org/x/image/font/gofont/goregular"
)

// FontAndFace pairs a parsed font with a face created at baseSize.
type FontAndFace struct {
	Font     *truetype.Font
	Face     font.Face
	baseSize float64
	mu       sync.Mutex
}

type Fonts struct {
	Regular *FontAndFace
	Bold    *FontAndFace
	Mono    *FontAndFace
}

type Config struct {
	RegularPath string  `toml:"regular"`
	BoldPath    string  `toml:"bold"`
	MonoPath    string  `toml:"mono"`
	SizeBase    float64 `toml:"size"` // measuring size in px
}

func loadFontAndFace(ttfBytes []byte, size float64) (*FontAndFace, error) {
	ft, err := truetype.Parse(ttfBytes)
	if err != nil {
		return nil, err
	}
	face := truetype.NewFace(ft, &truetype.Options{Size: size, DPI: 72, Hinting: font.HintingNone})
	return &FontAndFace{
		Font:     ft,
		Face:     face,
		baseSize: size,
	}, nil
}

func loadOne(path string, fallback []byte, size float64) (*FontAndFace, error) {
	if path == "" {
		return loadFontAndFace(fallback, size)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return loadFontAndFace(b, size)
}

// Load returns a Fonts set using cfg. When no custom paths are supplied it
// falls back to Go's bundled fonts.
func Load(cfg Config) (Fonts, error) {
	var f Fonts
	var err error
	if cfg.SizeBase <= 0 {
		cfg.SizeBase = 16
	}
	if f.Regular, err = loadOne(cfg.RegularPath, goregular.TTF, cfg.SizeBase); err != nil {
		return f, err
	}
	if f.Bold, err = loadOne(cfg.BoldPath, gobold.TTF, cfg.SizeBase); err != nil {
		return f, err
	}
	if f.Mono, err = loadOne(cfg.MonoPath, gomono.TTF, cfg.SizeBase); err != nil {
		return f, err
	}
	return f, nil
}

var (
	defaultOnce  sync.Once
	defaultFonts Fonts
	defaultErr   error
)

// Default returns the bundled Go fonts, loaded once.
func Default() (Fonts, error) {
	defaultOnce.Do(func() {
		defaultFonts, defaultErr = Load(Config{})
	})
	return defaultFonts, defaultErr
}

// Measure returns the advance width of s at size pixels. The face is created
// once at its base size and the result scaled linearly.
func (f *FontAndFace) Measure(s string, size float64) float64 {
	if f == nil || s == "" {
		return 0
	}
	f.mu.Lock()
	var d font.Drawer
	d.Face = f.Face
	d.Src = image.NewUniform(color.Black)
	width := float64(d.MeasureString(s).Round())
	f.mu.Unlock()
	base := f.baseSize
	if base <= 0 {
		base = size
	}
	if base <= 0 {
		base = 1
	}
	if size <= 0 {
		size = base
	}
	if size != base {
		width *= size / base
	}
	return width
}

// Measurer reports the rendered width of a string at a font size.
type Measurer interface {
	Measure(s string, size float64) float64
}

package md2canvas

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// LoadedImage is an image file read for embedding.
type LoadedImage struct {
	Data     []byte
	MimeType string
	Width    int
	Height   int
}

type imageResolver func(ctx context.Context, dest string) (cacheKey string, loader func() ([]byte, error), err error)

// ImageLoader reads images referenced from Markdown, from local paths
// relative to BaseDir or over http(s). Results are cached by resolved
// location.
type ImageLoader struct {
	BaseDir    string
	HTTPClient *http.Client
	MaxBytes   int64

	mu        sync.Mutex
	resolvers map[string]imageResolver
	cache     map[string]LoadedImage
}

// NewImageLoader returns a loader resolving relative paths against baseDir,
// or the working directory when baseDir is empty.
func NewImageLoader(baseDir string) *ImageLoader {
	baseDir = strings.TrimSpace(baseDir)
	if baseDir == "" {
		if wd, err := os.Getwd(); err == nil {
			baseDir = wd
		}
	} else if !filepath.IsAbs(baseDir) {
		if abs, err := filepath.Abs(baseDir); err == nil {
			baseDir = abs
		}
	}
	return &ImageLoader{BaseDir: baseDir}
}

func (l *ImageLoader) ensureResolvers() {
	if l.HTTPClient == nil {
		l.HTTPClient = &http.Client{Timeout: 15 * time.Second}
	}
	if l.MaxBytes <= 0 {
		l.MaxBytes = 10 << 20
	}
	if l.resolvers != nil {
		return
	}
	l.resolvers = map[string]imageResolver{
		"":      l.resolveLocal,
		"file":  l.resolveLocal,
		"http":  l.resolveRemote,
		"https": l.resolveRemote,
	}
}

// Load reads and identifies the image at dest.
func (l *ImageLoader) Load(ctx context.Context, dest string) (LoadedImage, error) {
	dest = strings.TrimSpace(dest)
	if dest == "" {
		return LoadedImage{}, errors.New("md2canvas: empty image destination")
	}
	l.mu.Lock()
	l.ensureResolvers()
	scheme := ""
	if idx := strings.Index(dest, "://"); idx != -1 {
		scheme = strings.ToLower(dest[:idx])
	}
	resolver, ok := l.resolvers[scheme]
	l.mu.Unlock()
	if !ok {
		return LoadedImage{}, fmt.Errorf("md2canvas: unsupported image scheme: %s", scheme)
	}
	key, loader, err := resolver(ctx, dest)
	if err != nil {
		return LoadedImage{}, err
	}
	if key == "" {
		key = dest
	}
	l.mu.Lock()
	if img, ok := l.cache[key]; ok {
		l.mu.Unlock()
		return img, nil
	}
	l.mu.Unlock()

	data, err := loader()
	if err != nil {
		return LoadedImage{}, err
	}
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return LoadedImage{}, fmt.Errorf("md2canvas: decoding image %s: %w", dest, err)
	}
	img := LoadedImage{Data: data, MimeType: "image/" + format, Width: cfg.Width, Height: cfg.Height}

	l.mu.Lock()
	if l.cache == nil {
		l.cache = make(map[string]LoadedImage)
	}
	l.cache[key] = img
	l.mu.Unlock()
	return img, nil
}

func (l *ImageLoader) resolveLocal(_ context.Context, dest string) (string, func() ([]byte, error), error) {
	path := strings.TrimPrefix(dest, "file://")
	if !filepath.IsAbs(path) && l.BaseDir != "" {
		path = filepath.Join(l.BaseDir, path)
	}
	cleaned := filepath.Clean(path)
	loader := func() ([]byte, error) {
		f, err := os.Open(cleaned)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		return io.ReadAll(io.LimitReader(f, l.MaxBytes))
	}
	return cleaned, loader, nil
}

func (l *ImageLoader) resolveRemote(ctx context.Context, dest string) (string, func() ([]byte, error), error) {
	loader := func() ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, dest, nil)
		if err != nil {
			return nil, err
		}
		resp, err := l.HTTPClient.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("md2canvas: fetching image %s: %s", dest, resp.Status)
		}
		return io.ReadAll(io.LimitReader(resp.Body, l.MaxBytes))
	}
	return dest, loader, nil
}

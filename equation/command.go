package equation

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
)

// CommandEngine shells out to an external typesetter that reads markup on
// stdin and writes an SVG document to stdout (for example MathJax's tex2svg).
type CommandEngine struct {
	Path string
	Args []string

	exe string
}

func (e *CommandEngine) Init(ctx context.Context) error {
	if e.Path == "" {
		return fmt.Errorf("equation: no typesetter configured")
	}
	exe, err := exec.LookPath(e.Path)
	if err != nil {
		return fmt.Errorf("equation: typesetter not found: %w", err)
	}
	e.exe = exe
	return nil
}

func (e *CommandEngine) Render(ctx context.Context, markup string) (Image, error) {
	if e.exe == "" {
		return Image{}, ErrEngineUnavailable
	}
	cmd := exec.CommandContext(ctx, e.exe, e.Args...)
	cmd.Stdin = strings.NewReader(markup)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return Image{}, fmt.Errorf("typesetter: %v: %s", err, strings.TrimSpace(stderr.String()))
	}
	svg := bytes.TrimSpace(stdout.Bytes())
	if !bytes.Contains(svg, []byte("<svg")) {
		return Image{}, fmt.Errorf("typesetter: output is not SVG")
	}
	w, h := svgSize(svg)
	return Image{Data: svg, MimeType: "image/svg+xml", Width: w, Height: h}, nil
}

var svgDimRe = regexp.MustCompile(`<svg[^>]*?\s(width|height)="([0-9.]+)(ex|em|pt|px)?"[^>]*?\s(width|height)="([0-9.]+)(ex|em|pt|px)?"`)

// svgSize reads the root width and height attributes and converts them to px,
// taking 1ex as 8px and 1em as 16px.
func svgSize(svg []byte) (w, h float64) {
	m := svgDimRe.FindSubmatch(svg)
	if m == nil {
		return 100, 30
	}
	a := toPixels(string(m[2]), string(m[3]))
	b := toPixels(string(m[5]), string(m[6]))
	if string(m[1]) == "width" {
		return a, b
	}
	return b, a
}

func toPixels(v, unit string) float64 {
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0
	}
	switch unit {
	case "ex":
		return f * 8
	case "em":
		return f * 16
	case "pt":
		return f * 4 / 3
	}
	return f
}

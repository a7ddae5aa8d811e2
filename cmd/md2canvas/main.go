package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"image/jpeg"
	"image/png"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/arran4/md2canvas"
	"github.com/arran4/md2canvas/canvas"
	"github.com/arran4/md2canvas/equation"
	"github.com/arran4/md2canvas/fonts"
	"github.com/arran4/md2canvas/preview"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	stop()
	if errors.Is(err, flag.ErrHelp) {
		return
	}
	if err != nil {
		fatal(err)
	}
}

// run executes one conversion. A partially written output file is removed
// when the conversion fails.
func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) (err error) {
	flags := flag.NewFlagSet("md2canvas", flag.ContinueOnError)
	flags.SetOutput(stderr)
	in := flags.String("in", "", "Input Markdown file (default: stdin if empty)")
	out := flags.String("out", "out.excalidraw", "Output file (- for stdout)")
	format := flags.String("format", "excalidraw", "Output format: excalidraw|primitives|png|jpg")
	theme := flags.String("theme", "light", "Preview theme for png/jpg output: light|dark")
	configPath := flags.String("config", "", "Optional TOML configuration file")
	wrap := flags.Float64("wrap", 0, "Wrap paragraphs to this width in pixels (0 disables)")
	pt := flags.Float64("pt", 0, "Body font size (default 16)")
	fontRegular := flags.String("font", "", "Path to TTF for regular text (optional; default Go Regular)")
	fontBold := flags.String("fontbold", "", "Path to TTF for headings (optional; default Go Bold)")
	fontMono := flags.String("fontmono", "", "Path to TTF for code blocks (optional; default Go Mono)")
	tex := flags.String("tex", "", "External typesetter reading TeX on stdin and writing SVG (optional)")
	verbose := flags.Bool("v", false, "Log block failures to stderr")
	if err := flags.Parse(args); err != nil {
		return err
	}

	config, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	if *wrap > 0 {
		config.WrapWidth = *wrap
	}
	if *pt > 0 {
		config.FontSize = *pt
	}
	if *fontRegular != "" {
		config.Fonts.RegularPath = *fontRegular
	}
	if *fontBold != "" {
		config.Fonts.BoldPath = *fontBold
	}
	if *fontMono != "" {
		config.Fonts.MonoPath = *fontMono
	}
	if *tex != "" {
		config.Equation.Command = *tex
	}

	level := slog.LevelError
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))

	faces, err := fonts.Load(config.Fonts)
	if err != nil {
		return err
	}

	var data []byte
	baseDir := ""
	if *in == "" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(*in)
		baseDir = filepath.Dir(*in)
	}
	if err != nil {
		return err
	}

	timeout, err := parseDuration(config.Timeout)
	if err != nil {
		return err
	}
	pace, err := parseDuration(config.Pace)
	if err != nil {
		return err
	}
	opts := md2canvas.Options{
		StartX:        config.StartX,
		StartY:        config.StartY,
		FontSize:      config.FontSize,
		WrapWidth:     config.WrapWidth,
		BlockTimeout:  timeout,
		Fonts:         faces,
		DiagramLimits: config.Diagram.limits(),
		Table:         config.Table,
		Images:        md2canvas.NewImageLoader(baseDir),
		Logger:        logger,
	}
	if pace > 0 {
		opts.Pacer = md2canvas.Delay(pace)
	}
	if config.Equation.Command != "" {
		opts.Rasterizer = equation.NewRasterizer(&equation.CommandEngine{
			Path: config.Equation.Command,
			Args: config.Equation.Args,
		})
	}

	w := stdout
	if *out != "-" {
		file, cerr := os.Create(*out)
		if cerr != nil {
			return cerr
		}
		defer func() {
			if cerr := file.Close(); err == nil {
				err = cerr
			}
			if err != nil {
				_ = os.Remove(*out)
			}
		}()
		w = file
	}

	switch *format {
	case "excalidraw":
		scene := canvas.NewScene(canvas.AppState{})
		if err := md2canvas.Render(ctx, data, scene, opts); err != nil {
			return err
		}
		return scene.WriteExcalidraw(w)
	case "primitives":
		doc, blocks := md2canvas.ParseMarkdown(data)
		res, err := md2canvas.Layout(ctx, doc, blocks, opts)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	case "png", "jpg", "jpeg":
		th, err := preview.ThemeByName(*theme)
		if err != nil {
			return err
		}
		scene := canvas.NewScene(canvas.AppState{})
		if err := md2canvas.Render(ctx, data, scene, opts); err != nil {
			return err
		}
		img, err := preview.Render(scene.SceneElements(), scene.Files(), preview.Options{Theme: th, Fonts: faces})
		if err != nil {
			return err
		}
		if *format == "png" {
			return png.Encode(w, img)
		}
		return jpeg.Encode(w, img, &jpeg.Options{Quality: 92})
	default:
		return errors.New("unsupported output format: " + *format)
	}
}

func fatal(err error) {
	_, _ = os.Stderr.WriteString("md2canvas: " + err.Error() + "\n")
	os.Exit(1)
}

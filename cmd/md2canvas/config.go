package main

import (
	"os"
	"time"

	"github.com/naoina/toml"

	"github.com/arran4/md2canvas/fonts"
	"github.com/arran4/md2canvas/mermaid"
	"github.com/arran4/md2canvas/table"
)

// Config is the optional TOML file given with -config. Flags set on the
// command line override it.
type Config struct {
	StartX    float64 `toml:"start_x"`
	StartY    float64 `toml:"start_y"`
	FontSize  float64 `toml:"font_size"`
	WrapWidth float64 `toml:"wrap_width"`
	Timeout   string  `toml:"block_timeout"`
	Pace      string  `toml:"pace"`

	Fonts    fonts.Config   `toml:"fonts"`
	Table    table.Options  `toml:"table"`
	Diagram  DiagramConfig  `toml:"diagram"`
	Equation EquationConfig `toml:"equation"`
}

type DiagramConfig struct {
	MaxLines int `toml:"max_lines"`
	MaxChars int `toml:"max_chars"`
}

func (c DiagramConfig) limits() mermaid.Limits {
	return mermaid.Limits{MaxLines: c.MaxLines, MaxChars: c.MaxChars}
}

// EquationConfig selects an external typesetter. Command receives the markup
// on stdin and writes SVG to stdout.
type EquationConfig struct {
	Command string   `toml:"command"`
	Args    []string `toml:"args"`
}

func loadConfig(path string) (Config, error) {
	var config Config
	if path == "" {
		return config, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return config, err
	}
	defer f.Close()
	dec := toml.NewDecoder(f)
	if err := dec.Decode(&config); err != nil {
		return config, err
	}
	return config, nil
}

func parseDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	return time.ParseDuration(s)
}

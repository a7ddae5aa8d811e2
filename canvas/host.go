package canvas

import (
	"encoding/json"
	"fmt"
	"hash/fnv"
	"io"
	"sync"
)

// AppState is the part of the host's view state the layout engine may read.
type AppState struct {
	ScrollX float64 `json:"scrollX"`
	ScrollY float64 `json:"scrollY"`
	Width   float64 `json:"width,omitempty"`
	Height  float64 `json:"height,omitempty"`
	Zoom    float64 `json:"zoom,omitempty"`
}

// Host is the drawing canvas that owns the long-lived scene.
type Host interface {
	SceneElements() []Element
	UpdateScene(elements []Element) error
	AddFiles(files []FileAsset) error
	AppState() AppState
}

// Element is a host-native scene element in the Excalidraw format.
type Element struct {
	ID              string   `json:"id"`
	Type            string   `json:"type"`
	X               float64  `json:"x"`
	Y               float64  `json:"y"`
	Width           float64  `json:"width"`
	Height          float64  `json:"height"`
	Angle           float64  `json:"angle"`
	StrokeColor     string   `json:"strokeColor"`
	BackgroundColor string   `json:"backgroundColor"`
	FillStyle       string   `json:"fillStyle"`
	StrokeWidth     float64  `json:"strokeWidth"`
	StrokeStyle     string   `json:"strokeStyle"`
	Roughness       int      `json:"roughness"`
	Opacity         float64  `json:"opacity"`
	GroupIDs        []string `json:"groupIds"`
	Seed            int64    `json:"seed"`
	Version         int      `json:"version"`
	VersionNonce    int64    `json:"versionNonce"`
	IsDeleted       bool     `json:"isDeleted"`
	Locked          bool     `json:"locked"`

	Text          string  `json:"text,omitempty"`
	OriginalText  string  `json:"originalText,omitempty"`
	FontSize      float64 `json:"fontSize,omitempty"`
	FontFamily    int     `json:"fontFamily,omitempty"`
	TextAlign     string  `json:"textAlign,omitempty"`
	VerticalAlign string  `json:"verticalAlign,omitempty"`
	LineHeight    float64 `json:"lineHeight,omitempty"`

	FileID string    `json:"fileId,omitempty"`
	Status string    `json:"status,omitempty"`
	Scale  []float64 `json:"scale,omitempty"`

	Points       [][2]float64 `json:"points,omitempty"`
	EndArrowhead string       `json:"endArrowhead,omitempty"`

	CustomData *CustomData `json:"customData,omitempty"`
}

// CustomData rides along in the element's customData slot, which the host
// stores without interpreting.
type CustomData struct {
	Font Font `json:"font,omitempty"`
}

// ToElements fills in the native defaults the host expects for each primitive.
// Seeds and nonces derive from the primitive id so repeated passes over the
// same document produce identical scenes.
func ToElements(prims []Primitive) []Element {
	out := make([]Element, 0, len(prims))
	for _, p := range prims {
		out = append(out, toElement(p))
	}
	return out
}

func toElement(p Primitive) Element {
	seed := hashSeed(p.ID)
	e := Element{
		ID:              p.ID,
		Type:            string(p.Kind),
		X:               p.X,
		Y:               p.Y,
		Width:           p.Width,
		Height:          p.Height,
		StrokeColor:     p.StrokeColor,
		BackgroundColor: p.BackgroundColor,
		FillStyle:       "solid",
		StrokeWidth:     1,
		StrokeStyle:     "solid",
		Roughness:       1,
		Opacity:         100,
		GroupIDs:        []string{},
		Seed:            seed,
		Version:         1,
		VersionNonce:    seed ^ 0x5bd1e995,
	}
	if e.StrokeColor == "" {
		e.StrokeColor = ColorStroke
	}
	if e.BackgroundColor == "" {
		e.BackgroundColor = ColorTransparent
	}
	if p.StrokeStyle != "" {
		e.StrokeStyle = p.StrokeStyle
	}
	if p.StrokeWidth > 0 {
		e.StrokeWidth = p.StrokeWidth
	}
	if p.Opacity > 0 {
		e.Opacity = p.Opacity * 100
	}
	switch p.Kind {
	case KindText:
		e.Text = p.Text
		e.OriginalText = p.Text
		e.FontSize = p.FontSize
		e.FontFamily = FamilyHand
		if p.Font == FontMono {
			e.FontFamily = FamilyCode
		}
		if p.Font != FontRegular {
			e.CustomData = &CustomData{Font: p.Font}
		}
		e.TextAlign = p.TextAlign
		if e.TextAlign == "" {
			e.TextAlign = AlignLeft
		}
		e.VerticalAlign = "top"
		e.LineHeight = 1.25
		e.Roughness = 0
	case KindImage:
		e.FileID = p.FileID
		e.Status = "saved"
		e.Scale = []float64{1, 1}
		e.Roughness = 0
	case KindLine:
		for _, pt := range p.Points {
			e.Points = append(e.Points, [2]float64{pt.X, pt.Y})
		}
		if p.EndArrowhead != "" {
			e.Type = "arrow"
			e.EndArrowhead = p.EndArrowhead
		}
	}
	return e
}

func hashSeed(id string) int64 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(id))
	return int64(h.Sum32() & 0x7fffffff)
}

// Scene is an in-memory Host. It is what the command line tool pushes to
// before writing the result out as an .excalidraw document.
type Scene struct {
	mu       sync.Mutex
	elements []Element
	files    map[string]FileAsset
	order    []string
	state    AppState
	updates  int
}

// NewScene returns an empty scene with the given view state.
func NewScene(state AppState) *Scene {
	return &Scene{files: make(map[string]FileAsset), state: state}
}

func (s *Scene) SceneElements() []Element {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Element, len(s.elements))
	copy(out, s.elements)
	return out
}

func (s *Scene) UpdateScene(elements []Element) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.elements = append(s.elements[:0:0], elements...)
	s.updates++
	return nil
}

func (s *Scene) AddFiles(files []FileAsset) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, f := range files {
		if f.ID == "" {
			return fmt.Errorf("canvas: file asset without id")
		}
		if _, ok := s.files[f.ID]; !ok {
			s.order = append(s.order, f.ID)
		}
		s.files[f.ID] = f
	}
	return nil
}

func (s *Scene) AppState() AppState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Updates reports how many times UpdateScene was called.
func (s *Scene) Updates() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updates
}

// Files returns the stored assets in insertion order.
func (s *Scene) Files() []FileAsset {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]FileAsset, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.files[id])
	}
	return out
}

type sceneFile struct {
	Type     string               `json:"type"`
	Version  int                  `json:"version"`
	Source   string               `json:"source"`
	Elements []Element            `json:"elements"`
	AppState map[string]any       `json:"appState"`
	Files    map[string]FileAsset `json:"files"`
}

// WriteExcalidraw encodes the scene as an .excalidraw JSON document.
func (s *Scene) WriteExcalidraw(w io.Writer) error {
	s.mu.Lock()
	doc := sceneFile{
		Type:     "excalidraw",
		Version:  2,
		Source:   "md2canvas",
		Elements: append([]Element{}, s.elements...),
		AppState: map[string]any{
			"viewBackgroundColor": "#ffffff",
			"scrollX":             s.state.ScrollX,
			"scrollY":             s.state.ScrollY,
		},
		Files: make(map[string]FileAsset, len(s.files)),
	}
	for id, f := range s.files {
		doc.Files[id] = f
	}
	s.mu.Unlock()

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("canvas: encoding scene: %w", err)
	}
	return nil
}

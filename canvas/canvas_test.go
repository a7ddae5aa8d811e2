package canvas

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestIDs(t *testing.T) {
	ids := NewIDs("")
	a, b := ids.Next(KindText), ids.Next(KindLine)
	if a != "el-text-1" || b != "el-line-2" {
		t.Fatalf("ids = %q %q", a, b)
	}
	if ids.Count() != 2 {
		t.Fatalf("count = %d", ids.Count())
	}
}

func TestToElements(t *testing.T) {
	prims := []Primitive{
		{Kind: KindText, ID: "t", X: 1, Y: 2, Text: "hi", FontSize: 16},
		{Kind: KindLine, ID: "l", Points: []Point{{0, 0}, {10, 5}}, EndArrowhead: "arrow"},
		{Kind: KindImage, ID: "i", FileID: "abc"},
		{Kind: KindRectangle, ID: "r", BackgroundColor: ColorHeaderFill, Opacity: 0.5},
	}
	els := ToElements(prims)
	if len(els) != 4 {
		t.Fatalf("got %d elements", len(els))
	}
	txt := els[0]
	if txt.Type != "text" || txt.OriginalText != "hi" || txt.TextAlign != AlignLeft || txt.StrokeColor != ColorStroke {
		t.Fatalf("unexpected text element %+v", txt)
	}
	arrow := els[1]
	if arrow.Type != "arrow" || !cmp.Equal(arrow.Points, [][2]float64{{0, 0}, {10, 5}}) {
		t.Fatalf("unexpected arrow element %+v", arrow)
	}
	if els[2].FileID != "abc" || els[2].Status != "saved" {
		t.Fatalf("unexpected image element %+v", els[2])
	}
	if els[3].Opacity != 50 || els[3].BackgroundColor != ColorHeaderFill {
		t.Fatalf("unexpected rectangle element %+v", els[3])
	}
	styled := ToElements([]Primitive{
		{Kind: KindText, ID: "c", Text: "x := 1", Font: FontMono},
		{Kind: KindText, ID: "h", Text: "Title", Font: FontBold},
	})
	if styled[0].FontFamily != FamilyCode || styled[0].CustomData.Font != FontMono {
		t.Fatalf("code text not in the code family: %+v", styled[0])
	}
	if styled[1].FontFamily != FamilyHand || styled[1].CustomData.Font != FontBold {
		t.Fatalf("bold text lost its face: %+v", styled[1])
	}
	if txt.CustomData != nil {
		t.Fatalf("regular text carries custom data: %+v", txt.CustomData)
	}
	again := ToElements(prims)
	if diff := cmp.Diff(els, again); diff != "" {
		t.Fatalf("conversion not deterministic:\n%s", diff)
	}
}

func TestSceneWriteExcalidraw(t *testing.T) {
	s := NewScene(AppState{ScrollX: 5})
	if err := s.AddFiles([]FileAsset{{ID: "f1", MimeType: "image/png", DataURL: "data:image/png;base64,AA=="}}); err != nil {
		t.Fatalf("add files: %v", err)
	}
	if err := s.AddFiles([]FileAsset{{}}); err == nil {
		t.Fatalf("expected error for file without id")
	}
	if err := s.UpdateScene(ToElements([]Primitive{{Kind: KindText, ID: "t", Text: "x"}})); err != nil {
		t.Fatalf("update: %v", err)
	}
	var buf bytes.Buffer
	if err := s.WriteExcalidraw(&buf); err != nil {
		t.Fatalf("write: %v", err)
	}
	var doc struct {
		Type     string                     `json:"type"`
		Elements []Element                  `json:"elements"`
		AppState map[string]any             `json:"appState"`
		Files    map[string]json.RawMessage `json:"files"`
	}
	if err := json.Unmarshal(buf.Bytes(), &doc); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if doc.Type != "excalidraw" || len(doc.Elements) != 1 || doc.AppState["scrollX"] != 5.0 {
		t.Fatalf("unexpected document %s", buf.String())
	}
	if _, ok := doc.Files["f1"]; !ok {
		t.Fatalf("file missing from document")
	}
	if s.Updates() != 1 || len(s.Files()) != 1 {
		t.Fatalf("updates %d files %d", s.Updates(), len(s.Files()))
	}
}

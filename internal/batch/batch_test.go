package batch

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/afero"
)

func outputs(items []Item) []string {
	var out []string
	for _, it := range items {
		out = append(out, it.Output)
	}
	return out
}

func TestParseList(t *testing.T) {
	list := "http://a.example/zoom/\n" +
		"\n" +
		"   \n" +
		"http://b.example/zoom/\tship\n" +
		"http://c.example/zoom/\n" +
		"http://d.example/zoom/\tcastle.jpg\n"

	items, err := ParseList(strings.NewReader(list), filepath.Join("out", "scan.jpg"), "jpg")
	if err != nil {
		t.Fatalf("ParseList failed: %v", err)
	}
	if len(items) != 4 {
		t.Fatalf("Expected 4 items, got %d: %+v", len(items), items)
	}

	want := []string{
		filepath.Join("out", "scan_001.jpg"),
		filepath.Join("out", "ship.jpg"),
		filepath.Join("out", "scan_002.jpg"),
		filepath.Join("out", "castle.jpg"),
	}
	got := outputs(items)
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Item %d: expected output %s, got %s", i, want[i], got[i])
		}
	}
	if items[1].URL != "http://b.example/zoom/" {
		t.Errorf("Unexpected URL %q", items[1].URL)
	}
}

func TestParseList_Empty(t *testing.T) {
	items, err := ParseList(strings.NewReader("\n\n"), "out.jpg", "jpg")
	if err != nil {
		t.Fatalf("ParseList failed: %v", err)
	}
	if len(items) != 0 {
		t.Errorf("Expected no items, got %+v", items)
	}
}

func TestParseManifest(t *testing.T) {
	doc := `
images:
  - url: http://a.example/zoom/
    output: first
    zoom: -2
  - url: http://b.example/zoom/
`
	items, err := ParseManifest(strings.NewReader(doc), filepath.Join("dl", "img.jpg"), "jpg")
	if err != nil {
		t.Fatalf("ParseManifest failed: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("Expected 2 items, got %d", len(items))
	}
	if items[0].Output != filepath.Join("dl", "first.jpg") {
		t.Errorf("Unexpected output %s", items[0].Output)
	}
	if items[0].Zoom == nil || *items[0].Zoom != -2 {
		t.Errorf("Expected zoom -2, got %v", items[0].Zoom)
	}
	if items[1].Zoom != nil {
		t.Errorf("Expected no zoom override, got %d", *items[1].Zoom)
	}
	if items[1].Output != filepath.Join("dl", "img_001.jpg") {
		t.Errorf("Unexpected output %s", items[1].Output)
	}
}

func TestParseManifest_MissingURL(t *testing.T) {
	doc := "images:\n  - output: x.jpg\n"
	if _, err := ParseManifest(strings.NewReader(doc), "out.jpg", "jpg"); err == nil {
		t.Error("Expected an error for an image without url")
	}
}

func TestLoad(t *testing.T) {
	fs := afero.NewMemMapFs()
	afero.WriteFile(fs, "/jobs/list.txt", []byte("http://a.example/\tone\n"), 0o644)
	afero.WriteFile(fs, "/jobs/list.yaml", []byte("images:\n  - url: http://a.example/\n    output: two\n"), 0o644)

	for path, want := range map[string]string{
		"/jobs/list.txt":  filepath.Join("/out", "one.jpg"),
		"/jobs/list.yaml": filepath.Join("/out", "two.jpg"),
	} {
		items, err := Load(fs, path, "/out/x.jpg", "jpg")
		if err != nil {
			t.Fatalf("Load(%s) failed: %v", path, err)
		}
		if len(items) != 1 || items[0].Output != want {
			t.Errorf("Load(%s) = %+v, expected output %s", path, items, want)
		}
	}

	if _, err := Load(fs, "/jobs/none.txt", "/out/x.jpg", "jpg"); err == nil {
		t.Error("Expected an error for a missing batch file")
	}
}

// Package batch reads the list of images processed by one batch run.
package batch

import (
	"bufio"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

// Item is one image to dezoomify.
type Item struct {
	URL    string `yaml:"url" json:"url"`
	Output string `yaml:"output" json:"output"`
	// Zoom overrides the run's zoom level when set.
	Zoom *int `yaml:"zoom,omitempty" json:"zoom,omitempty"`
}

// Manifest is the YAML form of a batch.
type Manifest struct {
	Images []Item `yaml:"images"`
}

// Single returns the batch of one image.
func Single(url, output string) []Item {
	return []Item{{URL: url, Output: output}}
}

// Load reads a batch file. Files ending in .yaml or .yml are manifests,
// anything else is a tab-separated list.
func Load(fs afero.Fs, path, output, ext string) ([]Item, error) {
	f, err := fs.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open batch file: %w", err)
	}
	defer f.Close()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return ParseManifest(f, output, ext)
	default:
		return ParseList(f, output, ext)
	}
}

// ParseList reads one image per line: a URL, optionally followed by a tab
// and an output name. Lines without a name are numbered after output
// ({root}_001{ext}, {root}_002{ext}, ...). Names are placed in output's
// directory and get ext appended when they lack it. Blank lines are skipped.
func ParseList(r io.Reader, output, ext string) ([]Item, error) {
	var (
		items []Item
		n     int
	)
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		url, name, named := strings.Cut(line, "\t")
		url = strings.TrimSpace(url)
		if url == "" {
			continue
		}

		item := Item{URL: url}
		if name = strings.TrimSpace(name); named && name != "" {
			item.Output = placeOutput(output, name, ext)
		} else {
			n++
			item.Output = numbered(output, n)
		}
		items = append(items, item)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read batch list: %w", err)
	}
	return items, nil
}

// ParseManifest reads a YAML manifest:
//
//	images:
//	  - url: http://example.com/zoom/
//	    output: first.jpg
//	    zoom: -2
//
// Outputs follow the same rules as list names.
func ParseManifest(r io.Reader, output, ext string) ([]Item, error) {
	var m Manifest
	if err := yaml.NewDecoder(r).Decode(&m); err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, fmt.Errorf("parse batch manifest: %w", err)
	}

	items := make([]Item, 0, len(m.Images))
	n := 0
	for i, item := range m.Images {
		item.URL = strings.TrimSpace(item.URL)
		if item.URL == "" {
			return nil, fmt.Errorf("parse batch manifest: image %d has no url", i+1)
		}
		if item.Output == "" {
			n++
			item.Output = numbered(output, n)
		} else {
			item.Output = placeOutput(output, item.Output, ext)
		}
		items = append(items, item)
	}
	return items, nil
}

func numbered(output string, n int) string {
	ext := filepath.Ext(output)
	return fmt.Sprintf("%s_%03d%s", strings.TrimSuffix(output, ext), n, ext)
}

func placeOutput(output, name, ext string) string {
	if ext != "" && !strings.HasSuffix(name, "."+ext) {
		name += "." + ext
	}
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(filepath.Dir(output), name)
}

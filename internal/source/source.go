// Package source locates Zoomify pyramids and reads their properties.
package source

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/kiesman99/dezoom/internal/fetch"
	"github.com/kiesman99/dezoom/internal/logging"
	"github.com/kiesman99/dezoom/pkg/tile"
)

// PropertiesFile is the name of the properties document in a base directory.
const PropertiesFile = "ImageProperties.xml"

// ErrNotFound is returned when a pyramid cannot be reached or its metadata
// is not recognised.
var ErrNotFound = errors.New("zoomify pyramid not found")

// Source turns a user supplied URL into a pyramid base directory and reads
// the pyramid's properties.
type Source interface {
	Resolve(ctx context.Context, rawURL string) (string, error)
	Properties(ctx context.Context, base string) (tile.Properties, error)
}

// example: <IMAGE_PROPERTIES WIDTH="2679" HEIGHT="4000" NUMTILES="241" NUMIMAGES="1" VERSION="1.8" TILESIZE="256"/>
var propertyRx = regexp.MustCompile(`\b(\w+)\s*=\s*["']([^"']*)["']`)

// ParseProperties reads the key="value" pairs of a properties document.
// WIDTH, HEIGHT and TILESIZE are required.
func ParseProperties(data []byte) (tile.Properties, error) {
	values := make(map[string]string)
	for _, m := range propertyRx.FindAllStringSubmatch(string(data), -1) {
		values[strings.ToUpper(m[1])] = m[2]
	}

	var p tile.Properties
	required := []struct {
		key string
		dst *int
	}{
		{"WIDTH", &p.Width},
		{"HEIGHT", &p.Height},
		{"TILESIZE", &p.TileSize},
	}
	for _, r := range required {
		raw, ok := values[r.key]
		if !ok {
			return tile.Properties{}, fmt.Errorf("%w: %s is missing %s", ErrNotFound, PropertiesFile, r.key)
		}
		n, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil {
			return tile.Properties{}, fmt.Errorf("%w: %s has invalid %s %q", ErrNotFound, PropertiesFile, r.key, raw)
		}
		*r.dst = n
	}

	p.NumTiles, _ = strconv.Atoi(values["NUMTILES"])
	p.NumImages, _ = strconv.Atoi(values["NUMIMAGES"])
	p.Version = values["VERSION"]
	return p, nil
}

// Zoomify reads pyramids whose base directory is given directly.
// Properties are cached per base directory.
type Zoomify struct {
	// Retry is applied to every document request.
	Retry fetch.Retry

	client *fetch.Client
	cache  *lru.Cache[string, tile.Properties]
}

// NewZoomify creates a source using client. cacheSize is the number of
// pyramids whose properties are remembered.
func NewZoomify(client *fetch.Client, cacheSize int) (*Zoomify, error) {
	if cacheSize <= 0 {
		cacheSize = 64
	}
	cache, err := lru.New[string, tile.Properties](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create properties cache: %w", err)
	}
	return &Zoomify{Retry: fetch.DefaultRetry, client: client, cache: cache}, nil
}

// Resolve normalises a base directory URL. A URL pointing at the properties
// document itself is accepted too.
func (z *Zoomify) Resolve(_ context.Context, rawURL string) (string, error) {
	return BaseDir(rawURL)
}

// Properties downloads and parses {base}/ImageProperties.xml.
func (z *Zoomify) Properties(ctx context.Context, base string) (tile.Properties, error) {
	if p, ok := z.cache.Get(base); ok {
		return p, nil
	}

	propertiesURL := base + PropertiesFile
	logging.Logger().Debug("reading pyramid properties", "url", propertiesURL)

	data, err := z.get(ctx, propertiesURL)
	if err != nil {
		if ctx.Err() != nil {
			return tile.Properties{}, ctx.Err()
		}
		return tile.Properties{}, fmt.Errorf("%w: could not open %s: %v", ErrNotFound, propertiesURL, err)
	}

	p, err := ParseProperties(data)
	if err != nil {
		return tile.Properties{}, err
	}
	z.cache.Add(base, p)
	return p, nil
}

func (z *Zoomify) get(ctx context.Context, rawURL string) ([]byte, error) {
	var data []byte
	err := z.Retry.Do(ctx, func(ctx context.Context) error {
		var err error
		data, err = z.client.GetBytes(ctx, rawURL)
		return err
	})
	return data, err
}

// BaseDir strips a trailing properties file name and guarantees exactly
// one trailing slash.
func BaseDir(rawURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || u.Host == "" {
		return "", fmt.Errorf("%w: invalid base directory %q", ErrNotFound, rawURL)
	}
	if strings.HasSuffix(u.Path, "/"+PropertiesFile) {
		u = u.ResolveReference(&url.URL{Path: "."})
	}
	return strings.TrimRight(u.String(), "/") + "/", nil
}

package tile

import (
	"fmt"
	"net/url"
	"strings"
)

// DefaultExt is the extension of Zoomify tiles and of the assembled output.
const DefaultExt = "jpg"

// Properties holds the values read from a pyramid's ImageProperties.xml
type Properties struct {
	Width     int
	Height    int
	TileSize  int
	NumTiles  int    // optional, 0 when absent
	NumImages int    // optional, 0 when absent
	Version   string // optional
}

// Level is the size of one zoom level, in tiles
type Level struct {
	TilesWide int
	TilesHigh int
}

// Address identifies a single tile of the pyramid. Index and Group are
// derived from the geometry the address was created from.
type Address struct {
	Level int
	Col   int
	Row   int
	Index int
	Group int
}

// Key returns the tile's path relative to the pyramid base directory.
func (a Address) Key(ext string) string {
	if ext == "" {
		ext = DefaultExt
	}
	return fmt.Sprintf("TileGroup%d/%d-%d-%d.%s", a.Group, a.Level, a.Col, a.Row, ext)
}

// URL joins the tile key onto base. Path segments of base are escaped so
// that spaces and similar characters survive the request.
func (a Address) URL(base, ext string) string {
	raw := strings.TrimRight(base, "/") + "/" + a.Key(ext)
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	return u.String()
}

func (a Address) String() string {
	return fmt.Sprintf("%d-%d-%d", a.Level, a.Col, a.Row)
}

// Result is the outcome of fetching one tile: either a local file holding
// the encoded tile, or a missing marker with the reason.
type Result struct {
	Address Address
	Path    string
	Missing bool
	Err     error
}

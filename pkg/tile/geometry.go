// Package tile implements the geometry and addressing of Zoomify image
// pyramids: zoom levels, per-level tile counts and pixel sizes, and the
// TileGroup numbering used to lay tiles out on the server.
package tile

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidGeometry is returned when width, height or tile size is not positive.
	ErrInvalidGeometry = errors.New("invalid pyramid geometry")
	// ErrInvalidZoomLevel is returned when a requested zoom level does not exist.
	ErrInvalidZoomLevel = errors.New("invalid zoom level")
)

// ZoomLevelError reports a requested zoom level together with the valid range.
type ZoomLevelError struct {
	Requested int
	Min, Max  int
}

func (e *ZoomLevelError) Error() string {
	return fmt.Sprintf("the requested zoom level %d is not available, possible values are %d to %d",
		e.Requested, e.Min, e.Max)
}

func (e *ZoomLevelError) Unwrap() error { return ErrInvalidZoomLevel }

// Geometry describes a pyramid. Levels[0] is the 1x1 level, Levels[MaxZoom()]
// the full resolution one.
type Geometry struct {
	MaxWidth  int
	MaxHeight int
	TileSize  int
	Levels    []Level

	// offsets[L] is the number of tiles stored in all levels below L.
	offsets []int
}

// NewGeometry builds the pyramid geometry from its properties.
func NewGeometry(p Properties) (*Geometry, error) {
	levels, err := ComputeLevels(p.Width, p.Height, p.TileSize)
	if err != nil {
		return nil, err
	}

	g := &Geometry{
		MaxWidth:  p.Width,
		MaxHeight: p.Height,
		TileSize:  p.TileSize,
		Levels:    levels,
		offsets:   make([]int, len(levels)),
	}
	for i := 1; i < len(levels); i++ {
		wide, high := g.Tiles(i - 1)
		g.offsets[i] = g.offsets[i-1] + wide*high
	}
	return g, nil
}

// ComputeLevels lists the tile counts of every zoom level, coarsest first.
// Pixel sizes are halved (rounding down) from the full resolution until a
// level fits in a single tile.
func ComputeLevels(maxWidth, maxHeight, tileSize int) ([]Level, error) {
	if maxWidth <= 0 || maxHeight <= 0 || tileSize <= 0 {
		return nil, fmt.Errorf("%w: width=%d height=%d tilesize=%d",
			ErrInvalidGeometry, maxWidth, maxHeight, tileSize)
	}

	var levels []Level
	w, h := maxWidth, maxHeight
	for {
		l := Level{TilesWide: tilesFor(w, tileSize), TilesHigh: tilesFor(h, tileSize)}
		levels = append(levels, l)
		if l.TilesWide == 1 && l.TilesHigh == 1 {
			break
		}
		w, h = w/2, h/2
	}

	for i, j := 0, len(levels)-1; i < j; i, j = i+1, j-1 {
		levels[i], levels[j] = levels[j], levels[i]
	}
	return levels, nil
}

// tilesFor is ceil(pixels/tileSize). A level never has fewer than one tile
// per axis, even once the pixel size has been halved to zero.
func tilesFor(pixels, tileSize int) int {
	n := (pixels + tileSize - 1) / tileSize
	if n < 1 {
		return 1
	}
	return n
}

// MaxZoom is the index of the full resolution level.
func (g *Geometry) MaxZoom() int {
	return len(g.Levels) - 1
}

// ResolveZoomLevel maps a requested level onto [0, maxZoom]. Negative values
// count from the finest level: -1 is maxZoom, -maxZoom-1 is 0.
func ResolveZoomLevel(requested, maxZoom int) (int, error) {
	switch {
	case requested >= 0 && requested <= maxZoom:
		return requested, nil
	case requested >= -maxZoom-1 && requested <= -1:
		return maxZoom + requested + 1, nil
	default:
		return 0, &ZoomLevelError{Requested: requested, Min: -maxZoom - 1, Max: maxZoom}
	}
}

// SelectLevel resolves requested against this pyramid's levels.
func (g *Geometry) SelectLevel(requested int) (int, error) {
	return ResolveZoomLevel(requested, g.MaxZoom())
}

// Size returns the pixel width and height of level.
func (g *Geometry) Size(level int) (width, height int) {
	shift := uint(g.MaxZoom() - level)
	return g.MaxWidth >> shift, g.MaxHeight >> shift
}

// Tiles returns the number of tile columns and rows of level, computed from
// the level's pixel size.
func (g *Geometry) Tiles(level int) (wide, high int) {
	w, h := g.Size(level)
	return tilesFor(w, g.TileSize), tilesFor(h, g.TileSize)
}

// TileIndex is the position of a tile in the pyramid-wide numbering: all
// tiles of coarser levels first, then row-major within the level.
func (g *Geometry) TileIndex(level, col, row int) int {
	wide, _ := g.Tiles(level)
	return g.offsets[level] + col + row*wide
}

// TileGroup is the number of the TileGroup folder holding the tile.
func (g *Geometry) TileGroup(level, col, row int) int {
	return g.TileIndex(level, col, row) / g.TileSize
}

// Address returns the full address of a tile.
func (g *Geometry) Address(level, col, row int) Address {
	index := g.TileIndex(level, col, row)
	return Address{
		Level: level,
		Col:   col,
		Row:   row,
		Index: index,
		Group: index / g.TileSize,
	}
}

// Addresses enumerates every tile of level in column-major order: all rows
// of column 0, then all rows of column 1, and so on. Compositing relies on
// this order.
func (g *Geometry) Addresses(level int) []Address {
	wide, high := g.Tiles(level)
	addrs := make([]Address, 0, wide*high)
	for col := 0; col < wide; col++ {
		for row := 0; row < high; row++ {
			addrs = append(addrs, g.Address(level, col, row))
		}
	}
	return addrs
}

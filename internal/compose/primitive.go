// Package compose assembles downloaded tiles into one image without
// decoding them, using an external lossless crop/drop tool.
package compose

import (
	"context"
	"errors"
)

var (
	// ErrUnavailable is returned when the compositing tool is missing or
	// lacks the lossless drop feature.
	ErrUnavailable = errors.New("lossless compositor unavailable")
	// ErrMisaligned is returned when a drop offset is not on the block grid.
	ErrMisaligned = errors.New("drop offset not aligned to the block grid")
	// ErrNoTiles is returned when not a single tile could be composited.
	ErrNoTiles = errors.New("no tiles to composite")
)

// Primitive is a lossless operation set on whole encoded images stored as
// files. Every operation writes a new file and leaves its inputs untouched.
type Primitive interface {
	// Crop writes the width x height region of src at (x, y) to dst.
	// Along an axis where the region is larger than src, the canvas is
	// extended instead: src is placed at that offset and the rest is blank.
	Crop(ctx context.Context, src, dst string, width, height, x, y int) error
	// Drop pastes patch onto base at (x, y) and writes the result to dst.
	// Offsets must be aligned to the encoder's block grid.
	Drop(ctx context.Context, base, patch, dst string, x, y int) error
	// Optimize rewrites src to dst with optimised entropy coding.
	Optimize(ctx context.Context, src, dst string) error
	// Check verifies that the primitive can be used.
	Check(ctx context.Context) error
}

package compose

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/afero"

	"github.com/kiesman99/dezoom/internal/logging"
	"github.com/kiesman99/dezoom/internal/progress"
	"github.com/kiesman99/dezoom/pkg/tile"
)

// Layout is the shape of the image being assembled.
type Layout struct {
	Width, Height int // pixel size of the zoom level
	TileSize      int
	TilesWide     int
	TilesHigh     int
}

// NewLayout describes level of g.
func NewLayout(g *tile.Geometry, level int) Layout {
	w, h := g.Size(level)
	wide, high := g.Tiles(level)
	return Layout{Width: w, Height: h, TileSize: g.TileSize, TilesWide: wide, TilesHigh: high}
}

// columnWidth is the pixel width of col; only the last column may be narrower.
func (l Layout) columnWidth(col int) int {
	if col == l.TilesWide-1 {
		return l.Width - (l.TilesWide-1)*l.TileSize
	}
	return l.TileSize
}

// Report summarises one assembled image.
type Report struct {
	Total      int
	Composited int
	Missing    int
}

// Sequence yields tile results in column-major order and io.EOF at the end.
type Sequence interface {
	Next(ctx context.Context) (tile.Result, error)
}

// Assembler builds the output image column by column: tiles are dropped
// into a column image, and each finished column is dropped into the final
// image. All offsets come from the tile's own column and row, so a missing
// tile leaves a gap at its own position only.
type Assembler struct {
	prim     Primitive
	layout   Layout
	bufs     *Buffers
	progress *progress.Tracker

	col           int  // column currently being built
	columnStarted bool // the column slot holds content of col
	report        Report
}

// NewAssembler creates an assembler whose buffers live in dir on fs.
// tracker may be nil.
func NewAssembler(prim Primitive, fs afero.Fs, dir string, layout Layout, tracker *progress.Tracker) *Assembler {
	return &Assembler{
		prim:     prim,
		layout:   layout,
		bufs:     NewBuffers(fs, dir),
		progress: tracker,
		report:   Report{Total: layout.TilesWide * layout.TilesHigh},
	}
}

// Add composites one tile. Results must arrive in column-major order.
func (a *Assembler) Add(ctx context.Context, r tile.Result) error {
	log := logging.Logger()
	col, row := r.Address.Col, r.Address.Row
	if col < a.col || col >= a.layout.TilesWide || row < 0 || row >= a.layout.TilesHigh {
		return fmt.Errorf("tile %s out of order or outside the %dx%d grid", r.Address, a.layout.TilesWide, a.layout.TilesHigh)
	}
	if col != a.col {
		// Every earlier column was closed by its last row.
		a.col = col
		a.columnStarted = false
	}

	if r.Missing {
		a.report.Missing++
		if a.progress != nil {
			a.progress.Missing()
		}
		log.Debug("missing tile", "col", col, "row", row)
	} else {
		log.Debug("adding tile to the image", "col", col, "row", row)
		if err := a.addToColumn(ctx, r.Path, col, row); err != nil {
			return err
		}
		a.report.Composited++
		if a.progress != nil {
			a.progress.Composited()
		}
	}

	if row == a.layout.TilesHigh-1 {
		return a.promoteColumn(ctx, col)
	}
	return nil
}

func (a *Assembler) addToColumn(ctx context.Context, tilePath string, col, row int) error {
	y := row * a.layout.TileSize
	next := a.bufs.NextColumn()

	if !a.columnStarted {
		// Extend the first present tile to a blank column, placed at its own
		// row. Rows above it stay empty, never a previous column's leftovers.
		if err := a.prim.Crop(ctx, tilePath, next, a.layout.columnWidth(col), a.layout.Height, 0, y); err != nil {
			return fmt.Errorf("start column %d: %w", col, err)
		}
		a.bufs.PublishColumn()
		a.columnStarted = true
		return nil
	}

	if err := a.prim.Drop(ctx, a.bufs.Column(), tilePath, next, 0, y); err != nil {
		return fmt.Errorf("drop tile (%d,%d): %w", col, row, err)
	}
	a.bufs.PublishColumn()
	return nil
}

func (a *Assembler) promoteColumn(ctx context.Context, col int) error {
	if !a.columnStarted {
		logging.Logger().Debug("column has no tiles", "col", col)
		return nil
	}
	a.columnStarted = false

	x := col * a.layout.TileSize
	next := a.bufs.NextFinal()

	if a.bufs.Final() == "" {
		if err := a.prim.Crop(ctx, a.bufs.Column(), next, a.layout.Width, a.layout.Height, x, 0); err != nil {
			return fmt.Errorf("start image from column %d: %w", col, err)
		}
		a.bufs.PublishFinal()
		return nil
	}

	if err := a.prim.Drop(ctx, a.bufs.Final(), a.bufs.Column(), next, x, 0); err != nil {
		return fmt.Errorf("drop column %d: %w", col, err)
	}
	a.bufs.PublishFinal()
	return nil
}

// Finish optimises the assembled image into output.
func (a *Assembler) Finish(ctx context.Context, output string) (*Report, error) {
	final := a.bufs.Final()
	if final == "" {
		return nil, fmt.Errorf("%w: all %d tiles are missing", ErrNoTiles, a.report.Total)
	}
	if err := a.prim.Optimize(ctx, final, output); err != nil {
		return nil, fmt.Errorf("write %s: %w", output, err)
	}

	r := a.report
	return &r, nil
}

// Close removes the intermediate images.
func (a *Assembler) Close() error {
	return a.bufs.Remove()
}

// Assemble consumes seq completely, writes the image to output and removes
// the intermediate images on every path, including cancellation.
func (a *Assembler) Assemble(ctx context.Context, seq Sequence, output string) (*Report, error) {
	defer func() {
		if cerr := a.Close(); cerr != nil {
			logging.Logger().Warn("failed to remove intermediate images", "err", cerr)
		}
	}()

	for {
		r, err := seq.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		if err := a.Add(ctx, r); err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, err
		}
	}

	report, err := a.Finish(ctx, output)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, err
	}
	if report.Missing > 0 {
		logging.Logger().Warn("image is missing tiles, another zoom level may have the missing parts",
			"output", output, "missing", report.Missing, "total", report.Total)
	}
	return report, nil
}

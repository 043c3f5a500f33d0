// Package stitch runs the whole dezoomify pipeline for one image or a batch:
// resolve the pyramid, pick a zoom level, download its tiles into a scratch
// directory and composite them into the output file.
package stitch

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/spf13/afero"

	"github.com/kiesman99/dezoom/internal/batch"
	"github.com/kiesman99/dezoom/internal/compose"
	"github.com/kiesman99/dezoom/internal/download"
	"github.com/kiesman99/dezoom/internal/fetch"
	"github.com/kiesman99/dezoom/internal/logging"
	"github.com/kiesman99/dezoom/internal/progress"
	"github.com/kiesman99/dezoom/internal/source"
	"github.com/kiesman99/dezoom/pkg/tile"
)

// ErrCompositorUnavailable is returned when the compositing primitive cannot
// be used. It aborts a whole batch.
var ErrCompositorUnavailable = errors.New("compositor unavailable")

// Options contains the per-run parameters.
type Options struct {
	// ZoomLevel selects the level; negative values count from the finest
	// level, -1 being the full resolution.
	ZoomLevel   int
	Concurrency int
	// Store keeps the downloaded tiles in a directory named after the
	// output file.
	Store bool
	// NoDownload composites tiles left by an earlier Store run.
	NoDownload bool
	Ext        string
	// TempDir is the parent of temporary scratch directories, "" for the
	// system default.
	TempDir string
	Retry   fetch.Retry
}

// Result describes one processed image.
type Result struct {
	URL    string
	Output string
	Base   string
	Level  int
	Width  int
	Height int
	Report *compose.Report
	// Err is set for batch items that were skipped.
	Err error
}

// Stitcher drives the pipeline.
type Stitcher struct {
	opts     Options
	source   source.Source
	prim     compose.Primitive
	client   *fetch.Client
	fs       afero.Fs
	progress *progress.Tracker

	// ready is set once the compositor passed Check.
	ready atomic.Bool
}

// New creates a stitcher. fs holds the scratch directories and, for the
// native compositor, the output; it must be the OS filesystem when prim
// is an external tool.
func New(src source.Source, prim compose.Primitive, client *fetch.Client, fs afero.Fs, opts Options) *Stitcher {
	if opts.Ext == "" {
		opts.Ext = tile.DefaultExt
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = download.DefaultConcurrency
	}
	if opts.Retry.Attempts <= 0 {
		opts.Retry = fetch.DefaultRetry
	}
	if opts.NoDownload {
		opts.Store = true
	}
	return &Stitcher{
		opts:     opts,
		source:   src,
		prim:     prim,
		client:   client,
		fs:       fs,
		progress: progress.New(0),
	}
}

// Progress reports the counters of the image being processed.
func (s *Stitcher) Progress() progress.Snapshot {
	return s.progress.Snapshot()
}

// Check verifies that the compositor can be used.
func (s *Stitcher) Check(ctx context.Context) error {
	if err := s.prim.Check(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrCompositorUnavailable, err)
	}
	s.ready.Store(true)
	return nil
}

// ensureReady runs Check unless an earlier run already passed it.
func (s *Stitcher) ensureReady(ctx context.Context) error {
	if s.ready.Load() {
		return nil
	}
	return s.Check(ctx)
}

// Process dezoomifies the image at url into output using the configured
// zoom level.
func (s *Stitcher) Process(ctx context.Context, url, output string) (*Result, error) {
	return s.ProcessItem(ctx, batch.Item{URL: url, Output: output})
}

// ProcessItem dezoomifies one batch item. The item's zoom level, when set,
// replaces the configured one for this image only.
func (s *Stitcher) ProcessItem(ctx context.Context, item batch.Item) (*Result, error) {
	log := logging.Logger()
	res := &Result{URL: item.URL, Output: item.Output}

	if err := s.ensureReady(ctx); err != nil {
		return res, err
	}

	base, err := s.source.Resolve(ctx, item.URL)
	if err != nil {
		return res, err
	}
	res.Base = base
	log.Info("found pyramid base directory", "url", base)

	props, err := s.source.Properties(ctx, base)
	if err != nil {
		return res, err
	}
	g, err := tile.NewGeometry(props)
	if err != nil {
		return res, fmt.Errorf("%s: %w", base, err)
	}

	zoom := s.opts.ZoomLevel
	if item.Zoom != nil {
		zoom = *item.Zoom
	}
	level, err := g.SelectLevel(zoom)
	if err != nil {
		return res, err
	}
	res.Level = level
	res.Width, res.Height = g.Size(level)
	if res.Width == 0 || res.Height == 0 {
		return res, fmt.Errorf("%w: level %d of %s is %dx%d pixels",
			tile.ErrInvalidZoomLevel, level, base, res.Width, res.Height)
	}
	log.Info("selected zoom level", "level", level, "max", g.MaxZoom(),
		"width", res.Width, "height", res.Height, "tilesize", g.TileSize)

	res.Report, err = s.RunPipeline(ctx, g, level, base, item.Output)
	if err != nil {
		return res, err
	}
	log.Info("dezoomified image", "output", item.Output,
		"composited", res.Report.Composited, "missing", res.Report.Missing)
	return res, nil
}

// RunPipeline downloads every tile of level and composites them into
// output. The compositor is checked before any tile is requested. Tiles
// are kept in the scratch directory only with Store.
func (s *Stitcher) RunPipeline(ctx context.Context, g *tile.Geometry, level int, base, output string) (*compose.Report, error) {
	if err := s.ensureReady(ctx); err != nil {
		return nil, err
	}
	if err := s.fs.MkdirAll(filepath.Dir(output), 0o755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}

	dir, cleanup, err := s.scratchDir(output)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	var fetcher download.Fetcher
	if s.opts.NoDownload {
		fetcher = download.NewLocalFetcher(s.fs)
	} else {
		fetcher = download.NewHTTPFetcher(s.client, s.fs, base, s.opts.Ext)
	}

	addrs := g.Addresses(level)
	s.progress.Reset(len(addrs))

	coord := download.NewCoordinator(download.Config{
		Fetcher:     fetcher,
		Dir:         dir,
		Ext:         s.opts.Ext,
		Concurrency: s.opts.Concurrency,
		Retry:       s.opts.Retry,
		Progress:    s.progress,
	})
	stream := coord.FetchAll(ctx, addrs)
	defer stream.Close()

	asm := compose.NewAssembler(s.prim, s.fs, dir, compose.NewLayout(g, level), s.progress)
	return asm.Assemble(ctx, stream, output)
}

// scratchDir returns the directory receiving the tiles of output and the
// function releasing it.
func (s *Stitcher) scratchDir(output string) (string, func(), error) {
	log := logging.Logger()

	if s.opts.Store {
		dir := strings.TrimSuffix(output, filepath.Ext(output))
		if dir == output {
			dir += "_tiles"
		}
		if err := s.fs.MkdirAll(dir, 0o755); err != nil {
			return "", nil, fmt.Errorf("create tile directory: %w", err)
		}
		log.Debug("using tile directory", "dir", dir)
		return dir, func() {}, nil
	}

	if s.opts.TempDir != "" {
		if err := s.fs.MkdirAll(s.opts.TempDir, 0o755); err != nil {
			return "", nil, fmt.Errorf("create temporary directory: %w", err)
		}
	}
	dir, err := afero.TempDir(s.fs, s.opts.TempDir, "dezoomify_")
	if err != nil {
		return "", nil, fmt.Errorf("create temporary directory: %w", err)
	}
	log.Debug("created temporary tile directory", "dir", dir)
	return dir, func() {
		if err := s.fs.RemoveAll(dir); err != nil {
			log.Warn("failed to remove temporary tile directory", "dir", dir, "err", err)
		}
	}, nil
}

// RunBatch processes items one after another. Items that cannot be found
// or fail otherwise are logged and skipped; an unusable compositor or a
// cancelled context aborts the batch. The returned results include the
// skipped items with Err set.
func (s *Stitcher) RunBatch(ctx context.Context, items []batch.Item) ([]*Result, error) {
	log := logging.Logger()
	if err := s.Check(ctx); err != nil {
		return nil, err
	}

	results := make([]*Result, 0, len(items))
	for i, item := range items {
		log.Info("processing image", "n", i+1, "of", len(items), "url", item.URL, "output", item.Output)

		res, err := s.ProcessItem(ctx, item)
		if err == nil {
			results = append(results, res)
			continue
		}
		if ctx.Err() != nil {
			return results, ctx.Err()
		}
		if errors.Is(err, compose.ErrUnavailable) {
			return results, fmt.Errorf("%w: %w", ErrCompositorUnavailable, err)
		}

		switch {
		case errors.Is(err, source.ErrNotFound):
			log.Error("image not found, skipping", "url", item.URL, "err", err)
		case errors.Is(err, tile.ErrInvalidZoomLevel):
			log.Error("zoom level not available, skipping", "url", item.URL, "err", err)
		default:
			log.Error("unable to dezoomify image, skipping", "url", item.URL, "err", err)
		}
		res.Err = err
		results = append(results, res)
	}
	return results, nil
}

// Failed counts the results that carry an error.
func Failed(results []*Result) int {
	n := 0
	for _, r := range results {
		if r.Err != nil {
			n++
		}
	}
	return n
}

package download

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/afero"

	"github.com/kiesman99/dezoom/internal/fetch"
	"github.com/kiesman99/dezoom/pkg/tile"
)

// Fetcher stores the tile at addr in the file dst.
// A tile that does not exist is reported with an error wrapping
// fetch.ErrNotFound.
type Fetcher interface {
	Fetch(ctx context.Context, addr tile.Address, dst string) error
}

// LocalPath is where a tile is stored inside a scratch directory. The
// scheme is stable so that a later offline run can reuse the files.
func LocalPath(dir string, addr tile.Address, ext string) string {
	if ext == "" {
		ext = tile.DefaultExt
	}
	return filepath.Join(dir, fmt.Sprintf("%d_%d.%s", addr.Col, addr.Row, ext))
}

// HTTPFetcher downloads tiles from a pyramid base directory.
type HTTPFetcher struct {
	client *fetch.Client
	fs     afero.Fs
	base   string
	ext    string
}

// NewHTTPFetcher creates a fetcher for the pyramid at base.
func NewHTTPFetcher(client *fetch.Client, fs afero.Fs, base, ext string) *HTTPFetcher {
	return &HTTPFetcher{client: client, fs: fs, base: base, ext: ext}
}

// Fetch downloads one tile. A partially written file is removed on failure.
func (f *HTTPFetcher) Fetch(ctx context.Context, addr tile.Address, dst string) error {
	body, err := f.client.Get(ctx, addr.URL(f.base, f.ext))
	if err != nil {
		return err
	}
	defer body.Close()

	out, err := f.fs.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, body); err != nil {
		out.Close()
		f.fs.Remove(dst)
		return err
	}
	return out.Close()
}

// LocalFetcher serves tiles left in the scratch directory by an earlier run.
type LocalFetcher struct {
	fs afero.Fs
}

// NewLocalFetcher creates a fetcher that never touches the network.
func NewLocalFetcher(fs afero.Fs) *LocalFetcher {
	return &LocalFetcher{fs: fs}
}

// Fetch checks that dst already holds the tile.
func (f *LocalFetcher) Fetch(_ context.Context, addr tile.Address, dst string) error {
	info, err := f.fs.Stat(dst)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("tile %s: %s: %w", addr, dst, fetch.ErrNotFound)
		}
		return err
	}
	if info.Size() == 0 {
		return fmt.Errorf("tile %s: %s is empty: %w", addr, dst, fetch.ErrNotFound)
	}
	return nil
}

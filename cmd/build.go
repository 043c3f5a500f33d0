package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/viper"

	"github.com/kiesman99/dezoom/internal/compose"
	"github.com/kiesman99/dezoom/internal/fetch"
	"github.com/kiesman99/dezoom/internal/source"
	"github.com/kiesman99/dezoom/internal/stitch"
)

// DEZOOM_NO_DOWNLOAD, DEZOOM_SERVER_PORT, ...
var envKeyReplacer = strings.NewReplacer("-", "_", ".", "_")

// newPrimitive returns the compositor selected by --compositor.
func newPrimitive(fs afero.Fs) (compose.Primitive, error) {
	switch kind := viper.GetString("compositor"); kind {
	case "", "jpegtran":
		path, err := compose.Locate(viper.GetString("jpegtran"))
		if err != nil {
			return nil, fmt.Errorf("%w: %w", stitch.ErrCompositorUnavailable, err)
		}
		return &compose.Jpegtran{Path: path}, nil
	case "native":
		return compose.NewNative(fs), nil
	default:
		return nil, fmt.Errorf("unknown compositor %q (use jpegtran or native)", kind)
	}
}

func newClient() *fetch.Client {
	return fetch.NewClient(fetch.WithUserAgent(viper.GetString("user-agent")))
}

// newSource returns the pyramid source: the base directory is given
// directly with direct, otherwise it is looked up in a viewer page.
func newSource(client *fetch.Client, direct bool) (source.Source, error) {
	z, err := source.NewZoomify(client, 0)
	if err != nil {
		return nil, err
	}
	z.Retry = retry()
	if direct {
		return z, nil
	}
	return source.NewPage(z), nil
}

func retry() fetch.Retry {
	r := fetch.DefaultRetry
	if n := viper.GetInt("retries"); n > 0 {
		r.Attempts = n
	}
	return r
}

func stitchOptions() stitch.Options {
	return stitch.Options{
		ZoomLevel:   viper.GetInt("zoom"),
		Concurrency: viper.GetInt("threads"),
		Store:       viper.GetBool("store"),
		NoDownload:  viper.GetBool("no-download"),
		TempDir:     viper.GetString("temp-dir"),
		Retry:       retry(),
	}
}

// cacheTTL is the lifetime of finished images in the server.
func cacheTTL() time.Duration {
	if d := viper.GetDuration("server.cache-ttl"); d > 0 {
		return d
	}
	return time.Hour
}

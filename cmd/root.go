package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/kiesman99/dezoom/internal/batch"
	"github.com/kiesman99/dezoom/internal/logging"
	"github.com/kiesman99/dezoom/internal/stitch"
	"github.com/kiesman99/dezoom/pkg/tile"
)

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "dezoom URL OUTPUT_FILE",
	Short: "Download and losslessly assemble Zoomify images",
	Long: `dezoom downloads every tile of one zoom level of a Zoomify image pyramid
and joins them into a single JPEG without re-encoding, using jpegtran from
the "crop 'n' drop" distribution (http://jpegclub.org/jpegtran/).

URL is a web page embedding a Zoomify viewer, or with -b the base directory
of the pyramid (the directory holding ImageProperties.xml).

Examples:
  # Full resolution image from a page with a Zoomify viewer
  dezoom http://example.com/gallery/ship.html ship.jpg

  # Second finest level, base directory given directly
  dezoom -b -z -2 http://example.com/zoomify/ship/ ship.jpg

  # Batch: one URL per line, optionally followed by a tab and a file name
  dezoom -l urls.txt out/image.jpg

  # Keep the tiles, then rebuild the image later without downloading
  dezoom -s http://example.com/gallery/ship.html ship.jpg
  dezoom -x http://example.com/gallery/ship.html ship.jpg

  # Start HTTP server
  dezoom serve --port 8080`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logging.SetLogger(logging.New(cmd.ErrOrStderr(), viper.GetInt("verbose")))
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 {
			return cmd.Help()
		}
		if len(args) != 2 {
			return fmt.Errorf("expected URL and OUTPUT_FILE, got %d arguments", len(args))
		}
		return runDezoom(cmd, args[0], args[1])
	},
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.dezoom.yaml)")
	rootCmd.PersistentFlags().CountP("verbose", "v", "increase verbosity (-v info, -vv debug)")
	rootCmd.PersistentFlags().String("compositor", "jpegtran", "compositor (jpegtran|native); native re-encodes and is not lossless")
	rootCmd.PersistentFlags().StringP("jpegtran", "j", "", "location of the jpegtran executable (default: next to dezoom, then PATH)")
	rootCmd.PersistentFlags().IntP("threads", "t", 16, "number of simultaneous tile downloads")
	rootCmd.PersistentFlags().Int("retries", 5, "download attempts per tile")
	rootCmd.PersistentFlags().String("user-agent", "", "HTTP User-Agent header")

	rootCmd.Flags().BoolP("base", "b", false, "URL is the base directory of the pyramid rather than a page")
	rootCmd.Flags().BoolP("list", "l", false, "batch mode: URL is a local list file (URL[TAB]NAME per line) or a YAML manifest")
	rootCmd.Flags().IntP("zoom", "z", -1, "zoom level, 0 is the smallest; negative values count from the largest, -1 being full resolution")
	rootCmd.Flags().BoolP("store", "s", false, "keep the downloaded tiles in a directory named after the output file")
	rootCmd.Flags().BoolP("no-download", "x", false, "assemble tiles kept by an earlier -s run, without downloading (implies -s)")
	rootCmd.Flags().String("temp-dir", "", "parent of temporary tile directories (default: system temp)")

	viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
	viper.BindPFlag("compositor", rootCmd.PersistentFlags().Lookup("compositor"))
	viper.BindPFlag("jpegtran", rootCmd.PersistentFlags().Lookup("jpegtran"))
	viper.BindPFlag("threads", rootCmd.PersistentFlags().Lookup("threads"))
	viper.BindPFlag("retries", rootCmd.PersistentFlags().Lookup("retries"))
	viper.BindPFlag("user-agent", rootCmd.PersistentFlags().Lookup("user-agent"))
	viper.BindPFlag("base", rootCmd.Flags().Lookup("base"))
	viper.BindPFlag("list", rootCmd.Flags().Lookup("list"))
	viper.BindPFlag("zoom", rootCmd.Flags().Lookup("zoom"))
	viper.BindPFlag("store", rootCmd.Flags().Lookup("store"))
	viper.BindPFlag("no-download", rootCmd.Flags().Lookup("no-download"))
	viper.BindPFlag("temp-dir", rootCmd.Flags().Lookup("temp-dir"))
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)

		// Search config in home directory with name ".dezoom" (without extension).
		viper.AddConfigPath(home)
		viper.SetConfigType("yaml")
		viper.SetConfigName(".dezoom")
	}

	viper.SetEnvPrefix("dezoom")
	viper.SetEnvKeyReplacer(envKeyReplacer)
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

func runDezoom(cmd *cobra.Command, url, output string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fs := afero.NewOsFs()
	prim, err := newPrimitive(fs)
	if err != nil {
		return err
	}
	client := newClient()
	src, err := newSource(client, viper.GetBool("base"))
	if err != nil {
		return err
	}
	s := stitch.New(src, prim, client, fs, stitchOptions())

	items := batch.Single(url, output)
	if viper.GetBool("list") {
		items, err = batch.Load(fs, url, output, tile.DefaultExt)
		if err != nil {
			return err
		}
		if len(items) == 0 {
			return fmt.Errorf("no URLs in %s", url)
		}
	}

	stopProgress := reportProgress(ctx, s, 2*time.Second)
	defer stopProgress()

	if !viper.GetBool("list") {
		if err := s.Check(ctx); err != nil {
			return describe(err)
		}
		res, err := s.Process(ctx, url, output)
		if err != nil {
			return describe(err)
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "Saved %dx%d image to %s\n", res.Width, res.Height, output)
		return nil
	}

	results, err := s.RunBatch(ctx, items)
	if err != nil {
		return describe(err)
	}
	for _, res := range results {
		if res.Err == nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "Saved %dx%d image to %s\n", res.Width, res.Height, res.Output)
		}
	}
	if failed := stitch.Failed(results); failed > 0 {
		return fmt.Errorf("%d of %d images failed", failed, len(results))
	}
	return nil
}

// describe adds a hint for errors the user can act on.
func describe(err error) error {
	switch {
	case errors.Is(err, context.Canceled):
		return errors.New("interrupted")
	case errors.Is(err, stitch.ErrCompositorUnavailable):
		return fmt.Errorf("%w (use --compositor native to assemble without jpegtran)", err)
	}
	return err
}

// reportProgress logs the progress of s every interval until the returned
// function is called.
func reportProgress(ctx context.Context, s *stitch.Stitcher, interval time.Duration) func() {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if p := s.Progress(); p.Total > 0 {
					logging.Logger().Info("progress", "tiles", p.String())
				}
			}
		}
	}()
	return func() {
		cancel()
		<-done
	}
}

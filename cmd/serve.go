package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/kiesman99/dezoom/internal/api"
	"github.com/kiesman99/dezoom/internal/compose"
	"github.com/kiesman99/dezoom/internal/logging"
	"github.com/kiesman99/dezoom/internal/server"
	"github.com/kiesman99/dezoom/internal/source"
	"github.com/kiesman99/dezoom/internal/stitch"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start HTTP server for the dezoomify job API",
	Long: `Start an HTTP server that dezoomifies images as background jobs.

Jobs run one at a time. Finished images are kept in memory for --cache-ttl.

Endpoints:
  GET    /api/v1/health
  POST   /api/v1/jobs             {"url": "...", "zoom": -1, "base": false}
  GET    /api/v1/jobs/{id}
  DELETE /api/v1/jobs/{id}
  GET    /api/v1/jobs/{id}/image

Examples:
  # Start server on default port 8080
  dezoom serve

  # Start server with custom bind address, using the native compositor
  dezoom serve --bind 0.0.0.0 --port 8080 --compositor native`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("bind", "localhost", "bind address")
	serveCmd.Flags().IntP("port", "p", 8080, "port to listen on")
	serveCmd.Flags().Duration("timeout", 30*time.Second, "request timeout")
	serveCmd.Flags().String("work-dir", "", "directory receiving images while jobs run (default: system temp)")
	serveCmd.Flags().Duration("cache-ttl", time.Hour, "how long finished images are kept")
	serveCmd.Flags().Int("cache-size", 512, "image cache size in MB")
	serveCmd.Flags().StringSlice("cors-origin", []string{"*"}, "allowed CORS origins")

	viper.BindPFlag("server.bind", serveCmd.Flags().Lookup("bind"))
	viper.BindPFlag("server.port", serveCmd.Flags().Lookup("port"))
	viper.BindPFlag("server.timeout", serveCmd.Flags().Lookup("timeout"))
	viper.BindPFlag("server.work-dir", serveCmd.Flags().Lookup("work-dir"))
	viper.BindPFlag("server.cache-ttl", serveCmd.Flags().Lookup("cache-ttl"))
	viper.BindPFlag("server.cache-size", serveCmd.Flags().Lookup("cache-size"))
	viper.BindPFlag("server.cors-origin", serveCmd.Flags().Lookup("cors-origin"))
}

func runServe(cmd *cobra.Command, args []string) error {
	log := logging.Logger()
	addr := fmt.Sprintf("%s:%d", viper.GetString("server.bind"), viper.GetInt("server.port"))
	timeout := viper.GetDuration("server.timeout")

	fs := afero.NewOsFs()
	workDir := viper.GetString("server.work-dir")
	if workDir == "" {
		workDir = filepath.Join(os.TempDir(), "dezoom-jobs")
	}
	if err := fs.MkdirAll(workDir, 0o755); err != nil {
		return fmt.Errorf("create work directory: %w", err)
	}

	prim, err := newPrimitive(fs)
	switch {
	case errors.Is(err, stitch.ErrCompositorUnavailable):
		// health reports the missing executable until it is installed
		prim = &compose.Jpegtran{Path: "jpegtran"}
	case err != nil:
		return err
	}
	client := newClient()
	z, err := source.NewZoomify(client, 0)
	if err != nil {
		return err
	}
	z.Retry = retry()
	page := source.NewPage(z)

	opts := stitchOptions()
	opts.ZoomLevel = -1
	opts.Store, opts.NoDownload = false, false

	jobs, err := server.NewJobManager(server.JobManagerConfig{
		NewRunner: func(req api.JobRequest) server.Runner {
			var src source.Source = page
			if req.Base != nil && *req.Base {
				src = z
			}
			return stitch.New(src, prim, client, fs, opts)
		},
		Fs:          fs,
		WorkDir:     workDir,
		CacheTTL:    cacheTTL(),
		CacheSizeMB: viper.GetInt("server.cache-size"),
	})
	if err != nil {
		return err
	}
	jobs.Start()
	defer jobs.Stop()

	checker := stitch.New(z, prim, client, fs, opts)
	if err := checker.Check(cmd.Context()); err != nil {
		log.Warn("compositor unavailable, jobs will fail", "err", err)
	}

	r := server.NewRouter(server.NewServer("2.0.0", jobs, checker), server.RouterConfig{
		Timeout:     timeout,
		CORSOrigins: viper.GetStringSlice("server.cors-origin"),
	})

	httpServer := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  timeout,
		WriteTimeout: timeout,
	}

	// Graceful shutdown
	go func() {
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		<-ctx.Done()

		fmt.Fprintf(cmd.ErrOrStderr(), "\nShutting down server...\n")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error("server shutdown error", "err", err)
		}
	}()

	fmt.Fprintf(cmd.ErrOrStderr(), "Starting dezoom server on %s\n", addr)
	fmt.Fprintf(cmd.ErrOrStderr(), "Health check: http://%s/api/v1/health\n", addr)
	fmt.Fprintf(cmd.ErrOrStderr(), "Jobs endpoint: http://%s/api/v1/jobs\n", addr)

	if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %v", err)
	}
	return nil
}

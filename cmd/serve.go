package main

import (
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/basin-labs/controlsite/internal/api"
	"github.com/basin-labs/controlsite/internal/landcover"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the evaluation API over HTTP",
	Long: `Starts the HTTP API: boundary GeoJSON, control-site matching, circle
sampling, cropping change, groundwater levels, and Prometheus metrics
on /metrics. Rasters are loaded once at startup.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("serve"); err != nil {
			return err
		}

		env, err := initEval(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		if err := env.loadElevation(); err != nil {
			return err
		}
		if err := env.loadLandcover(); err != nil {
			return err
		}
		if err := env.loadLandcoverYears(landcover.DefaultFromYear, landcover.DefaultToYear); err != nil {
			return err
		}

		apiServer, err := api.NewServer(api.Options{
			Store:           env.Store,
			Matcher:         env.Matcher,
			Sampler:         env.Sampler,
			Landcover:       env.Landcover,
			Groundwater:     env.Groundwater,
			LandcoverSeries: cfg.Data.LandcoverSeries,
			AllowedOrigins:  cfg.Server.AllowedOrigins,
		})
		if err != nil {
			return eris.Wrap(err, "build api server")
		}

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: apiServer.Router(),
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			srv.Shutdown(ctx)
		}()

		zap.L().Info("starting server",
			zap.Int("port", port),
			zap.Strings("datasets", env.Raster.Datasets()),
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

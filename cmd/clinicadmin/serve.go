package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/krisalay/clinic-swr-cache/internal/config"
	"github.com/krisalay/clinic-swr-cache/internal/log"
	"github.com/krisalay/clinic-swr-cache/internal/server"
)

func newServeCmd(cfg *config.Config) *cobra.Command {
	var warm bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the admin API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := log.GetLogger()
			gin.SetMode(gin.ReleaseMode)

			a, err := newApp(cfg, logger)
			if err != nil {
				return err
			}
			defer a.close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if warm {
				warmCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
				if err := a.store.Warm(warmCtx); err != nil {
					logger.Warn("starting with a partially warmed cache", zap.Error(err))
				}
				cancel()
			}

			srv := server.New(a.store, a.cache, a.hub, a.metricsHandler(), logger.Named("server"))
			return srv.Start(ctx, cfg.Server.Listen)
		},
	}
	cmd.Flags().BoolVar(&warm, "warm", false, "prefetch every resource family before serving")
	return cmd
}

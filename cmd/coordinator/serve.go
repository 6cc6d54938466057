package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"goa.design/clue/log"
	"golang.org/x/sync/errgroup"

	"github.com/jonathanEDR/web-scuticompany-back-sub007/internal/observability"
	metrics "github.com/jonathanEDR/web-scuticompany-back-sub007/pkg/observability"
)

func newServeCmd(load loader) *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the coordinator API with health and metrics endpoints",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			ctx, c, err := open(ctx, load)
			if err != nil {
				return err
			}
			cfg := c.Config()
			if port > 0 {
				cfg.HTTPPort = port
			}

			if err := observability.Init(cfg.Observability.Tracing()); err != nil {
				_ = c.Close(ctx)
				return fmt.Errorf("init tracing: %w", err)
			}

			srv := metrics.NewServer(cfg.HTTPPort, c.Health())
			srv.Handle("/v1/", c.Handler())
			c.Start(ctx)

			log.Info(ctx, log.KV{K: "msg", V: "starting coordinator"}, log.KV{K: "version", V: Version}, log.KV{K: "port", V: cfg.HTTPPort}, log.KV{K: "store", V: cfg.Store})

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				return srv.Start(gctx)
			})
			g.Go(func() error {
				<-gctx.Done()
				log.Info(ctx, log.KV{K: "msg", V: "shutting down coordinator"})

				sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
				defer cancel()
				if err := srv.Shutdown(sctx); err != nil {
					log.Error(ctx, err, log.KV{K: "msg", V: "http server shutdown"})
				}
				if err := observability.Shutdown(sctx); err != nil {
					log.Error(ctx, err, log.KV{K: "msg", V: "tracer shutdown"})
				}
				return c.Close(sctx)
			})

			if err := g.Wait(); err != nil {
				return err
			}
			log.Info(ctx, log.KV{K: "msg", V: "coordinator stopped"})
			return nil
		},
	}
	cmd.Flags().IntVar(&port, "http-port", 0, "HTTP port (overrides http_port)")
	return cmd
}

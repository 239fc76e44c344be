package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"fleet-monitor/oilmonitor/internal/auth"
	"fleet-monitor/oilmonitor/internal/config"
	"fleet-monitor/oilmonitor/internal/store"
	transport "fleet-monitor/oilmonitor/internal/transport/http"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve recent readings and alerts to dashboards",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			return serveAPI(cmd.Context(), cfg, newLogger(cfg.LogLevel))
		},
	}
}

func serveAPI(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	st, err := store.Open(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	g, gctx := errgroup.WithContext(ctx)

	var (
		keys auth.KeyLookup
		hub  *transport.Hub
	)
	if cfg.RedisEnabled() {
		redisStore, err := store.NewRedisStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer redisStore.Close()
		keys = redisStore

		hub = transport.NewHub(log)
		sub := redisStore.SubscribeAlerts(gctx)
		defer sub.Close()
		g.Go(func() error {
			hub.Run(gctx)
			return nil
		})
		g.Go(func() error {
			hub.RelayAlerts(gctx, sub.Channel())
			return nil
		})
	} else {
		log.Warn("redis not configured, only static API keys accepted and /ws/alerts disabled")
	}

	authn := auth.NewAuthenticator(cfg, keys)
	srv := transport.NewServer(st, transport.NewAuthMiddleware(authn), hub, log)

	addr := fmt.Sprintf(":%s", cfg.HTTPPort)
	log.Info("read api starting", "addr", addr, "store", store.Backend(cfg.DatabaseURL))
	g.Go(func() error { return serveHTTP(gctx, addr, srv.Router(), log) })

	err = g.Wait()
	log.Info("read api stopped")
	return err
}

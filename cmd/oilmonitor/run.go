package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"fleet-monitor/oilmonitor/internal/classifier"
	"fleet-monitor/oilmonitor/internal/config"
	"fleet-monitor/oilmonitor/internal/domain"
	"fleet-monitor/oilmonitor/internal/metrics"
	"fleet-monitor/oilmonitor/internal/notify"
	"fleet-monitor/oilmonitor/internal/pipeline"
	"fleet-monitor/oilmonitor/internal/source"
	"fleet-monitor/oilmonitor/internal/store"
)

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the monitoring loop",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			return runMonitor(cmd.Context(), cfg, newLogger(cfg.LogLevel))
		},
	}
}

func runMonitor(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	st, err := store.Open(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()
	if err := st.Migrate(ctx); err != nil {
		return err
	}

	model, err := classifier.Load(cfg.ModelPath)
	if err != nil {
		return err
	}

	src, closeSource, err := openSource(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeSource()

	var opts []pipeline.SinkOption
	if cfg.NotificationsEnabled() {
		opts = append(opts, pipeline.WithNotifier(
			notify.NewTelegram(cfg.TelegramAPIURL, cfg.TelegramToken, cfg.TelegramChatID, cfg.NotifyTimeout),
		))
	} else {
		log.Warn("telegram credentials not set, critical alerts will not be notified")
	}

	var redisStore *store.RedisStore
	if cfg.RedisEnabled() {
		redisStore, err = store.NewRedisStore(ctx, cfg)
		if err != nil {
			// live state is best-effort; the loop runs without it
			log.Warn("redis unavailable, live state disabled", "addr", cfg.RedisAddr, "error", err)
		} else {
			defer redisStore.Close()
			opts = append(opts, pipeline.WithLivePublisher(redisStore))
		}
	}

	if cfg.AlertCooldown > 0 {
		if redisStore != nil {
			opts = append(opts, pipeline.WithCooldown(pipeline.NewRedisCooldown(redisStore, cfg.AlertCooldown)))
		} else {
			opts = append(opts, pipeline.WithCooldown(pipeline.NewMemoryCooldown(cfg.AlertCooldown)))
		}
	}

	monitor := pipeline.NewMonitor(
		cfg.VehicleIDs,
		cfg.TickPeriod,
		src,
		pipeline.NewRuleEvaluator(domain.Thresholds{
			ViscosityHighCP: cfg.ViscosityHighCP,
			OilLevelLowPct:  cfg.OilLevelLowPct,
		}),
		model,
		pipeline.NewSynthesizer(cfg.EscalateCriticalProbability),
		pipeline.NewSink(st, log, opts...),
		log,
	)

	log.Info("oilmonitor starting",
		"store", store.Backend(cfg.DatabaseURL),
		"source", cfg.ReadingSource,
		"vehicles", cfg.VehicleIDs,
		"classes", model.Classes(),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return monitor.Run(gctx) })
	if cfg.MetricsAddr != "" {
		g.Go(func() error { return serveHTTP(gctx, cfg.MetricsAddr, metrics.Handler(), log) })
	}

	err = g.Wait()
	log.Info("oilmonitor stopped")
	return err
}

func openSource(ctx context.Context, cfg *config.Config, log *slog.Logger) (pipeline.ReadingSource, func(), error) {
	switch cfg.ReadingSource {
	case config.SourceMQTT:
		src, err := source.DialMQTT(ctx, cfg.MQTTBroker, cfg.MQTTClientID, cfg.MQTTTopic, log)
		if err != nil {
			return nil, nil, err
		}
		return src, func() { src.Close() }, nil
	default:
		return source.NewSimulator(uint64(time.Now().UnixNano())), func() {}, nil
	}
}

// serveHTTP runs srv until ctx is cancelled and then shuts it down.
func serveHTTP(ctx context.Context, addr string, h http.Handler, log *slog.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("http listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server on %s: %w", addr, err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

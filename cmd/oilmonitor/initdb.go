package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"fleet-monitor/oilmonitor/internal/config"
	"fleet-monitor/oilmonitor/internal/store"
)

func initDBCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init-db",
		Short: "Create the sensor_readings and alerts tables",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			log := newLogger(cfg.LogLevel)

			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()

			st, err := store.Open(ctx, cfg)
			if err != nil {
				return err
			}
			defer st.Close()

			if err := st.Migrate(ctx); err != nil {
				return err
			}
			log.Info("schema ready", "store", store.Backend(cfg.DatabaseURL))
			return nil
		},
	}
}

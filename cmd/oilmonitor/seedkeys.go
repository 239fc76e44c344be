package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"fleet-monitor/oilmonitor/internal/config"
	"fleet-monitor/oilmonitor/internal/store"
)

func seedKeysCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed-keys KEY=OWNER...",
		Short: "Register read API keys in redis",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Read()
			if err != nil {
				return err
			}
			log := newLogger(cfg.LogLevel)
			if !cfg.RedisEnabled() {
				return fmt.Errorf("%w: REDIS_ADDR must be set", config.ErrConfigurationMissing)
			}

			pairs, err := parseKeyPairs(args)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()

			rs, err := store.NewRedisStore(ctx, cfg)
			if err != nil {
				return err
			}
			defer rs.Close()

			for _, p := range pairs {
				if err := rs.SetAPIKey(ctx, p[0], p[1]); err != nil {
					return fmt.Errorf("seed key for %s: %w", p[1], err)
				}
				log.Info("api key registered", "owner", p[1])
			}
			return nil
		},
	}
}

// parseKeyPairs splits KEY=OWNER arguments.
func parseKeyPairs(args []string) ([][2]string, error) {
	pairs := make([][2]string, 0, len(args))
	for _, a := range args {
		key, owner, ok := strings.Cut(a, "=")
		key, owner = strings.TrimSpace(key), strings.TrimSpace(owner)
		if !ok || key == "" || owner == "" {
			return nil, fmt.Errorf("expected KEY=OWNER, got %q", a)
		}
		pairs = append(pairs, [2]string{key, owner})
	}
	return pairs, nil
}

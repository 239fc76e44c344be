package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"fleet-monitor/oilmonitor/internal/config"
	"fleet-monitor/oilmonitor/internal/domain"
)

const (
	TelemetryChannel = "fleet:oil:telemetry"
	AlertChannel     = "fleet:oil:alerts"

	vehicleStateTTL = 30 * time.Second
)

type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(ctx context.Context, cfg *config.Config) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.RedisAddr,
		Password:     cfg.RedisPassword,
		DB:           cfg.RedisDB,
		PoolSize:     10,
		MinIdleConns: 2,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisStore{client: client}, nil
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}

func (r *RedisStore) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisStore) Client() *redis.Client {
	return r.client
}

// PublishVehicleState stores the latest reading and its advisory verdict
// under vehicle:<id>:oil and announces it on the telemetry channel.
func (r *RedisStore) PublishVehicleState(ctx context.Context, rd *domain.Reading, v domain.HealthVerdict) error {
	stateData := map[string]interface{}{
		"vehicle_id":           rd.VehicleID,
		"reading_id":           rd.ID,
		"oil_temp_c":           rd.OilTempC,
		"viscosity_cp":         rd.ViscosityCP,
		"oil_level_pct":        rd.OilLevelPct,
		"pressure_kpa":         rd.PressureKPA,
		"predicted_status":     string(v.PredictedStatus),
		"critical_probability": v.CriticalProbability,
		"ts":                   rd.Timestamp.Unix(),
	}

	pubPayload, err := json.Marshal(stateData)
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	stateKey := VehicleStateKey(rd.VehicleID)

	pipe := r.client.Pipeline()
	pipe.HSet(ctx, stateKey, stateData)
	pipe.Expire(ctx, stateKey, vehicleStateTTL)
	pipe.Publish(ctx, TelemetryChannel, pubPayload)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis pipeline failed: %w", err)
	}
	return nil
}

func (r *RedisStore) PublishAlert(ctx context.Context, a *domain.Alert) error {
	payload, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("failed to marshal alert: %w", err)
	}
	return r.client.Publish(ctx, AlertChannel, payload).Err()
}

// SubscribeAlerts returns a subscription to the alert channel. The caller
// closes it.
func (r *RedisStore) SubscribeAlerts(ctx context.Context) *redis.PubSub {
	return r.client.Subscribe(ctx, AlertChannel)
}

// AcquireCooldown returns true when no cooldown was active for the vehicle
// and starts one lasting ttl.
func (r *RedisStore) AcquireCooldown(ctx context.Context, vehicleID string, ttl time.Duration) (bool, error) {
	key := fmt.Sprintf("alert:cooldown:%s", vehicleID)
	ok, err := r.client.SetNX(ctx, key, time.Now().UTC().Format(time.RFC3339Nano), ttl).Result()
	if err != nil {
		return false, fmt.Errorf("cooldown check failed: %w", err)
	}
	return ok, nil
}

func (r *RedisStore) GetAPIKey(ctx context.Context, apiKey string) (string, error) {
	val, err := r.client.Get(ctx, apiKeyKey(apiKey)).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("redis get api key failed: %w", err)
	}
	return val, nil
}

// SetAPIKey registers apiKey for owner with no expiry.
func (r *RedisStore) SetAPIKey(ctx context.Context, apiKey, owner string) error {
	return r.client.Set(ctx, apiKeyKey(apiKey), owner, 0).Err()
}

func VehicleStateKey(vehicleID string) string {
	return fmt.Sprintf("vehicle:%s:oil", vehicleID)
}

func apiKeyKey(apiKey string) string {
	return fmt.Sprintf("vehicle:auth:%s", apiKey)
}

package config

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/spf13/cast"
	"github.com/spf13/viper"
)

var (
	// ErrConfigurationMissing is returned when a mandatory setting is absent.
	ErrConfigurationMissing = errors.New("configuration missing")
	// ErrInvalidSetting is returned when a setting is present but unusable.
	ErrInvalidSetting = errors.New("invalid setting")
)

type Config struct {
	// Store
	DatabaseURL string
	DBMaxConns  int32

	// Monitoring loop
	VehicleIDs []string
	TickPeriod time.Duration

	// Rule thresholds
	ViscosityHighCP float64
	OilLevelLowPct  float64

	// Alert policy
	EscalateCriticalProbability float64
	AlertCooldown               time.Duration

	// Classifier
	ModelPath string

	// Reading source
	ReadingSource string
	MQTTBroker    string
	MQTTTopic     string
	MQTTClientID  string

	// Telegram
	TelegramToken  string
	TelegramChatID string
	TelegramAPIURL string
	NotifyTimeout  time.Duration

	// Redis
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// HTTP
	MetricsAddr string
	HTTPPort    string

	// Auth
	AuthCacheTTLSeconds int
	ValidAPIKeys        []string

	LogLevel string
}

const (
	SourceSimulated = "sim"
	SourceMQTT      = "mqtt"
)

// Load reads .env (when present) and the process environment once and
// validates the result. The returned Config is treated as immutable by every
// component.
func Load() (*Config, error) {
	cfg, err := Read()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Read is Load without validation, for tools that only need part of the
// settings. A numeric setting that is present but does not parse is still
// an error.
func Read() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.AutomaticEnv()
	setDefaults(v)
	n := &numbers{v: v}

	cfg := &Config{
		DatabaseURL:                 strings.TrimSpace(v.GetString("DATABASE_URL")),
		DBMaxConns:                  n.getInt32("DB_MAX_CONNS"),
		VehicleIDs:                  splitList(v.GetString("VEHICLE_IDS")),
		TickPeriod:                  n.getSeconds("SLEEP_SECONDS"),
		ViscosityHighCP:             n.getFloat("THRESHOLD_VISCOSITY_HIGH"),
		OilLevelLowPct:              n.getFloat("THRESHOLD_OIL_LEVEL_LOW"),
		EscalateCriticalProbability: n.getFloat("ESCALATE_CRITICAL_PROBABILITY"),
		AlertCooldown:               n.getSeconds("ALERT_COOLDOWN_SECONDS"),
		ModelPath:                   v.GetString("MODEL_PATH"),
		ReadingSource:               strings.ToLower(v.GetString("READING_SOURCE")),
		MQTTBroker:                  v.GetString("MQTT_BROKER"),
		MQTTTopic:                   v.GetString("MQTT_TOPIC"),
		MQTTClientID:                v.GetString("MQTT_CLIENT_ID"),
		TelegramToken:               v.GetString("TELEGRAM_TOKEN"),
		TelegramChatID:              v.GetString("TELEGRAM_CHAT_ID"),
		TelegramAPIURL:              strings.TrimRight(v.GetString("TELEGRAM_API_URL"), "/"),
		NotifyTimeout:               n.getSeconds("NOTIFY_TIMEOUT_SECONDS"),
		RedisAddr:                   v.GetString("REDIS_ADDR"),
		RedisPassword:               v.GetString("REDIS_PASSWORD"),
		RedisDB:                     n.getInt("REDIS_DB"),
		MetricsAddr:                 v.GetString("METRICS_ADDR"),
		HTTPPort:                    v.GetString("HTTP_PORT"),
		AuthCacheTTLSeconds:         n.getInt("AUTH_CACHE_TTL_SECONDS"),
		ValidAPIKeys:                splitList(v.GetString("VALID_API_KEYS")),
		LogLevel:                    v.GetString("LOG_LEVEL"),
	}
	if err := errors.Join(n.errs...); err != nil {
		return nil, err
	}

	if cfg.MQTTClientID == "" {
		cfg.MQTTClientID = "oilmonitor-" + uuid.NewString()
	}
	return cfg, nil
}

// numbers converts viper values with cast and remembers every failure
// instead of collapsing it to zero.
type numbers struct {
	v    *viper.Viper
	errs []error
}

func (n *numbers) fail(key string, err error) {
	n.errs = append(n.errs, fmt.Errorf("%w: %s: %v", ErrInvalidSetting, key, err))
}

func (n *numbers) getFloat(key string) float64 {
	f, err := cast.ToFloat64E(n.v.Get(key))
	if err != nil {
		n.fail(key, err)
		return 0
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		n.fail(key, fmt.Errorf("%v is not finite", f))
		return 0
	}
	return f
}

func (n *numbers) getSeconds(key string) time.Duration {
	return time.Duration(n.getFloat(key) * float64(time.Second))
}

func (n *numbers) getInt(key string) int {
	i, err := cast.ToIntE(n.v.Get(key))
	if err != nil {
		n.fail(key, err)
	}
	return i
}

func (n *numbers) getInt32(key string) int32 {
	i, err := cast.ToInt32E(n.v.Get(key))
	if err != nil {
		n.fail(key, err)
	}
	return i
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("DB_MAX_CONNS", 10)
	v.SetDefault("VEHICLE_IDS", "truck-1,truck-2")
	v.SetDefault("SLEEP_SECONDS", 5.0)
	v.SetDefault("THRESHOLD_VISCOSITY_HIGH", 120.0)
	v.SetDefault("THRESHOLD_OIL_LEVEL_LOW", 20.0)
	v.SetDefault("ESCALATE_CRITICAL_PROBABILITY", 0.0)
	v.SetDefault("ALERT_COOLDOWN_SECONDS", 0.0)
	v.SetDefault("MODEL_PATH", "models/oil_health_model.json")
	v.SetDefault("READING_SOURCE", SourceSimulated)
	v.SetDefault("MQTT_BROKER", "localhost:1883")
	v.SetDefault("MQTT_TOPIC", "fleet/+/oil")
	v.SetDefault("TELEGRAM_API_URL", "https://api.telegram.org")
	v.SetDefault("NOTIFY_TIMEOUT_SECONDS", 5.0)
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("METRICS_ADDR", ":9100")
	v.SetDefault("HTTP_PORT", "8001")
	v.SetDefault("AUTH_CACHE_TTL_SECONDS", 300)
	v.SetDefault("LOG_LEVEL", "info")
}

// Validate checks the settings the process cannot start without.
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("%w: DATABASE_URL must be set", ErrConfigurationMissing)
	}
	if len(c.VehicleIDs) == 0 {
		return fmt.Errorf("%w: VEHICLE_IDS is empty", ErrConfigurationMissing)
	}
	if c.TickPeriod <= 0 {
		return fmt.Errorf("%w: SLEEP_SECONDS must be positive, got %v", ErrInvalidSetting, c.TickPeriod)
	}
	if !finiteNonNegative(c.ViscosityHighCP) {
		return fmt.Errorf("%w: THRESHOLD_VISCOSITY_HIGH must be a finite non-negative number, got %v", ErrInvalidSetting, c.ViscosityHighCP)
	}
	if !finiteNonNegative(c.OilLevelLowPct) {
		return fmt.Errorf("%w: THRESHOLD_OIL_LEVEL_LOW must be a finite non-negative number, got %v", ErrInvalidSetting, c.OilLevelLowPct)
	}
	if c.NotifyTimeout <= 0 {
		return fmt.Errorf("%w: NOTIFY_TIMEOUT_SECONDS must be positive, got %v", ErrInvalidSetting, c.NotifyTimeout)
	}
	if c.AlertCooldown < 0 {
		return fmt.Errorf("%w: ALERT_COOLDOWN_SECONDS must not be negative, got %v", ErrInvalidSetting, c.AlertCooldown)
	}
	switch c.ReadingSource {
	case SourceSimulated, SourceMQTT:
	default:
		return fmt.Errorf("%w: unknown READING_SOURCE %q", ErrInvalidSetting, c.ReadingSource)
	}
	if !(c.EscalateCriticalProbability >= 0 && c.EscalateCriticalProbability <= 100) {
		return fmt.Errorf("%w: ESCALATE_CRITICAL_PROBABILITY must be within [0,100], got %v", ErrInvalidSetting, c.EscalateCriticalProbability)
	}
	return nil
}

// NotificationsEnabled reports whether both Telegram credentials are present.
func (c *Config) NotificationsEnabled() bool {
	return c.TelegramToken != "" && c.TelegramChatID != ""
}

func (c *Config) RedisEnabled() bool {
	return c.RedisAddr != ""
}

func splitList(raw string) []string {
	var out []string
	for _, s := range strings.Split(raw, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func finiteNonNegative(f float64) bool {
	return f >= 0 && !math.IsInf(f, 1)
}

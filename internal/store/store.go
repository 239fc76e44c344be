package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"fleet-monitor/oilmonitor/internal/config"
	"fleet-monitor/oilmonitor/internal/domain"
)

// ErrStoreWrite wraps every failed insert.
var ErrStoreWrite = errors.New("store write failed")

const (
	DefaultReadingLimit = 100
	MaxReadingLimit     = 500
	DefaultAlertLimit   = 20
)

// Store is the persistence contract: single-row inserts that return the
// assigned id, and newest-first selects for dashboard consumers.
type Store interface {
	InsertReading(ctx context.Context, r *domain.Reading) (int64, error)
	InsertAlert(ctx context.Context, a *domain.Alert) (int64, error)
	RecentReadings(ctx context.Context, q ReadingQuery) ([]domain.Reading, error)
	RecentAlerts(ctx context.Context, limit int) ([]domain.Alert, error)
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}

// ReadingQuery selects readings ordered by ts descending. An empty VehicleID
// means every vehicle.
type ReadingQuery struct {
	VehicleID string
	Limit     int
}

func (q ReadingQuery) limit() int {
	return clampLimit(q.Limit, DefaultReadingLimit)
}

func clampLimit(n, def int) int {
	switch {
	case n <= 0:
		return def
	case n > MaxReadingLimit:
		return MaxReadingLimit
	}
	return n
}

// Open picks the backend from the URL scheme: postgres:// or postgresql://
// for pgx, sqlite:// for a local file.
func Open(ctx context.Context, cfg *config.Config) (Store, error) {
	url := cfg.DatabaseURL
	switch {
	case strings.HasPrefix(url, "postgres://"), strings.HasPrefix(url, "postgresql://"):
		return NewPostgresStore(ctx, url, cfg.DBMaxConns)
	case strings.HasPrefix(url, "sqlite://"):
		return NewSQLiteStore(ctx, strings.TrimPrefix(url, "sqlite://"))
	default:
		return nil, fmt.Errorf("unsupported DATABASE_URL scheme in %q", redact(url))
	}
}

// Backend names the store kind for logs without leaking credentials.
func Backend(url string) string {
	if i := strings.Index(url, "://"); i > 0 {
		return url[:i]
	}
	return "unknown"
}

func redact(url string) string {
	at := strings.LastIndex(url, "@")
	scheme := strings.Index(url, "://")
	if at < 0 || scheme < 0 || at < scheme {
		return url
	}
	return url[:scheme+3] + "***" + url[at:]
}

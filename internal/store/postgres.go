package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"fleet-monitor/oilmonitor/internal/domain"
)

type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, url string, maxConns int32) (*PostgresStore, error) {
	poolCfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse db url: %w", err)
	}
	if maxConns > 0 {
		poolCfg.MaxConns = maxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create db pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping db: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS sensor_readings (
		id            BIGSERIAL        PRIMARY KEY,
		vehicle_id    TEXT             NOT NULL,
		oil_temp_c    DOUBLE PRECISION NOT NULL,
		viscosity_cp  DOUBLE PRECISION NOT NULL,
		oil_level_pct DOUBLE PRECISION NOT NULL,
		pressure_kpa  DOUBLE PRECISION NOT NULL,
		raw_json      JSONB,
		ts            TIMESTAMPTZ      NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS alerts (
		id         BIGSERIAL   PRIMARY KEY,
		reading_id BIGINT      NOT NULL REFERENCES sensor_readings (id),
		vehicle_id TEXT        NOT NULL,
		severity   TEXT        NOT NULL,
		message    TEXT        NOT NULL,
		ts         TIMESTAMPTZ NOT NULL,

		CONSTRAINT chk_alert_severity CHECK (severity IN ('warning', 'critical'))
	)`,
	`CREATE INDEX IF NOT EXISTS idx_sensor_readings_ts ON sensor_readings (ts DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_sensor_readings_vehicle_ts ON sensor_readings (vehicle_id, ts DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_alerts_ts ON alerts (ts DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_alerts_vehicle_ts ON alerts (vehicle_id, ts DESC)`,
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	for _, stmt := range postgresSchema {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

func (s *PostgresStore) InsertReading(ctx context.Context, r *domain.Reading) (int64, error) {
	query := `
		INSERT INTO sensor_readings
			(vehicle_id, oil_temp_c, viscosity_cp, oil_level_pct, pressure_kpa, raw_json, ts)
		VALUES
			($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`
	var raw any
	if len(r.RawJSON) > 0 {
		raw = string(r.RawJSON)
	}

	var id int64
	err := s.pool.QueryRow(
		ctx,
		query,
		r.VehicleID,
		r.OilTempC,
		r.ViscosityCP,
		r.OilLevelPct,
		r.PressureKPA,
		raw,
		r.Timestamp,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("%w: sensor_readings insert for %s: %v", ErrStoreWrite, r.VehicleID, err)
	}
	return id, nil
}

func (s *PostgresStore) InsertAlert(ctx context.Context, a *domain.Alert) (int64, error) {
	query := `
		INSERT INTO alerts
			(reading_id, vehicle_id, severity, message, ts)
		VALUES
			($1, $2, $3, $4, $5)
		RETURNING id
	`
	var id int64
	err := s.pool.QueryRow(
		ctx,
		query,
		a.ReadingID,
		a.VehicleID,
		string(a.Severity),
		a.Message,
		a.Timestamp,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("%w: alerts insert for %s: %v", ErrStoreWrite, a.VehicleID, err)
	}
	return id, nil
}

func (s *PostgresStore) RecentReadings(ctx context.Context, q ReadingQuery) ([]domain.Reading, error) {
	query := `SELECT id, vehicle_id, oil_temp_c, viscosity_cp, oil_level_pct, pressure_kpa, raw_json, ts
		FROM sensor_readings`
	args := []any{}
	if q.VehicleID != "" {
		args = append(args, q.VehicleID)
		query += ` WHERE vehicle_id = $1`
	}
	args = append(args, q.limit())
	query += fmt.Sprintf(` ORDER BY ts DESC, id DESC LIMIT $%d`, len(args))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("readings query failed: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Reading, error) {
		var (
			r   domain.Reading
			raw []byte
		)
		err := row.Scan(&r.ID, &r.VehicleID, &r.OilTempC, &r.ViscosityCP, &r.OilLevelPct, &r.PressureKPA, &raw, &r.Timestamp)
		r.RawJSON = raw
		return r, err
	})
}

func (s *PostgresStore) RecentAlerts(ctx context.Context, limit int) ([]domain.Alert, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, reading_id, vehicle_id, severity, message, ts
		FROM alerts
		ORDER BY ts DESC, id DESC
		LIMIT $1
	`, clampLimit(limit, DefaultAlertLimit))
	if err != nil {
		return nil, fmt.Errorf("alerts query failed: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Alert, error) {
		var a domain.Alert
		var severity string
		err := row.Scan(&a.ID, &a.ReadingID, &a.VehicleID, &severity, &a.Message, &a.Timestamp)
		a.Severity = domain.AlertSeverity(severity)
		return a, err
	})
}

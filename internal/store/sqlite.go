package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"fleet-monitor/oilmonitor/internal/domain"
)

// SQLiteStore is the single-file backend for local runs and tests.
type SQLiteStore struct {
	conn *sql.DB
}

func NewSQLiteStore(ctx context.Context, path string) (*SQLiteStore, error) {
	conn, err := sql.Open("sqlite3", fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on", path))
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite db: %w", err)
	}

	// single writer
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)
	conn.SetConnMaxLifetime(time.Hour)

	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping sqlite db: %w", err)
	}
	return &SQLiteStore{conn: conn}, nil
}

func (s *SQLiteStore) Close() error {
	return s.conn.Close()
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.conn.PingContext(ctx)
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS sensor_readings (
	id            INTEGER  PRIMARY KEY AUTOINCREMENT,
	vehicle_id    TEXT     NOT NULL,
	oil_temp_c    REAL     NOT NULL,
	viscosity_cp  REAL     NOT NULL,
	oil_level_pct REAL     NOT NULL,
	pressure_kpa  REAL     NOT NULL,
	raw_json      TEXT,
	ts            DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS alerts (
	id         INTEGER  PRIMARY KEY AUTOINCREMENT,
	reading_id INTEGER  NOT NULL REFERENCES sensor_readings (id),
	vehicle_id TEXT     NOT NULL,
	severity   TEXT     NOT NULL CHECK (severity IN ('warning', 'critical')),
	message    TEXT     NOT NULL,
	ts         DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_sensor_readings_ts ON sensor_readings (ts DESC);
CREATE INDEX IF NOT EXISTS idx_sensor_readings_vehicle_ts ON sensor_readings (vehicle_id, ts DESC);
CREATE INDEX IF NOT EXISTS idx_alerts_ts ON alerts (ts DESC);
CREATE INDEX IF NOT EXISTS idx_alerts_vehicle_ts ON alerts (vehicle_id, ts DESC);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	if _, err := s.conn.ExecContext(ctx, sqliteSchema); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	return nil
}

func (s *SQLiteStore) InsertReading(ctx context.Context, r *domain.Reading) (int64, error) {
	var raw any
	if len(r.RawJSON) > 0 {
		raw = string(r.RawJSON)
	}

	res, err := s.conn.ExecContext(ctx, `
		INSERT INTO sensor_readings
			(vehicle_id, oil_temp_c, viscosity_cp, oil_level_pct, pressure_kpa, raw_json, ts)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.VehicleID, r.OilTempC, r.ViscosityCP, r.OilLevelPct, r.PressureKPA, raw, r.Timestamp.UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("%w: sensor_readings insert for %s: %v", ErrStoreWrite, r.VehicleID, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("%w: sensor_readings id for %s: %v", ErrStoreWrite, r.VehicleID, err)
	}
	return id, nil
}

func (s *SQLiteStore) InsertAlert(ctx context.Context, a *domain.Alert) (int64, error) {
	res, err := s.conn.ExecContext(ctx, `
		INSERT INTO alerts (reading_id, vehicle_id, severity, message, ts)
		VALUES (?, ?, ?, ?, ?)`,
		a.ReadingID, a.VehicleID, string(a.Severity), a.Message, a.Timestamp.UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("%w: alerts insert for %s: %v", ErrStoreWrite, a.VehicleID, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("%w: alerts id for %s: %v", ErrStoreWrite, a.VehicleID, err)
	}
	return id, nil
}

func (s *SQLiteStore) RecentReadings(ctx context.Context, q ReadingQuery) ([]domain.Reading, error) {
	query := `SELECT id, vehicle_id, oil_temp_c, viscosity_cp, oil_level_pct, pressure_kpa, raw_json, ts
		FROM sensor_readings`
	args := []any{}
	if q.VehicleID != "" {
		query += ` WHERE vehicle_id = ?`
		args = append(args, q.VehicleID)
	}
	query += ` ORDER BY ts DESC, id DESC LIMIT ?`
	args = append(args, q.limit())

	rows, err := s.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("readings query failed: %w", err)
	}
	defer rows.Close()

	var out []domain.Reading
	for rows.Next() {
		var r domain.Reading
		var raw sql.NullString
		if err := rows.Scan(&r.ID, &r.VehicleID, &r.OilTempC, &r.ViscosityCP, &r.OilLevelPct, &r.PressureKPA, &raw, &r.Timestamp); err != nil {
			return nil, err
		}
		if raw.Valid {
			r.RawJSON = []byte(raw.String)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) RecentAlerts(ctx context.Context, limit int) ([]domain.Alert, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT id, reading_id, vehicle_id, severity, message, ts
		FROM alerts
		ORDER BY ts DESC, id DESC
		LIMIT ?`, clampLimit(limit, DefaultAlertLimit))
	if err != nil {
		return nil, fmt.Errorf("alerts query failed: %w", err)
	}
	defer rows.Close()

	var out []domain.Alert
	for rows.Next() {
		var a domain.Alert
		var severity string
		if err := rows.Scan(&a.ID, &a.ReadingID, &a.VehicleID, &severity, &a.Message, &a.Timestamp); err != nil {
			return nil, err
		}
		a.Severity = domain.AlertSeverity(severity)
		out = append(out, a)
	}
	return out, rows.Err()
}

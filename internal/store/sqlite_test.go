package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"fleet-monitor/oilmonitor/internal/domain"
)

func newTestSQLite(t *testing.T) *SQLiteStore {
	t.Helper()
	ctx := context.Background()
	s, err := NewSQLiteStore(ctx, filepath.Join(t.TempDir(), "oil.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.Migrate(ctx))
	return s
}

func TestSQLiteMigrateIsIdempotent(t *testing.T) {
	s := newTestSQLite(t)
	require.NoError(t, s.Migrate(context.Background()))
}

func TestSQLiteIndexesMatchPostgres(t *testing.T) {
	s := newTestSQLite(t)

	rows, err := s.conn.QueryContext(context.Background(),
		`SELECT name FROM sqlite_master WHERE type = 'index' AND name LIKE 'idx_%' ORDER BY name`)
	require.NoError(t, err)
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		require.NoError(t, rows.Scan(&name))
		names = append(names, name)
	}
	require.NoError(t, rows.Err())
	require.Equal(t, schemaIndexes, names)
}

func TestSQLiteInsertAndSelect(t *testing.T) {
	s := newTestSQLite(t)
	exerciseStore(t, s)
}

func TestSQLiteAlertNeedsExistingReading(t *testing.T) {
	s := newTestSQLite(t)
	_, err := s.InsertAlert(context.Background(), &domain.Alert{
		ReadingID: 12345,
		VehicleID: "truck-1",
		Severity:  domain.SeverityWarning,
		Message:   "orphan",
		Timestamp: time.Now(),
	})
	require.ErrorIs(t, err, ErrStoreWrite)
}

func TestSQLiteRejectsUnknownSeverity(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()
	id, err := s.InsertReading(ctx, &domain.Reading{VehicleID: "truck-1", Timestamp: time.Now()})
	require.NoError(t, err)

	_, err = s.InsertAlert(ctx, &domain.Alert{ReadingID: id, VehicleID: "truck-1", Severity: "info", Message: "x", Timestamp: time.Now()})
	require.ErrorIs(t, err, ErrStoreWrite)
}

// exerciseStore checks the Store contract shared by every backend.
func exerciseStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()
	base := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)

	var ids []int64
	for i := 0; i < 6; i++ {
		vehicle := "truck-1"
		if i%2 == 1 {
			vehicle = "truck-2"
		}
		id, err := s.InsertReading(ctx, &domain.Reading{
			VehicleID:   vehicle,
			Timestamp:   base.Add(time.Duration(i) * time.Second),
			OilTempC:    70 + float64(i),
			ViscosityCP: 100 + float64(i),
			OilLevelPct: 50,
			PressureKPA: 120,
			RawJSON:     []byte(`{"sim":true}`),
		})
		require.NoError(t, err)
		require.NotZero(t, id)
		ids = append(ids, id)
	}
	require.Len(t, ids, 6)
	for i := 1; i < len(ids); i++ {
		require.Greater(t, ids[i], ids[i-1])
	}

	all, err := s.RecentReadings(ctx, ReadingQuery{Limit: 4})
	require.NoError(t, err)
	require.Len(t, all, 4)
	require.Equal(t, ids[5], all[0].ID)
	for i := 1; i < len(all); i++ {
		require.False(t, all[i].Timestamp.After(all[i-1].Timestamp))
	}
	require.JSONEq(t, `{"sim":true}`, string(all[0].RawJSON))

	truck1, err := s.RecentReadings(ctx, ReadingQuery{VehicleID: "truck-1"})
	require.NoError(t, err)
	require.Len(t, truck1, 3)
	for _, r := range truck1 {
		require.Equal(t, "truck-1", r.VehicleID)
	}
	require.Equal(t, 104.0, truck1[0].ViscosityCP)
	require.True(t, truck1[0].Timestamp.Equal(base.Add(4*time.Second)))

	alertID, err := s.InsertAlert(ctx, &domain.Alert{
		ReadingID: ids[4],
		VehicleID: "truck-1",
		Severity:  domain.SeverityCritical,
		Message:   "CRITICAL: truck-1 viscosity=130.00cP level=15.00%",
		Timestamp: base.Add(5 * time.Second),
	})
	require.NoError(t, err)
	require.NotZero(t, alertID)

	alerts, err := s.RecentAlerts(ctx, 0)
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	require.Equal(t, alertID, alerts[0].ID)
	require.Equal(t, ids[4], alerts[0].ReadingID)
	require.Equal(t, domain.SeverityCritical, alerts[0].Severity)
}

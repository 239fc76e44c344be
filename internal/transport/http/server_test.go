package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"fleet-monitor/oilmonitor/internal/auth"
	"fleet-monitor/oilmonitor/internal/config"
	"fleet-monitor/oilmonitor/internal/domain"
	"fleet-monitor/oilmonitor/internal/store"
)

const testKey = "dash-key"

type fakeReadStore struct {
	readings  []domain.Reading
	alerts    []domain.Alert
	lastQuery store.ReadingQuery
	lastLimit int
	err       error
	pingErr   error
}

func (f *fakeReadStore) RecentReadings(_ context.Context, q store.ReadingQuery) ([]domain.Reading, error) {
	f.lastQuery = q
	return f.readings, f.err
}

func (f *fakeReadStore) RecentAlerts(_ context.Context, limit int) ([]domain.Alert, error) {
	f.lastLimit = limit
	return f.alerts, f.err
}

func (f *fakeReadStore) Ping(context.Context) error {
	return f.pingErr
}

type keyLookup map[string]string

func (k keyLookup) GetAPIKey(_ context.Context, apiKey string) (string, error) {
	return k[apiKey], nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestServer(st ReadStore, hub *Hub) *Server {
	a := auth.NewAuthenticator(&config.Config{ValidAPIKeys: []string{testKey}}, nil)
	return NewServer(st, NewAuthMiddleware(a), hub, discardLogger())
}

func do(t *testing.T, s *Server, target, key string) (*httptest.ResponseRecorder, apiResponse) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	if key != "" {
		req.Header.Set("X-API-Key", key)
	}
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	var body apiResponse
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	}
	return rec, body
}

func TestHealth(t *testing.T) {
	st := &fakeReadStore{}
	rec, body := do(t, newTestServer(st, nil), "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, body.Success)

	st.pingErr = errors.New("down")
	rec, body = do(t, newTestServer(st, nil), "/health", "")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.False(t, body.Success)
}

func TestMetricsIsPublic(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	newTestServer(&fakeReadStore{}, nil).Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "oilmonitor_invalid_readings_total")
}

func TestAPIRequiresKey(t *testing.T) {
	s := newTestServer(&fakeReadStore{}, nil)

	rec, body := do(t, s, "/api/v1/readings", "")
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t, "missing X-API-Key header", body.Error)

	rec, body = do(t, s, "/api/v1/alerts", "wrong")
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t, "invalid API key", body.Error)

	rec, _ = do(t, s, "/api/v1/alerts?api_key="+testKey, "")
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestAuthMiddlewareCarriesOwner(t *testing.T) {
	lookup := keyLookup{"dash-redis": "dashboard"}
	a := auth.NewAuthenticator(&config.Config{ValidAPIKeys: []string{testKey}}, lookup)

	var got []string
	h := NewAuthMiddleware(a).Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = append(got, auth.OwnerFrom(r.Context()))
	}))

	for _, key := range []string{testKey, "dash-redis"} {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/alerts", nil)
		req.Header.Set("X-API-Key", key)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)
	}
	require.Equal(t, []string{auth.StaticOwner, "dashboard"}, got)
}

func TestReadings(t *testing.T) {
	ts := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	st := &fakeReadStore{readings: []domain.Reading{
		{ID: 2, VehicleID: "truck-1", Timestamp: ts, ViscosityCP: 130},
		{ID: 1, VehicleID: "truck-1", Timestamp: ts.Add(-time.Second), ViscosityCP: 90},
	}}
	s := newTestServer(st, nil)

	rec, body := do(t, s, "/api/v1/readings?vehicle=truck-1&limit=2", testKey)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, store.ReadingQuery{VehicleID: "truck-1", Limit: 2}, st.lastQuery)
	require.Equal(t, 2, body.Meta.Total)

	var got []domain.Reading
	raw, err := json.Marshal(body.Data)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, &got))
	require.Equal(t, int64(2), got[0].ID)
	require.Equal(t, 130.0, got[0].ViscosityCP)

	do(t, s, "/api/v1/readings?vehicle=all", testKey)
	require.Equal(t, store.ReadingQuery{}, st.lastQuery)
}

func TestReadingsEmptyIsArray(t *testing.T) {
	rec, _ := do(t, newTestServer(&fakeReadStore{}, nil), "/api/v1/readings", testKey)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"data":[]`)
}

func TestBadLimit(t *testing.T) {
	s := newTestServer(&fakeReadStore{}, nil)
	for _, target := range []string{"/api/v1/readings?limit=abc", "/api/v1/alerts?limit=-1"} {
		rec, _ := do(t, s, target, testKey)
		require.Equal(t, http.StatusBadRequest, rec.Code, target)
	}
}

func TestAlerts(t *testing.T) {
	st := &fakeReadStore{alerts: []domain.Alert{
		{ID: 7, ReadingID: 3, VehicleID: "truck-2", Severity: domain.SeverityCritical, Message: "CRITICAL: truck-2"},
	}}
	s := newTestServer(st, nil)

	rec, body := do(t, s, "/api/v1/alerts?limit=5", testKey)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, 5, st.lastLimit)
	require.Equal(t, 1, body.Meta.Total)
	require.Contains(t, rec.Body.String(), `"severity":"critical"`)
}

func TestStoreErrorIsHidden(t *testing.T) {
	st := &fakeReadStore{err: errors.New("pq: relation does not exist")}
	rec, body := do(t, newTestServer(st, nil), "/api/v1/alerts", testKey)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Equal(t, "query failed", body.Error)
}

func TestAlertFeedRelaysRedisMessages(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := NewHub(discardLogger())
	go hub.Run(ctx)

	srv := httptest.NewServer(newTestServer(&fakeReadStore{}, hub).Router())
	defer srv.Close()

	_, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws/alerts", nil)
	require.Error(t, err)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	header := http.Header{"X-API-Key": []string{testKey}}
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws/alerts", header)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	messages := make(chan *redis.Message, 2)
	messages <- &redis.Message{Channel: "fleet:oil:alerts", Payload: "not json"}
	messages <- &redis.Message{Channel: "fleet:oil:alerts", Payload: `{"id":1,"vehicle_id":"truck-1","severity":"critical"}`}
	go hub.RelayAlerts(ctx, messages)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var msg struct {
		Type    string       `json:"type"`
		Payload domain.Alert `json:"payload"`
	}
	require.NoError(t, json.Unmarshal(data, &msg))
	require.Equal(t, "alert", msg.Type)
	require.Equal(t, "truck-1", msg.Payload.VehicleID)
	require.Equal(t, domain.SeverityCritical, msg.Payload.Severity)
}

func TestHubStopsClients(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	hub := NewHub(discardLogger())
	stopped := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(stopped)
	}()

	srv := httptest.NewServer(http.HandlerFunc(hub.ServeWS))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	cancel()
	<-stopped
	require.Zero(t, hub.ClientCount())
	require.NoError(t, hub.BroadcastAlert(context.Background(), []byte(`{}`)))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err = conn.ReadMessage()
	require.Error(t, err)
}

package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"

	"github.com/stretchr/testify/mock"

	"fleet-monitor/oilmonitor/internal/domain"
)

var errBoom = errors.New("boom")

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type memStore struct {
	mu       sync.Mutex
	readings []domain.Reading
	alerts   []domain.Alert

	failReadingFor map[string]bool
	failAlerts     bool
}

func (s *memStore) InsertReading(_ context.Context, r *domain.Reading) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failReadingFor[r.VehicleID] {
		return 0, errBoom
	}
	stored := *r
	stored.ID = int64(len(s.readings) + 1)
	s.readings = append(s.readings, stored)
	return stored.ID, nil
}

func (s *memStore) InsertAlert(_ context.Context, a *domain.Alert) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAlerts {
		return 0, errBoom
	}
	stored := *a
	stored.ID = int64(len(s.alerts) + 1)
	s.alerts = append(s.alerts, stored)
	return stored.ID, nil
}

func (s *memStore) readingIDs() map[int64]bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make(map[int64]bool, len(s.readings))
	for _, r := range s.readings {
		ids[r.ID] = true
	}
	return ids
}

type mockNotifier struct {
	mock.Mock
}

func (m *mockNotifier) Notify(ctx context.Context, text string) error {
	return m.Called(ctx, text).Error(0)
}

type recordingPublisher struct {
	states []domain.HealthVerdict
	alerts []domain.Alert
	fail   bool
}

func (p *recordingPublisher) PublishVehicleState(_ context.Context, _ *domain.Reading, v domain.HealthVerdict) error {
	if p.fail {
		return errBoom
	}
	p.states = append(p.states, v)
	return nil
}

func (p *recordingPublisher) PublishAlert(_ context.Context, a *domain.Alert) error {
	if p.fail {
		return errBoom
	}
	p.alerts = append(p.alerts, *a)
	return nil
}

// scriptedSource returns queued readings per vehicle, then ErrNoReading.
type scriptedSource struct {
	queue map[string][]domain.Reading
	err   map[string]error
}

func (s *scriptedSource) Next(_ context.Context, vehicleID string) (domain.Reading, error) {
	if err := s.err[vehicleID]; err != nil {
		return domain.Reading{}, err
	}
	q := s.queue[vehicleID]
	if len(q) == 0 {
		return domain.Reading{}, errNoReadingForTest
	}
	s.queue[vehicleID] = q[1:]
	return q[0], nil
}

type fixedClassifier struct {
	verdict domain.HealthVerdict
	err     error
	calls   int
}

func (c *fixedClassifier) Classify(*domain.Reading) (domain.HealthVerdict, error) {
	c.calls++
	return c.verdict, c.err
}

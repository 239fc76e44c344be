package pipeline

import (
	"context"
	"log/slog"

	"fleet-monitor/oilmonitor/internal/domain"
	"fleet-monitor/oilmonitor/internal/metrics"
)

type ReadingWriter interface {
	InsertReading(ctx context.Context, r *domain.Reading) (int64, error)
	InsertAlert(ctx context.Context, a *domain.Alert) (int64, error)
}

type Notifier interface {
	Notify(ctx context.Context, text string) error
}

// LivePublisher pushes the latest state to dashboard consumers. Failures are
// never fatal.
type LivePublisher interface {
	PublishVehicleState(ctx context.Context, r *domain.Reading, v domain.HealthVerdict) error
	PublishAlert(ctx context.Context, a *domain.Alert) error
}

// Outcome reports what Dispatch managed to do for one reading.
type Outcome struct {
	ReadingID  int64
	AlertID    int64
	Suppressed bool
	Notified   bool
}

// Sink persists readings and alerts and forwards critical alerts. Every
// failure is logged and absorbed here so the monitoring loop keeps running.
type Sink struct {
	store    ReadingWriter
	notifier Notifier
	live     LivePublisher
	cooldown Cooldown
	log      *slog.Logger
}

type SinkOption func(*Sink)

func WithNotifier(n Notifier) SinkOption {
	return func(s *Sink) { s.notifier = n }
}

func WithLivePublisher(p LivePublisher) SinkOption {
	return func(s *Sink) { s.live = p }
}

func WithCooldown(c Cooldown) SinkOption {
	return func(s *Sink) { s.cooldown = c }
}

func NewSink(store ReadingWriter, log *slog.Logger, opts ...SinkOption) *Sink {
	s := &Sink{store: store, log: log}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Dispatch writes the reading first; an alert is only written once the
// reading id is confirmed, and a notification only after the alert row exists.
func (s *Sink) Dispatch(ctx context.Context, r *domain.Reading, alert *domain.Alert, v domain.HealthVerdict) Outcome {
	var out Outcome

	id, err := s.store.InsertReading(ctx, r)
	if err != nil {
		metrics.StoreWriteFailures.WithLabelValues("sensor_readings").Inc()
		s.log.Error("reading insert failed", "vehicle_id", r.VehicleID, "error", err)
		return out
	}
	out.ReadingID = id
	metrics.ReadingsTotal.WithLabelValues(r.VehicleID).Inc()

	if s.live != nil {
		persisted := *r
		persisted.ID = id
		if err := s.live.PublishVehicleState(ctx, &persisted, v); err != nil {
			s.log.Warn("live state publish failed", "vehicle_id", r.VehicleID, "error", err)
		}
	}

	if alert == nil {
		return out
	}

	if s.cooldown != nil {
		ok, err := s.cooldown.Allow(ctx, alert.VehicleID)
		if err != nil {
			s.log.Warn("cooldown check failed, alerting anyway", "vehicle_id", alert.VehicleID, "error", err)
		} else if !ok {
			out.Suppressed = true
			metrics.AlertsSuppressed.Inc()
			s.log.Debug("alert suppressed by cooldown", "vehicle_id", alert.VehicleID, "reading_id", id)
			return out
		}
	}

	persisted := *alert
	persisted.ReadingID = id
	alertID, err := s.store.InsertAlert(ctx, &persisted)
	if err != nil {
		metrics.StoreWriteFailures.WithLabelValues("alerts").Inc()
		s.log.Error("alert insert failed", "vehicle_id", alert.VehicleID, "reading_id", id, "error", err)
		return out
	}
	persisted.ID = alertID
	out.AlertID = alertID
	metrics.AlertsTotal.WithLabelValues(string(persisted.Severity)).Inc()
	s.log.Warn(persisted.Message, "vehicle_id", persisted.VehicleID, "reading_id", id, "severity", persisted.Severity)

	if s.live != nil {
		if err := s.live.PublishAlert(ctx, &persisted); err != nil {
			s.log.Warn("alert publish failed", "vehicle_id", persisted.VehicleID, "error", err)
		}
	}

	if persisted.Severity == domain.SeverityCritical && s.notifier != nil {
		if err := s.notifier.Notify(ctx, persisted.Message); err != nil {
			metrics.NotificationFailures.Inc()
			s.log.Warn("notification failed", "vehicle_id", persisted.VehicleID, "error", err)
		} else {
			out.Notified = true
		}
	}

	return out
}

package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"fleet-monitor/oilmonitor/internal/domain"
	"fleet-monitor/oilmonitor/internal/metrics"
	"fleet-monitor/oilmonitor/internal/source"
)

type ReadingSource interface {
	Next(ctx context.Context, vehicleID string) (domain.Reading, error)
}

type Classifier interface {
	Classify(r *domain.Reading) (domain.HealthVerdict, error)
}

// Monitor drives one evaluation per vehicle per tick:
// source -> rules and classifier -> synthesizer -> sink.
type Monitor struct {
	vehicles   []string
	period     time.Duration
	source     ReadingSource
	rules      *RuleEvaluator
	classifier Classifier
	synth      *Synthesizer
	sink       *Sink
	log        *slog.Logger
}

func NewMonitor(
	vehicles []string,
	period time.Duration,
	src ReadingSource,
	rules *RuleEvaluator,
	classifier Classifier,
	synth *Synthesizer,
	sink *Sink,
	log *slog.Logger,
) *Monitor {
	return &Monitor{
		vehicles:   vehicles,
		period:     period,
		source:     src,
		rules:      rules,
		classifier: classifier,
		synth:      synth,
		sink:       sink,
		log:        log,
	}
}

// Run ticks until ctx is cancelled. A tick already in progress runs to
// completion on a context that ignores the cancellation.
func (m *Monitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.period)
	defer ticker.Stop()

	m.log.Info("monitor started", "vehicles", m.vehicles, "period", m.period)
	for {
		m.Tick(context.WithoutCancel(ctx))

		select {
		case <-ctx.Done():
			m.log.Info("monitor stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// Tick evaluates every vehicle once, in order.
func (m *Monitor) Tick(ctx context.Context) {
	for _, vehicleID := range m.vehicles {
		m.processVehicle(ctx, vehicleID)
	}
}

func (m *Monitor) processVehicle(ctx context.Context, vehicleID string) {
	r, err := m.source.Next(ctx, vehicleID)
	if errors.Is(err, source.ErrNoReading) {
		m.log.Debug("no new reading", "vehicle_id", vehicleID)
		return
	}
	if err != nil {
		m.log.Warn("reading source failed", "vehicle_id", vehicleID, "error", err)
		return
	}
	if err := r.Validate(); err != nil {
		metrics.InvalidReadings.Inc()
		m.log.Warn("reading rejected", "vehicle_id", vehicleID, "error", err)
		return
	}

	sig := m.rules.Evaluate(&r)

	verdict, err := m.classifier.Classify(&r)
	if err != nil {
		// the verdict is advisory; the rule path still decides alerts
		m.log.Error("classification failed", "vehicle_id", vehicleID, "error", err)
	} else {
		metrics.PredictedStatus.WithLabelValues(string(verdict.PredictedStatus)).Inc()
		metrics.CriticalProbability.WithLabelValues(vehicleID).Set(verdict.CriticalProbability)
	}

	m.log.Debug("reading evaluated",
		"vehicle_id", vehicleID,
		"viscosity_cp", r.ViscosityCP,
		"oil_level_pct", r.OilLevelPct,
		"predicted_status", verdict.PredictedStatus,
		"critical_probability", verdict.CriticalProbability,
	)

	alert := m.synth.Synthesize(&r, sig, verdict)
	m.sink.Dispatch(ctx, &r, alert, verdict)
}

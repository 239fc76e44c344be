package pipeline

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"fleet-monitor/oilmonitor/internal/domain"
)

func fixedSynthesizer(escalateAt float64) *Synthesizer {
	s := NewSynthesizer(escalateAt)
	s.now = func() time.Time { return time.Date(2026, 4, 1, 9, 30, 0, 0, time.UTC) }
	return s
}

func TestSynthesizeWithoutSignal(t *testing.T) {
	s := fixedSynthesizer(50)
	for _, p := range []float64{0, 50, 99.9, 100} {
		v := domain.HealthVerdict{PredictedStatus: domain.StatusCritical, CriticalProbability: p}
		require.Nil(t, s.Synthesize(reading(50, 60), nil, v))
	}
}

func TestSynthesizeCarriesSignal(t *testing.T) {
	s := fixedSynthesizer(0)
	r := reading(130, 60)
	sig := &domain.RuleSignal{Severity: domain.SeverityWarning, Message: "WARNING: high viscosity for truck-1 -> 130.00cP"}

	a := s.Synthesize(r, sig, domain.HealthVerdict{PredictedStatus: domain.StatusCritical, CriticalProbability: 99})
	require.NotNil(t, a)
	require.Equal(t, domain.SeverityWarning, a.Severity)
	require.Equal(t, sig.Message, a.Message)
	require.Equal(t, "truck-1", a.VehicleID)
	require.Zero(t, a.ReadingID)
	require.Equal(t, time.Date(2026, 4, 1, 9, 30, 0, 0, time.UTC), a.Timestamp)
}

func TestSynthesizeEscalation(t *testing.T) {
	s := fixedSynthesizer(70)
	r := reading(130, 60)
	warning := &domain.RuleSignal{Severity: domain.SeverityWarning, Message: "WARNING: high viscosity for truck-1 -> 130.00cP"}

	below := s.Synthesize(r, warning, domain.HealthVerdict{CriticalProbability: 69.9})
	require.Equal(t, domain.SeverityWarning, below.Severity)

	at := s.Synthesize(r, warning, domain.HealthVerdict{CriticalProbability: 70})
	require.Equal(t, domain.SeverityCritical, at.Severity)
	require.Contains(t, at.Message, "escalated")

	critical := &domain.RuleSignal{Severity: domain.SeverityCritical, Message: "CRITICAL"}
	kept := s.Synthesize(r, critical, domain.HealthVerdict{CriticalProbability: 0})
	require.Equal(t, domain.SeverityCritical, kept.Severity)
	require.Equal(t, "CRITICAL", kept.Message)
}

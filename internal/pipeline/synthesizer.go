package pipeline

import (
	"fmt"
	"time"

	"fleet-monitor/oilmonitor/internal/domain"
)

// Synthesizer merges the rule signal and the model verdict. Rules decide
// whether an Alert exists; the verdict can only raise a warning to critical,
// and only when escalation is configured.
type Synthesizer struct {
	escalateAt float64
	now        func() time.Time
}

// NewSynthesizer builds a Synthesizer. escalateAt is a critical probability
// in [0,100]; zero disables escalation.
func NewSynthesizer(escalateAt float64) *Synthesizer {
	return &Synthesizer{escalateAt: escalateAt, now: time.Now}
}

// Synthesize returns nil without a rule signal, whatever the model says.
// ReadingID is filled in by the Sink once the reading is persisted.
func (s *Synthesizer) Synthesize(r *domain.Reading, sig *domain.RuleSignal, v domain.HealthVerdict) *domain.Alert {
	if sig == nil {
		return nil
	}

	severity := sig.Severity
	message := sig.Message
	if s.shouldEscalate(sig, v) {
		severity = domain.SeverityCritical
		message = fmt.Sprintf("%s (escalated: model critical probability %.1f%%)", message, v.CriticalProbability)
	}

	return &domain.Alert{
		VehicleID: r.VehicleID,
		Severity:  severity,
		Message:   message,
		Timestamp: s.now().UTC(),
	}
}

func (s *Synthesizer) shouldEscalate(sig *domain.RuleSignal, v domain.HealthVerdict) bool {
	return s.escalateAt > 0 &&
		sig.Severity == domain.SeverityWarning &&
		v.CriticalProbability >= s.escalateAt
}

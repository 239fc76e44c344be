package pipeline

import (
	"fmt"

	"fleet-monitor/oilmonitor/internal/domain"
)

// RuleEvaluator applies the two fixed oil thresholds. It holds no state
// beyond the thresholds, so Evaluate is a pure function of the reading.
type RuleEvaluator struct {
	thresholds domain.Thresholds
}

func NewRuleEvaluator(t domain.Thresholds) *RuleEvaluator {
	return &RuleEvaluator{thresholds: t}
}

// Evaluate returns nil when neither threshold is breached. Both breached is
// critical; exactly one is a warning.
func (e *RuleEvaluator) Evaluate(r *domain.Reading) *domain.RuleSignal {
	viscosityHigh := r.ViscosityCP > e.thresholds.ViscosityHighCP
	levelLow := r.OilLevelPct < e.thresholds.OilLevelLowPct

	switch {
	case viscosityHigh && levelLow:
		return &domain.RuleSignal{
			Severity: domain.SeverityCritical,
			Message:  fmt.Sprintf("CRITICAL: %s viscosity=%.2fcP level=%.2f%%", r.VehicleID, r.ViscosityCP, r.OilLevelPct),
		}
	case viscosityHigh:
		return &domain.RuleSignal{
			Severity: domain.SeverityWarning,
			Message:  fmt.Sprintf("WARNING: high viscosity for %s -> %.2fcP", r.VehicleID, r.ViscosityCP),
		}
	case levelLow:
		return &domain.RuleSignal{
			Severity: domain.SeverityWarning,
			Message:  fmt.Sprintf("WARNING: low oil level for %s -> %.2f%%", r.VehicleID, r.OilLevelPct),
		}
	default:
		return nil
	}
}

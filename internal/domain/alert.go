package domain

import "time"

type AlertSeverity string

const (
	SeverityWarning  AlertSeverity = "warning"
	SeverityCritical AlertSeverity = "critical"
)

type HealthStatus string

const (
	StatusGood     HealthStatus = "good"
	StatusWarning  HealthStatus = "warning"
	StatusCritical HealthStatus = "critical"
)

// HealthVerdict is the classifier's advisory view of a reading. It is never
// persisted on its own.
type HealthVerdict struct {
	PredictedStatus     HealthStatus `json:"predicted_status"`
	CriticalProbability float64      `json:"critical_probability"`
}

// RuleSignal is the deterministic threshold verdict for one reading.
type RuleSignal struct {
	Severity AlertSeverity
	Message  string
}

type Alert struct {
	ID        int64         `json:"id,omitempty"`
	ReadingID int64         `json:"reading_id"`
	VehicleID string        `json:"vehicle_id"`
	Severity  AlertSeverity `json:"severity"`
	Message   string        `json:"message"`
	Timestamp time.Time     `json:"ts"`
}

// Thresholds are the two rule limits. A reading breaches viscosity when it is
// strictly above ViscosityHighCP and oil level when strictly below OilLevelLowPct.
type Thresholds struct {
	ViscosityHighCP float64
	OilLevelLowPct  float64
}

var DefaultThresholds = Thresholds{
	ViscosityHighCP: 120.0,
	OilLevelLowPct:  20.0,
}

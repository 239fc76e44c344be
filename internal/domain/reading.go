package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"
)

var ErrInvalidReading = errors.New("invalid reading")

// Reading is one oil telemetry sample. ID is zero until the store assigns one.
type Reading struct {
	ID        int64     `json:"id,omitempty"`
	VehicleID string    `json:"vehicle_id"`
	Timestamp time.Time `json:"ts"`

	OilTempC    float64 `json:"oil_temp_c"`
	ViscosityCP float64 `json:"viscosity_cp"`
	OilLevelPct float64 `json:"oil_level_pct"`
	PressureKPA float64 `json:"pressure_kpa"`

	RawJSON json.RawMessage `json:"raw_json,omitempty"`
}

// Validate rejects readings without a vehicle or with a non-finite measurement.
func (r *Reading) Validate() error {
	if r.VehicleID == "" {
		return fmt.Errorf("%w: empty vehicle_id", ErrInvalidReading)
	}
	fields := []struct {
		name  string
		value float64
	}{
		{"oil_temp_c", r.OilTempC},
		{"viscosity_cp", r.ViscosityCP},
		{"oil_level_pct", r.OilLevelPct},
		{"pressure_kpa", r.PressureKPA},
	}
	for _, f := range fields {
		if math.IsNaN(f.value) || math.IsInf(f.value, 0) {
			return fmt.Errorf("%w: %s is not finite for %s", ErrInvalidReading, f.name, r.VehicleID)
		}
	}
	return nil
}

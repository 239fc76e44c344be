package domain

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func validReading() Reading {
	return Reading{
		VehicleID:   "truck-1",
		Timestamp:   time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		OilTempC:    82.5,
		ViscosityCP: 95.1,
		OilLevelPct: 64,
		PressureKPA: 130,
	}
}

func TestReadingValidate(t *testing.T) {
	r := validReading()
	require.NoError(t, r.Validate())

	tests := []struct {
		name   string
		mutate func(*Reading)
	}{
		{"empty vehicle", func(r *Reading) { r.VehicleID = "" }},
		{"nan temperature", func(r *Reading) { r.OilTempC = math.NaN() }},
		{"inf viscosity", func(r *Reading) { r.ViscosityCP = math.Inf(1) }},
		{"negative inf level", func(r *Reading) { r.OilLevelPct = math.Inf(-1) }},
		{"nan pressure", func(r *Reading) { r.PressureKPA = math.NaN() }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := validReading()
			tt.mutate(&r)
			require.ErrorIs(t, r.Validate(), ErrInvalidReading)
		})
	}
}

func TestReadingOutOfRangeIsStillValid(t *testing.T) {
	r := validReading()
	r.OilLevelPct = -3
	r.ViscosityCP = 900
	require.NoError(t, r.Validate())
}

func TestReadingRawJSONIsEmbedded(t *testing.T) {
	r := validReading()
	r.RawJSON = json.RawMessage(`{"sim":true}`)

	out, err := json.Marshal(r)
	require.NoError(t, err)
	require.Contains(t, string(out), `"raw_json":{"sim":true}`)
}

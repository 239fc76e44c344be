package classifier

import (
	"fmt"

	"fleet-monitor/oilmonitor/internal/domain"
)

// Adapter turns readings into HealthVerdicts. The forest is loaded once and
// only read afterwards, so one Adapter is shared by every evaluation.
type Adapter struct {
	forest   *Forest
	critical int
}

func NewAdapter(f *Forest) (*Adapter, error) {
	if f == nil {
		return nil, fmt.Errorf("%w: nil forest", ErrModelUnavailable)
	}
	idx := f.ClassIndex(string(domain.StatusCritical))
	if idx < 0 {
		return nil, fmt.Errorf("%w: no critical class", ErrModelUnavailable)
	}
	return &Adapter{forest: f, critical: idx}, nil
}

// Load reads the model artifact at path. Any failure is ErrModelUnavailable.
func Load(path string) (*Adapter, error) {
	f, err := LoadForest(path)
	if err != nil {
		return nil, err
	}
	return NewAdapter(f)
}

func Features(r *domain.Reading) []float64 {
	return []float64{r.OilTempC, r.ViscosityCP, r.PressureKPA}
}

func (a *Adapter) Classify(r *domain.Reading) (domain.HealthVerdict, error) {
	if a == nil || a.forest == nil {
		return domain.HealthVerdict{}, ErrModelUnavailable
	}
	proba := a.forest.PredictProba(Features(r))

	return domain.HealthVerdict{
		PredictedStatus:     domain.HealthStatus(a.forest.Classes[argmax(proba)]),
		CriticalProbability: clampPct(100 * proba[a.critical]),
	}, nil
}

func (a *Adapter) Classes() []string {
	return a.forest.Classes
}

func clampPct(p float64) float64 {
	switch {
	case p < 0:
		return 0
	case p > 100:
		return 100
	}
	return p
}

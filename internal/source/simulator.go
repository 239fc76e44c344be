package source

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"

	"fleet-monitor/oilmonitor/internal/domain"
)

// ErrNoReading means the source has nothing new for a vehicle this tick.
var ErrNoReading = errors.New("no new reading")

type Bounds struct {
	Min float64
	Max float64
}

// Physical ranges the simulator draws from, uniformly and independently.
var (
	OilTempBounds   = Bounds{Min: 60, Max: 95}
	ViscosityBounds = Bounds{Min: 40, Max: 140}
	OilLevelBounds  = Bounds{Min: 5, Max: 100}
	PressureBounds  = Bounds{Min: 60, Max: 200}
)

// Simulator stands in for a sensor feed.
type Simulator struct {
	mu      sync.Mutex
	rng     *rand.Rand
	session string
	now     func() time.Time
}

func NewSimulator(seed uint64) *Simulator {
	return &Simulator{
		rng:     rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		session: uuid.NewString(),
		now:     time.Now,
	}
}

func (s *Simulator) Next(_ context.Context, vehicleID string) (domain.Reading, error) {
	s.mu.Lock()
	r := domain.Reading{
		VehicleID:   vehicleID,
		OilTempC:    s.uniform(OilTempBounds),
		ViscosityCP: s.uniform(ViscosityBounds),
		OilLevelPct: s.uniform(OilLevelBounds),
		PressureKPA: s.uniform(PressureBounds),
	}
	s.mu.Unlock()

	r.Timestamp = s.now().UTC()
	raw, err := json.Marshal(map[string]any{"sim": true, "session": s.session})
	if err != nil {
		return domain.Reading{}, err
	}
	r.RawJSON = raw
	return r, nil
}

// uniform draws within b and rounds to two decimals like the sensors report.
func (s *Simulator) uniform(b Bounds) float64 {
	v := b.Min + s.rng.Float64()*(b.Max-b.Min)
	return math.Round(v*100) / 100
}

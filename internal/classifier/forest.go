package classifier

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"slices"

	"fleet-monitor/oilmonitor/internal/domain"
)

var ErrModelUnavailable = errors.New("model unavailable")

// FeatureNames is the fixed input order of the oil health model. Oil level is
// left to the threshold rules.
var FeatureNames = []string{"oil_temp_c", "viscosity_cp", "pressure_kpa"}

const leaf = -1

type Node struct {
	Feature   int       `json:"feature"`
	Threshold float64   `json:"threshold"`
	Left      int       `json:"left"`
	Right     int       `json:"right"`
	Value     []float64 `json:"value,omitempty"`
}

type Tree struct {
	Nodes []Node `json:"nodes"`
}

// Forest is a random-forest export: an ordered class list and decision trees
// whose leaves hold per-class weights.
type Forest struct {
	Classes  []string `json:"classes"`
	Features []string `json:"features"`
	Trees    []Tree   `json:"trees"`
}

func LoadForest(path string) (*Forest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrModelUnavailable, err)
	}
	return ParseForest(data)
}

func ParseForest(data []byte) (*Forest, error) {
	var f Forest
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrModelUnavailable, err)
	}
	if err := f.validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrModelUnavailable, err)
	}
	return &f, nil
}

func (f *Forest) validate() error {
	if !slices.Equal(f.Features, FeatureNames) {
		return fmt.Errorf("features %v, want %v", f.Features, FeatureNames)
	}
	for i, c := range f.Classes {
		switch domain.HealthStatus(c) {
		case domain.StatusGood, domain.StatusWarning, domain.StatusCritical:
		default:
			return fmt.Errorf("unknown class %q", c)
		}
		if slices.Index(f.Classes, c) != i {
			return fmt.Errorf("duplicate class %q", c)
		}
	}
	if f.ClassIndex(string(domain.StatusCritical)) < 0 {
		return fmt.Errorf("class list %v has no %q", f.Classes, domain.StatusCritical)
	}
	if len(f.Trees) == 0 {
		return errors.New("no trees")
	}
	for ti, t := range f.Trees {
		if len(t.Nodes) == 0 {
			return fmt.Errorf("tree %d is empty", ti)
		}
		for ni, n := range t.Nodes {
			if n.Feature == leaf {
				if len(n.Value) != len(f.Classes) {
					return fmt.Errorf("tree %d node %d: %d leaf weights for %d classes", ti, ni, len(n.Value), len(f.Classes))
				}
				var sum float64
				for _, w := range n.Value {
					if w < 0 {
						return fmt.Errorf("tree %d node %d: negative leaf weight", ti, ni)
					}
					sum += w
				}
				if sum == 0 {
					return fmt.Errorf("tree %d node %d: empty leaf", ti, ni)
				}
				continue
			}
			if n.Feature < 0 || n.Feature >= len(f.Features) {
				return fmt.Errorf("tree %d node %d: feature index %d out of range", ti, ni, n.Feature)
			}
			// children must point forward so traversal always terminates
			if n.Left <= ni || n.Left >= len(t.Nodes) || n.Right <= ni || n.Right >= len(t.Nodes) {
				return fmt.Errorf("tree %d node %d: bad children %d/%d", ti, ni, n.Left, n.Right)
			}
		}
	}
	return nil
}

func (f *Forest) ClassIndex(class string) int {
	return slices.Index(f.Classes, class)
}

// PredictProba returns the mean of the per-tree normalized leaf distributions,
// one probability per entry of Classes.
func (f *Forest) PredictProba(x []float64) []float64 {
	proba := make([]float64, len(f.Classes))
	for _, t := range f.Trees {
		n := t.leafFor(x)
		var sum float64
		for _, w := range n.Value {
			sum += w
		}
		for i, w := range n.Value {
			proba[i] += w / sum
		}
	}
	for i := range proba {
		proba[i] /= float64(len(f.Trees))
	}
	return proba
}

// Predict returns the most probable class; ties go to the earlier class.
func (f *Forest) Predict(x []float64) string {
	return f.Classes[argmax(f.PredictProba(x))]
}

func argmax(v []float64) int {
	best := 0
	for i, p := range v {
		if p > v[best] {
			best = i
		}
	}
	return best
}

func (t Tree) leafFor(x []float64) Node {
	i := 0
	for {
		n := t.Nodes[i]
		if n.Feature == leaf {
			return n
		}
		if x[n.Feature] <= n.Threshold {
			i = n.Left
		} else {
			i = n.Right
		}
	}
}

package projection

import (
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/floats"

	"wordmap/internal/domain"
)

// Components is the fixed output dimensionality of every model.
const Components = 2

// Model is a fitted linear projection: (v - Mean) · Axes[k] for each component k.
type Model struct {
	Components int         `yaml:"components"`
	InputDim   int         `yaml:"input_dim"`
	Samples    int         `yaml:"samples"`
	TrainedAt  time.Time   `yaml:"trained_at"`
	Variance   []float64   `yaml:"explained_variance,flow"`
	Mean       []float64   `yaml:"mean,flow"`
	Axes       [][]float64 `yaml:"axes,flow"`
}

// Validate reports ErrModelInvalid when the model cannot transform vectors.
func (m *Model) Validate() error {
	if m == nil {
		return fmt.Errorf("%w: nil model", domain.ErrModelInvalid)
	}
	if m.Components != Components {
		return fmt.Errorf("%w: %d components, want %d", domain.ErrModelInvalid, m.Components, Components)
	}
	if m.InputDim <= 0 || len(m.Mean) != m.InputDim {
		return fmt.Errorf("%w: mean has %d values for input dim %d", domain.ErrModelInvalid, len(m.Mean), m.InputDim)
	}
	if len(m.Axes) != m.Components {
		return fmt.Errorf("%w: %d axes for %d components", domain.ErrModelInvalid, len(m.Axes), m.Components)
	}
	if !finite(m.Mean) {
		return fmt.Errorf("%w: mean is not finite", domain.ErrModelInvalid)
	}
	for k, axis := range m.Axes {
		if len(axis) != m.InputDim {
			return fmt.Errorf("%w: axis %d has %d values, want %d", domain.ErrModelInvalid, k, len(axis), m.InputDim)
		}
		if !finite(axis) {
			return fmt.Errorf("%w: axis %d is not finite", domain.ErrModelInvalid, k)
		}
	}
	return nil
}

// Transform projects v onto the model's two axes.
func (m *Model) Transform(v domain.Vector) (domain.Point2D, error) {
	if len(v) != m.InputDim {
		return domain.Point2D{}, fmt.Errorf("%w: model expects %d features, got %d", domain.ErrDimensionMismatch, m.InputDim, len(v))
	}
	centered := make([]float64, len(v))
	for i, x := range v {
		centered[i] = float64(x) - m.Mean[i]
	}
	return domain.Point2D{
		X: floats.Dot(centered, m.Axes[0]),
		Y: floats.Dot(centered, m.Axes[1]),
	}, nil
}

func finite(xs []float64) bool {
	for _, x := range xs {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return false
		}
	}
	return true
}

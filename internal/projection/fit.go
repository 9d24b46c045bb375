package projection

import (
	"errors"
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"wordmap/internal/domain"
)

// Fit trains a PCA projection with the given number of components on the rows
// of sample. The same sample always yields the same model.
func Fit(sample *mat.Dense, components int) (*Model, error) {
	if sample == nil || sample.IsEmpty() {
		return nil, fmt.Errorf("%w: empty sample", domain.ErrInsufficientSample)
	}
	n, d := sample.Dims()
	if n < components {
		return nil, fmt.Errorf("%w: %d rows for %d components", domain.ErrInsufficientSample, n, components)
	}
	if d < components {
		return nil, fmt.Errorf("%w: %d columns for %d components", domain.ErrModelInvalid, d, components)
	}

	mean := make([]float64, d)
	for j := 0; j < d; j++ {
		mean[j] = stat.Mean(mat.Col(nil, j, sample), nil)
	}

	var pc stat.PC
	if ok := pc.PrincipalComponents(sample, nil); !ok {
		return nil, errors.New("principal component decomposition failed")
	}
	var vecs mat.Dense
	pc.VectorsTo(&vecs)
	_, k := vecs.Dims()
	if k < components {
		return nil, fmt.Errorf("%w: decomposition produced %d components", domain.ErrInsufficientSample, k)
	}
	vars := pc.VarsTo(nil)

	axes := make([][]float64, components)
	for c := 0; c < components; c++ {
		axes[c] = mat.Col(nil, c, &vecs)
		flipSign(axes[c])
	}
	return &Model{
		Components: components,
		InputDim:   d,
		Samples:    n,
		TrainedAt:  time.Now().UTC(),
		Variance:   append([]float64(nil), vars[:components]...),
		Mean:       mean,
		Axes:       axes,
	}, nil
}

// flipSign makes the largest-magnitude coefficient of axis positive so the
// arbitrary SVD sign does not mirror the plane.
func flipSign(axis []float64) {
	best := 0
	for i, x := range axis {
		if math.Abs(x) > math.Abs(axis[best]) {
			best = i
		}
	}
	if axis[best] < 0 {
		for i := range axis {
			axis[i] = -axis[i]
		}
	}
}

// SampleFromVectors stacks vectors into an n×d matrix.
func SampleFromVectors(vs []domain.Vector) (*mat.Dense, error) {
	if len(vs) == 0 {
		return nil, fmt.Errorf("%w: no vectors", domain.ErrInsufficientSample)
	}
	d := len(vs[0])
	data := make([]float64, 0, len(vs)*d)
	for i, v := range vs {
		if len(v) != d {
			return nil, fmt.Errorf("%w: row %d has %d values, want %d", domain.ErrDimensionMismatch, i, len(v), d)
		}
		for _, x := range v {
			data = append(data, float64(x))
		}
	}
	return mat.NewDense(len(vs), d, data), nil
}

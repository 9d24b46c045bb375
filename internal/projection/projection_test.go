package projection

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"wordmap/internal/domain"
)

func testSample() *mat.Dense {
	return mat.NewDense(6, 4, []float64{
		2.5, 2.4, 0.1, 1,
		0.5, 0.7, 0.3, 1,
		2.2, 2.9, 0.2, 1,
		1.9, 2.2, 0.5, 1,
		3.1, 3.0, 0.1, 1,
		2.3, 2.7, 0.4, 1,
	})
}

func TestFitProducesValidModel(t *testing.T) {
	m, err := Fit(testSample(), Components)
	require.NoError(t, err)
	require.NoError(t, m.Validate())

	assert.Equal(t, 4, m.InputDim)
	assert.Equal(t, 6, m.Samples)
	assert.InDelta(t, 2.0833333, m.Mean[0], 1e-6)
	assert.Equal(t, 1.0, m.Mean[3])
	assert.GreaterOrEqual(t, m.Variance[0], m.Variance[1])

	for _, axis := range m.Axes {
		var norm float64
		for _, x := range axis {
			norm += x * x
		}
		assert.InDelta(t, 1, norm, 1e-9, "axes are unit vectors")
	}
	var dot float64
	for i := range m.Axes[0] {
		dot += m.Axes[0][i] * m.Axes[1][i]
	}
	assert.InDelta(t, 0, dot, 1e-9, "axes are orthogonal")
}

func TestFitIsDeterministic(t *testing.T) {
	a, err := Fit(testSample(), Components)
	require.NoError(t, err)
	b, err := Fit(testSample(), Components)
	require.NoError(t, err)

	v := domain.Vector{1, 2, 3, 4}
	pa, err := a.Transform(v)
	require.NoError(t, err)
	pb, err := b.Transform(v)
	require.NoError(t, err)
	assert.InDelta(t, pa.X, pb.X, 1e-9)
	assert.InDelta(t, pa.Y, pb.Y, 1e-9)
}

func TestFitMeanProjectsToOrigin(t *testing.T) {
	m, err := Fit(testSample(), Components)
	require.NoError(t, err)
	mean := make(domain.Vector, len(m.Mean))
	for i, x := range m.Mean {
		mean[i] = float32(x)
	}
	p, err := m.Transform(mean)
	require.NoError(t, err)
	assert.InDelta(t, 0, p.X, 1e-6)
	assert.InDelta(t, 0, p.Y, 1e-6)
}

func TestFitRejectsSmallSamples(t *testing.T) {
	_, err := Fit(mat.NewDense(1, 3, []float64{1, 2, 3}), Components)
	assert.ErrorIs(t, err, domain.ErrInsufficientSample)

	_, err = Fit(nil, Components)
	assert.ErrorIs(t, err, domain.ErrInsufficientSample)

	_, err = Fit(mat.NewDense(3, 1, []float64{1, 2, 3}), Components)
	assert.ErrorIs(t, err, domain.ErrModelInvalid)
}

func TestFitTwoRows(t *testing.T) {
	m, err := Fit(mat.NewDense(2, 3, []float64{1, 0, 0, 0, 1, 0}), Components)
	require.NoError(t, err)
	assert.NoError(t, m.Validate())
}

func TestTransformDimensionMismatch(t *testing.T) {
	m, err := Fit(testSample(), Components)
	require.NoError(t, err)
	_, err = m.Transform(domain.Vector{1, 2})
	assert.ErrorIs(t, err, domain.ErrDimensionMismatch)
	_, err = m.Transform(nil)
	assert.ErrorIs(t, err, domain.ErrDimensionMismatch)
}

func TestValidate(t *testing.T) {
	good := func() *Model {
		return &Model{
			Components: 2,
			InputDim:   2,
			Mean:       []float64{0, 0},
			Axes:       [][]float64{{1, 0}, {0, 1}},
		}
	}
	require.NoError(t, good().Validate())

	tests := []struct {
		name   string
		mutate func(m *Model)
	}{
		{"components", func(m *Model) { m.Components = 3 }},
		{"mean length", func(m *Model) { m.Mean = []float64{0} }},
		{"axis count", func(m *Model) { m.Axes = m.Axes[:1] }},
		{"axis length", func(m *Model) { m.Axes[1] = []float64{1} }},
		{"nan", func(m *Model) { m.Axes[0][0] = math.NaN() }},
		{"no input dim", func(m *Model) { m.InputDim = 0; m.Mean = nil }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := good()
			tt.mutate(m)
			assert.ErrorIs(t, m.Validate(), domain.ErrModelInvalid)
		})
	}
	var nilModel *Model
	assert.ErrorIs(t, nilModel.Validate(), domain.ErrModelInvalid)
}

func TestModelStoreRoundTrip(t *testing.T) {
	s := NewModelStore(filepath.Join(t.TempDir(), "m", "pca.yaml"))
	assert.False(t, s.Exists())

	m, err := Fit(testSample(), Components)
	require.NoError(t, err)
	require.NoError(t, s.Save(m))
	assert.True(t, s.Exists())

	loaded, err := s.Load()
	require.NoError(t, err)
	v := domain.Vector{0.3, -1, 2, 0}
	want, _ := m.Transform(v)
	got, err := loaded.Transform(v)
	require.NoError(t, err)
	assert.InDelta(t, want.X, got.X, 1e-12)
	assert.InDelta(t, want.Y, got.Y, 1e-12)
	assert.True(t, m.TrainedAt.Equal(loaded.TrainedAt))
}

func TestModelStoreRejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pca.yaml")
	s := NewModelStore(path)

	require.NoError(t, os.WriteFile(path, []byte("components: 2\ninput_dim: 3\n"), 0o644))
	_, err := s.Load()
	assert.ErrorIs(t, err, domain.ErrModelInvalid)

	require.NoError(t, os.WriteFile(path, []byte("{{{"), 0o644))
	_, err = s.Load()
	assert.Error(t, err)

	before, _ := os.ReadFile(path)
	assert.Error(t, s.Save(&Model{Components: 1}))
	after, _ := os.ReadFile(path)
	assert.Equal(t, before, after, "failed save leaves the file untouched")
}

func TestSampleRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sample.bin")
	require.NoError(t, WriteSample(path, testSample()))

	got, err := ReadSample(path)
	require.NoError(t, err)
	assert.True(t, mat.Equal(testSample(), got))

	_, err = ReadSample(filepath.Join(t.TempDir(), "missing.bin"))
	assert.Error(t, err)
}

func TestSampleFromVectors(t *testing.T) {
	m, err := SampleFromVectors([]domain.Vector{{1, 2}, {3, 4}})
	require.NoError(t, err)
	r, c := m.Dims()
	assert.Equal(t, 2, r)
	assert.Equal(t, 2, c)
	assert.Equal(t, 4.0, m.At(1, 1))

	_, err = SampleFromVectors([]domain.Vector{{1, 2}, {3}})
	assert.ErrorIs(t, err, domain.ErrDimensionMismatch)
	_, err = SampleFromVectors(nil)
	assert.ErrorIs(t, err, domain.ErrInsufficientSample)
}

package service

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"wordmap/internal/config"
	"wordmap/internal/corpus"
	"wordmap/internal/domain"
	"wordmap/internal/projection"
	"wordmap/internal/vectorstore"
	"wordmap/internal/vectorstore/bolt"
	"wordmap/internal/vectorstore/memory"
)

const testCorpus = "5 3\n" +
	"/c/en/king 1 0 0\n" +
	"/c/en/queen 0 1 0\n" +
	"/c/ko/왕 0 0 1\n" +
	"/c/en/apple 1 1 0\n" +
	"/c/fr/roi 1 1 1\n"

type corpusServer struct {
	*httptest.Server
	hits atomic.Int32
	fail atomic.Bool
}

func newCorpusServer(t *testing.T) *corpusServer {
	t.Helper()
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, err := zw.Write([]byte(testCorpus))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	body := buf.Bytes()

	cs := &corpusServer{}
	cs.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cs.hits.Add(1)
		if cs.fail.Load() {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write(body)
	}))
	t.Cleanup(cs.Close)
	return cs
}

func seeds(words ...string) []config.SeedWord {
	out := make([]config.SeedWord, 0, len(words))
	for _, w := range words {
		l := "en"
		if w == "왕" {
			l = "ko"
		}
		out = append(out, config.SeedWord{Word: w, Lang: l})
	}
	return out
}

func newTestEmbeddings(t *testing.T, url string, seedWords []config.SeedWord) (*Embeddings, *memory.Storage) {
	t.Helper()
	store := memory.NewStorage()
	return New(testOptions(t.TempDir(), url, seedWords, store)), store
}

func testOptions(dir, url string, seedWords []config.SeedWord, store vectorstore.Storage) Options {
	return Options{
		Corpus: config.CorpusConfig{URL: url, Dimension: 3, Languages: []string{"en", "ko"}},
		Projection: config.ProjectionConfig{
			Components:  projection.Components,
			SampleWords: 10,
			SeedWords:   seedWords,
		},
		Paths: config.Paths{
			CorpusGz:   filepath.Join(dir, "corpus.txt.gz"),
			CorpusText: filepath.Join(dir, "corpus.txt"),
			Model:      filepath.Join(dir, "model.yaml"),
			Sample:     filepath.Join(dir, "sample.bin"),
		},
		Storage: store,
		Models:  projection.NewModelStore(filepath.Join(dir, "model.yaml")),
		Fetcher: corpus.NewFetcher(corpus.FetcherConfig{InitialInterval: time.Millisecond}),
	}
}

func TestEnsureLoadedIsIdempotent(t *testing.T) {
	cs := newCorpusServer(t)
	e, store := newTestEmbeddings(t, cs.URL, nil)
	assert.Equal(t, StateUninitialized, e.State())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, e.EnsureLoaded(context.Background()))
		}()
	}
	wg.Wait()
	require.NoError(t, e.EnsureLoaded(context.Background()))

	assert.Equal(t, int32(1), cs.hits.Load())
	assert.Equal(t, 1, store.Saves())
	assert.Equal(t, StateLoaded, e.State())
	assert.Equal(t, 4, e.Status().IndexSize)
	assert.False(t, e.Ready())
}

func TestEnsureLoadedPrefersPersistedIndex(t *testing.T) {
	cs := newCorpusServer(t)
	e, store := newTestEmbeddings(t, cs.URL, nil)

	idx := vectorstore.NewIndex(2)
	require.NoError(t, idx.Add("/c/en/cat", domain.Vector{1, 2}))
	require.NoError(t, store.Save(idx))

	require.NoError(t, e.EnsureLoaded(context.Background()))
	assert.Equal(t, int32(0), cs.hits.Load())
	assert.Equal(t, 2, e.Dimension())
	assert.Equal(t, domain.Vector{1, 2}, e.VectorFor(context.Background(), "Cat", "en"))
}

func TestEnsureLoadedRebuildsCorruptIndex(t *testing.T) {
	cs := newCorpusServer(t)
	dir := t.TempDir()
	indexPath := filepath.Join(dir, "index.db")
	require.NoError(t, os.WriteFile(indexPath, bytes.Repeat([]byte("not a bolt file "), 1024), 0o644))

	e := New(testOptions(dir, cs.URL, nil, bolt.NewStorage(indexPath)))
	require.NoError(t, e.EnsureLoaded(context.Background()))
	assert.Equal(t, int32(1), cs.hits.Load())
	assert.Equal(t, 4, e.Status().IndexSize)

	fresh := New(testOptions(t.TempDir(), cs.URL, nil, bolt.NewStorage(indexPath)))
	require.NoError(t, fresh.EnsureLoaded(context.Background()))
	assert.Equal(t, int32(1), cs.hits.Load(), "rewritten index is read back without the corpus")
	assert.Equal(t, 4, fresh.Status().IndexSize)
	assert.Equal(t, domain.Vector{1, 0, 0}, fresh.VectorFor(context.Background(), "king", "en"))
}

func TestEnsureLoadedRetriesAfterFailure(t *testing.T) {
	cs := newCorpusServer(t)
	cs.fail.Store(true)
	e, _ := newTestEmbeddings(t, cs.URL, nil)

	err := e.EnsureLoaded(context.Background())
	assert.ErrorIs(t, err, domain.ErrRemoteFetch)
	assert.Equal(t, StateFailed, e.State())
	assert.NotEmpty(t, e.Status().LastError)
	err = e.Warmup(context.Background())
	assert.ErrorIs(t, err, domain.ErrUnavailable)
	assert.ErrorIs(t, err, domain.ErrRemoteFetch)

	cs.fail.Store(false)
	require.NoError(t, e.EnsureLoaded(context.Background()))
	assert.Equal(t, StateLoaded, e.State())
	assert.Empty(t, e.Status().LastError)
}

func TestVectorFor(t *testing.T) {
	cs := newCorpusServer(t)
	e, _ := newTestEmbeddings(t, cs.URL, nil)
	ctx := context.Background()

	// first lookup loads the index
	assert.Equal(t, domain.Vector{1, 0, 0}, e.VectorFor(ctx, "KING", "en"))
	assert.Equal(t, domain.Vector{0, 0, 1}, e.VectorFor(ctx, "왕", "ko"))

	unknown := e.VectorFor(ctx, "zebra", "en")
	assert.Len(t, unknown, 3)
	assert.True(t, domain.IsZero(unknown))

	assert.True(t, domain.IsZero(e.VectorFor(ctx, "roi", "fr")))
	assert.Equal(t, int32(1), cs.hits.Load())
}

func TestVectorForUnavailableIndex(t *testing.T) {
	cs := newCorpusServer(t)
	cs.fail.Store(true)
	e, _ := newTestEmbeddings(t, cs.URL, nil)

	v := e.VectorFor(context.Background(), "king", "en")
	assert.Len(t, v, 3)
	assert.True(t, domain.IsZero(v))
}

func TestModelTrainsFromSeedWords(t *testing.T) {
	cs := newCorpusServer(t)
	e, _ := newTestEmbeddings(t, cs.URL, seeds("king", "queen", "왕", "nosuchword"))
	ctx := context.Background()

	m, err := e.Model(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, 3, m.InputDim)
	assert.Equal(t, 3, m.Samples)
	assert.Equal(t, StateTrained, e.State())
	assert.True(t, e.Ready())
	assert.Equal(t, uint64(1), e.Generation())
	assert.True(t, e.opts.Models.Exists())

	again, err := e.Model(ctx, false)
	require.NoError(t, err)
	assert.Same(t, m, again)
	assert.Equal(t, uint64(1), e.Generation())
}

func TestModelInsufficientSeedWords(t *testing.T) {
	cs := newCorpusServer(t)
	e, _ := newTestEmbeddings(t, cs.URL, seeds("king", "nosuchword"))

	_, err := e.Model(context.Background(), false)
	assert.ErrorIs(t, err, domain.ErrInsufficientSample)
	assert.Equal(t, StateFailed, e.State())
	assert.False(t, e.opts.Models.Exists())
	assert.False(t, e.Ready())
}

func TestModelPrefersSampleFile(t *testing.T) {
	cs := newCorpusServer(t)
	e, _ := newTestEmbeddings(t, cs.URL, seeds("king", "queen"))

	sample := mat.NewDense(4, 3, []float64{
		1, 0, 0,
		0, 1, 0,
		0, 0, 1,
		1, 1, 1,
	})
	require.NoError(t, projection.WriteSample(e.opts.Paths.Sample, sample))

	m, err := e.Model(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, 4, m.Samples)
}

func TestModelFallsBackFromUndersizedSample(t *testing.T) {
	cs := newCorpusServer(t)
	e, _ := newTestEmbeddings(t, cs.URL, seeds("king", "queen", "apple"))

	require.NoError(t, projection.WriteSample(e.opts.Paths.Sample, mat.NewDense(1, 3, []float64{1, 2, 3})))

	m, err := e.Model(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, 3, m.Samples)
}

func TestModelFallsBackFromWrongDimensionSample(t *testing.T) {
	cs := newCorpusServer(t)
	e, _ := newTestEmbeddings(t, cs.URL, seeds("king", "queen"))

	require.NoError(t, projection.WriteSample(e.opts.Paths.Sample, mat.NewDense(3, 2, []float64{1, 2, 3, 4, 5, 7})))

	m, err := e.Model(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, 2, m.Samples)
	assert.Equal(t, 3, m.InputDim)
}

func TestModelLoadsPersistedModel(t *testing.T) {
	cs := newCorpusServer(t)
	e, _ := newTestEmbeddings(t, cs.URL, nil)

	persisted, err := projection.Fit(mat.NewDense(3, 3, []float64{1, 0, 0, 0, 1, 0, 0, 0, 1}), projection.Components)
	require.NoError(t, err)
	require.NoError(t, e.opts.Models.Save(persisted))

	m, err := e.Model(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, persisted.Mean, m.Mean)
	assert.Equal(t, uint64(1), e.Generation())
	assert.Equal(t, int32(0), cs.hits.Load(), "loading a model does not need the index")
}

func TestModelRetrainsOverInvalidPersistedModel(t *testing.T) {
	cs := newCorpusServer(t)
	e, _ := newTestEmbeddings(t, cs.URL, seeds("king", "queen", "왕"))
	require.NoError(t, os.WriteFile(e.opts.Models.Path(), []byte("components: 2\n"), 0o644))

	m, err := e.Model(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, 3, m.Samples)

	reloaded, err := e.opts.Models.Load()
	require.NoError(t, err)
	assert.Equal(t, m.Mean, reloaded.Mean)
}

func TestModelRetrainsOverMismatchedPersistedModel(t *testing.T) {
	cs := newCorpusServer(t)
	e, _ := newTestEmbeddings(t, cs.URL, seeds("king", "queen", "왕"))
	ctx := context.Background()

	persisted, err := projection.Fit(mat.NewDense(3, 2, []float64{1, 0, 0, 1, 1, 1}), projection.Components)
	require.NoError(t, err)
	require.NoError(t, e.opts.Models.Save(persisted))

	require.NoError(t, e.EnsureLoaded(ctx))
	m, err := e.Model(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, 3, m.InputDim)
	assert.Equal(t, 3, m.Samples)

	reloaded, err := e.opts.Models.Load()
	require.NoError(t, err)
	assert.Equal(t, 3, reloaded.InputDim)
}

func TestEnsureLoadedDiscardsMismatchedModel(t *testing.T) {
	cs := newCorpusServer(t)
	e, _ := newTestEmbeddings(t, cs.URL, seeds("king", "queen", "왕"))
	ctx := context.Background()

	persisted, err := projection.Fit(mat.NewDense(3, 2, []float64{1, 0, 0, 1, 1, 1}), projection.Components)
	require.NoError(t, err)
	require.NoError(t, e.opts.Models.Save(persisted))

	// without an index the dimension cannot be checked yet
	early, err := e.Model(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, 2, early.InputDim)

	require.NoError(t, e.EnsureLoaded(ctx))
	assert.Equal(t, StateLoaded, e.State())
	assert.False(t, e.Ready())

	m, err := e.Model(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, 3, m.InputDim)
	assert.True(t, e.Ready())
	_, ok := e.Project(ctx, domain.Vector{1, 0, 0})
	assert.True(t, ok)
}

func TestForcedRetrainFailureKeepsServingModel(t *testing.T) {
	cs := newCorpusServer(t)
	e, _ := newTestEmbeddings(t, cs.URL, seeds("king", "queen", "왕"))
	ctx := context.Background()

	first, err := e.Model(ctx, false)
	require.NoError(t, err)
	before, err := os.ReadFile(e.opts.Models.Path())
	require.NoError(t, err)

	e.opts.Projection.SeedWords = seeds("nosuchword")
	_, err = e.Model(ctx, true)
	assert.ErrorIs(t, err, domain.ErrInsufficientSample)
	assert.Equal(t, StateFailed, e.State())

	after, err := os.ReadFile(e.opts.Models.Path())
	require.NoError(t, err)
	assert.Equal(t, before, after)

	current, err := e.Model(ctx, false)
	require.NoError(t, err)
	assert.Same(t, first, current)
	_, ok := e.Project(ctx, domain.Vector{1, 0, 0})
	assert.True(t, ok)
}

func TestForcedRetrainPublishesNewGeneration(t *testing.T) {
	cs := newCorpusServer(t)
	e, _ := newTestEmbeddings(t, cs.URL, seeds("king", "queen", "왕"))
	ctx := context.Background()

	first, err := e.Model(ctx, false)
	require.NoError(t, err)
	second, err := e.Model(ctx, true)
	require.NoError(t, err)
	assert.NotSame(t, first, second)
	assert.Equal(t, uint64(2), e.Generation())
}

func TestProject(t *testing.T) {
	cs := newCorpusServer(t)
	e, _ := newTestEmbeddings(t, cs.URL, seeds("king", "queen", "왕"))
	ctx := context.Background()

	m, err := e.Model(ctx, false)
	require.NoError(t, err)

	king := e.VectorFor(ctx, "king", "en")
	p, ok := e.Project(ctx, king)
	require.True(t, ok)
	want, err := m.Transform(king)
	require.NoError(t, err)
	assert.Equal(t, want, p)

	_, ok = e.Project(ctx, domain.Vector{1, 2})
	assert.False(t, ok)
}

func TestProjectWithoutModel(t *testing.T) {
	cs := newCorpusServer(t)
	e, _ := newTestEmbeddings(t, cs.URL, nil)

	_, ok := e.Project(context.Background(), domain.Vector{1, 0, 0})
	assert.False(t, ok)
}

func TestBuildTrainingSample(t *testing.T) {
	cs := newCorpusServer(t)
	e, _ := newTestEmbeddings(t, cs.URL, nil)
	ctx := context.Background()

	n, err := e.BuildTrainingSample(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	s, err := projection.ReadSample(e.opts.Paths.Sample)
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 0, 0}, mat.Row(nil, 0, s))

	n, err = e.BuildTrainingSample(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	m, err := e.Model(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, 4, m.Samples)
}

func TestBuildTrainingSampleSkipsZeroVectors(t *testing.T) {
	cs := newCorpusServer(t)
	e, store := newTestEmbeddings(t, cs.URL, nil)

	idx := vectorstore.NewIndex(2)
	require.NoError(t, idx.Add("/c/en/nothing", domain.Vector{0, 0}))
	require.NoError(t, idx.Add("/c/en/one", domain.Vector{1, 0}))
	require.NoError(t, store.Save(idx))

	_, err := e.BuildTrainingSample(context.Background(), 10)
	assert.ErrorIs(t, err, domain.ErrInsufficientSample)
	_, statErr := os.Stat(e.opts.Paths.Sample)
	assert.True(t, os.IsNotExist(statErr))
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "trained", StateTrained.String())
	assert.Equal(t, "state(42)", State(42).String())
}

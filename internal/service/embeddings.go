package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
	"gonum.org/v1/gonum/mat"

	"wordmap/internal/config"
	"wordmap/internal/corpus"
	"wordmap/internal/domain"
	"wordmap/internal/metrics"
	"wordmap/internal/projection"
	"wordmap/internal/vectorstore"
	"wordmap/internal/vectorstore/bolt"
)

// State is the lifecycle of the index and model pair.
type State int32

const (
	StateUninitialized State = iota
	StateLoading
	StateLoaded
	StateTraining
	StateTrained
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateLoading:
		return "loading"
	case StateLoaded:
		return "loaded"
	case StateTraining:
		return "training"
	case StateTrained:
		return "trained"
	case StateFailed:
		return "failed"
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

// Options wires an Embeddings service. Storage, Models and Fetcher are
// required; FromConfig fills them from the application config.
type Options struct {
	Corpus     config.CorpusConfig
	Projection config.ProjectionConfig
	Paths      config.Paths
	Storage    vectorstore.Storage
	Models     *projection.ModelStore
	Fetcher    *corpus.Fetcher
	Logger     *slog.Logger
}

// Embeddings owns the vector index and the projection model. Both are loaded
// lazily behind a single-execution barrier and replaced wholesale, never
// mutated in place.
type Embeddings struct {
	opts  Options
	log   *slog.Logger
	group singleflight.Group
	// serializes training so a forced retrain never races a lazy one
	trainMu sync.Mutex

	mu         sync.RWMutex
	index      *vectorstore.Index
	model      *projection.Model
	generation uint64
	state      State
	lastErr    error
}

// New creates a service that has not loaded anything yet.
func New(opts Options) *Embeddings {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Projection.Components == 0 {
		opts.Projection.Components = projection.Components
	}
	return &Embeddings{opts: opts, log: opts.Logger}
}

// FromConfig builds the service with bbolt index storage and on-disk artifacts under cfg.DataDir.
func FromConfig(cfg *config.AppConfig, log *slog.Logger) *Embeddings {
	paths := cfg.Paths()
	return New(Options{
		Corpus:     cfg.Corpus,
		Projection: cfg.Projection,
		Paths:      paths,
		Storage:    bolt.NewStorage(paths.Index),
		Models:     projection.NewModelStore(paths.Model),
		Fetcher: corpus.NewFetcher(corpus.FetcherConfig{
			Timeout:    time.Duration(cfg.Corpus.TimeoutSecs) * time.Second,
			MaxRetries: cfg.Corpus.MaxRetries,
			Logger:     log,
		}),
		Logger: log,
	})
}

// Warmup loads the index and obtains a model. Servers call it at startup and
// before serving requests. Failures wrap domain.ErrUnavailable.
func (e *Embeddings) Warmup(ctx context.Context) error {
	if err := e.EnsureLoaded(ctx); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrUnavailable, err)
	}
	if _, err := e.Model(ctx, false); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrUnavailable, err)
	}
	return nil
}

// EnsureLoaded makes the vector index available, reading the persisted index
// or running download, decompress and parse. Concurrent callers share one
// attempt. A failed attempt is retried by the next call.
func (e *Embeddings) EnsureLoaded(ctx context.Context) error {
	if e.currentIndex() != nil {
		return nil
	}
	_, err, _ := e.group.Do("load", func() (any, error) {
		if e.currentIndex() != nil {
			return nil, nil
		}
		e.setState(StateLoading)
		idx, err := e.load(ctx)
		if err != nil {
			e.fail(err)
			e.log.Error("vector index load failed", "err", err)
			return nil, err
		}
		e.mu.Lock()
		e.index = idx
		e.state = StateLoaded
		if e.model != nil {
			if e.model.InputDim == idx.Dim() {
				e.state = StateTrained
			} else {
				// unusable for this index; the next Model call retrains
				e.log.Warn("projection model dimension differs from index, discarding",
					"model_dim", e.model.InputDim, "index_dim", idx.Dim())
				e.model = nil
			}
		}
		e.lastErr = nil
		e.mu.Unlock()
		metrics.SetIndexSize(idx.Len())
		e.log.Info("vector index ready", "entries", idx.Len(), "dim", idx.Dim())
		return nil, nil
	})
	return err
}

func (e *Embeddings) load(ctx context.Context) (*vectorstore.Index, error) {
	if e.opts.Storage.Exists() {
		idx, err := e.opts.Storage.Load()
		metrics.IncLoad("storage", err)
		if err == nil {
			return idx, nil
		}
		e.log.Warn("persisted vector index unreadable, rebuilding from corpus", "err", err)
	}

	p := e.opts.Paths
	if err := e.opts.Fetcher.Download(ctx, e.opts.Corpus.URL, p.CorpusGz); err != nil {
		metrics.IncLoad("corpus", err)
		return nil, err
	}
	if err := corpus.Decompress(p.CorpusGz, p.CorpusText, e.log); err != nil {
		metrics.IncLoad("corpus", err)
		return nil, err
	}
	idx, st, err := corpus.ParseFile(p.CorpusText, corpus.ParseOptions{
		Languages:   e.opts.Corpus.Languages,
		ExpectedDim: e.opts.Corpus.Dimension,
		Logger:      e.log,
	})
	metrics.ObserveParse(st.Parsed, st.Filtered, st.Skipped)
	if err != nil {
		metrics.IncLoad("corpus", err)
		return nil, err
	}
	if err := e.opts.Storage.Save(idx); err != nil {
		err = fmt.Errorf("persist vector index: %w", err)
		metrics.IncLoad("corpus", err)
		return nil, err
	}
	metrics.IncLoad("corpus", nil)
	return idx, nil
}

// Model returns the projection model, loading the persisted one or training a
// new one. forceRetrain skips the persisted model. On failure the persisted
// model is untouched and a previously published model keeps serving.
func (e *Embeddings) Model(ctx context.Context, forceRetrain bool) (*projection.Model, error) {
	if !forceRetrain {
		if m := e.currentModel(); m != nil {
			return m, nil
		}
	}
	key := "model"
	if forceRetrain {
		key = "retrain"
	}
	v, err, _ := e.group.Do(key, func() (any, error) {
		e.trainMu.Lock()
		defer e.trainMu.Unlock()
		if !forceRetrain {
			if m := e.currentModel(); m != nil {
				return m, nil
			}
			if m := e.loadPersistedModel(); m != nil {
				e.publish(m)
				metrics.IncTraining("storage", nil)
				return m, nil
			}
		}
		return e.train(ctx)
	})
	if err != nil {
		return nil, err
	}
	return v.(*projection.Model), nil
}

func (e *Embeddings) loadPersistedModel() *projection.Model {
	if !e.opts.Models.Exists() {
		return nil
	}
	m, err := e.opts.Models.Load()
	if err != nil {
		e.log.Warn("persisted projection model invalid, retraining", "path", e.opts.Models.Path(), "err", err)
		return nil
	}
	if idx := e.currentIndex(); idx != nil && idx.Dim() != m.InputDim {
		e.log.Warn("persisted projection model dimension differs from index, retraining",
			"model_dim", m.InputDim, "index_dim", idx.Dim())
		return nil
	}
	e.log.Info("projection model loaded", "path", e.opts.Models.Path(), "samples", m.Samples)
	return m
}

func (e *Embeddings) train(ctx context.Context) (*projection.Model, error) {
	if err := e.EnsureLoaded(ctx); err != nil {
		return nil, fmt.Errorf("train projection: %w", err)
	}
	e.setState(StateTraining)
	e.log.Info("training projection model")

	sample, source, err := e.selectSample(ctx)
	if err != nil {
		metrics.IncTraining(source, err)
		e.fail(err)
		e.log.Error("projection training failed", "err", err)
		return nil, err
	}
	m, err := projection.Fit(sample, e.opts.Projection.Components)
	if err == nil {
		err = e.opts.Models.Save(m)
	}
	metrics.IncTraining(source, err)
	if err != nil {
		e.fail(err)
		e.log.Error("projection training failed", "source", source, "err", err)
		return nil, err
	}
	e.publish(m)
	e.log.Info("projection model trained", "source", source, "samples", m.Samples,
		"explained_variance", m.Variance, "path", e.opts.Models.Path())
	return m, nil
}

// selectSample prefers the precomputed sample file and falls back to the seed words.
func (e *Embeddings) selectSample(ctx context.Context) (*mat.Dense, string, error) {
	n := e.opts.Projection.Components
	dim := e.Dimension()
	path := e.opts.Paths.Sample
	if path != "" {
		if _, statErr := os.Stat(path); statErr == nil {
			s, err := projection.ReadSample(path)
			switch {
			case err != nil:
				e.log.Warn("training sample unreadable, using seed words", "path", path, "err", err)
			case rowsOf(s) < n:
				e.log.Info("training sample too small, using seed words", "path", path, "rows", rowsOf(s))
			case colsOf(s) != dim:
				e.log.Warn("training sample dimension differs from index, using seed words",
					"path", path, "sample_dim", colsOf(s), "index_dim", dim)
			default:
				e.log.Info("training on sample file", "path", path, "rows", rowsOf(s))
				return s, "sample", nil
			}
		} else {
			e.log.Info("training sample not found, using seed words", "path", path)
		}
	}

	var vecs []domain.Vector
	for _, sw := range e.opts.Projection.SeedWords {
		v := e.VectorFor(ctx, sw.Word, sw.Lang)
		if !domain.IsZero(v) {
			vecs = append(vecs, v)
		}
	}
	if len(vecs) < n {
		return nil, "seed", fmt.Errorf("%w: %d seed words found in index, need %d", domain.ErrInsufficientSample, len(vecs), n)
	}
	s, err := projection.SampleFromVectors(vecs)
	return s, "seed", err
}

func rowsOf(m *mat.Dense) int {
	r, _ := m.Dims()
	return r
}

func colsOf(m *mat.Dense) int {
	_, c := m.Dims()
	return c
}

// VectorFor returns the vector for word in lang, or the zero vector when the
// language is unsupported, the word is unknown, or the index cannot be loaded.
func (e *Embeddings) VectorFor(ctx context.Context, word, lang string) domain.Vector {
	if !e.opts.Corpus.Supported(lang) {
		metrics.IncLookup(metrics.LookupUnsupported)
		return domain.Zero(e.Dimension())
	}
	key := domain.Key(lang, word)
	idx := e.currentIndex()
	if idx == nil {
		e.log.Warn("vector index not loaded, loading now")
		if err := e.EnsureLoaded(ctx); err != nil {
			metrics.IncLookup(metrics.LookupUnavailable)
			return domain.Zero(e.Dimension())
		}
		idx = e.currentIndex()
	}
	if v, ok := idx.Lookup(key); ok {
		metrics.IncLookup(metrics.LookupHit)
		return v
	}
	metrics.IncLookup(metrics.LookupOOV)
	e.log.Debug("word out of vocabulary", "key", key)
	return domain.Zero(idx.Dim())
}

// Project maps v to the plane. It reports false when no model is available or
// v does not fit the model.
func (e *Embeddings) Project(ctx context.Context, v domain.Vector) (domain.Point2D, bool) {
	m, err := e.Model(ctx, false)
	if err != nil {
		metrics.IncProjectionFailure("unavailable")
		e.log.Error("projection model unavailable", "err", err)
		return domain.Point2D{}, false
	}
	p, err := m.Transform(v)
	if err != nil {
		if errors.Is(err, domain.ErrDimensionMismatch) {
			metrics.IncProjectionFailure("dimension_mismatch")
			e.log.Error("projection dimension mismatch; corpus and model configuration disagree",
				"vector_dim", len(v), "model_dim", m.InputDim)
		} else {
			metrics.IncProjectionFailure("transform")
			e.log.Error("projection failed", "err", err)
		}
		return domain.Point2D{}, false
	}
	return p, true
}

// BuildTrainingSample collects up to limit non-zero vectors in index order and
// writes them as the training sample file. It returns the number of rows written.
func (e *Embeddings) BuildTrainingSample(ctx context.Context, limit int) (int, error) {
	if limit <= 0 {
		limit = e.opts.Projection.SampleWords
	}
	if err := e.EnsureLoaded(ctx); err != nil {
		return 0, err
	}
	idx := e.currentIndex()
	vecs := make([]domain.Vector, 0, min(limit, idx.Len()))
	for i := 0; i < idx.Len() && len(vecs) < limit; i++ {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		lang, _, ok := domain.ParseKey(idx.Key(i))
		if !ok || !e.opts.Corpus.Supported(lang) {
			continue
		}
		v := idx.Vector(i)
		if domain.IsZero(v) {
			continue
		}
		vecs = append(vecs, v)
		if len(vecs)%5000 == 0 {
			e.log.Info("collecting training vectors", "collected", len(vecs))
		}
	}
	// PCA needs at least two observations
	if len(vecs) < 2 {
		return 0, fmt.Errorf("%w: collected %d vectors", domain.ErrInsufficientSample, len(vecs))
	}
	sample, err := projection.SampleFromVectors(vecs)
	if err != nil {
		return 0, err
	}
	if err := projection.WriteSample(e.opts.Paths.Sample, sample); err != nil {
		return 0, err
	}
	e.log.Info("training sample written", "path", e.opts.Paths.Sample, "rows", len(vecs), "dim", idx.Dim())
	return len(vecs), nil
}

// Dimension is the index dimension once loaded, the configured one before.
func (e *Embeddings) Dimension() int {
	if idx := e.currentIndex(); idx != nil {
		return idx.Dim()
	}
	return e.opts.Corpus.Dimension
}

// IndexSize is the number of indexed entries, zero before the index is loaded.
func (e *Embeddings) IndexSize() int {
	if idx := e.currentIndex(); idx != nil {
		return idx.Len()
	}
	return 0
}

// Generation increases every time a model is published.
func (e *Embeddings) Generation() uint64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.generation
}

func (e *Embeddings) State() State {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state
}

// Ready reports whether both the index and a model are available.
func (e *Embeddings) Ready() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.index != nil && e.model != nil
}

// Status is a point-in-time summary for health endpoints.
type Status struct {
	State      string    `json:"state"`
	Ready      bool      `json:"ready"`
	IndexSize  int       `json:"index_size"`
	Dimension  int       `json:"dimension"`
	Generation uint64    `json:"generation"`
	TrainedAt  time.Time `json:"trained_at,omitzero"`
	Samples    int       `json:"samples,omitempty"`
	LastError  string    `json:"last_error,omitempty"`
}

func (e *Embeddings) Status() Status {
	e.mu.RLock()
	defer e.mu.RUnlock()
	st := Status{
		State:      e.state.String(),
		Ready:      e.index != nil && e.model != nil,
		Dimension:  e.opts.Corpus.Dimension,
		Generation: e.generation,
	}
	if e.index != nil {
		st.IndexSize = e.index.Len()
		st.Dimension = e.index.Dim()
	}
	if e.model != nil {
		st.TrainedAt = e.model.TrainedAt
		st.Samples = e.model.Samples
	}
	if e.lastErr != nil {
		st.LastError = e.lastErr.Error()
	}
	return st
}

func (e *Embeddings) currentIndex() *vectorstore.Index {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.index
}

func (e *Embeddings) currentModel() *projection.Model {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.model
}

func (e *Embeddings) publish(m *projection.Model) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.model = m
	e.generation++
	e.state = StateTrained
	e.lastErr = nil
}

func (e *Embeddings) setState(s State) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.state = s
}

func (e *Embeddings) fail(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.state = StateFailed
	e.lastErr = err
}

package service

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/patrickmn/go-cache"

	"wordmap/internal/domain"
	"wordmap/internal/lang"
)

// Reasons reported on a WordResult without a point.
const (
	ReasonTooShort    = "too_short"
	ReasonUnsupported = "unsupported_language"
	ReasonOOV         = "out_of_vocabulary"
	ReasonProjection  = "projection_failed"
)

// Source is what the mapper needs from the embeddings service.
type Source interface {
	domain.Embedder
	Generation() uint64
	IndexSize() int
}

// MapperConfig tunes word mapping.
type MapperConfig struct {
	Languages []string
	MinRunes  int
	CacheTTL  time.Duration
	Logger    *slog.Logger
}

// Mapper resolves words to plane coordinates and memoizes results per model generation.
type Mapper struct {
	src       Source
	cache     *cache.Cache
	languages map[string]struct{}
	minRunes  int
	log       *slog.Logger
}

func NewMapper(src Source, cfg MapperConfig) *Mapper {
	if cfg.MinRunes <= 0 {
		cfg.MinRunes = 2
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = time.Hour
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	langs := make(map[string]struct{}, len(cfg.Languages))
	for _, l := range cfg.Languages {
		langs[l] = struct{}{}
	}
	return &Mapper{
		src:       src,
		cache:     cache.New(cfg.CacheTTL, 2*cfg.CacheTTL),
		languages: langs,
		minRunes:  cfg.MinRunes,
		log:       cfg.Logger,
	}
}

// Lookup maps one word. Surrounding whitespace is ignored; the result keeps
// the word as given.
func (m *Mapper) Lookup(ctx context.Context, word string) domain.WordResult {
	res := domain.WordResult{Word: word}
	trimmed := strings.TrimSpace(word)
	if utf8.RuneCountInString(trimmed) < m.minRunes {
		res.Reason = ReasonTooShort
		return res
	}
	res.Lang = lang.Detect(trimmed)
	res.Key = domain.Key(res.Lang, trimmed)
	if _, ok := m.languages[res.Lang]; !ok {
		res.Reason = ReasonUnsupported
		return res
	}

	ck := strconv.FormatUint(m.src.Generation(), 10) + "|" + res.Key
	if v, ok := m.cache.Get(ck); ok {
		cached := v.(domain.WordResult)
		cached.Word = word
		return cached
	}

	v := m.src.VectorFor(ctx, trimmed, res.Lang)
	if domain.IsZero(v) {
		res.Reason = ReasonOOV
		m.log.Debug("word not mapped", "word", trimmed, "lang", res.Lang, "reason", res.Reason)
		// a zero vector from an unloaded index says nothing about the word
		if m.src.IndexSize() > 0 {
			m.cache.SetDefault(ck, res)
		}
		return res
	}
	p, ok := m.src.Project(ctx, v)
	if !ok {
		// not cached: the model may become available later
		res.Reason = ReasonProjection
		return res
	}
	res.Point = &p
	m.cache.SetDefault(ck, res)
	return res
}

// Coordinates maps every word; unmapped words have a nil point.
func (m *Mapper) Coordinates(ctx context.Context, words []string) map[string]*domain.Point2D {
	out := make(map[string]*domain.Point2D, len(words))
	for _, w := range words {
		out[w] = m.Lookup(ctx, w).Point
	}
	return out
}

// Purge drops all memoized results.
func (m *Mapper) Purge() { m.cache.Flush() }

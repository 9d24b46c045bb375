package vectorstore

import (
	"errors"
	"fmt"

	"wordmap/internal/domain"
)

var (
	// ErrDuplicateKey is returned by Add when the key is already indexed.
	ErrDuplicateKey = errors.New("duplicate key")
	// ErrBadVector is returned by Add when the vector length differs from the index dimension.
	ErrBadVector = errors.New("vector length does not match index dimension")
)

// Index maps corpus keys to fixed-length vectors. Positions follow insertion
// order. An Index is built once and treated as read-only after it is published.
type Index struct {
	dim  int
	keys []string
	ids  map[string]int
	data []float32
}

// NewIndex creates an empty index of the given dimension.
func NewIndex(dim int) *Index {
	return &Index{dim: dim, ids: make(map[string]int)}
}

// Add appends a vector under key.
func (x *Index) Add(key string, vec domain.Vector) error {
	if len(vec) != x.dim {
		return fmt.Errorf("%w: got %d, want %d", ErrBadVector, len(vec), x.dim)
	}
	if _, ok := x.ids[key]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateKey, key)
	}
	x.ids[key] = len(x.keys)
	x.keys = append(x.keys, key)
	x.data = append(x.data, vec...)
	return nil
}

// Lookup returns a copy of the vector stored under key.
func (x *Index) Lookup(key string) (domain.Vector, bool) {
	i, ok := x.ids[key]
	if !ok {
		return nil, false
	}
	return x.Vector(i), true
}

// Has reports whether key is indexed.
func (x *Index) Has(key string) bool {
	_, ok := x.ids[key]
	return ok
}

// Dim returns the vector dimension.
func (x *Index) Dim() int { return x.dim }

// Len returns the number of entries.
func (x *Index) Len() int { return len(x.keys) }

// Key returns the key at position i.
func (x *Index) Key(i int) string { return x.keys[i] }

// Vector returns a copy of the vector at position i.
func (x *Index) Vector(i int) domain.Vector {
	out := make(domain.Vector, x.dim)
	copy(out, x.data[i*x.dim:(i+1)*x.dim])
	return out
}

// Keys returns the keys in position order. The slice must not be modified.
func (x *Index) Keys() []string { return x.keys }

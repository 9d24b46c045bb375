package domain

import (
	"context"
	"encoding/json"
	"strings"
)

// KeyMarker is the leading path segment of every corpus key ("/c/en/king").
const KeyMarker = "c"

// Vector is a fixed-length word embedding.
type Vector []float32

// Point2D is a projected embedding. It encodes to JSON as [x, y].
type Point2D struct {
	X float64
	Y float64
}

// MarshalJSON implements json.Marshaler.
func (p Point2D) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]float64{p.X, p.Y})
}

// UnmarshalJSON implements json.Unmarshaler.
func (p *Point2D) UnmarshalJSON(data []byte) error {
	var xy [2]float64
	if err := json.Unmarshal(data, &xy); err != nil {
		return err
	}
	p.X, p.Y = xy[0], xy[1]
	return nil
}

// Key builds the index key for a word in a language. Words are lowercased.
func Key(lang, word string) string {
	return "/" + KeyMarker + "/" + lang + "/" + strings.ToLower(word)
}

// ParseKey splits a corpus key of the form /<marker>/<lang>/<token>.
// Tokens may contain further path segments (e.g. part-of-speech suffixes).
func ParseKey(key string) (lang, token string, ok bool) {
	parts := strings.SplitN(key, "/", 4)
	if len(parts) < 4 || parts[0] != "" || parts[1] != KeyMarker || parts[2] == "" || parts[3] == "" {
		return "", "", false
	}
	return parts[2], parts[3], true
}

// Zero returns the all-zero vector of the given dimension.
func Zero(dim int) Vector {
	return make(Vector, dim)
}

// IsZero reports whether every component is zero. Callers treat a zero vector
// as out of vocabulary.
func IsZero(v Vector) bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}

// Embedder resolves words to vectors and projects them to the plane.
type Embedder interface {
	Dimension() int
	VectorFor(ctx context.Context, word, lang string) Vector
	Project(ctx context.Context, v Vector) (Point2D, bool)
}

// WordResult is the outcome of mapping a single word.
type WordResult struct {
	Word   string
	Lang   string
	Key    string
	Point  *Point2D
	Reason string
}

// Found reports whether the word resolved to coordinates.
func (r WordResult) Found() bool { return r.Point != nil }

// WordMapper is the application-facing word to coordinates operation.
type WordMapper interface {
	Lookup(ctx context.Context, word string) WordResult
	Coordinates(ctx context.Context, words []string) map[string]*Point2D
}

package domain

import "errors"

var (
	// ErrRemoteFetch means the corpus download failed.
	ErrRemoteFetch = errors.New("remote fetch failed")
	// ErrCorpusFormat means the corpus could not be decompressed or parsed.
	ErrCorpusFormat = errors.New("corpus format error")
	// ErrInsufficientSample means too few usable vectors were available for training.
	ErrInsufficientSample = errors.New("insufficient training sample")
	// ErrModelInvalid means a projection model cannot transform vectors.
	ErrModelInvalid = errors.New("projection model invalid")
	// ErrDimensionMismatch means a vector does not match the model input size.
	ErrDimensionMismatch = errors.New("dimension mismatch")
	// ErrUnavailable is what outer layers report when the embeddings cannot serve.
	ErrUnavailable = errors.New("embeddings unavailable")
)

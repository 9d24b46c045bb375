package vectorstore

// Storage persists a built Index so the corpus is parsed only once.
type Storage interface {
	Exists() bool
	Load() (*Index, error)
	Save(idx *Index) error
}

package projection

import (
	"fmt"
	"os"
	"path/filepath"

	"gonum.org/v1/gonum/mat"
	"gopkg.in/yaml.v3"
)

// ModelStore persists a model as YAML.
type ModelStore struct {
	path string
}

func NewModelStore(path string) *ModelStore { return &ModelStore{path: path} }

func (s *ModelStore) Path() string { return s.path }

func (s *ModelStore) Exists() bool {
	_, err := os.Stat(s.path)
	return err == nil
}

// Load reads and validates the persisted model.
func (s *ModelStore) Load() (*Model, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, err
	}
	var m Model
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decode %s: %w", s.path, err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// Save replaces the persisted model. The previous file stays intact on error.
func (s *ModelStore) Save(m *Model) error {
	if err := m.Validate(); err != nil {
		return err
	}
	data, err := yaml.Marshal(m)
	if err != nil {
		return err
	}
	return writeAtomic(s.path, func(f *os.File) error {
		_, err := f.Write(data)
		return err
	})
}

// ReadSample loads a training sample written by WriteSample.
func ReadSample(path string) (*mat.Dense, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var m mat.Dense
	if _, err := m.UnmarshalBinaryFrom(f); err != nil {
		return nil, fmt.Errorf("decode sample %s: %w", path, err)
	}
	return &m, nil
}

// WriteSample stores a training sample using gonum's binary matrix encoding.
func WriteSample(path string, sample *mat.Dense) error {
	return writeAtomic(path, func(f *os.File) error {
		_, err := sample.MarshalBinaryTo(f)
		return err
	})
}

func writeAtomic(path string, write func(f *os.File) error) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmp := f.Name()
	err = write(f)
	if err == nil {
		err = f.Sync()
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}

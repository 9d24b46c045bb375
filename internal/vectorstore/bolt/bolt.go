package bolt

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"

	"wordmap/internal/domain"
	"wordmap/internal/vectorstore"
)

var (
	bucketMeta    = []byte("meta")
	bucketKeys    = []byte("keys")
	bucketVectors = []byte("vectors")

	metaDim   = []byte("dim")
	metaCount = []byte("count")
)

// entries per write transaction
const batchSize = 10000

// Storage persists an index in a single bbolt file. Positions are stored as
// big-endian uint32 keys so cursor order equals index order.
type Storage struct {
	path    string
	timeout time.Duration
}

func NewStorage(path string) *Storage {
	return &Storage{path: path, timeout: 5 * time.Second}
}

func (s *Storage) Path() string { return s.path }

func (s *Storage) Exists() bool {
	fi, err := os.Stat(s.path)
	return err == nil && fi.Size() > 0
}

// Save writes idx to a temp file and renames it over the previous index.
func (s *Storage) Save(idx *vectorstore.Index) error {
	if idx == nil || idx.Dim() <= 0 {
		return errors.New("invalid index")
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	_ = os.Remove(tmp)
	db, err := bbolt.Open(tmp, 0o600, &bbolt.Options{Timeout: s.timeout, NoSync: true})
	if err != nil {
		return fmt.Errorf("open %s: %w", tmp, err)
	}
	if err := writeIndex(db, idx); err != nil {
		_ = db.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := db.Sync(); err != nil {
		_ = db.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := db.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, s.path)
}

func writeIndex(db *bbolt.DB, idx *vectorstore.Index) error {
	err := db.Update(func(tx *bbolt.Tx) error {
		meta, err := tx.CreateBucketIfNotExists(bucketMeta)
		if err != nil {
			return err
		}
		if _, err := tx.CreateBucketIfNotExists(bucketKeys); err != nil {
			return err
		}
		if _, err := tx.CreateBucketIfNotExists(bucketVectors); err != nil {
			return err
		}
		if err := meta.Put(metaDim, encodeUint32(uint32(idx.Dim()))); err != nil {
			return err
		}
		return meta.Put(metaCount, encodeUint32(uint32(idx.Len())))
	})
	if err != nil {
		return err
	}
	for start := 0; start < idx.Len(); start += batchSize {
		end := min(start+batchSize, idx.Len())
		err := db.Update(func(tx *bbolt.Tx) error {
			keys := tx.Bucket(bucketKeys)
			vectors := tx.Bucket(bucketVectors)
			keys.FillPercent = 1
			vectors.FillPercent = 1
			for i := start; i < end; i++ {
				pos := encodeUint32(uint32(i))
				if err := keys.Put(pos, []byte(idx.Key(i))); err != nil {
					return err
				}
				if err := vectors.Put(pos, encodeVector(idx.Vector(i))); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// Load reads the whole index back into memory.
func (s *Storage) Load() (*vectorstore.Index, error) {
	db, err := bbolt.Open(s.path, 0o600, &bbolt.Options{Timeout: s.timeout, ReadOnly: true})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", s.path, err)
	}
	defer db.Close()

	var idx *vectorstore.Index
	err = db.View(func(tx *bbolt.Tx) error {
		meta := tx.Bucket(bucketMeta)
		keys := tx.Bucket(bucketKeys)
		vectors := tx.Bucket(bucketVectors)
		if meta == nil || keys == nil || vectors == nil {
			return errors.New("index file is missing buckets")
		}
		dim, err := decodeUint32(meta.Get(metaDim))
		if err != nil || dim == 0 {
			return errors.New("index file has no dimension")
		}
		count, err := decodeUint32(meta.Get(metaCount))
		if err != nil {
			return errors.New("index file has no count")
		}
		idx = vectorstore.NewIndex(int(dim))
		kc, vc := keys.Cursor(), vectors.Cursor()
		k, key := kc.First()
		v, raw := vc.First()
		for ; k != nil && v != nil; k, key = kc.Next() {
			if string(k) != string(v) {
				return fmt.Errorf("index file positions diverge at %x", k)
			}
			vec, err := decodeVector(raw, int(dim))
			if err != nil {
				return fmt.Errorf("key %s: %w", key, err)
			}
			if err := idx.Add(string(key), vec); err != nil {
				return err
			}
			v, raw = vc.Next()
		}
		if k != nil || v != nil {
			return errors.New("index file has unequal key and vector counts")
		}
		if idx.Len() != int(count) {
			return fmt.Errorf("index file declares %d entries, found %d", count, idx.Len())
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return idx, nil
}

func encodeUint32(v uint32) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, v)
	return b
}

func decodeUint32(b []byte) (uint32, error) {
	if len(b) != 4 {
		return 0, errors.New("bad uint32")
	}
	return binary.BigEndian.Uint32(b), nil
}

func encodeVector(v domain.Vector) []byte {
	b := make([]byte, 4*len(v))
	for i, x := range v {
		binary.LittleEndian.PutUint32(b[4*i:], math.Float32bits(x))
	}
	return b
}

func decodeVector(b []byte, dim int) (domain.Vector, error) {
	if len(b) != 4*dim {
		return nil, fmt.Errorf("vector has %d bytes, want %d", len(b), 4*dim)
	}
	v := make(domain.Vector, dim)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return v, nil
}

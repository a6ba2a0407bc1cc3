// Package store persists module images in a content-addressed database.
// Images are keyed by the BLAKE3 hash of their bytes, compressed with zstd
// on disk, and optionally bound to human-readable names.
package store

import (
	"bytes"
	"errors"
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/tliron/commonlog"
	"github.com/zeebo/blake3"
	bolt "go.etcd.io/bbolt"

	"github.com/chazu/amber/vm"
)

var log = commonlog.GetLogger("amber.store")

var (
	bucketModules = []byte("modules") // hash -> zstd(image)
	bucketNames   = []byte("names")   // name -> hash
)

// ErrNoSuchModule is returned when neither a hash nor a name resolves.
var ErrNoSuchModule = errors.New("store: no such module")

// Store is a content-addressed module database. Safe for concurrent use;
// bbolt serializes writers internally, the encoder and decoder are guarded
// here.
type Store struct {
	db *bolt.DB

	mu  sync.Mutex
	enc *zstd.Encoder
	dec *zstd.Decoder
}

// Open opens or creates the database at path.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{bucketModules, bucketNames} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("store: create buckets: %w", err)
	}

	enc, err := zstd.NewWriter(nil)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("store: zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("store: zstd decoder: %w", err)
	}

	log.Infof("opened module store at %s", path)
	return &Store{db: db, enc: enc, dec: dec}, nil
}

// Close releases the database and codec resources.
func (s *Store) Close() error {
	s.mu.Lock()
	s.enc.Close()
	s.dec.Close()
	s.mu.Unlock()
	return s.db.Close()
}

// Put stores a module image and returns its content hash. The image must
// carry a valid header; the store rejects blobs the engine cannot load.
// Storing the same bytes twice is a no-op returning the same hash.
func (s *Store) Put(image []byte) ([32]byte, error) {
	if _, err := vm.ReadHeader(image); err != nil {
		return [32]byte{}, err
	}
	hash := blake3.Sum256(image)

	s.mu.Lock()
	blob := s.enc.EncodeAll(image, nil)
	s.mu.Unlock()

	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketModules)
		if b.Get(hash[:]) != nil {
			return nil
		}
		return b.Put(hash[:], blob)
	})
	if err != nil {
		return [32]byte{}, fmt.Errorf("store: put: %w", err)
	}
	log.Debugf("stored module %x (%d bytes, %d compressed)", hash[:8], len(image), len(blob))
	return hash, nil
}

// Get returns the module image for a content hash.
func (s *Store) Get(hash [32]byte) ([]byte, error) {
	var blob []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketModules).Get(hash[:])
		if v == nil {
			return fmt.Errorf("%w: %x", ErrNoSuchModule, hash[:8])
		}
		blob = bytes.Clone(v)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	image, err := s.dec.DecodeAll(blob, nil)
	s.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("store: decompress %x: %w", hash[:8], err)
	}
	return image, nil
}

// Tag binds a name to a stored module hash. Re-tagging a name moves it.
func (s *Store) Tag(name string, hash [32]byte) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		if tx.Bucket(bucketModules).Get(hash[:]) == nil {
			return fmt.Errorf("%w: %x", ErrNoSuchModule, hash[:8])
		}
		return tx.Bucket(bucketNames).Put([]byte(name), hash[:])
	})
}

// Resolve returns the hash a name is bound to.
func (s *Store) Resolve(name string) ([32]byte, error) {
	var hash [32]byte
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketNames).Get([]byte(name))
		if v == nil {
			return fmt.Errorf("%w: %q", ErrNoSuchModule, name)
		}
		copy(hash[:], v)
		return nil
	})
	return hash, err
}

// GetByName resolves a name and loads its image in one step.
func (s *Store) GetByName(name string) ([]byte, error) {
	hash, err := s.Resolve(name)
	if err != nil {
		return nil, err
	}
	return s.Get(hash)
}

// Names returns all bound names with their hashes.
func (s *Store) Names() (map[string][32]byte, error) {
	out := make(map[string][32]byte)
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketNames).ForEach(func(k, v []byte) error {
			var hash [32]byte
			copy(hash[:], v)
			out[string(k)] = hash
			return nil
		})
	})
	return out, err
}

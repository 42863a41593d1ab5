// Package cache persists the last synced snapshot between invocations.
//
// The cache is a single record: the root hash the snapshot was built from
// and the flat entry list it decoded to. It is replaced wholesale on every
// successful resync and never partially updated. A record that fails to
// load for any reason is treated as absent; callers fall back to a full
// resync rather than surfacing a parse error.
package cache

import (
	"encoding/json"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"
)

// recordVersion is bumped whenever the record layout changes. A version
// mismatch on load is handled as a cold start.
const recordVersion = 1

// Record is the sole durable state owned by the store.
type Record struct {
	Version    int             `json:"version"`
	RootHash   string          `json:"root_hash"`
	Generation int64           `json:"generation"`
	FetchedAt  time.Time       `json:"fetched_at"`
	Entries    json.RawMessage `json:"entries"`
}

// Store reads and writes the cache record at a fixed path.
// One process per cache path at a time; atomic replace stands in for
// locking.
type Store struct {
	fs   afero.Fs
	path string
}

// NewStore creates a store persisting to path on the OS filesystem.
func NewStore(path string) *Store {
	return NewStoreWithFs(afero.NewOsFs(), path)
}

// NewStoreWithFs creates a store on an explicit filesystem.
func NewStoreWithFs(fs afero.Fs, path string) *Store {
	return &Store{fs: fs, path: path}
}

// Path returns the cache file location.
func (s *Store) Path() string { return s.path }

// Load reads the cached record. A missing, unreadable, or corrupt cache
// file yields (nil, nil): cold start, never an error.
func (s *Store) Load() (*Record, error) {
	compressed, err := afero.ReadFile(s.fs, s.path)
	if err != nil {
		return nil, nil
	}

	data, err := decompress(compressed)
	if err != nil {
		log.WithError(err).WithField("path", s.path).Warn("cache file corrupt, forcing cold resync")
		return nil, nil
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		log.WithError(err).WithField("path", s.path).Warn("cache record unreadable, forcing cold resync")
		return nil, nil
	}
	if rec.Version != recordVersion || rec.RootHash == "" {
		log.WithFields(log.Fields{"path": s.path, "version": rec.Version}).
			Warn("cache record version mismatch, forcing cold resync")
		return nil, nil
	}

	return &rec, nil
}

// Save atomically replaces the cache record. The previous record stays
// valid until the new one is fully written: the payload goes to a
// temporary file in the same directory which is then renamed into place.
func (s *Store) Save(rec *Record) error {
	rec.Version = recordVersion

	data, err := json.Marshal(rec)
	if err != nil {
		return errors.Wrap(err, "serialize cache record")
	}

	dir := filepath.Dir(s.path)
	if err := s.fs.MkdirAll(dir, 0755); err != nil {
		return errors.Wrapf(err, "create cache dir %s", dir)
	}

	tmp, err := afero.TempFile(s.fs, dir, "."+filepath.Base(s.path)+".*")
	if err != nil {
		return errors.Wrap(err, "create cache temp file")
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(compress(data)); err != nil {
		tmp.Close()
		s.fs.Remove(tmpName)
		return errors.Wrap(err, "write cache temp file")
	}
	if err := tmp.Close(); err != nil {
		s.fs.Remove(tmpName)
		return errors.Wrap(err, "close cache temp file")
	}

	if err := s.fs.Rename(tmpName, s.path); err != nil {
		s.fs.Remove(tmpName)
		return errors.Wrapf(err, "replace cache file %s", s.path)
	}

	return nil
}

var (
	zstdEncoder, _ = zstd.NewWriter(nil,
		zstd.WithEncoderLevel(zstd.SpeedDefault),
		zstd.WithEncoderConcurrency(1),
	)
	zstdDecoder, _ = zstd.NewReader(nil)
)

func compress(data []byte) []byte {
	return zstdEncoder.EncodeAll(data, make([]byte, 0, len(data)))
}

func decompress(data []byte) ([]byte, error) {
	return zstdDecoder.DecodeAll(data, nil)
}

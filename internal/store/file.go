package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/lazypower/saferoute/internal/ratings"
	"github.com/sirupsen/logrus"
)

// DefaultFilePath returns the default JSON store path: ~/.saferoute/ratings.json
func DefaultFilePath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home dir: %w", err)
	}
	return filepath.Join(home, ".saferoute", "ratings.json"), nil
}

// FileStore keeps the whole rating history in one JSON document.
//
// Every read-modify-write runs under an exclusive advisory lock on
// <path>.lock, so concurrent writers (goroutines or processes) cannot clobber
// each other's appended records. Writes go to a temp file that is renamed
// over the document, leaving either the old or the new file in place.
type FileStore struct {
	path string
	mu   sync.Mutex
	lock *flock.Flock
	log  logrus.FieldLogger
}

// NewFileStore returns a store backed by the JSON document at path.
// The file is created on the first save.
func NewFileStore(path string, logger logrus.FieldLogger) *FileStore {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &FileStore{
		path: path,
		lock: flock.New(path + ".lock"),
		log:  logger.WithFields(logrus.Fields{"store": BackendJSON, "path": path}),
	}
}

// Path returns the location of the JSON document.
func (s *FileStore) Path() string {
	return s.path
}

// SaveRating appends a rating under the store lock.
func (s *FileStore) SaveRating(nodeID string, score float64, user string, ts time.Time) (ratings.History, error) {
	if user == "" {
		user = ratings.Anonymous
	}
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	raw, err := json.Marshal(ratings.ToRecord(ratings.Rating{User: user, Score: score, Timestamp: ts}))
	if err != nil {
		return nil, fmt.Errorf("encode rating: %w", err)
	}

	var doc ratings.Document
	err = s.withLock(func() error {
		var readErr error
		doc, _, readErr = s.read()
		if readErr != nil {
			return readErr
		}
		doc.Nodes[nodeID] = append(doc.Nodes[nodeID], raw)
		return s.write(doc)
	})
	if err != nil {
		return nil, err
	}

	h, _ := ratings.FromDocument(doc)
	return h, nil
}

// LoadRatings reads, validates and deduplicates the document, then writes
// the compacted form back.
func (s *FileStore) LoadRatings() (ratings.History, []ratings.Warning, error) {
	var (
		h        ratings.History
		warnings []ratings.Warning
	)
	err := s.withLock(func() error {
		doc, exists, err := s.read()
		if err != nil {
			return err
		}
		if !exists {
			w := ratings.Warning{Err: ratings.ErrMissingStore}
			s.log.Warn(w.String())
			h, warnings = ratings.History{}, []ratings.Warning{w}
			return nil
		}

		valid, dropped := ratings.FromDocument(doc)
		for _, w := range dropped {
			s.log.WithFields(logrus.Fields{"node": w.NodeID, "user": w.User}).Warn(w.Err)
		}
		deduped, superseded := ratings.Dedup(valid)

		compacted, err := ratings.ToDocument(deduped)
		if err != nil {
			return err
		}
		if err := s.write(compacted); err != nil {
			return err
		}
		if n := superseded + len(dropped); n > 0 {
			s.log.Infof("compacted %d ratings (%d superseded, %d malformed)", n, superseded, len(dropped))
		}
		h, warnings = deduped, dropped
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return h, warnings, nil
}

// Backend names the storage flavour.
func (s *FileStore) Backend() string {
	return BackendJSON
}

// Close is a no-op; the lock is only held inside operations.
func (s *FileStore) Close() error {
	return nil
}

func (s *FileStore) withLock(fn func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("create store dir: %w", err)
	}
	if err := s.lock.Lock(); err != nil {
		return fmt.Errorf("lock ratings store: %w", err)
	}
	defer s.lock.Unlock()

	return fn()
}

// read returns the document and whether the file existed.
func (s *FileStore) read() (ratings.Document, bool, error) {
	doc := ratings.Document{Nodes: map[string][]json.RawMessage{}}

	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return doc, false, nil
	}
	if err != nil {
		return doc, false, fmt.Errorf("read ratings store: %w", err)
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return doc, true, fmt.Errorf("decode ratings store %s: %w", s.path, err)
	}
	if doc.Nodes == nil {
		doc.Nodes = map[string][]json.RawMessage{}
	}
	return doc, true, nil
}

func (s *FileStore) write(doc ratings.Document) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode ratings store: %w", err)
	}
	data = append(data, '\n')
	if err := writeFileAtomic(s.path, data); err != nil {
		return fmt.Errorf("write ratings store: %w", err)
	}
	return nil
}

// writeFileAtomic writes data to a temp file next to path, syncs it and
// renames it into place.
func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0644); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

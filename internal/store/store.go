// Package store persists rating submissions and compacts them to one
// current rating per user per node.
package store

import (
	"fmt"
	"time"

	"github.com/lazypower/saferoute/internal/ratings"
	"github.com/sirupsen/logrus"
)

const (
	BackendJSON   = "json"
	BackendSQLite = "sqlite"
)

// Ratings is the rating store contract shared by both backends.
type Ratings interface {
	// SaveRating appends a rating and persists it before returning. An empty
	// user is recorded as anonymous and a zero ts as the current UTC time.
	// The score is stored as given; validation happens on load.
	SaveRating(nodeID string, score float64, user string, ts time.Time) (ratings.History, error)

	// LoadRatings returns the deduplicated history, after writing the
	// compacted form back. Dropped records and a missing store are reported
	// as warnings, never as errors.
	LoadRatings() (ratings.History, []ratings.Warning, error)

	Backend() string
	Close() error
}

var (
	_ Ratings = (*FileStore)(nil)
	_ Ratings = (*DB)(nil)
)

// OpenBackend opens the store named by backend at path.
func OpenBackend(backend, path string, logger logrus.FieldLogger) (Ratings, error) {
	switch backend {
	case BackendJSON, "":
		return NewFileStore(path, logger), nil
	case BackendSQLite:
		db, err := Open(path, logger)
		if err != nil {
			return nil, err
		}
		return db, nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", backend)
	}
}

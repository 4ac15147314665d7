package ratings

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

// Anonymous is the user recorded when a submission carries no user.
const Anonymous = "anonymous"

// DefaultSafety is the neutral score of a node nobody has rated.
const DefaultSafety = 0.5

// ErrMissingStore is reported (as a warning, never as a failure) when the
// persisted store does not exist yet.
var ErrMissingStore = errors.New("no persisted ratings found, using defaults")

// Rating is one user's opinion of one node at one point in time.
type Rating struct {
	User      string
	Score     float64
	Timestamp time.Time
}

// History maps a node id (string form of the graph node id) to its ratings
// in submission order.
type History map[string][]Rating

// New builds a Rating, rejecting scores outside [0,1].
// An empty user is recorded as Anonymous.
func New(user string, score float64, ts time.Time) (Rating, error) {
	r := Rating{User: user, Score: score, Timestamp: ts}
	if r.User == "" {
		r.User = Anonymous
	}
	if err := r.Validate(); err != nil {
		return Rating{}, err
	}
	return r, nil
}

// Validate reports why a rating cannot take part in aggregation.
func (r Rating) Validate() error {
	if math.IsNaN(r.Score) || r.Score < 0 || r.Score > 1 {
		return fmt.Errorf("score %v outside [0,1]", r.Score)
	}
	if r.Timestamp.IsZero() {
		return errors.New("missing timestamp")
	}
	return nil
}

// timeLayouts are tried in order. Values without an offset are taken as UTC.
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02",
}

// ParseTime parses an ISO-8601 timestamp.
func ParseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, errors.New("empty timestamp")
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable timestamp %q", s)
}

// FormatTime is the persisted form of a timestamp.
func FormatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// Count returns the number of nodes and the total number of records.
func (h History) Count() (nodes, records int) {
	for _, rs := range h {
		records += len(rs)
	}
	return len(h), records
}

// Clone returns a copy that shares no slices with h.
func (h History) Clone() History {
	out := make(History, len(h))
	for id, rs := range h {
		out[id] = append([]Rating(nil), rs...)
	}
	return out
}

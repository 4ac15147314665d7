package ratings

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Record is the persisted shape of a rating. Pointer fields tell a missing
// key apart from a zero value.
type Record struct {
	User      *string  `json:"user,omitempty"`
	Score     *float64 `json:"score,omitempty"`
	Timestamp *string  `json:"timestamp,omitempty"`
}

// Document is the persisted store: {"nodes": {"<id>": [records...]}}.
type Document struct {
	Nodes map[string][]json.RawMessage `json:"nodes"`
}

// MalformedRecordError describes a persisted record that cannot become a Rating.
type MalformedRecordError struct {
	NodeID string
	User   string
	Reason string
}

func (e *MalformedRecordError) Error() string {
	return fmt.Sprintf("malformed rating for node %s (user %s): %s", e.NodeID, e.User, e.Reason)
}

// Warning is a non-fatal problem found while loading or aggregating.
type Warning struct {
	NodeID string
	User   string
	Err    error
}

func (w Warning) String() string {
	if w.NodeID == "" {
		return w.Err.Error()
	}
	return fmt.Sprintf("node %s: %v", w.NodeID, w.Err)
}

// IsMalformed reports whether the warning stems from a dropped record.
func (w Warning) IsMalformed() bool {
	var me *MalformedRecordError
	return errors.As(w.Err, &me)
}

// WarningFor wraps an error about a node, lifting the user out of a
// *MalformedRecordError when there is one.
func WarningFor(nodeID string, err error) Warning {
	w := Warning{NodeID: nodeID, Err: err}
	var me *MalformedRecordError
	if errors.As(err, &me) {
		w.User = me.User
	}
	return w
}

// ToRecord converts a Rating to its persisted shape.
func ToRecord(r Rating) Record {
	user := r.User
	score := r.Score
	ts := FormatTime(r.Timestamp)
	return Record{User: &user, Score: &score, Timestamp: &ts}
}

// ParseRecord validates a persisted record. Missing score or timestamp,
// unparseable timestamps and out-of-range scores yield a
// *MalformedRecordError. A missing user is read as Anonymous.
func ParseRecord(nodeID string, rec Record) (Rating, error) {
	user := Anonymous
	if rec.User != nil && *rec.User != "" {
		user = *rec.User
	}
	malformed := func(format string, args ...any) error {
		return &MalformedRecordError{NodeID: nodeID, User: user, Reason: fmt.Sprintf(format, args...)}
	}

	if rec.Score == nil {
		return Rating{}, malformed("missing score")
	}
	if rec.Timestamp == nil {
		return Rating{}, malformed("missing timestamp")
	}
	ts, err := ParseTime(*rec.Timestamp)
	if err != nil {
		return Rating{}, malformed("%v", err)
	}
	r, err := New(user, *rec.Score, ts)
	if err != nil {
		return Rating{}, malformed("%v", err)
	}
	return r, nil
}

// DecodeRecord parses one raw JSON record. A record that is not even a
// JSON object of the expected shape is malformed too.
func DecodeRecord(nodeID string, raw json.RawMessage) (Rating, error) {
	var rec Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return Rating{}, &MalformedRecordError{NodeID: nodeID, User: Anonymous, Reason: fmt.Sprintf("decode: %v", err)}
	}
	return ParseRecord(nodeID, rec)
}

// FromDocument validates every record of a document. Malformed records are
// dropped and reported; valid ones keep their order.
func FromDocument(doc Document) (History, []Warning) {
	h := make(History, len(doc.Nodes))
	var warnings []Warning
	for nodeID, raws := range doc.Nodes {
		for _, raw := range raws {
			r, err := DecodeRecord(nodeID, raw)
			if err != nil {
				warnings = append(warnings, WarningFor(nodeID, err))
				continue
			}
			h[nodeID] = append(h[nodeID], r)
		}
	}
	SortWarnings(warnings)
	return h, warnings
}

// ToDocument renders a history in its persisted shape.
func ToDocument(h History) (Document, error) {
	doc := Document{Nodes: make(map[string][]json.RawMessage, len(h))}
	for nodeID, rs := range h {
		raws := make([]json.RawMessage, 0, len(rs))
		for _, r := range rs {
			data, err := json.Marshal(ToRecord(r))
			if err != nil {
				return Document{}, fmt.Errorf("encode rating for node %s: %w", nodeID, err)
			}
			raws = append(raws, data)
		}
		doc.Nodes[nodeID] = raws
	}
	return doc, nil
}

package engine

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/lazypower/saferoute/internal/ratings"
)

// ErrUnknownNode marks a rated node id that is not in the graph.
var ErrUnknownNode = errors.New("node not in graph")

// Annotator is the part of the graph the aggregator writes to.
type Annotator interface {
	HasNode(id int64) bool
	UpdateNodeSafety(id int64, score float64)
}

// Report is the outcome of one ApplyAll run.
type Report struct {
	// Scores holds the computed score of every node id that had ratings,
	// whether or not it could be applied to the graph.
	Scores   map[string]float64
	Applied  int
	Warnings []ratings.Warning
	At       time.Time
}

// ComputeNodeScore is the decay-weighted average of a node's ratings.
// Ratings whose weight is zero are ignored; with no weight left the node
// keeps ratings.DefaultSafety. Malformed ratings are skipped.
func ComputeNodeScore(records []ratings.Rating, now time.Time, decayDays float64) float64 {
	score, _ := ScoreNode("", records, now, decayDays)
	return score
}

// ScoreNode is ComputeNodeScore that also reports skipped ratings.
func ScoreNode(nodeID string, records []ratings.Rating, now time.Time, decayDays float64) (float64, []ratings.Warning) {
	decayDays = normalizeDecay(decayDays)

	var sum, total float64
	var warnings []ratings.Warning
	for _, r := range records {
		if err := r.Validate(); err != nil {
			warnings = append(warnings, ratings.WarningFor(nodeID,
				&ratings.MalformedRecordError{NodeID: nodeID, User: r.User, Reason: err.Error()}))
			continue
		}
		w := Weight(AgeDays(now, r.Timestamp), decayDays)
		if w <= 0 {
			continue
		}
		sum += r.Score * w
		total += w
	}

	if total == 0 {
		return ratings.DefaultSafety, warnings
	}
	return sum / total, warnings
}

// ApplyAll scores every rated node and writes the result to the graph.
// Ids that are not integers or not in the graph are skipped with a warning;
// graph nodes without ratings are left alone. Nodes are visited in sorted
// order so the report is the same for the same inputs.
func ApplyAll(g Annotator, h ratings.History, now time.Time, decayDays float64) Report {
	rep := Report{Scores: make(map[string]float64, len(h)), At: now}

	ids := make([]string, 0, len(h))
	for id := range h {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, nodeID := range ids {
		score, warnings := ScoreNode(nodeID, h[nodeID], now, decayDays)
		rep.Warnings = append(rep.Warnings, warnings...)
		rep.Scores[nodeID] = score

		id, err := strconv.ParseInt(nodeID, 10, 64)
		if err != nil {
			rep.Warnings = append(rep.Warnings, ratings.Warning{
				NodeID: nodeID,
				Err:    fmt.Errorf("invalid node id: %w", err),
			})
			continue
		}
		if !g.HasNode(id) {
			rep.Warnings = append(rep.Warnings, ratings.Warning{NodeID: nodeID, Err: ErrUnknownNode})
			continue
		}
		g.UpdateNodeSafety(id, score)
		rep.Applied++
	}
	return rep
}

package engine

import (
	"fmt"
	"sync"
	"time"

	"github.com/lazypower/saferoute/internal/graph"
	"github.com/lazypower/saferoute/internal/ratings"
	"github.com/lazypower/saferoute/internal/store"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// Engine ties the rating store to the graph: it loads (and thereby
// compacts) the ratings, scores them and annotates the graph.
type Engine struct {
	Store     store.Ratings
	Graph     *graph.Graph
	DecayDays float64
	Now       func() time.Time

	log  logrus.FieldLogger
	run  sync.Mutex // serializes Recompute
	mu   sync.RWMutex
	last *Report
	cron *cron.Cron
}

// New creates a new Engine.
func New(s store.Ratings, g *graph.Graph, decayDays float64, logger logrus.FieldLogger) *Engine {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if g == nil {
		g = graph.New()
	}
	return &Engine{
		Store:     s,
		Graph:     g,
		DecayDays: normalizeDecay(decayDays),
		Now:       func() time.Time { return time.Now().UTC() },
		log:       logger.WithField("component", "engine"),
	}
}

// Recompute loads the store and applies every node's score to the graph.
// Only a store failure is returned as an error; bad records and unknown
// nodes end up in the report's warnings.
func (e *Engine) Recompute() (Report, error) {
	e.run.Lock()
	defer e.run.Unlock()

	h, loadWarnings, err := e.Store.LoadRatings()
	if err != nil {
		return Report{}, fmt.Errorf("load ratings: %w", err)
	}

	rep := ApplyAll(e.Graph, h, e.Now(), e.DecayDays)
	for _, w := range rep.Warnings {
		e.log.WithFields(logrus.Fields{"node": w.NodeID, "user": w.User}).Warn(w.Err)
	}
	rep.Warnings = append(loadWarnings, rep.Warnings...)

	nodes, records := h.Count()
	e.log.WithFields(logrus.Fields{
		"nodes":    nodes,
		"ratings":  records,
		"applied":  rep.Applied,
		"warnings": len(rep.Warnings),
	}).Info("recomputed safety scores")

	e.mu.Lock()
	e.last = &rep
	e.mu.Unlock()
	return rep, nil
}

// LastReport returns the most recent Recompute result.
func (e *Engine) LastReport() (Report, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.last == nil {
		return Report{}, false
	}
	return *e.last, true
}

// NodeScore scores a single node from the current store contents. It
// returns the node's deduplicated ratings alongside the score.
func (e *Engine) NodeScore(nodeID string) (float64, []ratings.Rating, error) {
	h, _, err := e.Store.LoadRatings()
	if err != nil {
		return 0, nil, fmt.Errorf("load ratings: %w", err)
	}
	rs := h[nodeID]
	score, _ := ScoreNode(nodeID, rs, e.Now(), e.DecayDays)
	return score, rs, nil
}

// StartSchedule runs Recompute once now and then on the given cron
// schedule (standard five fields or descriptors like "@every 1h").
func (e *Engine) StartSchedule(expr string) error {
	if _, err := e.Recompute(); err != nil {
		e.log.WithError(err).Error("initial recompute failed")
	}

	c := cron.New()
	if _, err := c.AddFunc(expr, func() {
		if _, err := e.Recompute(); err != nil {
			e.log.WithError(err).Error("scheduled recompute failed")
		}
	}); err != nil {
		return fmt.Errorf("schedule %q: %w", expr, err)
	}
	c.Start()

	e.mu.Lock()
	e.cron = c
	e.mu.Unlock()
	return nil
}

// Stop halts the schedule and waits for a running recompute to finish.
func (e *Engine) Stop() {
	e.mu.Lock()
	c := e.cron
	e.cron = nil
	e.mu.Unlock()
	if c != nil {
		<-c.Stop().Done()
	}
}

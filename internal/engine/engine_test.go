package engine

import (
	"errors"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/lazypower/saferoute/internal/graph"
	"github.com/lazypower/saferoute/internal/ratings"
	"github.com/lazypower/saferoute/internal/store"
)

func testEngine(t *testing.T, ids ...int64) *Engine {
	t.Helper()
	s := store.NewFileStore(filepath.Join(t.TempDir(), "ratings.json"), nil)
	e := New(s, graph.New(ids...), 30, nil)
	e.Now = func() time.Time { return now }
	return e
}

func TestRecompute(t *testing.T) {
	e := testEngine(t, 42, 7)

	seed := []struct {
		node  string
		score float64
		user  string
		age   float64
	}{
		{"42", 0.8, "alice", 20},
		{"42", 1.0, "alice", 0}, // supersedes the older alice rating
		{"42", 0.0, "bob", 15},
		{"123", 0.1, "carol", 0},
	}
	for _, s := range seed {
		if _, err := e.Store.SaveRating(s.node, s.score, s.user, daysAgo(s.age)); err != nil {
			t.Fatalf("SaveRating: %v", err)
		}
	}

	rep, err := e.Recompute()
	if err != nil {
		t.Fatalf("Recompute: %v", err)
	}

	got, _ := e.Graph.Safety(42)
	if math.Abs(got-0.667) > 0.01 {
		t.Errorf("node 42 = %.4f, want 0.667", got)
	}
	if got, _ := e.Graph.Safety(7); got != ratings.DefaultSafety {
		t.Errorf("unrated node 7 = %v, want default", got)
	}
	if rep.Applied != 1 {
		t.Errorf("Applied = %d, want 1", rep.Applied)
	}

	var unknown int
	for _, w := range rep.Warnings {
		if errors.Is(w.Err, ErrUnknownNode) {
			unknown++
		}
	}
	if unknown != 1 {
		t.Errorf("unknown-node warnings = %d, want 1 (node 123): %v", unknown, rep.Warnings)
	}

	last, ok := e.LastReport()
	if !ok || last.Applied != rep.Applied {
		t.Errorf("LastReport = %+v, %v", last, ok)
	}
}

func TestRecomputeEmptyStore(t *testing.T) {
	e := testEngine(t, 1)

	rep, err := e.Recompute()
	if err != nil {
		t.Fatalf("Recompute: %v", err)
	}
	if rep.Applied != 0 {
		t.Errorf("Applied = %d, want 0", rep.Applied)
	}
	if len(rep.Warnings) != 1 || !errors.Is(rep.Warnings[0].Err, ratings.ErrMissingStore) {
		t.Errorf("warnings = %v, want missing store", rep.Warnings)
	}
	if s, _ := e.Graph.Safety(1); s != ratings.DefaultSafety {
		t.Errorf("node 1 = %v, want default", s)
	}
}

func TestNodeScore(t *testing.T) {
	e := testEngine(t, 5)
	if _, err := e.Store.SaveRating("5", 0.25, "dan", daysAgo(0)); err != nil {
		t.Fatal(err)
	}

	score, rs, err := e.NodeScore("5")
	if err != nil {
		t.Fatalf("NodeScore: %v", err)
	}
	if score != 0.25 || len(rs) != 1 {
		t.Errorf("NodeScore = %v, %+v; want 0.25 with one rating", score, rs)
	}

	score, rs, err = e.NodeScore("6")
	if err != nil {
		t.Fatal(err)
	}
	if score != ratings.DefaultSafety || len(rs) != 0 {
		t.Errorf("unrated NodeScore = %v, %+v; want default", score, rs)
	}
}

func TestStartScheduleRejectsBadExpression(t *testing.T) {
	e := testEngine(t)
	if err := e.StartSchedule("every now and then"); err == nil {
		e.Stop()
		t.Fatal("expected error for bad schedule")
	}
}

func TestStartScheduleRunsImmediately(t *testing.T) {
	e := testEngine(t, 9)
	if _, err := e.Store.SaveRating("9", 0.1, "x", daysAgo(0)); err != nil {
		t.Fatal(err)
	}

	if err := e.StartSchedule("@every 1h"); err != nil {
		t.Fatalf("StartSchedule: %v", err)
	}
	defer e.Stop()

	if s, _ := e.Graph.Safety(9); s != 0.1 {
		t.Errorf("node 9 = %v, want 0.1 after initial recompute", s)
	}
}

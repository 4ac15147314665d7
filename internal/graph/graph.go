// Package graph holds the road-network node set and its safety annotations.
// The network itself comes from an external map loader; here a node is just
// an int64 id with a mutable safety slot.
package graph

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/lazypower/saferoute/internal/ratings"
)

// Graph is a node set with one safety annotation per node, defaulting to
// ratings.DefaultSafety.
type Graph struct {
	mu     sync.RWMutex
	order  []int64
	safety map[int64]float64
}

// New creates a graph with the given nodes. Duplicate ids are ignored.
func New(ids ...int64) *Graph {
	g := &Graph{safety: make(map[int64]float64, len(ids))}
	for _, id := range ids {
		if _, dup := g.safety[id]; dup {
			continue
		}
		g.order = append(g.order, id)
		g.safety[id] = ratings.DefaultSafety
	}
	return g
}

// NodeIDs returns the node ids in insertion order.
func (g *Graph) NodeIDs() []int64 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return append([]int64(nil), g.order...)
}

// Len returns the number of nodes.
func (g *Graph) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.order)
}

// HasNode reports whether id is part of the graph.
func (g *Graph) HasNode(id int64) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.safety[id]
	return ok
}

// Safety returns the annotation of a node.
func (g *Graph) Safety(id int64) (float64, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	s, ok := g.safety[id]
	return s, ok
}

// UpdateNodeSafety sets the annotation of a known node. Unknown ids are
// ignored.
func (g *Graph) UpdateNodeSafety(id int64, score float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.safety[id]; ok {
		g.safety[id] = score
	}
}

// Annotations returns a snapshot of every node's safety keyed by the string
// form of its id.
func (g *Graph) Annotations() map[string]float64 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make(map[string]float64, len(g.safety))
	for id, s := range g.safety {
		out[strconv.FormatInt(id, 10)] = s
	}
	return out
}

// nodeList is the file the map loader exports: {"nodes": [id, ...]}.
type nodeList struct {
	Nodes []int64 `json:"nodes"`
}

// LoadNodes reads a node list file and builds a graph from it.
func LoadNodes(path string) (*Graph, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read node list: %w", err)
	}
	var nl nodeList
	if err := json.Unmarshal(data, &nl); err != nil {
		return nil, fmt.Errorf("decode node list %s: %w", path, err)
	}
	return New(nl.Nodes...), nil
}

// WriteAnnotations writes {"nodes": {"<id>": safety}} for the map renderer.
func (g *Graph) WriteAnnotations(path string) error {
	data, err := json.MarshalIndent(struct {
		Nodes map[string]float64 `json:"nodes"`
	}{g.Annotations()}, "", "  ")
	if err != nil {
		return fmt.Errorf("encode annotations: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create annotations dir: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, append(data, '\n'), 0644); err != nil {
		return fmt.Errorf("write annotations: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("write annotations: %w", err)
	}
	return nil
}

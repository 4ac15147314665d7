package ratings

import (
	"sort"
)

// Dedup reduces every node's history to at most one rating per user: the
// one with the latest timestamp. When a user has several ratings with the
// same timestamp, the last one in submission order wins. Surviving ratings
// keep their relative submission order, so Dedup(Dedup(h)) equals Dedup(h).
//
// Dedup returns the reduced history and how many ratings were dropped.
// The input is not modified.
func Dedup(h History) (History, int) {
	out := make(History, len(h))
	dropped := 0
	for nodeID, rs := range h {
		kept := DedupNode(rs)
		dropped += len(rs) - len(kept)
		if len(kept) > 0 {
			out[nodeID] = kept
		}
	}
	return out, dropped
}

// DedupNode applies the Dedup policy to a single node's ratings.
func DedupNode(rs []Rating) []Rating {
	idx := KeptIndices(rs)
	kept := make([]Rating, len(idx))
	for k, i := range idx {
		kept[k] = rs[i]
	}
	return kept
}

// KeptIndices returns, in ascending order, the positions in rs that survive
// the Dedup policy.
func KeptIndices(rs []Rating) []int {
	latest := make(map[string]int, len(rs))
	for i, r := range rs {
		j, seen := latest[r.User]
		if !seen || !r.Timestamp.Before(rs[j].Timestamp) {
			latest[r.User] = i
		}
	}

	idx := make([]int, 0, len(latest))
	for _, i := range latest {
		idx = append(idx, i)
	}
	sort.Ints(idx)
	return idx
}

// SortWarnings orders warnings by node id so reports are stable across runs.
func SortWarnings(ws []Warning) {
	sort.SliceStable(ws, func(i, j int) bool {
		return ws[i].NodeID < ws[j].NodeID
	})
}

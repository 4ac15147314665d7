package engine

import (
	"fmt"
	"math"
	"math/rand"
	"strconv"
	"time"

	"github.com/lazypower/saferoute/internal/store"
)

// GenerateOptions controls synthetic rating generation.
type GenerateOptions struct {
	Users int // raters named user_1..user_N
	Nodes int // nodes sampled from the candidates
	Days  int // timestamps fall within the last Days days
	Now   time.Time
	Rand  *rand.Rand
}

// Generate writes synthetic ratings: every user rates the same random
// sample of candidate nodes with a two-decimal score. It returns the
// sampled node ids.
func Generate(s store.Ratings, candidates []int64, opts GenerateOptions) ([]int64, error) {
	if opts.Users <= 0 || opts.Nodes <= 0 {
		return nil, fmt.Errorf("users and nodes must be positive (got %d, %d)", opts.Users, opts.Nodes)
	}
	if opts.Days < 0 {
		return nil, fmt.Errorf("days must not be negative (got %d)", opts.Days)
	}
	if opts.Rand == nil {
		opts.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if opts.Now.IsZero() {
		opts.Now = time.Now().UTC()
	}

	n := min(opts.Nodes, len(candidates))
	sample := make([]int64, len(candidates))
	copy(sample, candidates)
	opts.Rand.Shuffle(len(sample), func(i, j int) { sample[i], sample[j] = sample[j], sample[i] })
	sample = sample[:n]

	for u := 1; u <= opts.Users; u++ {
		user := fmt.Sprintf("user_%d", u)
		for _, id := range sample {
			score := math.Round(opts.Rand.Float64()*100) / 100
			ts := opts.Now.Add(-time.Duration(opts.Rand.Intn(opts.Days+1)) * 24 * time.Hour)
			if _, err := s.SaveRating(strconv.FormatInt(id, 10), score, user, ts); err != nil {
				return nil, fmt.Errorf("save rating for node %d: %w", id, err)
			}
		}
	}
	return sample, nil
}

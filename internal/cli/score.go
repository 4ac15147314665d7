package cli

import (
	"fmt"
	"math/rand"
	"strconv"
	"time"

	"github.com/lazypower/saferoute/internal/engine"
	"github.com/lazypower/saferoute/internal/graph"
	"github.com/lazypower/saferoute/internal/ratings"
	"github.com/spf13/cobra"
)

// loadGraph reads the node list at path. With no path, the graph is built
// from the integer node ids present in h.
func loadGraph(path string, h ratings.History) (*graph.Graph, error) {
	if path != "" {
		return graph.LoadNodes(path)
	}
	var ids []int64
	for id := range h {
		if n, err := strconv.ParseInt(id, 10, 64); err == nil {
			ids = append(ids, n)
		}
	}
	return graph.New(ids...), nil
}

// --- score command ---

var (
	scoreGraph     string
	scoreOut       string
	scoreDecayDays float64
	scoreNow       string
)

var scoreCmd = &cobra.Command{
	Use:   "score",
	Short: "Compute safety scores and annotate the graph",
	Long: "Load the store, score every rated node with linear time decay, and apply the " +
		"scores to the graph. With --out the annotated safety values are written as JSON.",
	RunE: runScore,
}

func runScore(cmd *cobra.Command, args []string) error {
	graphPath := firstNonEmpty(scoreGraph, cfg.Graph.NodesPath)
	outPath := firstNonEmpty(scoreOut, cfg.Graph.AnnotationsPath)
	decay := cfg.Scoring.DecayDays
	if cmd.Flags().Changed("decay-days") {
		decay = scoreDecayDays
	}

	now := time.Now().UTC()
	if scoreNow != "" {
		var err error
		if now, err = ratings.ParseTime(scoreNow); err != nil {
			return err
		}
	}

	s, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	h, warnings, err := s.LoadRatings()
	if err != nil {
		return fmt.Errorf("load ratings: %w", err)
	}
	g, err := loadGraph(graphPath, h)
	if err != nil {
		return err
	}

	rep := engine.ApplyAll(g, h, now, decay)
	printWarnings(cmd.ErrOrStderr(), append(warnings, rep.Warnings...))

	out := cmd.OutOrStdout()
	for _, id := range sortedNodeIDs(h) {
		fmt.Fprintf(out, "%-12s %.3f  (%d rating(s))\n", id, rep.Scores[id], len(h[id]))
	}
	fmt.Fprintf(out, "Applied %d of %d rated node(s) to a graph of %d node(s).\n", rep.Applied, len(h), g.Len())

	if outPath != "" {
		if err := g.WriteAnnotations(outPath); err != nil {
			return err
		}
		fmt.Fprintf(out, "Wrote annotations to %s\n", outPath)
	}
	return nil
}

// --- generate command ---

var (
	genUsers int
	genNodes int
	genDays  int
	genGraph string
	genSeed  int64
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Write synthetic ratings for testing",
	Long: "Each of --users users rates the same random sample of --nodes graph nodes with a " +
		"random score, timestamped within the last --days days. Scores are then applied.",
	RunE: runGenerate,
}

func runGenerate(cmd *cobra.Command, args []string) error {
	graphPath := firstNonEmpty(genGraph, cfg.Graph.NodesPath)

	var g *graph.Graph
	if graphPath != "" {
		var err error
		if g, err = graph.LoadNodes(graphPath); err != nil {
			return err
		}
	} else {
		ids := make([]int64, genNodes)
		for i := range ids {
			ids[i] = int64(i + 1)
		}
		g = graph.New(ids...)
	}

	s, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	opts := engine.GenerateOptions{Users: genUsers, Nodes: genNodes, Days: genDays}
	if cmd.Flags().Changed("seed") {
		opts.Rand = rand.New(rand.NewSource(genSeed))
	}
	sample, err := engine.Generate(s, g.NodeIDs(), opts)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Users: %d | Nodes rated: %d\n", genUsers, len(sample))

	eng := engine.New(s, g, cfg.Scoring.DecayDays, logger)
	rep, err := eng.Recompute()
	if err != nil {
		return err
	}
	printWarnings(cmd.ErrOrStderr(), rep.Warnings)
	fmt.Fprintf(cmd.OutOrStdout(), "Applied scores to %d node(s).\n", rep.Applied)

	if cfg.Graph.AnnotationsPath != "" {
		return g.WriteAnnotations(cfg.Graph.AnnotationsPath)
	}
	return nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func init() {
	scoreCmd.Flags().StringVar(&scoreGraph, "graph", "", "Node list JSON ({\"nodes\":[...]}); default graph.nodes_path")
	scoreCmd.Flags().StringVar(&scoreOut, "out", "", "Write annotations JSON here; default graph.annotations_path")
	scoreCmd.Flags().Float64Var(&scoreDecayDays, "decay-days", engine.DefaultDecayDays, "Days until a rating stops counting")
	scoreCmd.Flags().StringVar(&scoreNow, "now", "", "Score as of this time (RFC3339; default now)")

	generateCmd.Flags().IntVarP(&genUsers, "users", "y", 5, "Number of users")
	generateCmd.Flags().IntVarP(&genNodes, "nodes", "z", 10, "Number of nodes each user rates")
	generateCmd.Flags().IntVar(&genDays, "days", 60, "Spread timestamps over this many past days")
	generateCmd.Flags().StringVar(&genGraph, "graph", "", "Node list JSON to sample from; default graph.nodes_path or ids 1..nodes")
	generateCmd.Flags().Int64Var(&genSeed, "seed", 0, "Random seed for repeatable output")
}

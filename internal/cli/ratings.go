package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/lazypower/saferoute/internal/client"
	"github.com/lazypower/saferoute/internal/ratings"
	"github.com/spf13/cobra"
)

func printWarnings(w io.Writer, ws []ratings.Warning) {
	for _, warn := range ws {
		fmt.Fprintf(w, "warning: %s\n", warn)
	}
}

func sortedNodeIDs(h ratings.History) []string {
	ids := make([]string, 0, len(h))
	for id := range h {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// --- rate command ---

var (
	rateUser   string
	rateAt     string
	rateServer string
)

var rateCmd = &cobra.Command{
	Use:   "rate <node> <score>",
	Short: "Record a safety rating for a node",
	Long: "Record a safety rating in [0,1] for a map node. Writes to the configured store, " +
		"or to a running server when --server is given.",
	Args: cobra.ExactArgs(2),
	RunE: runRate,
}

func runRate(cmd *cobra.Command, args []string) error {
	nodeID := args[0]
	score, err := strconv.ParseFloat(args[1], 64)
	if err != nil {
		return fmt.Errorf("score %q: %w", args[1], err)
	}

	ts := time.Now().UTC()
	if rateAt != "" {
		if ts, err = ratings.ParseTime(rateAt); err != nil {
			return err
		}
	}

	r, err := ratings.New(rateUser, score, ts)
	if err != nil {
		return err
	}

	var stored []ratings.Rating
	if rateServer != "" {
		stored, err = client.New(rateServer).SaveRating(nodeID, r.Score, r.User, r.Timestamp)
		if err != nil {
			return err
		}
	} else {
		s, err := openStore()
		if err != nil {
			return err
		}
		defer s.Close()

		h, err := s.SaveRating(nodeID, r.Score, r.User, r.Timestamp)
		if err != nil {
			return fmt.Errorf("save rating: %w", err)
		}
		stored = h[nodeID]
	}

	fmt.Fprintf(cmd.OutOrStdout(), "rated node %s: %.2f by %s (%d rating(s) on record)\n",
		nodeID, r.Score, r.User, len(stored))
	return nil
}

// --- ratings command ---

var ratingsCmd = &cobra.Command{
	Use:   "ratings [node]",
	Short: "List current ratings",
	Long:  "Load the store, keeping only the latest rating per user per node, and list the result.",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runRatings,
}

func runRatings(cmd *cobra.Command, args []string) error {
	s, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	h, warnings, err := s.LoadRatings()
	if err != nil {
		return fmt.Errorf("load ratings: %w", err)
	}
	printWarnings(cmd.ErrOrStderr(), warnings)

	ids := sortedNodeIDs(h)
	if len(args) == 1 {
		if _, ok := h[args[0]]; !ok {
			fmt.Fprintf(cmd.OutOrStdout(), "No ratings for node %s.\n", args[0])
			return nil
		}
		ids = []string{args[0]}
	}
	if len(ids) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No ratings found.")
		return nil
	}

	out := cmd.OutOrStdout()
	for _, id := range ids {
		fmt.Fprintf(out, "node %s\n", id)
		for _, r := range h[id] {
			fmt.Fprintf(out, "  %-16s %.2f  %s (%s)\n", r.User, r.Score,
				ratings.FormatTime(r.Timestamp), humanize.Time(r.Timestamp))
		}
	}
	return nil
}

// --- import command ---

var importCmd = &cobra.Command{
	Use:   "import <ratings.json>",
	Short: "Copy a JSON rating file into the configured store",
	Long: "Read a JSON rating document, keep the latest rating per user per node, " +
		"and append each one to the configured store. The source file is not modified.",
	Args: cobra.ExactArgs(1),
	RunE: runImport,
}

func runImport(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("read %s: %w", args[0], err)
	}
	var doc ratings.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("parse %s: %w", args[0], err)
	}

	h, warnings := ratings.FromDocument(doc)
	printWarnings(cmd.ErrOrStderr(), warnings)
	h, _ = ratings.Dedup(h)

	s, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	var n int
	for _, id := range sortedNodeIDs(h) {
		for _, r := range h[id] {
			if _, err := s.SaveRating(id, r.Score, r.User, r.Timestamp); err != nil {
				return fmt.Errorf("import node %s: %w", id, err)
			}
			n++
		}
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Imported %d rating(s) for %d node(s) into %s store.\n", n, len(h), s.Backend())
	return nil
}

func init() {
	rateCmd.Flags().StringVarP(&rateUser, "user", "u", ratings.Anonymous, "User submitting the rating")
	rateCmd.Flags().StringVar(&rateAt, "at", "", "Rating time (RFC3339; default now)")
	rateCmd.Flags().StringVar(&rateServer, "server", "", "Submit to a running server at this URL")
}

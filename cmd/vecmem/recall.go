package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/hupe1980/vecmem/index"
	"github.com/hupe1980/vecmem/index/hnsw"
	"github.com/hupe1980/vecmem/model"
	"github.com/hupe1980/vecmem/testutil"
)

type recallFlags struct {
	n, dim, queries, k int
	m, efc, efs        int
	seed               int64
	min                float64
	deleteRatio        float64
}

func newRecallCmd() *cobra.Command {
	var f recallFlags

	cmd := &cobra.Command{
		Use:   "recall",
		Short: "Measure graph index recall against exact search on random data",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRecall(cmd, f)
		},
	}

	cmd.Flags().IntVar(&f.n, "n", 2000, "number of vectors")
	cmd.Flags().IntVar(&f.dim, "dim", 32, "vector dimension")
	cmd.Flags().IntVar(&f.queries, "queries", 50, "number of queries")
	cmd.Flags().IntVar(&f.k, "k", 10, "results per query")
	cmd.Flags().IntVar(&f.m, "m", hnsw.DefaultOptions.M, "graph connectivity")
	cmd.Flags().IntVar(&f.efc, "ef-construction", hnsw.DefaultOptions.EFConstruction, "candidate list size while inserting")
	cmd.Flags().IntVar(&f.efs, "ef-search", hnsw.DefaultOptions.EFSearch, "candidate list size while searching")
	cmd.Flags().Int64Var(&f.seed, "seed", 1, "random seed")
	cmd.Flags().Float64Var(&f.min, "min", 0.9, "fail when mean recall is below this value")
	cmd.Flags().Float64Var(&f.deleteRatio, "delete", 0, "fraction of vectors deleted before querying")

	return cmd
}

func runRecall(cmd *cobra.Command, f recallFlags) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	if f.n <= 0 || f.dim <= 0 || f.queries <= 0 || f.k <= 0 {
		return fmt.Errorf("n, dim, queries and k must be positive")
	}
	if f.deleteRatio < 0 || f.deleteRatio >= 1 {
		return fmt.Errorf("delete must be within [0, 1)")
	}

	g, err := hnsw.New(func(o *hnsw.Options) {
		o.Dimension = f.dim
		o.M = f.m
		o.EFConstruction = f.efc
		o.EFSearch = f.efs
		o.Seed = f.seed
	})
	if err != nil {
		return err
	}
	defer g.Close()

	rng := testutil.NewRNG(f.seed)
	vecs := rng.UnitVectors(f.n, f.dim)

	start := time.Now()
	for i, v := range vecs {
		if _, err := g.Add(ctx, model.Record{ID: testutil.ID(i), Vector: v}); err != nil {
			return err
		}
	}
	buildTime := time.Since(start)

	// The first vectors are deleted so rebuilds and tombstone bridging are exercised.
	deleted := int(float64(f.n) * f.deleteRatio)
	for i := 0; i < deleted; i++ {
		if _, err := g.Delete(ctx, testutil.ID(i)); err != nil {
			return err
		}
	}
	live := vecs[deleted:]

	queries := rng.UnitVectors(f.queries, f.dim)
	opts := index.DefaultSearchOptions()
	opts.Limit = f.k

	var total float64
	start = time.Now()
	for _, q := range queries {
		matches, err := g.Search(ctx, q, opts)
		if err != nil {
			return err
		}
		approx := make([]testutil.SearchResult, len(matches))
		for i, m := range matches {
			approx[i] = testutil.SearchResult{ID: m.ID, Score: m.Score}
		}
		total += testutil.ComputeRecall(shiftIDs(testutil.BruteForceSearch(live, q, f.k), deleted), approx)
	}
	queryTime := time.Since(start)

	recall := total / float64(f.queries)
	st := g.Stats()

	printHeader(out, "Graph recall")
	fmt.Fprintf(out, "vectors:    %d x %d\n", f.n, f.dim)
	fmt.Fprintf(out, "params:     M=%d efConstruction=%d efSearch=%d\n", f.m, f.efc, f.efs)
	fmt.Fprintf(out, "graph:      live=%d tombstones=%d levels=%d rebuilds=%d\n", st.Live, st.Tombstones, st.MaxLevel+1, st.Rebuilds)
	fmt.Fprintf(out, "build:      %s\n", buildTime.Round(time.Millisecond))
	fmt.Fprintf(out, "query:      %s/query\n", (queryTime / time.Duration(f.queries)).Round(time.Microsecond))
	printCheck(out, recall >= f.min, "recall@%d = %.4f (min %.2f)", f.k, recall, f.min)

	if recall < f.min {
		return fmt.Errorf("recall %.4f below %.2f", recall, f.min)
	}
	return nil
}

// shiftIDs renames ground-truth ids computed over vecs[offset:] back to the
// ids used at insertion.
func shiftIDs(res []testutil.SearchResult, offset int) []testutil.SearchResult {
	if offset == 0 {
		return res
	}
	for i := range res {
		n, err := strconv.Atoi(strings.TrimPrefix(res[i].ID, "vec-"))
		if err == nil {
			res[i].ID = testutil.ID(n + offset)
		}
	}
	return res
}

// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pdiddy/food-resolver/internal/search"
	"github.com/pdiddy/food-resolver/pkg/types"
)

var searchCmd = &cobra.Command{
	Use:   "search [food name]",
	Short: "Search every enabled nutrition source for a food",
	Long: `Search embeds the food name (with --brand when given), queries every
enabled source concurrently and prints each source's shortlist: candidates
at or above the source's similarity threshold, best first, capped at top-k.
A source that fails is reported and contributes nothing.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSearch,
}

func init() {
	searchCmd.Flags().String("brand", "", "brand or restaurant name")
	searchCmd.Flags().Int("top-k", 0, "shortlist size per source (0 = configured default)")
	searchCmd.Flags().StringSlice("source", nil, "limit the search to these sources (USDA, NUTRITIONIX, FATSECRET, LOCAL)")
	addFormatFlag(searchCmd)

	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	brand, _ := cmd.Flags().GetString("brand")
	topK, _ := cmd.Flags().GetInt("top-k")
	only, _ := cmd.Flags().GetStringSlice("source")

	ctx := context.Background()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	sources := a.sources
	if len(only) > 0 {
		sources = nil
		for _, name := range only {
			fs, err := types.ParseFoodSource(name)
			if err != nil {
				return err
			}
			s, err := a.source(fs)
			if err != nil {
				return err
			}
			sources = append(sources, s)
		}
	}

	cfg := a.cfg.Search
	if topK > 0 {
		cfg.TopK = topK
	}

	item := types.FoodExtractionItem{SearchName: strings.Join(args, " "), Brand: brand, IsBranded: brand != ""}
	q, err := search.NewQuery(ctx, a.embeddings, a.cfg.Embedding.Model, item)
	if err != nil {
		return err
	}
	out, err := search.Search(ctx, q, sources, cfg, a.log.Named("search"))
	if err != nil {
		return err
	}

	format, _ := cmd.Flags().GetString("format")
	if strings.EqualFold(format, "json") {
		return search.FormatJSON(out, os.Stdout)
	}
	return writeOutput(cmd, os.Stdout, out.Shortlists, func(w io.Writer) {
		search.FormatTable(out, cfg.Priority, w)
	})
}

// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pdiddy/food-resolver/internal/pipeline"
)

var resolveCmd = &cobra.Command{
	Use:   "resolve [meal description]",
	Short: "Resolve a meal description into canonical nutrition records",
	Long: `Resolve extracts the food items of a meal description, searches every
enabled source for each item, normalizes the best match and, when serving
weights are missing, completes them from web-grounded model answers.
Resolved items are mirrored into the local database so later lookups can
match them as LOCAL candidates.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runResolve,
}

func init() {
	resolveCmd.Flags().Bool("no-complete", false, "skip missing-info completion")
	resolveCmd.Flags().Bool("no-save", false, "do not mirror resolved items into the local database")
	resolveCmd.Flags().Int("concurrency", pipeline.DefaultMaxConcurrent, "items resolved at once")
	addFormatFlag(resolveCmd)

	rootCmd.AddCommand(resolveCmd)
}

func runResolve(cmd *cobra.Command, args []string) error {
	noComplete, _ := cmd.Flags().GetBool("no-complete")
	noSave, _ := cmd.Flags().GetBool("no-save")
	concurrency, _ := cmd.Flags().GetInt("concurrency")

	ctx := context.Background()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	r := a.resolver(!noComplete, !noSave)
	r.MaxConcurrent = concurrency

	res, err := r.Resolve(ctx, strings.Join(args, " "))
	if err != nil {
		return err
	}
	if err := writeOutput(cmd, os.Stdout, res, func(w io.Writer) { formatResolution(w, res) }); err != nil {
		return err
	}
	if res.HasFailures() {
		fmt.Fprintf(os.Stderr, "%d of %d item(s) unresolved\n", res.Unresolved(), len(res.Items))
	}
	return nil
}

func formatResolution(w io.Writer, res pipeline.Result) {
	if len(res.Items) == 0 {
		fmt.Fprintln(w, "No food items found.")
		return
	}
	fmt.Fprintf(w, "%-30s  %-30s  %-12s  %-8s  %-7s  %-7s  %s\n",
		"Request", "Match", "Source", "Grams", "kcal", "Score", "Status")
	fmt.Fprintln(w, strings.Repeat("-", 115))
	for _, it := range res.Items {
		match, source, grams, kcal, score := "-", "-", "-", "-", "-"
		if it.Candidate != nil {
			source = string(it.Candidate.Source)
			score = fmt.Sprintf("%.3f", it.Candidate.Similarity)
		}
		if it.Item != nil {
			match = it.Item.Name
			if it.Item.Brand != "" {
				match += " (" + it.Item.Brand + ")"
			}
			grams = orDash(it.Item.DefaultServingWeightGram)
			kcal = fmt.Sprintf("%.0f", it.Item.KcalPerServing)
		}
		fmt.Fprintf(w, "%-30s  %-30s  %-12s  %-8s  %-7s  %-7s  %s\n",
			truncate(it.Request.FullDescriptiveMessage, 30), truncate(match, 30), source, grams, kcal, score, status(it))
	}
	fmt.Fprintf(w, "\n%d resolved, %d unresolved\n", res.Resolved(), res.Unresolved())
}

func status(it pipeline.Resolution) string {
	switch {
	case it.Err != nil:
		return "error: " + it.Err.Error()
	case it.Unresolved:
		return "no match"
	case it.CompletionErr != nil:
		return "partial"
	case it.Completed:
		return "completed"
	}
	return "ok"
}

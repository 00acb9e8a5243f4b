// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pdiddy/food-resolver/internal/complete"
	"github.com/pdiddy/food-resolver/internal/llm"
	"github.com/pdiddy/food-resolver/internal/normalize"
	"github.com/pdiddy/food-resolver/pkg/types"
)

var completeCmd = &cobra.Command{
	Use:   "complete SOURCE ID",
	Short: "Fetch one food, normalize it and fill its missing fields",
	Long: `Complete fetches a food by source and external id, normalizes it and,
when its serving weights are unknown (or with --force), fills them from a
web-grounded model answer. Known values are never overwritten.

With --prompt, complete instead streams a raw model answer to stdout, which
is useful for checking provider failover and the response cache.`,
	Args: func(cmd *cobra.Command, args []string) error {
		if p, _ := cmd.Flags().GetString("prompt"); p != "" {
			return cobra.NoArgs(cmd, args)
		}
		return cobra.ExactArgs(2)(cmd, args)
	},
	RunE: runComplete,
}

func init() {
	completeCmd.Flags().Bool("force", false, "complete even when no field is missing")
	completeCmd.Flags().String("prompt", "", "stream a raw completion for this prompt instead")
	completeCmd.Flags().String("system", "", "system prompt used with --prompt")
	addFormatFlag(completeCmd)

	rootCmd.AddCommand(completeCmd)
}

func runComplete(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if prompt, _ := cmd.Flags().GetString("prompt"); prompt != "" {
		system, _ := cmd.Flags().GetString("system")
		return streamPrompt(ctx, a, system, prompt, os.Stdout)
	}

	name, err := types.ParseFoodSource(args[0])
	if err != nil {
		return err
	}
	src, err := a.source(name)
	if err != nil {
		return err
	}
	payload, err := src.Fetch(ctx, args[1])
	if err != nil {
		return err
	}
	item, err := normalize.Normalize(payload)
	if err != nil {
		return err
	}

	force, _ := cmd.Flags().GetBool("force")
	if force || complete.NeedsCompletion(item) {
		fmt.Fprintf(os.Stderr, "completing %s ...\n", item.Name)
		done, err := a.completer.Complete(ctx, item)
		if err != nil {
			return fmt.Errorf("completing %s: %w", item.Name, err)
		}
		item = done
	} else {
		fmt.Fprintln(os.Stderr, "nothing to complete")
	}
	return writeOutput(cmd, os.Stdout, item, func(w io.Writer) { formatItem(w, item) })
}

func streamPrompt(ctx context.Context, a *app, system, prompt string, w io.Writer) error {
	req := llm.UserPrompt(system, prompt)
	req.Provider = a.cfg.Completion.Provider
	req.Model = a.cfg.Completion.Model
	chunks, err := a.llm.Stream(ctx, req)
	if err != nil {
		return err
	}
	for c := range chunks {
		if c.Err != nil {
			return c.Err
		}
		fmt.Fprint(w, c.Text)
	}
	fmt.Fprintln(w)
	return nil
}

func formatItem(w io.Writer, item *types.CanonicalFoodItem) {
	fmt.Fprintf(w, "%s", item.Name)
	if item.Brand != "" {
		fmt.Fprintf(w, " (%s)", item.Brand)
	}
	fmt.Fprintf(w, "  [%s %s]\n", item.Source, item.ExternalID)
	if item.Description != "" {
		fmt.Fprintln(w, item.Description)
	}
	if item.IsLiquid {
		fmt.Fprintf(w, "Default serving: %s ml", orDash(item.DefaultServingLiquidMl))
	} else {
		fmt.Fprintf(w, "Default serving: %s g", orDash(item.DefaultServingWeightGram))
	}
	fmt.Fprintf(w, "\nPer serving: %.0f kcal, %.1f g protein, %.1f g fat, %.1f g carbs\n",
		item.KcalPerServing, item.ProteinPerServing, item.TotalFatPerServing, item.CarbPerServing)

	if len(item.Servings) > 0 {
		fmt.Fprintf(w, "\n%-4s  %-30s  %s\n", "ID", "Serving", "Grams")
		fmt.Fprintln(w, strings.Repeat("-", 45))
		for _, s := range item.Servings {
			fmt.Fprintf(w, "%-4d  %-30s  %s\n", s.ID, truncate(s.Name, 30), orDash(s.WeightGram))
		}
	}
	if len(item.Nutrients) > 0 {
		fmt.Fprintln(w)
		for _, n := range item.Nutrients {
			fmt.Fprintf(w, "%-20s  %s %s\n", n.Name, orDash(n.AmountPerDefaultServing), n.Unit)
		}
	}
}

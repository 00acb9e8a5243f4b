// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pdiddy/food-resolver/pkg/types"
)

var extractCmd = &cobra.Command{
	Use:   "extract [meal description]",
	Short: "Split a meal description into atomic food items",
	Long: `Extract asks the configured language model to split a meal description
into food items, each with a database search name, the user's wording
including quantity, and the brand when one is named. Photos of the meal
may be attached with --image.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runExtract,
}

func init() {
	extractCmd.Flags().StringSlice("image", nil, "image URL sent along with the message (repeatable)")
	addFormatFlag(extractCmd)

	rootCmd.AddCommand(extractCmd)
}

func runExtract(cmd *cobra.Command, args []string) error {
	images, _ := cmd.Flags().GetStringSlice("image")

	ctx := context.Background()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	msg := strings.Join(args, " ")
	var res *types.ExtractionResult
	if len(images) > 0 {
		res, err = a.extractor.ExtractWithImages(ctx, msg, images)
	} else {
		res, err = a.extractor.Extract(ctx, msg)
	}
	if err != nil {
		return err
	}
	return writeOutput(cmd, os.Stdout, res, func(w io.Writer) { formatExtraction(w, res) })
}

func formatExtraction(w io.Writer, res *types.ExtractionResult) {
	if !res.ContainsValidFoodItems {
		fmt.Fprintln(w, "No food items found.")
		return
	}
	fmt.Fprintf(w, "%-4s  %-35s  %-20s  %s\n", "#", "Search name", "Brand", "Message")
	fmt.Fprintln(w, strings.Repeat("-", 100))
	for i, it := range res.Items {
		fmt.Fprintf(w, "%-4d  %-35s  %-20s  %s\n", i+1, truncate(it.SearchName, 35), truncate(it.Brand, 20), it.FullDescriptiveMessage)
	}
}

// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pdiddy/food-resolver/internal/embedding"
	"github.com/pdiddy/food-resolver/pkg/types"
)

var embedCmd = &cobra.Command{
	Use:   "embed [texts...]",
	Short: "Look up or compute embeddings through the cache",
	Long: `Embed returns one embedding per argument, in order. Texts already in the
cache are served from it; the rest are fetched from the provider in one
batch and stored. With --brand, the single argument is treated as a food
name and keyed the way searches key it.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runEmbed,
}

func init() {
	embedCmd.Flags().String("model", "", "embedding model: ada or bge-base (default from config)")
	embedCmd.Flags().String("brand", "", "brand appended to the food key")
	addFormatFlag(embedCmd)

	rootCmd.AddCommand(embedCmd)
}

func runEmbed(cmd *cobra.Command, args []string) error {
	modelName, _ := cmd.Flags().GetString("model")
	brand, _ := cmd.Flags().GetString("brand")

	ctx := context.Background()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	model := a.cfg.Embedding.Model
	if modelName != "" {
		model = types.EmbeddingModel(modelName)
		if model.Dimensions() == 0 {
			return fmt.Errorf("unknown embedding model %q (want ada or bge-base)", modelName)
		}
	}

	texts := args
	if brand != "" {
		texts = []string{embedding.FoodKey(strings.Join(args, " "), brand)}
	}
	results, err := a.embeddings.GetEmbeddings(ctx, model, texts)
	if err != nil {
		return err
	}
	return writeOutput(cmd, os.Stdout, results, func(w io.Writer) {
		fmt.Fprintf(w, "%-40s  %-8s  %-6s  %-5s  %s\n", "Text", "Cache ID", "Cached", "Dims", "Head")
		fmt.Fprintln(w, strings.Repeat("-", 90))
		for _, r := range results {
			head := ""
			for i := 0; i < len(r.Vector) && i < 3; i++ {
				head += fmt.Sprintf("%.4f ", r.Vector[i])
			}
			fmt.Fprintf(w, "%-40s  %-8d  %-6t  %-5d  %s\n", truncate(r.Text, 40), r.CacheID, r.Cached, len(r.Vector), strings.TrimSpace(head))
		}
	})
}

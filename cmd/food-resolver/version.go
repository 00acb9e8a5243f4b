package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version of food-resolver",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("food-resolver %s\n", version)
	},
}

var usageCmd = &cobra.Command{
	Use:   "usage",
	Short: "Show token usage of fresh completion calls",
	Long: `Usage sums the prompt and completion tokens recorded for every
completion that was not served from the response cache, grouped by
provider and model.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		totals, err := a.store.Usage(ctx)
		if err != nil {
			return err
		}
		return writeOutput(cmd, os.Stdout, totals, func(w io.Writer) {
			if len(totals) == 0 {
				fmt.Fprintln(w, "No usage recorded.")
				return
			}
			fmt.Fprintf(w, "%-12s  %-45s  %-6s  %-10s  %s\n", "Provider", "Model", "Calls", "Prompt", "Completion")
			fmt.Fprintln(w, strings.Repeat("-", 95))
			for _, t := range totals {
				fmt.Fprintf(w, "%-12s  %-45s  %-6d  %-10d  %d\n", t.Provider, truncate(t.Model, 45), t.Calls, t.PromptTokens, t.CompletionTokens)
			}
		})
	},
}

func init() {
	addFormatFlag(usageCmd)

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(usageCmd)
}

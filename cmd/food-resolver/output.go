// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"go.yaml.in/yaml/v3"
)

// addFormatFlag registers the shared --format flag.
func addFormatFlag(cmd *cobra.Command) {
	cmd.Flags().String("format", "table", "output format: table, json or yaml")
}

// writeOutput renders v in the format chosen on cmd. table draws the
// human-readable form.
func writeOutput(cmd *cobra.Command, w io.Writer, v any, table func(io.Writer)) error {
	format, _ := cmd.Flags().GetString("format")
	switch strings.ToLower(format) {
	case "", "table":
		table(w)
		return nil
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unsupported format %q: use table, json or yaml", format)
	}
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}

func orDash(p *float64) string {
	if p == nil {
		return "-"
	}
	return fmt.Sprintf("%.1f", *p)
}

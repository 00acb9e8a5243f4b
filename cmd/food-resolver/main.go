// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package main is the entry point for the food-resolver CLI. Each pipeline
// stage is a subcommand; resolve runs them end to end.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/food-resolver/internal/secrets"
)

// version is set at build time via ldflags.
var version = "dev"

// loadedSecrets holds API keys loaded from .secrets/ and .env at startup.
var loadedSecrets map[string]string

// secretDefault returns fallback when it is set, else the loaded secret for key.
func secretDefault(key, fallback string) string {
	if fallback != "" {
		return fallback
	}
	if v, ok := loadedSecrets[key]; ok {
		return v
	}
	return ""
}

var rootCmd = &cobra.Command{
	Use:   "food-resolver",
	Short: "Resolve free-text meal descriptions into canonical nutrition records",
	Long: `food-resolver turns a meal description such as "2 eggs and a fairlife
chocolate shake" into canonical nutrition records. It extracts the food
items with a language model, searches USDA, Nutritionix, FatSecret and the
local mirror by embedding similarity, normalizes the best match and fills
missing serving weights from web-grounded completions.

Each stage is a subcommand: extract, search, embed and complete. resolve
runs the whole pipeline.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		dir, err := secrets.Load(".secrets/")
		if err != nil {
			return err
		}
		env, err := secrets.LoadEnvFile(".env")
		if err != nil {
			return err
		}
		loadedSecrets = secrets.Merge(env, dir)
		if len(loadedSecrets) > 0 {
			keys := make([]string, 0, len(loadedSecrets))
			for k := range loadedSecrets {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			fmt.Fprintf(os.Stderr, "Loaded secrets: %v\n", keys)
		}
		return nil
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().String("config", "", "config file (default: ./food-resolver.yaml or ~/.config/food-resolver/food-resolver.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().String("db", "", "SQLite database path")
	_ = viper.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("store.path", rootCmd.PersistentFlags().Lookup("db"))
}

func initConfig() {
	cfgFile, _ := rootCmd.PersistentFlags().GetString("config")
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("food-resolver")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", "food-resolver"))
		}
	}

	viper.SetEnvPrefix("FOOD_RESOLVER")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
	setDefaults(viper.GetViper())

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// Package main is the entry point for the kbvec CLI.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/vectorhaus/kbvec/internal/config"
)

// Version information set via ldflags during build.
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "kbvec",
		Short: "kbvec knowledge base server",
		Long:  `kbvec embeds documents into a vector knowledge base and serves semantic, keyword, and hybrid search with retrieval-augmented answers.`,
	}

	cmd.AddCommand(serveCmd())
	cmd.AddCommand(versionCmd())

	return cmd
}

// loadConfig loads configuration from an optional YAML file, a .env file,
// and environment variables.
func loadConfig(configFile, envFile string) (config.AppConfig, error) {
	cfg, err := config.LoadConfig(configFile, envFile)
	if err != nil {
		return config.AppConfig{}, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

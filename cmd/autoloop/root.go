package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/autoresearch/autoloop/internal/cli"
)

var rootCmd = &cobra.Command{
	Use:   "autoloop",
	Short: "Autoloop runs closed-loop behavioral experiments",
	Long: `Autoloop drives an automated research cycle: propose experimental
conditions, collect observations from online participants, and fit a model,
over and over. Workflows are described in a YAML file.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	// Persistent flags (available to all commands)
	rootCmd.PersistentFlags().StringP("config", "c", "autoloop.yaml", "Path to the workflow file")
}

func loadConfig(cmd *cobra.Command) *cli.Config {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := cli.LoadConfig(path)
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}
	return cfg
}

func logLevel(name string) slog.Level {
	switch name {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

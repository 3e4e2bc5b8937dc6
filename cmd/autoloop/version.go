package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/autoresearch/autoloop"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of autoloop",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("autoloop version %s\n", strings.TrimSpace(autoloop.Version))
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

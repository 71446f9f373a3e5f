package main

import (
	"github.com/spf13/cobra"

	"docchat/internal/bootstrap"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, _ []string) {
		cmd.Printf("docchat version %s\n", bootstrap.Version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the paneward version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("paneward", Version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

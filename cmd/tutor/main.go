package main

import (
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

// version is set via ldflags at build time
var version = "1.0.0"

func main() {
	if err := NewRootCmd(version).Execute(); err != nil {
		color.Red("Error: %v", err)
		os.Exit(1)
	}
}

func NewRootCmd(version string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "tutor",
		Short:         "Conversational AI tutor",
		Long:          `A retrieval-augmented tutor that answers questions from your documents, with an emotion label for the avatar front end.`,
		Version:       version,
		SilenceErrors: true,
		SilenceUsage:  true,
		Run: func(cmd *cobra.Command, _ []string) {
			_ = cmd.Help()
		},
	}

	rootCmd.PersistentFlags().String("config", "", "Path to config file")

	rootCmd.AddCommand(
		newServeCmd(),
		newChatCmd(),
		newIndexCmd(),
	)

	return rootCmd
}

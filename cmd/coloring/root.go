package main

import (
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "coloring",
		Short: "Turn reference photos into a ten page coloring book",
		Long: `coloring generates a collection of ten coloring pages from one to four
reference photos and a description, and writes them as a printable PDF.

Configuration is read from the environment (or a .env file), the same
GEMINI_* settings the web server and the bot use.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			_ = godotenv.Load()
		},
	}

	cmd.AddCommand(newGenerateCmd())

	return cmd
}

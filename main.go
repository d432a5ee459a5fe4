package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "gmail-assistant",
	Short: "Gmail triage, drafting and agent automation",
	Long: `gmail-assistant keeps a Gmail inbox in sync, classifies incoming
threads, drafts replies in the user's voice and hands selected threads
to tool-using agents.`,
	SilenceUsage: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

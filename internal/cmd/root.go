package cmd

import (
	"github.com/spf13/cobra"
)

// Version is injected at build time via -ldflags
var Version = "dev"

// NewRootCommand creates and returns the root cobra command
func NewRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "symptomcheck",
		Short: "Adaptive symptom questionnaire",
		Long: `symptomcheck runs the adaptive symptom interview in a terminal.

Questions come from Gemini when GEMINI_API_KEY is set and from a built-in
question bank otherwise. Emergency screening and completion rules are read
from a YAML policy file.`,
		Version: Version,
		// Silence usage on errors to avoid duplicate help text
		SilenceUsage: true,
	}

	cmd.AddCommand(NewInterviewCommand())

	return cmd
}

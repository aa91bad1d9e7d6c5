package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

var noColor bool

var rootCmd = &cobra.Command{
	Use:   "steptrace",
	Short: "Record browser interactions as replayable episodes",
	Long: `steptrace records what a person does in a browser tab as an episode:
for every click, input, selection, scroll or key press it stores the page
observation before the action, the action itself and the observation after.

Run "steptrace serve" to start the recorder, then drive it with
"steptrace start", "steptrace stop" and "steptrace export".`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
	if os.Getenv("NO_COLOR") != "" {
		noColor = true
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

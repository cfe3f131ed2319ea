package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"skywarden/internal/logger"
)

var (
	cfgFile string
	debug   bool
)

var rootCmd = &cobra.Command{
	Use:   "skywarden",
	Short: "Airborne predator detection and alerting for edge cameras",
	Long: `skywarden watches a camera feed for airborne predators, turns
qualifying detections into rate-limited alerts across independent
notification channels, and keeps a queryable detection history.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logger.Setup(debug)
	},
}

// Execute runs the CLI.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML; defaults apply when omitted)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
}

package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/opennow/client/internal/config"
	"github.com/opennow/client/internal/logging"
)

var version = "1.0.0"

var log = logging.L("main")

var rootCmd = &cobra.Command{
	Use:   "opennow-client",
	Short: "opennow native streaming client",
	Long:  `opennow-client connects to a cloud-gaming session, negotiates the media/input transport, and streams it to this machine.`,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("opennow-client v%s\n", version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(pingZonesCmd)
	rootCmd.AddCommand(statusCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// initLogging applies the settings-file log level, with text output, before
// any component-level logger is meaningfully used.
func initLogging(s *config.Settings) {
	logging.Init("text", s.LogLevel, nil)
	log = logging.L("main")
}

// loadTokensOrExit reads the persisted credential pair, exiting with a
// clear message if the user has never logged in. It only loads what an
// external login flow already wrote to disk.
func loadTokensOrExit() *config.TokenFile {
	tf, err := config.LoadTokens()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to read saved credentials: %v\n", err)
		os.Exit(1)
	}
	if tf.AccessToken == "" {
		fmt.Fprintln(os.Stderr, "not logged in: no credentials found in the data directory")
		os.Exit(1)
	}
	return tf
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print saved settings and credential status",
	Run: func(cmd *cobra.Command, args []string) {
		s, err := config.Load()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to load settings: %v\n", err)
			os.Exit(1)
		}
		tf, _ := config.LoadTokens()
		loggedIn := tf != nil && tf.AccessToken != ""
		fmt.Printf("zone: %s (auto-select: %v)\n", orDefault(s.Zone, "<none>"), s.AutoSelect)
		fmt.Printf("codec: %s  resolution: %s  fps: %d  hdr: %v\n", s.Codec, s.Resolution, s.FPS, s.HDR)
		fmt.Printf("logged in: %v\n", loggedIn)
	},
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

// backgroundContext returns a context canceled on SIGINT/SIGTERM, used by
// every long-running command as its top-level cancellation signal.
func backgroundContext() (context.Context, context.CancelFunc) {
	return signalContext()
}

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/opennow/client/internal/config"
	"github.com/opennow/client/internal/proxyconfig"
)

// allocationProbeURL is what the proxy test dials: the allocation domain
// itself, not a generic external site, so a pass means the proxy can reach
// the endpoint that matters.
const allocationProbeURL = "https://api.opennowstream.net/v2/health"

var testProxyCmd = &cobra.Command{
	Use:   "test-proxy",
	Short: "Verify the configured proxy can reach the allocation service",
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := backgroundContext()
		defer cancel()

		settings, err := config.Load()
		if err != nil {
			fmt.Fprintf(os.Stderr, "load settings: %v\n", err)
			os.Exit(1)
		}
		if !settings.Proxy.Enabled {
			fmt.Println("proxy is not enabled in settings")
			return
		}

		if err := proxyconfig.Test(ctx, settings.Proxy, allocationProbeURL); err != nil {
			fmt.Fprintf(os.Stderr, "proxy test failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("proxy working")
	},
}

func init() {
	rootCmd.AddCommand(testProxyCmd)
}

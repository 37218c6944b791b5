package main

import (
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/opennow/client/internal/region"
)

const directoryURL = "https://directory.opennowstream.net/v2/server-info"

var pingZonesCmd = &cobra.Command{
	Use:   "ping-zones",
	Short: "Measure latency to every known streaming zone",
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := backgroundContext()
		defer cancel()

		httpClient := &http.Client{Timeout: 10 * time.Second}

		reg := region.NewRegistry()
		region.RefreshDirectory(ctx, httpClient, reg, directoryURL)
		region.ProbeAll(ctx, reg, 0)

		zones := reg.All()
		sort.SliceStable(zones, func(i, j int) bool {
			if zones[i].HasLatency != zones[j].HasLatency {
				return zones[i].HasLatency
			}
			return zones[i].LatencyMillis < zones[j].LatencyMillis
		})

		for _, z := range zones {
			if z.HasLatency {
				fmt.Printf("%-24s %-20s %6.1f ms  %s\n", z.ID, z.RegionLabel, z.LatencyMillis, z.State)
			} else {
				fmt.Printf("%-24s %-20s %9s  %s\n", z.ID, z.RegionLabel, "--", z.State)
			}
		}
	},
}

package region

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/opennow/client/internal/httputil"
)

// directoryEntry is the shape of one row in the service's server-info
// endpoint response.
type directoryEntry struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	BaseURL string `json:"baseUrl,omitempty"`
}

// FetchDirectory attempts to fetch a live zone list from the service's
// server-info endpoint. On any failure the caller should continue using
// the hard-coded fallback table already seeded into the Registry; this is
// not treated as a fatal error.
func FetchDirectory(ctx context.Context, client *http.Client, directoryURL string) ([]Zone, error) {
	resp, err := httputil.Do(ctx, client, http.MethodGet, directoryURL, nil, nil, httputil.DefaultRetryConfig())
	if err != nil {
		return nil, fmt.Errorf("region: fetch directory: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("region: directory endpoint returned %d", resp.StatusCode)
	}

	var entries []directoryEntry
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		return nil, fmt.Errorf("region: decode directory: %w", err)
	}

	zones := make([]Zone, 0, len(entries))
	for _, e := range entries {
		zones = append(zones, Zone{
			ID:          e.ID,
			Name:        e.Name,
			BaseURL:     e.BaseURL,
			RegionLabel: regionLabel(e.ID),
		})
	}
	return zones, nil
}

// RefreshDirectory fetches the live directory and merges it into reg,
// falling back silently to the already-seeded fallback table on error.
func RefreshDirectory(ctx context.Context, client *http.Client, reg *Registry, directoryURL string) {
	zones, err := FetchDirectory(ctx, client, directoryURL)
	if err != nil {
		log.Info("zone directory fetch failed, using fallback table", "error", err)
		return
	}
	reg.Merge(zones)
}

// DefaultProbeInterval is a re-measure cadence for zone latency while the app
// is idle (not mid-session). Nothing in this package schedules probes on it;
// ProbeAll measures once per call.
const DefaultProbeInterval = 5 * time.Minute

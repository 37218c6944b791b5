package region

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"sync"
	"time"

	"github.com/opennow/client/internal/logging"
)

var log = logging.L("region")

// ServiceDomain is the suffix appended to a zone id to derive its probe
// hostname ("<zone>.<service domain>").
const ServiceDomain = "opennowstream.net"

const (
	defaultProbeTimeout = 4 * time.Second
	probePort           = "443"
)

// ProbeAll runs the latency probe for every zone in the registry
// concurrently, one goroutine per zone, on workers distinct from the
// render/orchestrator thread. TCP connect timing is used instead of ICMP
// echo so the probe needs no raw-socket privileges.
func ProbeAll(ctx context.Context, reg *Registry, timeout time.Duration) {
	if timeout <= 0 {
		timeout = defaultProbeTimeout
	}

	zones := reg.All()
	var wg sync.WaitGroup
	for _, z := range zones {
		z := z
		reg.SetState(z.ID, Testing)
		wg.Add(1)
		go func() {
			defer wg.Done()
			millis, err := probeOne(ctx, z, timeout)
			if err != nil {
				log.Debug("zone probe failed", "zone", z.ID, "error", err)
				reg.SetState(z.ID, Offline)
				return
			}
			reg.SetLatency(z.ID, millis, Online)
		}()
	}
	wg.Wait()
}

// probeOne resolves the zone's hostname and times a TCP handshake to port
// 443.
func probeOne(ctx context.Context, z Zone, timeout time.Duration) (float64, error) {
	host := z.ID + "." + ServiceDomain
	if z.BaseURL != "" {
		if u, err := url.Parse(z.BaseURL); err == nil && u.Hostname() != "" {
			host = u.Hostname()
		} else if h, _, err := net.SplitHostPort(z.BaseURL); err == nil {
			host = h
		} else {
			host = z.BaseURL
		}
	}

	dialer := net.Dialer{Timeout: timeout}
	probeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	conn, err := dialer.DialContext(probeCtx, "tcp", net.JoinHostPort(host, probePort))
	if err != nil {
		return 0, fmt.Errorf("region: dial %s: %w", host, err)
	}
	elapsed := time.Since(start)
	conn.Close()

	return float64(elapsed.Microseconds()) / 1000.0, nil
}

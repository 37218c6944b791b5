// Package region implements the zone directory and the TCP latency probe
// used for auto-selection.
package region

import (
	"sort"
	"strings"
	"sync"
)

// Reachability is a zone's probe state.
type Reachability int

const (
	Unknown Reachability = iota
	Testing
	Online
	Offline
)

func (r Reachability) String() string {
	switch r {
	case Testing:
		return "testing"
	case Online:
		return "online"
	case Offline:
		return "offline"
	default:
		return "unknown"
	}
}

// Zone is a regional streaming endpoint.
type Zone struct {
	ID            string // e.g. "eu-netherlands-south"
	Name          string
	RegionLabel   string // coarse label derived from hostname prefix
	BaseURL       string // optional explicit override
	LatencyMillis float64
	HasLatency    bool
	State         Reachability
}

// fallbackZones is the hard-coded table used when the live directory fetch
// fails. Its first entry doubles as the default when the user has no
// preference and no ping data exists yet.
var fallbackZones = []Zone{
	{ID: "eu-netherlands-south", Name: "Netherlands (South)", RegionLabel: regionLabel("eu-netherlands-south")},
	{ID: "eu-frankfurt", Name: "Frankfurt", RegionLabel: regionLabel("eu-frankfurt")},
	{ID: "us-east-virginia", Name: "US East (Virginia)", RegionLabel: regionLabel("us-east-virginia")},
	{ID: "us-west-oregon", Name: "US West (Oregon)", RegionLabel: regionLabel("us-west-oregon")},
	{ID: "ca-central", Name: "Canada Central", RegionLabel: regionLabel("ca-central")},
	{ID: "ap-tokyo", Name: "Tokyo", RegionLabel: regionLabel("ap-tokyo")},
}

// regionLabel derives a coarse region label from the zone id's hostname
// prefix ("eu-", "us-", "ca-", "ap-").
func regionLabel(zoneID string) string {
	switch {
	case strings.HasPrefix(zoneID, "eu-"):
		return "Europe"
	case strings.HasPrefix(zoneID, "us-"):
		return "United States"
	case strings.HasPrefix(zoneID, "ca-"):
		return "Canada"
	case strings.HasPrefix(zoneID, "ap-"):
		return "Asia Pacific"
	default:
		return "Other"
	}
}

// Registry owns the zone list: populated from the directory service or the
// fallback table, mutated only by the ping subsystem. Shared read-only by
// the UI and orchestrator.
type Registry struct {
	mu        sync.RWMutex
	zones     map[string]*Zone
	order     []string // insertion order, used for auto-selection tie-break
	preferred string   // manually selected zone id, held in memory only
}

// NewRegistry seeds the registry with the hard-coded fallback table.
func NewRegistry() *Registry {
	r := &Registry{zones: make(map[string]*Zone)}
	for i := range fallbackZones {
		z := fallbackZones[i]
		r.zones[z.ID] = &z
		r.order = append(r.order, z.ID)
	}
	return r
}

// Merge replaces/adds zones fetched from the live directory, preserving any
// previously-measured latency for zones that already existed.
func (r *Registry) Merge(zones []Zone) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, z := range zones {
		if existing, ok := r.zones[z.ID]; ok {
			z.LatencyMillis = existing.LatencyMillis
			z.HasLatency = existing.HasLatency
			z.State = existing.State
		}
		if z.RegionLabel == "" {
			z.RegionLabel = regionLabel(z.ID)
		}
		cp := z
		if _, ok := r.zones[z.ID]; !ok {
			r.order = append(r.order, z.ID)
		}
		r.zones[z.ID] = &cp
	}
}

// All returns a snapshot of every known zone.
func (r *Registry) All() []Zone {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Zone, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, *r.zones[id])
	}
	return out
}

// Get returns a single zone by id.
func (r *Registry) Get(id string) (Zone, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	z, ok := r.zones[id]
	if !ok {
		return Zone{}, false
	}
	return *z, true
}

// SetLatency records a latency measurement for a zone. Called only by the
// ping subsystem.
func (r *Registry) SetLatency(id string, millis float64, state Reachability) {
	r.mu.Lock()
	defer r.mu.Unlock()
	z, ok := r.zones[id]
	if !ok {
		return
	}
	z.LatencyMillis = millis
	z.HasLatency = state == Online
	z.State = state
}

// SetState updates only the reachability state (e.g. Testing before a probe
// completes).
func (r *Registry) SetState(id string, state Reachability) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if z, ok := r.zones[id]; ok {
		z.State = state
	}
}

// SetPreferred records a manual zone selection in memory; the Registry does
// not write it to disk, so it does not survive a restart.
func (r *Registry) SetPreferred(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.preferred = id
}

// Preferred returns the manually selected zone id, if any.
func (r *Registry) Preferred() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.preferred
}

// AutoSelect returns the zone with the lowest measured latency among
// Online zones, ties broken on insertion order.
func (r *Registry) AutoSelect() (Zone, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	candidates := make([]*Zone, 0, len(r.order))
	for _, id := range r.order {
		z := r.zones[id]
		if z.State == Online && z.HasLatency {
			candidates = append(candidates, z)
		}
	}
	if len(candidates) == 0 {
		return Zone{}, false
	}

	orderIndex := make(map[string]int, len(r.order))
	for i, id := range r.order {
		orderIndex[id] = i
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].LatencyMillis != candidates[j].LatencyMillis {
			return candidates[i].LatencyMillis < candidates[j].LatencyMillis
		}
		return orderIndex[candidates[i].ID] < orderIndex[candidates[j].ID]
	})
	return *candidates[0], true
}

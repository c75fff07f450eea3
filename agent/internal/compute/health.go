package compute

import "github.com/obsidianstack/lookerhealth/pkg/types"

// Health state constants returned by ClassifyHealth.
const (
	StateHealthy   = "healthy"
	StateUnhealthy = "unhealthy"
)

// Defaults for HealthPolicy.
const (
	DefaultMinClusters   = 5
	DefaultMinUsers      = 1
	DefaultEvidenceLimit = 5
)

// HealthPolicy holds the thresholds of the unhealthy predicate.
type HealthPolicy struct {
	// MinClusters must be strictly exceeded by the cluster count.
	MinClusters int

	// MinUsers must be strictly exceeded by the number of distinct users
	// across the representatives. One user failing repeatedly is usually
	// exploring; several users failing points at the artifact.
	MinUsers int

	// EvidenceLimit caps the representatives attached to an unhealthy verdict.
	// The most recent ones are kept. Zero or negative keeps all of them.
	EvidenceLimit int
}

// DefaultHealthPolicy returns the policy used when nothing is configured.
func DefaultHealthPolicy() HealthPolicy {
	return HealthPolicy{
		MinClusters:   DefaultMinClusters,
		MinUsers:      DefaultMinUsers,
		EvidenceLimit: DefaultEvidenceLimit,
	}
}

// HealthVerdict is the outcome of ClassifyHealth for one artifact.
type HealthVerdict struct {
	State    string        `json:"state"`
	Clusters int           `json:"clusters"`
	Users    int           `json:"users"`
	Evidence []types.Event `json:"evidence,omitempty"`
}

// Unhealthy reports whether the verdict is StateUnhealthy.
func (v HealthVerdict) Unhealthy() bool { return v.State == StateUnhealthy }

// ClassifyHealth decides whether an artifact is unhealthy from its cluster
// representatives (as returned by Cluster, oldest first).
func ClassifyHealth(clusters []types.Event, p HealthPolicy) HealthVerdict {
	users := distinctUsers(clusters)
	v := HealthVerdict{
		State:    StateHealthy,
		Clusters: len(clusters),
		Users:    users,
	}
	if len(clusters) <= p.MinClusters || users <= p.MinUsers {
		return v
	}

	v.State = StateUnhealthy
	v.Evidence = mostRecent(clusters, p.EvidenceLimit)
	return v
}

// distinctUsers counts the distinct non-empty user ids in evs.
func distinctUsers(evs []types.Event) int {
	seen := make(map[string]struct{}, len(evs))
	for _, ev := range evs {
		if ev.UserID == "" {
			continue
		}
		seen[ev.UserID] = struct{}{}
	}
	return len(seen)
}

// mostRecent returns a copy of the last n events, preserving their order.
func mostRecent(evs []types.Event, n int) []types.Event {
	start := 0
	if n > 0 && len(evs) > n {
		start = len(evs) - n
	}
	out := make([]types.Event, len(evs)-start)
	copy(out, evs[start:])
	return out
}

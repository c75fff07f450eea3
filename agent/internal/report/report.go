package report

import (
	"time"

	"github.com/google/uuid"

	"github.com/obsidianstack/lookerhealth/agent/internal/compute"
	"github.com/obsidianstack/lookerhealth/pkg/types"
)

// Report is the outcome of one run over all monitored artifacts.
type Report struct {
	RunID       uuid.UUID `json:"run_id"`
	GeneratedAt time.Time `json:"generated_at"`

	// StaleAfterDays is the threshold the Stale lists were computed with.
	StaleAfterDays int `json:"stale_after_days"`

	Dashboards KindReport `json:"dashboards"`
	Looks      KindReport `json:"looks"`
}

// Kind returns the per-kind section for kind.
func (r *Report) Kind(kind types.Kind) *KindReport {
	switch kind {
	case types.KindDashboard:
		return &r.Dashboards
	case types.KindLook:
		return &r.Looks
	default:
		return nil
	}
}

// Kinds returns the per-kind sections in rendering order.
func (r *Report) Kinds() []*KindReport {
	return []*KindReport{&r.Dashboards, &r.Looks}
}

// KindReport holds the classification results for one artifact kind.
type KindReport struct {
	Kind    types.Kind `json:"kind"`
	Total   int        `json:"total"`
	Healthy int        `json:"healthy"`

	// Unhealthy lists unhealthy artifacts in monitored-list order.
	Unhealthy []UnhealthyArtifact `json:"unhealthy"`

	// Stale lists healthy artifacts that did not run within the activity
	// lookback and whose last run is older than the threshold (or never).
	Stale []StaleArtifact `json:"stale"`

	// Inconclusive lists healthy, not-recently-run artifacts whose last run
	// could not be determined.
	Inconclusive []StaleArtifact `json:"inconclusive"`
}

// HealthyPct returns Healthy/Total as a percentage, 0 when nothing is monitored.
func (k KindReport) HealthyPct() float64 {
	if k.Total == 0 {
		return 0
	}
	return float64(k.Healthy) / float64(k.Total) * 100
}

// UnhealthyByID returns the unhealthy artifacts keyed by id.
func (k KindReport) UnhealthyByID() map[string][]types.Event {
	out := make(map[string][]types.Event, len(k.Unhealthy))
	for _, u := range k.Unhealthy {
		out[u.ID] = u.Evidence
	}
	return out
}

// UnhealthyArtifact is one unhealthy artifact and its evidence.
type UnhealthyArtifact struct {
	ID       string        `json:"id"`
	Clusters int           `json:"clusters"`
	Users    int           `json:"users"`
	Evidence []types.Event `json:"evidence"`
}

// StaleArtifact is one artifact with its staleness verdict.
type StaleArtifact struct {
	ID      string                   `json:"id"`
	Verdict compute.StalenessVerdict `json:"verdict"`
	// Reason carries the lookup error for inconclusive entries.
	Reason string `json:"reason,omitempty"`
}

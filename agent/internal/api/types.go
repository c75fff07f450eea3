package api

import (
	"github.com/obsidianstack/lookerhealth/agent/internal/report"
	"github.com/obsidianstack/lookerhealth/agent/internal/store"
)

// HealthResponse is the payload for GET /api/v1/health.
type HealthResponse struct {
	Status      string      `json:"status"`
	ReportCount int         `json:"report_count"`
	LastRun     *RunSummary `json:"last_run,omitempty"`
}

// RunSummary is one entry in GET /api/v1/reports.
type RunSummary struct {
	RunID       string      `json:"run_id"`
	GeneratedAt string      `json:"generated_at"` // RFC3339
	DurationMs  int64       `json:"duration_ms"`
	Dashboards  KindSummary `json:"dashboards"`
	Looks       KindSummary `json:"looks"`
}

// KindSummary holds the counts of one kind.
type KindSummary struct {
	Total        int     `json:"total"`
	Healthy      int     `json:"healthy"`
	HealthyPct   float64 `json:"healthy_pct"`
	Unhealthy    int     `json:"unhealthy"`
	Stale        int     `json:"stale"`
	Inconclusive int     `json:"inconclusive"`
}

// errorResponse is a generic JSON error body.
type errorResponse struct {
	Error string `json:"error"`
}

func toKindSummary(kr report.KindReport) KindSummary {
	return KindSummary{
		Total:        kr.Total,
		Healthy:      kr.Healthy,
		HealthyPct:   kr.HealthyPct(),
		Unhealthy:    len(kr.Unhealthy),
		Stale:        len(kr.Stale),
		Inconclusive: len(kr.Inconclusive),
	}
}

func toRunSummary(e *store.Entry) RunSummary {
	rep := e.Report
	return RunSummary{
		RunID:       rep.RunID.String(),
		GeneratedAt: rep.GeneratedAt.Format("2006-01-02T15:04:05Z07:00"),
		DurationMs:  e.Duration.Milliseconds(),
		Dashboards:  toKindSummary(rep.Dashboards),
		Looks:       toKindSummary(rep.Looks),
	}
}

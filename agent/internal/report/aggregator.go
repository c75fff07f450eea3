package report

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/obsidianstack/lookerhealth/agent/internal/compute"
	"github.com/obsidianstack/lookerhealth/agent/internal/config"
	"github.com/obsidianstack/lookerhealth/pkg/types"
)

// ErrNoMonitored is returned by Build when no artifact ids are configured.
var ErrNoMonitored = errors.New("report: no monitored artifacts")

// Source supplies the raw activity data for a run. *looker.Client implements it.
type Source interface {
	// RecentErrors returns error events of the trailing lookback, grouped by
	// kind and artifact id.
	RecentErrors(ctx context.Context, lookback time.Duration) (map[types.Kind]map[string][]types.RawEvent, error)

	// RanSince returns the ids of kind with any activity in the lookback.
	RanSince(ctx context.Context, kind types.Kind, lookback time.Duration) (map[string]bool, error)

	// LastRun returns the raw last-run timestamp of one artifact, "" if it
	// never ran.
	LastRun(ctx context.Context, kind types.Kind, id string) (string, error)
}

// Options holds the thresholds and limits of a run.
type Options struct {
	ErrorLookback    time.Duration
	ActivityLookback time.Duration
	ClusterWindow    time.Duration
	Health           compute.HealthPolicy
	StaleAfterDays   int

	// Concurrency bounds parallel last-run lookups and classifications.
	Concurrency int

	// Location is the display zone for event and report timestamps.
	Location *time.Location
}

// DefaultOptions returns the options used when nothing is configured.
func DefaultOptions() Options {
	return Options{
		ErrorLookback:    config.DefaultErrorLookback,
		ActivityLookback: config.DefaultActivityLookback,
		ClusterWindow:    compute.DefaultClusterWindow,
		Health:           compute.DefaultHealthPolicy(),
		StaleAfterDays:   compute.DefaultStaleAfterDays,
		Concurrency:      config.DefaultConcurrency,
		Location:         time.UTC,
	}
}

// OptionsFromConfig maps the report section of the config onto Options.
func OptionsFromConfig(rc config.ReportConfig) (Options, error) {
	loc, err := rc.Location()
	if err != nil {
		return Options{}, fmt.Errorf("report: load timezone: %w", err)
	}
	return Options{
		ErrorLookback:    rc.ErrorLookback,
		ActivityLookback: rc.ActivityLookback,
		ClusterWindow:    rc.ClusterWindow,
		Health: compute.HealthPolicy{
			MinClusters:   rc.UnhealthyMinClusters,
			MinUsers:      rc.UnhealthyMinUsers,
			EvidenceLimit: rc.EvidenceLimit,
		},
		StaleAfterDays: rc.StaleAfterDays,
		Concurrency:    rc.Concurrency,
		Location:       loc,
	}, nil
}

// Monitored maps each kind to its ordered list of monitored ids.
type Monitored map[types.Kind][]string

// MonitoredFromConfig copies the monitor section of the config.
func MonitoredFromConfig(m config.MonitorConfig) Monitored {
	out := make(Monitored, len(types.Kinds))
	for _, kind := range types.Kinds {
		out[kind] = append([]string(nil), m.For(kind)...)
	}
	return out
}

// Total returns the number of monitored ids across all kinds.
func (m Monitored) Total() int {
	var n int
	for _, ids := range m {
		n += len(ids)
	}
	return n
}

// KindInput is everything ClassifyKind needs for one kind.
type KindInput struct {
	Kind      types.Kind
	Monitored []string

	// Errors maps artifact id to its unordered error events.
	Errors map[string][]types.RawEvent

	// RanRecently holds ids with activity inside the activity lookback.
	RanRecently map[string]bool

	// LastRun holds the last-run signal for ids absent from RanRecently.
	// A missing entry is treated as never run.
	LastRun map[string]types.LastRun
}

type artifactResult struct {
	health  compute.HealthVerdict
	checked bool // staleness was evaluated
	stale   compute.StalenessVerdict
	reason  string
}

// ClassifyKind classifies every monitored artifact of one kind. now must be
// the run-wide reference instant.
func ClassifyKind(in KindInput, opts Options, now time.Time) KindReport {
	return classifyKind(in, classifyHealth(in.Monitored, in.Errors, opts), opts, now)
}

// classifyHealth clusters and classifies the error events of every id,
// returning verdicts in ids order.
func classifyHealth(ids []string, errs map[string][]types.RawEvent, opts Options) []compute.HealthVerdict {
	verdicts := make([]compute.HealthVerdict, len(ids))

	var g errgroup.Group
	g.SetLimit(concurrency(opts))
	for i, id := range ids {
		g.Go(func() error {
			clusters := compute.Cluster(errs[id], opts.ClusterWindow, opts.Location)
			verdicts[i] = compute.ClassifyHealth(clusters, opts.Health)
			return nil
		})
	}
	_ = g.Wait()
	return verdicts
}

// classifyKind builds the kind report from health verdicts already computed
// for in.Monitored.
func classifyKind(in KindInput, health []compute.HealthVerdict, opts Options, now time.Time) KindReport {
	kr := KindReport{
		Kind:         in.Kind,
		Total:        len(in.Monitored),
		Unhealthy:    []UnhealthyArtifact{},
		Stale:        []StaleArtifact{},
		Inconclusive: []StaleArtifact{},
	}
	for i, id := range in.Monitored {
		res := classifyArtifact(id, health[i], in, opts, now)
		switch {
		case res.health.Unhealthy():
			kr.Unhealthy = append(kr.Unhealthy, UnhealthyArtifact{
				ID:       id,
				Clusters: res.health.Clusters,
				Users:    res.health.Users,
				Evidence: res.health.Evidence,
			})
		case !res.checked:
		case res.stale.Stale(opts.StaleAfterDays):
			kr.Stale = append(kr.Stale, StaleArtifact{ID: id, Verdict: res.stale})
		case res.stale.Inconclusive():
			kr.Inconclusive = append(kr.Inconclusive, StaleArtifact{ID: id, Verdict: res.stale, Reason: res.reason})
		}
	}
	kr.Healthy = kr.Total - len(kr.Unhealthy)
	return kr
}

func classifyArtifact(id string, health compute.HealthVerdict, in KindInput, opts Options, now time.Time) artifactResult {
	res := artifactResult{health: health}
	if health.Unhealthy() || in.RanRecently[id] {
		return res
	}

	sig := in.LastRun[id]
	res.checked = true
	res.stale = compute.ClassifyStaleness(sig, now, opts.Location)
	if sig.Err != nil {
		res.reason = sig.Err.Error()
	} else if res.stale.Inconclusive() {
		res.reason = fmt.Sprintf("unrecognised last run time %q", sig.Raw)
	}
	return res
}

func concurrency(opts Options) int {
	if opts.Concurrency <= 0 {
		return 1
	}
	return opts.Concurrency
}

// Aggregator runs the full fetch-and-classify pass for a fixed monitored list.
type Aggregator struct {
	src       Source
	monitored Monitored
	opts      Options
}

// New creates an Aggregator. A nil opts.Location means UTC.
func New(src Source, monitored Monitored, opts Options) *Aggregator {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	return &Aggregator{src: src, monitored: monitored, opts: opts}
}

// Build fetches activity through the Source and classifies every monitored
// artifact. now is captured once by the caller and used for every staleness
// computation in the run.
//
// Errors from the bulk fetches (error events, ran-recently sets) abort the
// run. Per-artifact last-run lookup failures are recorded on the artifact.
func (a *Aggregator) Build(ctx context.Context, now time.Time) (*Report, error) {
	if a.monitored.Total() == 0 {
		return nil, ErrNoMonitored
	}
	now = now.UTC()

	errs, err := a.src.RecentErrors(ctx, a.opts.ErrorLookback)
	if err != nil {
		return nil, fmt.Errorf("report: fetch recent errors: %w", err)
	}

	rep := &Report{
		RunID:          uuid.New(),
		GeneratedAt:    now.In(a.opts.Location),
		StaleAfterDays: a.opts.StaleAfterDays,
	}
	for _, kind := range types.Kinds {
		ids := a.monitored[kind]

		ran, err := a.src.RanSince(ctx, kind, a.opts.ActivityLookback)
		if err != nil {
			return nil, fmt.Errorf("report: fetch %s activity: %w", kind.Plural(), err)
		}

		health := classifyHealth(ids, errs[kind], a.opts)
		lastRuns, err := a.fetchLastRuns(ctx, kind, needLastRun(ids, health, ran))
		if err != nil {
			return nil, err
		}

		*rep.Kind(kind) = classifyKind(KindInput{
			Kind:        kind,
			Monitored:   ids,
			Errors:      errs[kind],
			RanRecently: ran,
			LastRun:     lastRuns,
		}, health, a.opts, now)
	}

	for _, kr := range rep.Kinds() {
		slog.Info("report: classified",
			"run_id", rep.RunID,
			"kind", kr.Kind,
			"total", kr.Total,
			"healthy", kr.Healthy,
			"unhealthy", len(kr.Unhealthy),
			"stale", len(kr.Stale),
			"inconclusive", len(kr.Inconclusive),
		)
	}
	return rep, nil
}

// needLastRun returns the ids whose staleness will be evaluated: healthy and
// absent from ran. health is in ids order.
func needLastRun(ids []string, health []compute.HealthVerdict, ran map[string]bool) []string {
	var out []string
	for i, id := range ids {
		if ran[id] || health[i].Unhealthy() {
			continue
		}
		out = append(out, id)
	}
	return out
}

// fetchLastRuns looks up the last run of every pending id concurrently.
// Lookup failures are stored in the result; only cancellation of ctx is
// returned as an error.
func (a *Aggregator) fetchLastRuns(ctx context.Context, kind types.Kind, pending []string) (map[string]types.LastRun, error) {
	results := make([]types.LastRun, len(pending))
	var g errgroup.Group
	g.SetLimit(concurrency(a.opts))
	for i, id := range pending {
		g.Go(func() error {
			if ctx.Err() != nil {
				results[i] = types.LastRun{Err: ctx.Err()}
				return nil
			}
			raw, err := a.src.LastRun(ctx, kind, id)
			if err != nil {
				slog.Warn("report: last run lookup failed", "kind", kind, "id", id, "err", err)
				results[i] = types.LastRun{Err: err}
				return nil
			}
			results[i] = types.LastRun{Raw: raw}
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("report: fetch %s last runs: %w", kind.Plural(), err)
	}

	out := make(map[string]types.LastRun, len(pending))
	for i, id := range pending {
		out[id] = results[i]
	}
	return out, nil
}

package runner

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/obsidianstack/lookerhealth/agent/internal/api"
	"github.com/obsidianstack/lookerhealth/agent/internal/config"
	"github.com/obsidianstack/lookerhealth/agent/internal/looker"
	"github.com/obsidianstack/lookerhealth/agent/internal/metrics"
	"github.com/obsidianstack/lookerhealth/agent/internal/render"
	"github.com/obsidianstack/lookerhealth/agent/internal/report"
	"github.com/obsidianstack/lookerhealth/agent/internal/security"
	"github.com/obsidianstack/lookerhealth/agent/internal/shipper"
	"github.com/obsidianstack/lookerhealth/agent/internal/store"
)

// Options selects what a single run does beyond building the report.
type Options struct {
	// Deliver ships the report to the configured targets.
	Deliver bool
}

// CertFunc inspects the TLS certificate of the Looker host.
type CertFunc func(ctx context.Context, baseURL string, insecureSkipVerify bool) *security.CertStatus

// SourceFunc builds the activity source for a Looker config.
type SourceFunc func(config.LookerConfig) report.Source

// pipeline is everything derived from one Config.
type pipeline struct {
	agg      *report.Aggregator
	html     *render.HTML
	ship     *shipper.Shipper
	textfile string
	schedule time.Duration

	baseURL  string
	insecure bool
}

// Runner owns the run pipeline. It is safe for concurrent use.
type Runner struct {
	store   *store.Store
	metrics *metrics.Metrics
	source  SourceFunc
	cert    CertFunc

	mu sync.RWMutex
	p  pipeline

	running sync.Mutex
	now     func() time.Time // injectable for deterministic tests
}

// New builds a Runner from cfg. A nil source uses the Looker API client.
func New(cfg *config.Config, st *store.Store, m *metrics.Metrics, source SourceFunc) (*Runner, error) {
	if source == nil {
		source = func(lc config.LookerConfig) report.Source { return looker.New(lc) }
	}
	r := &Runner{store: st, metrics: m, source: source, cert: security.Check, now: time.Now}
	if err := r.Reload(cfg); err != nil {
		return nil, err
	}
	return r, nil
}

// Reload rebuilds the pipeline from cfg. A run in progress finishes with the
// previous pipeline; the next run uses the new one.
func (r *Runner) Reload(cfg *config.Config) error {
	opts, err := report.OptionsFromConfig(cfg.Report)
	if err != nil {
		return fmt.Errorf("runner: %w", err)
	}
	p := pipeline{
		agg:      report.New(r.source(cfg.Looker), report.MonitoredFromConfig(cfg.Monitor), opts),
		html:     render.NewHTML(cfg.Looker.BaseURL, opts.Location),
		ship:     shipper.New(cfg.Delivery, cfg.Looker.BaseURL, opts.Location),
		textfile: cfg.Server.MetricsTextfile,
		schedule: cfg.Report.Schedule,
		baseURL:  cfg.Looker.BaseURL,
		insecure: cfg.Looker.TLS.InsecureSkipVerify,
	}

	r.mu.Lock()
	r.p = p
	r.mu.Unlock()

	slog.Info("runner: pipeline configured",
		"dashboards", len(cfg.Monitor.Dashboards),
		"looks", len(cfg.Monitor.Looks),
		"delivery_targets", p.ship.Targets(),
		"schedule", p.schedule,
	)
	return nil
}

func (r *Runner) pipeline() pipeline {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.p
}

// Run executes one report run. It returns api.ErrRunInProgress when another
// run is executing. When delivery fails the stored entry is still returned
// together with the delivery error.
func (r *Runner) Run(ctx context.Context, opts Options) (*store.Entry, error) {
	if !r.running.TryLock() {
		return nil, api.ErrRunInProgress
	}
	defer r.running.Unlock()

	p := r.pipeline()
	start := r.now()

	rep, err := p.agg.Build(ctx, start)
	if err != nil {
		r.metrics.RunFailed()
		return nil, fmt.Errorf("runner: build report: %w", err)
	}
	dur := r.now().Sub(start)

	entry := r.store.Put(rep, dur)
	r.metrics.Observe(rep, dur)
	r.checkCert(ctx, p)
	if p.textfile != "" {
		if err := r.metrics.WriteTextfile(p.textfile); err != nil {
			slog.Error("runner: write metrics textfile", "path", p.textfile, "err", err)
		}
	}
	slog.Info("runner: run complete", "run_id", rep.RunID, "duration", dur)

	if !opts.Deliver {
		return entry, nil
	}
	return entry, r.deliver(ctx, p, rep)
}

func (r *Runner) checkCert(ctx context.Context, p pipeline) {
	cs := r.cert(ctx, p.baseURL, p.insecure)
	if cs == nil {
		return
	}
	r.metrics.ObserveCert(cs)
	switch cs.Status {
	case security.StatusValid:
		slog.Debug("runner: looker certificate valid", "days_left", cs.DaysLeft)
	case security.StatusUnreachable:
		slog.Warn("runner: looker certificate check failed", "endpoint", cs.Endpoint)
	default:
		slog.Warn("runner: looker certificate "+cs.Status,
			"endpoint", cs.Endpoint, "not_after", cs.NotAfter, "days_left", cs.DaysLeft)
	}
}

func (r *Runner) deliver(ctx context.Context, p pipeline, rep *report.Report) error {
	var body bytes.Buffer
	if err := p.html.Render(&body, rep); err != nil {
		return fmt.Errorf("runner: render html: %w", err)
	}
	if err := p.ship.Ship(ctx, rep, body.String()); err != nil {
		return fmt.Errorf("runner: deliver: %w", err)
	}
	return nil
}

// Loop runs immediately and then once per configured schedule, delivering
// every report, until ctx is cancelled. The schedule is re-read after each
// run so a reload takes effect for the next interval.
func (r *Runner) Loop(ctx context.Context) {
	for {
		if _, err := r.Run(ctx, Options{Deliver: true}); err != nil && ctx.Err() == nil {
			slog.Error("runner: scheduled run failed", "err", err)
		}

		wait := r.pipeline().schedule
		t := time.NewTimer(wait)
		slog.Debug("runner: next run scheduled", "in", wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-t.C:
		}
	}
}

package shipper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"time"

	"github.com/obsidianstack/lookerhealth/agent/internal/config"
	"github.com/obsidianstack/lookerhealth/agent/internal/report"
)

const (
	backoffInitial    = 1 * time.Second
	backoffMax        = 60 * time.Second
	backoffMultiplier = 2.0
	sendTimeout       = 30 * time.Second
)

// target is one delivery destination.
type target interface {
	Name() string
	Send(ctx context.Context, rep *report.Report, html string) error
}

// Shipper delivers reports to the targets built from a DeliveryConfig.
type Shipper struct {
	targets []target
	retries int
	sleep   func(ctx context.Context, d time.Duration) error // injectable for tests
}

// New builds a Shipper from cfg. baseURL is used for artifact links in
// webhook messages, loc for the date in subjects and titles.
// Webhooks with an unknown type or an unset URL are skipped with a warning.
func New(cfg config.DeliveryConfig, baseURL string, loc *time.Location) *Shipper {
	if loc == nil {
		loc = time.UTC
	}
	s := &Shipper{retries: cfg.Retries, sleep: sleepCtx}
	client := &http.Client{Timeout: sendTimeout}

	if cfg.Email.Enabled() {
		s.targets = append(s.targets, newEmailTarget(cfg.Email, loc))
	}
	for _, wh := range cfg.Webhooks {
		url := wh.URL()
		if url == "" {
			slog.Warn("shipper: webhook url not set, skipping", "type", wh.Type, "url_env", wh.URLEnv)
			continue
		}
		switch wh.Type {
		case webhookSlack, webhookTeams, webhookHTTP:
			s.targets = append(s.targets, &webhookTarget{
				kind:    wh.Type,
				url:     url,
				client:  client,
				baseURL: baseURL,
				loc:     loc,
			})
		default:
			slog.Warn("shipper: unknown webhook type, skipping", "type", wh.Type)
		}
	}
	return s
}

// Targets returns the names of the configured targets in delivery order.
func (s *Shipper) Targets() []string {
	out := make([]string, len(s.targets))
	for i, t := range s.targets {
		out[i] = t.Name()
	}
	return out
}

// Ship delivers rep to every target. html is the rendered e-mail body.
// It returns nil when every target succeeded, otherwise the joined errors of
// the targets that failed after all attempts.
func (s *Shipper) Ship(ctx context.Context, rep *report.Report, html string) error {
	if len(s.targets) == 0 {
		slog.Info("shipper: no delivery targets configured", "run_id", rep.RunID)
		return nil
	}

	var errs []error
	for _, t := range s.targets {
		if err := s.deliver(ctx, t, rep, html); err != nil {
			slog.Error("shipper: delivery failed",
				"target", t.Name(),
				"run_id", rep.RunID,
				"err", err,
			)
			errs = append(errs, fmt.Errorf("shipper: %s: %w", t.Name(), err))
			continue
		}
		slog.Info("shipper: report delivered", "target", t.Name(), "run_id", rep.RunID)
	}
	return errors.Join(errs...)
}

// deliver attempts one target up to s.retries times.
func (s *Shipper) deliver(ctx context.Context, t target, rep *report.Report, html string) error {
	attempts := max(s.retries, 1)
	bo := newBackoff()

	var err error
	for attempt := 1; ; attempt++ {
		err = t.Send(ctx, rep, html)
		if err == nil {
			return nil
		}
		if isPermanent(err) || attempt >= attempts {
			return err
		}

		wait := bo.next()
		slog.Warn("shipper: send failed, will retry",
			"target", t.Name(),
			"attempt", attempt,
			"err", err,
			"retry_in", wait,
		)
		if serr := s.sleep(ctx, wait); serr != nil {
			return errors.Join(err, serr)
		}
	}
}

// permanentError marks a failure that retrying cannot fix.
type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

func permanent(err error) error { return &permanentError{err: err} }

func isPermanent(err error) bool {
	var pe *permanentError
	return errors.As(err, &pe)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// backoff implements truncated exponential backoff with jitter.
type backoff struct {
	current time.Duration
}

func newBackoff() *backoff {
	return &backoff{current: backoffInitial}
}

// next returns the current backoff duration and advances the internal state.
func (b *backoff) next() time.Duration {
	d := b.current
	// Apply ±25 % jitter.
	jitter := time.Duration(float64(b.current) * 0.25 * (rand.Float64()*2 - 1)) //nolint:gosec // not crypto
	d += jitter
	if d < 0 {
		d = 0
	}

	b.current = time.Duration(float64(b.current) * backoffMultiplier)
	if b.current > backoffMax {
		b.current = backoffMax
	}
	return d
}

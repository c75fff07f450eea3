package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/obsidianstack/lookerhealth/agent/internal/api"
	"github.com/obsidianstack/lookerhealth/agent/internal/auth"
	"github.com/obsidianstack/lookerhealth/agent/internal/config"
	"github.com/obsidianstack/lookerhealth/agent/internal/logging"
	"github.com/obsidianstack/lookerhealth/agent/internal/metrics"
	"github.com/obsidianstack/lookerhealth/agent/internal/render"
	"github.com/obsidianstack/lookerhealth/agent/internal/runner"
	"github.com/obsidianstack/lookerhealth/agent/internal/store"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run reports on a schedule and serve them over HTTP",
	Long: `Runs a report immediately and then every report.schedule, delivering each
one. The latest reports, a manual run trigger, and Prometheus metrics are
served on server.http_port. Changes to the config file are picked up for
the next run.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := setup(cmd.OutOrStdout())
	if err != nil {
		return err
	}
	log := logging.New("serve")
	log.Info("lookerhealth starting",
		"version", version,
		"config", rootFlags.configPath,
		"http_port", cfg.Server.HTTPPort,
		"auth_mode", cfg.Server.Auth.Mode,
	)

	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	st := store.New(cfg.Server.History)
	m := metrics.New()
	r, err := runner.New(cfg, st, m, nil)
	if err != nil {
		return err
	}

	loc, err := cfg.Report.Location()
	if err != nil {
		return err
	}
	handler := api.New(api.Options{
		Store: st,
		Trigger: func(ctx context.Context) (*store.Entry, error) {
			return r.Run(ctx, runner.Options{})
		},
		Metrics: m.Handler(),
		Auth: auth.APIKey(
			cfg.Server.Auth.Mode,
			cfg.Server.Auth.EffectiveHeader(),
			cfg.Server.Auth.Key(),
		),
		HTML: render.NewHTML(cfg.Looker.BaseURL, loc),
	})

	httpSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Info("HTTP server listening", "port", cfg.Server.HTTPPort)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("HTTP server stopped", "err", err)
			cancel()
		}
	}()

	// Listener settings (port, auth) need a restart; everything the runner
	// uses is swapped in for the next run.
	go func() {
		if err := config.Watch(ctx, rootFlags.configPath, func(updated *config.Config) {
			if err := r.Reload(updated); err != nil {
				log.Error("config reload rejected", "err", err)
			}
		}); err != nil {
			log.Error("config watcher stopped", "err", err)
		}
	}()

	r.Loop(ctx)

	log.Info("lookerhealth shutting down")
	shutdownCtx, done := context.WithTimeout(context.Background(), shutdownTimeout)
	defer done()
	return httpSrv.Shutdown(shutdownCtx)
}

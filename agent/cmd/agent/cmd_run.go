package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/obsidianstack/lookerhealth/agent/internal/logging"
	"github.com/obsidianstack/lookerhealth/agent/internal/metrics"
	"github.com/obsidianstack/lookerhealth/agent/internal/render"
	"github.com/obsidianstack/lookerhealth/agent/internal/runner"
	"github.com/obsidianstack/lookerhealth/agent/internal/store"
)

var runFlags struct {
	output string
	dryRun bool
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Build one report, print it, and deliver it",
	Long: `Runs a single report over the monitored dashboards and looks, prints it
to stdout in the selected format, and delivers it to the configured e-mail
and webhook targets unless --dry-run is given.

Logs go to stderr so stdout carries only the report.`,
	Args: cobra.NoArgs,
	RunE: runRun,
}

func init() {
	f := runCmd.Flags()
	f.StringVarP(&runFlags.output, "output", "o", render.FormatText, "output format: text|json|html")
	f.BoolVar(&runFlags.dryRun, "dry-run", false, "print the report without delivering it")
}

func runRun(cmd *cobra.Command, _ []string) error {
	cfg, err := setup(cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	log := logging.New("run")

	loc, err := cfg.Report.Location()
	if err != nil {
		return err
	}
	out, err := render.New(runFlags.output, cfg.Looker.BaseURL, loc)
	if err != nil {
		return err
	}

	r, err := runner.New(cfg, store.New(1), metrics.New(), nil)
	if err != nil {
		return err
	}

	entry, runErr := r.Run(cmd.Context(), runner.Options{Deliver: !runFlags.dryRun})
	if entry == nil {
		return runErr
	}
	if err := out.Render(cmd.OutOrStdout(), entry.Report); err != nil {
		return err
	}
	if runErr != nil {
		return fmt.Errorf("report built but not fully delivered: %w", runErr)
	}
	log.Info("run finished", "run_id", entry.Report.RunID, "delivered", !runFlags.dryRun)
	return nil
}

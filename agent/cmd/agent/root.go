package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/obsidianstack/lookerhealth/agent/internal/config"
	"github.com/obsidianstack/lookerhealth/agent/internal/logging"
)

// version is set at build time via -ldflags.
var version = "dev"

var rootFlags struct {
	configPath string
	logLevel   string
	logFormat  string
}

var rootCmd = &cobra.Command{
	Use:   "lookerhealth",
	Short: "Health and usage report for monitored Looker dashboards and looks",
	Long: `lookerhealth reads Looker's system activity, flags dashboards and looks
that fail repeatedly for several users, lists those that have not run
recently, and delivers the result by e-mail, webhook, or HTTP API.`,
	SilenceUsage: true,
	CompletionOptions: cobra.CompletionOptions{
		HiddenDefaultCmd: true,
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&rootFlags.configPath, "config", "config.yaml", "path to config file")
	pf.StringVar(&rootFlags.logLevel, "log-level", "", "override log.level (debug|info|warn|error)")
	pf.StringVar(&rootFlags.logFormat, "log-format", "", "override log.format (json|text)")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.Version = version
}

// setup loads the config and initialises logging to w. Flag values override
// the log section of the file.
func setup(w io.Writer) (*config.Config, error) {
	cfg, err := config.Load(rootFlags.configPath)
	if err != nil {
		return nil, err
	}
	if rootFlags.logLevel != "" {
		cfg.Log.Level = rootFlags.logLevel
	}
	switch rootFlags.logFormat {
	case "":
	case "json", "text":
		cfg.Log.Format = rootFlags.logFormat
	default:
		return nil, fmt.Errorf("--log-format: unknown format %q", rootFlags.logFormat)
	}
	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, err
	}
	logging.Init(level, cfg.Log.Format, w)
	return cfg, nil
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		_, err := fmt.Fprintln(cmd.OutOrStdout(), "lookerhealth", version)
		return err
	},
}

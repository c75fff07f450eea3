package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/obsidianstack/lookerhealth/pkg/types"
)

// Default values applied when fields are absent from the config file.
const (
	DefaultAPIVersion           = "4.0"
	DefaultClientIDEnv          = "LOOKERSDK_CLIENT_ID"
	DefaultClientSecretEnv      = "LOOKERSDK_CLIENT_SECRET"
	DefaultLookerTimeout        = 30 * time.Second
	DefaultQueryLimit           = 5000
	DefaultErrorLookback        = 7 * 24 * time.Hour
	DefaultActivityLookback     = 30 * 24 * time.Hour
	DefaultClusterWindow        = 30 * time.Minute
	DefaultUnhealthyMinClusters = 5
	DefaultUnhealthyMinUsers    = 1
	DefaultEvidenceLimit        = 5
	DefaultStaleAfterDays       = 30
	DefaultConcurrency          = 8
	DefaultTimezone             = "Local"
	DefaultSchedule             = 24 * time.Hour
	DefaultSMTPPort             = 587
	DefaultDeliveryRetries      = 3
	DefaultHTTPPort             = 8080
	DefaultHistory              = 50
	DefaultAPIKeyHeader         = "X-API-Key"
	DefaultLogLevel             = "info"
	DefaultLogFormat            = "json"
)

// Config is the top-level configuration of the health agent.
// Fields map 1:1 to config.example.yaml.
type Config struct {
	Looker   LookerConfig   `yaml:"looker"`
	Monitor  MonitorConfig  `yaml:"monitor"`
	Report   ReportConfig   `yaml:"report"`
	Delivery DeliveryConfig `yaml:"delivery"`
	Server   ServerConfig   `yaml:"server"`
	Log      LogConfig      `yaml:"log"`
}

// LookerConfig holds the Looker API connection settings.
type LookerConfig struct {
	// BaseURL is the Looker instance URL, e.g. https://acme.looker.com.
	// It is also used to build links in the rendered report.
	BaseURL string `yaml:"base_url"`

	// APIVersion selects the /api/<version> path prefix.
	APIVersion string `yaml:"api_version"`

	// ClientIDEnv and ClientSecretEnv name the environment variables that
	// hold the API3 credentials.
	ClientIDEnv     string `yaml:"client_id_env"`
	ClientSecretEnv string `yaml:"client_secret_env"`

	// Timeout bounds every HTTP request to Looker.
	Timeout time.Duration `yaml:"timeout"`

	// QueryLimit is the row limit sent with inline system__activity queries.
	QueryLimit int `yaml:"query_limit"`

	TLS TLSConfig `yaml:"tls"`
}

// ClientID returns the API client id resolved from the environment.
func (l LookerConfig) ClientID() string { return envOrEmpty(l.ClientIDEnv) }

// ClientSecret returns the API client secret resolved from the environment.
func (l LookerConfig) ClientSecret() string { return envOrEmpty(l.ClientSecretEnv) }

// TLSConfig holds TLS dial options for the Looker API.
type TLSConfig struct {
	// InsecureSkipVerify disables TLS certificate verification.
	// Only use this for internal CAs in development environments.
	InsecureSkipVerify bool `yaml:"insecure_skip_verify"`
}

// MonitorConfig lists the artifacts to evaluate on every run.
type MonitorConfig struct {
	Dashboards IDList `yaml:"dashboards"`
	Looks      IDList `yaml:"looks"`
}

// For returns the monitored ids of the given kind.
func (m MonitorConfig) For(kind types.Kind) []string {
	switch kind {
	case types.KindDashboard:
		return m.Dashboards
	case types.KindLook:
		return m.Looks
	default:
		return nil
	}
}

// IDList is a list of artifact ids. YAML entries may be written as numbers
// or strings; both decode to their string form.
type IDList []string

// UnmarshalYAML accepts a sequence of scalars.
func (l *IDList) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.SequenceNode {
		return fmt.Errorf("line %d: expected a list of ids", node.Line)
	}
	out := make(IDList, 0, len(node.Content))
	for _, n := range node.Content {
		if n.Kind != yaml.ScalarNode {
			return fmt.Errorf("line %d: id must be a scalar", n.Line)
		}
		id := strings.TrimSpace(n.Value)
		if id == "" {
			return fmt.Errorf("line %d: empty id", n.Line)
		}
		out = append(out, id)
	}
	*l = out
	return nil
}

// ReportConfig holds the classification thresholds and run scheduling.
type ReportConfig struct {
	// ErrorLookback is the trailing window of error history considered.
	ErrorLookback time.Duration `yaml:"error_lookback"`

	// ActivityLookback is the trailing window used for the "ran recently" set.
	ActivityLookback time.Duration `yaml:"activity_lookback"`

	// ClusterWindow is the maximum gap absorbed into one error cluster.
	ClusterWindow time.Duration `yaml:"cluster_window"`

	// UnhealthyMinClusters and UnhealthyMinUsers must both be strictly
	// exceeded for an artifact to be reported unhealthy.
	UnhealthyMinClusters int `yaml:"unhealthy_min_clusters"`
	UnhealthyMinUsers    int `yaml:"unhealthy_min_users"`

	// EvidenceLimit is how many of the most recent clusters are shown
	// for each unhealthy artifact.
	EvidenceLimit int `yaml:"evidence_limit"`

	// StaleAfterDays is the number of whole days without a run after which
	// an artifact is listed as not run recently.
	StaleAfterDays int `yaml:"stale_after_days"`

	// Concurrency bounds parallel per-artifact work (last-run lookups and
	// classification).
	Concurrency int `yaml:"concurrency"`

	// Timezone is the IANA name used to display timestamps. "Local" uses the
	// host zone.
	Timezone string `yaml:"timezone"`

	// Schedule is the interval between runs in serve mode.
	Schedule time.Duration `yaml:"schedule"`
}

// Location loads the display timezone. Validation guarantees it succeeds for
// a loaded Config.
func (r ReportConfig) Location() (*time.Location, error) {
	if r.Timezone == "" {
		return time.Local, nil
	}
	return time.LoadLocation(r.Timezone)
}

// DeliveryConfig holds the report delivery targets.
type DeliveryConfig struct {
	Email    EmailConfig     `yaml:"email"`
	Webhooks []WebhookConfig `yaml:"webhooks"`

	// Retries is the number of attempts per target before giving up.
	Retries int `yaml:"retries"`
}

// EmailConfig configures SMTP delivery of the HTML report.
type EmailConfig struct {
	Host        string   `yaml:"host"`
	Port        int      `yaml:"port"`
	Username    string   `yaml:"username"`
	PasswordEnv string   `yaml:"password_env"`
	From        string   `yaml:"from"`
	To          []string `yaml:"to"`

	// Subject prefixes the report date in the mail subject.
	Subject string `yaml:"subject"`
}

// Enabled reports whether e-mail delivery is configured.
func (e EmailConfig) Enabled() bool { return e.Host != "" && len(e.To) > 0 }

// Password returns the SMTP password resolved from the environment.
func (e EmailConfig) Password() string { return envOrEmpty(e.PasswordEnv) }

// Recipients returns the trimmed, non-empty recipients. Entries may contain
// comma-separated lists.
func (e EmailConfig) Recipients() []string {
	var out []string
	for _, entry := range e.To {
		for _, r := range strings.Split(entry, ",") {
			if r = strings.TrimSpace(r); r != "" {
				out = append(out, r)
			}
		}
	}
	return out
}

// WebhookConfig defines one webhook delivery target.
type WebhookConfig struct {
	// Type is one of: slack | teams | http.
	Type string `yaml:"type"`

	// URLEnv is the name of the environment variable holding the webhook URL.
	URLEnv string `yaml:"url_env"`
}

// URL returns the webhook URL resolved from the environment.
func (w WebhookConfig) URL() string { return envOrEmpty(w.URLEnv) }

// ServerConfig holds the serve-mode HTTP settings.
type ServerConfig struct {
	// HTTPPort is the port the report API and /metrics listen on.
	HTTPPort int `yaml:"http_port"`

	Auth ServerAuthConfig `yaml:"auth"`

	// History is the number of recent reports kept in memory for the API.
	History int `yaml:"history"`

	// MetricsTextfile, when set, is rewritten after every run in the
	// Prometheus text format for the node-exporter textfile collector.
	MetricsTextfile string `yaml:"metrics_textfile"`
}

// ServerAuthConfig configures REST API authentication.
type ServerAuthConfig struct {
	// Mode is one of: apikey | none.
	Mode string `yaml:"mode"`

	// Header is the request header carrying the key.
	Header string `yaml:"header"`

	// KeyEnv is the name of the environment variable holding the expected API key.
	KeyEnv string `yaml:"key_env"`
}

// Key returns the server API key resolved from the environment.
func (a ServerAuthConfig) Key() string { return envOrEmpty(a.KeyEnv) }

// EffectiveHeader returns Header or the default header name.
func (a ServerAuthConfig) EffectiveHeader() string {
	if a.Header == "" {
		return DefaultAPIKeyHeader
	}
	return a.Header
}

// LogConfig selects the slog level and handler.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads and parses the YAML config file at path.
// Missing optional fields are filled with sensible defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML bytes into a validated Config.
func Parse(data []byte) (*Config, error) {
	cfg := defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse yaml: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	return cfg, nil
}

// defaults returns a Config pre-populated with default values.
func defaults() *Config {
	return &Config{
		Looker: LookerConfig{
			APIVersion:      DefaultAPIVersion,
			ClientIDEnv:     DefaultClientIDEnv,
			ClientSecretEnv: DefaultClientSecretEnv,
			Timeout:         DefaultLookerTimeout,
			QueryLimit:      DefaultQueryLimit,
		},
		Report: ReportConfig{
			ErrorLookback:        DefaultErrorLookback,
			ActivityLookback:     DefaultActivityLookback,
			ClusterWindow:        DefaultClusterWindow,
			UnhealthyMinClusters: DefaultUnhealthyMinClusters,
			UnhealthyMinUsers:    DefaultUnhealthyMinUsers,
			EvidenceLimit:        DefaultEvidenceLimit,
			StaleAfterDays:       DefaultStaleAfterDays,
			Concurrency:          DefaultConcurrency,
			Timezone:             DefaultTimezone,
			Schedule:             DefaultSchedule,
		},
		Delivery: DeliveryConfig{
			Email: EmailConfig{
				Port:    DefaultSMTPPort,
				Subject: "Looker Health Report",
			},
			Retries: DefaultDeliveryRetries,
		},
		Server: ServerConfig{
			HTTPPort: DefaultHTTPPort,
			History:  DefaultHistory,
		},
		Log: LogConfig{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
	}
}

// validate checks required fields and structural constraints.
func validate(cfg *Config) error {
	if cfg.Looker.BaseURL == "" {
		return fmt.Errorf("looker.base_url is required")
	}
	u, err := url.Parse(cfg.Looker.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("looker.base_url %q must be an absolute URL", cfg.Looker.BaseURL)
	}
	cfg.Looker.BaseURL = strings.TrimRight(cfg.Looker.BaseURL, "/")
	if cfg.Looker.Timeout <= 0 {
		return fmt.Errorf("looker.timeout must be positive")
	}
	if cfg.Looker.QueryLimit <= 0 {
		return fmt.Errorf("looker.query_limit must be positive")
	}

	if len(cfg.Monitor.Dashboards) == 0 && len(cfg.Monitor.Looks) == 0 {
		return fmt.Errorf("monitor: at least one dashboard or look id is required")
	}
	for _, kind := range types.Kinds {
		seen := make(map[string]bool)
		for _, id := range cfg.Monitor.For(kind) {
			if seen[id] {
				return fmt.Errorf("monitor.%s: duplicate id %q", kind.Plural(), id)
			}
			seen[id] = true
		}
	}

	r := cfg.Report
	if r.ErrorLookback <= 0 {
		return fmt.Errorf("report.error_lookback must be positive")
	}
	if r.ActivityLookback <= 0 {
		return fmt.Errorf("report.activity_lookback must be positive")
	}
	if r.ClusterWindow <= 0 {
		return fmt.Errorf("report.cluster_window must be positive")
	}
	if r.UnhealthyMinClusters < 0 || r.UnhealthyMinUsers < 0 {
		return fmt.Errorf("report: unhealthy thresholds must not be negative")
	}
	if r.EvidenceLimit < 0 {
		return fmt.Errorf("report.evidence_limit must not be negative")
	}
	if r.StaleAfterDays <= 0 {
		return fmt.Errorf("report.stale_after_days must be positive")
	}
	if r.Concurrency <= 0 {
		return fmt.Errorf("report.concurrency must be positive")
	}
	if r.Schedule <= 0 {
		return fmt.Errorf("report.schedule must be positive")
	}
	if _, err := r.Location(); err != nil {
		return fmt.Errorf("report.timezone %q: %w", r.Timezone, err)
	}

	if cfg.Delivery.Retries <= 0 {
		return fmt.Errorf("delivery.retries must be positive")
	}
	if e := cfg.Delivery.Email; e.Enabled() {
		if e.From == "" {
			return fmt.Errorf("delivery.email.from is required when email is enabled")
		}
		if e.Port <= 0 {
			return fmt.Errorf("delivery.email.port must be positive")
		}
	}
	for i, wh := range cfg.Delivery.Webhooks {
		switch wh.Type {
		case "slack", "teams", "http":
		default:
			return fmt.Errorf("delivery.webhooks[%d]: unknown type %q", i, wh.Type)
		}
		if wh.URLEnv == "" {
			return fmt.Errorf("delivery.webhooks[%d]: url_env is required", i)
		}
	}

	switch cfg.Server.Auth.Mode {
	case "apikey", "none", "":
	default:
		return fmt.Errorf("server.auth: unknown mode %q", cfg.Server.Auth.Mode)
	}
	if cfg.Server.HTTPPort <= 0 {
		return fmt.Errorf("server.http_port must be positive")
	}
	if cfg.Server.History <= 0 {
		return fmt.Errorf("server.history must be positive")
	}

	switch cfg.Log.Format {
	case "json", "text":
	default:
		return fmt.Errorf("log.format: unknown format %q", cfg.Log.Format)
	}
	return nil
}

func envOrEmpty(name string) string {
	if name == "" {
		return ""
	}
	return os.Getenv(name)
}

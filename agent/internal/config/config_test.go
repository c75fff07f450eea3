package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/obsidianstack/lookerhealth/pkg/types"
)

func TestLoad_Valid(t *testing.T) {
	yaml := `
looker:
  base_url: "https://acme.looker.com/"
  timeout: 10s
monitor:
  dashboards: [615, 5382, "abc-1"]
  looks:
    - 13281
report:
  cluster_window: 15m
  evidence_limit: 3
  timezone: UTC
delivery:
  email:
    host: smtp.example.com
    from: reports@example.com
    to: ["a@example.com, b@example.com", "c@example.com"]
  webhooks:
    - type: slack
      url_env: SLACK_URL
`
	cfg := loadFromString(t, yaml)

	if cfg.Looker.BaseURL != "https://acme.looker.com" {
		t.Errorf("base_url: got %q, want trailing slash trimmed", cfg.Looker.BaseURL)
	}
	if cfg.Looker.Timeout != 10*time.Second {
		t.Errorf("timeout: got %v", cfg.Looker.Timeout)
	}
	if diff := cmp.Diff([]string{"615", "5382", "abc-1"}, cfg.Monitor.For(types.KindDashboard)); diff != "" {
		t.Errorf("dashboards mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"13281"}, cfg.Monitor.For(types.KindLook)); diff != "" {
		t.Errorf("looks mismatch (-want +got):\n%s", diff)
	}
	if cfg.Report.ClusterWindow != 15*time.Minute {
		t.Errorf("cluster_window: got %v", cfg.Report.ClusterWindow)
	}
	if cfg.Report.EvidenceLimit != 3 {
		t.Errorf("evidence_limit: got %d", cfg.Report.EvidenceLimit)
	}
	if diff := cmp.Diff([]string{"a@example.com", "b@example.com", "c@example.com"}, cfg.Delivery.Email.Recipients()); diff != "" {
		t.Errorf("recipients mismatch (-want +got):\n%s", diff)
	}
	if !cfg.Delivery.Email.Enabled() {
		t.Error("email should be enabled")
	}
}

func TestLoad_Defaults(t *testing.T) {
	yaml := `
looker:
  base_url: "https://acme.looker.com"
monitor:
  looks: [1]
`
	cfg := loadFromString(t, yaml)

	r := cfg.Report
	if r.ErrorLookback != DefaultErrorLookback {
		t.Errorf("default error_lookback: got %v, want %v", r.ErrorLookback, DefaultErrorLookback)
	}
	if r.ActivityLookback != DefaultActivityLookback {
		t.Errorf("default activity_lookback: got %v, want %v", r.ActivityLookback, DefaultActivityLookback)
	}
	if r.ClusterWindow != 30*time.Minute {
		t.Errorf("default cluster_window: got %v", r.ClusterWindow)
	}
	if r.UnhealthyMinClusters != 5 || r.UnhealthyMinUsers != 1 {
		t.Errorf("default thresholds: got clusters=%d users=%d", r.UnhealthyMinClusters, r.UnhealthyMinUsers)
	}
	if r.EvidenceLimit != 5 {
		t.Errorf("default evidence_limit: got %d", r.EvidenceLimit)
	}
	if r.StaleAfterDays != 30 {
		t.Errorf("default stale_after_days: got %d", r.StaleAfterDays)
	}
	if cfg.Looker.QueryLimit != DefaultQueryLimit {
		t.Errorf("default query_limit: got %d", cfg.Looker.QueryLimit)
	}
	if cfg.Delivery.Email.Port != DefaultSMTPPort {
		t.Errorf("default smtp port: got %d", cfg.Delivery.Email.Port)
	}
	if cfg.Delivery.Email.Enabled() {
		t.Error("email should be disabled without host and recipients")
	}
	if cfg.Server.HTTPPort != DefaultHTTPPort {
		t.Errorf("default http_port: got %d", cfg.Server.HTTPPort)
	}
	if cfg.Server.History != DefaultHistory {
		t.Errorf("default history: got %d", cfg.Server.History)
	}
	if cfg.Server.Auth.EffectiveHeader() != DefaultAPIKeyHeader {
		t.Errorf("default auth header: got %q", cfg.Server.Auth.EffectiveHeader())
	}
	loc, err := r.Location()
	if err != nil || loc != time.Local {
		t.Errorf("default Location: got %v, %v; want Local", loc, err)
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"missing base_url", `
monitor:
  looks: [1]
`},
		{"relative base_url", `
looker:
  base_url: "acme.looker.com"
monitor:
  looks: [1]
`},
		{"nothing monitored", `
looker:
  base_url: "https://acme.looker.com"
`},
		{"duplicate id", `
looker:
  base_url: "https://acme.looker.com"
monitor:
  dashboards: [1, "1"]
`},
		{"id map instead of list", `
looker:
  base_url: "https://acme.looker.com"
monitor:
  dashboards: {a: 1}
`},
		{"unknown webhook type", `
looker:
  base_url: "https://acme.looker.com"
monitor:
  looks: [1]
delivery:
  webhooks:
    - type: carrier-pigeon
      url_env: X
`},
		{"webhook without url_env", `
looker:
  base_url: "https://acme.looker.com"
monitor:
  looks: [1]
delivery:
  webhooks:
    - type: slack
`},
		{"email without from", `
looker:
  base_url: "https://acme.looker.com"
monitor:
  looks: [1]
delivery:
  email:
    host: smtp.example.com
    to: [a@example.com]
`},
		{"bad timezone", `
looker:
  base_url: "https://acme.looker.com"
monitor:
  looks: [1]
report:
  timezone: Mars/Olympus_Mons
`},
		{"zero stale days", `
looker:
  base_url: "https://acme.looker.com"
monitor:
  looks: [1]
report:
  stale_after_days: 0
`},
		{"unknown auth mode", `
looker:
  base_url: "https://acme.looker.com"
monitor:
  looks: [1]
server:
  auth:
    mode: magictoken
`},
		{"zero history", `
looker:
  base_url: "https://acme.looker.com"
monitor:
  looks: [1]
server:
  history: 0
`},
		{"unknown log format", `
looker:
  base_url: "https://acme.looker.com"
monitor:
  looks: [1]
log:
  format: xml
`},
		{"malformed yaml", "looker: [unclosed"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := loadStringErr(t, tc.yaml); err == nil {
				t.Fatal("expected error, got nil")
			}
		})
	}
}

func TestLoad_ExampleFile(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "..", "..", "config.example.yaml"))
	if err != nil {
		t.Fatalf("config.example.yaml does not load: %v", err)
	}
	if diff := cmp.Diff([]string{"12", "57", "marketing::overview"}, cfg.Monitor.For(types.KindDashboard)); diff != "" {
		t.Errorf("dashboards mismatch (-want +got):\n%s", diff)
	}
	if len(cfg.Delivery.Webhooks) != 3 {
		t.Errorf("webhooks = %d, want 3", len(cfg.Delivery.Webhooks))
	}
	// The documented credential variables are the ones used when the keys
	// are left out.
	if cfg.Looker.ClientIDEnv != DefaultClientIDEnv || cfg.Looker.ClientSecretEnv != DefaultClientSecretEnv {
		t.Errorf("example credential env = %q/%q, want defaults %q/%q",
			cfg.Looker.ClientIDEnv, cfg.Looker.ClientSecretEnv, DefaultClientIDEnv, DefaultClientSecretEnv)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLookerConfig_Credentials(t *testing.T) {
	t.Setenv("TEST_LOOKER_ID", "id-123")
	t.Setenv("TEST_LOOKER_SECRET", "s3cret")
	l := LookerConfig{ClientIDEnv: "TEST_LOOKER_ID", ClientSecretEnv: "TEST_LOOKER_SECRET"}
	if got := l.ClientID(); got != "id-123" {
		t.Errorf("ClientID(): got %q", got)
	}
	if got := l.ClientSecret(); got != "s3cret" {
		t.Errorf("ClientSecret(): got %q", got)
	}
}

func TestEnvResolvers_Empty(t *testing.T) {
	if got := (EmailConfig{}).Password(); got != "" {
		t.Errorf("Password() with no env: got %q, want empty", got)
	}
	if got := (ServerAuthConfig{}).Key(); got != "" {
		t.Errorf("Key() with no env: got %q, want empty", got)
	}
}

func TestWebhookConfig_URL(t *testing.T) {
	t.Setenv("TEAMS_URL", "https://teams.example.com/webhook")
	w := WebhookConfig{Type: "teams", URLEnv: "TEAMS_URL"}
	if got := w.URL(); got != "https://teams.example.com/webhook" {
		t.Errorf("URL(): got %q", got)
	}
}

func TestWatch_ReloadsOnWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, path, `
looker:
  base_url: "https://acme.looker.com"
monitor:
  looks: [1]
`)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan *Config, 1)
	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, path, func(c *Config) {
			select {
			case got <- c:
			default:
			}
		})
	}()

	// Give the watcher a moment to register before writing.
	time.Sleep(100 * time.Millisecond)
	writeFile(t, path, `
looker:
  base_url: "https://acme.looker.com"
monitor:
  looks: [1, 2]
`)

	select {
	case c := <-got:
		if len(c.Monitor.Looks) != 2 {
			t.Errorf("reloaded looks: got %d, want 2", len(c.Monitor.Looks))
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for reload")
	}

	cancel()
	if err := <-done; err != nil {
		t.Errorf("Watch returned error: %v", err)
	}
}

func TestWatch_ReloadsOnRenameOver(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	writeFile(t, path, `
looker:
  base_url: "https://acme.looker.com"
monitor:
  dashboards: [1]
`)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan *Config, 4)
	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, path, func(c *Config) {
			select {
			case got <- c:
			default:
			}
		})
	}()

	time.Sleep(100 * time.Millisecond)

	// Unrelated files in the same directory are ignored.
	writeFile(t, filepath.Join(dir, "other.yaml"), "not: config\n")

	tmp := path + ".tmp"
	writeFile(t, tmp, `
looker:
  base_url: "https://acme.looker.com"
monitor:
  dashboards: [1, 2]
`)
	if err := os.Rename(tmp, path); err != nil {
		t.Fatal(err)
	}

	select {
	case c := <-got:
		if len(c.Monitor.Dashboards) != 2 {
			t.Errorf("reloaded dashboards: got %d, want 2", len(c.Monitor.Dashboards))
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for reload after rename-over save")
	}

	// A second save still reloads: the watch survived the inode swap.
	writeFile(t, tmp, `
looker:
  base_url: "https://acme.looker.com"
monitor:
  dashboards: [1, 2, 3]
`)
	if err := os.Rename(tmp, path); err != nil {
		t.Fatal(err)
	}
	deadline := time.After(5 * time.Second)
	for {
		select {
		case c := <-got:
			if len(c.Monitor.Dashboards) == 3 {
				cancel()
				if err := <-done; err != nil {
					t.Errorf("Watch returned error: %v", err)
				}
				return
			}
		case <-deadline:
			t.Fatal("timed out waiting for second reload")
		}
	}
}

// loadFromString writes yaml to a temp file and calls Load, failing on error.
func loadFromString(t *testing.T, content string) *Config {
	t.Helper()
	cfg, err := loadStringErr(t, content)
	if err != nil {
		t.Fatalf("Load() unexpected error: %v", err)
	}
	return cfg
}

// loadStringErr writes yaml to a temp file and calls Load, returning any error.
func loadStringErr(t *testing.T, content string) (*Config, error) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, path, content)
	return Load(path)
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
}

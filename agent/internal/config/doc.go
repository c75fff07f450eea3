// Package config loads and watches the agent configuration file (config.yaml).
//
// Top-level types:
//   - Config{Looker, Monitor, Report, Delivery, Server, Log}: full config tree
//   - LookerConfig: base_url, api_version, client_id_env, client_secret_env,
//     timeout, query_limit, tls; ClientID() and ClientSecret() resolve from env
//   - MonitorConfig: dashboards and looks id lists (numbers or strings)
//   - ReportConfig: lookback windows, cluster window, unhealthy thresholds,
//     evidence limit, stale threshold, concurrency, display timezone, schedule
//   - DeliveryConfig: SMTP e-mail and webhook targets; secrets via *_env
//   - ServerConfig: serve-mode HTTP port, API key auth, report history, metrics textfile
//
// Load(path) reads the YAML file, applies defaults (7d errors, 30d activity,
// 30m clusters, >5 clusters and >1 user, 5 evidence rows, 30 stale days),
// then validates required fields and enums.
//
// Watch(ctx, path, onChange) uses fsnotify to detect file changes and calls
// onChange with the newly parsed Config. It watches the parent directory so
// the rename-over saves of editors and ConfigMap updates are picked up.
package config

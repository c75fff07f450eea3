// Package looker is a small client for the parts of the Looker API 4.0 the
// agent needs: API3 login, inline queries against the system__activity model,
// and dashboard/look lookups.
//
// client.go builds the HTTP client once per Client (TLS options, timeout) and
// wraps it in authRoundTripper, which logs in lazily, caches the access token
// until shortly before it expires, and injects "Authorization: token ...".
// A 401 drops the cached token and the request is retried once.
//
// activity.go maps system__activity history rows onto the agent's types:
// RecentErrors (error events per dashboard and look), RanSince (ids with any
// run in the lookback) and LastRun (last_run_at of a single artifact).
package looker

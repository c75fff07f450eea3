// Package shipper delivers a finished report to every configured target:
// an HTML e-mail over SMTP and Slack, Teams or generic HTTP webhooks.
//
// Each target is attempted up to Delivery.Retries times with truncated
// exponential backoff (1s→60s, ±25% jitter) between attempts. Permanent
// failures (HTTP 4xx other than 429) are not retried. A failing target never
// prevents delivery to the others; Ship returns the joined errors.
//
// The SMTP send function and the sleep between attempts are injectable for
// testing.
package shipper

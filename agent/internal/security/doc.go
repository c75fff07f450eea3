// Package security inspects the TLS certificate served by the Looker host so
// an approaching expiry shows up next to the report it would eventually break.
package security

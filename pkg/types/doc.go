// Package types defines shared Go types used across the agent packages.
// These are the canonical in-memory representations of Looker activity data,
// separate from the JSON shapes returned by the Looker API.
package types

package types

import (
	"strings"
	"time"
)

// Kind identifies the type of a monitored Looker artifact.
type Kind string

const (
	KindDashboard Kind = "dashboard"
	KindLook      Kind = "look"
)

// Kinds is the fixed evaluation and rendering order of artifact kinds.
var Kinds = []Kind{KindDashboard, KindLook}

// Plural returns the lowercase plural form, e.g. "dashboards".
func (k Kind) Plural() string { return string(k) + "s" }

// Title returns the capitalised singular form, e.g. "Dashboard".
func (k Kind) Title() string {
	if k == "" {
		return ""
	}
	return strings.ToUpper(string(k[:1])) + string(k[1:])
}

// RawEvent is one recorded error occurrence for one artifact, exactly as
// fetched. Empty strings mean the field was absent in the source row.
type RawEvent struct {
	Time    string `json:"time,omitempty"`
	QueryID string `json:"query_id,omitempty"`
	UserID  string `json:"user_id,omitempty"`
	Message string `json:"message,omitempty"`
}

// Event is a RawEvent whose time has been parsed into a comparable instant.
type Event struct {
	Time    time.Time `json:"time"`
	QueryID string    `json:"query_id,omitempty"`
	UserID  string    `json:"user_id,omitempty"`
	Message string    `json:"message"`
}

// LastRun is the best-effort last-activity signal for one artifact.
//
// Raw holds the timestamp string returned by the API (empty when the artifact
// has never run). At is set instead of Raw when the caller already holds a
// parsed instant. Err is non-nil when the lookup itself failed.
type LastRun struct {
	Raw string
	At  time.Time
	Err error
}

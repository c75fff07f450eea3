package compute

import (
	"fmt"
	"math"
	"time"

	"github.com/obsidianstack/lookerhealth/pkg/types"
)

// DefaultStaleAfterDays is the number of whole days without a run after which
// an artifact is reported as not run recently.
const DefaultStaleAfterDays = 30

// StalenessKind enumerates the outcomes of ClassifyStaleness.
type StalenessKind string

const (
	// NeverRun means the artifact has no recorded run at all.
	NeverRun StalenessKind = "never_run"
	// StaleUnknown means a run time exists but could not be determined:
	// the lookup failed or the value did not parse.
	StaleUnknown StalenessKind = "unknown"
	// StaleForDays means the last run is known; Days holds its age.
	StaleForDays StalenessKind = "days"
)

// StalenessVerdict describes how long ago an artifact last ran.
type StalenessVerdict struct {
	Kind StalenessKind `json:"kind"`
	Days int           `json:"days,omitempty"`
	// LastRun is set when Kind is StaleForDays.
	LastRun time.Time `json:"last_run,omitzero"`
}

// Stale reports whether the verdict counts as not run recently for the given
// threshold. NeverRun is always stale; StaleUnknown never is.
func (v StalenessVerdict) Stale(thresholdDays int) bool {
	switch v.Kind {
	case NeverRun:
		return true
	case StaleForDays:
		return v.Days > thresholdDays
	default:
		return false
	}
}

// Inconclusive reports whether the last run could not be determined.
func (v StalenessVerdict) Inconclusive() bool { return v.Kind == StaleUnknown }

// String renders the verdict for humans: "Never run", "Unknown", "45 days ago".
func (v StalenessVerdict) String() string {
	switch v.Kind {
	case NeverRun:
		return "Never run"
	case StaleForDays:
		return fmt.Sprintf("%d days ago", v.Days)
	default:
		return "Unknown"
	}
}

// ClassifyStaleness turns a last-run signal into a verdict relative to now.
// now should be captured once per run so every artifact is measured against
// the same instant.
func ClassifyStaleness(sig types.LastRun, now time.Time, loc *time.Location) StalenessVerdict {
	if sig.Err != nil {
		return StalenessVerdict{Kind: StaleUnknown}
	}

	t := sig.At
	if t.IsZero() {
		if sig.Raw == "" {
			return StalenessVerdict{Kind: NeverRun}
		}
		parsed, ok := ParseTime(sig.Raw, loc)
		if !ok {
			return StalenessVerdict{Kind: StaleUnknown}
		}
		t = parsed
	}

	return StalenessVerdict{
		Kind:    StaleForDays,
		Days:    daysBetween(t, now),
		LastRun: t,
	}
}

// daysBetween returns the whole number of days from then to now, rounded
// toward negative infinity.
func daysBetween(then, now time.Time) int {
	return int(math.Floor(now.Sub(then).Hours() / 24))
}

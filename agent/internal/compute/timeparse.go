package compute

import (
	"time"

	"github.com/obsidianstack/lookerhealth/pkg/types"
)

// UnknownMessage replaces an empty error message on a normalized event.
const UnknownMessage = "Unknown error"

// timeLayouts are tried in order; the first layout that parses wins.
// Offset-aware layouts come before the naive one.
var timeLayouts = []struct {
	layout string
	naive  bool
}{
	{layout: "2006-01-02T15:04:05Z07:00"},
	{layout: "2006-01-02T15:04:05-0700"},
	{layout: "2006-01-02 15:04:05", naive: true},
}

// ParseTime converts a Looker timestamp string into an instant in loc.
//
// Two shapes are recognised: an ISO-8601 timestamp with an explicit UTC offset
// ("2024-03-01T09:15:00+00:00", "...Z", "...+0000") and a plain
// "2024-03-01 09:15:00" which is taken to be UTC. Anything else, including the
// empty string, returns ok == false. A nil loc means UTC.
func ParseTime(raw string, loc *time.Location) (t time.Time, ok bool) {
	if raw == "" {
		return time.Time{}, false
	}
	if loc == nil {
		loc = time.UTC
	}
	for _, l := range timeLayouts {
		var (
			parsed time.Time
			err    error
		)
		if l.naive {
			parsed, err = time.ParseInLocation(l.layout, raw, time.UTC)
		} else {
			parsed, err = time.Parse(l.layout, raw)
		}
		if err != nil {
			continue
		}
		return parsed.In(loc), true
	}
	return time.Time{}, false
}

// NormalizeEvent parses ev.Time and fills the message placeholder.
// It returns ok == false when the time is absent or unparseable; such events
// take no part in clustering.
func NormalizeEvent(ev types.RawEvent, loc *time.Location) (types.Event, bool) {
	t, ok := ParseTime(ev.Time, loc)
	if !ok {
		return types.Event{}, false
	}
	msg := ev.Message
	if msg == "" {
		msg = UnknownMessage
	}
	return types.Event{
		Time:    t,
		QueryID: ev.QueryID,
		UserID:  ev.UserID,
		Message: msg,
	}, true
}

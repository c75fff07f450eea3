package render

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/obsidianstack/lookerhealth/agent/internal/report"
	"github.com/obsidianstack/lookerhealth/pkg/types"
)

// Output formats accepted by New.
const (
	FormatText = "text"
	FormatJSON = "json"
	FormatHTML = "html"
)

// EventTimeLayout is the layout used for evidence and report timestamps.
const EventTimeLayout = "2006-01-02 15:04:05"

// Renderer writes a report to an output stream.
type Renderer interface {
	Render(w io.Writer, rep *report.Report) error
}

// New returns the renderer for format. baseURL is the Looker instance used to
// build artifact links; loc is the display zone (nil means UTC).
func New(format, baseURL string, loc *time.Location) (Renderer, error) {
	if loc == nil {
		loc = time.UTC
	}
	switch strings.ToLower(format) {
	case FormatText, "":
		return NewText(baseURL, loc), nil
	case FormatJSON:
		return NewJSON(), nil
	case FormatHTML:
		return NewHTML(baseURL, loc), nil
	default:
		return nil, fmt.Errorf("render: unknown format %q", format)
	}
}

// ArtifactURL returns the Looker UI link of one artifact.
func ArtifactURL(baseURL string, kind types.Kind, id string) string {
	return strings.TrimRight(baseURL, "/") + "/" + kind.Plural() + "/" + id
}

// EvidenceLine formats one evidence event as
// "2026-01-01 10:00:00: Query q1 - boom (User alice)".
func EvidenceLine(ev types.Event, loc *time.Location) string {
	t := "unknown"
	if !ev.Time.IsZero() {
		t = ev.Time.In(loc).Format(EventTimeLayout)
	}
	return fmt.Sprintf("%s: Query %s - %s (User %s)", t, orUnknown(ev.QueryID), ev.Message, orUnknown(ev.UserID))
}

// Subject returns the e-mail subject line for rep.
func Subject(prefix string, rep *report.Report, loc *time.Location) string {
	if prefix == "" {
		prefix = "Looker Health Report"
	}
	return prefix + " - " + rep.GeneratedAt.In(loc).Format(time.DateOnly)
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}

func pluralTitle(kind types.Kind) string { return kind.Title() + "s" }

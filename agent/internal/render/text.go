package render

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/obsidianstack/lookerhealth/agent/internal/report"
)

const evidenceIndent = "      "

// textStyles are bound to the destination writer so color is only emitted
// when it is a terminal.
type textStyles struct {
	title, section, good, warn, bad, evidence, link lipgloss.Style
}

func newTextStyles(w io.Writer) textStyles {
	r := lipgloss.NewRenderer(w)
	return textStyles{
		title:    r.NewStyle().Bold(true),
		section:  r.NewStyle().Bold(true).Foreground(lipgloss.Color("39")),
		good:     r.NewStyle().Foreground(lipgloss.Color("42")),
		warn:     r.NewStyle().Foreground(lipgloss.Color("220")),
		bad:      r.NewStyle().Foreground(lipgloss.Color("196")).Bold(true),
		evidence: r.NewStyle().Foreground(lipgloss.Color("245")),
		link:     r.NewStyle().Faint(true),
	}
}

// Text prints a colored terminal summary of the report.
type Text struct {
	baseURL string
	loc     *time.Location
}

// NewText returns a Text renderer.
func NewText(baseURL string, loc *time.Location) *Text {
	if loc == nil {
		loc = time.UTC
	}
	return &Text{baseURL: baseURL, loc: loc}
}

func (t *Text) Render(w io.Writer, rep *report.Report) error {
	var b strings.Builder
	st := newTextStyles(w)

	fmt.Fprintln(&b, st.title.Render("Looker Health Report - "+rep.GeneratedAt.In(t.loc).Format(time.DateOnly)))
	fmt.Fprintf(&b, "run %s\n\n", rep.RunID)

	for _, kr := range rep.Kinds() {
		ratio := fmt.Sprintf("%d/%d (%.1f%%)", kr.Healthy, kr.Total, kr.HealthyPct())
		fmt.Fprintf(&b, "%-12s %s\n", pluralTitle(kr.Kind)+":", pctStyle(st, kr).Render(ratio))
	}

	for _, kr := range rep.Kinds() {
		if len(kr.Unhealthy) == 0 {
			continue
		}
		fmt.Fprintf(&b, "\n%s\n", st.section.Render("Unhealthy "+pluralTitle(kr.Kind)))
		for _, u := range kr.Unhealthy {
			fmt.Fprintf(&b, "  %s %s  %s\n",
				st.bad.Render(kr.Kind.Title()+" "+u.ID),
				fmt.Sprintf("%d clusters, %d users", u.Clusters, u.Users),
				st.link.Render(ArtifactURL(t.baseURL, kr.Kind, u.ID)),
			)
			for _, ev := range u.Evidence {
				fmt.Fprintln(&b, evidenceIndent+st.evidence.Render(EvidenceLine(ev, t.loc)))
			}
		}
	}

	for _, kr := range rep.Kinds() {
		fmt.Fprintf(&b, "\n%s\n", st.section.Render(fmt.Sprintf("%s not run in last %d days", pluralTitle(kr.Kind), rep.StaleAfterDays)))
		if len(kr.Stale) == 0 {
			fmt.Fprintf(&b, "  %s\n", st.good.Render(fmt.Sprintf("All monitored %s have run in the last %d days.", kr.Kind.Plural(), rep.StaleAfterDays)))
		}
		for _, s := range kr.Stale {
			fmt.Fprintf(&b, "  %s  %s\n", st.warn.Render(kr.Kind.Title()+" "+s.ID), s.Verdict)
		}
		for _, s := range kr.Inconclusive {
			fmt.Fprintf(&b, "  %s  unknown last run: %s\n", kr.Kind.Title()+" "+s.ID, s.Reason)
		}
	}

	_, err := io.WriteString(w, b.String())
	return err
}

func pctStyle(st textStyles, kr *report.KindReport) lipgloss.Style {
	switch {
	case len(kr.Unhealthy) == 0:
		return st.good
	case kr.HealthyPct() >= 50:
		return st.warn
	default:
		return st.bad
	}
}

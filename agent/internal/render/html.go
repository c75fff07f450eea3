package render

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/obsidianstack/lookerhealth/agent/internal/report"
)

var htmlTmpl = template.Must(template.New("report").Parse(`<h1 style="font-size:22px;"><b>Looker Health Report - {{.Date}}</b></h1>
<hr/>
{{- range .Kinds}}
<p><b>{{.Title}} Healthy:</b> {{.Healthy}}/{{.Total}} ({{printf "%.1f" .Pct}}%)</p>
{{- end}}
{{- range .Kinds}}{{if .Unhealthy}}
<h2><b>Unhealthy {{.Title}}</b></h2>
{{- range .Unhealthy}}
<p><a href="{{.URL}}"><b>{{.Label}}</b></a></p>
<ul>
{{- range .Evidence}}
<li>{{.}}</li>
{{- end}}
</ul>
{{- end}}
{{- end}}{{end}}
{{- range .Kinds}}
<h2><b>{{.Title}} not run in last {{$.StaleDays}} days</b></h2>
{{- if .Stale}}
<ul>
{{- range .Stale}}
<li><a href="{{.URL}}">{{.Label}}</a> ({{.Detail}})</li>
{{- end}}
</ul>
{{- else}}
<p>All monitored {{.Plural}} have run in the last {{$.StaleDays}} days.</p>
{{- end}}
{{- if .Inconclusive}}
<h2><b>{{.Title}} with unknown last run</b></h2>
<ul>
{{- range .Inconclusive}}
<li><a href="{{.URL}}">{{.Label}}</a>{{if .Detail}} ({{.Detail}}){{end}}</li>
{{- end}}
</ul>
{{- end}}
{{- end}}
<hr/>
<p>Report generated: {{.Generated}}</p>
`))

// HTML renders the e-mail body.
type HTML struct {
	baseURL string
	loc     *time.Location
}

// NewHTML returns an HTML renderer linking artifacts under baseURL.
func NewHTML(baseURL string, loc *time.Location) *HTML {
	if loc == nil {
		loc = time.UTC
	}
	return &HTML{baseURL: baseURL, loc: loc}
}

type htmlView struct {
	Date      string
	Generated string
	StaleDays int
	Kinds     []kindView
}

type kindView struct {
	Title        string
	Plural       string
	Healthy      int
	Total        int
	Pct          float64
	Unhealthy    []artifactView
	Stale        []artifactView
	Inconclusive []artifactView
}

type artifactView struct {
	Label    string
	URL      string
	Detail   string
	Evidence []string
}

func (h *HTML) Render(w io.Writer, rep *report.Report) error {
	if err := htmlTmpl.Execute(w, h.view(rep)); err != nil {
		return fmt.Errorf("render: execute html: %w", err)
	}
	return nil
}

func (h *HTML) view(rep *report.Report) htmlView {
	v := htmlView{
		Date:      rep.GeneratedAt.In(h.loc).Format(time.DateOnly),
		Generated: rep.GeneratedAt.In(h.loc).Format(time.RFC3339),
		StaleDays: rep.StaleAfterDays,
	}
	for _, kr := range rep.Kinds() {
		kv := kindView{
			Title:   pluralTitle(kr.Kind),
			Plural:  kr.Kind.Plural(),
			Healthy: kr.Healthy,
			Total:   kr.Total,
			Pct:     kr.HealthyPct(),
		}
		for _, u := range kr.Unhealthy {
			av := h.artifact(kr, u.ID, "")
			for _, ev := range u.Evidence {
				av.Evidence = append(av.Evidence, EvidenceLine(ev, h.loc))
			}
			kv.Unhealthy = append(kv.Unhealthy, av)
		}
		for _, s := range kr.Stale {
			kv.Stale = append(kv.Stale, h.artifact(kr, s.ID, s.Verdict.String()))
		}
		for _, s := range kr.Inconclusive {
			kv.Inconclusive = append(kv.Inconclusive, h.artifact(kr, s.ID, s.Reason))
		}
		v.Kinds = append(v.Kinds, kv)
	}
	return v
}

func (h *HTML) artifact(kr *report.KindReport, id, detail string) artifactView {
	return artifactView{
		Label:  kr.Kind.Title() + " " + id,
		URL:    ArtifactURL(h.baseURL, kr.Kind, id),
		Detail: detail,
	}
}

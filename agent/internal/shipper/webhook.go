package shipper

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/obsidianstack/lookerhealth/agent/internal/render"
	"github.com/obsidianstack/lookerhealth/agent/internal/report"
)

const (
	webhookSlack = "slack"
	webhookTeams = "teams"
	webhookHTTP  = "http"
)

type webhookTarget struct {
	kind    string
	url     string
	client  *http.Client
	baseURL string
	loc     *time.Location
}

func (w *webhookTarget) Name() string { return "webhook:" + w.kind }

func (w *webhookTarget) Send(ctx context.Context, rep *report.Report, _ string) error {
	var payload any
	switch w.kind {
	case webhookSlack:
		payload = map[string]string{
			"text": fmt.Sprintf("*%s* %s", statusLabel(rep), w.summary(rep)),
		}
	case webhookTeams:
		payload = map[string]any{
			"@type":      "MessageCard",
			"@context":   "http://schema.org/extensions",
			"themeColor": statusColor(rep),
			"summary":    render.Subject("", rep, w.loc),
			"title":      render.Subject("", rep, w.loc),
			"text":       strings.ReplaceAll(w.summary(rep), "\n", "<br/>"),
		}
	default:
		payload = map[string]any{"report": rep}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return permanent(fmt.Errorf("encode payload: %w", err))
	}
	return w.post(ctx, body)
}

func (w *webhookTarget) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return permanent(fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("http post: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return fmt.Errorf("webhook returned HTTP %d", resp.StatusCode)
	case resp.StatusCode >= 400:
		return permanent(fmt.Errorf("webhook returned HTTP %d", resp.StatusCode))
	}
	return nil
}

// summary is the plain-text digest shared by chat webhooks.
func (w *webhookTarget) summary(rep *report.Report) string {
	var b strings.Builder
	b.WriteString(render.Subject("", rep, w.loc))
	for _, kr := range rep.Kinds() {
		fmt.Fprintf(&b, "\n%ss healthy: %d/%d (%.1f%%)", kr.Kind.Title(), kr.Healthy, kr.Total, kr.HealthyPct())
		for _, u := range kr.Unhealthy {
			fmt.Fprintf(&b, "\n• unhealthy %s %s: %d error clusters, %d users %s",
				kr.Kind, u.ID, u.Clusters, u.Users, render.ArtifactURL(w.baseURL, kr.Kind, u.ID))
		}
		if n := len(kr.Stale); n > 0 {
			fmt.Fprintf(&b, "\n• %d %s not run in last %d days", n, kr.Kind.Plural(), rep.StaleAfterDays)
		}
	}
	return b.String()
}

func unhealthyCount(rep *report.Report) int {
	var n int
	for _, kr := range rep.Kinds() {
		n += len(kr.Unhealthy)
	}
	return n
}

func statusLabel(rep *report.Report) string {
	if unhealthyCount(rep) > 0 {
		return "[UNHEALTHY]"
	}
	return "[OK]"
}

func statusColor(rep *report.Report) string {
	if unhealthyCount(rep) > 0 {
		return "FF4F6A"
	}
	return "00D4FF"
}

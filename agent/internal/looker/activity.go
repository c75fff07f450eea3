package looker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/url"
	"strconv"
	"time"

	"github.com/obsidianstack/lookerhealth/pkg/types"
)

// system__activity field names we read.
const (
	fieldDashboardID  = "history.dashboard_id"
	fieldLookID       = "history.look_id"
	fieldQueryID      = "query.id"
	fieldMessage      = "history.message"
	fieldUserName     = "user.name"
	fieldCreatedTime  = "history.created_time"
	fieldHistoryState = "history.status"
)

// WriteQuery is the body of an inline query run.
type WriteQuery struct {
	Model   string            `json:"model"`
	View    string            `json:"view"`
	Fields  []string          `json:"fields"`
	Filters map[string]string `json:"filters,omitempty"`
	Sorts   []string          `json:"sorts,omitempty"`
	Limit   string            `json:"limit,omitempty"`
}

// Row is one result row of an inline JSON query, keyed by field name.
type Row map[string]any

// String returns the field as a string. Missing and null fields return "".
// Numbers keep their JSON text, so ids never pick up a ".0" suffix.
func (r Row) String(field string) string {
	switch v := r[field].(type) {
	case nil:
		return ""
	case string:
		return v
	case json.Number:
		return v.String()
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	default:
		return fmt.Sprint(v)
	}
}

// FilterDays renders a lookback duration as a Looker relative date filter,
// rounding partial days up, e.g. 168h -> "7 days".
func FilterDays(d time.Duration) string {
	days := int(math.Ceil(d.Hours() / 24))
	if days < 1 {
		days = 1
	}
	return fmt.Sprintf("%d days", days)
}

// RunInlineQuery runs q and decodes the JSON result rows.
func (c *Client) RunInlineQuery(ctx context.Context, q WriteQuery) ([]Row, error) {
	if q.Limit == "" {
		q.Limit = strconv.Itoa(c.queryLimit)
	}
	body, err := json.Marshal(q)
	if err != nil {
		return nil, fmt.Errorf("looker: encode query: %w", err)
	}
	data, err := c.do(ctx, "POST", "/queries/run/json", body)
	if err != nil {
		return nil, fmt.Errorf("looker: run query %s.%s: %w", q.Model, q.View, err)
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var rows []Row
	if err := dec.Decode(&rows); err != nil {
		return nil, fmt.Errorf("looker: decode query result: %w", err)
	}
	return rows, nil
}

// RecentErrors returns the error events of the trailing lookback window,
// grouped by artifact kind and id. A history row that references both a
// dashboard and a look is recorded against both.
func (c *Client) RecentErrors(ctx context.Context, lookback time.Duration) (map[types.Kind]map[string][]types.RawEvent, error) {
	rows, err := c.RunInlineQuery(ctx, WriteQuery{
		Model: "system__activity",
		View:  "history",
		Fields: []string{
			fieldDashboardID,
			fieldLookID,
			fieldQueryID,
			fieldMessage,
			fieldUserName,
			fieldCreatedTime,
		},
		Filters: map[string]string{
			fieldCreatedTime:  FilterDays(lookback),
			fieldHistoryState: "error",
		},
		Sorts: []string{fieldCreatedTime + " desc"},
	})
	if err != nil {
		return nil, err
	}

	out := map[types.Kind]map[string][]types.RawEvent{
		types.KindDashboard: {},
		types.KindLook:      {},
	}
	for _, row := range rows {
		ev := types.RawEvent{
			Time:    row.String(fieldCreatedTime),
			QueryID: row.String(fieldQueryID),
			UserID:  row.String(fieldUserName),
			Message: row.String(fieldMessage),
		}
		if id := row.String(fieldDashboardID); id != "" {
			out[types.KindDashboard][id] = append(out[types.KindDashboard][id], ev)
		}
		if id := row.String(fieldLookID); id != "" {
			out[types.KindLook][id] = append(out[types.KindLook][id], ev)
		}
	}
	return out, nil
}

// RanSince returns the set of ids of the given kind with any history entry
// inside the trailing lookback window.
func (c *Client) RanSince(ctx context.Context, kind types.Kind, lookback time.Duration) (map[string]bool, error) {
	field := string(kind) + ".id"
	rows, err := c.RunInlineQuery(ctx, WriteQuery{
		Model:   "system__activity",
		View:    "history",
		Fields:  []string{field},
		Filters: map[string]string{fieldCreatedTime: FilterDays(lookback)},
	})
	if err != nil {
		return nil, err
	}

	ran := make(map[string]bool, len(rows))
	for _, row := range rows {
		if id := row.String(field); id != "" {
			ran[id] = true
		}
	}
	return ran, nil
}

// LastRun returns the raw last_run_at of one dashboard or look. An artifact
// that has never run yields "" and a nil error.
func (c *Client) LastRun(ctx context.Context, kind types.Kind, id string) (string, error) {
	path := "/" + kind.Plural() + "/" + url.PathEscape(id) + "?fields=id,last_run_at"
	data, err := c.do(ctx, "GET", path, nil)
	if err != nil {
		return "", fmt.Errorf("looker: %s %s: %w", kind, id, err)
	}

	var obj struct {
		LastRunAt *string `json:"last_run_at"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return "", fmt.Errorf("looker: decode %s %s: %w", kind, id, err)
	}
	if obj.LastRunAt == nil {
		return "", nil
	}
	return *obj.LastRunAt, nil
}

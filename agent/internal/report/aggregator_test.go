package report

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"

	"github.com/obsidianstack/lookerhealth/agent/internal/compute"
	"github.com/obsidianstack/lookerhealth/pkg/types"
)

var now = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

const naive = "2006-01-02 15:04:05"

// burst returns n error events spaced an hour apart, alternating users.
func burst(n int, users ...string) []types.RawEvent {
	evs := make([]types.RawEvent, n)
	for i := range evs {
		evs[i] = types.RawEvent{
			Time:    now.Add(-time.Duration(n-i) * time.Hour).Format(naive),
			QueryID: fmt.Sprintf("q%d", i),
			UserID:  users[i%len(users)],
			Message: "boom",
		}
	}
	return evs
}

func daysAgo(d int) string { return now.AddDate(0, 0, -d).Format(naive) }

type fakeSource struct {
	errors   map[types.Kind]map[string][]types.RawEvent
	errorErr error
	ran      map[types.Kind]map[string]bool
	ranErr   error
	lastRun  map[string]string
	lastErr  map[string]error

	mu     sync.Mutex
	looked []string
}

func (f *fakeSource) RecentErrors(context.Context, time.Duration) (map[types.Kind]map[string][]types.RawEvent, error) {
	return f.errors, f.errorErr
}

func (f *fakeSource) RanSince(_ context.Context, kind types.Kind, _ time.Duration) (map[string]bool, error) {
	return f.ran[kind], f.ranErr
}

func (f *fakeSource) LastRun(_ context.Context, kind types.Kind, id string) (string, error) {
	key := string(kind) + "/" + id
	f.mu.Lock()
	f.looked = append(f.looked, key)
	f.mu.Unlock()
	if err := f.lastErr[key]; err != nil {
		return "", err
	}
	return f.lastRun[key], nil
}

func opts() Options {
	o := DefaultOptions()
	o.Concurrency = 4
	return o
}

func TestClassifyKind_UnhealthyAndStale(t *testing.T) {
	in := KindInput{
		Kind:      types.KindDashboard,
		Monitored: []string{"1", "2"},
		Errors:    map[string][]types.RawEvent{"1": burst(6, "alice", "bob")},
		LastRun:   map[string]types.LastRun{"2": {Raw: daysAgo(40)}},
	}

	kr := ClassifyKind(in, opts(), now)

	if kr.Total != 2 || kr.Healthy != 1 {
		t.Fatalf("total/healthy = %d/%d, want 2/1", kr.Total, kr.Healthy)
	}
	if len(kr.Unhealthy) != 1 || kr.Unhealthy[0].ID != "1" {
		t.Fatalf("unhealthy = %+v, want [1]", kr.Unhealthy)
	}
	if got := len(kr.Unhealthy[0].Evidence); got != compute.DefaultEvidenceLimit {
		t.Errorf("evidence len = %d, want %d", got, compute.DefaultEvidenceLimit)
	}
	if len(kr.Stale) != 1 {
		t.Fatalf("stale = %+v, want one entry", kr.Stale)
	}
	s := kr.Stale[0]
	if s.ID != "2" || s.Verdict.Kind != compute.StaleForDays || s.Verdict.Days != 40 {
		t.Errorf("stale[0] = %+v, want id 2 stale for 40 days", s)
	}
	if len(kr.Inconclusive) != 0 {
		t.Errorf("inconclusive = %+v, want empty", kr.Inconclusive)
	}
}

func TestClassifyKind_UnhealthyNotCheckedForStaleness(t *testing.T) {
	in := KindInput{
		Kind:      types.KindLook,
		Monitored: []string{"7"},
		Errors:    map[string][]types.RawEvent{"7": burst(6, "alice", "bob")},
	}
	kr := ClassifyKind(in, opts(), now)
	if len(kr.Unhealthy) != 1 || len(kr.Stale) != 0 {
		t.Errorf("unhealthy=%d stale=%d, want 1 and 0", len(kr.Unhealthy), len(kr.Stale))
	}
}

func TestClassifyKind_RanRecentlySkipsStaleness(t *testing.T) {
	in := KindInput{
		Kind:        types.KindDashboard,
		Monitored:   []string{"1"},
		RanRecently: map[string]bool{"1": true},
		LastRun:     map[string]types.LastRun{"1": {Raw: daysAgo(400)}},
	}
	kr := ClassifyKind(in, opts(), now)
	if len(kr.Stale) != 0 || kr.Healthy != 1 {
		t.Errorf("got %+v, want healthy and not stale", kr)
	}
}

func TestClassifyKind_StalenessBuckets(t *testing.T) {
	in := KindInput{
		Kind:      types.KindDashboard,
		Monitored: []string{"never", "missing", "old", "recent", "garbage", "failed"},
		LastRun: map[string]types.LastRun{
			"never":   {},
			"old":     {Raw: daysAgo(31)},
			"recent":  {Raw: daysAgo(30)},
			"garbage": {Raw: "yesterday-ish"},
			"failed":  {Err: errors.New("connection reset")},
		},
	}
	kr := ClassifyKind(in, opts(), now)

	var stale []string
	for _, s := range kr.Stale {
		stale = append(stale, s.ID+":"+s.Verdict.String())
	}
	wantStale := []string{"never:Never run", "missing:Never run", "old:31 days ago"}
	if diff := cmp.Diff(wantStale, stale); diff != "" {
		t.Errorf("stale mismatch (-want +got):\n%s", diff)
	}

	var inc []string
	for _, s := range kr.Inconclusive {
		inc = append(inc, s.ID)
		if s.Reason == "" {
			t.Errorf("inconclusive %s has no reason", s.ID)
		}
	}
	if diff := cmp.Diff([]string{"garbage", "failed"}, inc); diff != "" {
		t.Errorf("inconclusive mismatch (-want +got):\n%s", diff)
	}
	if kr.Healthy != 6 {
		t.Errorf("healthy = %d, want 6", kr.Healthy)
	}
}

func TestClassifyKind_PreservesMonitoredOrder(t *testing.T) {
	ids := make([]string, 40)
	errs := make(map[string][]types.RawEvent)
	for i := range ids {
		ids[i] = fmt.Sprintf("d%02d", 39-i)
		errs[ids[i]] = burst(6, "a", "b")
	}
	kr := ClassifyKind(KindInput{Kind: types.KindDashboard, Monitored: ids, Errors: errs}, opts(), now)

	var got []string
	for _, u := range kr.Unhealthy {
		got = append(got, u.ID)
	}
	if diff := cmp.Diff(ids, got); diff != "" {
		t.Errorf("order mismatch (-want +got):\n%s", diff)
	}
}

func TestClassifyKind_Empty(t *testing.T) {
	kr := ClassifyKind(KindInput{Kind: types.KindLook}, opts(), now)
	if kr.Total != 0 || kr.Healthy != 0 || kr.HealthyPct() != 0 {
		t.Errorf("got %+v, want zero counts", kr)
	}
	if kr.Unhealthy == nil || kr.Stale == nil || kr.Inconclusive == nil {
		t.Error("expected non-nil empty slices")
	}
}

func TestBuild(t *testing.T) {
	src := &fakeSource{
		errors: map[types.Kind]map[string][]types.RawEvent{
			types.KindDashboard: {"1": burst(6, "alice", "bob")},
			types.KindLook:      {"9": burst(2, "alice")},
		},
		ran: map[types.Kind]map[string]bool{
			types.KindLook: {"10": true},
		},
		lastRun: map[string]string{
			"dashboard/2": daysAgo(40),
			"look/9":      daysAgo(3),
		},
	}
	mon := Monitored{
		types.KindDashboard: {"1", "2"},
		types.KindLook:      {"9", "10"},
	}

	rep, err := New(src, mon, opts()).Build(context.Background(), now)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if rep.RunID == uuid.Nil {
		t.Error("RunID not set")
	}
	if !rep.GeneratedAt.Equal(now) {
		t.Errorf("GeneratedAt = %v, want %v", rep.GeneratedAt, now)
	}

	d := rep.Dashboards
	if d.Total != 2 || d.Healthy != 1 || len(d.Unhealthy) != 1 || len(d.Stale) != 1 {
		t.Errorf("dashboards = %+v", d)
	}
	if d.Stale[0].Verdict.Days != 40 {
		t.Errorf("dashboard 2 days = %d, want 40", d.Stale[0].Verdict.Days)
	}

	l := rep.Looks
	if l.Total != 2 || l.Healthy != 2 || len(l.Stale) != 0 {
		t.Errorf("looks = %+v", l)
	}

	// Unhealthy and recently-run artifacts are never looked up.
	lookups := map[string]bool{}
	for _, k := range src.looked {
		lookups[k] = true
	}
	if diff := cmp.Diff(map[string]bool{"dashboard/2": true, "look/9": true}, lookups); diff != "" {
		t.Errorf("lookups mismatch (-want +got):\n%s", diff)
	}
}

func TestBuild_LookupFailureIsolated(t *testing.T) {
	src := &fakeSource{
		lastRun: map[string]string{"dashboard/1": daysAgo(45)},
		lastErr: map[string]error{"dashboard/2": errors.New("502 bad gateway")},
	}
	mon := Monitored{types.KindDashboard: {"1", "2"}}

	rep, err := New(src, mon, opts()).Build(context.Background(), now)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	d := rep.Dashboards
	if len(d.Stale) != 1 || d.Stale[0].ID != "1" {
		t.Errorf("stale = %+v, want [1]", d.Stale)
	}
	if len(d.Inconclusive) != 1 || d.Inconclusive[0].ID != "2" {
		t.Fatalf("inconclusive = %+v, want [2]", d.Inconclusive)
	}
	if d.Inconclusive[0].Reason != "502 bad gateway" {
		t.Errorf("reason = %q", d.Inconclusive[0].Reason)
	}
}

func TestBuild_BulkFetchErrors(t *testing.T) {
	mon := Monitored{types.KindDashboard: {"1"}}
	boom := errors.New("boom")

	tests := []struct {
		name string
		src  *fakeSource
	}{
		{"errors", &fakeSource{errorErr: boom}},
		{"activity", &fakeSource{ranErr: boom}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.src, mon, opts()).Build(context.Background(), now)
			if !errors.Is(err, boom) {
				t.Errorf("err = %v, want wrapping %v", err, boom)
			}
		})
	}
}

func TestBuild_NoMonitored(t *testing.T) {
	_, err := New(&fakeSource{}, Monitored{}, opts()).Build(context.Background(), now)
	if !errors.Is(err, ErrNoMonitored) {
		t.Errorf("err = %v, want ErrNoMonitored", err)
	}
}

func TestBuild_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New(&fakeSource{}, Monitored{types.KindDashboard: {"1"}}, opts()).Build(ctx, now)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestBuild_DisplayLocation(t *testing.T) {
	loc := time.FixedZone("UTC+2", 2*60*60)
	o := opts()
	o.Location = loc
	rep, err := New(&fakeSource{}, Monitored{types.KindLook: {"1"}}, o).Build(context.Background(), now)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if rep.GeneratedAt.Location() != loc || !rep.GeneratedAt.Equal(now) {
		t.Errorf("GeneratedAt = %v, want %v in UTC+2", rep.GeneratedAt, now)
	}
}

func TestNeedLastRun_UsesHealthVerdicts(t *testing.T) {
	ids := []string{"a", "b", "c", "d"}
	health := []compute.HealthVerdict{
		{State: compute.StateHealthy},
		{State: compute.StateUnhealthy, Clusters: 6, Users: 2},
		{State: compute.StateHealthy},
		{State: compute.StateHealthy},
	}
	ran := map[string]bool{"c": true}

	got := needLastRun(ids, health, ran)
	if diff := cmp.Diff([]string{"a", "d"}, got); diff != "" {
		t.Errorf("needLastRun mismatch (-want +got):\n%s", diff)
	}
}

func TestClassifyKind_ReusesSuppliedVerdicts(t *testing.T) {
	// No error events: the unhealthy verdict can only come from the supplied
	// slice, so the kind report does not classify health a second time.
	in := KindInput{
		Kind:      types.KindDashboard,
		Monitored: []string{"1", "2"},
		LastRun:   map[string]types.LastRun{"2": {}},
	}
	health := []compute.HealthVerdict{
		{State: compute.StateUnhealthy, Clusters: 7, Users: 3},
		{State: compute.StateHealthy},
	}

	kr := classifyKind(in, health, opts(), now)
	if len(kr.Unhealthy) != 1 || kr.Unhealthy[0].ID != "1" || kr.Unhealthy[0].Clusters != 7 {
		t.Fatalf("unhealthy = %+v, want dashboard 1 with 7 clusters", kr.Unhealthy)
	}
	if len(kr.Stale) != 1 || kr.Stale[0].ID != "2" {
		t.Errorf("stale = %+v, want dashboard 2 (never run)", kr.Stale)
	}
	if kr.Healthy != 1 {
		t.Errorf("healthy = %d, want 1", kr.Healthy)
	}
}

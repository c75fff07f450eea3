package store

import (
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/obsidianstack/lookerhealth/agent/internal/report"
)

func rep() *report.Report { return &report.Report{RunID: uuid.New()} }

// fixedClock returns a func() time.Time that always returns t.
func fixedClock(t time.Time) func() time.Time { return func() time.Time { return t } }

func TestPutAndGet(t *testing.T) {
	st := New(5)
	at := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	st.now = fixedClock(at)

	r := rep()
	st.Put(r, 2*time.Second)

	e, ok := st.Get(r.RunID)
	if !ok {
		t.Fatal("Get: expected entry, got none")
	}
	if e.Report != r || !e.StoredAt.Equal(at) || e.Duration != 2*time.Second {
		t.Errorf("entry = %+v", e)
	}
	if _, ok := st.Get(uuid.New()); ok {
		t.Error("Get: unexpected entry for unknown id")
	}
}

func TestLatest(t *testing.T) {
	st := New(5)
	if _, ok := st.Latest(); ok {
		t.Fatal("Latest on empty store returned an entry")
	}
	st.Put(rep(), 0)
	last := rep()
	st.Put(last, 0)

	e, ok := st.Latest()
	if !ok || e.Report != last {
		t.Errorf("Latest = %+v, want the last report", e)
	}
}

func TestEvictsOldest(t *testing.T) {
	st := New(3)
	var reps []*report.Report
	for i := 0; i < 5; i++ {
		r := rep()
		reps = append(reps, r)
		st.Put(r, 0)
	}

	if st.Count() != 3 {
		t.Fatalf("Count = %d, want 3", st.Count())
	}
	for _, r := range reps[:2] {
		if _, ok := st.Get(r.RunID); ok {
			t.Errorf("evicted report %s still retrievable", r.RunID)
		}
	}
	list := st.List()
	for i, want := range []*report.Report{reps[4], reps[3], reps[2]} {
		if list[i].Report != want {
			t.Errorf("List[%d] = %s, want %s", i, list[i].Report.RunID, want.RunID)
		}
	}
}

func TestDefaultCapacity(t *testing.T) {
	st := New(0)
	for i := 0; i < DefaultCapacity+1; i++ {
		st.Put(rep(), 0)
	}
	if st.Count() != DefaultCapacity {
		t.Errorf("Count = %d, want %d", st.Count(), DefaultCapacity)
	}
}

func TestConcurrentAccess(t *testing.T) {
	st := New(10)
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			st.Put(rep(), 0)
		}()
		go func() {
			defer wg.Done()
			st.List()
			st.Latest()
		}()
	}
	wg.Wait()
	if st.Count() != 10 {
		t.Errorf("Count = %d, want 10", st.Count())
	}
}

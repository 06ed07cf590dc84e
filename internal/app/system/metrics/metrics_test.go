package metrics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestReaper_ObserveSweep(t *testing.T) {
	reg := NewRegistry()
	m := NewReaper(reg)

	m.ObserveSweep(5, 3, 1, 1, 200*time.Millisecond)
	m.ObserveSweep(2, 2, 0, 0, 100*time.Millisecond)

	if got := testutil.ToFloat64(m.sweeps); got != 2 {
		t.Errorf("sweeps = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.entries.WithLabelValues("reaped")); got != 5 {
		t.Errorf("reaped = %v, want 5", got)
	}
	if got := testutil.ToFloat64(m.flagged); got != 2 {
		t.Errorf("flagged = %v, want 2", got)
	}
}

func TestReaper_NilIsNoop(t *testing.T) {
	var m *Reaper
	m.ObserveSweep(1, 1, 0, 0, time.Second)
}

func TestHandler(t *testing.T) {
	reg := NewRegistry()
	NewReaper(reg).ObserveSweep(1, 1, 0, 0, time.Millisecond)

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "stratadrive_reaper_sweeps_total") {
		t.Error("expected reaper collectors in output")
	}
}

func TestInventory_Collect(t *testing.T) {
	var gotDeadline bool
	inv := NewInventory(func(ctx context.Context) map[string]int64 {
		_, gotDeadline = ctx.Deadline()
		return map[string]int64{"files": 3, "favourites": 1}
	}, time.Second)

	if n := testutil.CollectAndCount(inv); n != 2 {
		t.Errorf("collected %d metrics, want 2", n)
	}
	if !gotDeadline {
		t.Error("fetch should run under a deadline")
	}

	want := `
# HELP stratadrive_documents Stored documents by kind
# TYPE stratadrive_documents gauge
stratadrive_documents{kind="favourites"} 1
stratadrive_documents{kind="files"} 3
`
	if err := testutil.CollectAndCompare(inv, strings.NewReader(want)); err != nil {
		t.Error(err)
	}
}

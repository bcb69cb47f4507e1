package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewRegistersDistinctCollectors(t *testing.T) {
	m := New("bloomd_test_new")
	if m.requestsTotal == nil || m.requestDuration == nil {
		t.Fatal("New did not initialize the request collectors")
	}
	if m.directoryVersion == nil || m.activeFilters == nil {
		t.Fatal("New did not initialize the directory gauges")
	}
	if m.reaperCycles == nil || m.tombstonesReclaimed == nil {
		t.Fatal("New did not initialize the reaper collectors")
	}
}

func TestObserveRequestIncrementsCounterAndHistogram(t *testing.T) {
	m := New("bloomd_test_observe")
	m.ObserveRequest("check_keys", "200", 5*time.Millisecond)
	m.ObserveRequest("check_keys", "200", 10*time.Millisecond)
	m.ObserveRequest("check_keys", "500", time.Millisecond)

	if got := testutil.ToFloat64(m.requestsTotal.WithLabelValues("check_keys", "200")); got != 2 {
		t.Errorf("requestsTotal{200}: got %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.requestsTotal.WithLabelValues("check_keys", "500")); got != 1 {
		t.Errorf("requestsTotal{500}: got %v, want 1", got)
	}
	if got := testutil.CollectAndCount(m.requestDuration); got != 1 {
		t.Errorf("requestDuration series count: got %d, want 1 (single operation label)", got)
	}
}

func TestSetDirectoryVersionAndActiveFilters(t *testing.T) {
	m := New("bloomd_test_gauges")
	m.SetDirectoryVersion(42)
	m.SetActiveFilters(7)

	if got := testutil.ToFloat64(m.directoryVersion); got != 42 {
		t.Errorf("directoryVersion: got %v, want 42", got)
	}
	if got := testutil.ToFloat64(m.activeFilters); got != 7 {
		t.Errorf("activeFilters: got %v, want 7", got)
	}
}

func TestObserveReap(t *testing.T) {
	m := New("bloomd_test_reap")

	m.ObserveReap(false, false)
	if got := testutil.ToFloat64(m.reaperCycles); got != 1 {
		t.Errorf("reaperCycles after no-tombstone cycle: got %v, want 1", got)
	}
	if got := testutil.CollectAndCount(m.tombstonesReclaimed); got != 0 {
		t.Errorf("tombstonesReclaimed series: got %d, want 0 (no tombstone observed yet)", got)
	}

	m.ObserveReap(true, false)
	if got := testutil.ToFloat64(m.tombstonesReclaimed.WithLabelValues("closed")); got != 1 {
		t.Errorf("tombstonesReclaimed{closed}: got %v, want 1", got)
	}

	m.ObserveReap(true, true)
	if got := testutil.ToFloat64(m.tombstonesReclaimed.WithLabelValues("destroyed")); got != 1 {
		t.Errorf("tombstonesReclaimed{destroyed}: got %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.reaperCycles); got != 3 {
		t.Errorf("reaperCycles after three cycles: got %v, want 3", got)
	}
}

func TestHTTPMiddlewareCapturesStatusCode(t *testing.T) {
	m := New("bloomd_test_middleware")

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	wrapped := m.HTTPMiddleware("brew", next)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	wrapped.ServeHTTP(rec, req)

	if rec.Code != http.StatusTeapot {
		t.Fatalf("recorder status: got %d, want %d", rec.Code, http.StatusTeapot)
	}
	if got := testutil.ToFloat64(m.requestsTotal.WithLabelValues("brew", "418")); got != 1 {
		t.Errorf("requestsTotal{brew,418}: got %v, want 1", got)
	}
}

func TestHTTPMiddlewareDefaultsToOKWhenHandlerNeverWritesHeader(t *testing.T) {
	m := New("bloomd_test_middleware_default")

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	wrapped := m.HTTPMiddleware("noop", next)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	wrapped.ServeHTTP(rec, req)

	if got := testutil.ToFloat64(m.requestsTotal.WithLabelValues("noop", "200")); got != 1 {
		t.Errorf("requestsTotal{noop,200}: got %v, want 1", got)
	}
}

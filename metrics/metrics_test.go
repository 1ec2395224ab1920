package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCollectorCounts(t *testing.T) {
	c, err := NewCollector(prometheus.NewRegistry())
	if err != nil {
		t.Fatalf("NewCollector() returned error: %s", err)
	}
	c.BlockEmitted()
	c.BlockEmitted()
	c.Retuned()
	c.RetuneFailed()
	c.Discarded(5000)
	c.Discarded(0)
	c.Stale(12)
	c.Oversized()
	c.SweepCompleted()
	c.QueueDropped()
	c.Exported(OutcomeSuccess)
	c.Exported(OutcomeSuccess)
	c.Exported(OutcomeError)
	c.SetState(2)

	tests := []struct {
		name string
		c    prometheus.Collector
		want float64
	}{
		{"blocks", c.Blocks, 2},
		{"retunes", c.Retunes, 1},
		{"retune failures", c.RetuneFailures, 1},
		{"settling discarded", c.SettlingDiscarded, 5000},
		{"stale", c.StaleDropped, 12},
		{"oversized", c.OversizedChunks, 1},
		{"sweeps", c.Sweeps, 1},
		{"queue drops", c.QueueDrops, 1},
		{"exported success", c.ExportedRecords.WithLabelValues(OutcomeSuccess), 2},
		{"exported error", c.ExportedRecords.WithLabelValues(OutcomeError), 1},
		{"state", c.SessionState, 2},
	}
	for _, tc := range tests {
		if got := testutil.ToFloat64(tc.c); got != tc.want {
			t.Errorf("%s: got %f, want %f", tc.name, got, tc.want)
		}
	}
}

func TestCollectorReregister(t *testing.T) {
	reg := prometheus.NewRegistry()
	a, err := NewCollector(reg)
	if err != nil {
		t.Fatal(err)
	}
	b, err := NewCollector(reg)
	if err != nil {
		t.Fatalf("second NewCollector() returned error: %s", err)
	}
	a.BlockEmitted()
	b.BlockEmitted()
	if got := testutil.ToFloat64(a.Blocks); got != 2 {
		t.Errorf("got %f blocks, want both collectors to share the counter", got)
	}
}

func TestNilCollector(t *testing.T) {
	var c *Collector
	c.BlockEmitted()
	c.Retuned()
	c.RetuneFailed()
	c.Discarded(1)
	c.Stale(1)
	c.Oversized()
	c.SweepCompleted()
	c.QueueDropped()
	c.Exported(OutcomeError)
	c.SetState(1)
}

func TestMount(t *testing.T) {
	c, err := NewCollector(prometheus.NewRegistry())
	if err != nil {
		t.Fatal(err)
	}
	c.SweepCompleted()

	gin.SetMode(gin.TestMode)
	r := gin.New()
	c.Mount(r)
	srv := httptest.NewServer(r)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("got status %d, want %d", resp.StatusCode, http.StatusOK)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(body), "hopper_sweeps_total 1") {
		t.Errorf("metrics output lacks hopper_sweeps_total:\n%s", body)
	}
}

package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hb9tf/hopper/export"
	"github.com/hb9tf/hopper/metrics"
	"github.com/hb9tf/hopper/sdr"
)

func newTestRouter(t *testing.T, buffer int) (*gin.Engine, chan sdr.Record) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	m, err := metrics.NewCollector(prometheus.NewRegistry())
	if err != nil {
		t.Fatal(err)
	}
	records := make(chan sdr.Record, buffer)
	return newRouter(records, m), records
}

func TestCollect(t *testing.T) {
	r, records := newTestRouter(t, 10)
	body, err := json.Marshal([]sdr.Record{
		{Identifier: "a", Source: "sim", FreqCenter: 100e6},
		{Identifier: "a", Source: "sim", FreqCenter: 101e6},
	})
	if err != nil {
		t.Fatal(err)
	}
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, export.CollectEndpoint, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("got status %d, want %d: %s", w.Code, http.StatusOK, w.Body)
	}
	var resp export.CollectResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Status != "ok" || resp.RecordCount != 2 {
		t.Errorf("got response %+v, want ok with 2 records", resp)
	}
	if len(records) != 2 {
		t.Fatalf("got %d forwarded records, want 2", len(records))
	}
	if got := (<-records).FreqCenter; got != 100e6 {
		t.Errorf("got first record at %d Hz, want 100e6", got)
	}
}

func TestCollectBadRequest(t *testing.T) {
	r, records := newTestRouter(t, 10)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, export.CollectEndpoint, strings.NewReader("{not json"))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("got status %d, want %d", w.Code, http.StatusBadRequest)
	}
	if len(records) != 0 {
		t.Errorf("got %d forwarded records, want 0", len(records))
	}
}

func TestMetricsEndpoint(t *testing.T) {
	r, _ := newTestRouter(t, 0)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("got status %d, want %d", w.Code, http.StatusOK)
	}
	if !strings.Contains(w.Body.String(), "hopper_session_state") {
		t.Errorf("metrics output lacks hopper_session_state")
	}
}

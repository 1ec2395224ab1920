package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/hb9tf/hopper/metrics"
	"github.com/hb9tf/hopper/sdr"
)

var testStart = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func testRecords(n int) []sdr.Record {
	var out []sdr.Record
	for i := 0; i < n; i++ {
		center := uint64(100e6 + i*1e6)
		out = append(out, sdr.Record{
			Identifier:  "test",
			Source:      "sim",
			FreqCenter:  center,
			FreqLow:     center - 5e5,
			FreqHigh:    center + 5e5,
			DBHigh:      -10 - float64(i),
			DBLow:       -50,
			DBAvg:       -20,
			SampleCount: 1000,
			Sweep:       1,
			ScanStart:   i == 0,
			Start:       testStart.Add(time.Duration(i) * time.Millisecond),
			End:         testStart.Add(time.Duration(i+1) * time.Millisecond),
		})
	}
	return out
}

func feed(records []sdr.Record) <-chan sdr.Record {
	c := make(chan sdr.Record, len(records))
	for _, r := range records {
		c <- r
	}
	close(c)
	return c
}

func newMetrics(t *testing.T) *metrics.Collector {
	t.Helper()
	m, err := metrics.NewCollector(prometheus.NewRegistry())
	if err != nil {
		t.Fatal(err)
	}
	return m
}

func TestCSV(t *testing.T) {
	var buf bytes.Buffer
	m := newMetrics(t)
	c := &CSV{Out: &buf, Metrics: m}
	if err := c.Write(context.Background(), feed(testRecords(3))); err != nil {
		t.Fatalf("Write() returned error: %s", err)
	}
	lines, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	if len(lines) != 4 {
		t.Fatalf("got %d lines, want header and 3 records", len(lines))
	}
	if len(lines[0]) != len(csvHeader) {
		t.Errorf("got %d header columns, want %d", len(lines[0]), len(csvHeader))
	}
	want := []string{"sim", "test", "100000000", "99500000", "100500000", "1714564800000", "1714564800001", "-50.000000", "-10.000000", "-20.000000", "1000", "1", "true"}
	for i, v := range want {
		if lines[1][i] != v {
			t.Errorf("column %s: got %q, want %q", csvHeader[i], lines[1][i], v)
		}
	}
	if got := testutil.ToFloat64(m.ExportedRecords.WithLabelValues(metrics.OutcomeSuccess)); got != 3 {
		t.Errorf("got %f exported records, want 3", got)
	}
}

func TestSQLite(t *testing.T) {
	db, err := OpenSQLite(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	s := &SQL{DB: db}
	if err := s.Write(context.Background(), feed(testRecords(3))); err != nil {
		t.Fatalf("Write() returned error: %s", err)
	}

	var count int
	if err := db.QueryRow("SELECT COUNT(*) FROM hopper").Scan(&count); err != nil {
		t.Fatal(err)
	}
	if count != 3 {
		t.Fatalf("got %d rows, want 3", count)
	}

	var (
		freqCenter, sweep int64
		scanStart         bool
		start, end        int64
		dbHigh            float64
	)
	row := db.QueryRow("SELECT FreqCenter, Sweep, ScanStart, Start, End, DBHigh FROM hopper WHERE FreqCenter = ?", int64(101e6))
	if err := row.Scan(&freqCenter, &sweep, &scanStart, &start, &end, &dbHigh); err != nil {
		t.Fatal(err)
	}
	if scanStart || sweep != 1 || dbHigh != -11 {
		t.Errorf("got scanStart=%t sweep=%d dbHigh=%f, want false 1 -11", scanStart, sweep, dbHigh)
	}
	if want := testStart.Add(time.Millisecond).UnixMilli(); start != want {
		t.Errorf("got start %d, want %d", start, want)
	}

	// Writing again reuses the existing table.
	if err := s.Write(context.Background(), feed(testRecords(1))); err != nil {
		t.Fatalf("second Write() returned error: %s", err)
	}
}

func TestSQLUnknownDialect(t *testing.T) {
	db, err := OpenSQLite(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	s := &SQL{DB: db, Dialect: "postgres"}
	if err := s.Write(context.Background(), feed(nil)); err == nil {
		t.Errorf("Write() accepted an unknown dialect")
	}
}

func TestMySQLConfig(t *testing.T) {
	pw := t.TempDir() + "/pw"
	if err := writeFile(pw, "s3cret\n"); err != nil {
		t.Fatal(err)
	}
	o := &MySQLOptions{Server: "db:3306", User: "hopper", PasswordFile: pw, DBName: "hopper"}
	cfg, err := o.Config()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Passwd != "s3cret" || cfg.Addr != "db:3306" || cfg.Net != "tcp" || cfg.DBName != "hopper" {
		t.Errorf("got config %+v", cfg)
	}
	if _, err := (&MySQLOptions{PasswordFile: t.TempDir() + "/missing"}).Config(); err == nil {
		t.Errorf("Config() accepted a missing password file")
	}
}

func TestServer(t *testing.T) {
	var mu sync.Mutex
	var batches [][]sdr.Record
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != CollectEndpoint || r.Method != http.MethodPost {
			http.NotFound(w, r)
			return
		}
		var records []sdr.Record
		if err := json.NewDecoder(r.Body).Decode(&records); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		mu.Lock()
		batches = append(batches, records)
		mu.Unlock()
		json.NewEncoder(w).Encode(CollectResponse{Status: "ok", RecordCount: len(records)})
	}))
	defer srv.Close()

	m := newMetrics(t)
	s := &Server{URL: srv.URL + "/", SendRecordsAmount: 2, Metrics: m}
	if err := s.Write(context.Background(), feed(testRecords(5))); err != nil {
		t.Fatalf("Write() returned error: %s", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(batches) != 3 {
		t.Fatalf("got %d batches, want 3", len(batches))
	}
	for i, want := range []int{2, 2, 1} {
		if len(batches[i]) != want {
			t.Errorf("batch %d: got %d records, want %d", i, len(batches[i]), want)
		}
	}
	if got := batches[2][0].FreqCenter; got != 104e6 {
		t.Errorf("got tail record at %d Hz, want 104e6", got)
	}
	if got := testutil.ToFloat64(m.ExportedRecords.WithLabelValues(metrics.OutcomeSuccess)); got != 5 {
		t.Errorf("got %f exported records, want 5", got)
	}
}

func TestServerErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "storage unavailable", http.StatusInternalServerError)
	}))
	defer srv.Close()

	m := newMetrics(t)
	s := &Server{URL: srv.URL, Metrics: m}
	if err := s.Write(context.Background(), feed(testRecords(3))); err != nil {
		t.Fatalf("Write() returned error: %s", err)
	}
	if got := testutil.ToFloat64(m.ExportedRecords.WithLabelValues(metrics.OutcomeError)); got != 3 {
		t.Errorf("got %f failed records, want 3", got)
	}
}

func writeFile(path, content string) error {
	return os.WriteFile(path, []byte(content), 0o600)
}

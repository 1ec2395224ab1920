package sim

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/hb9tf/hopper/sdr"
)

func collect(t *testing.T, s *SDR, chunks int) [][]sdr.IQ {
	t.Helper()
	var mu sync.Mutex
	var got [][]sdr.IQ
	done := make(chan struct{})
	err := s.StartReceive(func(chunk []sdr.IQ) {
		mu.Lock()
		defer mu.Unlock()
		if len(got) == chunks {
			return
		}
		got = append(got, append([]sdr.IQ(nil), chunk...))
		if len(got) == chunks {
			close(done)
		}
	})
	if err != nil {
		t.Fatalf("StartReceive() returned error: %s", err)
	}
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for %d chunks", chunks)
	}
	if err := s.StopReceive(); err != nil {
		t.Fatalf("StopReceive() returned error: %s", err)
	}
	return got
}

func TestChunkSizesRepeat(t *testing.T) {
	s := &SDR{ChunkSizes: []int{10, 20, 5}}
	got := collect(t, s, 5)
	want := []int{10, 20, 5, 10, 20}
	for i, c := range got {
		if len(c) != want[i] {
			t.Errorf("chunk %d: got %d samples, want %d", i, len(c), want[i])
		}
	}
}

func TestSettlingAndFrequencyTag(t *testing.T) {
	s := &SDR{ChunkSizes: []int{100}, Settling: 50 * time.Microsecond}
	if err := s.SetSampleRate(1e6); err != nil {
		t.Fatal(err)
	}
	if err := s.SetFrequency(433e6); err != nil {
		t.Fatal(err)
	}
	got := collect(t, s, 1)[0]
	for i, iq := range got {
		want := FrequencyTag(433e6)
		if i < 50 {
			want = SettlingQ
		}
		if iq[1] != want {
			t.Fatalf("sample %d: got Q %d, want %d", i, iq[1], want)
		}
		if iq[0] != int8(i) {
			t.Fatalf("sample %d: got I %d, want the running counter", i, iq[0])
		}
	}
}

func TestQuickTuneToken(t *testing.T) {
	s := &SDR{}
	if err := s.SetFrequency(145e6); err != nil {
		t.Fatal(err)
	}
	if _, err := s.CaptureQuickTune(146e6); err == nil {
		t.Errorf("captured a token for a frequency the device is not tuned to")
	}
	tok, err := s.CaptureQuickTune(145e6)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.SetFrequency(430e6); err != nil {
		t.Fatal(err)
	}
	if err := s.RetuneQuick(tok); err != nil {
		t.Fatalf("RetuneQuick() returned error: %s", err)
	}
	if got := s.Frequency(); got != 145e6 {
		t.Errorf("got frequency %f, want 145e6", got)
	}
	if got := s.QuickTunes(); got != 1 {
		t.Errorf("got %d quick tunes, want 1", got)
	}
	if err := s.RetuneQuick(sdr.QuickTuneToken("garbage")); err == nil {
		t.Errorf("RetuneQuick() accepted a malformed token")
	}
	want := []float64{145e6, 430e6, 145e6}
	got := s.Tunes()
	if len(got) != len(want) {
		t.Fatalf("got tunes %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("tune %d: got %f, want %f", i, got[i], want[i])
		}
	}
}

func TestFailTuneAndClose(t *testing.T) {
	failing := errors.New("no lock")
	s := &SDR{FailTune: func(hz float64) error {
		if hz > 1e9 {
			return failing
		}
		return nil
	}}
	if err := s.RetuneNow(2e9); !errors.Is(err, failing) {
		t.Errorf("got error %v, want %v", err, failing)
	}
	if err := s.RetuneNow(0); err == nil {
		t.Errorf("tuned to 0 Hz")
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	if !s.Closed() {
		t.Errorf("Closed() = false after Close")
	}
	if err := s.SetFrequency(100e6); err == nil {
		t.Errorf("tuned a closed device")
	}
	if err := s.StartReceive(func([]sdr.IQ) {}); err == nil {
		t.Errorf("started receiving on a closed device")
	}
}

func TestStopReceiveWithoutStart(t *testing.T) {
	s := &SDR{}
	if err := s.StopReceive(); err != nil {
		t.Errorf("StopReceive() returned error: %s", err)
	}
}

func TestFailReceiveReportsError(t *testing.T) {
	overrun := errors.New("transfer overrun")
	s := &SDR{
		ChunkSizes: []int{10},
		FailReceive: func(n int) error {
			if n == 3 {
				return overrun
			}
			return nil
		},
	}
	reported := make(chan error, 1)
	s.OnReceiveError(func(err error) { reported <- err })

	var mu sync.Mutex
	chunks := 0
	if err := s.StartReceive(func([]sdr.IQ) {
		mu.Lock()
		defer mu.Unlock()
		chunks++
	}); err != nil {
		t.Fatalf("StartReceive() returned error: %s", err)
	}
	select {
	case err := <-reported:
		if !errors.Is(err, overrun) {
			t.Errorf("got reported error %v, want %v", err, overrun)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("receive failure was not reported")
	}
	if err := s.StopReceive(); err != nil {
		t.Fatalf("StopReceive() returned error: %s", err)
	}
	mu.Lock()
	defer mu.Unlock()
	if chunks != 3 {
		t.Errorf("got %d chunks, want 3", chunks)
	}
}

func TestFailReceiveWithoutHandler(t *testing.T) {
	s := &SDR{FailReceive: func(int) error { return errors.New("gone") }}
	if err := s.StartReceive(func([]sdr.IQ) { t.Error("chunk delivered after receive failure") }); err != nil {
		t.Fatalf("StartReceive() returned error: %s", err)
	}
	if err := s.StopReceive(); err != nil {
		t.Errorf("StopReceive() returned error: %s", err)
	}
}

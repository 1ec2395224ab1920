package sdr

import (
	"math"
	"testing"
	"time"
)

func TestSummarize(t *testing.T) {
	completed := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	scanStart := completed.Add(-time.Minute)
	tests := []struct {
		name                  string
		rate                  float64
		env                   Envelope
		wantLow, wantHigh     uint64
		wantDBLow, wantDBHigh float64
		wantDBAvg             float64
		wantStart             time.Time
	}{
		{
			name:       "full scale",
			rate:       1e6,
			env:        Envelope{Samples: []IQ{{-128, -128}, {-128, -128}}, CenterFrequency: 100e6, Completed: completed},
			wantLow:    99500000,
			wantHigh:   100500000,
			wantDBLow:  0,
			wantDBHigh: 0,
			wantDBAvg:  0,
			wantStart:  completed.Add(-2 * time.Microsecond),
		},
		{
			name:       "silence and full scale",
			rate:       1e6,
			env:        Envelope{Samples: []IQ{{0, 0}, {-128, -128}}, CenterFrequency: 100e6, Completed: completed, ScanStart: scanStart},
			wantLow:    99500000,
			wantHigh:   100500000,
			wantDBLow:  silenceDB,
			wantDBHigh: 0,
			wantDBAvg:  10 * math.Log10(0.5),
			wantStart:  scanStart,
		},
		{
			name:       "low edge clamped",
			rate:       20e6,
			env:        Envelope{CenterFrequency: 5e6, Completed: completed},
			wantLow:    0,
			wantHigh:   15e6,
			wantDBLow:  silenceDB,
			wantDBHigh: silenceDB,
			wantDBAvg:  silenceDB,
			wantStart:  completed,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			r := Summarize("id", "sim", tc.rate, tc.env)
			if r.Identifier != "id" || r.Source != "sim" {
				t.Errorf("got identifier %q source %q", r.Identifier, r.Source)
			}
			if r.FreqLow != tc.wantLow || r.FreqHigh != tc.wantHigh {
				t.Errorf("got band %d-%d, want %d-%d", r.FreqLow, r.FreqHigh, tc.wantLow, tc.wantHigh)
			}
			if r.SampleCount != int64(len(tc.env.Samples)) {
				t.Errorf("got sample count %d, want %d", r.SampleCount, len(tc.env.Samples))
			}
			for _, c := range []struct {
				name      string
				got, want float64
			}{
				{"DBLow", r.DBLow, tc.wantDBLow},
				{"DBHigh", r.DBHigh, tc.wantDBHigh},
				{"DBAvg", r.DBAvg, tc.wantDBAvg},
			} {
				if math.Abs(c.got-c.want) > 1e-9 {
					t.Errorf("got %s %f, want %f", c.name, c.got, c.want)
				}
			}
			if !r.Start.Equal(tc.wantStart) {
				t.Errorf("got start %s, want %s", r.Start, tc.wantStart)
			}
			if !r.End.Equal(completed) {
				t.Errorf("got end %s, want %s", r.End, completed)
			}
			if r.ScanStart != tc.env.HasScanStart() {
				t.Errorf("got scan start %t, want %t", r.ScanStart, tc.env.HasScanStart())
			}
		})
	}
}

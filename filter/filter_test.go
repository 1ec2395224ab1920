package filter

import (
	"testing"

	"github.com/hb9tf/hopper/sdr"
)

func TestFilterFreq(t *testing.T) {
	tests := []struct {
		name   string
		filter FilterFreq
		low    uint64
		high   uint64
		ignore bool
	}{
		{"inside", FilterFreq{FreqLow: 100, FreqHigh: 200}, 120, 180, false},
		{"overlaps low edge", FilterFreq{FreqLow: 100, FreqHigh: 200}, 90, 110, false},
		{"overlaps high edge", FilterFreq{FreqLow: 100, FreqHigh: 200}, 190, 210, false},
		{"below", FilterFreq{FreqLow: 100, FreqHigh: 200}, 10, 90, true},
		{"above", FilterFreq{FreqLow: 100, FreqHigh: 200}, 210, 290, true},
		{"open upper edge", FilterFreq{FreqLow: 100}, 1e9, 2e9, false},
		{"no limits", FilterFreq{}, 0, 10, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			r := &sdr.Record{FreqLow: tc.low, FreqHigh: tc.high}
			if got := tc.filter.ShouldIgnore(r); got != tc.ignore {
				t.Errorf("ShouldIgnore(%d-%d) = %t, want %t", tc.low, tc.high, got, tc.ignore)
			}
		})
	}
}

func TestFilter(t *testing.T) {
	in := make(chan sdr.Record, 4)
	out := make(chan sdr.Record, 4)
	for _, f := range []uint64{50, 150, 250, 160} {
		in <- sdr.Record{FreqCenter: f, FreqLow: f - 5, FreqHigh: f + 5}
	}
	close(in)

	if err := Filter(in, out, []Filterer{&FilterFreq{FreqLow: 100, FreqHigh: 200}}); err != nil {
		t.Fatal(err)
	}
	var got []uint64
	for r := range out {
		got = append(got, r.FreqCenter)
	}
	if len(got) != 2 || got[0] != 150 || got[1] != 160 {
		t.Errorf("got records %v, want [150 160]", got)
	}
}

package filter

import "github.com/hb9tf/hopper/sdr"

type Filterer interface {
	ShouldIgnore(*sdr.Record) bool
}

// Filter forwards records from input to output unless any filter ignores them.
// output is closed once input is drained.
func Filter(input <-chan sdr.Record, output chan<- sdr.Record, filters []Filterer) error {
	defer close(output)
	for r := range input {
		if ignored(&r, filters) {
			continue
		}
		output <- r
	}
	return nil
}

func ignored(r *sdr.Record, filters []Filterer) bool {
	for _, f := range filters {
		if f.ShouldIgnore(r) {
			return true
		}
	}
	return false
}

// FilterFreq ignores records entirely outside [FreqLow, FreqHigh]. A zero
// FreqHigh leaves the upper edge open.
type FilterFreq struct {
	FreqHigh uint64
	FreqLow  uint64
}

func (f *FilterFreq) ShouldIgnore(r *sdr.Record) bool {
	// Check if low freq of record is higher than what we want to include.
	if f.FreqHigh > 0 && r.FreqLow > f.FreqHigh {
		return true
	}
	// Check if high freq of record is lower than what we want to include.
	if r.FreqHigh < f.FreqLow {
		return true
	}
	return false
}

package sdr

import (
	"math"
	"time"
)

const (
	// fullScale is the power of a sample with both components at -128.
	fullScale = 2 * 128 * 128
	// silenceDB stands in for the power of an all zero sample.
	silenceDB = -100.0
)

func powerDB(p float64) float64 {
	if p <= 0 {
		return silenceDB
	}
	return 10 * math.Log10(p/fullScale)
}

// Summarize reduces a captured block to the record stored by exporters.
// The block is assumed to end at env.Completed.
func Summarize(identifier, source string, sampleRate float64, env Envelope) Record {
	low := env.CenterFrequency - sampleRate/2
	if low < 0 {
		low = 0
	}
	r := Record{
		Identifier:  identifier,
		Source:      source,
		FreqCenter:  uint64(env.CenterFrequency),
		FreqLow:     uint64(low),
		FreqHigh:    uint64(env.CenterFrequency + sampleRate/2),
		SampleCount: int64(len(env.Samples)),
		Sweep:       env.Sweep,
		ScanStart:   env.HasScanStart(),
		End:         env.Completed,
		DBLow:       silenceDB,
		DBHigh:      silenceDB,
		DBAvg:       silenceDB,
	}
	if sampleRate > 0 {
		d := time.Duration(math.Round(float64(len(env.Samples)) / sampleRate * float64(time.Second)))
		r.Start = env.Completed.Add(-d)
	} else {
		r.Start = env.Completed
	}
	if env.HasScanStart() {
		r.Start = env.ScanStart
	}
	if len(env.Samples) == 0 {
		return r
	}

	minP, maxP, sum := math.Inf(1), 0.0, 0.0
	for _, s := range env.Samples {
		i, q := float64(s[0]), float64(s[1])
		p := i*i + q*q
		sum += p
		if p < minP {
			minP = p
		}
		if p > maxP {
			maxP = p
		}
	}
	r.DBLow = powerDB(minP)
	r.DBHigh = powerDB(maxP)
	r.DBAvg = powerDB(sum / float64(len(env.Samples)))
	return r
}

package hop

import (
	"context"
	"fmt"

	"github.com/golang/glog"

	"github.com/hb9tf/hopper/sdr"
)

// QuickTuneCache holds one token per plan entry: tokens[i] is only valid for plan.At(i).
type QuickTuneCache struct {
	tokens []sdr.QuickTuneToken
}

// PopulateQuickTunes visits every planned frequency in order, tunes to it and
// captures a quick-tune token. Any failure aborts the whole population.
func PopulateQuickTunes(ctx context.Context, dev sdr.Device, qt sdr.QuickTuner, plan *Plan) (*QuickTuneCache, error) {
	tokens := make([]sdr.QuickTuneToken, plan.Len())
	for i := range tokens {
		if err := ctx.Err(); err != nil {
			return nil, sdr.TuneError("quick tune", err)
		}
		freq := plan.At(i)
		if err := dev.SetFrequency(freq); err != nil {
			return nil, sdr.TuneError("quick tune", fmt.Errorf("failed to set frequency to %.0f Hz: %w", freq, err))
		}
		tok, err := qt.CaptureQuickTune(freq)
		if err != nil {
			return nil, sdr.TuneError("quick tune", fmt.Errorf("failed to get quick tune for %.0f Hz: %w", freq, err))
		}
		glog.V(3).Infof("quick tune %d: %.0f Hz", i, freq)
		tokens[i] = tok
	}
	glog.Infof("captured %d quick tunes on %s", len(tokens), dev.Name())
	return &QuickTuneCache{tokens: tokens}, nil
}

func (c *QuickTuneCache) Len() int {
	if c == nil {
		return 0
	}
	return len(c.tokens)
}

// Token returns the token for plan index i.
func (c *QuickTuneCache) Token(i int) (sdr.QuickTuneToken, bool) {
	if c == nil || i < 0 || i >= len(c.tokens) {
		return nil, false
	}
	return c.tokens[i], true
}

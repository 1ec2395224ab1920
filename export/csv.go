package export

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"

	"github.com/golang/glog"

	"github.com/hb9tf/hopper/metrics"
	"github.com/hb9tf/hopper/sdr"
)

// CSV writes records to Out, stdout when nil.
type CSV struct {
	Out     io.Writer
	Metrics *metrics.Collector
}

var csvHeader = []string{
	"Source",
	"Identifier",
	"FreqCenter",
	"FreqLow",
	"FreqHigh",
	"StartUnixMilli",
	"EndUnixMilli",
	"dBLow",
	"dBHigh",
	"dbAvg",
	"SampleCount",
	"Sweep",
	"ScanStart",
}

func (c *CSV) Write(ctx context.Context, records <-chan sdr.Record) error {
	out := c.Out
	if out == nil {
		out = os.Stdout
	}
	w := csv.NewWriter(out)
	if err := w.Write(csvHeader); err != nil {
		return fmt.Errorf("unable to write CSV header: %w", err)
	}
	w.Flush()

	cnt := &counts{name: "csv", metrics: c.Metrics}
	for r := range records {
		err := w.Write([]string{
			r.Source,
			r.Identifier,
			fmt.Sprintf("%d", r.FreqCenter),
			fmt.Sprintf("%d", r.FreqLow),
			fmt.Sprintf("%d", r.FreqHigh),
			fmt.Sprintf("%d", r.Start.UnixMilli()),
			fmt.Sprintf("%d", r.End.UnixMilli()),
			fmt.Sprintf("%f", r.DBLow),
			fmt.Sprintf("%f", r.DBHigh),
			fmt.Sprintf("%f", r.DBAvg),
			fmt.Sprintf("%d", r.SampleCount),
			fmt.Sprintf("%d", r.Sweep),
			fmt.Sprintf("%t", r.ScanStart),
		})
		if err != nil {
			glog.Warningf("error while writing CSV line: %s\n", err)
		}
		w.Flush()
		if ferr := w.Error(); ferr != nil {
			glog.Warningf("error flushing CSV: %s\n", ferr)
			err = ferr
		}
		cnt.record(err)
	}
	return nil
}

package export

import (
	"context"

	"github.com/golang/glog"

	"github.com/hb9tf/hopper/metrics"
	"github.com/hb9tf/hopper/sdr"
)

const countInfoInterval = 1000

type Exporter interface {
	Write(context.Context, <-chan sdr.Record) error
}

// counts tracks export outcomes and logs them every countInfoInterval records.
type counts struct {
	name    string
	metrics *metrics.Collector

	total, success, errors int
}

func (c *counts) record(err error) {
	c.total++
	if err != nil {
		c.errors++
		c.metrics.Exported(metrics.OutcomeError)
	} else {
		c.success++
		c.metrics.Exported(metrics.OutcomeSuccess)
	}
	if c.total%countInfoInterval == 0 {
		glog.Infof("%s export counts: total=%d success=%d error=%d", c.name, c.total, c.success, c.errors)
	}
}

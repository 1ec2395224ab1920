package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang/glog"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/hb9tf/hopper/export"
	"github.com/hb9tf/hopper/filter"
	"github.com/hb9tf/hopper/hackrf"
	"github.com/hb9tf/hopper/hop"
	"github.com/hb9tf/hopper/metrics"
	"github.com/hb9tf/hopper/rtlsdr"
	"github.com/hb9tf/hopper/sdr"
	"github.com/hb9tf/hopper/sim"
)

// Flags
var (
	identifier    = flag.String("id", "", "unique identifier of source instance (random when empty)")
	sdrType       = flag.String("sdr", "", "SDR to use (one of: hackrf, rtlsdr, sim)")
	deviceIndex   = flag.Int("deviceIndex", 0, "index of the rtl-sdr device to open")
	deviceArgs    = flag.String("deviceArgs", "", "device arguments, \"bias\" enables the bias tee")
	startFreq     = flag.Float64("startFreq", 400e6, "first center frequency in Hz")
	stopFreq      = flag.Float64("stopFreq", 450e6, "last center frequency in Hz")
	sampleRate    = flag.Float64("sampleRate", 20e6, "sample rate in Hz, also the hop step")
	samples       = flag.Int("samples", 8192, "samples per capture block")
	bandwidth     = flag.Float64("bandwidth", 0, "baseband filter bandwidth in Hz (0: sample rate)")
	lnaGain       = flag.Int("lnaGain", hackrf.DefaultGains.LNA, "LNA gain in dB (tuner gain on rtl-sdr, 0 for auto)")
	vgaGain       = flag.Int("vgaGain", hackrf.DefaultGains.VGA, "VGA gain in dB")
	amp           = flag.Bool("amp", false, "enable the RF amplifier (AGC on rtl-sdr)")
	quickTune     = flag.Bool("quickTune", true, "capture quick-tune tokens on devices supporting them")
	sweeps        = flag.Int("sweeps", 0, "stop after this many sweeps (0: run until interrupted)")
	retuneRetries = flag.Int("retuneRetries", 2, "retries of a failed retune before giving up")
	queueSize     = flag.Int("queueSize", 256, "capture blocks buffered between the device and the exporter")
	stopTimeout   = flag.Duration("stopTimeout", 5*time.Second, "how long to wait for the device to stop")
	output        = flag.String("output", "", "Export mechanism to use (one of: csv, sqlite, mysql, server)")
	metricsListen = flag.String("metricsListen", "", "address to serve /metrics on (disabled when empty)")
	filterLow     = flag.Uint64("filterLow", 0, "drop records entirely below this frequency in Hz")
	filterHigh    = flag.Uint64("filterHigh", 0, "drop records entirely above this frequency in Hz (0: no limit)")

	// SQLite
	sqliteFile = flag.String("sqliteFile", "/tmp/hopper", "File path of the sqlite DB file to use.")

	// MySQL
	mysqlServer       = flag.String("mysqlServer", "127.0.0.1:3306", "MySQL TCP server endpoint to connect to (IP/DNS and port).")
	mysqlUser         = flag.String("mysqlUser", "", "MySQL DB user.")
	mysqlPasswordFile = flag.String("mysqlPasswordFile", "", "Path to the file containing the password for the MySQL user.")
	mysqlDBName       = flag.String("mysqlDBName", "hopper", "Name of the DB to use.")

	// Server
	server        = flag.String("server", "", "URL of the hopper collection server.")
	serverRecords = flag.Int("serverRecords", 100, "Records to send to the server per request.")
)

func openDevice() (sdr.Device, error) {
	switch strings.ToLower(*sdrType) {
	case hackrf.SourceName:
		return hackrf.Open()
	case "rtlsdr", rtlsdr.SourceName:
		return rtlsdr.Open(*deviceIndex)
	case sim.SourceName:
		return &sim.SDR{Interval: time.Millisecond}, nil
	}
	return nil, sdr.DeviceInitError("open", errors.New("unsupported SDR type, pick one of: hackrf, rtlsdr, sim"))
}

func newExporter(m *metrics.Collector) (export.Exporter, func(), error) {
	switch strings.ToLower(*output) {
	case "csv":
		return &export.CSV{Metrics: m}, func() {}, nil
	case "sqlite":
		db, err := export.OpenSQLite(*sqliteFile)
		if err != nil {
			return nil, nil, err
		}
		return &export.SQL{DB: db, Dialect: export.DialectSQLite, Metrics: m}, func() { db.Close() }, nil
	case "mysql":
		db, err := export.OpenMySQL(&export.MySQLOptions{
			Server:       *mysqlServer,
			User:         *mysqlUser,
			PasswordFile: *mysqlPasswordFile,
			DBName:       *mysqlDBName,
		})
		if err != nil {
			return nil, nil, err
		}
		return &export.SQL{DB: db, Dialect: export.DialectMySQL, Metrics: m}, func() { db.Close() }, nil
	case "server":
		if *server == "" {
			return nil, nil, errors.New("-server needs to be set for server export")
		}
		return &export.Server{URL: *server, SendRecordsAmount: *serverRecords, Metrics: m}, func() {}, nil
	}
	return nil, nil, errors.New("unsupported export method, pick one of: csv, sqlite, mysql, server")
}

func serveMetrics(m *metrics.Collector) *http.Server {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	m.Mount(r)
	srv := &http.Server{Addr: *metricsListen, Handler: r}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			glog.Warningf("metrics server stopped: %s", err)
		}
	}()
	glog.Infof("serving metrics on %s", *metricsListen)
	return srv
}

func main() {
	// Set defaults for glog flags. Can be overridden via cmdline.
	flag.Set("logtostderr", "false")
	flag.Set("stderrthreshold", "WARNING")
	flag.Set("v", "1")
	// Parse flags globally.
	flag.Parse()
	defer glog.Flush()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if *identifier == "" {
		*identifier = uuid.NewString()
		glog.Infof("no -id set, using %s", *identifier)
	}

	reg := prometheus.NewRegistry()
	m, err := metrics.NewCollector(reg)
	if err != nil {
		glog.Exitf("unable to set up metrics: %s", err)
	}
	if *metricsListen != "" {
		srv := serveMetrics(m)
		defer func() {
			sctx, scancel := context.WithTimeout(context.Background(), time.Second)
			defer scancel()
			srv.Shutdown(sctx)
		}()
	}

	exporter, closeExporter, err := newExporter(m)
	if err != nil {
		glog.Exitf("%q export: %s", *output, err)
	}
	defer closeExporter()

	dev, err := openDevice()
	if err != nil {
		glog.Exitf("%q: %s", *sdrType, err)
	}
	queue := sdr.NewQueue(*queueSize)
	queue.Metrics = m
	session, err := hop.NewSession(ctx, dev, queue, hop.Options{
		SampleRate:     *sampleRate,
		SampleCount:    *samples,
		StartFrequency: *startFreq,
		StopFrequency:  *stopFreq,
		Bandwidth:      *bandwidth,
		Gains: sdr.Gains{
			LNA: *lnaGain,
			VGA: *vgaGain,
			Amp: *amp,
		},
		DeviceArgs:       *deviceArgs,
		DisableQuickTune: !*quickTune,
		RetuneRetries:    *retuneRetries,
		Sweeps:           *sweeps,
		StopTimeout:      *stopTimeout,
		Metrics:          m,
	})
	if err != nil {
		glog.Exitf("unable to set up capture session: %s", err)
	}

	records := make(chan sdr.Record, *queueSize)
	filtered := make(chan sdr.Record, *queueSize)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer queue.Close()
		return session.Run(gctx)
	})
	g.Go(func() error {
		defer close(records)
		for env := range queue.Envelopes() {
			records <- sdr.Summarize(*identifier, dev.Name(), session.SampleRate(), env)
		}
		return nil
	})
	g.Go(func() error {
		return filter.Filter(records, filtered, []filter.Filterer{
			&filter.FilterFreq{FreqLow: *filterLow, FreqHigh: *filterHigh},
		})
	})
	g.Go(func() error {
		// Records still buffered after an interrupt get written out.
		err := exporter.Write(context.WithoutCancel(gctx), filtered)
		// Keep the pipeline flowing if the exporter gave up early.
		for range filtered {
		}
		return err
	})

	if err := g.Wait(); err != nil {
		glog.Exitf("capture failed: %s", err)
	}
	st := session.Stats()
	glog.Infof("done: %d blocks in %d sweeps, %d settling samples discarded, %d stale samples dropped, %d blocks dropped by the queue",
		st.Blocks, st.Sweeps, st.Discarded, st.Stale, queue.Drops())
}

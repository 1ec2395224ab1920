package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang/glog"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hb9tf/hopper/export"
	"github.com/hb9tf/hopper/metrics"
	"github.com/hb9tf/hopper/sdr"
)

var (
	listen   = flag.String("listen", ":8443", "")
	certFile = flag.String("certFile", "", "Path of the file containing the certificate (including the chained intermediates and root) for the TLS connection.")
	keyFile  = flag.String("keyFile", "", "Path of the file containing the key for the TLS connection.")
	output   = flag.String("output", "", "Export mechanism to use (one of: csv, sqlite, mysql)")

	// SQLite
	sqliteFile = flag.String("sqliteFile", "/tmp/hopper", "File path of the sqlite DB file to use.")

	// MySQL
	mysqlServer       = flag.String("mysqlServer", "127.0.0.1:3306", "MySQL TCP server endpoint to connect to (IP/DNS and port).")
	mysqlUser         = flag.String("mysqlUser", "", "MySQL DB user.")
	mysqlPasswordFile = flag.String("mysqlPasswordFile", "", "Path to the file containing the password for the MySQL user.")
	mysqlDBName       = flag.String("mysqlDBName", "hopper", "Name of the DB to use.")
)

type collector struct {
	records chan<- sdr.Record
}

func (c *collector) collect(ctx *gin.Context) {
	var records []sdr.Record
	if err := ctx.ShouldBindJSON(&records); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"status": "error", "error": err.Error()})
		return
	}
	for _, r := range records {
		select {
		case c.records <- r:
		case <-ctx.Request.Context().Done():
			ctx.JSON(http.StatusServiceUnavailable, gin.H{"status": "error", "error": "request cancelled"})
			return
		}
	}
	ctx.JSON(http.StatusOK, export.CollectResponse{
		Status:      "ok",
		RecordCount: len(records),
	})
}

// newRouter serves the collect endpoint, handing received records to records,
// and the metrics.
func newRouter(records chan<- sdr.Record, m *metrics.Collector) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	c := &collector{records: records}
	r.POST(export.CollectEndpoint, c.collect)
	m.Mount(r)
	return r
}

func newExporter(m *metrics.Collector) (export.Exporter, error) {
	switch strings.ToLower(*output) {
	case "csv":
		return &export.CSV{Metrics: m}, nil
	case "sqlite":
		db, err := export.OpenSQLite(*sqliteFile)
		if err != nil {
			return nil, err
		}
		return &export.SQL{DB: db, Dialect: export.DialectSQLite, Metrics: m}, nil
	case "mysql":
		db, err := export.OpenMySQL(&export.MySQLOptions{
			Server:       *mysqlServer,
			User:         *mysqlUser,
			PasswordFile: *mysqlPasswordFile,
			DBName:       *mysqlDBName,
		})
		if err != nil {
			return nil, err
		}
		return &export.SQL{DB: db, Dialect: export.DialectMySQL, Metrics: m}, nil
	}
	return nil, errors.New("unsupported export method, pick one of: csv, sqlite, mysql")
}

func main() {
	ctx := context.Background()
	// Set defaults for glog flags. Can be overridden via cmdline.
	flag.Set("logtostderr", "false")
	flag.Set("stderrthreshold", "WARNING")
	flag.Set("v", "1")
	// Parse flags globally.
	flag.Parse()
	defer glog.Flush()

	m, err := metrics.NewCollector(prometheus.NewRegistry())
	if err != nil {
		glog.Exitf("unable to set up metrics: %s", err)
	}
	exporter, err := newExporter(m)
	if err != nil {
		glog.Exitf("%q export: %s", *output, err)
	}

	// Export records.
	records := make(chan sdr.Record, 1000)
	go func() {
		if err := exporter.Write(ctx, records); err != nil {
			glog.Fatal(err)
		}
	}()

	gin.SetMode(gin.ReleaseMode)
	srv := &http.Server{
		Addr:    *listen,
		Handler: newRouter(records, m),
	}
	if *certFile != "" || *keyFile != "" {
		glog.Fatal(srv.ListenAndServeTLS(*certFile, *keyFile))
	} else {
		glog.Infoln("Resorting to serving HTTP because there was no certificate and key defined.")
		glog.Fatal(srv.ListenAndServe())
	}
}

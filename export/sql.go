package export

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/golang/glog"

	"github.com/hb9tf/hopper/metrics"
	"github.com/hb9tf/hopper/sdr"
)

const (
	DialectSQLite = "sqlite3"
	DialectMySQL  = "mysql"

	sqliteCreateTableTmpl = `CREATE TABLE IF NOT EXISTS hopper (
		"ID"           INTEGER NOT NULL PRIMARY KEY AUTOINCREMENT,
		"Identifier"   TEXT NOT NULL,
		"Source"       TEXT NOT NULL,
		"FreqCenter"   INTEGER,
		"FreqLow"      INTEGER,
		"FreqHigh"     INTEGER,
		"DBHigh"       REAL,
		"DBLow"        REAL,
		"DBAvg"        REAL,
		"SampleCount"  INTEGER,
		"Sweep"        INTEGER,
		"ScanStart"    INTEGER,
		"Start"        INTEGER,
		"End"          INTEGER
	);`
	mysqlCreateTableTmpl = "CREATE TABLE IF NOT EXISTS hopper (" +
		"`ID`           BIGINT NOT NULL AUTO_INCREMENT PRIMARY KEY," +
		"`Identifier`   VARCHAR(255) NOT NULL," +
		"`Source`       VARCHAR(64) NOT NULL," +
		"`FreqCenter`   BIGINT UNSIGNED," +
		"`FreqLow`      BIGINT UNSIGNED," +
		"`FreqHigh`     BIGINT UNSIGNED," +
		"`DBHigh`       DOUBLE," +
		"`DBLow`        DOUBLE," +
		"`DBAvg`        DOUBLE," +
		"`SampleCount`  BIGINT," +
		"`Sweep`        BIGINT UNSIGNED," +
		"`ScanStart`    BOOLEAN," +
		"`Start`        BIGINT," +
		"`End`          BIGINT" +
		");"
	insertRecordTmpl = `INSERT INTO hopper (
		Identifier,
		Source,
		FreqCenter,
		FreqLow,
		FreqHigh,
		DBHigh,
		DBLow,
		DBAvg,
		SampleCount,
		Sweep,
		ScanStart,
		Start,
		End
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?);`
)

// SQL stores records in the hopper table of a sqlite3 or MySQL database.
type SQL struct {
	DB *sql.DB
	// Dialect is DialectSQLite (default) or DialectMySQL.
	Dialect string
	Metrics *metrics.Collector
}

// CreateTable creates the hopper table if it doesn't exist yet.
func (s *SQL) CreateTable(ctx context.Context) error {
	tmpl := sqliteCreateTableTmpl
	switch s.Dialect {
	case "", DialectSQLite:
	case DialectMySQL:
		tmpl = mysqlCreateTableTmpl
	default:
		return fmt.Errorf("unsupported SQL dialect %q", s.Dialect)
	}
	if _, err := s.DB.ExecContext(ctx, tmpl); err != nil {
		return err
	}
	return nil
}

func (s *SQL) Write(ctx context.Context, records <-chan sdr.Record) error {
	if err := s.CreateTable(ctx); err != nil {
		return fmt.Errorf("unable to create table: %w", err)
	}
	statement, err := s.DB.PrepareContext(ctx, insertRecordTmpl)
	if err != nil {
		return fmt.Errorf("unable to prepare insert: %w", err)
	}
	defer statement.Close()

	cnt := &counts{name: "sql", metrics: s.Metrics}
	for r := range records {
		_, err := statement.ExecContext(ctx, r.Identifier, r.Source, r.FreqCenter, r.FreqLow, r.FreqHigh, r.DBHigh, r.DBLow, r.DBAvg, r.SampleCount, r.Sweep, r.ScanStart, r.Start.UnixMilli(), r.End.UnixMilli())
		if err != nil {
			glog.Warningf("error storing record in %s DB: %s\n", s.dialect(), err)
		}
		cnt.record(err)
	}

	return nil
}

func (s *SQL) dialect() string {
	if s.Dialect == "" {
		return DialectSQLite
	}
	return s.Dialect
}

package export

import (
	"database/sql"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
)

type MySQLOptions struct {
	// Server is the TCP endpoint, host:port.
	Server       string
	User         string
	PasswordFile string
	DBName       string
}

// Config builds the driver configuration, reading the password from PasswordFile.
func (o *MySQLOptions) Config() (*mysql.Config, error) {
	cfg := mysql.NewConfig()
	cfg.User = o.User
	cfg.Net = "tcp"
	cfg.Addr = o.Server
	cfg.DBName = o.DBName
	if o.PasswordFile != "" {
		pass, err := os.ReadFile(o.PasswordFile)
		if err != nil {
			return nil, fmt.Errorf("unable to read MySQL password file %q: %w", o.PasswordFile, err)
		}
		cfg.Passwd = strings.TrimSpace(string(pass))
	}
	return cfg, nil
}

func OpenMySQL(o *MySQLOptions) (*sql.DB, error) {
	cfg, err := o.Config()
	if err != nil {
		return nil, err
	}
	db, err := sql.Open(DialectMySQL, cfg.FormatDSN())
	if err != nil {
		return nil, fmt.Errorf("unable to open MySQL DB %q: %w", o.Server, err)
	}
	db.SetConnMaxLifetime(3 * time.Minute)
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	return db, nil
}

package config

import (
	"fmt"
	"net/url"
	"time"

	"github.com/go-sql-driver/mysql"
)

// DSN builds the driver-specific data source name.
func (d *DatabaseConfig) DSN() string {
	switch d.DialectName() {
	case "postgres":
		return d.postgresDSN()
	case "sqlite":
		return d.Database
	default:
		return d.mysqlDSN()
	}
}

// DriverName is the database/sql driver registration name.
func (d *DatabaseConfig) DriverName() string {
	switch d.DialectName() {
	case "postgres":
		return "pgx"
	case "sqlite":
		return "sqlite"
	default:
		return "mysql"
	}
}

func (d *DatabaseConfig) mysqlDSN() string {
	cfg := mysql.NewConfig()
	cfg.User = d.User
	cfg.Passwd = d.Password
	cfg.Net = "tcp"
	cfg.Addr = fmt.Sprintf("%s:%d", d.Host, d.Port)
	cfg.DBName = d.Database
	cfg.ParseTime = true
	cfg.Loc = time.UTC
	switch d.TLSMode {
	case "true":
		cfg.TLSConfig = "true"
	case "skip-verify":
		cfg.TLSConfig = "skip-verify"
	}
	return cfg.FormatDSN()
}

func (d *DatabaseConfig) postgresDSN() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(d.User, d.Password),
		Host:   fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:   "/" + d.Database,
	}
	q := url.Values{}
	switch d.TLSMode {
	case "true":
		q.Set("sslmode", "verify-full")
	case "skip-verify":
		q.Set("sslmode", "require")
	case "false":
		q.Set("sslmode", "disable")
	}
	u.RawQuery = q.Encode()
	return u.String()
}

package sqlstore

import (
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"strings"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/microsoft/go-mssqldb"
)

type ConnectionConfig struct {
	Type     string // postgres | mysql | mssql
	DSN      string // used verbatim when set
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

// Open resolves the dialect for cfg.Type and opens a pool. It does not
// contact the server; call Ping for that.
func Open(cfg ConnectionConfig) (*Store, error) {
	if strings.TrimSpace(cfg.Type) == "" {
		return nil, errors.New("connection type is required")
	}
	d, err := dialectFor(cfg.Type)
	if err != nil {
		return nil, err
	}
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		dsn = d.dsn(cfg)
	}
	db, err := sql.Open(d.driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s connection: %w", d.name, err)
	}
	return &Store{db: db, dialect: d}, nil
}

func dialectFor(kind string) (dialect, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "postgres", "postgresql":
		return postgresDialect, nil
	case "mysql":
		return mysqlDialect, nil
	case "mssql", "sqlserver":
		return mssqlDialect, nil
	default:
		return dialect{}, fmt.Errorf("unsupported database type %q", kind)
	}
}

func postgresDSN(cfg ConnectionConfig) string {
	if cfg.Port == 0 {
		cfg.Port = 5432
	}
	sslMode := strings.ToLower(strings.TrimSpace(cfg.SSLMode))
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s", cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, sslMode)
}

// mysqlDSN asks for found rows so an UPDATE that rewrites identical values
// still reports the row as affected.
func mysqlDSN(cfg ConnectionConfig) string {
	if cfg.Port == 0 {
		cfg.Port = 3306
	}
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&loc=UTC&clientFoundRows=true", cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.Database)
	sslMode := strings.ToLower(strings.TrimSpace(cfg.SSLMode))
	if sslMode == "disable" {
		dsn += "&tls=false"
	} else if sslMode != "" {
		dsn += "&tls=true"
	}
	return dsn
}

func mssqlDSN(cfg ConnectionConfig) string {
	if cfg.Port == 0 {
		cfg.Port = 1433
	}
	user := url.QueryEscape(cfg.User)
	pass := url.QueryEscape(cfg.Password)
	encrypt := "true"
	if strings.ToLower(strings.TrimSpace(cfg.SSLMode)) == "disable" {
		encrypt = "disable"
	}
	return fmt.Sprintf("sqlserver://%s:%s@%s:%d?database=%s&encrypt=%s", user, pass, cfg.Host, cfg.Port, url.QueryEscape(cfg.Database), encrypt)
}

package sqlstore

import (
	"strconv"
	"strings"
)

type dialect struct {
	name        string
	driver      string
	dsn         func(ConnectionConfig) string
	placeholder func(n int) string
	// table prefix, "dbo." on SQL Server
	schema string
}

var (
	postgresDialect = dialect{
		name:        "postgres",
		driver:      "postgres",
		dsn:         postgresDSN,
		placeholder: func(n int) string { return "$" + strconv.Itoa(n) },
	}
	mysqlDialect = dialect{
		name:        "mysql",
		driver:      "mysql",
		dsn:         mysqlDSN,
		placeholder: func(int) string { return "?" },
	}
	mssqlDialect = dialect{
		name:        "mssql",
		driver:      "sqlserver",
		dsn:         mssqlDSN,
		placeholder: func(n int) string { return "@p" + strconv.Itoa(n) },
		schema:      "dbo.",
	}
)

// rebind rewrites ? placeholders into the dialect's form and expands the
// {t} marker into the schema prefix. Queries in this package never carry a
// literal question mark inside a string.
func (d dialect) rebind(query string) string {
	query = strings.ReplaceAll(query, "{t}", d.schema)
	if d.name == "mysql" {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString(d.placeholder(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

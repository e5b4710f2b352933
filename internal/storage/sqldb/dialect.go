package sqldb

import (
	"fmt"
	"strconv"
	"strings"
)

// Supported database drivers
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// dialect captures the differences between the supported databases.
// Queries are written with ? placeholders and rebound per dialect.
type dialect struct {
	driver string
	// lockSuffix is appended to a SELECT that must block concurrent writers
	lockSuffix string
}

func dialectFor(driver string) (dialect, error) {
	switch driver {
	case DriverSQLite:
		// SQLite serialises writers at BEGIN via _txlock=immediate
		return dialect{driver: driver}, nil
	case DriverPostgres:
		return dialect{driver: driver, lockSuffix: " FOR UPDATE"}, nil
	default:
		return dialect{}, fmt.Errorf("unsupported sql driver %q: must be %q or %q", driver, DriverSQLite, DriverPostgres)
	}
}

// rebind rewrites ? placeholders into the dialect's positional form
func (d dialect) rebind(query string) string {
	if d.driver != DriverPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

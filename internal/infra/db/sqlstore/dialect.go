// Package sqlstore holds the audit repositories shared by the sqlite, mysql and
// postgres adapters. Queries are written with "?" placeholders and rebound per dialect.
package sqlstore

import (
	"strconv"
	"strings"
)

type Dialect struct {
	Name string
	// Numbered placeholders ($1, $2, ...) instead of "?".
	Numbered bool
	// unique recognises the driver's unique-constraint error.
	unique func(error) bool
}

var (
	SQLite   = Dialect{Name: "sqlite"}
	MySQL    = Dialect{Name: "mysql"}
	Postgres = Dialect{Name: "postgres", Numbered: true}
)

// Rebind rewrites "?" placeholders for the dialect.
func (d Dialect) Rebind(q string) string {
	if !d.Numbered {
		return q
	}
	var b strings.Builder
	b.Grow(len(q) + 8)
	n := 0
	for _, r := range q {
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

// WithUniqueViolation returns a copy of d that reports unique-constraint errors with fn.
func (d Dialect) WithUniqueViolation(fn func(error) bool) Dialect {
	d.unique = fn
	return d
}

// IsUniqueViolation reports whether err is a unique-constraint error of the driver.
func (d Dialect) IsUniqueViolation(err error) bool {
	return err != nil && d.unique != nil && d.unique(err)
}

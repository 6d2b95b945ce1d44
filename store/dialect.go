package store

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// dialect holds what differs between the SQLite and PostgreSQL backends.
// Queries are written once with ? placeholders and SQLite's datetime
// default, then rewritten for PostgreSQL.
type dialect struct {
	name       string
	sqlDriver  string
	schema     string
	numbered   bool
	nowLiteral string
	// textTime stores timestamps as fixed-width text; otherwise they are
	// passed to the driver as time.Time.
	textTime bool
}

const sqliteNow = "datetime('now','localtime')"

var (
	sqliteDialect = dialect{
		name:       "sqlite",
		sqlDriver:  "sqlite",
		schema:     schemaSQLite,
		nowLiteral: sqliteNow,
		textTime:   true,
	}
	postgresDialect = dialect{
		name:       "postgres",
		sqlDriver:  "pgx",
		schema:     schemaPostgres,
		numbered:   true,
		nowLiteral: "NOW()",
	}
)

func (d dialect) rewrite(query string) string {
	if d.nowLiteral != sqliteNow {
		query = strings.ReplaceAll(query, sqliteNow, d.nowLiteral)
	}
	if d.numbered {
		query = Rebind(query)
	}
	return query
}

// tsLayout keeps a fixed width so SQLite text timestamps compare correctly.
const tsLayout = "2006-01-02T15:04:05.000000000Z07:00"

// localLayout matches what sqliteNow produces.
const localLayout = "2006-01-02 15:04:05"

func (d dialect) encodeTime(t time.Time) any {
	if d.textTime {
		return t.UTC().Format(tsLayout)
	}
	return t.UTC()
}

func (d dialect) encodeLocalTime(t time.Time) any {
	if d.textTime {
		return t.Local().Format(localLayout)
	}
	return t
}

var timeLayouts = []string{
	tsLayout,
	localLayout,
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
}

// parseTime decodes a scanned timestamp. SQLite hands back text, pgx a
// time.Time. Unparseable values give the zero time.
func parseTime(v any) time.Time {
	switch t := v.(type) {
	case time.Time:
		return t
	case []byte:
		return parseTime(string(t))
	case string:
		for _, layout := range timeLayouts {
			if parsed, err := time.Parse(layout, t); err == nil {
				return parsed
			}
		}
	}
	return time.Time{}
}

func parseTimePtr(v any) *time.Time {
	if t := parseTime(v); !t.IsZero() {
		return &t
	}
	return nil
}

// Rebind numbers ? placeholders as $1, $2, ... Question marks inside
// single-quoted literals are left alone.
func Rebind(query string) string {
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	quoted := false
	for i := 0; i < len(query); i++ {
		c := query[i]
		switch {
		case c == '\'':
			quoted = !quoted
			b.WriteByte(c)
		case c == '?' && !quoted:
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

func (d dialect) String() string { return fmt.Sprintf("%s (%s)", d.name, d.sqlDriver) }

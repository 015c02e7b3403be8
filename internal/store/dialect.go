package store

import "fmt"

// dialect abstracts the handful of SQL differences between sqlite and
// postgres this package needs: parameter placeholders, upsert syntax,
// and the autoincrement primary key clause used in CREATE TABLE.
type dialect interface {
	placeholder(n int) string
	upsertSuffix(conflictCols string, setCols []string) string
	pk() string
	name() string
}

type sqliteDialect struct{}

func (sqliteDialect) name() string { return "sqlite" }

func (sqliteDialect) placeholder(int) string { return "?" }

func (sqliteDialect) pk() string { return "INTEGER PRIMARY KEY AUTOINCREMENT" }

func (sqliteDialect) upsertSuffix(conflictCols string, setCols []string) string {
	return fmt.Sprintf("ON CONFLICT(%s) DO UPDATE SET %s", conflictCols, joinSets(setCols, "excluded"))
}

type postgresDialect struct{}

func (postgresDialect) name() string { return "postgres" }

func (postgresDialect) placeholder(n int) string { return fmt.Sprintf("$%d", n) }

func (postgresDialect) pk() string { return "BIGSERIAL PRIMARY KEY" }

func (postgresDialect) upsertSuffix(conflictCols string, setCols []string) string {
	return fmt.Sprintf("ON CONFLICT(%s) DO UPDATE SET %s", conflictCols, joinSets(setCols, "EXCLUDED"))
}

// rebind rewrites a query written with "?" placeholders into the target
// dialect's form, so every query in store.go is written once.
func rebind(query string, d dialect) string {
	if _, ok := d.(sqliteDialect); ok {
		return query
	}
	out := make([]byte, 0, len(query)+8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			out = append(out, []byte(d.placeholder(n))...)
			continue
		}
		out = append(out, query[i])
	}
	return string(out)
}

func joinSets(cols []string, aliasTable string) string {
	out := ""
	for i, c := range cols {
		if i > 0 {
			out += ", "
		}
		out += fmt.Sprintf("%s = %s.%s", c, aliasTable, c)
	}
	return out
}

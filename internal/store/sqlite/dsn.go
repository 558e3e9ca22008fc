package sqlite

import (
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
)

const memoryPath = ":memory:"

// connPragmas are applied by the driver to every pooled connection. Pragmas
// run once through Exec would only reach the first connection.
var connPragmas = []string{
	"busy_timeout(30000)",
	"foreign_keys(1)",
}

type dsnSpec struct {
	Path  string
	Query url.Values
}

func (s dsnSpec) memory() bool {
	return s.Path == memoryPath
}

// driverDSN renders the DSN for modernc.org/sqlite, adding connection pragmas
// the caller did not set and WAL mode for file databases.
func (s dsnSpec) driverDSN() string {
	query := url.Values{}
	for k, v := range s.Query {
		query[k] = append([]string(nil), v...)
	}
	set := map[string]bool{}
	for _, p := range query["_pragma"] {
		name, _, _ := strings.Cut(p, "(")
		set[strings.ToLower(name)] = true
	}
	pragmas := connPragmas
	if !s.memory() {
		pragmas = append(pragmas[:len(pragmas):len(pragmas)], "journal_mode(WAL)")
	}
	for _, p := range pragmas {
		name, _, _ := strings.Cut(p, "(")
		if !set[name] {
			query.Add("_pragma", p)
		}
	}
	return s.Path + "?" + query.Encode()
}

func parseDSN(dsn string) (dsnSpec, error) {
	rest, ok := strings.CutPrefix(dsn, "sqlite://")
	if !ok {
		return dsnSpec{}, fmt.Errorf("invalid sqlite DSN scheme, expected sqlite://")
	}

	path, rawQuery, _ := strings.Cut(rest, "?")
	query, err := url.ParseQuery(rawQuery)
	if err != nil {
		return dsnSpec{}, fmt.Errorf("parsing query: %w", err)
	}

	if path == memoryPath {
		return dsnSpec{Path: memoryPath, Query: query}, nil
	}
	if path == "" {
		return dsnSpec{}, fmt.Errorf("sqlite DSN has no database path")
	}

	unescaped, err := url.PathUnescape(path)
	if err != nil {
		return dsnSpec{}, fmt.Errorf("unescaping path: %w", err)
	}
	path = unescaped
	if !filepath.IsAbs(path) && !strings.HasPrefix(path, "./") {
		path = "./" + path
	}
	return dsnSpec{Path: path, Query: query}, nil
}

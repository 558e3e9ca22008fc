package store

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

var readOnlyVerbs = map[string]bool{
	"select":  true,
	"with":    true,
	"explain": true,
	"values":  true,
}

// CheckReadOnly rejects ad-hoc queries that do not start with a read verb or
// that chain several statements.
func CheckReadOnly(query string) error {
	trimmed := strings.TrimSpace(query)
	trimmed = strings.TrimSuffix(trimmed, ";")
	if trimmed == "" {
		return fmt.Errorf("empty query")
	}
	if strings.Contains(trimmed, ";") {
		return fmt.Errorf("multiple statements are not allowed")
	}
	verb, _, _ := strings.Cut(strings.ToLower(trimmed), " ")
	verb = strings.TrimSpace(strings.SplitN(verb, "\n", 2)[0])
	if !readOnlyVerbs[verb] {
		return fmt.Errorf("only read-only queries are allowed, got %q", verb)
	}
	return nil
}

// QueryParams splits ad-hoc parameters into positional values, keyed "1",
// "2", ... and ordered by index, and named values keyed by anything else.
func QueryParams(params map[string]any) (positional []any, named map[string]any, err error) {
	indexes := make([]int, 0, len(params))
	named = map[string]any{}
	for key, val := range params {
		n, convErr := strconv.Atoi(key)
		if convErr != nil {
			named[key] = val
			continue
		}
		if n < 1 {
			return nil, nil, fmt.Errorf("positional parameter %q must be >= 1", key)
		}
		indexes = append(indexes, n)
	}
	sort.Ints(indexes)
	for i, n := range indexes {
		if n != i+1 {
			return nil, nil, fmt.Errorf("positional parameters must be contiguous from 1, missing %d", i+1)
		}
		positional = append(positional, params[strconv.Itoa(n)])
	}
	return positional, named, nil
}

// Package migrations bundles the Postgres schema shared by the SQL drivers.
package migrations

import (
	"embed"
	"fmt"
	"sort"
	"strings"
)

//go:embed *.sql
var files embed.FS

// SQL returns every migration concatenated in file name order. Each
// statement is idempotent, so the result can be applied on every start.
func SQL() (string, error) {
	entries, err := files.ReadDir(".")
	if err != nil {
		return "", fmt.Errorf("reading migrations: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)

	var b strings.Builder
	for _, name := range names {
		body, err := files.ReadFile(name)
		if err != nil {
			return "", fmt.Errorf("reading migration %s: %w", name, err)
		}
		b.Write(body)
		b.WriteString("\n")
	}
	return b.String(), nil
}

package sqlstore

import (
	"context"
	"fmt"
	"strings"
)

// ApplyMigration runs a migration script one statement at a time. Not every
// driver accepts several statements in one Exec, so the script is split on
// semicolons that end a line.
func (s *Store) ApplyMigration(ctx context.Context, script string) error {
	for i, stmt := range SplitStatements(script) {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("statement %d: %w", i+1, err)
		}
	}
	return nil
}

func SplitStatements(script string) []string {
	var (
		out     []string
		current strings.Builder
	)
	flush := func() {
		stmt := strings.TrimSpace(current.String())
		if stmt != "" {
			out = append(out, stmt)
		}
		current.Reset()
	}
	for _, line := range strings.Split(script, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "--") {
			continue
		}
		if strings.HasSuffix(trimmed, ";") {
			current.WriteString(strings.TrimSuffix(trimmed, ";"))
			flush()
			continue
		}
		current.WriteString(line)
		current.WriteString("\n")
	}
	flush()
	return out
}

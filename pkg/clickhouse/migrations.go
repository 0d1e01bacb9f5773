package clickhouse

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"sort"
	"strings"

	elt "github.com/Laxman2008/elt-pipeline-project"
)

// RunMigrations executes the embedded ClickHouse migration files in filename
// order (0001_*.sql, 0002_*.sql, ...). Every statement uses IF NOT EXISTS,
// so re-running is a no-op; store-level errors (unreachable, permission
// denied, conflicting schema) are returned to the caller.
func RunMigrations(ctx context.Context, log *slog.Logger, conn Connection) error {
	log.Info("running ClickHouse migrations")

	entries, err := elt.MigrationsFS.ReadDir("migrations/clickhouse")
	if err != nil {
		return fmt.Errorf("failed to read migrations directory: %w", err)
	}

	var migrationFiles []fs.DirEntry
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".sql") {
			migrationFiles = append(migrationFiles, entry)
		}
	}

	sort.Slice(migrationFiles, func(i, j int) bool {
		return migrationFiles[i].Name() < migrationFiles[j].Name()
	})

	if len(migrationFiles) == 0 {
		log.Warn("no migration files found")
		return nil
	}

	for _, entry := range migrationFiles {
		migrationPath := fmt.Sprintf("migrations/clickhouse/%s", entry.Name())
		log.Info("executing migration", "file", entry.Name())

		content, err := elt.MigrationsFS.ReadFile(migrationPath)
		if err != nil {
			return fmt.Errorf("failed to read migration file %s: %w", entry.Name(), err)
		}

		statements := SplitSQLStatements(string(content))
		for i, stmt := range statements {
			if err := conn.Exec(ctx, stmt); err != nil {
				return fmt.Errorf("failed to execute migration %s (statement %d): %w", entry.Name(), i+1, err)
			}
		}
	}

	log.Info("all migrations completed", "count", len(migrationFiles))
	return nil
}

// SplitSQLStatements splits SQL content on trailing semicolons, skipping
// blank lines and -- comments. ClickHouse rejects multi-statement Exec
// calls, so each statement must be sent separately.
func SplitSQLStatements(content string) []string {
	var statements []string
	var current strings.Builder
	lines := strings.Split(content, "\n")

	for _, line := range lines {
		trimmed := strings.TrimSpace(line)

		if trimmed == "" || strings.HasPrefix(trimmed, "--") {
			continue
		}

		current.WriteString(line)
		current.WriteString("\n")

		if strings.HasSuffix(trimmed, ";") {
			stmt := strings.TrimSpace(current.String())
			if stmt != "" {
				statements = append(statements, stmt)
			}
			current.Reset()
		}
	}

	if current.Len() > 0 {
		stmt := strings.TrimSpace(current.String())
		if stmt != "" {
			statements = append(statements, stmt)
		}
	}

	return statements
}

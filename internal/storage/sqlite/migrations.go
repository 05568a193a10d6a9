package sqlite

import (
	"context"
	"database/sql"
	"fmt"
)

// knownMigrations is the set of schema_migrations names this binary's
// schema.go was written against. checkMigrationHead records 0001_initial
// when the table is empty, and otherwise refuses to run against a database
// that has any recorded migration it has never heard of, rather than
// silently operating against an unknown shape.
var knownMigrations = map[string]bool{
	"0001_initial": true,
}

func checkMigrationHead(ctx context.Context, db *sql.DB) error {
	rows, err := db.QueryContext(ctx, "SELECT name FROM schema_migrations")
	if err != nil {
		return fmt.Errorf("read schema_migrations: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return fmt.Errorf("scan schema_migrations: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	if len(names) == 0 {
		_, err := db.ExecContext(ctx,
			"INSERT INTO schema_migrations(name) VALUES (?)", "0001_initial")
		if err != nil {
			return fmt.Errorf("record initial migration: %w", err)
		}
		return nil
	}

	for _, name := range names {
		if !knownMigrations[name] {
			return fmt.Errorf("unknown migration %q applied to database: core does not understand this schema", name)
		}
	}
	return nil
}

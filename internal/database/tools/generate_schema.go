// Command generate_schema replays every migration into an empty database and
// writes the resulting CREATE statements to migrations/schema.sql.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/jmoiron/sqlx"

	"animlib/internal/database"
	"animlib/internal/database/migrations"
)

const schemaHeader = "-- Fresh-install schema: the result of applying files/*.sql in order.\n" +
	"-- Regenerate with `go generate ./internal/database` after adding a migration.\n\n"

func main() {
	log.SetFlags(0)
	out := filepath.Join("internal", "database", "migrations", "schema.sql")
	version, err := generate(context.Background(), out)
	if err != nil {
		log.Fatalf("generate_schema: %v", err)
	}
	fmt.Printf("Generated %s from migrations (version %d)\n", out, version)
}

func generate(ctx context.Context, out string) (uint, error) {
	db, err := database.OpenConnection(database.MemoryPath, database.DefaultBusyTimeout)
	if err != nil {
		return 0, err
	}
	defer db.Close()

	latest, err := migrations.LatestVersion()
	if err != nil {
		return 0, err
	}
	// Replay the files rather than loading schema.sql, which is the output.
	if err := migrations.ApplyThrough(ctx, db, latest); err != nil {
		return 0, err
	}
	schema, err := dumpSchema(ctx, db)
	if err != nil {
		return 0, err
	}
	return latest, os.WriteFile(out, []byte(schema), 0644)
}

// dumpSchema returns the tables, then the indexes, of the library schema.
// SQLite internals and schema_version are left out.
func dumpSchema(ctx context.Context, db *sqlx.DB) (string, error) {
	var stmts []string
	err := db.SelectContext(ctx, &stmts, `
		SELECT sql || ';' FROM sqlite_master
		WHERE sql IS NOT NULL
		  AND type IN ('table', 'index')
		  AND name NOT LIKE 'sqlite_%'
		  AND tbl_name <> 'schema_version'
		ORDER BY type = 'index', name`)
	if err != nil {
		return "", fmt.Errorf("reading sqlite_master: %w", err)
	}

	var b strings.Builder
	b.WriteString(schemaHeader)
	for _, s := range stmts {
		b.WriteString(s)
		b.WriteString("\n\n")
	}
	return b.String(), nil
}

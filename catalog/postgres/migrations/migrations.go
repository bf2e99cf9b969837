// Package migrations embeds the catalog schema's SQL migration files and
// exposes them as a sorted slice of remind101/migrate.Migration, the same
// mechanism the teacher's datastore/postgres/migrations package used for the
// vulnerability-matching schema.
package migrations

import (
	"database/sql"
	"embed"
	"fmt"
	"io"
	"io/fs"
	"path"
	"strconv"
	"strings"

	"github.com/remind101/migrate"
)

// MigrationTable is the name remind101/migrate uses for its bookkeeping
// table, kept distinct from the teacher's libvuln/libindex tables since all
// three could share a database.
const MigrationTable = "catalog_schema_migrations"

//go:embed catalog/*.sql
var sys embed.FS

// Catalog is the ordered migration set for the catalog schema.
var Catalog = loadMigrations("catalog")

func loadMigrations(dir string) []migrate.Migration {
	ents, err := fs.ReadDir(sys, dir)
	if err != nil {
		panic(fmt.Errorf("migrations: unable to read embed: %w", err))
	}

	ms := make([]migrate.Migration, 0, len(ents))
	for _, ent := range ents {
		if path.Ext(ent.Name()) != ".sql" || !ent.Type().IsRegular() {
			continue
		}
		p := path.Join(dir, ent.Name())
		id := migrationID(ent.Name())
		ms = append(ms, migrate.Migration{
			ID: id,
			Up: func(tx *sql.Tx) error {
				f, err := sys.Open(p)
				if err != nil {
					return fmt.Errorf("unable to open migration %q: %w", p, err)
				}
				defer f.Close()
				var b strings.Builder
				if _, err := io.Copy(&b, f); err != nil {
					return fmt.Errorf("unable to read migration %q: %w", p, err)
				}
				if _, err := tx.Exec(b.String()); err != nil {
					return fmt.Errorf("unable to exec migration %q: %w", p, err)
				}
				return nil
			},
		})
	}
	return ms
}

// migrationID parses the leading numeric prefix of a migration filename
// ("0001_initial.sql" -> 1) to serve as remind101/migrate's ordering key.
func migrationID(name string) int {
	before, _, _ := strings.Cut(name, "_")
	n, err := strconv.Atoi(before)
	if err != nil {
		panic("migrations: bad filename " + name)
	}
	return n
}

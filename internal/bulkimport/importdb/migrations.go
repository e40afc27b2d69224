package importdb

import (
	"context"
	"embed"

	"github.com/fhir-server/bulkimport/internal/common/database"
)

//go:embed migrations/*.sql
var embeddedMigrations embed.FS

func Migrations() ([]database.Migration, error) {
	return database.ReadMigrations(embeddedMigrations, "migrations")
}

// Migrate brings the import schema up to date.
func Migrate(ctx context.Context, db database.Querier) error {
	migrations, err := Migrations()
	if err != nil {
		return err
	}
	return database.UpdateDatabase(ctx, db, migrations)
}

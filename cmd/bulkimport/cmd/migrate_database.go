package cmd

import (
	"github.com/spf13/cobra"

	"github.com/fhir-server/bulkimport/internal/bulkimport"
)

func migrateDbCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrateDatabase",
		Short: "migrates the import database to the latest version",
		RunE:  migrateDatabase,
	}
	return cmd
}

func migrateDatabase(_ *cobra.Command, _ []string) error {
	config, err := loadConfig()
	if err != nil {
		return err
	}
	return bulkimport.MigrateDatabase(config)
}

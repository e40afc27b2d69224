package cmd

import (
	"github.com/spf13/cobra"

	"github.com/fhir-server/bulkimport/internal/bulkimport"
)

func runCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Imports the configured source object",
		RunE:  runImport,
	}
	return cmd
}

func runImport(_ *cobra.Command, _ []string) error {
	config, err := loadConfig()
	if err != nil {
		return err
	}
	return bulkimport.Run(config)
}

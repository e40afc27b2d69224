package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/fhir-server/bulkimport/internal/bulkimport/configuration"
	"github.com/fhir-server/bulkimport/internal/common"
	commonconfig "github.com/fhir-server/bulkimport/internal/common/config"
)

const (
	CustomConfigLocation string = "config"
	defaultConfigPath    string = "./config/bulkimport"
)

func RootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "bulkimport",
		SilenceUsage: true,
		Short:        "Imports NDJSON encoded FHIR resources from blob storage into postgres",
	}

	cmd.PersistentFlags().StringSlice(
		CustomConfigLocation,
		[]string{},
		"Fully qualified path to application configuration file (for multiple config files repeat this arg or separate paths with commas)")
	_ = viper.BindPFlag(CustomConfigLocation, cmd.PersistentFlags().Lookup(CustomConfigLocation))

	cmd.AddCommand(
		runCmd(),
		migrateDbCmd(),
	)

	return cmd
}

func loadConfig() (configuration.Configuration, error) {
	var config configuration.Configuration
	userSpecifiedConfigs := viper.GetStringSlice(CustomConfigLocation)

	if _, err := common.LoadConfig(&config, defaultConfigPath, userSpecifiedConfigs); err != nil {
		return config, err
	}

	err := config.Validate()
	if err != nil {
		commonconfig.LogValidationErrors(err)
	}
	return config, err
}

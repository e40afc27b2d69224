package main

import (
	"os"

	"github.com/fhir-server/bulkimport/cmd/bulkimport/cmd"
	"github.com/fhir-server/bulkimport/internal/common"
	"github.com/fhir-server/bulkimport/internal/common/logging"
)

func main() {
	logging.ConfigureLogging()
	common.BindCommandlineArguments()
	err := cmd.RootCmd().Execute()
	if err != nil {
		os.Exit(1)
	}
}

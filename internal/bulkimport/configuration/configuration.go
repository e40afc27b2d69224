package configuration

import (
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/fhir-server/bulkimport/internal/bulkimport/blobstore"
	"github.com/fhir-server/bulkimport/internal/bulkimport/fhir"
	"github.com/fhir-server/bulkimport/internal/bulkimport/pipeline"
	"github.com/fhir-server/bulkimport/internal/bulkimport/rangereader"
	"github.com/fhir-server/bulkimport/internal/common/database"
	"github.com/fhir-server/bulkimport/internal/common/logging"
)

type Compression string

const (
	CompressionNone Compression = "none"
	CompressionGzip Compression = "gzip"
)

type SourceConfig struct {
	// Where the source object is stored
	Store blobstore.Config
	// Name of the NDJSON object to import
	Object string `validate:"required"`
	// How the object is compressed, either none or gzip
	Compression Compression `validate:"oneof=none gzip"`
}

type Configuration struct {
	// Database configuration
	Postgres database.PostgresConfig
	// Metrics Port
	MetricsPort uint16
	Logging     logging.Config
	// The object to import
	Source SourceConfig
	// Controls how the source object is downloaded
	Reader rangereader.Config
	// Batch sizes, concurrency limits and queue capacities of the import stages
	Pipeline pipeline.Config
	// Raw resources at least this many bytes long are zlib compressed before being stored. Zero disables
	// compression.
	MinRawResourceCompressionSize int `validate:"gte=0"`
	// Search parameters to index. If empty the built in defaults are used.
	SearchParameters []fhir.SearchParameterDefinition `validate:"dive"`
}

func (c Configuration) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return err
	}
	if c.Reader.RangeSize.Value() <= 0 {
		return errors.Errorf("Reader.RangeSize must be positive but was %s", c.Reader.RangeSize.String())
	}
	return c.Logging.Validate()
}

// SearchParametersOrDefault returns the configured search parameters, falling back to
// fhir.DefaultSearchParameters.
func (c Configuration) SearchParametersOrDefault() []fhir.SearchParameterDefinition {
	if len(c.SearchParameters) == 0 {
		return fhir.DefaultSearchParameters()
	}
	return c.SearchParameters
}

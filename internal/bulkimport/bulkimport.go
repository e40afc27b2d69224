// Package bulkimport wires the import pipeline to postgres and blob storage.
package bulkimport

import (
	"context"
	"io"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/klauspost/pgzip"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
	"github.com/thanos-io/objstore"
	"k8s.io/utils/clock"

	"github.com/fhir-server/bulkimport/internal/bulkimport/blobstore"
	"github.com/fhir-server/bulkimport/internal/bulkimport/configuration"
	"github.com/fhir-server/bulkimport/internal/bulkimport/fhir"
	"github.com/fhir-server/bulkimport/internal/bulkimport/importdb"
	"github.com/fhir-server/bulkimport/internal/bulkimport/metrics"
	"github.com/fhir-server/bulkimport/internal/bulkimport/pipeline"
	"github.com/fhir-server/bulkimport/internal/bulkimport/rangereader"
	"github.com/fhir-server/bulkimport/internal/common"
	"github.com/fhir-server/bulkimport/internal/common/app"
	"github.com/fhir-server/bulkimport/internal/common/compress"
	"github.com/fhir-server/bulkimport/internal/common/database"
	"github.com/fhir-server/bulkimport/internal/common/logging"
	"github.com/fhir-server/bulkimport/internal/common/runcontext"
)

// Run imports the configured source object into the database. It returns once every line has been read and
// every batch loaded, on the first fatal error, or when a SIGINT or SIGTERM is received.
func Run(config configuration.Configuration) error {
	if err := logging.ConfigureApplicationLogging(config.Logging); err != nil {
		return errors.WithMessage(err, "Error configuring logging")
	}
	ctx := runcontext.WithLogFields(app.CreateContextWithShutdown(), log.Fields{
		"object": config.Source.Object,
	})

	shutdownMetricServer := common.ServeMetrics(config.MetricsPort)
	defer shutdownMetricServer()
	importMetrics := metrics.NewMetrics(metrics.BulkImportMetricsPrefix, prometheus.DefaultRegisterer)

	ctx.Log.Infof("Opening connection pool to postgres")
	db, err := database.OpenPgxPool(config.Postgres)
	if err != nil {
		return errors.WithMessage(err, "Error opening connection to postgres")
	}
	defer db.Close()

	searchParameters := config.SearchParametersOrDefault()
	maps, err := loadTypeMaps(ctx, db, searchParameters)
	if err != nil {
		return err
	}

	bucket, err := blobstore.NewBucket(config.Source.Store)
	if err != nil {
		return errors.WithMessage(err, "Error creating blob store client")
	}
	defer func() {
		if err := bucket.Close(); err != nil {
			logging.WithStacktrace(ctx.Log, err).Warn("Error closing blob store client")
		}
	}()

	compressor := compress.Compressor(&compress.NoOpCompressor{})
	if config.MinRawResourceCompressionSize > 0 {
		compressor = compress.NewThreadSafeZlibCompressor(config.MinRawResourceCompressionSize)
	}

	importPipeline := pipeline.New(
		config.Pipeline,
		fhir.NewParser(maps.IsKnownResourceType),
		fhir.NewPathExtractor(searchParameters),
		maps,
		importdb.NewPostgresBulkLoader(db, importMetrics),
		compressor,
		pipeline.NewSurrogateIdGenerator(clock.RealClock{}),
		importMetrics,
	)
	summary, err := importPipeline.RunFrom(ctx, func(runCtx *runcontext.Context) (io.ReadCloser, error) {
		return openSource(runCtx, bucket, config.Source, config.Reader, importMetrics)
	})
	if summary.LoadErrors != nil {
		ctx.Log.WithError(summary.LoadErrors).Warnf("%d batches could not be loaded", summary.FailedLoads)
	}
	if err != nil {
		return errors.WithMessage(err, "Error running import pipeline")
	}
	return nil
}

// MigrateDatabase brings the database schema up to date.
func MigrateDatabase(config configuration.Configuration) error {
	start := time.Now()
	log.Info("Beginning database migration")
	db, err := database.OpenPgxPool(config.Postgres)
	if err != nil {
		return errors.WithMessage(err, "Failed to connect to database")
	}
	defer db.Close()

	if err := importdb.Migrate(context.Background(), db); err != nil {
		return errors.WithMessage(err, "Failed to migrate database")
	}
	log.Infof("Database migrated in %s", time.Since(start))
	return nil
}

func loadTypeMaps(ctx *runcontext.Context, db *pgxpool.Pool, searchParameters []fhir.SearchParameterDefinition) (*importdb.TypeMaps, error) {
	urls := make([]string, len(searchParameters))
	for i, p := range searchParameters {
		urls[i] = p.Url
	}
	if err := importdb.RegisterSearchParams(ctx, db, urls); err != nil {
		return nil, errors.WithMessage(err, "Error registering search parameters")
	}
	maps, err := importdb.LoadTypeMaps(ctx, db)
	if err != nil {
		return nil, errors.WithMessage(err, "Error loading type maps")
	}
	ctx.Log.Infof("Loaded %d resource types and %d search parameters", len(maps.ResourceTypeIds), len(maps.SearchParamIds))
	return maps, nil
}

// stackedReadCloser reads from the outermost reader and closes every layer, outermost first.
type stackedReadCloser struct {
	io.Reader
	closers []io.Closer
}

func (s *stackedReadCloser) Close() error {
	var result error
	for _, c := range s.closers {
		if err := c.Close(); err != nil && result == nil {
			result = err
		}
	}
	return result
}

// openSource returns a stream of the source object's decompressed content.
func openSource(
	ctx *runcontext.Context,
	bucket objstore.BucketReader,
	config configuration.SourceConfig,
	readerConfig rangereader.Config,
	metrics *metrics.Metrics,
) (io.ReadCloser, error) {
	reader := rangereader.New(ctx, blobstore.NewBucketSource(bucket, config.Object), readerConfig, metrics)
	switch config.Compression {
	case configuration.CompressionNone, "":
		return reader, nil
	case configuration.CompressionGzip:
		gz, err := pgzip.NewReader(reader)
		if err != nil {
			_ = reader.Close()
			return nil, errors.WithMessagef(err, "Error opening %s as gzip", config.Object)
		}
		return &stackedReadCloser{Reader: gz, closers: []io.Closer{gz, reader}}, nil
	default:
		_ = reader.Close()
		return nil, errors.Errorf("unsupported compression %q", config.Compression)
	}
}

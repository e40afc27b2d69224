// Package pipeline streams NDJSON FHIR resources from a reader into the database. It is made up of four stages
// connected by bounded channels:
//
//	LineSource -> Processor -> ResourceLoader
//	                        -> IndexLoader
//
// A full channel blocks the stage feeding it, which bounds memory use. The first stage to fail cancels the rest.
package pipeline

import (
	"io"
	"time"

	"github.com/pkg/errors"

	"github.com/fhir-server/bulkimport/internal/bulkimport/importdb"
	"github.com/fhir-server/bulkimport/internal/bulkimport/metrics"
	"github.com/fhir-server/bulkimport/internal/bulkimport/model"
	"github.com/fhir-server/bulkimport/internal/common/compress"
	"github.com/fhir-server/bulkimport/internal/common/logging"
	"github.com/fhir-server/bulkimport/internal/common/runcontext"
)

type Config struct {
	// Capacity of the channel between the line source and the processor.
	LineQueueCapacity int `validate:"gte=0"`
	// Capacity of the channel between the processor and the resource loader.
	RecordQueueCapacity int `validate:"gte=0"`
	// Capacity of the channel between the processor and the index loader.
	IndexQueueCapacity int `validate:"gte=0"`
	Processing         ProcessorConfig
	ResourceLoad       LoaderConfig
	IndexLoad          LoaderConfig
	LoadRetry          LoadRetryConfig
	// If true a batch that can't be loaded fails the run rather than being dropped.
	FailOnLoadError bool
	// Log index load progress every time this many more entries have been loaded.
	ProgressInterval int64 `validate:"gt=0"`
}

func DefaultConfig() Config {
	return Config{
		LineQueueCapacity:   10000,
		RecordQueueCapacity: 10000,
		IndexQueueCapacity:  100000,
		Processing: ProcessorConfig{
			BatchSize:          1000,
			MaxInFlightBatches: 8,
		},
		ResourceLoad: LoaderConfig{
			BatchSize:        1000,
			MaxInFlightLoads: 20,
		},
		IndexLoad: LoaderConfig{
			BatchSize:        10000,
			MaxInFlightLoads: 5,
		},
		LoadRetry: LoadRetryConfig{
			AttemptTimeout: 5 * time.Minute,
			RetryCount:     3,
			RetryDelay:     5 * time.Second,
		},
		ProgressInterval: 100000,
	}
}

type Pipeline struct {
	config     Config
	parser     Parser
	extractor  Extractor
	maps       *importdb.TypeMaps
	sink       importdb.BulkLoader
	compressor compress.Compressor
	ids        *SurrogateIdGenerator
	metrics    *metrics.Metrics
}

func New(
	config Config,
	parser Parser,
	extractor Extractor,
	maps *importdb.TypeMaps,
	sink importdb.BulkLoader,
	compressor compress.Compressor,
	ids *SurrogateIdGenerator,
	metrics *metrics.Metrics,
) *Pipeline {
	return &Pipeline{
		config:     config,
		parser:     parser,
		extractor:  extractor,
		maps:       maps,
		sink:       sink,
		compressor: compressor,
		ids:        ids,
		metrics:    metrics,
	}
}

// SourceOpener opens the stream a run reads from. The context it is given is cancelled as soon as any stage
// fails, so a reader bound to it abandons outstanding fetches rather than holding up the run.
type SourceOpener func(ctx *runcontext.Context) (io.ReadCloser, error)

// Run imports every resource in source. It returns once every stage has finished, with a summary of what was
// loaded. The summary is returned even if the run failed.
func (p *Pipeline) Run(ctx *runcontext.Context, source io.Reader) (Summary, error) {
	return p.RunFrom(ctx, func(*runcontext.Context) (io.ReadCloser, error) {
		return io.NopCloser(source), nil
	})
}

// RunFrom is Run for a source opened by open. The source is closed by the line source stage once it stops
// reading.
func (p *Pipeline) RunFrom(ctx *runcontext.Context, open SourceOpener) (Summary, error) {
	stats := &Stats{}
	start := time.Now()
	g, groupCtx := runcontext.ErrGroup(ctx)

	source, err := open(groupCtx)
	if err != nil {
		_ = g.Wait()
		return stats.Summary(), errors.WithMessage(err, "opening source")
	}

	lines := make(chan model.RawLine, p.config.LineQueueCapacity)
	records := make(chan model.ProcessedRecord, p.config.RecordQueueCapacity)
	entries := make(chan model.IndexEntry, p.config.IndexQueueCapacity)

	tableLoader := NewTableLoader(p.sink, p.config.LoadRetry, p.config.FailOnLoadError, p.metrics, stats)
	lineSource := NewLineSource(source, stats)
	processor := NewProcessor(p.config.Processing, p.parser, p.extractor, p.ids, p.metrics, stats)
	resourceLoader := NewResourceLoader(p.config.ResourceLoad, p.maps, p.compressor, tableLoader)
	indexLoader := NewIndexLoader(
		p.config.IndexLoad,
		p.maps,
		tableLoader,
		NewLoggingProgressReporter(runcontext.WithLogField(ctx, "stage", "index").Log, p.config.ProgressInterval),
		p.metrics,
	)

	g.Go(func() error {
		lineCtx := runcontext.WithLogField(groupCtx, "stage", "lines")
		defer func() {
			if err := source.Close(); err != nil {
				logging.WithStacktrace(lineCtx.Log, err).Warn("Error closing source")
			}
		}()
		return errors.WithMessage(lineSource.Run(lineCtx, lines), "line source")
	})
	g.Go(func() error {
		return errors.WithMessage(processor.Run(runcontext.WithLogField(groupCtx, "stage", "process"), lines, records, entries), "processor")
	})
	g.Go(func() error {
		return errors.WithMessage(resourceLoader.Run(runcontext.WithLogField(groupCtx, "stage", "resource"), records), "resource loader")
	})
	g.Go(func() error {
		return errors.WithMessage(indexLoader.Run(runcontext.WithLogField(groupCtx, "stage", "index"), entries), "index loader")
	})
	err = g.Wait()

	summary := stats.Summary()
	ctx.Log.
		WithField("duration", time.Since(start)).
		Infof("Import finished: %d lines read, %d records processed, %d resources loaded, %d index entries loaded, %d index entries dropped, %d failed loads",
			summary.LinesRead,
			summary.RecordsProcessed,
			summary.ResourcesLoaded,
			summary.IndexEntriesLoaded,
			summary.DroppedIndexEntries,
			summary.FailedLoads,
		)
	return summary, err
}

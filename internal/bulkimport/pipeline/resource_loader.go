package pipeline

import (
	"github.com/pkg/errors"

	"github.com/fhir-server/bulkimport/internal/bulkimport/importdb"
	"github.com/fhir-server/bulkimport/internal/bulkimport/model"
	"github.com/fhir-server/bulkimport/internal/common/compress"
	"github.com/fhir-server/bulkimport/internal/common/runcontext"
)

// ResourceLoader writes processed records to the resource table in batches. Loads run concurrently and may
// complete in any order.
type ResourceLoader struct {
	config     LoaderConfig
	maps       *importdb.TypeMaps
	compressor compress.Compressor
	loader     *TableLoader
}

// NewResourceLoader creates a ResourceLoader. compressor is shared by concurrent loads so must be thread safe.
func NewResourceLoader(config LoaderConfig, maps *importdb.TypeMaps, compressor compress.Compressor, loader *TableLoader) *ResourceLoader {
	return &ResourceLoader{
		config:     config,
		maps:       maps,
		compressor: compressor,
		loader:     loader,
	}
}

// Run loads records until the channel is closed and every load has finished.
func (l *ResourceLoader) Run(ctx *runcontext.Context, records <-chan model.ProcessedRecord) error {
	queue := newInflightQueue[struct{}](l.config.MaxInFlightLoads)
	defer queue.Wait()
	ctx, cancel := runcontext.WithCancel(ctx)
	defer cancel()

	batchSize := max(l.config.BatchSize, 1)
	batch := make([]model.ProcessedRecord, 0, batchSize)

	submit := func() error {
		if queue.Full() {
			if _, err := queue.AwaitOldest(ctx); err != nil {
				return err
			}
		}
		toLoad := batch
		queue.Launch(func() (struct{}, error) {
			return struct{}{}, l.load(ctx, toLoad)
		})
		batch = make([]model.ProcessedRecord, 0, batchSize)
		return nil
	}

	for done := false; !done; {
		select {
		case <-ctx.Done():
			return errors.WithStack(ctx.Err())
		case record, ok := <-records:
			if !ok {
				done = true
				continue
			}
			batch = append(batch, record)
			if len(batch) >= batchSize {
				if err := submit(); err != nil {
					return err
				}
			}
		}
	}

	if len(batch) > 0 {
		if err := submit(); err != nil {
			return err
		}
	}
	for queue.Len() > 0 {
		if _, err := queue.AwaitOldest(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (l *ResourceLoader) load(ctx *runcontext.Context, records []model.ProcessedRecord) error {
	table, err := importdb.BuildResourceTable(l.maps, records, l.compressor)
	if err != nil {
		return err
	}
	loaded, err := l.loader.load(ctx, table)
	if err != nil {
		return err
	}
	if loaded {
		l.loader.stats.resourcesLoaded.Add(int64(table.Len()))
	}
	return nil
}

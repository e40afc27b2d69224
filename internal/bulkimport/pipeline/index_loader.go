package pipeline

import (
	"github.com/pkg/errors"

	"github.com/fhir-server/bulkimport/internal/bulkimport/importdb"
	"github.com/fhir-server/bulkimport/internal/bulkimport/metrics"
	"github.com/fhir-server/bulkimport/internal/bulkimport/model"
	"github.com/fhir-server/bulkimport/internal/common/runcontext"
)

// TypeBucket accumulates the index entries of a single index type until there are enough to load.
type TypeBucket struct {
	indexType model.IndexType
	capacity  int
	entries   []model.IndexEntry
}

func NewTypeBucket(indexType model.IndexType, capacity int) *TypeBucket {
	return &TypeBucket{
		indexType: indexType,
		capacity:  capacity,
		entries:   make([]model.IndexEntry, 0, capacity),
	}
}

func (b *TypeBucket) IndexType() model.IndexType {
	return b.indexType
}

func (b *TypeBucket) Add(entry model.IndexEntry) {
	b.entries = append(b.entries, entry)
}

func (b *TypeBucket) Len() int {
	return len(b.entries)
}

// Drain returns everything in the bucket and leaves it empty. The returned slice is no longer referenced by the
// bucket.
func (b *TypeBucket) Drain() []model.IndexEntry {
	drained := b.entries
	b.entries = make([]model.IndexEntry, 0, b.capacity)
	return drained
}

// IndexLoader groups index entries by index type and loads each group into its own table. The in-flight limit is
// shared by every type.
type IndexLoader struct {
	config   LoaderConfig
	maps     *importdb.TypeMaps
	loader   *TableLoader
	reporter ProgressReporter
	metrics  *metrics.Metrics
}

func NewIndexLoader(
	config LoaderConfig,
	maps *importdb.TypeMaps,
	loader *TableLoader,
	reporter ProgressReporter,
	metrics *metrics.Metrics,
) *IndexLoader {
	if reporter == nil {
		reporter = noOpProgressReporter{}
	}
	return &IndexLoader{
		config:   config,
		maps:     maps,
		loader:   loader,
		reporter: reporter,
		metrics:  metrics,
	}
}

// Run loads entries until the channel is closed, every bucket has been drained and every load has finished.
// Entries whose value doesn't resolve to an index type are dropped.
func (l *IndexLoader) Run(ctx *runcontext.Context, entries <-chan model.IndexEntry) error {
	queue := newInflightQueue[struct{}](l.config.MaxInFlightLoads)
	defer queue.Wait()
	ctx, cancel := runcontext.WithCancel(ctx)
	defer cancel()

	batchSize := max(l.config.BatchSize, 1)
	buckets := make(map[model.IndexType]*TypeBucket, len(model.AllIndexTypes))

	submit := func(bucket *TypeBucket) error {
		if queue.Full() {
			if _, err := queue.AwaitOldest(ctx); err != nil {
				return err
			}
		}
		indexType, toLoad := bucket.IndexType(), bucket.Drain()
		queue.Launch(func() (struct{}, error) {
			return struct{}{}, l.load(ctx, indexType, toLoad)
		})
		return nil
	}

	for done := false; !done; {
		select {
		case <-ctx.Done():
			return errors.WithStack(ctx.Err())
		case entry, ok := <-entries:
			if !ok {
				done = true
				continue
			}
			indexType, ok := model.ResolveIndexType(entry.Value)
			if !ok {
				l.loader.stats.droppedIndexEntries.Inc()
				l.metrics.RecordDroppedIndexEntries(metrics.StageIndex, 1)
				continue
			}
			bucket, ok := buckets[indexType]
			if !ok {
				bucket = NewTypeBucket(indexType, batchSize)
				buckets[indexType] = bucket
			}
			bucket.Add(entry)
			if bucket.Len() >= batchSize {
				if err := submit(bucket); err != nil {
					return err
				}
			}
		}
	}

	for _, indexType := range model.AllIndexTypes {
		bucket, ok := buckets[indexType]
		if !ok || bucket.Len() == 0 {
			continue
		}
		if err := submit(bucket); err != nil {
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

func (l *IndexLoader) load(ctx *runcontext.Context, indexType model.IndexType, entries []model.IndexEntry) error {
	builder, ok := importdb.RowBuilderFor(indexType)
	if !ok {
		return errors.Errorf("no row builder for index type %s", indexType)
	}
	table, err := builder(l.maps, entries)
	if err != nil {
		return errors.WithMessagef(err, "building %s rows", indexType)
	}
	loaded, err := l.loader.load(ctx, table)
	if err != nil {
		return err
	}
	if loaded {
		l.reporter.Report(l.loader.stats.indexEntriesLoaded.Add(int64(table.Len())))
	}
	return nil
}

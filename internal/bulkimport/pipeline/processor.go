package pipeline

import (
	"github.com/pkg/errors"

	"github.com/fhir-server/bulkimport/internal/bulkimport/importdb"
	"github.com/fhir-server/bulkimport/internal/bulkimport/metrics"
	"github.com/fhir-server/bulkimport/internal/bulkimport/model"
	"github.com/fhir-server/bulkimport/internal/common/runcontext"
)

type Parser interface {
	Parse(line string) (*model.ParsedRecord, error)
}

type Extractor interface {
	Extract(record *model.ParsedRecord) ([]model.IndexEntry, error)
}

type ProcessorConfig struct {
	// Number of lines parsed by a single task.
	BatchSize int `validate:"gt=0"`
	// Maximum number of batches being parsed at once.
	MaxInFlightBatches int `validate:"gt=0"`
}

type parsedRecord struct {
	record  *model.ParsedRecord
	entries []model.IndexEntry
}

// Processor parses batches of lines in parallel and then, in line order, assigns each record its surrogate id and
// publishes the record and its index entries.
type Processor struct {
	config    ProcessorConfig
	parser    Parser
	extractor Extractor
	ids       *SurrogateIdGenerator
	metrics   *metrics.Metrics
	stats     *Stats
}

func NewProcessor(
	config ProcessorConfig,
	parser Parser,
	extractor Extractor,
	ids *SurrogateIdGenerator,
	metrics *metrics.Metrics,
	stats *Stats,
) *Processor {
	return &Processor{
		config:    config,
		parser:    parser,
		extractor: extractor,
		ids:       ids,
		metrics:   metrics,
		stats:     stats,
	}
}

// Run consumes lines until the channel is closed, then closes records and entries. Any parse or extraction
// failure is fatal, in which case neither output channel is closed.
func (p *Processor) Run(
	ctx *runcontext.Context,
	lines <-chan model.RawLine,
	records chan<- model.ProcessedRecord,
	entries chan<- model.IndexEntry,
) error {
	queue := newInflightQueue[[]parsedRecord](p.config.MaxInFlightBatches)
	defer queue.Wait()
	ctx, cancel := runcontext.WithCancel(ctx)
	defer cancel()

	batchSize := max(p.config.BatchSize, 1)
	batch := make([]model.RawLine, 0, batchSize)
	firstLine := 1

	submit := func() error {
		if queue.Full() {
			if err := p.emitOldest(ctx, queue, records, entries); err != nil {
				return err
			}
		}
		toParse, offset := batch, firstLine
		queue.Launch(func() ([]parsedRecord, error) {
			return p.parse(toParse, offset)
		})
		firstLine += len(batch)
		batch = make([]model.RawLine, 0, batchSize)
		return nil
	}

	for done := false; !done; {
		select {
		case <-ctx.Done():
			return errors.WithStack(ctx.Err())
		case line, ok := <-lines:
			if !ok {
				done = true
				continue
			}
			batch = append(batch, line)
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
		if err := p.emitOldest(ctx, queue, records, entries); err != nil {
			return err
		}
	}
	close(records)
	close(entries)
	return nil
}

func (p *Processor) parse(lines []model.RawLine, firstLine int) ([]parsedRecord, error) {
	parsed := make([]parsedRecord, 0, len(lines))
	for i, line := range lines {
		record, err := p.parser.Parse(line)
		if err != nil {
			return nil, errors.WithMessagef(err, "parsing record %d", firstLine+i)
		}
		entries, err := p.extractor.Extract(record)
		if err != nil {
			return nil, errors.WithMessagef(err, "extracting index entries from record %d (%s/%s)",
				firstLine+i, record.ResourceType, record.ResourceId)
		}
		parsed = append(parsed, parsedRecord{record: record, entries: entries})
	}
	return parsed, nil
}

// emitOldest waits for the oldest batch and publishes its records in order. Surrogate ids are only assigned here,
// on the stage goroutine, so they follow line order.
func (p *Processor) emitOldest(
	ctx *runcontext.Context,
	queue *inflightQueue[[]parsedRecord],
	records chan<- model.ProcessedRecord,
	entries chan<- model.IndexEntry,
) error {
	parsed, err := queue.AwaitOldest(ctx)
	if err != nil {
		return err
	}
	dropped := 0
	for _, r := range parsed {
		id := p.ids.NextId()
		if err := send(ctx, records, model.ProcessedRecord{Record: r.record, SurrogateId: id}); err != nil {
			return err
		}
		for _, entry := range r.entries {
			if entry.Value == nil || !importdb.HandlesKind(entry.Value.Kind()) {
				dropped++
				continue
			}
			if err := send(ctx, entries, entry.WithSurrogateId(id)); err != nil {
				return err
			}
		}
	}
	p.stats.recordsProcessed.Add(int64(len(parsed)))
	p.metrics.RecordRecordsProcessed(len(parsed))
	if dropped > 0 {
		p.stats.droppedIndexEntries.Add(int64(dropped))
		p.metrics.RecordDroppedIndexEntries(metrics.StageProcess, dropped)
	}
	return nil
}

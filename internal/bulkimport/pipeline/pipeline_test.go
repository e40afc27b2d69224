package pipeline

import (
	"context"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"k8s.io/apimachinery/pkg/api/resource"

	"github.com/fhir-server/bulkimport/internal/bulkimport/fhir"
	"github.com/fhir-server/bulkimport/internal/bulkimport/importdb"
	"github.com/fhir-server/bulkimport/internal/bulkimport/rangereader"
	"github.com/fhir-server/bulkimport/internal/common/compress"
	"github.com/fhir-server/bulkimport/internal/common/runcontext"
)

const (
	patientLine     = `{"resourceType":"Patient","id":"p1","gender":"female","name":[{"family":"Smith","given":["Jane"]}]}`
	observationLine = `{"resourceType":"Observation","id":"o1","code":{"coding":[{"system":"http://loinc.org","code":"8867-4"}]},` +
		`"subject":{"reference":"Patient/p1"},` +
		`"component":[{"code":{"coding":[{"system":"http://loinc.org","code":"8480-6"}]},"valueCodeableConcept":{"coding":[{"code":"high"}]}}]}`
)

func e2eMaps() *importdb.TypeMaps {
	maps := &importdb.TypeMaps{
		ResourceTypeIds: map[string]int16{"Patient": 1, "Observation": 2},
		SearchParamIds:  map[string]int16{},
	}
	for i, d := range fhir.DefaultSearchParameters() {
		maps.SearchParamIds[d.Url] = int16(i + 1)
	}
	return maps
}

func testPipelineConfig() Config {
	config := DefaultConfig()
	config.LineQueueCapacity = 1
	config.RecordQueueCapacity = 1
	config.IndexQueueCapacity = 1
	config.Processing = ProcessorConfig{BatchSize: 2, MaxInFlightBatches: 2}
	config.ResourceLoad = LoaderConfig{BatchSize: 2, MaxInFlightLoads: 2}
	config.IndexLoad = LoaderConfig{BatchSize: 3, MaxInFlightLoads: 2}
	config.LoadRetry = testRetry()
	return config
}

func newTestPipeline(config Config, sink *fakeSink) *Pipeline {
	maps := e2eMaps()
	return New(
		config,
		fhir.NewParser(maps.IsKnownResourceType),
		fhir.NewPathExtractor(fhir.DefaultSearchParameters()),
		maps,
		sink,
		compress.NewThreadSafeZlibCompressor(1024),
		NewSurrogateIdGeneratorFrom(1000),
		testMetrics(),
	)
}

func indexRows(sink *fakeSink) int {
	sink.mu.Lock()
	defer sink.mu.Unlock()
	rows := 0
	for _, t := range sink.tables {
		if t.Name != importdb.ResourceTableName {
			rows += t.Len()
		}
	}
	return rows
}

func TestPipeline_Run(t *testing.T) {
	input := patientLine + "\r\n" + observationLine + "\n\n" + strings.Replace(patientLine, "p1", "p2", 1)
	sink := &fakeSink{}

	summary, err := newTestPipeline(testPipelineConfig(), sink).Run(testContext(), strings.NewReader(input))
	require.NoError(t, err)

	assert.Equal(t, int64(3), summary.LinesRead)
	assert.Equal(t, int64(3), summary.RecordsProcessed)
	assert.Equal(t, int64(3), summary.ResourcesLoaded)
	assert.Equal(t, int64(0), summary.FailedLoads)
	assert.NoError(t, summary.LoadErrors)

	ids := map[string]int64{}
	for _, row := range sink.rows(importdb.ResourceTableName) {
		ids[row[1].(string)] = row[4].(int64)
	}
	assert.Equal(t, map[string]int64{"p1": 1001, "o1": 1002, "p2": 1003}, ids)

	combo := sink.rows("token_token_composite_search_param")
	require.Len(t, combo, 1)
	assert.Equal(t, int64(1002), combo[0][1])

	references := sink.rows("reference_search_param")
	require.Len(t, references, 1)
	assert.Equal(t, "p1", references[0][5])

	assert.Equal(t, int64(indexRows(sink)), summary.IndexEntriesLoaded)
	assert.Greater(t, summary.IndexEntriesLoaded, int64(0))
}

func TestPipeline_ManyLines(t *testing.T) {
	var lines []string
	for i := 0; i < 500; i++ {
		lines = append(lines, fmt.Sprintf(`{"resourceType":"Patient","id":"p%d","name":[{"family":"f%d"}]}`, i, i))
	}
	sink := &fakeSink{}

	summary, err := newTestPipeline(testPipelineConfig(), sink).Run(testContext(), strings.NewReader(strings.Join(lines, "\n")))
	require.NoError(t, err)
	assert.Equal(t, int64(500), summary.ResourcesLoaded)

	for _, row := range sink.rows(importdb.ResourceTableName) {
		var i int64
		_, err := fmt.Sscanf(row[1].(string), "p%d", &i)
		require.NoError(t, err)
		assert.Equal(t, 1001+i, row[4].(int64))
	}
	// Patient-name and individual-family both index the family name.
	assert.Len(t, sink.rows("string_search_param"), 1000)
}

func TestPipeline_EmptyInput(t *testing.T) {
	sink := &fakeSink{}
	summary, err := newTestPipeline(testPipelineConfig(), sink).Run(testContext(), strings.NewReader(""))
	require.NoError(t, err)
	assert.Equal(t, Summary{}, summary)
	assert.Empty(t, sink.tables)
}

func TestPipeline_ParseFailureStopsRun(t *testing.T) {
	var lines []string
	for i := 0; i < 100; i++ {
		lines = append(lines, patientLine)
	}
	lines = append(lines, `{"resourceType":"Spaceship","id":"s1"}`)
	for i := 0; i < 100; i++ {
		lines = append(lines, patientLine)
	}

	_, err := newTestPipeline(testPipelineConfig(), &fakeSink{}).Run(testContext(), strings.NewReader(strings.Join(lines, "\n")))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "processor")
	assert.Contains(t, err.Error(), "Spaceship")
}

func TestPipeline_LoadFailureStopsRunWhenConfigured(t *testing.T) {
	config := testPipelineConfig()
	config.FailOnLoadError = true
	sink := &fakeSink{
		failures: map[string]int{"token_search_param": 1000},
		failWith: fmt.Errorf("permission denied"),
	}

	summary, err := newTestPipeline(config, sink).Run(testContext(), strings.NewReader(patientLine+"\n"+observationLine))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "index loader")
	assert.Contains(t, err.Error(), "permission denied")
	assert.GreaterOrEqual(t, summary.FailedLoads, int64(1))
}

// stalledSource serves head from memory. Every fetch beyond it blocks until cancelled.
type stalledSource struct {
	head   []byte
	length int64
}

func (s *stalledSource) GetLength(context.Context) (int64, error) {
	return s.length, nil
}

func (s *stalledSource) FetchRange(ctx context.Context, offset int64, length int64) ([]byte, error) {
	if offset+length <= int64(len(s.head)) {
		return s.head[offset : offset+length], nil
	}
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestPipeline_FailureAbandonsRangeFetches(t *testing.T) {
	head := []byte("bad1\nPatient/p1\n")
	source := &stalledSource{head: head, length: int64(len(head)) * 4}
	readerConfig := rangereader.Config{
		ConcurrentRangeCount: 2,
		RangeSize:            *resource.NewQuantity(int64(len(head)), resource.BinarySI),
		PerRangeTimeout:      time.Minute,
		RetryCount:           3,
		RetryDelay:           time.Second,
	}
	config := testPipelineConfig()
	config.Processing = ProcessorConfig{BatchSize: 1, MaxInFlightBatches: 1}
	p := New(config, linesParser{}, linesExtractor{}, testMaps(), &fakeSink{}, &compress.NoOpCompressor{}, NewSurrogateIdGeneratorFrom(0), testMetrics())

	var reader *rangereader.RangedReader
	start := time.Now()
	_, err := p.RunFrom(testContext(), func(ctx *runcontext.Context) (io.ReadCloser, error) {
		reader = rangereader.New(ctx, source, readerConfig, testMetrics())
		return reader, nil
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "processor")
	assert.Contains(t, err.Error(), "bad1")
	assert.Less(t, time.Since(start), 10*time.Second)

	_, err = reader.Read(make([]byte, 1))
	assert.ErrorIs(t, err, rangereader.ErrReaderClosed)
}

func TestPipeline_OpenFailure(t *testing.T) {
	sink := &fakeSink{}
	summary, err := newTestPipeline(testPipelineConfig(), sink).RunFrom(testContext(), func(*runcontext.Context) (io.ReadCloser, error) {
		return nil, errors.New("no such object")
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "opening source")
	assert.Equal(t, Summary{}, summary)
	assert.Empty(t, sink.tables)
}

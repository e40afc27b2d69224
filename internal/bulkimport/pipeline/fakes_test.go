package pipeline

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/goleak"

	"github.com/fhir-server/bulkimport/internal/bulkimport/importdb"
	"github.com/fhir-server/bulkimport/internal/bulkimport/metrics"
	"github.com/fhir-server/bulkimport/internal/bulkimport/model"
	"github.com/fhir-server/bulkimport/internal/common/logging"
	"github.com/fhir-server/bulkimport/internal/common/runcontext"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const (
	nameParam  = "http://hl7.org/fhir/SearchParameter/Patient-name"
	comboParam = "http://hl7.org/fhir/SearchParameter/Observation-combo-code-value-concept"
	nearParam  = "http://hl7.org/fhir/SearchParameter/Location-near"
)

func testContext() *runcontext.Context {
	return runcontext.New(context.Background(), logging.NullEntry())
}

func testMetrics() *metrics.Metrics {
	return metrics.NewMetrics(metrics.BulkImportMetricsPrefix, prometheus.NewRegistry())
}

func testMaps() *importdb.TypeMaps {
	return &importdb.TypeMaps{
		ResourceTypeIds: map[string]int16{"Patient": 1, "Observation": 2, "Location": 3},
		SearchParamIds:  map[string]int16{nameParam: 10, comboParam: 11, nearParam: 12},
	}
}

func testRetry() LoadRetryConfig {
	return LoadRetryConfig{
		AttemptTimeout: 5 * time.Second,
		RetryCount:     2,
		RetryDelay:     time.Millisecond,
	}
}

// linesParser treats each line as "<resourceType>/<id>" and extracts one string entry per additional
// comma separated name, e.g. "Patient/p1,Smith,Jane".
type linesParser struct{}

func (linesParser) Parse(line string) (*model.ParsedRecord, error) {
	if strings.HasPrefix(line, "bad") {
		return nil, errors.Errorf("cannot parse %q", line)
	}
	key, _, _ := strings.Cut(line, ",")
	resourceType, id, _ := strings.Cut(key, "/")
	return &model.ParsedRecord{
		ResourceType:  resourceType,
		ResourceId:    id,
		RequestMethod: "PUT",
		RawResource:   []byte(line),
	}, nil
}

type linesExtractor struct{}

func (linesExtractor) Extract(record *model.ParsedRecord) ([]model.IndexEntry, error) {
	var entries []model.IndexEntry
	parts := strings.Split(string(record.RawResource), ",")
	for _, name := range parts[1:] {
		var value model.SearchValue = model.StringValue{Value: name}
		if name == "near" {
			value = model.SpecialValue{Value: name}
		}
		entries = append(entries, model.IndexEntry{Record: record, SearchParamUrl: nameParam, Value: value})
	}
	return entries, nil
}

// fakeSink records every table it is given. Tables named in failures fail that many times first.
type fakeSink struct {
	mu       sync.Mutex
	tables   []*importdb.Table
	failures map[string]int
	failWith error
}

func (s *fakeSink) BulkLoad(_ *runcontext.Context, table *importdb.Table) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failures[table.Name] > 0 {
		s.failures[table.Name]--
		return s.failWith
	}
	s.tables = append(s.tables, table)
	return nil
}

func (s *fakeSink) loaded(name string) []*importdb.Table {
	s.mu.Lock()
	defer s.mu.Unlock()
	var tables []*importdb.Table
	for _, t := range s.tables {
		if t.Name == name {
			tables = append(tables, t)
		}
	}
	return tables
}

func (s *fakeSink) rows(name string) [][]interface{} {
	var rows [][]interface{}
	for _, t := range s.loaded(name) {
		rows = append(rows, t.Rows...)
	}
	return rows
}

func collect[T any](ch <-chan T) []T {
	var values []T
	for v := range ch {
		values = append(values, v)
	}
	return values
}

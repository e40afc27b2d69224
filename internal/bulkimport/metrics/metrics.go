package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type (
	DBOperation string
	Stage       string
)

const (
	DBOperationAcquire         DBOperation = "acquire"
	DBOperationRead            DBOperation = "read"
	DBOperationCopy            DBOperation = "copy"
	DBOperationInsert          DBOperation = "insert"
	DBOperationCreateTempTable DBOperation = "create_temp_table"

	StageProcess Stage = "process"
	StageIndex   Stage = "index"
)

const BulkImportMetricsPrefix = "bulkimport_"

type Metrics struct {
	dbErrorsCounter         *prometheus.CounterVec
	rowsLoadedCounter       *prometheus.CounterVec
	loadLatency             *prometheus.HistogramVec
	failedLoadsCounter      *prometheus.CounterVec
	droppedEntriesCounter   *prometheus.CounterVec
	rangeRetriesCounter     prometheus.Counter
	rangeBytesCounter       prometheus.Counter
	recordsProcessedCounter prometheus.Counter
}

// NewMetrics creates the bulk import metrics and registers them with registerer.
func NewMetrics(prefix string, registerer prometheus.Registerer) *Metrics {
	factory := promauto.With(registerer)
	return &Metrics{
		dbErrorsCounter: factory.NewCounterVec(prometheus.CounterOpts{
			Name: prefix + "db_errors",
			Help: "Number of database errors grouped by database operation",
		}, []string{"operation"}),
		rowsLoadedCounter: factory.NewCounterVec(prometheus.CounterOpts{
			Name: prefix + "rows_loaded",
			Help: "Number of rows bulk loaded grouped by table",
		}, []string{"table"}),
		loadLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    prefix + "load_latency_seconds",
			Help:    "Time taken to bulk load a batch grouped by table",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		}, []string{"table"}),
		failedLoadsCounter: factory.NewCounterVec(prometheus.CounterOpts{
			Name: prefix + "failed_loads",
			Help: "Number of batches that could not be loaded and were dropped, grouped by table",
		}, []string{"table"}),
		droppedEntriesCounter: factory.NewCounterVec(prometheus.CounterOpts{
			Name: prefix + "dropped_index_entries",
			Help: "Number of index entries dropped because no index table exists for their type, grouped by stage",
		}, []string{"stage"}),
		rangeRetriesCounter: factory.NewCounter(prometheus.CounterOpts{
			Name: prefix + "range_fetch_retries",
			Help: "Number of blob range fetches that were retried",
		}),
		rangeBytesCounter: factory.NewCounter(prometheus.CounterOpts{
			Name: prefix + "range_fetch_bytes",
			Help: "Number of bytes fetched from the source blob",
		}),
		recordsProcessedCounter: factory.NewCounter(prometheus.CounterOpts{
			Name: prefix + "records_processed",
			Help: "Number of records parsed and assigned a surrogate id",
		}),
	}
}

func (m *Metrics) RecordDBError(operation DBOperation) {
	m.dbErrorsCounter.With(map[string]string{"operation": string(operation)}).Inc()
}

func (m *Metrics) RecordRowsLoaded(table string, rows int, duration time.Duration) {
	m.rowsLoadedCounter.With(map[string]string{"table": table}).Add(float64(rows))
	m.loadLatency.With(map[string]string{"table": table}).Observe(duration.Seconds())
}

func (m *Metrics) RecordFailedLoad(table string) {
	m.failedLoadsCounter.With(map[string]string{"table": table}).Inc()
}

func (m *Metrics) RecordDroppedIndexEntries(stage Stage, count int) {
	m.droppedEntriesCounter.With(map[string]string{"stage": string(stage)}).Add(float64(count))
}

func (m *Metrics) RecordRangeRetries(count int) {
	m.rangeRetriesCounter.Add(float64(count))
}

func (m *Metrics) RecordRangeBytes(count int) {
	m.rangeBytesCounter.Add(float64(count))
}

func (m *Metrics) RecordRecordsProcessed(count int) {
	m.recordsProcessedCounter.Add(float64(count))
}

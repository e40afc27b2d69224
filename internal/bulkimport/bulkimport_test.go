package bulkimport

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/klauspost/pgzip"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/thanos-io/objstore"
	"k8s.io/apimachinery/pkg/api/resource"

	"github.com/fhir-server/bulkimport/internal/bulkimport/configuration"
	"github.com/fhir-server/bulkimport/internal/bulkimport/metrics"
	"github.com/fhir-server/bulkimport/internal/bulkimport/rangereader"
	"github.com/fhir-server/bulkimport/internal/common/runcontext"
)

const ndjson = `{"resourceType":"Patient","id":"p1"}
{"resourceType":"Patient","id":"p2"}
`

func testReaderConfig() rangereader.Config {
	return rangereader.Config{
		ConcurrentRangeCount: 2,
		RangeSize:            *resource.NewQuantity(16, resource.BinarySI),
		PerRangeTimeout:      5 * time.Second,
		RetryCount:           1,
		RetryDelay:           time.Millisecond,
	}
}

func testBucket(t *testing.T, name string, content []byte) objstore.Bucket {
	bucket := objstore.NewInMemBucket()
	require.NoError(t, bucket.Upload(context.Background(), name, bytes.NewReader(content)))
	return bucket
}

func readSource(t *testing.T, bucket objstore.Bucket, config configuration.SourceConfig) (string, error) {
	m := metrics.NewMetrics(metrics.BulkImportMetricsPrefix, prometheus.NewRegistry())
	source, err := openSource(runcontext.Background(), bucket, config, testReaderConfig(), m)
	if err != nil {
		return "", err
	}
	defer func() { assert.NoError(t, source.Close()) }()
	content, err := io.ReadAll(source)
	return string(content), err
}

func TestOpenSource_Uncompressed(t *testing.T) {
	bucket := testBucket(t, "Patient.ndjson", []byte(ndjson))
	content, err := readSource(t, bucket, configuration.SourceConfig{Object: "Patient.ndjson", Compression: configuration.CompressionNone})
	require.NoError(t, err)
	assert.Equal(t, ndjson, content)
}

func TestOpenSource_Gzip(t *testing.T) {
	var buf bytes.Buffer
	w := pgzip.NewWriter(&buf)
	_, err := w.Write([]byte(strings.Repeat(ndjson, 100)))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	bucket := testBucket(t, "Patient.ndjson.gz", buf.Bytes())
	content, err := readSource(t, bucket, configuration.SourceConfig{Object: "Patient.ndjson.gz", Compression: configuration.CompressionGzip})
	require.NoError(t, err)
	assert.Equal(t, strings.Repeat(ndjson, 100), content)
}

func TestOpenSource_NotGzip(t *testing.T) {
	bucket := testBucket(t, "Patient.ndjson", []byte(ndjson))
	_, err := readSource(t, bucket, configuration.SourceConfig{Object: "Patient.ndjson", Compression: configuration.CompressionGzip})
	assert.Error(t, err)
}

func TestOpenSource_UnsupportedCompression(t *testing.T) {
	bucket := testBucket(t, "Patient.ndjson", []byte(ndjson))
	_, err := readSource(t, bucket, configuration.SourceConfig{Object: "Patient.ndjson", Compression: "zstd"})
	assert.Error(t, err)
}

func TestOpenSource_MissingObject(t *testing.T) {
	bucket := objstore.NewInMemBucket()
	_, err := readSource(t, bucket, configuration.SourceConfig{Object: "missing.ndjson", Compression: configuration.CompressionNone})
	assert.Error(t, err)
}

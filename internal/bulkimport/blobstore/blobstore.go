// Package blobstore provides ranged access to the object holding the import data.
package blobstore

import (
	"context"
	"io"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/thanos-io/objstore"
	"github.com/thanos-io/objstore/providers/filesystem"
	"github.com/thanos-io/objstore/providers/s3"

	"github.com/fhir-server/bulkimport/internal/common/importerrors"
	"github.com/fhir-server/bulkimport/internal/common/logging"
)

// RangeSource is a blob that can be read in arbitrary byte ranges. FetchRange may fail transiently and must be safe
// to retry.
type RangeSource interface {
	GetLength(ctx context.Context) (int64, error)
	FetchRange(ctx context.Context, offset, length int64) ([]byte, error)
}

// BucketSource is a RangeSource reading a single object from an object store bucket.
type BucketSource struct {
	bucket objstore.BucketReader
	object string
}

func NewBucketSource(bucket objstore.BucketReader, object string) *BucketSource {
	return &BucketSource{bucket: bucket, object: object}
}

func (s *BucketSource) GetLength(ctx context.Context) (int64, error) {
	attrs, err := s.bucket.Attributes(ctx, s.object)
	if err != nil {
		return 0, errors.Wrapf(err, "reading attributes of %s", s.object)
	}
	return attrs.Size, nil
}

// FetchRange returns exactly length bytes starting at offset. Anything less is reported as an
// importerrors.ErrShortRead.
func (s *BucketSource) FetchRange(ctx context.Context, offset, length int64) ([]byte, error) {
	rc, err := s.bucket.GetRange(ctx, s.object, offset, length)
	if err != nil {
		return nil, errors.Wrapf(err, "fetching %d bytes at offset %d of %s", length, offset, s.object)
	}
	defer func() {
		if err := rc.Close(); err != nil {
			log.WithError(err).Warnf("error closing range reader for %s", s.object)
		}
	}()

	buf := make([]byte, length)
	n, err := io.ReadFull(rc, buf)
	if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
		return nil, errors.WithStack(&importerrors.ErrShortRead{Offset: offset, Expected: length, Actual: int64(n)})
	}
	if err != nil {
		return nil, errors.Wrapf(err, "reading %d bytes at offset %d of %s", length, offset, s.object)
	}
	return buf, nil
}

type Backend string

const (
	BackendFilesystem Backend = "filesystem"
	BackendS3         Backend = "s3"
)

type Config struct {
	Backend    Backend `validate:"required,oneof=filesystem s3"`
	Filesystem FilesystemConfig
	S3         S3Config
}

type FilesystemConfig struct {
	// Directory that object names are resolved against.
	Directory string
}

type S3Config struct {
	Bucket    string
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	Insecure  bool
}

// NewBucket creates a read client for the configured backend.
func NewBucket(config Config) (objstore.Bucket, error) {
	switch config.Backend {
	case BackendFilesystem:
		bucket, err := filesystem.NewBucket(config.Filesystem.Directory)
		if err != nil {
			return nil, errors.WithStack(err)
		}
		return bucket, nil
	case BackendS3:
		s3Config := s3.DefaultConfig
		s3Config.Bucket = config.S3.Bucket
		s3Config.Endpoint = config.S3.Endpoint
		s3Config.Region = config.S3.Region
		s3Config.AccessKey = config.S3.AccessKey
		s3Config.SecretKey = config.S3.SecretKey
		s3Config.Insecure = config.S3.Insecure
		logger := logging.NewGoKitLogger(log.WithField("component", "blobstore"))
		bucket, err := s3.NewBucketWithConfig(logger, s3Config, "bulkimport", nil)
		if err != nil {
			return nil, errors.WithStack(err)
		}
		return bucket, nil
	default:
		return nil, errors.WithStack(&importerrors.ErrInvalidArgument{
			Name:    "backend",
			Value:   string(config.Backend),
			Message: "supported backends are filesystem and s3",
		})
	}
}

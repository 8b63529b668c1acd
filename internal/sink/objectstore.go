package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"path"
	"slices"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/dbtflow/internal/config"
	"github.com/fyrsmithlabs/dbtflow/internal/dbt"
	"github.com/fyrsmithlabs/dbtflow/internal/logging"
)

// NewMinIOClient connects to an S3-compatible endpoint.
func NewMinIOClient(cfg config.S3Config) (*minio.Client, error) {
	opts := &minio.Options{
		Creds:     credentials.NewStaticV4(cfg.AccessKey.Value(), cfg.SecretKey.Value(), ""),
		Secure:    cfg.UseSSL,
		Region:    cfg.Region,
		Transport: newTransport(),
	}
	return minio.New(cfg.Endpoint, opts)
}

// EnsureBucket creates bucket when it does not exist.
func EnsureBucket(ctx context.Context, client *minio.Client, bucket, region string) error {
	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return fmt.Errorf("bucket exists: %w", err)
	}
	if exists {
		return nil
	}
	if err := client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{Region: region}); err != nil {
		return fmt.Errorf("make bucket %s: %w", bucket, err)
	}
	return nil
}

func newTransport() *http.Transport {
	dialer := &net.Dialer{
		Timeout:   5 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	return &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
}

// ObjectStoreSink writes each artifact to "{prefix}/{identifier}/{stem}.json".
type ObjectStoreSink struct {
	client *minio.Client
	bucket string
	prefix string
	logger *logging.Logger
}

// NewObjectStoreSink returns a sink writing into bucket.
func NewObjectStoreSink(client *minio.Client, bucket, prefix string, logger *logging.Logger) *ObjectStoreSink {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &ObjectStoreSink{client: client, bucket: bucket, prefix: prefix, logger: logger.Named("sink.s3")}
}

// ObjectName returns the key an artifact is stored under.
func (s *ObjectStoreSink) ObjectName(identifier, stem string) string {
	return path.Join(s.prefix, identifier, stem+".json")
}

// Store uploads every artifact. It stops at the first failed upload.
func (s *ObjectStoreSink) Store(ctx context.Context, identifier string, artifacts map[string]dbt.Artifact) bool {
	stems := make([]string, 0, len(artifacts))
	for stem := range artifacts {
		stems = append(stems, stem)
	}
	slices.Sort(stems)

	for _, stem := range stems {
		name := s.ObjectName(identifier, stem)
		data, err := json.Marshal(artifacts[stem])
		if err != nil {
			s.logger.Error(ctx, "encoding artifact failed", zap.String("object", name), zap.Error(err))
			return false
		}
		_, err = s.client.PutObject(ctx, s.bucket, name, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
			ContentType: "application/json",
		})
		if err != nil {
			s.logger.Error(ctx, "artifact upload failed",
				zap.String("bucket", s.bucket),
				zap.String("object", name),
				zap.Error(err),
			)
			return false
		}
	}

	s.logger.Debug(ctx, "artifacts uploaded", zap.String("identifier", identifier), zap.Int("artifacts", len(stems)))
	return true
}

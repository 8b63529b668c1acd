package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/dbtflow/internal/dbt"
	"github.com/fyrsmithlabs/dbtflow/internal/logging"
)

// NATSSink writes each artifact to a JetStream object store as
// "{identifier}/{stem}.json" and then announces the stored objects with a
// Notice on "{prefix}.{identifier}". Objects are chunked by the store, so
// artifacts larger than the server's max payload are fine.
type NATSSink struct {
	nc     *nats.Conn
	store  jetstream.ObjectStore
	bucket string
	prefix string
	logger *logging.Logger
}

// NewNATSSink binds to the object store bucket on nc, creating it if needed.
func NewNATSSink(ctx context.Context, nc *nats.Conn, bucket, prefix string, logger *logging.Logger) (*NATSSink, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	js, err := jetstream.New(nc)
	if err != nil {
		return nil, fmt.Errorf("create jetstream context: %w", err)
	}

	initCtx, cancel := context.WithTimeout(ctx, initTimeout)
	defer cancel()
	store, err := js.CreateOrUpdateObjectStore(initCtx, jetstream.ObjectStoreConfig{
		Bucket:      bucket,
		Description: "dbt artifacts captured by dbtflow",
	})
	if err != nil {
		return nil, fmt.Errorf("create object store %s: %w", bucket, err)
	}

	return &NATSSink{
		nc:     nc,
		store:  store,
		bucket: bucket,
		prefix: prefix,
		logger: logger.Named("sink.nats"),
	}, nil
}

// Subject returns the subject the Notice for identifier is published on.
func (s *NATSSink) Subject(identifier string) string {
	return s.prefix + "." + subjectToken(identifier)
}

// ObjectName returns the key an artifact is stored under.
func (s *NATSSink) ObjectName(identifier, stem string) string {
	return identifier + "/" + stem + ".json"
}

// Store writes every artifact, stopping at the first failure, then publishes
// the Notice and waits for the server to acknowledge the flush.
func (s *NATSSink) Store(ctx context.Context, identifier string, artifacts map[string]dbt.Artifact) bool {
	stems := make([]string, 0, len(artifacts))
	for stem := range artifacts {
		stems = append(stems, stem)
	}
	slices.Sort(stems)

	notice := Notice{
		Identifier: identifier,
		Bucket:     s.bucket,
		Objects:    make([]string, 0, len(stems)),
		StoredAt:   time.Now().UTC(),
	}
	size := 0
	for _, stem := range stems {
		name := s.ObjectName(identifier, stem)
		data, err := json.Marshal(artifacts[stem])
		if err != nil {
			s.logger.Error(ctx, "encoding artifact failed", zap.String("object", name), zap.Error(err))
			return false
		}
		if _, err := s.store.PutBytes(ctx, name, data); err != nil {
			s.logger.Error(ctx, "artifact put failed",
				zap.String("bucket", s.bucket),
				zap.String("object", name),
				zap.Error(err),
			)
			return false
		}
		notice.Objects = append(notice.Objects, name)
		size += len(data)
	}

	data, err := json.Marshal(notice)
	if err != nil {
		s.logger.Error(ctx, "encoding notice failed", zap.String("identifier", identifier), zap.Error(err))
		return false
	}
	subject := s.Subject(identifier)
	if err := s.nc.Publish(subject, data); err != nil {
		s.logger.Error(ctx, "publish notice failed", zap.String("subject", subject), zap.Error(err))
		return false
	}
	flushCtx, cancel := context.WithTimeout(ctx, flushTimeout)
	defer cancel()
	if err := s.nc.FlushWithContext(flushCtx); err != nil {
		s.logger.Error(ctx, "flush notice failed", zap.String("subject", subject), zap.Error(err))
		return false
	}

	s.logger.Debug(ctx, "artifacts stored",
		zap.String("bucket", s.bucket),
		zap.String("subject", subject),
		zap.Int("artifacts", len(stems)),
		zap.Int("bytes", size),
	)
	return true
}

const (
	// FlushWithContext requires a deadline.
	flushTimeout = 5 * time.Second
	initTimeout  = 10 * time.Second
)

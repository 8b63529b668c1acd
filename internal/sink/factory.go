package sink

import (
	"context"
	"fmt"

	"github.com/nats-io/nats.go"

	"github.com/fyrsmithlabs/dbtflow/internal/config"
	"github.com/fyrsmithlabs/dbtflow/internal/logging"
	"github.com/fyrsmithlabs/dbtflow/internal/operation"
)

// New builds the sink selected by cfg.Kind. The returned close function
// releases any connection and is never nil.
func New(ctx context.Context, cfg config.SinkConfig, logger *logging.Logger) (operation.Sink, func(), error) {
	switch cfg.Kind {
	case "", config.SinkNone:
		return operation.NopSink{}, func() {}, nil

	case config.SinkNATS:
		nc, err := nats.Connect(cfg.NATS.URL, nats.Name("dbtflow-sink"))
		if err != nil {
			return nil, nil, fmt.Errorf("connect to nats: %w", err)
		}
		s, err := NewNATSSink(ctx, nc, cfg.NATS.Bucket, cfg.NATS.SubjectPrefix, logger)
		if err != nil {
			nc.Close()
			return nil, nil, err
		}
		return s, nc.Close, nil

	case config.SinkS3:
		client, err := NewMinIOClient(cfg.S3)
		if err != nil {
			return nil, nil, fmt.Errorf("create object store client: %w", err)
		}
		if err := EnsureBucket(ctx, client, cfg.S3.Bucket, cfg.S3.Region); err != nil {
			return nil, nil, err
		}
		return NewObjectStoreSink(client, cfg.S3.Bucket, cfg.S3.Prefix, logger), func() {}, nil

	default:
		return nil, nil, fmt.Errorf("%w: sink kind %q", config.ErrInvalidConfig, cfg.Kind)
	}
}

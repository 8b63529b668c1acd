package alert

import (
	"context"
	"fmt"

	"github.com/nats-io/nats.go"

	"github.com/fyrsmithlabs/dbtflow/internal/config"
	"github.com/fyrsmithlabs/dbtflow/internal/logging"
	"github.com/fyrsmithlabs/dbtflow/internal/pipeline"
)

// Notifiers is the pair handed to the alert activities.
type Notifiers struct {
	Success pipeline.Notifier
	Failure pipeline.Notifier

	closers []func()
}

// Close releases connections opened by Build.
func (n *Notifiers) Close() {
	for _, c := range n.closers {
		c()
	}
}

// Build creates the success and failure notifiers listed in cfg. Shared
// connections are opened once.
func Build(ctx context.Context, cfg config.AlertsConfig, logger *logging.Logger) (*Notifiers, error) {
	b := &builder{ctx: ctx, cfg: cfg, logger: logger, out: &Notifiers{}}

	success, err := b.multi(cfg.Success, StatusSuccess)
	if err != nil {
		b.out.Close()
		return nil, err
	}
	failure, err := b.multi(cfg.Failure, StatusFailure)
	if err != nil {
		b.out.Close()
		return nil, err
	}
	b.out.Success, b.out.Failure = success, failure
	return b.out, nil
}

type builder struct {
	ctx    context.Context
	cfg    config.AlertsConfig
	logger *logging.Logger
	out    *Notifiers
	nc     *nats.Conn
}

func (b *builder) multi(kinds []string, status string) (pipeline.Notifier, error) {
	if len(kinds) == 0 || config.Disabled(kinds) {
		return pipeline.NopNotifier{}, nil
	}
	var m Multi
	for _, kind := range kinds {
		n, err := b.one(kind, status)
		if err != nil {
			return nil, err
		}
		m = append(m, n)
	}
	if len(m) == 1 {
		return m[0], nil
	}
	return m, nil
}

func (b *builder) one(kind, status string) (pipeline.Notifier, error) {
	switch kind {
	case config.AlertLog:
		return NewLogNotifier(b.logger, status), nil

	case config.AlertWebhook:
		return NewWebhookNotifier(b.cfg.Webhook, status, b.logger), nil

	case config.AlertNATS:
		if b.nc == nil {
			nc, err := nats.Connect(b.cfg.NATS.URL, nats.Name("dbtflow-alerts"))
			if err != nil {
				return nil, fmt.Errorf("connect to nats: %w", err)
			}
			b.nc = nc
			b.out.closers = append(b.out.closers, nc.Close)
		}
		return NewNATSNotifier(b.nc, b.cfg.NATS.SubjectPrefix, status, b.logger), nil

	case config.AlertGitHub:
		client, err := NewGitHubClient(b.ctx, b.cfg.GitHub.Token)
		if err != nil {
			return nil, err
		}
		return NewGitHubNotifier(client, b.cfg.GitHub, status, nil, b.logger), nil

	default:
		return nil, fmt.Errorf("%w: unknown alert kind %q", config.ErrInvalidConfig, kind)
	}
}

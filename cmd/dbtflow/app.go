package main

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/log/global"
	"go.temporal.io/sdk/client"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/dbtflow/internal/alert"
	"github.com/fyrsmithlabs/dbtflow/internal/config"
	"github.com/fyrsmithlabs/dbtflow/internal/dbt"
	"github.com/fyrsmithlabs/dbtflow/internal/logging"
	"github.com/fyrsmithlabs/dbtflow/internal/operation"
	"github.com/fyrsmithlabs/dbtflow/internal/pipeline"
	"github.com/fyrsmithlabs/dbtflow/internal/sink"
	"github.com/fyrsmithlabs/dbtflow/internal/telemetry"
)

const instrumentationName = "github.com/fyrsmithlabs/dbtflow"

// app holds what every command needs: configuration, logger and telemetry.
type app struct {
	cfg       *config.Config
	logger    *logging.Logger
	telemetry *telemetry.Telemetry
	metrics   *pipeline.Metrics
	closers   []func()
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.LoadWithFile(configPath)
	if err != nil {
		return nil, err
	}

	telCfg := telemetry.NewDefaultConfig()
	if err := cfg.Section("telemetry", telCfg); err != nil {
		return nil, err
	}
	tel, err := telemetry.New(ctx, telCfg)
	if err != nil {
		return nil, fmt.Errorf("initializing telemetry: %w", err)
	}

	logger, err := newLogger(ctx, cfg, tel)
	if err != nil {
		return nil, err
	}
	if err := tel.Degraded(); err != nil {
		logger.Warn(ctx, "telemetry degraded, continuing without export", zap.Error(err))
	}

	return &app{
		cfg:       cfg,
		logger:    logger,
		telemetry: tel,
		metrics:   pipeline.NewMetrics(tel.Meter(instrumentationName)),
	}, nil
}

// shutdowner is the part of *telemetry.Telemetry newLogger releases on failure.
type shutdowner interface {
	Shutdown(ctx context.Context) error
}

// newLogger builds the logger from the logging section. On failure it shuts
// tel down, since no app will exist to do it.
func newLogger(ctx context.Context, cfg *config.Config, tel shutdowner) (*logging.Logger, error) {
	logCfg := logging.NewDefaultConfig()
	if err := cfg.Section("logging", logCfg); err != nil {
		return nil, errors.Join(err, tel.Shutdown(context.WithoutCancel(ctx)))
	}
	logger, err := logging.NewLogger(logCfg, global.GetLoggerProvider())
	if err != nil {
		err = fmt.Errorf("initializing logger: %w", err)
		return nil, errors.Join(err, tel.Shutdown(context.WithoutCancel(ctx)))
	}
	return logger, nil
}

// Close releases everything opened through the app, newest first.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	ctx := context.Background()
	if err := a.telemetry.Shutdown(ctx); err != nil {
		a.logger.Warn(ctx, "telemetry shutdown failed", zap.Error(err))
	}
	_ = a.logger.Sync()
}

func (a *app) definition() (pipeline.Definition, error) {
	return pipeline.DefinitionFromConfig(a.cfg.Pipeline, a.cfg.Alerts)
}

// activities wires dbt, the operation runner and the artifact sink.
func (a *app) activities(ctx context.Context) (*pipeline.Activities, error) {
	store, closeSink, err := sink.New(ctx, a.cfg.Sink, a.logger)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, closeSink)

	tool := dbt.NewExecTool(a.cfg.Dbt.Binary, a.cfg.Dbt.Env)
	runner := operation.NewRunner(
		dbt.NewWrapper(tool, a.logger),
		operation.WithSink(store),
		operation.WithPreventWrites(a.cfg.Pipeline.PreventWrites),
		operation.WithLogger(a.logger),
	)
	return pipeline.NewActivities(runner,
		pipeline.WithActivityLogger(a.logger),
		pipeline.WithMetrics(a.metrics),
		pipeline.WithTracer(a.telemetry.Tracer(instrumentationName)),
	), nil
}

func (a *app) alerts(ctx context.Context) (*pipeline.AlertActivities, error) {
	n, err := alert.Build(ctx, a.cfg.Alerts, a.logger)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, n.Close)
	return pipeline.NewAlertActivities(n.Success, n.Failure, a.logger, a.metrics), nil
}

func (a *app) dial(ctx context.Context) (client.Client, error) {
	c, err := client.Dial(client.Options{
		HostPort:  a.cfg.Temporal.HostPort,
		Namespace: a.cfg.Temporal.Namespace,
		Logger:    logging.NewTemporalAdapter(a.logger),
	})
	if err != nil {
		return nil, fmt.Errorf("unable to create Temporal client: %w", err)
	}
	a.closers = append(a.closers, c.Close)
	a.logger.Info(ctx, "temporal client connected",
		zap.String("host", a.cfg.Temporal.HostPort),
		zap.String("namespace", a.cfg.Temporal.Namespace),
	)
	return c, nil
}

// reportFailure turns a failed run into the error returned to cobra.
func reportFailure(err error) error {
	if pipeline.IsCanceled(err) {
		return errors.New("run canceled")
	}
	if step, ok := pipeline.FailedStep(err); ok {
		return fmt.Errorf("run failed at step %s: %w", step, err)
	}
	return err
}

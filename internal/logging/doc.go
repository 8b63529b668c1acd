// Package logging provides structured logging for dbtflow.
//
// Logger wraps Zap with context-aware methods that attach run correlation
// fields (workflow id, run id, environment, project, step) and OpenTelemetry
// trace ids to every entry. Output goes to stdout, an OTEL log bridge, or both.
//
// Create a logger from config:
//
//	cfg := logging.NewDefaultConfig()
//	logger, err := logging.NewLogger(cfg, nil)
//	if err != nil {
//	    return err
//	}
//	defer func() { _ = logger.Sync() }()
//
// Log with run context:
//
//	ctx = logging.WithRun(ctx, logging.RunFields{WorkflowID: id, Environment: "dev", Project: "jaffle"})
//	ctx = logging.WithStep(ctx, "debug")
//	logger.Info(ctx, "step finished", zap.Duration("duration", d))
//
// Temporal SDK logs are routed through the same core with NewTemporalAdapter.
package logging

// Package telemetry provides OpenTelemetry tracing and metrics for dbtflow.
//
// Providers export over OTLP (gRPC by default, HTTP/protobuf when configured)
// to a collector. When telemetry is disabled, Tracer and Meter fall back to the
// global no-op providers so instrumented code needs no branching.
//
//	tel, err := telemetry.New(ctx, cfg)
//	if err != nil {
//	    return err
//	}
//	defer func() { _ = tel.Shutdown(context.Background()) }()
//
//	activities := pipeline.NewActivities(runner, pipeline.WithMeter(tel.Meter("dbtflow.pipeline")))
package telemetry

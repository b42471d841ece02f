// Package telemetry provides observability instrumentation for RelayGrid.
//
// The package integrates structured logging (zerolog), distributed tracing
// (OpenTelemetry) and metrics (Prometheus) into a unified system for
// monitoring registry and cluster operations.
//
// # Usage
//
// Initialize telemetry at node startup:
//
//	cfg := telemetry.DefaultConfig()
//	tel, err := telemetry.NewTelemetry(cfg)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer tel.Shutdown(ctx)
//
//	ctx = tel.WithContext(ctx)
//
// Downstream code retrieves components from the context:
//
//	logger := telemetry.FromContext(ctx)
//	logger.WithEntry("shell.exec").Info("handler registered")
//
// Metric record methods are nil-safe, so components can hold an optional
// *Metrics and call it unconditionally.
package telemetry

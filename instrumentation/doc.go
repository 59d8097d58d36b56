// Package instrumentation provides OpenTelemetry observability for the
// authorization server.
//
// It exposes a single Instrumentation type that owns the meter and tracer
// providers, a Metrics holder with pre-registered instruments for the HTTP
// layer, the grant engine, and security events, and nil-safe span helpers.
// When disabled, no-op providers are used and recording costs nothing.
//
// Example usage:
//
//	inst, err := instrumentation.New(instrumentation.Config{
//	    ServiceName:    "oauth2-server",
//	    ServiceVersion: "1.0.0",
//	    Enabled:        true,
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer inst.Shutdown(context.Background())
//
//	inst.Metrics().RecordTokenIssued(ctx, "client_credentials", clientID)
//
// Sensitive values (tokens, codes, secrets) must never appear in metric
// attributes or span attributes; record identifiers and metadata only.
package instrumentation

// Package health provides HTTP handlers for health probes.
//
// [LivenessHandler] is a simple always-OK endpoint for process liveness.
// [ReadinessHandler] executes a set of named [Checks] and reports service
// readiness. Checks are plain func(context.Context) error closures, run in
// parallel under a shared timeout.
//
// Register the endpoints on any router:
//
//	r.Get("/healthz", health.LivenessHandler())
//	r.Get("/readyz", health.ReadinessHandler(health.Checks{
//	    "sync-profile": profileCheck,
//	}, health.WithLogger(log)))
//
// Handlers respond with plain text for probe compatibility; JSON with
// per-check detail is returned when requested via the Accept header or
// ?format=json.
package health

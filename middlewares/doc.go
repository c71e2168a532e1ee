// Package middlewares provides the app's HTTP middleware: request IDs,
// panic recovery, request logging, and security headers. All middleware is
// standard func(http.Handler) http.Handler and composes with chi.
package middlewares

// Package middleware holds the HTTP middleware chain for the tweak server:
// request ids, structured request logging, rate limiting, CORS, security
// headers, OpenTelemetry instrumentation and request body validation.
package middleware

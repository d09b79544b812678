// Package middleware provides the HTTP middleware used by the serve command.
//
// It includes:
//   - Request logging in W3C Extended Log Format through package logging
//   - Prometheus request metrics labelled by mux route template
//   - gzip compression of JSON responses
package middleware

// Package middleware provides the HTTP middleware chain: W3C extended format
// access logging with optional filtering of static assets and health checks,
// and Prometheus request metrics keyed by route template.
package middleware

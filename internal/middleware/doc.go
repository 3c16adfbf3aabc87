// Package middleware provides HTTP middleware for the indexer API: request
// logging in W3C Extended Log Format, Prometheus request metrics keyed by
// route template, and gzip compression of JSON responses.
package middleware

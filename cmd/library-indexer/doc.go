// Package main is the library-indexer command.
//
// The serve subcommand loads the libraries file, opens one SQLite index per
// library on demand through a bounded connection pool, starts a filesystem
// watcher per library and exposes scans, search and maintenance over HTTP.
// Shutdown on SIGINT or SIGTERM drains the HTTP server, stops watchers,
// fails any running scan and closes every library database.
//
// The scan, search and libraries subcommands run a single operation against
// the same components and print JSON, which makes them usable from scripts
// and cron jobs without a running server.
//
// Configuration comes from environment variables (see internal/startup);
// --libraries and --log-level override the matching variables.
package main

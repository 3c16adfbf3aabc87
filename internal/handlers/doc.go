// Package handlers serves the HTTP API of the indexer: scan and sync
// triggers, session status, search and batch insert, image rows, folder
// listings and cached thumbnails, watcher control, cleanup, health and
// metrics. Components are reached through small interfaces so each
// endpoint can be tested against fakes.
package handlers

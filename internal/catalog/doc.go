// Package catalog is the query side of the indexer. It runs searches and
// batch inserts against library databases borrowed from the pool, caches
// search pages in an LRU and drops a library's pages whenever its index
// changes.
package catalog

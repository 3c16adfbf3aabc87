// Package library describes the indexed collections and the registry that
// resolves library ids.
//
// A Library is a root directory plus a hidden metadata directory inside it:
//
//	<root>/.library-indexer/library.db      metadata database
//	<root>/.library-indexer/library.lock    lock held while the database is open
//	<root>/.library-indexer/thumbnails/xx/  sharded thumbnail artifacts
//
// The Registry is built once at startup, usually from a YAML file, and passed
// to every component that needs to resolve a library id.
package library

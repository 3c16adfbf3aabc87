//go:build !purego

package database

import (
	"fmt"
	"net/url"

	_ "github.com/mattn/go-sqlite3" // SQLite3 driver
)

// DriverName is the database/sql driver used for library databases.
const DriverName = "sqlite3"

func buildDSN(path string, o Options) string {
	v := url.Values{}
	v.Set("_journal_mode", o.JournalMode)
	v.Set("_synchronous", o.Synchronous)
	v.Set("_busy_timeout", fmt.Sprintf("%d", o.BusyTimeout.Milliseconds()))
	v.Set("_cache_size", fmt.Sprintf("%d", o.CacheSize))
	v.Set("_txlock", "immediate")
	return path + "?" + v.Encode()
}

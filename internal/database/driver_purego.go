//go:build purego

package database

import (
	"fmt"
	"net/url"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// DriverName is the database/sql driver used for library databases.
const DriverName = "sqlite"

func buildDSN(path string, o Options) string {
	v := url.Values{}
	v.Add("_pragma", fmt.Sprintf("journal_mode(%s)", o.JournalMode))
	v.Add("_pragma", fmt.Sprintf("synchronous(%s)", o.Synchronous))
	v.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", o.BusyTimeout.Milliseconds()))
	v.Add("_pragma", fmt.Sprintf("cache_size(%d)", o.CacheSize))
	v.Set("_txlock", "immediate")
	return "file:" + path + "?" + v.Encode()
}

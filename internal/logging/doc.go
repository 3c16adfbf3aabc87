// Package logging is the process-wide logger. Components call the
// printf-style Debug, Info, Warn and Error functions; WithLibrary tags
// entries with a library id for scans and watchers.
//
// LOG_LEVEL (debug, info, warn, error) sets the threshold and DEBUG=true
// forces debug. Entries are written by logrus with full timestamps to
// stderr unless SetOutput redirects them.
package logging

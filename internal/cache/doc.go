// Package cache provides a bounded, thread-safe LRU cache built on
// hashicorp/golang-lru. Caches are named so that hit/miss metrics can be
// labelled and so that the cleanup manager can clear them by name.
package cache

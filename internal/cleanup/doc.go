// Package cleanup reclaims memory on a schedule and under pressure.
//
// A routine cycle clears every registered cache and then returns freed heap
// to the operating system. An emergency cycle additionally force-closes all
// pooled library databases before clearing caches, and reclaims more
// aggressively. Emergency cycles interrupt in-flight work and are only run
// when the memory monitor reports a breached watermark or an operator asks
// for one explicitly.
package cleanup

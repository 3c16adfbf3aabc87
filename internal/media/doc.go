// Package media produces the thumbnail artifacts of the library cache.
//
// A Generator decodes a source image, downscales it to a fixed height while
// keeping the aspect ratio, encodes it in a single output format and writes
// it to the location given by package cachekey:
//
//	<thumbnails>/<shard>/<fingerprint>.<format>
//
// Two backends exist. When libvips has been started with InitVips the
// generator uses govips, which shrinks at decode time and can emit WebP with
// a configurable reduction effort. Otherwise it falls back to the pure-Go
// imaging backend and writes JPEG. libvips runs with a concurrency of one and
// a small operation cache, and every Generator additionally caps the number
// of simultaneous decodes, since decoding is the largest memory consumer of
// a scan.
//
// Failures are typed: an unreadable source surfaces the underlying
// *fs.PathError, while a source that cannot be decoded yields a *DecodeError.
// The scanner records the image without an artifact in the second case.
package media

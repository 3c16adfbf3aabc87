// Package cachekey derives thumbnail cache locations from library-relative
// paths.
//
// A key is identity-addressed: the fingerprint is the hex MD5 digest of the
// normalized relative path, not of the file contents. Artifacts live at
//
//	<thumbnail-root>/<shard>/<fingerprint>.<format>
//
// where shard is the first two characters of the fingerprint, so the shard
// of any artifact can be recovered from its filename alone.
//
// Because the key ignores content, an edit in place keeps the same key. The
// caller decides whether an existing artifact is still usable by comparing
// the modification time recorded at generation with the current one, see
// IsValid.
package cachekey

package cachekey

import (
	"crypto/md5" //nolint:gosec // MD5 used for cache key generation, not security
	"encoding/hex"
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"strings"
	"time"
)

// ShardLength is the number of fingerprint characters used as the shard
// directory name.
const ShardLength = 2

// FingerprintLength is the length of a hex encoded fingerprint.
const FingerprintLength = md5.Size * 2

// ErrInvalidFilename is returned when an artifact filename cannot be parsed.
var ErrInvalidFilename = errors.New("invalid cache artifact filename")

// Key locates a cache artifact.
type Key struct {
	Fingerprint string
	Format      string
}

// Normalize converts a library-relative path to the canonical form used for
// hashing: forward slashes, cleaned, no leading "./" or "/".
func Normalize(rel string) string {
	rel = strings.ReplaceAll(rel, "\\", "/")
	rel = path.Clean("/" + rel)
	return strings.TrimPrefix(rel, "/")
}

// Fingerprint returns the hex MD5 digest of the normalized path.
func Fingerprint(rel string) string {
	sum := md5.Sum([]byte(Normalize(rel))) //nolint:gosec // MD5 used for cache key generation, not security
	return hex.EncodeToString(sum[:])
}

// Shard returns the shard directory for a relative path.
func Shard(rel string) string {
	return Fingerprint(rel)[:ShardLength]
}

// For builds the key of the artifact for rel in the given format.
func For(rel, format string) Key {
	return Key{
		Fingerprint: Fingerprint(rel),
		Format:      strings.TrimPrefix(strings.ToLower(format), "."),
	}
}

// Shard returns the shard directory name of the key.
func (k Key) Shard() string {
	return k.Fingerprint[:ShardLength]
}

// Filename returns "<fingerprint>.<format>".
func (k Key) Filename() string {
	return k.Fingerprint + "." + k.Format
}

// RelPath returns the artifact path relative to the thumbnail root, always
// with forward slashes.
func (k Key) RelPath() string {
	return k.Shard() + "/" + k.Filename()
}

// AbsPath joins the artifact path onto the thumbnail root.
func (k Key) AbsPath(root string) string {
	return filepath.Join(root, k.Shard(), k.Filename())
}

// ParseFilename splits an artifact filename into fingerprint and format.
func ParseFilename(name string) (Key, error) {
	name = path.Base(strings.ReplaceAll(name, "\\", "/"))
	ext := path.Ext(name)
	fp := strings.TrimSuffix(name, ext)
	if len(fp) != FingerprintLength || ext == "" {
		return Key{}, fmt.Errorf("%w: %q", ErrInvalidFilename, name)
	}
	if _, err := hex.DecodeString(fp); err != nil {
		return Key{}, fmt.Errorf("%w: %q", ErrInvalidFilename, name)
	}
	return Key{Fingerprint: strings.ToLower(fp), Format: strings.TrimPrefix(ext, ".")}, nil
}

// ShardOf recomputes the shard from an artifact filename by stripping the
// extension and taking the first ShardLength characters.
func ShardOf(filename string) (string, error) {
	k, err := ParseFilename(filename)
	if err != nil {
		return "", err
	}
	return k.Shard(), nil
}

// IsValid reports whether an artifact generated when the source had
// modification time cacheTime is still usable for a source whose current
// modification time is currentTime. Equal timestamps are valid.
func IsValid(cacheTime, currentTime time.Time) bool {
	return !cacheTime.Before(currentTime)
}

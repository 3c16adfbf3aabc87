package media

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"library-indexer/internal/cachekey"
	"library-indexer/internal/metrics"
)

// FindOrphans lists artifacts under root that are not in known. Keys of
// known and the returned paths are relative to root with forward slashes.
// Files that do not look like artifacts are left alone.
func FindOrphans(root string, known map[string]bool) ([]string, error) {
	var orphans []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), ".") {
			return nil
		}
		if _, perr := cachekey.ParseFilename(d.Name()); perr != nil {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if !known[rel] {
			orphans = append(orphans, rel)
		}
		return nil
	})
	return orphans, err
}

// RemoveArtifacts deletes the given artifacts (relative to root) and returns
// how many were removed. Missing files are skipped.
func RemoveArtifacts(root string, rels []string) (int, error) {
	var errs []error
	removed := 0
	for _, rel := range rels {
		err := os.Remove(filepath.Join(root, filepath.FromSlash(rel)))
		switch {
		case err == nil:
			removed++
		case os.IsNotExist(err):
		default:
			errs = append(errs, err)
		}
	}
	metrics.ThumbnailOrphansRemoved.Add(float64(removed))
	return removed, errors.Join(errs...)
}

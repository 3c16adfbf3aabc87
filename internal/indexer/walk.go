package indexer

import (
	"context"
	"io/fs"
	"path"
	"path/filepath"

	"library-indexer/internal/library"
	"library-indexer/internal/mediatypes"
)

// candidate is an image file found by a walk.
type candidate struct {
	rel string
	abs string
}

// walkResult is everything a walk of a library found.
type walkResult struct {
	files    []candidate
	folders  []string
	failures []Failure
}

// walk enumerates the images and folders of lib. Unreadable subdirectories
// are recorded as failures and skipped; an unreadable root is an error.
func (s *Scanner) walk(ctx context.Context, lib library.Library) (*walkResult, error) {
	res := &walkResult{}

	err := filepath.WalkDir(lib.Path, func(p string, d fs.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		if err != nil {
			if p == lib.Path {
				return &IOError{Path: ".", Err: err}
			}
			rel, _ := relPath(lib.Path, p)
			res.failures = append(res.failures, Failure{Path: rel, Kind: FailureIO, Error: err.Error()})
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		rel, err := relPath(lib.Path, p)
		if err != nil {
			return err
		}

		if d.IsDir() {
			if s.matcher.Ignored(rel, true) {
				return filepath.SkipDir
			}
			res.folders = append(res.folders, rel)
			return nil
		}

		if !d.Type().IsRegular() || !mediatypes.IsImage(d.Name()) || s.matcher.Ignored(rel, false) {
			return nil
		}
		res.files = append(res.files, candidate{rel: rel, abs: p})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// relPath returns p relative to root with forward slashes. The root maps
// to "".
func relPath(root, p string) (string, error) {
	rel, err := filepath.Rel(root, p)
	if err != nil {
		return "", err
	}
	if rel == "." {
		return "", nil
	}
	return filepath.ToSlash(rel), nil
}

// folderOf returns the folder of a relative file path, "" for the root.
func folderOf(rel string) string {
	dir := path.Dir(rel)
	if dir == "." || dir == "/" {
		return ""
	}
	return dir
}

// ancestors returns folder and every folder above it, ending with the root.
func ancestors(folder string) []string {
	out := []string{}
	for folder != "" {
		out = append(out, folder)
		folder = folderOf(folder)
	}
	return append(out, "")
}

package indexer

import (
	"context"
	"crypto/md5" //nolint:gosec // MD5 is a change signature, not a security measure
	"errors"
	"fmt"
	"io/fs"
	"path"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"library-indexer/internal/database"
	"library-indexer/internal/filesystem"
	"library-indexer/internal/logging"
	"library-indexer/internal/media"
	"library-indexer/internal/mediatypes"
)

// previousFunc returns the stored state of a path, if any.
type previousFunc func(ctx context.Context, rel string) (database.FileState, bool, error)

// batchRun processes candidates in batches with bounded concurrency and
// commits each batch atomically.
type batchRun struct {
	scanner   *Scanner
	db        *database.Database
	gen       *media.Generator
	previous  previousFunc
	tracker   *tracker
	indexedAt time.Time

	generated int
	reused    int
	indexed   int
	// missing collects candidates that vanished before they were read.
	missing []string
}

func (r *batchRun) run(ctx context.Context, files []candidate) error {
	size := r.scanner.cfg.BatchSize
	for start := 0; start < len(files); start += size {
		end := start + size
		if end > len(files) {
			end = len(files)
		}
		if bp := r.scanner.cfg.Backpressure; bp != nil && !bp.WaitIfPaused(ctx) {
			if err := ctx.Err(); err != nil {
				return err
			}
			return ErrInterrupted
		}
		if err := r.runBatch(ctx, files[start:end]); err != nil {
			return err
		}
	}
	r.tracker.report(true)
	return nil
}

type fileOutcome struct {
	image     *database.Image
	generated bool
	reused    bool
	missing   bool
}

func (r *batchRun) runBatch(ctx context.Context, batch []candidate) error {
	outcomes := make([]fileOutcome, len(batch))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.scanner.cfg.Concurrency)
	for i, c := range batch {
		g.Go(func() error {
			out, err := r.processFile(gctx, c)
			if err != nil {
				return err
			}
			outcomes[i] = out
			r.tracker.done()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	images := make([]database.Image, 0, len(batch))
	for i, out := range outcomes {
		if out.missing {
			r.missing = append(r.missing, batch[i].rel)
		}
		if out.image == nil {
			continue
		}
		images = append(images, *out.image)
		if out.generated {
			r.generated++
		}
		if out.reused {
			r.reused++
		}
	}

	if err := r.db.UpsertBatch(ctx, images); err != nil {
		return err
	}
	r.indexed += len(images)
	logging.Debug("Committed batch of %d images", len(images))
	return nil
}

// processFile stats and thumbnails one file. Per-file failures are recorded
// on the tracker and reported through the outcome; only errors that must
// abort the run are returned.
func (r *batchRun) processFile(ctx context.Context, c candidate) (fileOutcome, error) {
	info, err := filesystem.StatWithRetry(c.abs, r.scanner.retry)
	if err != nil {
		r.tracker.fail(Failure{Path: c.rel, Kind: FailureIO, Error: (&IOError{Path: c.rel, Err: err}).Error()})
		return fileOutcome{missing: errors.Is(err, fs.ErrNotExist)}, nil
	}

	prev, hasPrev, err := r.previous(ctx, c.rel)
	if err != nil {
		return fileOutcome{}, err
	}

	img := buildImage(c.rel, info.Size(), info.ModTime(), r.indexedAt)

	req := media.Request{SourcePath: c.abs, RelPath: c.rel, ModTime: info.ModTime()}
	if hasPrev && prev.ThumbnailPath != "" {
		req.PreviousModTime = prev.ModifiedAt
	}

	res, err := r.gen.Generate(ctx, req)
	switch {
	case err == nil:
	case ctx.Err() != nil:
		return fileOutcome{}, ctx.Err()
	case media.IsDecodeError(err):
		r.tracker.fail(Failure{Path: c.rel, Kind: FailureDecode, Error: err.Error()})
		r.fillDimensions(&img, c.abs)
		return fileOutcome{image: &img}, nil
	case media.IsWriteError(err):
		// The source is fine; it stays indexed without an artifact.
		r.tracker.fail(Failure{Path: c.rel, Kind: FailureIO, Error: err.Error()})
		r.fillDimensions(&img, c.abs)
		return fileOutcome{image: &img}, nil
	default:
		r.tracker.fail(Failure{Path: c.rel, Kind: FailureIO, Error: (&IOError{Path: c.rel, Err: err}).Error()})
		return fileOutcome{missing: errors.Is(err, fs.ErrNotExist)}, nil
	}

	thumb := res.RelPath
	img.ThumbnailPath = &thumb
	img.ThumbnailSize = res.Size

	switch {
	case res.Skipped && hasPrev && prev.Width > 0:
		img.Width, img.Height = prev.Width, prev.Height
	case res.Width > 0:
		img.Width, img.Height = res.Width, res.Height
	default:
		r.fillDimensions(&img, c.abs)
	}

	return fileOutcome{image: &img, generated: !res.Skipped, reused: res.Skipped}, nil
}

func (r *batchRun) fillDimensions(img *database.Image, abs string) {
	if dims, err := media.GetImageDimensions(abs); err == nil {
		img.Width, img.Height = dims.Width, dims.Height
	}
}

// buildImage fills the row fields derived from the path and stat data.
// File creation time is not portable; the modification time stands in.
func buildImage(rel string, size int64, modTime, indexedAt time.Time) database.Image {
	ext := strings.ToLower(path.Ext(rel))
	return database.Image{
		Path:        rel,
		Filename:    path.Base(rel),
		Folder:      folderOf(rel),
		Size:        size,
		Format:      strings.TrimPrefix(ext, "."),
		FileType:    mediatypes.GetFileType(ext),
		CreatedAt:   modTime,
		ModifiedAt:  modTime,
		Fingerprint: fmt.Sprintf("%x", md5.Sum([]byte(fmt.Sprintf("%s%d%d", rel, size, modTime.UnixNano())))), //nolint:gosec
		IndexedAt:   indexedAt,
	}
}

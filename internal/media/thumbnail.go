package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/semaphore"

	"library-indexer/internal/cachekey"
	"library-indexer/internal/filesystem"
	"library-indexer/internal/logging"
	"library-indexer/internal/metrics"
)

const (
	backendVips    = "vips"
	backendImaging = "imaging"
)

// Options configures a Generator.
type Options struct {
	// Root is the thumbnails directory of the library.
	Root string
	// Height is the target height in pixels. Images that are already smaller
	// are re-encoded but never upscaled.
	Height int
	// Quality is the lossy encoder quality, 1-100.
	Quality int
	// Effort is the WebP reduction effort, 0-6. Ignored by other formats.
	Effort int
	// Format is the artifact format: "webp", "jpg" or "png".
	Format string
	// MaxConcurrentDecodes caps simultaneous decodes within this generator.
	MaxConcurrentDecodes int64
}

// DefaultOptions returns the settings used when nothing is configured.
func DefaultOptions(root string) Options {
	return Options{
		Root:                 root,
		Height:               300,
		Quality:              80,
		Effort:               4,
		Format:               "webp",
		MaxConcurrentDecodes: 1,
	}
}

// Request describes one source image to render.
type Request struct {
	SourcePath string
	RelPath    string
	ModTime    time.Time
	// PreviousModTime is the source modification time recorded when the
	// current artifact was generated. Zero means there is no usable artifact.
	PreviousModTime time.Time
}

// Result describes the artifact for a request.
type Result struct {
	// RelPath is relative to the thumbnails directory, with forward slashes.
	RelPath string
	Size    int64
	Skipped bool
	// Width and Height of the source, when it was decoded.
	Width  int
	Height int
}

// DecodeError reports a source that exists but cannot be decoded.
type DecodeError struct {
	Path     string
	Detected string
	Err      error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s (detected %s): %v", e.Path, e.Detected, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// IsDecodeError reports whether err is, or wraps, a *DecodeError.
func IsDecodeError(err error) bool {
	var de *DecodeError
	return errors.As(err, &de)
}

// WriteError reports an artifact that was rendered but could not be stored.
type WriteError struct {
	Artifact string
	Err      error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("write thumbnail %s: %v", e.Artifact, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

// IsWriteError reports whether err is, or wraps, a *WriteError.
func IsWriteError(err error) bool {
	var we *WriteError
	return errors.As(err, &we)
}

// Generator writes thumbnail artifacts for one library.
type Generator struct {
	opts      Options
	backend   string
	decodeSem *semaphore.Weighted
	retry     filesystem.RetryConfig
}

// NewGenerator creates the thumbnails directory and picks a backend. WebP
// output needs libvips; without it the generator falls back to JPEG.
func NewGenerator(opts Options) (*Generator, error) {
	def := DefaultOptions(opts.Root)
	if opts.Height <= 0 {
		opts.Height = def.Height
	}
	if opts.Quality <= 0 || opts.Quality > 100 {
		opts.Quality = def.Quality
	}
	if opts.Effort < 0 || opts.Effort > 6 {
		opts.Effort = def.Effort
	}
	if opts.MaxConcurrentDecodes <= 0 {
		opts.MaxConcurrentDecodes = def.MaxConcurrentDecodes
	}
	opts.Format = strings.TrimPrefix(strings.ToLower(opts.Format), ".")
	switch opts.Format {
	case "":
		opts.Format = def.Format
	case "jpeg":
		opts.Format = "jpg"
	case "webp", "jpg", "png":
	default:
		return nil, fmt.Errorf("unsupported thumbnail format %q", opts.Format)
	}

	backend := backendImaging
	if IsVipsAvailable() {
		backend = backendVips
	} else if opts.Format == "webp" {
		logging.Warn("libvips not available, writing jpg thumbnails instead of webp")
		opts.Format = "jpg"
	}

	if err := os.MkdirAll(opts.Root, 0o755); err != nil {
		return nil, fmt.Errorf("create thumbnail dir: %w", err)
	}

	return &Generator{
		opts:      opts,
		backend:   backend,
		decodeSem: semaphore.NewWeighted(opts.MaxConcurrentDecodes),
		retry:     filesystem.DefaultRetryConfig(),
	}, nil
}

// Format returns the artifact format actually written.
func (g *Generator) Format() string { return g.opts.Format }

// Root returns the thumbnails directory.
func (g *Generator) Root() string { return g.opts.Root }

// Key returns the cache key of the artifact for a library-relative path.
func (g *Generator) Key(relPath string) cachekey.Key {
	return cachekey.For(relPath, g.opts.Format)
}

// Path converts an artifact path relative to the thumbnails directory into
// an absolute path.
func (g *Generator) Path(artifactRel string) string {
	return filepath.Join(g.opts.Root, filepath.FromSlash(artifactRel))
}

// Generate renders the artifact for req unless a usable one already exists.
func (g *Generator) Generate(ctx context.Context, req Request) (Result, error) {
	key := g.Key(req.RelPath)
	dst := key.AbsPath(g.opts.Root)

	if !req.PreviousModTime.IsZero() && cachekey.IsValid(req.PreviousModTime, req.ModTime) {
		if info, err := os.Stat(dst); err == nil {
			metrics.ThumbnailGenerationsTotal.WithLabelValues(g.backend, "skipped").Inc()
			return Result{RelPath: key.RelPath(), Size: info.Size(), Skipped: true}, nil
		}
	}

	// Waiters hold no file handles.
	if err := g.decodeSem.Acquire(ctx, 1); err != nil {
		return Result{}, err
	}
	defer g.decodeSem.Release(1)

	src, err := filesystem.OpenWithRetry(req.SourcePath, g.retry)
	if err != nil {
		metrics.ThumbnailGenerationsTotal.WithLabelValues(g.backend, "io_error").Inc()
		return Result{}, err
	}
	defer src.Close()

	start := time.Now()
	data, w, h, err := g.render(src)
	if err != nil {
		metrics.ThumbnailGenerationsTotal.WithLabelValues(g.backend, "decode_error").Inc()
		detected, _ := detectFileType(req.SourcePath)
		return Result{Width: w, Height: h}, &DecodeError{Path: req.RelPath, Detected: detected, Err: err}
	}

	if err := writeArtifact(dst, data); err != nil {
		metrics.ThumbnailGenerationsTotal.WithLabelValues(g.backend, "write_error").Inc()
		return Result{}, &WriteError{Artifact: key.RelPath(), Err: err}
	}

	metrics.ThumbnailGenerationsTotal.WithLabelValues(g.backend, "success").Inc()
	metrics.ThumbnailGenerationDuration.WithLabelValues(g.backend).Observe(time.Since(start).Seconds())
	metrics.ThumbnailBytesWritten.Add(float64(len(data)))
	logging.Debug("Thumbnail generated: %s -> %s (%d bytes)", req.RelPath, key.RelPath(), len(data))

	return Result{
		RelPath: key.RelPath(),
		Size:    int64(len(data)),
		Width:   w,
		Height:  h,
	}, nil
}

func (g *Generator) render(r io.Reader) ([]byte, int, int, error) {
	if g.backend == backendVips {
		return vipsThumbnail(r, g.opts.Height, g.opts.Format, g.opts.Quality, g.opts.Effort)
	}
	return imagingThumbnail(r, g.opts.Height, g.opts.Format, g.opts.Quality)
}

// writeArtifact writes data through a temp file in the shard directory so a
// reader never sees a partial artifact.
func writeArtifact(dst string, data []byte) error {
	dir := filepath.Dir(dst)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if err := tmp.Chmod(0o644); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, dst); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}

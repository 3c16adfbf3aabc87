package streaming

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"library-indexer/internal/filesystem"
	"library-indexer/internal/logging"
)

// ServeArtifact writes the file at path as the response body. Open errors
// are returned before anything is written, so callers can still reply with
// an error status; errors.Is(err, fs.ErrNotExist) identifies missing files.
func ServeArtifact(ctx context.Context, w http.ResponseWriter, path, contentType string, cfg Config) error {
	f, err := filesystem.OpenWithRetry(path, filesystem.DefaultRetryConfig())
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}

	h := w.Header()
	h.Set("Content-Type", contentType)
	h.Set("Content-Length", strconv.FormatInt(info.Size(), 10))
	h.Set("Cache-Control", fmt.Sprintf("private, max-age=%d", int(cfg.MaxAge.Seconds())))
	h.Set("Last-Modified", info.ModTime().UTC().Format(http.TimeFormat))
	h.Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(http.StatusOK)

	sw := NewWriter(ctx, w, cfg)
	defer sw.Close()

	_, err = io.Copy(sw, f)
	written, elapsed := sw.Stats()
	logging.Debug("Served %s: %d bytes in %v", path, written, elapsed)
	return err
}

package handlers

import (
	"errors"
	"io/fs"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gorilla/mux"

	"library-indexer/internal/database"
	"library-indexer/internal/logging"
	"library-indexer/internal/streaming"
)

var artifactTypes = map[string]string{
	".webp": "image/webp",
	".jpg":  "image/jpeg",
	".png":  "image/png",
}

// GetImage returns the index row of one image.
func (h *Handlers) GetImage(w http.ResponseWriter, r *http.Request) {
	lib, ok := h.resolve(w, r)
	if !ok {
		return
	}
	img, err := h.Catalog.GetImage(r.Context(), lib.ID, mux.Vars(r)["path"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, img)
}

// ListFolders returns the folder rows of a library with their image counts.
func (h *Handlers) ListFolders(w http.ResponseWriter, r *http.Request) {
	lib, ok := h.resolve(w, r)
	if !ok {
		return
	}
	folders, err := h.Catalog.Folders(r.Context(), lib.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	if folders == nil {
		folders = []database.Folder{}
	}
	writeJSON(w, http.StatusOK, folders)
}

// GetThumbnail streams the cached thumbnail of an image. Images indexed
// without an artifact reply 404.
func (h *Handlers) GetThumbnail(w http.ResponseWriter, r *http.Request) {
	lib, ok := h.resolve(w, r)
	if !ok {
		return
	}
	img, err := h.Catalog.GetImage(r.Context(), lib.ID, mux.Vars(r)["path"])
	if err != nil {
		writeError(w, err)
		return
	}
	if img.ThumbnailPath == nil || *img.ThumbnailPath == "" {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "no thumbnail for " + img.Path})
		return
	}

	rel := filepath.FromSlash(*img.ThumbnailPath)
	contentType, known := artifactTypes[strings.ToLower(filepath.Ext(rel))]
	if !known {
		contentType = "application/octet-stream"
	}
	path := filepath.Join(lib.ThumbnailDir(), rel)

	err = streaming.ServeArtifact(r.Context(), w, path, contentType, h.streaming)
	switch {
	case err == nil, errors.Is(err, streaming.ErrClientGone):
	case errors.Is(err, fs.ErrNotExist):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "thumbnail missing for " + img.Path})
	default:
		logging.Warn("Thumbnail delivery for %s/%s failed: %v", lib.ID, img.Path, err)
	}
}

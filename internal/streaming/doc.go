// Package streaming delivers cached thumbnail artifacts to HTTP clients.
//
// Writer wraps an http.ResponseWriter with a per-chunk write timeout and an
// idle timeout so a stalled client cannot pin a handler goroutine. A
// canceled request context ends the stream with ErrClientGone.
//
// ServeArtifact opens an artifact, sets length and caching headers and
// copies it through a Writer:
//
//	err := streaming.ServeArtifact(r.Context(), w, path, "image/webp", streaming.DefaultConfig())
//	if err != nil && !errors.Is(err, streaming.ErrClientGone) {
//		logging.Warn("thumbnail delivery failed: %v", err)
//	}
package streaming

package streaming

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"library-indexer/internal/logging"
)

var (
	// ErrWriteTimeout is returned when a chunk write or the idle period
	// exceeds its limit.
	ErrWriteTimeout = errors.New("write timeout exceeded")

	// ErrClientGone is returned once the request context is canceled.
	ErrClientGone = errors.New("client disconnected")

	// ErrStreamCanceled is returned by writes after Close.
	ErrStreamCanceled = errors.New("stream canceled")
)

// Config bounds the delivery of one artifact.
type Config struct {
	// WriteTimeout limits a single chunk write.
	WriteTimeout time.Duration
	// IdleTimeout limits the time between successful writes. Zero disables
	// the idle check.
	IdleTimeout time.Duration
	// ChunkSize splits large writes and flushes between chunks. Zero writes
	// as received.
	ChunkSize int
	// MaxAge is sent as the Cache-Control max-age of artifacts.
	MaxAge time.Duration
}

// DefaultConfig suits thumbnails of a few hundred kilobytes at most.
func DefaultConfig() Config {
	return Config{
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  30 * time.Second,
		ChunkSize:    32 * 1024,
		MaxAge:       24 * time.Hour,
	}
}

// Writer wraps an http.ResponseWriter and aborts writes to stalled or
// departed clients.
type Writer struct {
	w       http.ResponseWriter
	ctx     context.Context
	cancel  context.CancelFunc
	cfg     Config
	flusher http.Flusher
	start   time.Time

	mu        sync.Mutex
	lastWrite time.Time
	written   int64
	closed    bool
	timedOut  bool
}

// NewWriter starts the idle checker; callers must Close the writer.
func NewWriter(ctx context.Context, w http.ResponseWriter, cfg Config) *Writer {
	wctx, cancel := context.WithCancel(ctx)
	now := time.Now()
	sw := &Writer{
		w:         w,
		ctx:       wctx,
		cancel:    cancel,
		cfg:       cfg,
		start:     now,
		lastWrite: now,
	}
	if f, ok := w.(http.Flusher); ok {
		sw.flusher = f
	}
	go sw.idleChecker()
	return sw
}

// Write implements io.Writer.
func (sw *Writer) Write(p []byte) (int, error) {
	sw.mu.Lock()
	closed := sw.closed
	sw.mu.Unlock()
	if closed {
		return 0, ErrStreamCanceled
	}
	if err := sw.ctx.Err(); err != nil {
		return 0, sw.contextError()
	}

	if sw.cfg.ChunkSize <= 0 || len(p) <= sw.cfg.ChunkSize {
		return sw.writeChunk(p)
	}

	total := 0
	for len(p) > 0 {
		size := min(sw.cfg.ChunkSize, len(p))
		n, err := sw.writeChunk(p[:size])
		total += n
		if err != nil {
			return total, err
		}
		p = p[size:]
		if sw.flusher != nil {
			sw.flusher.Flush()
		}
	}
	return total, nil
}

func (sw *Writer) writeChunk(p []byte) (int, error) {
	type result struct {
		n   int
		err error
	}
	done := make(chan result, 1)
	go func() {
		n, err := sw.w.Write(p)
		done <- result{n, err}
	}()

	var timeout <-chan time.Time
	if sw.cfg.WriteTimeout > 0 {
		timer := time.NewTimer(sw.cfg.WriteTimeout)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case res := <-done:
		if res.err == nil {
			sw.mu.Lock()
			sw.lastWrite = time.Now()
			sw.written += int64(res.n)
			sw.mu.Unlock()
		}
		return res.n, res.err
	case <-timeout:
		sw.abort()
		return 0, ErrWriteTimeout
	case <-sw.ctx.Done():
		return 0, sw.contextError()
	}
}

func (sw *Writer) idleChecker() {
	if sw.cfg.IdleTimeout <= 0 {
		return
	}
	ticker := time.NewTicker(sw.cfg.IdleTimeout / 4)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			sw.mu.Lock()
			idle := time.Since(sw.lastWrite)
			closed := sw.closed
			sw.mu.Unlock()
			if closed {
				return
			}
			if idle > sw.cfg.IdleTimeout {
				logging.Warn("Artifact stream idle for %v, aborting", idle)
				sw.abort()
				return
			}
		case <-sw.ctx.Done():
			return
		}
	}
}

func (sw *Writer) abort() {
	sw.mu.Lock()
	sw.timedOut = true
	sw.mu.Unlock()
	sw.cancel()
}

func (sw *Writer) contextError() error {
	sw.mu.Lock()
	timedOut := sw.timedOut
	sw.mu.Unlock()
	switch {
	case timedOut:
		return ErrWriteTimeout
	case errors.Is(sw.ctx.Err(), context.Canceled):
		return ErrClientGone
	}
	return ErrStreamCanceled
}

// Close stops the idle checker. It is safe to call more than once.
func (sw *Writer) Close() error {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	if !sw.closed {
		sw.closed = true
		sw.cancel()
	}
	return nil
}

// Stats returns the bytes written and the time since the writer was made.
func (sw *Writer) Stats() (int64, time.Duration) {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	return sw.written, time.Since(sw.start)
}

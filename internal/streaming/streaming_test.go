package streaming

import (
	"bytes"
	"context"
	"errors"
	"io/fs"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.WriteTimeout != 10*time.Second {
		t.Errorf("WriteTimeout = %v, want 10s", cfg.WriteTimeout)
	}
	if cfg.IdleTimeout != 30*time.Second {
		t.Errorf("IdleTimeout = %v, want 30s", cfg.IdleTimeout)
	}
	if cfg.ChunkSize != 32*1024 {
		t.Errorf("ChunkSize = %d, want 32KB", cfg.ChunkSize)
	}
	if cfg.MaxAge != 24*time.Hour {
		t.Errorf("MaxAge = %v, want 24h", cfg.MaxAge)
	}
}

func TestWriterCountsBytes(t *testing.T) {
	rec := httptest.NewRecorder()
	sw := NewWriter(context.Background(), rec, DefaultConfig())
	defer sw.Close()

	for _, chunk := range []string{"hello ", "world"} {
		if _, err := sw.Write([]byte(chunk)); err != nil {
			t.Fatalf("Write failed: %v", err)
		}
	}

	written, _ := sw.Stats()
	if written != 11 {
		t.Errorf("written = %d, want 11", written)
	}
	if rec.Body.String() != "hello world" {
		t.Errorf("body = %q", rec.Body.String())
	}
}

func TestWriterSplitsLargeWrites(t *testing.T) {
	rec := httptest.NewRecorder()
	cfg := DefaultConfig()
	cfg.ChunkSize = 4
	sw := NewWriter(context.Background(), rec, cfg)
	defer sw.Close()

	data := bytes.Repeat([]byte("x"), 10)
	n, err := sw.Write(data)
	if err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if n != len(data) {
		t.Errorf("n = %d, want %d", n, len(data))
	}
	if !rec.Flushed {
		t.Error("chunked write should flush between chunks")
	}
	if !bytes.Equal(rec.Body.Bytes(), data) {
		t.Error("body does not match input")
	}
}

func TestWriterErrors(t *testing.T) {
	tests := []struct {
		name  string
		setup func() *Writer
		want  error
	}{
		{
			name: "closed",
			setup: func() *Writer {
				sw := NewWriter(context.Background(), httptest.NewRecorder(), DefaultConfig())
				sw.Close()
				return sw
			},
			want: ErrStreamCanceled,
		},
		{
			name: "client gone",
			setup: func() *Writer {
				ctx, cancel := context.WithCancel(context.Background())
				sw := NewWriter(ctx, httptest.NewRecorder(), DefaultConfig())
				cancel()
				return sw
			},
			want: ErrClientGone,
		},
		{
			name: "idle",
			setup: func() *Writer {
				cfg := DefaultConfig()
				cfg.IdleTimeout = 20 * time.Millisecond
				sw := NewWriter(context.Background(), httptest.NewRecorder(), cfg)
				time.Sleep(200 * time.Millisecond)
				return sw
			},
			want: ErrWriteTimeout,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sw := tt.setup()
			defer sw.Close()
			if _, err := sw.Write([]byte("data")); !errors.Is(err, tt.want) {
				t.Errorf("Write error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestCloseIdempotent(t *testing.T) {
	sw := NewWriter(context.Background(), httptest.NewRecorder(), DefaultConfig())
	if err := sw.Close(); err != nil {
		t.Fatal(err)
	}
	if err := sw.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestServeArtifact(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ab", "abcdef.webp")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	data := bytes.Repeat([]byte{0x52, 0x49, 0x46, 0x46}, 100)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}

	rec := httptest.NewRecorder()
	if err := ServeArtifact(context.Background(), rec, path, "image/webp", DefaultConfig()); err != nil {
		t.Fatalf("ServeArtifact failed: %v", err)
	}

	if rec.Code != 200 {
		t.Errorf("status = %d, want 200", rec.Code)
	}
	headers := map[string]string{
		"Content-Type":           "image/webp",
		"Content-Length":         "400",
		"Cache-Control":          "private, max-age=86400",
		"X-Content-Type-Options": "nosniff",
	}
	for k, want := range headers {
		if got := rec.Header().Get(k); got != want {
			t.Errorf("%s = %q, want %q", k, got, want)
		}
	}
	if rec.Header().Get("Last-Modified") == "" {
		t.Error("Last-Modified not set")
	}
	if !bytes.Equal(rec.Body.Bytes(), data) {
		t.Error("body does not match artifact")
	}
}

func TestServeArtifactMissing(t *testing.T) {
	rec := httptest.NewRecorder()
	err := ServeArtifact(context.Background(), rec, filepath.Join(t.TempDir(), "missing.webp"), "image/webp", DefaultConfig())
	if !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("error = %v, want fs.ErrNotExist", err)
	}
	if len(rec.Header()) != 0 {
		t.Error("no headers should be written for a missing artifact")
	}
}

package streaming

import (
	"bytes"
	"context"
	"errors"
	"net/http/httptest"
	"testing"
	"time"
)

func TestCopyDeliversAllBytes(t *testing.T) {
	content := make([]byte, 300*1024)
	for i := range content {
		content[i] = byte(i % 256)
	}

	rec := httptest.NewRecorder()
	written, err := Copy(context.Background(), rec, bytes.NewReader(content), DefaultConfig())
	if err != nil {
		t.Fatalf("Copy() failed: %v", err)
	}
	if written != int64(len(content)) {
		t.Errorf("Expected %d bytes written, got %d", len(content), written)
	}
	if !bytes.Equal(rec.Body.Bytes(), content) {
		t.Error("Expected body to match source content")
	}
}

func TestCopyChunksLargeWrites(t *testing.T) {
	config := Config{
		WriteTimeout: time.Second,
		IdleTimeout:  time.Second,
		ChunkSize:    1024,
	}
	content := make([]byte, 10*1024)

	rec := httptest.NewRecorder()
	written, err := Copy(context.Background(), rec, bytes.NewReader(content), config)
	if err != nil {
		t.Fatalf("Copy() failed: %v", err)
	}
	if written != int64(len(content)) {
		t.Errorf("Expected %d bytes written, got %d", len(content), written)
	}
}

func TestWriteAfterClose(t *testing.T) {
	rec := httptest.NewRecorder()
	sw := NewWriter(context.Background(), rec, DefaultConfig())

	if err := sw.Close(); err != nil {
		t.Fatalf("Close() failed: %v", err)
	}
	if _, err := sw.Write([]byte("data")); !errors.Is(err, ErrStreamCanceled) {
		t.Errorf("Expected ErrStreamCanceled, got %v", err)
	}
}

func TestWriteCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rec := httptest.NewRecorder()
	sw := NewWriter(ctx, rec, DefaultConfig())
	defer sw.Close()

	if _, err := sw.Write([]byte("data")); !errors.Is(err, ErrClientGone) {
		t.Errorf("Expected ErrClientGone, got %v", err)
	}
}

func TestStats(t *testing.T) {
	rec := httptest.NewRecorder()
	sw := NewWriter(context.Background(), rec, DefaultConfig())
	defer sw.Close()

	if _, err := sw.Write([]byte("hello")); err != nil {
		t.Fatalf("Write() failed: %v", err)
	}

	written, elapsed := sw.Stats()
	if written != 5 {
		t.Errorf("Expected 5 bytes, got %d", written)
	}
	if elapsed < 0 {
		t.Errorf("Expected non-negative duration, got %v", elapsed)
	}
}

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()
	if config.WriteTimeout != 30*time.Second {
		t.Errorf("Expected WriteTimeout=30s, got %v", config.WriteTimeout)
	}
	if config.IdleTimeout != 60*time.Second {
		t.Errorf("Expected IdleTimeout=60s, got %v", config.IdleTimeout)
	}
	if config.ChunkSize != 256*1024 {
		t.Errorf("Expected ChunkSize=256KiB, got %d", config.ChunkSize)
	}
}

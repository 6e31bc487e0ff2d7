package streaming

import (
	"context"
	"errors"
	"io"
	"net/http"
	"sync"
	"time"

	"clipflow/internal/logging"
)

// Sentinel errors for streaming operations.
var (
	// ErrWriteTimeout indicates that a write operation exceeded the
	// configured timeout, typically a client receiving data too slowly.
	ErrWriteTimeout = errors.New("write timeout exceeded")

	// ErrClientGone indicates that the client disconnected before the
	// stream completed, detected via request context cancellation.
	ErrClientGone = errors.New("client disconnected")

	// ErrStreamCanceled indicates the stream was canceled programmatically.
	ErrStreamCanceled = errors.New("stream canceled")
)

// Config controls timeout-protected streaming behavior.
type Config struct {
	// WriteTimeout bounds a single write to the client.
	WriteTimeout time.Duration
	// IdleTimeout bounds the gap between successful writes.
	IdleTimeout time.Duration
	// ChunkSize splits large writes so cancellation is checked between
	// chunks (0 = write as received).
	ChunkSize int
}

// DefaultConfig returns the streaming defaults used for media delivery.
func DefaultConfig() Config {
	return Config{
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
		ChunkSize:    256 * 1024,
	}
}

// Writer wraps an http.ResponseWriter with write and idle timeouts so a
// stalled client cannot hold the handler goroutine forever.
type Writer struct {
	w       http.ResponseWriter
	ctx     context.Context
	cancel  context.CancelFunc
	config  Config
	flusher http.Flusher

	mu        sync.Mutex
	started   time.Time
	lastWrite time.Time
	written   int64
	closed    bool
}

// NewWriter creates a timeout-protected writer bound to the request context.
func NewWriter(ctx context.Context, w http.ResponseWriter, config Config) *Writer {
	streamCtx, cancel := context.WithCancel(ctx)

	sw := &Writer{
		w:         w,
		ctx:       streamCtx,
		cancel:    cancel,
		config:    config,
		started:   time.Now(),
		lastWrite: time.Now(),
	}

	if flusher, ok := w.(http.Flusher); ok {
		sw.flusher = flusher
	}

	go sw.watchIdle()

	return sw
}

// Write implements io.Writer with timeout protection.
func (sw *Writer) Write(p []byte) (int, error) {
	sw.mu.Lock()
	closed := sw.closed
	sw.mu.Unlock()
	if closed {
		return 0, ErrStreamCanceled
	}

	select {
	case <-sw.ctx.Done():
		return 0, sw.contextError()
	default:
	}

	if sw.config.ChunkSize <= 0 || len(p) <= sw.config.ChunkSize {
		return sw.writeOne(p)
	}

	total := 0
	for len(p) > 0 {
		select {
		case <-sw.ctx.Done():
			return total, sw.contextError()
		default:
		}

		n := sw.config.ChunkSize
		if len(p) < n {
			n = len(p)
		}

		written, err := sw.writeOne(p[:n])
		total += written
		if err != nil {
			return total, err
		}
		p = p[n:]

		if sw.flusher != nil {
			sw.flusher.Flush()
		}
	}
	return total, nil
}

// writeOne performs a single bounded write.
func (sw *Writer) writeOne(p []byte) (int, error) {
	type result struct {
		n   int
		err error
	}
	done := make(chan result, 1)

	go func() {
		n, err := sw.w.Write(p)
		done <- result{n, err}
	}()

	select {
	case res := <-done:
		if res.err == nil {
			sw.mu.Lock()
			sw.lastWrite = time.Now()
			sw.written += int64(res.n)
			sw.mu.Unlock()
		}
		return res.n, res.err

	case <-time.After(sw.config.WriteTimeout):
		sw.cancel()
		return 0, ErrWriteTimeout

	case <-sw.ctx.Done():
		return 0, sw.contextError()
	}
}

// watchIdle cancels the stream when no data has flowed for IdleTimeout.
func (sw *Writer) watchIdle() {
	if sw.config.IdleTimeout <= 0 {
		return
	}

	ticker := time.NewTicker(sw.config.IdleTimeout / 4)
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
			if idle > sw.config.IdleTimeout {
				logging.Warn("Stream idle timeout exceeded: %v", idle)
				sw.cancel()
				return
			}

		case <-sw.ctx.Done():
			return
		}
	}
}

func (sw *Writer) contextError() error {
	if errors.Is(sw.ctx.Err(), context.Canceled) {
		return ErrClientGone
	}
	return ErrStreamCanceled
}

// Close marks the writer as closed and stops the idle watcher.
func (sw *Writer) Close() error {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	if sw.closed {
		return nil
	}
	sw.closed = true
	sw.cancel()
	return nil
}

// Stats returns bytes written and elapsed streaming duration.
func (sw *Writer) Stats() (int64, time.Duration) {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	return sw.written, time.Since(sw.started)
}

// Copy streams from r to the HTTP response with timeout protection.
// Response headers must be set by the caller before the first write.
func Copy(ctx context.Context, w http.ResponseWriter, r io.Reader, config Config) (int64, error) {
	sw := NewWriter(ctx, w, config)
	defer func() {
		if err := sw.Close(); err != nil {
			logging.Warn("Failed to close stream writer: %v", err)
		}
	}()

	_, err := io.Copy(sw, r)

	written, duration := sw.Stats()
	logging.Debug("Stream completed: %d bytes in %v", written, duration)

	return written, err
}

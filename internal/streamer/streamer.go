package streamer

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"clipflow/internal/database"
	"clipflow/internal/logging"
	"clipflow/internal/mediatypes"
	"clipflow/internal/metrics"
	"clipflow/internal/streaming"
)

// maxCacheableSpan caps the size of a byte range the cache will hold.
// Browsers typically request spans well under this; anything larger is
// streamed straight from disk.
const maxCacheableSpan = 8 << 20

// ErrFileMissing reports that the file backing a rendition is gone.
var ErrFileMissing = errors.New("streamer: media file missing")

// Streamer serves video files with HTTP range support and a short-lived
// in-memory cache of recently requested spans.
type Streamer struct {
	cache     *ChunkCache
	writerCfg streaming.Config
}

// New creates a Streamer whose chunk cache expires entries ttl after
// their last use.
func New(ttl time.Duration) *Streamer {
	return &Streamer{
		cache:     NewChunkCache(ttl),
		writerCfg: streaming.DefaultConfig(),
	}
}

// Invalidate drops all cached spans for a video. Called on deletion.
func (s *Streamer) Invalidate(videoID string) {
	s.cache.Invalidate(videoID)
}

// Close releases the cache sweeper.
func (s *Streamer) Close() {
	s.cache.Close()
}

// ServeVideo writes the requested rendition of a video to the client,
// honoring the Range header. When the requested quality has not been
// produced (or "original" is asked for) the source file is served.
func (s *Streamer) ServeVideo(w http.ResponseWriter, r *http.Request, video *database.Video, quality mediatypes.Quality) error {
	path := video.VariantPath(quality)

	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrFileMissing, path)
		}
		return fmt.Errorf("streamer: open %s: %w", path, err)
	}
	defer func() {
		if err := file.Close(); err != nil {
			logging.Warn("streamer: close %s: %v", path, err)
		}
	}()

	info, err := file.Stat()
	if err != nil {
		return fmt.Errorf("streamer: stat %s: %w", path, err)
	}
	size := info.Size()
	mime := mediatypes.MimeForPath(path)

	rangeHeader := r.Header.Get("Range")
	if rangeHeader == "" {
		return s.serveFull(r, w, file, video.ID, size, mime, quality)
	}

	start, end, ok := parseRange(rangeHeader, size)
	if !ok {
		w.Header().Set("Content-Range", fmt.Sprintf("bytes */%d", size))
		w.WriteHeader(http.StatusRequestedRangeNotSatisfiable)
		metrics.StreamRequestsTotal.WithLabelValues(string(quality), "unsatisfiable").Inc()
		return nil
	}

	return s.serveRange(r, w, file, video.ID, start, end, size, mime, quality)
}

// serveFull sends the entire file with a 200 response.
func (s *Streamer) serveFull(r *http.Request, w http.ResponseWriter, file *os.File, videoID string, size int64, mime string, quality mediatypes.Quality) error {
	w.Header().Set("Content-Type", mime)
	w.Header().Set("Content-Length", strconv.FormatInt(size, 10))
	w.Header().Set("Accept-Ranges", "bytes")
	w.WriteHeader(http.StatusOK)

	metrics.StreamRequestsTotal.WithLabelValues(string(quality), "full").Inc()

	_, err := streaming.Copy(r.Context(), w, file, s.writerCfg)
	if err != nil && !errors.Is(err, streaming.ErrClientGone) {
		logging.Warn("streamer: full stream of %s aborted: %v", videoID, err)
	}
	return nil
}

// serveRange sends one byte span with a 206 response, through the cache
// when the span is small enough.
func (s *Streamer) serveRange(r *http.Request, w http.ResponseWriter, file *os.File, videoID string, start, end, size int64, mime string, quality mediatypes.Quality) error {
	length := end - start + 1

	w.Header().Set("Content-Type", mime)
	w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", start, end, size))
	w.Header().Set("Content-Length", strconv.FormatInt(length, 10))
	w.Header().Set("Accept-Ranges", "bytes")

	if length > maxCacheableSpan {
		w.WriteHeader(http.StatusPartialContent)
		metrics.StreamRequestsTotal.WithLabelValues(string(quality), "range").Inc()

		reader := io.NewSectionReader(file, start, length)
		_, err := streaming.Copy(r.Context(), w, reader, s.writerCfg)
		if err != nil && !errors.Is(err, streaming.ErrClientGone) {
			logging.Warn("streamer: range stream of %s aborted: %v", videoID, err)
		}
		return nil
	}

	key := chunkKey{videoID: videoID, quality: quality, start: start, end: end}
	chunk, hit := s.cache.Get(key)
	if !hit {
		chunk = make([]byte, length)
		if _, err := file.ReadAt(chunk, start); err != nil {
			return fmt.Errorf("streamer: read %s [%d-%d]: %w", videoID, start, end, err)
		}
		s.cache.Put(key, chunk)
	}

	w.WriteHeader(http.StatusPartialContent)
	metrics.StreamRequestsTotal.WithLabelValues(string(quality), "range").Inc()

	_, err := streaming.Copy(r.Context(), w, bytes.NewReader(chunk), s.writerCfg)
	if err != nil && !errors.Is(err, streaming.ErrClientGone) {
		logging.Warn("streamer: cached range of %s aborted: %v", videoID, err)
	}
	return nil
}

// parseRange parses a single-span Range header of the form
// "bytes=<start>-", "bytes=<start>-<end>", or the suffix form
// "bytes=-<n>" naming the final n bytes. An open end is clamped to
// the last byte. It reports false for anything malformed or out of
// bounds, which callers answer with 416.
func parseRange(header string, size int64) (start, end int64, ok bool) {
	const prefix = "bytes="
	if !strings.HasPrefix(header, prefix) {
		return 0, 0, false
	}
	spec := strings.TrimPrefix(header, prefix)
	if strings.Contains(spec, ",") {
		// Multi-range requests are not supported.
		return 0, 0, false
	}

	startStr, endStr, found := strings.Cut(spec, "-")
	if !found {
		return 0, 0, false
	}

	if startStr == "" {
		// Suffix range: the final n bytes.
		n, err := strconv.ParseInt(endStr, 10, 64)
		if err != nil || n <= 0 || size == 0 {
			return 0, 0, false
		}
		if n > size {
			n = size
		}
		return size - n, size - 1, true
	}

	start, err := strconv.ParseInt(startStr, 10, 64)
	if err != nil || start < 0 || start >= size {
		return 0, 0, false
	}

	if endStr == "" {
		return start, size - 1, true
	}

	end, err = strconv.ParseInt(endStr, 10, 64)
	if err != nil || end < start {
		return 0, 0, false
	}
	if end >= size {
		end = size - 1
	}
	return start, end, true
}

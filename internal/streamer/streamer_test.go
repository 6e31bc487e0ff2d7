package streamer

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"clipflow/internal/database"
	"clipflow/internal/mediatypes"
)

func writeTestFile(t *testing.T, dir, name string, content []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("Failed to write test file: %v", err)
	}
	return path
}

func testContent(n int) []byte {
	content := make([]byte, n)
	for i := range content {
		content[i] = byte(i % 251)
	}
	return content
}

func newTestStreamer(t *testing.T, ttl time.Duration) *Streamer {
	t.Helper()
	s := New(ttl)
	t.Cleanup(s.Close)
	return s
}

func serve(t *testing.T, s *Streamer, video *database.Video, quality mediatypes.Quality, rangeHeader string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/stream", nil)
	if rangeHeader != "" {
		req.Header.Set("Range", rangeHeader)
	}
	rec := httptest.NewRecorder()
	if err := s.ServeVideo(rec, req, video, quality); err != nil {
		t.Fatalf("ServeVideo() failed: %v", err)
	}
	return rec
}

func TestServeFullFile(t *testing.T) {
	content := testContent(4096)
	dir := t.TempDir()
	video := &database.Video{ID: "vid-1", SourcePath: writeTestFile(t, dir, "src.mp4", content)}

	s := newTestStreamer(t, time.Minute)
	rec := serve(t, s, video, mediatypes.QualityOriginal, "")

	if rec.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", rec.Code)
	}
	if got := rec.Header().Get("Content-Length"); got != "4096" {
		t.Errorf("Expected Content-Length=4096, got %s", got)
	}
	if got := rec.Header().Get("Accept-Ranges"); got != "bytes" {
		t.Errorf("Expected Accept-Ranges=bytes, got %s", got)
	}
	if got := rec.Header().Get("Content-Type"); got != "video/mp4" {
		t.Errorf("Expected Content-Type=video/mp4, got %s", got)
	}
	if !bytes.Equal(rec.Body.Bytes(), content) {
		t.Error("Expected body to match file content")
	}
}

func TestServeRange(t *testing.T) {
	content := testContent(4096)
	dir := t.TempDir()
	video := &database.Video{ID: "vid-1", SourcePath: writeTestFile(t, dir, "src.mp4", content)}
	s := newTestStreamer(t, time.Minute)

	tests := []struct {
		name      string
		header    string
		wantStart int64
		wantEnd   int64
	}{
		{"ClosedRange", "bytes=100-299", 100, 299},
		{"OpenEnd", "bytes=4000-", 4000, 4095},
		{"EndClamped", "bytes=4000-999999", 4000, 4095},
		{"SingleByte", "bytes=0-0", 0, 0},
		{"Suffix", "bytes=-500", 3596, 4095},
		{"SuffixLargerThanFile", "bytes=-99999", 0, 4095},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(t, s, video, mediatypes.QualityOriginal, tt.header)

			if rec.Code != http.StatusPartialContent {
				t.Fatalf("Expected status 206, got %d", rec.Code)
			}
			wantRange := fmt.Sprintf("bytes %d-%d/4096", tt.wantStart, tt.wantEnd)
			if got := rec.Header().Get("Content-Range"); got != wantRange {
				t.Errorf("Expected Content-Range=%q, got %q", wantRange, got)
			}
			wantLen := fmt.Sprintf("%d", tt.wantEnd-tt.wantStart+1)
			if got := rec.Header().Get("Content-Length"); got != wantLen {
				t.Errorf("Expected Content-Length=%s, got %s", wantLen, got)
			}
			if !bytes.Equal(rec.Body.Bytes(), content[tt.wantStart:tt.wantEnd+1]) {
				t.Error("Expected body to match the requested span")
			}
		})
	}
}

func TestServeRangeUnsatisfiable(t *testing.T) {
	content := testContent(1000)
	dir := t.TempDir()
	video := &database.Video{ID: "vid-1", SourcePath: writeTestFile(t, dir, "src.mp4", content)}
	s := newTestStreamer(t, time.Minute)

	tests := []struct {
		name   string
		header string
	}{
		{"StartPastEOF", "bytes=1000-"},
		{"ZeroSuffix", "bytes=-0"},
		{"Garbage", "bytes=abc-def"},
		{"NoPrefix", "100-200"},
		{"MultiRange", "bytes=0-1,5-9"},
		{"Inverted", "bytes=300-200"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(t, s, video, mediatypes.QualityOriginal, tt.header)

			if rec.Code != http.StatusRequestedRangeNotSatisfiable {
				t.Fatalf("Expected status 416, got %d", rec.Code)
			}
			if got := rec.Header().Get("Content-Range"); got != "bytes */1000" {
				t.Errorf("Expected Content-Range=bytes */1000, got %q", got)
			}
			if rec.Body.Len() != 0 {
				t.Errorf("Expected empty body, got %d bytes", rec.Body.Len())
			}
		})
	}
}

func TestServeVariantFallback(t *testing.T) {
	dir := t.TempDir()
	source := testContent(512)
	rendition := testContent(256)

	video := &database.Video{
		ID:         "vid-1",
		SourcePath: writeTestFile(t, dir, "src.mp4", source),
		Variants: map[mediatypes.Quality]string{
			mediatypes.Quality720: writeTestFile(t, dir, "p720-src.mp4", rendition),
		},
	}
	s := newTestStreamer(t, time.Minute)

	t.Run("RenditionServed", func(t *testing.T) {
		rec := serve(t, s, video, mediatypes.Quality720, "")
		if !bytes.Equal(rec.Body.Bytes(), rendition) {
			t.Error("Expected the rendition file")
		}
	})

	t.Run("MissingRenditionFallsBack", func(t *testing.T) {
		rec := serve(t, s, video, mediatypes.Quality1080, "")
		if !bytes.Equal(rec.Body.Bytes(), source) {
			t.Error("Expected fallback to the source file")
		}
	})
}

func TestServeMissingFile(t *testing.T) {
	video := &database.Video{ID: "vid-1", SourcePath: filepath.Join(t.TempDir(), "gone.mp4")}
	s := newTestStreamer(t, time.Minute)

	req := httptest.NewRequest(http.MethodGet, "/stream", nil)
	rec := httptest.NewRecorder()
	err := s.ServeVideo(rec, req, video, mediatypes.QualityOriginal)
	if !errors.Is(err, ErrFileMissing) {
		t.Errorf("Expected ErrFileMissing, got %v", err)
	}
}

func TestRangeServedFromCache(t *testing.T) {
	content := testContent(2048)
	dir := t.TempDir()
	path := writeTestFile(t, dir, "src.mp4", content)
	video := &database.Video{ID: "vid-1", SourcePath: path}
	s := newTestStreamer(t, time.Minute)

	first := serve(t, s, video, mediatypes.QualityOriginal, "bytes=0-1023")
	if first.Code != http.StatusPartialContent {
		t.Fatalf("Expected status 206, got %d", first.Code)
	}

	// Overwrite the file; a cached span must still serve the old bytes.
	if err := os.WriteFile(path, make([]byte, 2048), 0o644); err != nil {
		t.Fatalf("Failed to rewrite file: %v", err)
	}

	second := serve(t, s, video, mediatypes.QualityOriginal, "bytes=0-1023")
	if !bytes.Equal(second.Body.Bytes(), content[:1024]) {
		t.Error("Expected the cached span, not the rewritten file")
	}
}

func TestCacheInvalidate(t *testing.T) {
	content := testContent(2048)
	dir := t.TempDir()
	path := writeTestFile(t, dir, "src.mp4", content)
	video := &database.Video{ID: "vid-1", SourcePath: path}
	s := newTestStreamer(t, time.Minute)

	serve(t, s, video, mediatypes.QualityOriginal, "bytes=0-1023")
	if s.cache.Len() != 1 {
		t.Fatalf("Expected 1 cached span, got %d", s.cache.Len())
	}

	s.Invalidate("vid-1")
	if s.cache.Len() != 0 {
		t.Errorf("Expected cache to be empty after Invalidate, got %d", s.cache.Len())
	}
}

func TestChunkCacheSlidingExpiry(t *testing.T) {
	cache := NewChunkCache(50 * time.Millisecond)
	defer cache.Close()

	key := chunkKey{videoID: "vid-1", quality: mediatypes.Quality720, start: 0, end: 99}
	cache.Put(key, []byte("chunk"))

	// Touch the entry repeatedly past the base TTL; hits must keep it alive.
	for i := 0; i < 4; i++ {
		time.Sleep(30 * time.Millisecond)
		if _, ok := cache.Get(key); !ok {
			t.Fatalf("Expected entry to stay alive on touch %d", i)
		}
	}

	// Left alone it expires.
	time.Sleep(80 * time.Millisecond)
	if _, ok := cache.Get(key); ok {
		t.Error("Expected entry to expire after idle TTL")
	}
}

func TestChunkCacheKeyIncludesQuality(t *testing.T) {
	cache := NewChunkCache(time.Minute)
	defer cache.Close()

	cache.Put(chunkKey{videoID: "vid-1", quality: mediatypes.Quality720, start: 0, end: 9}, []byte("720"))

	if _, ok := cache.Get(chunkKey{videoID: "vid-1", quality: mediatypes.Quality360, start: 0, end: 9}); ok {
		t.Error("Expected a different quality to miss")
	}
	if _, ok := cache.Get(chunkKey{videoID: "vid-1", quality: mediatypes.Quality720, start: 0, end: 10}); ok {
		t.Error("Expected a different span to miss")
	}
	if data, ok := cache.Get(chunkKey{videoID: "vid-1", quality: mediatypes.Quality720, start: 0, end: 9}); !ok || string(data) != "720" {
		t.Error("Expected the exact key to hit")
	}
}

func TestParseRange(t *testing.T) {
	tests := []struct {
		header    string
		size      int64
		wantStart int64
		wantEnd   int64
		wantOK    bool
	}{
		{"bytes=0-499", 1000, 0, 499, true},
		{"bytes=500-", 1000, 500, 999, true},
		{"bytes=0-1999", 1000, 0, 999, true},
		{"bytes=999-999", 1000, 999, 999, true},
		{"bytes=1000-", 1000, 0, 0, false},
		{"bytes=-500", 1000, 500, 999, true},
		{"bytes=-1", 1000, 999, 999, true},
		{"bytes=-2000", 1000, 0, 999, true},
		{"bytes=-0", 1000, 0, 0, false},
		{"bytes=-", 1000, 0, 0, false},
		{"bytes=", 1000, 0, 0, false},
		{"", 1000, 0, 0, false},
		{"bytes=5-3", 1000, 0, 0, false},
	}

	for _, tt := range tests {
		start, end, ok := parseRange(tt.header, tt.size)
		if ok != tt.wantOK {
			t.Errorf("parseRange(%q) ok=%v, want %v", tt.header, ok, tt.wantOK)
			continue
		}
		if ok && (start != tt.wantStart || end != tt.wantEnd) {
			t.Errorf("parseRange(%q) = (%d, %d), want (%d, %d)", tt.header, start, end, tt.wantStart, tt.wantEnd)
		}
	}
}

package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"clipflow/internal/classify"
	"clipflow/internal/database"
	"clipflow/internal/mediatypes"
	"clipflow/internal/notify"
	"clipflow/internal/transcoder"
)

// fakeStore records pipeline writes in call order.
type fakeStore struct {
	mu    sync.Mutex
	video *database.Video
	calls []string

	progress []int
	variants map[mediatypes.Quality]string

	finalStatus      database.Status
	finalSensitivity database.Sensitivity
}

func newFakeStore(video *database.Video) *fakeStore {
	return &fakeStore{
		video:    video,
		variants: make(map[mediatypes.Quality]string),
	}
}

func (s *fakeStore) record(call string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, call)
}

func (s *fakeStore) GetVideo(_ context.Context, id string) (*database.Video, error) {
	s.record("get")
	if id != s.video.ID {
		return nil, database.ErrNotFound
	}
	copied := *s.video
	return &copied, nil
}

func (s *fakeStore) MarkProcessing(context.Context, string) error {
	s.record("mark_processing")
	return nil
}

func (s *fakeStore) UpdateProgress(_ context.Context, _ string, progress int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, "progress")
	s.progress = append(s.progress, progress)
	return nil
}

func (s *fakeStore) SetVariant(_ context.Context, _ string, quality mediatypes.Quality, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, "variant")
	s.variants[quality] = path
	return nil
}

func (s *fakeStore) SetThumbnail(context.Context, string, string) error {
	s.record("thumbnail")
	return nil
}

func (s *fakeStore) Finalize(_ context.Context, _ string, status database.Status, sensitivity database.Sensitivity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, "finalize")
	s.finalStatus = status
	s.finalSensitivity = sensitivity
	return nil
}

// fakeEngine produces renditions instantly, or fails partway through.
type fakeEngine struct {
	failAfter int // rendition count before failing, -1 for never
	block     chan struct{}
	fractions []float64
}

func (e *fakeEngine) Transcode(ctx context.Context, req transcoder.Request) (map[mediatypes.Quality]string, error) {
	if e.block != nil {
		select {
		case <-e.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	results := make(map[mediatypes.Quality]string)
	for i, profile := range transcoder.Profiles {
		if e.failAfter >= 0 && i >= e.failAfter {
			return results, &transcoder.Error{Variant: profile.Quality, Err: errors.New("encode blew up")}
		}
		for _, f := range e.fractions {
			if req.OnProgress != nil {
				req.OnProgress(profile.Quality, f)
			}
		}
		path := transcoder.OutputPath(req.OutputDir, profile.Quality, req.BaseName)
		if req.OnVariant != nil {
			req.OnVariant(profile.Quality, path)
		}
		results[profile.Quality] = path
	}
	return results, nil
}

func (e *fakeEngine) ExtractPoster(context.Context, string, string, string) (string, error) {
	return "/thumbs/poster.jpg", nil
}

// fakeHub records published events in order.
type fakeHub struct {
	mu     sync.Mutex
	events []string
}

func (h *fakeHub) Publish(_, event string, _ interface{}) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, event)
}

func (h *fakeHub) snapshot() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.events...)
}

func testVideo() *database.Video {
	return &database.Video{
		ID:             "vid-1",
		Owner:          "user-1",
		StoredFilename: "vid-1.mp4",
		SourcePath:     "/uploads/vid-1.mp4",
		Status:         database.StatusUploaded,
	}
}

func waitForIdle(t *testing.T, m *Manager, videoID string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for m.IsActive(videoID) {
		if time.Now().After(deadline) {
			t.Fatal("Timed out waiting for pipeline run to finish")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func newTestManager(store Store, engine Engine, hub Publisher, classifier classify.Classifier) *Manager {
	return New(store, engine, hub, classifier, Config{
		Workers:          2,
		ProgressInterval: 10 * time.Millisecond,
		UploadDir:        "/uploads",
	})
}

func TestRunCompletes(t *testing.T) {
	store := newFakeStore(testVideo())
	hub := &fakeHub{}
	engine := &fakeEngine{failAfter: -1, fractions: []float64{0.5, 1.0}}
	m := newTestManager(store, engine, hub, classify.Static(database.SensitivitySafe))

	m.Start("vid-1", "user-1")
	waitForIdle(t, m, "vid-1")

	store.mu.Lock()
	defer store.mu.Unlock()

	if store.finalStatus != database.StatusCompleted {
		t.Errorf("Expected final status=%s, got %s", database.StatusCompleted, store.finalStatus)
	}
	if store.finalSensitivity != database.SensitivitySafe {
		t.Errorf("Expected sensitivity=%s, got %s", database.SensitivitySafe, store.finalSensitivity)
	}
	if len(store.variants) != len(transcoder.Profiles) {
		t.Errorf("Expected %d variants, got %d", len(transcoder.Profiles), len(store.variants))
	}

	events := hub.snapshot()
	if len(events) == 0 || events[len(events)-1] != notify.EventCompleted {
		t.Errorf("Expected final event %s, got %v", notify.EventCompleted, events)
	}
}

func TestRunFlagged(t *testing.T) {
	store := newFakeStore(testVideo())
	hub := &fakeHub{}
	engine := &fakeEngine{failAfter: -1}
	m := newTestManager(store, engine, hub, classify.Static(database.SensitivityFlagged))

	m.Start("vid-1", "user-1")
	waitForIdle(t, m, "vid-1")

	store.mu.Lock()
	defer store.mu.Unlock()

	if store.finalStatus != database.StatusFailed {
		t.Errorf("Expected flagged content to finalize as %s, got %s", database.StatusFailed, store.finalStatus)
	}
	if store.finalSensitivity != database.SensitivityFlagged {
		t.Errorf("Expected sensitivity=%s, got %s", database.SensitivityFlagged, store.finalSensitivity)
	}
}

func TestRunTranscodeFailureStillFinalizes(t *testing.T) {
	store := newFakeStore(testVideo())
	hub := &fakeHub{}
	// One rendition succeeds, then the engine fails.
	engine := &fakeEngine{failAfter: 1}
	m := newTestManager(store, engine, hub, classify.Static(database.SensitivitySafe))

	m.Start("vid-1", "user-1")
	waitForIdle(t, m, "vid-1")

	store.mu.Lock()
	defer store.mu.Unlock()

	if store.finalStatus != database.StatusCompleted {
		t.Errorf("Expected partial transcode to still finalize as %s, got %s", database.StatusCompleted, store.finalStatus)
	}
	if len(store.variants) != 1 {
		t.Errorf("Expected 1 surviving variant, got %d", len(store.variants))
	}

	events := hub.snapshot()
	if len(events) == 0 || events[len(events)-1] != notify.EventCompleted {
		t.Errorf("Expected completed event despite transcode failure, got %v", events)
	}
}

func TestRunUnknownVideo(t *testing.T) {
	store := newFakeStore(testVideo())
	hub := &fakeHub{}
	engine := &fakeEngine{failAfter: -1}
	m := newTestManager(store, engine, hub, classify.Static(database.SensitivitySafe))

	m.Start("missing", "user-1")
	waitForIdle(t, m, "missing")

	store.mu.Lock()
	defer store.mu.Unlock()

	for _, call := range store.calls {
		if call == "finalize" {
			t.Error("Expected no finalize for unknown video")
		}
	}
}

func TestIsActiveDuringRun(t *testing.T) {
	store := newFakeStore(testVideo())
	hub := &fakeHub{}
	engine := &fakeEngine{failAfter: -1, block: make(chan struct{})}
	m := newTestManager(store, engine, hub, classify.Static(database.SensitivitySafe))

	m.Start("vid-1", "user-1")

	deadline := time.Now().Add(time.Second)
	for !m.IsActive("vid-1") {
		if time.Now().After(deadline) {
			t.Fatal("Expected video to be active after Start")
		}
		time.Sleep(time.Millisecond)
	}

	close(engine.block)
	waitForIdle(t, m, "vid-1")

	if m.IsActive("vid-1") {
		t.Error("Expected video to be inactive after the run")
	}
}

func TestStartDeduplicates(t *testing.T) {
	store := newFakeStore(testVideo())
	hub := &fakeHub{}
	engine := &fakeEngine{failAfter: -1, block: make(chan struct{})}
	m := newTestManager(store, engine, hub, classify.Static(database.SensitivitySafe))

	m.Start("vid-1", "user-1")
	m.Start("vid-1", "user-1")

	close(engine.block)
	waitForIdle(t, m, "vid-1")

	store.mu.Lock()
	defer store.mu.Unlock()

	marks := 0
	for _, call := range store.calls {
		if call == "mark_processing" {
			marks++
		}
	}
	if marks != 1 {
		t.Errorf("Expected a single run for duplicate Start, got %d", marks)
	}
}

func TestProgressCheckpoints(t *testing.T) {
	store := newFakeStore(testVideo())
	hub := &fakeHub{}
	// Block long enough for several progress ticks without real fractions.
	engine := &fakeEngine{failAfter: -1, block: make(chan struct{})}
	m := newTestManager(store, engine, hub, classify.Static(database.SensitivitySafe))

	m.Start("vid-1", "user-1")
	time.Sleep(60 * time.Millisecond)
	close(engine.block)
	waitForIdle(t, m, "vid-1")

	store.mu.Lock()
	defer store.mu.Unlock()

	if len(store.progress) == 0 {
		t.Fatal("Expected progress checkpoints to be persisted")
	}
	last := 0
	for _, p := range store.progress {
		if p < 10 || p > 90 {
			t.Errorf("Expected checkpoint in [10,90], got %d", p)
		}
		if p%10 != 0 {
			t.Errorf("Expected a multiple of 10, got %d", p)
		}
		if p <= last {
			t.Errorf("Expected strictly increasing checkpoints, got %v", store.progress)
			break
		}
		last = p
	}
}

func TestPercentRoundsDownToCheckpoint(t *testing.T) {
	tests := []struct {
		name     string
		fraction float64
		want     int
	}{
		{"JustStarted", 0.01, 10},
		{"MidRun", 0.47, 40},
		{"AlmostDone", 0.99, 80},
		{"Done", 1.0, 90},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tracker := newProgressTracker()
			for _, profile := range transcoder.Profiles {
				tracker.observe(profile.Quality, tt.fraction)
			}
			if got := tracker.percent(0); got != tt.want {
				t.Errorf("Expected %d for fraction %v, got %d", tt.want, tt.fraction, got)
			}
		})
	}
}

func TestShutdownStopsQueuedWork(t *testing.T) {
	store := newFakeStore(testVideo())
	hub := &fakeHub{}
	engine := &fakeEngine{failAfter: -1}
	m := newTestManager(store, engine, hub, classify.Static(database.SensitivitySafe))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := m.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown() failed: %v", err)
	}

	// Work queued after shutdown must not run.
	m.Start("vid-1", "user-1")
	waitForIdle(t, m, "vid-1")

	store.mu.Lock()
	defer store.mu.Unlock()
	for _, call := range store.calls {
		if call == "mark_processing" {
			t.Error("Expected no runs after shutdown")
		}
	}
}

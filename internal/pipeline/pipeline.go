package pipeline

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"time"

	"clipflow/internal/classify"
	"clipflow/internal/database"
	"clipflow/internal/logging"
	"clipflow/internal/mediatypes"
	"clipflow/internal/metrics"
	"clipflow/internal/notify"
	"clipflow/internal/transcoder"
)

// Store is the persistence surface the pipeline drives. *database.Database
// satisfies it.
type Store interface {
	GetVideo(ctx context.Context, id string) (*database.Video, error)
	MarkProcessing(ctx context.Context, id string) error
	UpdateProgress(ctx context.Context, id string, progress int) error
	SetVariant(ctx context.Context, id string, quality mediatypes.Quality, path string) error
	SetThumbnail(ctx context.Context, id, path string) error
	Finalize(ctx context.Context, id string, status database.Status, sensitivity database.Sensitivity) error
}

// Engine produces renditions and poster frames. *transcoder.Transcoder
// satisfies it.
type Engine interface {
	Transcode(ctx context.Context, req transcoder.Request) (map[mediatypes.Quality]string, error)
	ExtractPoster(ctx context.Context, inputPath, outputDir, baseName string) (string, error)
}

// Publisher pushes lifecycle events to the owner's live connections.
// *notify.Hub satisfies it.
type Publisher interface {
	Publish(ownerID, event string, payload interface{})
}

// Config tunes the manager.
type Config struct {
	// Workers caps how many videos are processed at once. Each run
	// additionally fans out one ffmpeg process per rendition.
	Workers int
	// ProgressInterval is how often progress is persisted and pushed.
	ProgressInterval time.Duration
	// UploadDir is where source files live; renditions land in a
	// per-video subdirectory beneath it.
	UploadDir string
}

// Manager runs the upload-to-ready pipeline for videos. Start returns
// immediately; the work happens on background goroutines bounded by the
// configured worker count.
type Manager struct {
	store      Store
	engine     Engine
	hub        Publisher
	classifier classify.Classifier
	cfg        Config

	sem chan struct{}

	mu     sync.Mutex
	active map[string]struct{}

	base   context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a Manager. Workers must be at least 1.
func New(store Store, engine Engine, hub Publisher, classifier classify.Classifier, cfg Config) *Manager {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.ProgressInterval <= 0 {
		cfg.ProgressInterval = 1500 * time.Millisecond
	}
	base, cancel := context.WithCancel(context.Background())
	return &Manager{
		store:      store,
		engine:     engine,
		hub:        hub,
		classifier: classifier,
		cfg:        cfg,
		sem:        make(chan struct{}, cfg.Workers),
		active:     make(map[string]struct{}),
		base:       base,
		cancel:     cancel,
	}
}

// Start queues a video for processing and returns immediately. The video
// is considered active from this point until its run reaches a terminal
// state, which blocks deletion in the meantime.
func (m *Manager) Start(videoID, ownerID string) {
	m.mu.Lock()
	if _, running := m.active[videoID]; running {
		m.mu.Unlock()
		logging.Warn("pipeline: video %s is already queued", videoID)
		return
	}
	m.active[videoID] = struct{}{}
	m.mu.Unlock()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer func() {
			m.mu.Lock()
			delete(m.active, videoID)
			m.mu.Unlock()
		}()

		select {
		case <-m.base.Done():
			logging.Warn("pipeline: shutdown before video %s started", videoID)
			return
		default:
		}

		select {
		case m.sem <- struct{}{}:
			defer func() { <-m.sem }()
		case <-m.base.Done():
			logging.Warn("pipeline: shutdown before video %s started", videoID)
			return
		}

		m.run(videoID, ownerID)
	}()
}

// IsActive reports whether a video is queued or mid-run.
func (m *Manager) IsActive(videoID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.active[videoID]
	return ok
}

// Shutdown cancels queued work and waits for in-flight runs to finish,
// up to the deadline of ctx.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.cancel()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// run executes the full pipeline for one video: transcode, poster,
// classify, finalize. Transcode failures are not fatal; whatever
// renditions were produced stay and playback falls back to the source
// file for the rest.
func (m *Manager) run(videoID, ownerID string) {
	started := time.Now()
	metrics.PipelineRunsActive.Inc()
	defer metrics.PipelineRunsActive.Dec()
	defer func() {
		metrics.PipelineRunDuration.Observe(time.Since(started).Seconds())
	}()

	ctx := m.base

	video, err := m.store.GetVideo(ctx, videoID)
	if err != nil {
		logging.Error("pipeline: load video %s: %v", videoID, err)
		metrics.PipelineRunsTotal.WithLabelValues("error").Inc()
		return
	}

	if err := m.store.MarkProcessing(ctx, videoID); err != nil {
		if errors.Is(err, database.ErrIllegalTransition) {
			logging.Warn("pipeline: video %s is not in the uploaded state, skipping", videoID)
		} else {
			logging.Error("pipeline: mark processing %s: %v", videoID, err)
		}
		metrics.PipelineRunsTotal.WithLabelValues("error").Inc()
		return
	}

	logging.Info("pipeline: processing video %s (%s)", videoID, video.OriginalFilename)

	tracker := newProgressTracker()
	stopProgress := m.reportProgress(ctx, videoID, ownerID, tracker)

	outputDir := filepath.Join(m.cfg.UploadDir, transcoder.CompressedDirName)
	baseName := video.StoredFilename

	results, transcodeErr := m.engine.Transcode(ctx, transcoder.Request{
		InputPath:  video.SourcePath,
		OutputDir:  outputDir,
		BaseName:   baseName,
		OnProgress: tracker.observe,
		OnVariant: func(quality mediatypes.Quality, outputPath string) {
			if err := m.store.SetVariant(ctx, videoID, quality, outputPath); err != nil {
				logging.Error("pipeline: record %s rendition of %s: %v", quality, videoID, err)
			}
		},
	})

	stopProgress()

	if transcodeErr != nil {
		if ctx.Err() != nil {
			logging.Warn("pipeline: video %s interrupted by shutdown", videoID)
			metrics.PipelineRunsTotal.WithLabelValues("interrupted").Inc()
			return
		}
		logging.Error("pipeline: transcode %s produced %d of %d renditions: %v",
			videoID, len(results), len(transcoder.Profiles), transcodeErr)
	}

	if posterPath, err := m.engine.ExtractPoster(ctx, video.SourcePath, outputDir, baseName); err != nil {
		logging.Warn("pipeline: poster for %s: %v", videoID, err)
	} else if err := m.store.SetThumbnail(ctx, videoID, posterPath); err != nil {
		logging.Error("pipeline: record poster of %s: %v", videoID, err)
	}

	sensitivity, err := m.classifier.Classify(ctx, videoID)
	if err != nil {
		logging.Error("pipeline: classify %s: %v", videoID, err)
		sensitivity = database.SensitivityUnknown
	}

	status := database.StatusCompleted
	if sensitivity == database.SensitivityFlagged {
		status = database.StatusFailed
	}

	if err := m.store.Finalize(ctx, videoID, status, sensitivity); err != nil {
		logging.Error("pipeline: finalize %s: %v", videoID, err)
		metrics.PipelineRunsTotal.WithLabelValues("error").Inc()
		return
	}

	m.hub.Publish(ownerID, notify.EventCompleted, notify.CompletedPayload{
		VideoID:     videoID,
		Status:      string(status),
		Sensitivity: string(sensitivity),
	})

	metrics.PipelineRunsTotal.WithLabelValues(string(status)).Inc()
	logging.Info("pipeline: video %s finished as %s (%s) in %s",
		videoID, status, sensitivity, time.Since(started).Round(time.Millisecond))
}

// reportProgress persists and publishes progress on a fixed interval
// until the returned stop function is called. Progress moves through
// checkpoints between 10 and 90; 0 belongs to upload and 100 to
// finalization. When ffmpeg reports real completion fractions those
// drive the checkpoints, otherwise each tick advances one step so the
// client still sees movement.
func (m *Manager) reportProgress(ctx context.Context, videoID, ownerID string, tracker *progressTracker) (stop func()) {
	done := make(chan struct{})
	finished := make(chan struct{})

	go func() {
		defer close(finished)

		ticker := time.NewTicker(m.cfg.ProgressInterval)
		defer ticker.Stop()

		last := 0
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
			}

			pct := tracker.percent(last)
			if pct <= last {
				continue
			}
			last = pct

			if err := m.store.UpdateProgress(ctx, videoID, pct); err != nil {
				logging.Warn("pipeline: persist progress %d%% for %s: %v", pct, videoID, err)
				continue
			}
			// Persist first, then notify, so a client that reloads after
			// seeing the event never observes an older value.
			m.hub.Publish(ownerID, notify.EventProgress, notify.ProgressPayload{
				VideoID:  videoID,
				Progress: pct,
				Status:   string(database.StatusProcessing),
			})
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			close(done)
			<-finished
		})
	}
}

// progressTracker aggregates per-rendition completion fractions.
type progressTracker struct {
	mu       sync.Mutex
	fraction map[mediatypes.Quality]float64
	reported bool
}

func newProgressTracker() *progressTracker {
	return &progressTracker{fraction: make(map[mediatypes.Quality]float64)}
}

// observe records one rendition's completion fraction.
func (p *progressTracker) observe(quality mediatypes.Quality, fraction float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if fraction > p.fraction[quality] {
		p.fraction[quality] = fraction
	}
	p.reported = true
}

// percent maps the mean rendition fraction onto the 10..90 checkpoint
// band, rounded down to the nearest checkpoint. Without any real
// measurements it steps one checkpoint past the previous value so
// progress never stalls at zero.
func (p *progressTracker) percent(last int) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.reported {
		next := last + 10
		if next > 90 {
			next = 90
		}
		if next < 10 {
			next = 10
		}
		return next
	}

	var sum float64
	for _, profile := range transcoder.Profiles {
		f := p.fraction[profile.Quality]
		if f > 1 {
			f = 1
		}
		sum += f
	}
	mean := sum / float64(len(transcoder.Profiles))

	pct := 10 + int(mean*80)
	pct -= pct % 10
	if pct > 90 {
		pct = 90
	}
	if pct < 10 {
		pct = 10
	}
	return pct
}

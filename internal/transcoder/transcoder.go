package transcoder

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"clipflow/internal/logging"
	"clipflow/internal/mediatypes"
	"clipflow/internal/metrics"
)

// Profile describes one fixed output rendition.
type Profile struct {
	Quality mediatypes.Quality
	Size    string // WxH passed to ffmpeg -s
	Bitrate string // target video bitrate
}

// Profiles are the three renditions produced for every upload.
var Profiles = []Profile{
	{Quality: mediatypes.Quality360, Size: "640x360", Bitrate: "800k"},
	{Quality: mediatypes.Quality720, Size: "1280x720", Bitrate: "1500k"},
	{Quality: mediatypes.Quality1080, Size: "1920x1080", Bitrate: "3000k"},
}

// CompressedDirName is the subdirectory, alongside the source file, that
// receives rendition output.
const CompressedDirName = "compressed"

// Error reports a failed variant encode.
type Error struct {
	Variant mediatypes.Quality
	Err     error
}

func (e *Error) Error() string {
	return fmt.Sprintf("transcode %s: %v", e.Variant, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// ProgressFunc receives fractional per-variant progress in [0,1].
type ProgressFunc func(quality mediatypes.Quality, fraction float64)

// VariantFunc is invoked as each rendition finishes, before the full
// Transcode call returns. Callers use it to persist partial results.
type VariantFunc func(quality mediatypes.Quality, outputPath string)

// Request describes one transcode invocation.
type Request struct {
	InputPath string
	OutputDir string
	BaseName  string

	// OnProgress, if non-nil, receives per-variant progress updates.
	OnProgress ProgressFunc
	// OnVariant, if non-nil, is called once per completed rendition.
	OnVariant VariantFunc
}

// Transcoder produces resolution variants of uploaded videos via ffmpeg.
type Transcoder struct {
	// runJob is swapped out by tests to avoid invoking ffmpeg.
	runJob func(ctx context.Context, profile Profile, req Request, duration float64) error
}

// New creates a Transcoder that shells out to ffmpeg/ffprobe.
func New() *Transcoder {
	t := &Transcoder{}
	t.runJob = t.runFFmpeg
	return t
}

// Transcode encodes all profiles concurrently against the same input and
// returns the mapping of produced renditions. The first job failure
// cancels the shared context, which kills sibling ffmpeg processes; the
// partial output of any failed or canceled job is removed. Renditions
// that finished before the failure are kept and reported in the result
// alongside the error.
func (t *Transcoder) Transcode(ctx context.Context, req Request) (map[mediatypes.Quality]string, error) {
	if err := os.MkdirAll(req.OutputDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	// Duration is only needed to scale progress; a probe failure just
	// disables progress reporting.
	duration, err := t.ProbeDuration(ctx, req.InputPath)
	if err != nil {
		logging.Warn("ffprobe failed for %s, progress reporting disabled: %v", req.InputPath, err)
		duration = 0
	}

	var (
		mu      sync.Mutex
		results = make(map[mediatypes.Quality]string, len(Profiles))
	)

	group, groupCtx := errgroup.WithContext(ctx)

	for _, profile := range Profiles {
		profile := profile
		group.Go(func() error {
			start := time.Now()
			outPath := OutputPath(req.OutputDir, profile.Quality, req.BaseName)

			if err := t.runJob(groupCtx, profile, req, duration); err != nil {
				metrics.TranscodeJobsTotal.WithLabelValues(string(profile.Quality), "error").Inc()
				removePartial(outPath)
				return &Error{Variant: profile.Quality, Err: err}
			}

			metrics.TranscodeJobsTotal.WithLabelValues(string(profile.Quality), "success").Inc()
			metrics.TranscodeJobDuration.WithLabelValues(string(profile.Quality)).Observe(time.Since(start).Seconds())

			mu.Lock()
			results[profile.Quality] = outPath
			mu.Unlock()

			if req.OnVariant != nil {
				req.OnVariant(profile.Quality, outPath)
			}
			return nil
		})
	}

	err = group.Wait()
	return results, err
}

// OutputPath returns the rendition path for a quality and base name.
func OutputPath(outputDir string, quality mediatypes.Quality, baseName string) string {
	return filepath.Join(outputDir, fmt.Sprintf("%s-%s", quality, baseName))
}

// runFFmpeg executes one variant encode, feeding progress from ffmpeg's
// machine-readable progress output when the input duration is known.
func (t *Transcoder) runFFmpeg(ctx context.Context, profile Profile, req Request, duration float64) error {
	outPath := OutputPath(req.OutputDir, profile.Quality, req.BaseName)

	args := []string{
		"-y",
		"-i", req.InputPath,
		"-preset", "fast",
		"-b:v", profile.Bitrate,
		"-s", profile.Size,
		"-c:a", "aac",
		"-movflags", "+faststart",
		"-loglevel", "error",
		"-nostats",
		"-progress", "pipe:1",
		outPath,
	}

	cmd := exec.CommandContext(ctx, "ffmpeg", args...)

	var stderr strings.Builder
	cmd.Stderr = &stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to create stdout pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start ffmpeg: %w", err)
	}

	// Drain progress output even when nobody listens, otherwise ffmpeg
	// blocks on a full pipe.
	scanner := bufio.NewScanner(stdout)
	for scanner.Scan() {
		line := scanner.Text()
		if req.OnProgress == nil || duration <= 0 {
			continue
		}
		if value, ok := strings.CutPrefix(line, "out_time_us="); ok {
			us, parseErr := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
			if parseErr != nil {
				continue
			}
			fraction := (float64(us) / 1e6) / duration
			if fraction > 1 {
				fraction = 1
			}
			req.OnProgress(profile.Quality, fraction)
		}
	}

	if err := cmd.Wait(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			return fmt.Errorf("ffmpeg: %w: %s", err, msg)
		}
		return fmt.Errorf("ffmpeg: %w", err)
	}

	if req.OnProgress != nil && duration > 0 {
		req.OnProgress(profile.Quality, 1)
	}
	return nil
}

// ProbeDuration returns the input duration in seconds via ffprobe.
func (t *Transcoder) ProbeDuration(ctx context.Context, inputPath string) (float64, error) {
	cmd := exec.CommandContext(ctx, "ffprobe",
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		inputPath,
	)

	out, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("ffprobe: %w", err)
	}

	duration, err := strconv.ParseFloat(strings.TrimSpace(string(out)), 64)
	if err != nil {
		return 0, fmt.Errorf("ffprobe returned unparseable duration %q: %w", strings.TrimSpace(string(out)), err)
	}
	return duration, nil
}

// removePartial deletes the output of a failed or canceled encode job.
func removePartial(path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		logging.Warn("failed to remove partial output %s: %v", path, err)
	}
}

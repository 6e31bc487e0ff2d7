package transcoder

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
)

// Poster thumbnail dimensions. Height is derived from the aspect ratio.
const posterWidth = 320

// ExtractPoster grabs a frame one second into the video, scales it to a
// poster thumbnail, and writes it next to the renditions. Returns the
// thumbnail path.
func (t *Transcoder) ExtractPoster(ctx context.Context, inputPath, outputDir, baseName string) (string, error) {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}

	stem := strings.TrimSuffix(baseName, filepath.Ext(baseName))
	framePath := filepath.Join(outputDir, stem+"-frame.jpg")
	thumbPath := filepath.Join(outputDir, stem+"-thumb.jpg")

	cmd := exec.CommandContext(ctx, "ffmpeg",
		"-y",
		"-ss", "1",
		"-i", inputPath,
		"-vframes", "1",
		"-loglevel", "error",
		framePath,
	)

	var stderr strings.Builder
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			return "", fmt.Errorf("ffmpeg frame extraction: %w: %s", err, msg)
		}
		return "", fmt.Errorf("ffmpeg frame extraction: %w", err)
	}
	defer func() {
		_ = os.Remove(framePath)
	}()

	frame, err := imaging.Open(framePath)
	if err != nil {
		return "", fmt.Errorf("failed to open extracted frame: %w", err)
	}

	thumb := imaging.Resize(frame, posterWidth, 0, imaging.Lanczos)
	if err := imaging.Save(thumb, thumbPath, imaging.JPEGQuality(85)); err != nil {
		return "", fmt.Errorf("failed to save thumbnail: %w", err)
	}

	return thumbPath, nil
}

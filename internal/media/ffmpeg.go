package media

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// FFmpegConfig holds FFmpeg-related configuration
type FFmpegConfig struct {
	FFmpegPath  string
	FFprobePath string
	Timeout     time.Duration
}

// DefaultFFmpegConfig returns the default FFmpeg configuration
func DefaultFFmpegConfig() *FFmpegConfig {
	return &FFmpegConfig{
		FFmpegPath:  "ffmpeg",
		FFprobePath: "ffprobe",
		Timeout:     30 * time.Second,
	}
}

// FFmpegProcessor runs ffmpeg and ffprobe
type FFmpegProcessor struct {
	config *FFmpegConfig
}

// NewFFmpegProcessor creates a new FFmpeg processor
func NewFFmpegProcessor(config *FFmpegConfig) *FFmpegProcessor {
	if config == nil {
		config = DefaultFFmpegConfig()
	}
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}

	return &FFmpegProcessor{
		config: config,
	}
}

// Available reports whether both binaries can be found
func (fp *FFmpegProcessor) Available() bool {
	if _, err := exec.LookPath(fp.config.FFmpegPath); err != nil {
		return false
	}
	_, err := exec.LookPath(fp.config.FFprobePath)
	return err == nil
}

// ProbeDuration returns the container duration of a video in seconds
func (fp *FFmpegProcessor) ProbeDuration(ctx context.Context, inputPath string) (float64, error) {
	out, err := fp.run(ctx, fp.config.FFprobePath,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		inputPath,
	)
	if err != nil {
		return 0, fmt.Errorf("ffprobe failed: %w", err)
	}

	duration, err := strconv.ParseFloat(strings.TrimSpace(out), 64)
	if err != nil {
		return 0, fmt.Errorf("unexpected ffprobe duration %q: %w", strings.TrimSpace(out), err)
	}
	if duration <= 0 {
		return 0, fmt.Errorf("video reports non-positive duration %v", duration)
	}
	return duration, nil
}

// ExtractFrame writes the frame at seek seconds to outputPath, filtered by videoFilter
func (fp *FFmpegProcessor) ExtractFrame(ctx context.Context, inputPath, outputPath string, seek float64, videoFilter string) error {
	args := []string{"-y", "-v", "error"}
	if seek > 0 {
		// input seeking is fast and accurate enough for a preview
		args = append(args, "-ss", strconv.FormatFloat(seek, 'f', 3, 64))
	}
	args = append(args,
		"-i", inputPath,
		"-frames:v", "1",
		"-vf", videoFilter,
		"-q:v", "3",
		outputPath,
	)

	if _, err := fp.run(ctx, fp.config.FFmpegPath, args...); err != nil {
		return fmt.Errorf("ffmpeg frame extraction failed: %w", err)
	}
	return nil
}

func (fp *FFmpegProcessor) run(ctx context.Context, binary string, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, fp.config.Timeout)
	defer cancel()

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, binary, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	// children that inherited the pipes must not hold Wait past the deadline
	cmd.WaitDelay = time.Second

	if err := cmd.Run(); err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return "", fmt.Errorf("%s timed out after %v", binary, fp.config.Timeout)
		}
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return "", fmt.Errorf("%w: %s", err, msg)
		}
		return "", err
	}
	return stdout.String(), nil
}

package media

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"reelvault/internal/config"
	"reelvault/internal/logging"
	"reelvault/internal/metrics"
	"reelvault/internal/tracing"
)

// Strategy names accepted in thumbnails.strategies
const (
	StrategyFrame       = "frame"
	StrategyFirstFrame  = "first_frame"
	StrategyPlaceholder = "placeholder"
)

// AutoThumbPrefix marks generated thumbnails; custom uploads never carry it
const AutoThumbPrefix = "auto_thumb_"

// frameSeekCap is the latest point (seconds) a preview frame is taken from
const frameSeekCap = 10.0

// ThumbnailRequest describes the video a thumbnail is made for
type ThumbnailRequest struct {
	// VideoPath is the absolute path of the stored video
	VideoPath string
	// VideoFile is the path relative to the upload directory, as stored on the movie
	VideoFile string
	Title     string
}

// ThumbnailResult describes a generated thumbnail
type ThumbnailResult struct {
	File      string `json:"file"`
	Strategy  string `json:"strategy"`
	RealFrame bool   `json:"real_frame"`
}

// Strategy is one step of the thumbnail fallback chain
type Strategy interface {
	Name() string
	// RealFrame reports whether the strategy produces an actual video frame
	RealFrame() bool
	Generate(ctx context.Context, req ThumbnailRequest, outputPath string) error
}

// ThumbnailGenerator tries its strategies in order until one succeeds
type ThumbnailGenerator struct {
	thumbnailDir string
	timeout      time.Duration
	strategies   []Strategy
	logger       *zerolog.Logger
}

// NewThumbnailGenerator builds the configured chain
func NewThumbnailGenerator(cfg config.ThumbnailConfig, thumbnailDir string) (*ThumbnailGenerator, error) {
	ffmpeg := NewFFmpegProcessor(&FFmpegConfig{
		FFmpegPath:  cfg.FFmpegPath,
		FFprobePath: cfg.FFprobePath,
		Timeout:     cfg.Timeout,
	})

	strategies := make([]Strategy, 0, len(cfg.Strategies))
	for _, name := range cfg.Strategies {
		switch strings.TrimSpace(name) {
		case StrategyFrame:
			strategies = append(strategies, &FrameStrategy{ffmpeg: ffmpeg, width: cfg.Width})
		case StrategyFirstFrame:
			strategies = append(strategies, &FirstFrameStrategy{ffmpeg: ffmpeg, width: cfg.Width, height: cfg.Height})
		case StrategyPlaceholder:
			strategies = append(strategies, &PlaceholderStrategy{width: cfg.Width, height: cfg.Height, quality: cfg.Quality})
		default:
			return nil, fmt.Errorf("unknown thumbnail strategy %q", name)
		}
	}

	gen := NewThumbnailGeneratorWithStrategies(thumbnailDir, cfg.Timeout, strategies...)
	if len(strategies) > 0 && strategies[0].RealFrame() && !ffmpeg.Available() {
		gen.logger.Warn().
			Str("ffmpeg", cfg.FFmpegPath).
			Str("ffprobe", cfg.FFprobePath).
			Msg("ffmpeg not found, frame thumbnails will fall back")
	}
	return gen, nil
}

// NewThumbnailGeneratorWithStrategies builds a chain from explicit strategies
func NewThumbnailGeneratorWithStrategies(thumbnailDir string, timeout time.Duration, strategies ...Strategy) *ThumbnailGenerator {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &ThumbnailGenerator{
		thumbnailDir: thumbnailDir,
		timeout:      timeout,
		strategies:   strategies,
		logger:       logging.WithModule("thumbnail"),
	}
}

// Strategies returns the strategy names in chain order
func (g *ThumbnailGenerator) Strategies() []string {
	names := make([]string, len(g.strategies))
	for i, s := range g.strategies {
		names[i] = s.Name()
	}
	return names
}

// ThumbnailName derives the generated thumbnail name from a stored video path
func ThumbnailName(videoFile string) string {
	stem := strings.TrimSuffix(videoFile, filepath.Ext(videoFile))
	stem = strings.NewReplacer("/", "_", "\\", "_").Replace(stem)
	return AutoThumbPrefix + stem + ".jpg"
}

// Generate runs the chain. It returns a nil result when every strategy
// failed; the movie then simply has no thumbnail.
func (g *ThumbnailGenerator) Generate(ctx context.Context, req ThumbnailRequest) (*ThumbnailResult, error) {
	if err := os.MkdirAll(g.thumbnailDir, 0o755); err != nil {
		return nil, errors.Wrap(err, "failed to create thumbnail directory")
	}

	name := ThumbnailName(req.VideoFile)
	outputPath := filepath.Join(g.thumbnailDir, name)

	for _, strategy := range g.strategies {
		err := g.attempt(ctx, strategy, req, outputPath)
		if err == nil {
			metrics.ThumbnailAttempts.WithLabelValues(strategy.Name(), "success").Inc()
			g.logger.Info().
				Str("video", req.VideoFile).
				Str("strategy", strategy.Name()).
				Str("thumbnail", name).
				Msg("Thumbnail generated")
			return &ThumbnailResult{
				File:      name,
				Strategy:  strategy.Name(),
				RealFrame: strategy.RealFrame(),
			}, nil
		}

		metrics.ThumbnailAttempts.WithLabelValues(strategy.Name(), "failure").Inc()
		g.logger.Warn().Err(err).
			Str("video", req.VideoFile).
			Str("strategy", strategy.Name()).
			Msg("Thumbnail strategy failed")

		if ctx.Err() != nil {
			break
		}
	}

	g.logger.Warn().Str("video", req.VideoFile).Msg("All thumbnail strategies failed, movie keeps no thumbnail")
	return nil, nil
}

func (g *ThumbnailGenerator) attempt(ctx context.Context, strategy Strategy, req ThumbnailRequest, outputPath string) (err error) {
	ctx, span := tracing.Start(ctx, "media", "thumbnail."+strategy.Name(),
		tracing.ThumbnailAttrs(strategy.Name(), req.VideoPath)...)
	defer func() { tracing.EndSpan(span, err) }()

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	if err = strategy.Generate(ctx, req, outputPath); err != nil {
		_ = os.Remove(outputPath)
		return err
	}

	info, statErr := os.Stat(outputPath)
	if statErr != nil || info.Size() == 0 {
		_ = os.Remove(outputPath)
		return fmt.Errorf("strategy %s produced no image", strategy.Name())
	}
	return nil
}

// FrameStrategy grabs a frame at min(10s, 10% of the duration)
type FrameStrategy struct {
	ffmpeg *FFmpegProcessor
	width  int
}

func (s *FrameStrategy) Name() string    { return StrategyFrame }
func (s *FrameStrategy) RealFrame() bool { return true }

func (s *FrameStrategy) Generate(ctx context.Context, req ThumbnailRequest, outputPath string) error {
	seek := frameSeekCap
	if duration, err := s.ffmpeg.ProbeDuration(ctx, req.VideoPath); err == nil {
		seek = math.Min(frameSeekCap, duration*0.1)
	}
	return s.ffmpeg.ExtractFrame(ctx, req.VideoPath, outputPath, seek, fmt.Sprintf("scale=%d:-2", s.width))
}

// FirstFrameStrategy grabs the first frame, fitted into the thumbnail box
type FirstFrameStrategy struct {
	ffmpeg *FFmpegProcessor
	width  int
	height int
}

func (s *FirstFrameStrategy) Name() string    { return StrategyFirstFrame }
func (s *FirstFrameStrategy) RealFrame() bool { return true }

func (s *FirstFrameStrategy) Generate(ctx context.Context, req ThumbnailRequest, outputPath string) error {
	filter := fmt.Sprintf("scale=%d:%d:force_original_aspect_ratio=decrease", s.width, s.height)
	return s.ffmpeg.ExtractFrame(ctx, req.VideoPath, outputPath, 0, filter)
}

// PlaceholderStrategy renders a title card; it never reads the video
type PlaceholderStrategy struct {
	width   int
	height  int
	quality int
}

func (s *PlaceholderStrategy) Name() string    { return StrategyPlaceholder }
func (s *PlaceholderStrategy) RealFrame() bool { return false }

func (s *PlaceholderStrategy) Generate(ctx context.Context, req ThumbnailRequest, outputPath string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	f, err := os.Create(outputPath)
	if err != nil {
		return errors.Wrap(err, "failed to create placeholder file")
	}

	title := req.Title
	if title == "" {
		base := filepath.Base(req.VideoFile)
		title = strings.TrimSuffix(base, filepath.Ext(base))
	}

	if err := RenderPlaceholder(f, title, s.width, s.height, s.quality); err != nil {
		f.Close()
		return errors.Wrap(err, "failed to encode placeholder")
	}
	return errors.Wrap(f.Close(), "failed to write placeholder")
}

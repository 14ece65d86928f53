package audio

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path"

	"WaveFM/config"
	"WaveFM/logger"
	"WaveFM/model"
	"WaveFM/storage"

	"github.com/google/uuid"
)

// Transcoder produces fixed-bitrate MP3 renditions of a source audio file.
type Transcoder struct {
	ffmpegPath string
	bitrates   map[model.Quality]string
}

// NewTranscoder reads the per-tier target bitrates from configuration.
func NewTranscoder(cfg *config.Config) *Transcoder {
	return &Transcoder{
		ffmpegPath: cfg.FFmpegPath,
		bitrates: map[model.Quality]string{
			model.QualityLow:    cfg.TranscodeBitrateLow,
			model.QualityMedium: cfg.TranscodeBitrateMedium,
			model.QualityHigh:   cfg.TranscodeBitrateHigh,
		},
	}
}

// transcodeOrder keeps output deterministic for logs; tiers do not depend on
// each other.
var transcodeOrder = []model.Quality{model.QualityLow, model.QualityMedium, model.QualityHigh}

// TranscodeAll produces renditions for every tier and stores them under
// objectPrefix. Each tier is independent: a failed tier is logged and left
// out of the returned mapping while the others proceed. Object names carry a
// per-run id, so a re-transcode writes new objects and the previous files
// stay valid for in-flight readers until their paths are swapped out.
func (t *Transcoder) TranscodeAll(ctx context.Context, inputFile, objectPrefix string, store storage.Provider) map[model.Quality]string {
	runID := uuid.NewString()[:8]
	produced := make(map[model.Quality]string)

	for _, tier := range transcodeOrder {
		objectPath := path.Join(objectPrefix, fmt.Sprintf("%s-%s.mp3", tier, runID))

		if err := t.transcodeTier(ctx, inputFile, tier, objectPath, store); err != nil {
			logger.Warn("rendition transcode failed, tier will be absent",
				logger.String("inputFile", inputFile),
				logger.String("quality", string(tier)),
				logger.ErrorField(err))
			continue
		}

		produced[tier] = objectPath
		logger.Info("rendition produced",
			logger.String("quality", string(tier)),
			logger.String("objectPath", objectPath))
	}

	return produced
}

// transcodeTier encodes one rendition into a temp file and uploads it.
func (t *Transcoder) transcodeTier(ctx context.Context, inputFile string, tier model.Quality, objectPath string, store storage.Provider) error {
	bitrate, ok := t.bitrates[tier]
	if !ok {
		return fmt.Errorf("no bitrate configured for tier %s", tier)
	}

	tmp, err := os.CreateTemp("", fmt.Sprintf("wavefm_%s_*.mp3", tier))
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	tmp.Close()
	defer os.Remove(tmpPath)

	args := []string{
		"-y",
		"-i", inputFile,
		"-vn",
		"-c:a", "libmp3lame",
		"-b:a", bitrate,
		"-ar", "44100",
		"-ac", "2",
		"-f", "mp3",
		tmpPath,
	}

	cmd := exec.CommandContext(ctx, t.ffmpegPath, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("ffmpeg execution failed for %s: %w\nFFmpeg Error: %s", inputFile, err, stderr.String())
	}

	out, err := os.Open(tmpPath)
	if err != nil {
		return fmt.Errorf("failed to open transcoded file: %w", err)
	}
	defer out.Close()

	info, err := out.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat transcoded file: %w", err)
	}
	if info.Size() == 0 {
		return fmt.Errorf("ffmpeg produced an empty rendition for %s", inputFile)
	}

	if err := store.Save(ctx, objectPath, out, info.Size(), "audio/mpeg"); err != nil {
		return fmt.Errorf("failed to store rendition %s: %w", objectPath, err)
	}

	return nil
}

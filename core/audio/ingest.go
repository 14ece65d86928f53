package audio

import (
	"context"
	"fmt"
	"sync"
	"time"

	"WaveFM/cache"
	"WaveFM/logger"
	"WaveFM/model"
	"WaveFM/repository"
	"WaveFM/storage"
)

// Ingestor derives all media artifacts for an uploaded track: source
// metadata, the waveform envelope, and the three bitrate renditions. The
// sub-steps are independent and best-effort; the rendition store is updated
// exactly once, after every sub-step has settled, so readers never observe a
// partially ingested track.
type Ingestor struct {
	prober     *Prober
	waveform   *WaveformGenerator
	transcoder *Transcoder
	store      storage.Provider
	trackRepo  repository.TrackRepository
	trackCache *cache.TrackCache
}

// NewIngestor wires the ingest pipeline.
func NewIngestor(
	prober *Prober,
	waveform *WaveformGenerator,
	transcoder *Transcoder,
	store storage.Provider,
	trackRepo repository.TrackRepository,
	trackCache *cache.TrackCache,
) *Ingestor {
	return &Ingestor{
		prober:     prober,
		waveform:   waveform,
		transcoder: transcoder,
		store:      store,
		trackRepo:  trackRepo,
		trackCache: trackCache,
	}
}

// Ingest runs the full pipeline against a local copy of the source file.
// durationEstimate is an optional client-supplied hint used when probing
// fails; pass 0 when unknown.
//
// Sub-step failures never fail the ingest: a failed probe keeps the
// estimate, a failed waveform stays empty, a failed tier stays absent.
// Only the final metadata write can return an error.
func (i *Ingestor) Ingest(ctx context.Context, trackID int64, localSourcePath string, durationEstimate int) error {
	start := time.Now()
	logger.Info("starting ingest",
		logger.Int64("trackId", trackID),
		logger.String("sourcePath", localSourcePath))

	var (
		wg         sync.WaitGroup
		probe      ProbeResult
		envelope   []float64
		renditions map[model.Quality]string
	)

	wg.Add(3)
	go func() {
		defer wg.Done()
		probe = i.prober.Probe(ctx, localSourcePath, durationEstimate)
	}()
	go func() {
		defer wg.Done()
		envelope = i.waveform.Generate(ctx, localSourcePath)
	}()
	go func() {
		defer wg.Done()
		renditions = i.transcoder.TranscodeAll(ctx, localSourcePath, renditionPrefix(trackID), i.store)
	}()
	wg.Wait()

	artifacts := &repository.MediaArtifacts{
		DurationSeconds:     probe.DurationSeconds,
		BitrateKbps:         probe.BitrateKbps,
		SampleRateHz:        probe.SampleRateHz,
		Waveform:            envelope,
		RenditionLowPath:    renditions[model.QualityLow],
		RenditionMediumPath: renditions[model.QualityMedium],
		RenditionHighPath:   renditions[model.QualityHigh],
		Status:              "completed",
	}

	if err := i.trackRepo.UpdateMediaArtifacts(trackID, artifacts); err != nil {
		return fmt.Errorf("failed to record ingest artifacts for track %d: %w", trackID, err)
	}

	// Drop any stale cached copy so the next stream request sees the new
	// rendition paths immediately.
	if err := i.trackCache.Invalidate(ctx, trackID); err != nil {
		logger.Warn("failed to invalidate track cache after ingest",
			logger.Int64("trackId", trackID),
			logger.ErrorField(err))
	}

	logger.Info("ingest finished",
		logger.Int64("trackId", trackID),
		logger.Int("durationSeconds", probe.DurationSeconds),
		logger.Int("waveformPoints", len(envelope)),
		logger.Int("renditions", len(renditions)),
		logger.Duration("elapsed", time.Since(start)))
	return nil
}

// renditionPrefix is where a track's derived encodings live in storage.
func renditionPrefix(trackID int64) string {
	return fmt.Sprintf("renditions/%d", trackID)
}

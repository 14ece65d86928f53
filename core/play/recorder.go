package play

import (
	"context"
	"time"

	"WaveFM/logger"
	"WaveFM/repository"
)

// Recorder turns debounced play signals into persistent state: the track's
// play counter and an open play-history row. All of it is fire-and-forget
// from the caller's perspective; errors are logged and swallowed so play
// accounting can never fail or delay a stream response.
type Recorder struct {
	debouncer   Debouncer
	trackRepo   repository.TrackRepository
	historyRepo repository.PlayHistoryRepository
}

// NewRecorder wires a Recorder.
func NewRecorder(debouncer Debouncer, trackRepo repository.TrackRepository, historyRepo repository.PlayHistoryRepository) *Recorder {
	return &Recorder{
		debouncer:   debouncer,
		trackRepo:   trackRepo,
		historyRepo: historyRepo,
	}
}

// NotifyPlayStart is called when a stream request looks like the start of
// playback. Safe to call from a goroutine; it uses its own timeout context
// rather than the request's, which may already be gone.
func (r *Recorder) NotifyPlayStart(trackID, userID int64) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if !r.debouncer.ShouldCount(ctx, trackID, userID) {
		return
	}

	if err := r.trackRepo.IncrementPlayCount(trackID); err != nil {
		logger.Warn("failed to increment play count",
			logger.Int64("trackId", trackID),
			logger.Int64("userId", userID),
			logger.ErrorField(err))
		return
	}

	if err := r.historyRepo.OpenEntry(userID, trackID); err != nil {
		logger.Warn("failed to open play history entry",
			logger.Int64("trackId", trackID),
			logger.Int64("userId", userID),
			logger.ErrorField(err))
	}
}

// NotifyPlayComplete records the listened duration reported by the client
// when playback ends or the quality switches.
func (r *Recorder) NotifyPlayComplete(trackID, userID int64, listenedSeconds int) {
	if err := r.historyRepo.CloseLatest(userID, trackID, listenedSeconds); err != nil {
		logger.Warn("failed to close play history entry",
			logger.Int64("trackId", trackID),
			logger.Int64("userId", userID),
			logger.ErrorField(err))
	}
}

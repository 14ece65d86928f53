package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"WaveFM/logger"
	"WaveFM/model"

	"github.com/gorilla/mux"
)

var (
	errInvalidRange        = errors.New("invalid range")
	errRangeNotSatisfiable = errors.New("range not satisfiable")
)

// parseByteRange parses a "bytes=<start>-[<end>]" header. The start offset
// is required. A missing end is NOT treated as "to EOF": it is capped at
// start+chunkSize-1 so open-ended requests are answered one bounded chunk at
// a time, which limits per-response memory and bandwidth and pushes players
// into incremental range requests. An explicit end is clamped to the file.
func parseByteRange(header string, size, chunkSize int64) (start, end int64, err error) {
	spec, ok := strings.CutPrefix(header, "bytes=")
	if !ok || strings.Contains(spec, ",") {
		return 0, 0, errInvalidRange
	}

	startStr, endStr, ok := strings.Cut(spec, "-")
	if !ok || startStr == "" {
		return 0, 0, errInvalidRange
	}

	start, err = strconv.ParseInt(startStr, 10, 64)
	if err != nil || start < 0 {
		return 0, 0, errInvalidRange
	}
	if start >= size {
		return 0, 0, errRangeNotSatisfiable
	}

	if endStr == "" {
		end = start + chunkSize - 1
	} else {
		end, err = strconv.ParseInt(endStr, 10, 64)
		if err != nil || end < start {
			return 0, 0, errInvalidRange
		}
	}
	if end > size-1 {
		end = size - 1
	}

	return start, end, nil
}

// getTrack looks the track up through the cache first, falling through to
// the repository and repopulating the cache on a miss. Cached entries may be
// stale up to the configured TTL; that is safe because rendition files are
// immutable and re-ingest swaps paths rather than rewriting files.
func (h *APIHandler) getTrack(ctx context.Context, trackID int64) (*model.Track, error) {
	if track, err := h.trackCache.Get(ctx, trackID); err == nil && track != nil {
		return track, nil
	}

	track, err := h.trackRepo.GetTrackByID(trackID)
	if err != nil {
		return nil, err
	}
	if track == nil {
		return nil, nil
	}

	if err := h.trackCache.Set(ctx, track); err != nil {
		logger.Warn("failed to populate track cache",
			logger.Int64("trackId", track.ID),
			logger.ErrorField(err))
	}
	return track, nil
}

// setStreamHeaders sets the media headers shared by the 200 and 206 paths.
// Rendition files are immutable once written, so intermediaries may cache
// responses for a day. Set only after range validation and the seek succeed:
// error bodies must never go out with a public cache directive.
func setStreamHeaders(w http.ResponseWriter, objectPath string, duration int) {
	w.Header().Set("Content-Type", contentTypeForPath(objectPath))
	w.Header().Set("Accept-Ranges", "bytes")
	w.Header().Set("Cache-Control", "public, max-age=86400")
	w.Header().Set("X-Content-Duration", strconv.Itoa(duration))
}

// parseTrackID reads the {track_id} path variable.
func parseTrackID(r *http.Request) (int64, error) {
	return strconv.ParseInt(mux.Vars(r)["track_id"], 10, 64)
}

// StreamTrackHandler serves one rendition of a track with byte-range
// semantics: 200 with the whole file when no Range header is present, 206
// with a bounded slice otherwise. Missing tiers degrade through the
// rendition fallback chain; a track with no file at all is a data-integrity
// problem reported as 404.
func (h *APIHandler) StreamTrackHandler(w http.ResponseWriter, r *http.Request) {
	trackID, err := parseTrackID(r)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "Invalid track id")
		return
	}

	track, err := h.getTrack(r.Context(), trackID)
	if err != nil {
		logger.Error("failed to look up track",
			logger.Int64("trackId", trackID),
			logger.ErrorField(err))
		writeJSONError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	if track == nil {
		writeJSONError(w, http.StatusNotFound, "Track not found")
		return
	}

	// Anonymous listening is allowed for public tracks only.
	callerID, _ := GetUserIDFromContext(r.Context())
	if track.IsPrivate() && callerID != track.UserID {
		writeJSONError(w, http.StatusForbidden, "Track is private")
		return
	}

	quality := model.ParseQuality(r.URL.Query().Get("quality"))
	objectPath := track.ResolveRendition(quality)
	if objectPath == "" {
		// Row exists but no file was ever recorded: failed ingest.
		logger.Error("track has no playable file",
			logger.Int64("trackId", trackID),
			logger.String("quality", string(quality)))
		writeJSONError(w, http.StatusNotFound, "Track not found")
		return
	}

	reader, size, err := h.store.Open(r.Context(), objectPath)
	if err != nil {
		logger.Error("failed to open rendition",
			logger.Int64("trackId", trackID),
			logger.String("objectPath", objectPath),
			logger.ErrorField(err))
		writeJSONError(w, http.StatusNotFound, "Track not found")
		return
	}
	defer reader.Close()

	rangeHeader := r.Header.Get("Range")
	if rangeHeader == "" {
		setStreamHeaders(w, objectPath, track.Duration)
		w.Header().Set("Content-Length", strconv.FormatInt(size, 10))
		w.WriteHeader(http.StatusOK)
		h.notifyPlayStart(track, callerID, 0)
		if _, err := io.Copy(w, reader); err != nil {
			// Mid-stream disconnects are normal player behavior.
			logger.Debug("stream copy interrupted",
				logger.Int64("trackId", trackID),
				logger.ErrorField(err))
		}
		return
	}

	start, end, err := parseByteRange(rangeHeader, size, h.cfg.StreamChunkSize)
	if errors.Is(err, errRangeNotSatisfiable) {
		w.Header().Set("Content-Range", fmt.Sprintf("bytes */%d", size))
		writeJSONError(w, http.StatusRequestedRangeNotSatisfiable, "Range not satisfiable")
		return
	}
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "Invalid Range header")
		return
	}

	if _, err := reader.Seek(start, io.SeekStart); err != nil {
		logger.Error("failed to seek rendition",
			logger.Int64("trackId", trackID),
			logger.String("objectPath", objectPath),
			logger.ErrorField(err))
		writeJSONError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	length := end - start + 1
	setStreamHeaders(w, objectPath, track.Duration)
	w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", start, end, size))
	w.Header().Set("Content-Length", strconv.FormatInt(length, 10))
	w.WriteHeader(http.StatusPartialContent)

	h.notifyPlayStart(track, callerID, start)

	if _, err := io.CopyN(w, reader, length); err != nil {
		logger.Debug("stream range copy interrupted",
			logger.Int64("trackId", trackID),
			logger.ErrorField(err))
	}
}

// notifyPlayStart fires the play signal when a request looks like the start
// of playback: an authenticated caller reading near the head of the file.
// This is an approximation tied to range mechanics, not an explicit
// player-reported event; the completion endpoint carries the explicit
// signal. Asynchronous so play accounting never delays the stream.
func (h *APIHandler) notifyPlayStart(track *model.Track, callerID, offset int64) {
	if callerID == 0 || offset >= h.cfg.PlayStartThreshold {
		return
	}
	go h.recorder.NotifyPlayStart(track.ID, callerID)
}

// CompleteRequest is the body of the completion signal.
type CompleteRequest struct {
	DurationSeconds int `json:"durationSeconds"`
}

// CompletePlayHandler lets the client report the actually listened duration
// when playback ends or the quality changes. Always 200; an unauthenticated
// call is an idempotent no-op.
func (h *APIHandler) CompletePlayHandler(w http.ResponseWriter, r *http.Request) {
	trackID, err := parseTrackID(r)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "Invalid track id")
		return
	}

	var req CompleteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	callerID, err := GetUserIDFromContext(r.Context())
	if err != nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		return
	}

	h.recorder.NotifyPlayComplete(trackID, callerID, req.DurationSeconds)
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// WaveformHandler returns the amplitude envelope for rendering. An empty
// array is a valid response (waveform generation failed or is pending).
func (h *APIHandler) WaveformHandler(w http.ResponseWriter, r *http.Request) {
	trackID, err := parseTrackID(r)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "Invalid track id")
		return
	}

	track, err := h.getTrack(r.Context(), trackID)
	if err != nil {
		logger.Error("failed to look up track",
			logger.Int64("trackId", trackID),
			logger.ErrorField(err))
		writeJSONError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	if track == nil {
		writeJSONError(w, http.StatusNotFound, "Track not found")
		return
	}

	callerID, _ := GetUserIDFromContext(r.Context())
	if track.IsPrivate() && callerID != track.UserID {
		writeJSONError(w, http.StatusForbidden, "Track is private")
		return
	}

	waveform := track.Waveform
	if waveform == nil {
		waveform = []float64{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"waveform": waveform})
}

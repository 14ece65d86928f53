package server

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"regexp"
	"strconv"
	"strings"
	"time"

	"WaveFM/cache"
	"WaveFM/config"
	"WaveFM/core/audio"
	"WaveFM/core/play"
	"WaveFM/logger"
	"WaveFM/model"
	"WaveFM/repository"
	"WaveFM/storage"
)

// APIHandler carries the dependencies of all HTTP handlers.
type APIHandler struct {
	trackRepo   repository.TrackRepository
	userRepo    repository.UserRepository
	historyRepo repository.PlayHistoryRepository
	ingestor    *audio.Ingestor
	recorder    *play.Recorder
	store       storage.Provider
	trackCache  *cache.TrackCache
	cfg         *config.Config
}

// NewAPIHandler creates the API handler.
func NewAPIHandler(
	trackRepo repository.TrackRepository,
	userRepo repository.UserRepository,
	historyRepo repository.PlayHistoryRepository,
	ingestor *audio.Ingestor,
	recorder *play.Recorder,
	store storage.Provider,
	trackCache *cache.TrackCache,
	cfg *config.Config,
) *APIHandler {
	return &APIHandler{
		trackRepo:   trackRepo,
		userRepo:    userRepo,
		historyRepo: historyRepo,
		ingestor:    ingestor,
		recorder:    recorder,
		store:       store,
		trackCache:  trackCache,
		cfg:         cfg,
	}
}

var nonAlphaNumeric = regexp.MustCompile(`[^a-zA-Z0-9_\-\.]`)
var multipleSpaces = regexp.MustCompile(`\s+`)

func generateUniqueSuffix() string {
	b := make([]byte, 4)
	rand.Read(b)
	return hex.EncodeToString(b)
}

func generateSafeFilenamePrefix(title, artist, album string) string {
	if strings.TrimSpace(title) == "" {
		title = "Untitled_Track"
	}

	var parts []string
	if strings.TrimSpace(artist) != "" {
		parts = append(parts, strings.TrimSpace(artist))
	}
	if strings.TrimSpace(album) != "" {
		parts = append(parts, strings.TrimSpace(album))
	}
	parts = append(parts, strings.TrimSpace(title))

	base := strings.Join(parts, " - ")
	base = multipleSpaces.ReplaceAllString(base, "_")
	base = nonAlphaNumeric.ReplaceAllString(base, "")

	maxLength := 100
	if len(base) > maxLength {
		base = base[:maxLength]
	}
	if base == "" {
		base = "fallback_filename"
	}

	return base
}

// maxUploadSize caps the multipart request body (100 MB).
const maxUploadSize = 100 << 20

// uploadSemaphore bounds concurrent uploads.
var uploadSemaphore = make(chan struct{}, 5)

// UploadTrackHandler accepts a multipart audio upload and kicks off the
// ingest pipeline. The response returns as soon as the original file is
// persisted and the track row exists; renditions, waveform and probe data
// are derived asynchronously and appear atomically when the run finishes.
// This is the one ingestion contract: every playable track goes through the
// transcoding pipeline.
func (h *APIHandler) UploadTrackHandler(w http.ResponseWriter, r *http.Request) {
	logger.Info("handling upload request",
		logger.String("remoteAddr", r.RemoteAddr),
		logger.Int64("contentLength", r.ContentLength))

	if r.ContentLength > maxUploadSize {
		writeJSONError(w, http.StatusRequestEntityTooLarge,
			fmt.Sprintf("Request too large. Maximum size is %d MB", maxUploadSize>>20))
		return
	}

	select {
	case uploadSemaphore <- struct{}{}:
		defer func() { <-uploadSemaphore }()
	default:
		logger.Warn("upload rejected, server busy")
		writeJSONError(w, http.StatusServiceUnavailable, "Server is busy, please try again later")
		return
	}

	userID, err := GetUserIDFromContext(r.Context())
	if err != nil {
		writeJSONError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		logger.Warn("failed to parse multipart form", logger.ErrorField(err))
		writeJSONError(w, http.StatusBadRequest, "Invalid multipart form")
		return
	}

	file, header, err := r.FormFile("audio")
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "Missing audio file field")
		return
	}
	defer file.Close()

	title := r.FormValue("title")
	if strings.TrimSpace(title) == "" {
		title = strings.TrimSuffix(header.Filename, path.Ext(header.Filename))
	}
	artist := r.FormValue("artist")
	album := r.FormValue("album")

	visibility := r.FormValue("visibility")
	if visibility != model.VisibilityPrivate {
		visibility = model.VisibilityPublic
	}

	// Optional client-side duration estimate, used if probing fails.
	durationEstimate := 0
	if v := r.FormValue("duration"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			durationEstimate = parsed
		}
	}

	ext := strings.ToLower(path.Ext(header.Filename))
	if _, ok := audioContentTypes[ext]; !ok {
		writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("Unsupported audio format: %s", ext))
		return
	}

	// Spool the upload to a local temp file: ffmpeg needs a real path, and
	// the storage backend may be remote.
	tmp, err := os.CreateTemp("", "wavefm_upload_*"+ext)
	if err != nil {
		logger.Error("failed to create temp file", logger.ErrorField(err))
		writeJSONError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	tmpPath := tmp.Name()

	written, err := io.Copy(tmp, file)
	if err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		logger.Error("failed to spool upload", logger.ErrorField(err))
		writeJSONError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	tmp.Close()

	safeName := generateSafeFilenamePrefix(title, artist, album)
	objectPath := path.Join("audio", fmt.Sprintf("%s_%s%s", safeName, generateUniqueSuffix(), ext))

	src, err := os.Open(tmpPath)
	if err != nil {
		os.Remove(tmpPath)
		logger.Error("failed to reopen spooled upload", logger.ErrorField(err))
		writeJSONError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	saveErr := h.store.Save(r.Context(), objectPath, src, written, contentTypeForPath(objectPath))
	src.Close()
	if saveErr != nil {
		os.Remove(tmpPath)
		logger.Error("failed to store original upload", logger.ErrorField(saveErr))
		writeJSONError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	track := &model.Track{
		UserID:        userID,
		Title:         title,
		Artist:        artist,
		Album:         album,
		FilePath:      objectPath,
		FileSizeBytes: written,
		Visibility:    visibility,
		Status:        "processing",
	}

	trackID, err := h.trackRepo.CreateTrack(track)
	if err != nil {
		os.Remove(tmpPath)
		logger.Error("failed to create track row", logger.ErrorField(err))
		writeJSONError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	track.ID = trackID

	// Derive artifacts in the background. The ingest run owns the temp file.
	go func() {
		defer os.Remove(tmpPath)

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
		defer cancel()

		if err := h.ingestor.Ingest(ctx, trackID, tmpPath, durationEstimate); err != nil {
			logger.Error("ingest failed",
				logger.Int64("trackId", trackID),
				logger.ErrorField(err))
		}
	}()

	logger.Info("upload accepted",
		logger.Int64("trackId", trackID),
		logger.Int64("userId", userID),
		logger.Int64("sizeBytes", written))
	writeJSON(w, http.StatusCreated, track)
}

// GetTracksHandler lists the caller's tracks.
func (h *APIHandler) GetTracksHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := GetUserIDFromContext(r.Context())
	if err != nil {
		writeJSONError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	tracks, err := h.trackRepo.GetAllTracksByUserID(userID)
	if err != nil {
		logger.Error("failed to list tracks", logger.ErrorField(err))
		writeJSONError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	writeJSON(w, http.StatusOK, tracks)
}

// GetTrackHandler returns one track's metadata, honoring visibility.
func (h *APIHandler) GetTrackHandler(w http.ResponseWriter, r *http.Request) {
	trackID, err := parseTrackID(r)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "Invalid track id")
		return
	}

	track, err := h.getTrack(r.Context(), trackID)
	if err != nil {
		logger.Error("failed to look up track", logger.ErrorField(err))
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

	writeJSON(w, http.StatusOK, track)
}

// DeleteTrackHandler removes a track, its play history, and its underlying
// files (original plus renditions).
func (h *APIHandler) DeleteTrackHandler(w http.ResponseWriter, r *http.Request) {
	trackID, err := parseTrackID(r)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "Invalid track id")
		return
	}

	userID, err := GetUserIDFromContext(r.Context())
	if err != nil {
		writeJSONError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	track, err := h.trackRepo.GetTrackByID(trackID)
	if err != nil {
		logger.Error("failed to look up track", logger.ErrorField(err))
		writeJSONError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	if track == nil {
		writeJSONError(w, http.StatusNotFound, "Track not found")
		return
	}
	if track.UserID != userID {
		writeJSONError(w, http.StatusForbidden, "Not the track owner")
		return
	}

	// Files first; a leftover row without files is worse than the reverse.
	for _, objectPath := range []string{track.FilePath, track.RenditionLowPath, track.RenditionMediumPath, track.RenditionHighPath} {
		if objectPath == "" {
			continue
		}
		if err := h.store.Remove(r.Context(), objectPath); err != nil {
			logger.Warn("failed to remove stored object",
				logger.Int64("trackId", trackID),
				logger.String("objectPath", objectPath),
				logger.ErrorField(err))
		}
	}

	if err := h.historyRepo.DeleteByTrack(trackID); err != nil {
		logger.Warn("failed to delete play history",
			logger.Int64("trackId", trackID),
			logger.ErrorField(err))
	}

	if err := h.trackRepo.DeleteTrack(trackID); err != nil {
		logger.Error("failed to delete track row", logger.ErrorField(err))
		writeJSONError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	if err := h.trackCache.Invalidate(r.Context(), trackID); err != nil {
		logger.Warn("failed to invalidate track cache",
			logger.Int64("trackId", trackID),
			logger.ErrorField(err))
	}

	logger.Info("track deleted",
		logger.Int64("trackId", trackID),
		logger.Int64("userId", userID))
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

package server

import (
	"net/http"
	"strconv"

	"WaveFM/logger"
)

// GetHistoryHandler returns the caller's most recent counted plays, newest
// first. The optional limit query parameter caps the result (default 50).
func (h *APIHandler) GetHistoryHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := GetUserIDFromContext(r.Context())
	if err != nil {
		writeJSONError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	entries, err := h.historyRepo.RecentByUser(userID, limit)
	if err != nil {
		logger.Error("failed to query play history",
			logger.Int64("userId", userID),
			logger.ErrorField(err))
		writeJSONError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	writeJSON(w, http.StatusOK, entries)
}

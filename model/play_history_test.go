package model

import (
	"testing"
	"time"
)

func TestPlayHistoryOpen(t *testing.T) {
	entry := &PlayHistory{UserID: 1, TrackID: 2, StartedAt: time.Now()}
	if !entry.Open() {
		t.Error("entry without EndedAt should be open")
	}

	now := time.Now()
	entry.EndedAt = &now
	if entry.Open() {
		t.Error("entry with EndedAt should be closed")
	}
}

package model

import "time"

// PlayHistory records one counted play of a track by a user. A row is opened
// when the debouncer counts a play and closed by the completion signal with
// the actually listened duration. ListenedSeconds stays 0 for rows the client
// never closed.
//
// This model is managed through GORM (newer modules use GORM, older tables
// stay on database/sql).
type PlayHistory struct {
	ID              int64     `json:"id" gorm:"primaryKey;autoIncrement"`
	UserID          int64     `json:"userId" gorm:"index:idx_play_history_user_track"`
	TrackID         int64     `json:"trackId" gorm:"index:idx_play_history_user_track"`
	StartedAt       time.Time `json:"startedAt" gorm:"autoCreateTime"`
	EndedAt         *time.Time `json:"endedAt"`
	ListenedSeconds int       `json:"listenedSeconds"`
}

// TableName keeps the snake_case table name explicit.
func (PlayHistory) TableName() string {
	return "play_history"
}

// Open reports whether the row has not yet received a completion signal.
func (p *PlayHistory) Open() bool {
	return p.EndedAt == nil
}

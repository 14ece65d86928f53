package repository

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"WaveFM/db"
	"WaveFM/model"
)

// MediaArtifacts bundles everything an ingest run derives from a source file.
// The whole set is persisted in one statement so concurrent readers never see
// a mix of old and new rendition paths from different runs.
type MediaArtifacts struct {
	DurationSeconds     int
	BitrateKbps         int
	SampleRateHz        int
	Waveform            []float64
	RenditionLowPath    string
	RenditionMediumPath string
	RenditionHighPath   string
	Status              string
}

// TrackRepository defines the interface for track data operations.
type TrackRepository interface {
	CreateTrack(track *model.Track) (int64, error)
	GetTrackByID(id int64) (*model.Track, error)
	GetAllTracksByUserID(userID int64) ([]*model.Track, error)
	GetTrackByUserIDAndFilePath(userID int64, filePath string) (*model.Track, error)
	// UpdateMediaArtifacts is the rendition store: it atomically associates a
	// track with the artifacts of one completed ingest run.
	UpdateMediaArtifacts(trackID int64, artifacts *MediaArtifacts) error
	IncrementPlayCount(trackID int64) error
	DeleteTrack(trackID int64) error
}

// mysqlTrackRepository implements TrackRepository for MySQL.
type mysqlTrackRepository struct {
	DB *sql.DB
}

// NewMySQLTrackRepository creates a new instance of mysqlTrackRepository.
func NewMySQLTrackRepository() TrackRepository {
	return &mysqlTrackRepository{DB: db.DB}
}

const trackColumns = `id, user_id, title, artist, album, file_path, cover_art_path,
	rendition_low_path, rendition_medium_path, rendition_high_path, waveform,
	duration, bitrate_kbps, sample_rate_hz, file_size_bytes, visibility,
	play_count, status, created_at, updated_at`

// scanTrack reads one row into a Track, decoding the waveform JSON column.
func scanTrack(row interface{ Scan(...interface{}) error }) (*model.Track, error) {
	track := &model.Track{}
	var coverArt, low, medium, high, waveform sql.NullString

	err := row.Scan(&track.ID, &track.UserID, &track.Title, &track.Artist, &track.Album,
		&track.FilePath, &coverArt, &low, &medium, &high, &waveform,
		&track.Duration, &track.BitrateKbps, &track.SampleRateHz, &track.FileSizeBytes,
		&track.Visibility, &track.PlayCount, &track.Status, &track.CreatedAt, &track.UpdatedAt)
	if err != nil {
		return nil, err
	}

	track.CoverArtPath = coverArt.String
	track.RenditionLowPath = low.String
	track.RenditionMediumPath = medium.String
	track.RenditionHighPath = high.String

	track.Waveform = []float64{}
	if waveform.Valid && waveform.String != "" {
		// A corrupt waveform column degrades to an empty envelope.
		if err := json.Unmarshal([]byte(waveform.String), &track.Waveform); err != nil {
			track.Waveform = []float64{}
		}
	}

	return track, nil
}

// CreateTrack adds a new track to the database.
func (r *mysqlTrackRepository) CreateTrack(track *model.Track) (int64, error) {
	query := `INSERT INTO tracks (title, artist, album, file_path, cover_art_path,
		file_size_bytes, visibility, status, user_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	stmt, err := r.DB.Prepare(query)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare statement for CreateTrack: %w", err)
	}
	defer stmt.Close()

	if track.Visibility == "" {
		track.Visibility = model.VisibilityPublic
	}
	if track.Status == "" {
		track.Status = "processing"
	}

	now := time.Now()
	res, err := stmt.Exec(track.Title, track.Artist, track.Album, track.FilePath, track.CoverArtPath,
		track.FileSizeBytes, track.Visibility, track.Status, track.UserID, now, now)
	if err != nil {
		return 0, fmt.Errorf("failed to execute CreateTrack: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID for CreateTrack: %w", err)
	}
	return id, nil
}

// GetTrackByID retrieves a track by its ID. Returns (nil, nil) when absent.
func (r *mysqlTrackRepository) GetTrackByID(id int64) (*model.Track, error) {
	query := `SELECT ` + trackColumns + ` FROM tracks WHERE id = ?`
	track, err := scanTrack(r.DB.QueryRow(query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // Track not found
		}
		return nil, fmt.Errorf("failed to scan track by ID %d: %w", id, err)
	}
	return track, nil
}

// GetAllTracksByUserID retrieves all tracks owned by a user.
func (r *mysqlTrackRepository) GetAllTracksByUserID(userID int64) ([]*model.Track, error) {
	query := `SELECT ` + trackColumns + ` FROM tracks WHERE user_id = ? ORDER BY created_at DESC`
	rows, err := r.DB.Query(query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query tracks for user ID %d: %w", userID, err)
	}
	defer rows.Close()

	tracks := make([]*model.Track, 0)
	for rows.Next() {
		track, err := scanTrack(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan track in GetAllTracksByUserID: %w", err)
		}
		tracks = append(tracks, track)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration in GetAllTracksByUserID: %w", err)
	}

	return tracks, nil
}

// GetTrackByUserIDAndFilePath retrieves a track by owner and file path, used
// to detect duplicate uploads. Returns (nil, nil) when absent.
func (r *mysqlTrackRepository) GetTrackByUserIDAndFilePath(userID int64, filePath string) (*model.Track, error) {
	query := `SELECT ` + trackColumns + ` FROM tracks WHERE user_id = ? AND file_path = ?`
	track, err := scanTrack(r.DB.QueryRow(query, userID, filePath))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to scan track by user ID %d and file_path %s: %w", userID, filePath, err)
	}
	return track, nil
}

// UpdateMediaArtifacts writes all derived columns in a single UPDATE. Tiers
// that failed within the run arrive as empty strings and are recorded as
// such: readers fall back through the rendition chain at resolve time.
func (r *mysqlTrackRepository) UpdateMediaArtifacts(trackID int64, artifacts *MediaArtifacts) error {
	waveform := artifacts.Waveform
	if waveform == nil {
		waveform = []float64{}
	}
	waveformJSON, err := json.Marshal(waveform)
	if err != nil {
		return fmt.Errorf("failed to marshal waveform for track ID %d: %w", trackID, err)
	}

	query := `UPDATE tracks SET
		duration = ?, bitrate_kbps = ?, sample_rate_hz = ?, waveform = ?,
		rendition_low_path = ?, rendition_medium_path = ?, rendition_high_path = ?,
		status = ?, updated_at = ?
		WHERE id = ?`
	stmt, err := r.DB.Prepare(query)
	if err != nil {
		return fmt.Errorf("failed to prepare statement for UpdateMediaArtifacts: %w", err)
	}
	defer stmt.Close()

	_, err = stmt.Exec(artifacts.DurationSeconds, artifacts.BitrateKbps, artifacts.SampleRateHz,
		string(waveformJSON), artifacts.RenditionLowPath, artifacts.RenditionMediumPath,
		artifacts.RenditionHighPath, artifacts.Status, time.Now(), trackID)
	if err != nil {
		return fmt.Errorf("failed to execute UpdateMediaArtifacts for track ID %d: %w", trackID, err)
	}
	return nil
}

// IncrementPlayCount adds one counted play.
func (r *mysqlTrackRepository) IncrementPlayCount(trackID int64) error {
	query := `UPDATE tracks SET play_count = play_count + 1 WHERE id = ?`
	if _, err := r.DB.Exec(query, trackID); err != nil {
		return fmt.Errorf("failed to increment play count for track ID %d: %w", trackID, err)
	}
	return nil
}

// DeleteTrack removes the track row.
func (r *mysqlTrackRepository) DeleteTrack(trackID int64) error {
	query := `DELETE FROM tracks WHERE id = ?`
	if _, err := r.DB.Exec(query, trackID); err != nil {
		return fmt.Errorf("failed to delete track ID %d: %w", trackID, err)
	}
	return nil
}

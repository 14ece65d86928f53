package model

import "time"

// Quality names a target bitrate tier for a track rendition.
type Quality string

const (
	QualityLow      Quality = "low"
	QualityMedium   Quality = "medium"
	QualityHigh     Quality = "high"
	QualityLossless Quality = "lossless"
)

// ParseQuality maps a request parameter to a Quality. Unrecognized or empty
// values default to medium, which is also the documented default tier.
func ParseQuality(s string) Quality {
	switch Quality(s) {
	case QualityLow, QualityMedium, QualityHigh, QualityLossless:
		return Quality(s)
	default:
		return QualityMedium
	}
}

// Visibility values for a track.
const (
	VisibilityPublic  = "public"
	VisibilityPrivate = "private"
)

// Track represents an audio track in the music library.
// FilePath is the losslessly uploaded original; the rendition paths are
// derived encodings and each may be empty if transcoding failed or is still
// pending. Rendition files are immutable once written; re-transcoding writes
// new files and swaps the paths here.
type Track struct {
	ID                  int64     `json:"id"`
	UserID              int64     `json:"userId"`
	Title               string    `json:"title"`
	Artist              string    `json:"artist"`
	Album               string    `json:"album"`
	FilePath            string    `json:"-"` // original audio file, never exposed in API responses
	CoverArtPath        string    `json:"coverArtPath"`
	RenditionLowPath    string    `json:"-"`
	RenditionMediumPath string    `json:"-"`
	RenditionHighPath   string    `json:"-"`
	Waveform            []float64 `json:"waveform"`      // normalized amplitude envelope, empty is valid
	Duration            int       `json:"duration"`      // seconds; 0 means unknown
	BitrateKbps         int       `json:"bitrateKbps"`   // source bitrate, 0 when probe failed
	SampleRateHz        int       `json:"sampleRateHz"`  // source sample rate, 0 when probe failed
	FileSizeBytes       int64     `json:"fileSizeBytes"` // size of the original upload
	Visibility          string    `json:"visibility"`    // public or private
	PlayCount           int64     `json:"playCount"`
	Status              string    `json:"status"` // processing, completed, failed
	CreatedAt           time.Time `json:"createdAt"`
	UpdatedAt           time.Time `json:"updatedAt"`
}

// IsPrivate reports whether only the owner may stream the track.
func (t *Track) IsPrivate() bool {
	return t.Visibility == VisibilityPrivate
}

// ResolveRendition resolves a requested quality tier to an actual file path,
// degrading toward whatever exists rather than failing:
//
//	low      -> low, medium, original
//	medium   -> medium, original
//	high     -> high, original
//	lossless -> original
//
// Returns "" only when no file at all is recorded (failed ingest).
func (t *Track) ResolveRendition(q Quality) string {
	var candidates []string
	switch q {
	case QualityLow:
		candidates = []string{t.RenditionLowPath, t.RenditionMediumPath, t.FilePath}
	case QualityMedium:
		candidates = []string{t.RenditionMediumPath, t.FilePath}
	case QualityHigh:
		candidates = []string{t.RenditionHighPath, t.FilePath}
	default:
		candidates = []string{t.FilePath}
	}
	for _, c := range candidates {
		if c != "" {
			return c
		}
	}
	// Nothing on the preferred path: serve whatever exists at all before
	// giving up. A tier that was never produced must not fail the stream.
	for _, c := range []string{t.FilePath, t.RenditionHighPath, t.RenditionMediumPath, t.RenditionLowPath} {
		if c != "" {
			return c
		}
	}
	return ""
}

// Streamable reports whether at least one file is recorded for the track.
func (t *Track) Streamable() bool {
	return t.FilePath != "" || t.RenditionLowPath != "" ||
		t.RenditionMediumPath != "" || t.RenditionHighPath != ""
}

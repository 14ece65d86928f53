package server

import (
	"path"
	"strings"
)

// audioContentTypes is a fixed extension lookup; no content sniffing, so the
// mapping stays deterministic and testable.
var audioContentTypes = map[string]string{
	".mp3":  "audio/mpeg",
	".wav":  "audio/wav",
	".flac": "audio/flac",
	".aac":  "audio/aac",
	".ogg":  "audio/ogg",
	".m4a":  "audio/mp4",
}

// defaultAudioContentType is the safe fallback for unrecognized extensions.
const defaultAudioContentType = "audio/mpeg"

// contentTypeForPath maps a file path to its audio MIME type by extension.
func contentTypeForPath(p string) string {
	ext := strings.ToLower(path.Ext(p))
	if ct, ok := audioContentTypes[ext]; ok {
		return ct
	}
	return defaultAudioContentType
}

package server

import "testing"

func TestContentTypeForPath(t *testing.T) {
	cases := []struct {
		path string
		want string
	}{
		{"audio/song.mp3", "audio/mpeg"},
		{"audio/song.MP3", "audio/mpeg"},
		{"audio/song.wav", "audio/wav"},
		{"audio/song.flac", "audio/flac"},
		{"audio/song.aac", "audio/aac"},
		{"audio/song.ogg", "audio/ogg"},
		{"audio/song.m4a", "audio/mp4"},
		{"renditions/7/low-abc123.mp3", "audio/mpeg"},
		{"audio/song.xyz", "audio/mpeg"},
		{"audio/noext", "audio/mpeg"},
	}

	for _, tc := range cases {
		if got := contentTypeForPath(tc.path); got != tc.want {
			t.Errorf("contentTypeForPath(%q) = %q, want %q", tc.path, got, tc.want)
		}
	}
}

package model

import "testing"

func TestParseQuality(t *testing.T) {
	cases := []struct {
		in   string
		want Quality
	}{
		{"low", QualityLow},
		{"medium", QualityMedium},
		{"high", QualityHigh},
		{"lossless", QualityLossless},
		{"", QualityMedium},
		{"ultra", QualityMedium},
		{"LOW", QualityMedium},
	}

	for _, tc := range cases {
		if got := ParseQuality(tc.in); got != tc.want {
			t.Errorf("ParseQuality(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestResolveRenditionPreferredChains(t *testing.T) {
	full := &Track{
		FilePath:            "audio/orig.flac",
		RenditionLowPath:    "renditions/1/low-a.mp3",
		RenditionMediumPath: "renditions/1/medium-a.mp3",
		RenditionHighPath:   "renditions/1/high-a.mp3",
	}

	cases := []struct {
		q    Quality
		want string
	}{
		{QualityLow, "renditions/1/low-a.mp3"},
		{QualityMedium, "renditions/1/medium-a.mp3"},
		{QualityHigh, "renditions/1/high-a.mp3"},
		{QualityLossless, "audio/orig.flac"},
	}

	for _, tc := range cases {
		if got := full.ResolveRendition(tc.q); got != tc.want {
			t.Errorf("quality %s: got %q, want %q", tc.q, got, tc.want)
		}
	}
}

func TestResolveRenditionDegrades(t *testing.T) {
	// Low tier failed: low requests get medium, then the original.
	track := &Track{
		FilePath:            "audio/orig.flac",
		RenditionMediumPath: "renditions/1/medium-a.mp3",
	}
	if got := track.ResolveRendition(QualityLow); got != "renditions/1/medium-a.mp3" {
		t.Errorf("low with missing low tier: got %q, want medium rendition", got)
	}

	track.RenditionMediumPath = ""
	if got := track.ResolveRendition(QualityLow); got != "audio/orig.flac" {
		t.Errorf("low with no renditions: got %q, want original", got)
	}
	if got := track.ResolveRendition(QualityHigh); got != "audio/orig.flac" {
		t.Errorf("high with no renditions: got %q, want original", got)
	}
}

func TestResolveRenditionServesWhateverExists(t *testing.T) {
	// Only a high rendition exists: every tier must still serve bytes.
	track := &Track{RenditionHighPath: "renditions/1/high-a.mp3"}

	for _, q := range []Quality{QualityLow, QualityMedium, QualityHigh, QualityLossless} {
		if got := track.ResolveRendition(q); got != "renditions/1/high-a.mp3" {
			t.Errorf("quality %s: got %q, want the only existing file", q, got)
		}
	}
}

func TestResolveRenditionEmptyTrack(t *testing.T) {
	track := &Track{}
	if got := track.ResolveRendition(QualityMedium); got != "" {
		t.Errorf("empty track: got %q, want empty", got)
	}
	if track.Streamable() {
		t.Error("empty track must not be streamable")
	}
}

func TestStreamable(t *testing.T) {
	if !(&Track{FilePath: "audio/a.mp3"}).Streamable() {
		t.Error("track with original should be streamable")
	}
	if !(&Track{RenditionLowPath: "renditions/1/low-a.mp3"}).Streamable() {
		t.Error("track with only a rendition should be streamable")
	}
}

func TestIsPrivate(t *testing.T) {
	if (&Track{Visibility: VisibilityPublic}).IsPrivate() {
		t.Error("public track reported private")
	}
	if !(&Track{Visibility: VisibilityPrivate}).IsPrivate() {
		t.Error("private track reported public")
	}
}

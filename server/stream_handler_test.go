package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"WaveFM/cache"
	"WaveFM/config"
	"WaveFM/core/play"
	"WaveFM/model"
	"WaveFM/repository"
	"WaveFM/storage"

	"github.com/gorilla/mux"
)

func TestParseByteRange(t *testing.T) {
	const size = 1000
	const chunk = 64

	cases := []struct {
		name      string
		header    string
		wantStart int64
		wantEnd   int64
		wantErr   error
	}{
		{name: "open ended capped at chunk", header: "bytes=0-", wantStart: 0, wantEnd: 63},
		{name: "open ended mid file", header: "bytes=100-", wantStart: 100, wantEnd: 163},
		{name: "open ended near tail clamps", header: "bytes=990-", wantStart: 990, wantEnd: 999},
		{name: "explicit range", header: "bytes=10-19", wantStart: 10, wantEnd: 19},
		{name: "explicit range wider than chunk", header: "bytes=0-499", wantStart: 0, wantEnd: 499},
		{name: "explicit end clamps to file", header: "bytes=900-5000", wantStart: 900, wantEnd: 999},
		{name: "last byte", header: "bytes=999-", wantStart: 999, wantEnd: 999},
		{name: "start at size", header: "bytes=1000-", wantErr: errRangeNotSatisfiable},
		{name: "start beyond size", header: "bytes=2000-2100", wantErr: errRangeNotSatisfiable},
		{name: "missing prefix", header: "0-99", wantErr: errInvalidRange},
		{name: "suffix form unsupported", header: "bytes=-100", wantErr: errInvalidRange},
		{name: "multiple ranges unsupported", header: "bytes=0-1,5-6", wantErr: errInvalidRange},
		{name: "end before start", header: "bytes=50-40", wantErr: errInvalidRange},
		{name: "garbage start", header: "bytes=abc-", wantErr: errInvalidRange},
		{name: "garbage end", header: "bytes=0-xyz", wantErr: errInvalidRange},
		{name: "no dash", header: "bytes=100", wantErr: errInvalidRange},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			start, end, err := parseByteRange(tc.header, size, chunk)
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("err = %v, want %v", err, tc.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if start != tc.wantStart || end != tc.wantEnd {
				t.Errorf("got %d-%d, want %d-%d", start, end, tc.wantStart, tc.wantEnd)
			}
		})
	}
}

// stubTrackRepo serves tracks from a map. IncrementPlayCount signals on the
// counted channel so tests can observe the async play accounting.
type stubTrackRepo struct {
	tracks  map[int64]*model.Track
	counted chan int64
}

func (r *stubTrackRepo) CreateTrack(track *model.Track) (int64, error) { return 0, nil }

func (r *stubTrackRepo) GetTrackByID(id int64) (*model.Track, error) {
	return r.tracks[id], nil
}

func (r *stubTrackRepo) GetAllTracksByUserID(userID int64) ([]*model.Track, error) {
	return nil, nil
}

func (r *stubTrackRepo) GetTrackByUserIDAndFilePath(userID int64, filePath string) (*model.Track, error) {
	return nil, nil
}

func (r *stubTrackRepo) UpdateMediaArtifacts(trackID int64, artifacts *repository.MediaArtifacts) error {
	return nil
}

func (r *stubTrackRepo) IncrementPlayCount(trackID int64) error {
	if r.counted != nil {
		r.counted <- trackID
	}
	return nil
}

func (r *stubTrackRepo) DeleteTrack(trackID int64) error { return nil }

type stubHistoryRepo struct{}

func (r *stubHistoryRepo) OpenEntry(userID, trackID int64) error                  { return nil }
func (r *stubHistoryRepo) CloseLatest(userID, trackID int64, seconds int) error   { return nil }
func (r *stubHistoryRepo) RecentByUser(userID int64, limit int) ([]*model.PlayHistory, error) {
	return nil, nil
}
func (r *stubHistoryRepo) DeleteByTrack(trackID int64) error { return nil }

// newStreamFixture builds a handler over a real local store with one saved
// object per given track.
func newStreamFixture(t *testing.T, repo *stubTrackRepo, files map[string]string) (*APIHandler, *mux.Router) {
	t.Helper()

	store, err := storage.NewLocalProvider(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocalProvider: %v", err)
	}
	for objectPath, content := range files {
		if err := store.Save(context.Background(), objectPath, strings.NewReader(content), int64(len(content)), ""); err != nil {
			t.Fatalf("Save %s: %v", objectPath, err)
		}
	}

	cfg := &config.Config{
		StreamChunkSize:    8,
		PlayStartThreshold: 1000,
	}
	history := &stubHistoryRepo{}
	recorder := play.NewRecorder(play.NewMemoryDebouncer(30*time.Second, 100, time.Minute), repo, history)
	h := NewAPIHandler(repo, nil, history, nil, recorder, store, cache.NewTrackCache(nil, 0), cfg)

	router := mux.NewRouter()
	router.HandleFunc("/stream/{track_id}", h.StreamTrackHandler).Methods(http.MethodGet)
	router.HandleFunc("/stream/{track_id}/complete", h.CompletePlayHandler).Methods(http.MethodPost)
	router.HandleFunc("/stream/{track_id}/waveform", h.WaveformHandler).Methods(http.MethodGet)
	return h, router
}

func asUser(r *http.Request, userID int64) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), "userID", userID))
}

func TestStreamFullFile(t *testing.T) {
	content := "0123456789abcdefghij"
	repo := &stubTrackRepo{tracks: map[int64]*model.Track{
		1: {ID: 1, UserID: 7, FilePath: "audio/a.mp3", Visibility: model.VisibilityPublic, Duration: 180},
	}}
	_, router := newStreamFixture(t, repo, map[string]string{"audio/a.mp3": content})

	req := httptest.NewRequest(http.MethodGet, "/stream/1", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if got := rec.Body.String(); got != content {
		t.Errorf("body = %q, want full file", got)
	}
	if got := rec.Header().Get("Accept-Ranges"); got != "bytes" {
		t.Errorf("Accept-Ranges = %q", got)
	}
	if got := rec.Header().Get("Cache-Control"); got != "public, max-age=86400" {
		t.Errorf("Cache-Control = %q", got)
	}
	if got := rec.Header().Get("X-Content-Duration"); got != "180" {
		t.Errorf("X-Content-Duration = %q", got)
	}
	if got := rec.Header().Get("Content-Type"); got != "audio/mpeg" {
		t.Errorf("Content-Type = %q", got)
	}
}

func TestStreamOpenEndedRangeServesOneChunk(t *testing.T) {
	content := "0123456789abcdefghij" // 20 bytes, chunk size 8
	repo := &stubTrackRepo{tracks: map[int64]*model.Track{
		1: {ID: 1, UserID: 7, FilePath: "audio/a.mp3", Visibility: model.VisibilityPublic},
	}}
	_, router := newStreamFixture(t, repo, map[string]string{"audio/a.mp3": content})

	req := httptest.NewRequest(http.MethodGet, "/stream/1", nil)
	req.Header.Set("Range", "bytes=0-")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusPartialContent {
		t.Fatalf("status = %d, want 206", rec.Code)
	}
	if got := rec.Header().Get("Content-Range"); got != "bytes 0-7/20" {
		t.Errorf("Content-Range = %q, want %q", got, "bytes 0-7/20")
	}
	if got := rec.Header().Get("Content-Length"); got != "8" {
		t.Errorf("Content-Length = %q, want 8", got)
	}
	if got := rec.Header().Get("Cache-Control"); got != "public, max-age=86400" {
		t.Errorf("Cache-Control = %q", got)
	}
	if got := rec.Body.String(); got != "01234567" {
		t.Errorf("body = %q, want first chunk", got)
	}
}

func TestStreamExplicitRange(t *testing.T) {
	content := "0123456789abcdefghij"
	repo := &stubTrackRepo{tracks: map[int64]*model.Track{
		1: {ID: 1, UserID: 7, FilePath: "audio/a.mp3", Visibility: model.VisibilityPublic},
	}}
	_, router := newStreamFixture(t, repo, map[string]string{"audio/a.mp3": content})

	req := httptest.NewRequest(http.MethodGet, "/stream/1", nil)
	req.Header.Set("Range", "bytes=10-13")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusPartialContent {
		t.Fatalf("status = %d, want 206", rec.Code)
	}
	if got := rec.Header().Get("Content-Range"); got != "bytes 10-13/20" {
		t.Errorf("Content-Range = %q", got)
	}
	if got := rec.Body.String(); got != "abcd" {
		t.Errorf("body = %q, want %q", got, "abcd")
	}
}

func TestStreamRangeNotSatisfiable(t *testing.T) {
	content := "0123456789abcdefghij"
	repo := &stubTrackRepo{tracks: map[int64]*model.Track{
		1: {ID: 1, UserID: 7, FilePath: "audio/a.mp3", Visibility: model.VisibilityPublic},
	}}
	_, router := newStreamFixture(t, repo, map[string]string{"audio/a.mp3": content})

	req := httptest.NewRequest(http.MethodGet, "/stream/1", nil)
	req.Header.Set("Range", "bytes=20-")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusRequestedRangeNotSatisfiable {
		t.Fatalf("status = %d, want 416", rec.Code)
	}
	if got := rec.Header().Get("Content-Range"); got != "bytes */20" {
		t.Errorf("Content-Range = %q, want %q", got, "bytes */20")
	}
	if got := rec.Header().Get("Cache-Control"); got != "" {
		t.Errorf("416 carries Cache-Control = %q, error responses must not be cacheable", got)
	}
}

func TestStreamErrorResponsesNotCacheable(t *testing.T) {
	repo := &stubTrackRepo{tracks: map[int64]*model.Track{
		1: {ID: 1, UserID: 7, FilePath: "audio/a.mp3", Visibility: model.VisibilityPublic},
	}}
	_, router := newStreamFixture(t, repo, map[string]string{"audio/a.mp3": "0123456789"})

	// Unsatisfiable and malformed ranges fail after the file is opened; none
	// of those error bodies may go out with the public cache directive.
	for _, header := range []string{"bytes=100-", "bytes=-5", "bytes=abc-"} {
		req := httptest.NewRequest(http.MethodGet, "/stream/1", nil)
		req.Header.Set("Range", header)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		if rec.Code == http.StatusOK || rec.Code == http.StatusPartialContent {
			t.Fatalf("header %q: unexpected success status %d", header, rec.Code)
		}
		if got := rec.Header().Get("Cache-Control"); got != "" {
			t.Errorf("header %q: error response carries Cache-Control = %q", header, got)
		}
		if got := rec.Header().Get("X-Content-Duration"); got != "" {
			t.Errorf("header %q: error response carries X-Content-Duration = %q", header, got)
		}
	}
}

func TestStreamMalformedRange(t *testing.T) {
	repo := &stubTrackRepo{tracks: map[int64]*model.Track{
		1: {ID: 1, UserID: 7, FilePath: "audio/a.mp3", Visibility: model.VisibilityPublic},
	}}
	_, router := newStreamFixture(t, repo, map[string]string{"audio/a.mp3": "0123456789"})

	for _, header := range []string{"bytes=-100", "bytes=0-1,5-6", "bytes=abc-", "items=0-5"} {
		req := httptest.NewRequest(http.MethodGet, "/stream/1", nil)
		req.Header.Set("Range", header)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		if rec.Code != http.StatusBadRequest {
			t.Errorf("header %q: status = %d, want 400", header, rec.Code)
		}
	}
}

func TestStreamTrackNotFound(t *testing.T) {
	repo := &stubTrackRepo{tracks: map[int64]*model.Track{}}
	_, router := newStreamFixture(t, repo, nil)

	req := httptest.NewRequest(http.MethodGet, "/stream/99", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestStreamPrivateTrackVisibility(t *testing.T) {
	repo := &stubTrackRepo{tracks: map[int64]*model.Track{
		1: {ID: 1, UserID: 7, FilePath: "audio/a.mp3", Visibility: model.VisibilityPrivate},
	}}
	_, router := newStreamFixture(t, repo, map[string]string{"audio/a.mp3": "secret"})

	// Anonymous callers get 403.
	req := httptest.NewRequest(http.MethodGet, "/stream/1", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Errorf("anonymous: status = %d, want 403", rec.Code)
	}

	// So does everyone but the owner.
	req = asUser(httptest.NewRequest(http.MethodGet, "/stream/1", nil), 8)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Errorf("non-owner: status = %d, want 403", rec.Code)
	}

	req = asUser(httptest.NewRequest(http.MethodGet, "/stream/1", nil), 7)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("owner: status = %d, want 200", rec.Code)
	}
}

func TestStreamQualityFallback(t *testing.T) {
	// Only a high rendition exists; a low-quality request still gets bytes.
	repo := &stubTrackRepo{tracks: map[int64]*model.Track{
		1: {ID: 1, UserID: 7, RenditionHighPath: "renditions/1/high-x.mp3", Visibility: model.VisibilityPublic},
	}}
	_, router := newStreamFixture(t, repo, map[string]string{"renditions/1/high-x.mp3": "high bytes"})

	req := httptest.NewRequest(http.MethodGet, "/stream/1?quality=low", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if got := rec.Body.String(); got != "high bytes" {
		t.Errorf("body = %q, want the high rendition", got)
	}
}

func TestStreamNoFileRecorded(t *testing.T) {
	repo := &stubTrackRepo{tracks: map[int64]*model.Track{
		1: {ID: 1, UserID: 7, Visibility: model.VisibilityPublic},
	}}
	_, router := newStreamFixture(t, repo, nil)

	req := httptest.NewRequest(http.MethodGet, "/stream/1", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestStreamPlayStartHeuristic(t *testing.T) {
	content := strings.Repeat("x", 5000)
	repo := &stubTrackRepo{
		tracks: map[int64]*model.Track{
			1: {ID: 1, UserID: 7, FilePath: "audio/a.mp3", Visibility: model.VisibilityPublic},
		},
		counted: make(chan int64, 1),
	}
	_, router := newStreamFixture(t, repo, map[string]string{"audio/a.mp3": content})

	// Authenticated request near the head of the file counts a play.
	req := asUser(httptest.NewRequest(http.MethodGet, "/stream/1", nil), 42)
	req.Header.Set("Range", "bytes=0-")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusPartialContent {
		t.Fatalf("status = %d, want 206", rec.Code)
	}

	select {
	case id := <-repo.counted:
		if id != 1 {
			t.Errorf("counted track %d, want 1", id)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("expected a counted play for a head-of-file request")
	}

	// A seek deep into the file is not a play start.
	req = asUser(httptest.NewRequest(http.MethodGet, "/stream/1", nil), 42)
	req.Header.Set("Range", "bytes=4000-")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusPartialContent {
		t.Fatalf("status = %d, want 206", rec.Code)
	}

	select {
	case <-repo.counted:
		t.Fatal("seek past the threshold must not count a play")
	case <-time.After(200 * time.Millisecond):
	}
}

func TestWaveformHandler(t *testing.T) {
	repo := &stubTrackRepo{tracks: map[int64]*model.Track{
		1: {ID: 1, UserID: 7, FilePath: "audio/a.mp3", Visibility: model.VisibilityPublic,
			Waveform: []float64{0.1, 0.5, 0.9}},
		2: {ID: 2, UserID: 7, FilePath: "audio/b.mp3", Visibility: model.VisibilityPublic},
	}}
	_, router := newStreamFixture(t, repo, nil)

	req := httptest.NewRequest(http.MethodGet, "/stream/1/waveform", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp struct {
		Waveform []float64 `json:"waveform"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Waveform) != 3 || resp.Waveform[1] != 0.5 {
		t.Errorf("waveform = %v", resp.Waveform)
	}

	// A track without a waveform returns an empty array, not null.
	req = httptest.NewRequest(http.MethodGet, "/stream/2/waveform", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if body := rec.Body.String(); !strings.Contains(body, `"waveform":[]`) {
		t.Errorf("body = %q, want empty waveform array", body)
	}
}

func TestCompletePlayIsAlwaysOK(t *testing.T) {
	repo := &stubTrackRepo{tracks: map[int64]*model.Track{}}
	_, router := newStreamFixture(t, repo, nil)

	body := strings.NewReader(`{"durationSeconds": 95}`)
	req := httptest.NewRequest(http.MethodPost, "/stream/1/complete", body)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("anonymous completion: status = %d, want 200", rec.Code)
	}

	req = asUser(httptest.NewRequest(http.MethodPost, "/stream/1/complete", strings.NewReader(`{"durationSeconds": 95}`)), 42)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("authenticated completion: status = %d, want 200", rec.Code)
	}
}

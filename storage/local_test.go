package storage

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func newTestProvider(t *testing.T) *LocalProvider {
	t.Helper()
	p, err := NewLocalProvider(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocalProvider: %v", err)
	}
	return p
}

func TestLocalSaveOpenRoundTrip(t *testing.T) {
	p := newTestProvider(t)
	ctx := context.Background()
	content := "some audio bytes"

	if err := p.Save(ctx, "audio/song.mp3", strings.NewReader(content), int64(len(content)), "audio/mpeg"); err != nil {
		t.Fatalf("Save: %v", err)
	}

	reader, size, err := p.Open(ctx, "audio/song.mp3")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer reader.Close()

	if size != int64(len(content)) {
		t.Errorf("size = %d, want %d", size, len(content))
	}

	got, err := io.ReadAll(reader)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if string(got) != content {
		t.Errorf("content = %q, want %q", got, content)
	}
}

func TestLocalOpenSeek(t *testing.T) {
	p := newTestProvider(t)
	ctx := context.Background()
	content := "0123456789"

	if err := p.Save(ctx, "audio/song.mp3", strings.NewReader(content), int64(len(content)), ""); err != nil {
		t.Fatalf("Save: %v", err)
	}

	reader, _, err := p.Open(ctx, "audio/song.mp3")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer reader.Close()

	if _, err := reader.Seek(4, io.SeekStart); err != nil {
		t.Fatalf("Seek: %v", err)
	}
	got, err := io.ReadAll(reader)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if string(got) != "456789" {
		t.Errorf("after seek got %q, want %q", got, "456789")
	}
}

func TestLocalSaveOverwrites(t *testing.T) {
	p := newTestProvider(t)
	ctx := context.Background()

	if err := p.Save(ctx, "audio/song.mp3", strings.NewReader("old"), 3, ""); err != nil {
		t.Fatalf("Save old: %v", err)
	}
	if err := p.Save(ctx, "audio/song.mp3", strings.NewReader("newer"), 5, ""); err != nil {
		t.Fatalf("Save new: %v", err)
	}

	reader, size, err := p.Open(ctx, "audio/song.mp3")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer reader.Close()

	got, _ := io.ReadAll(reader)
	if string(got) != "newer" || size != 5 {
		t.Errorf("got %q (size %d), want %q (size 5)", got, size, "newer")
	}
}

func TestLocalOverwriteKeepsOldReaderValid(t *testing.T) {
	p := newTestProvider(t)
	ctx := context.Background()
	oldContent := "old rendition bytes"
	newContent := "completely different new bytes"

	if err := p.Save(ctx, "renditions/1/medium.mp3", strings.NewReader(oldContent), int64(len(oldContent)), ""); err != nil {
		t.Fatalf("Save old: %v", err)
	}

	// A stream in flight holds a handle to the old object while a re-ingest
	// swaps in the new one. The old handle must keep serving the complete old
	// bytes, never a mix.
	reader, size, err := p.Open(ctx, "renditions/1/medium.mp3")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer reader.Close()

	if err := p.Save(ctx, "renditions/1/medium.mp3", strings.NewReader(newContent), int64(len(newContent)), ""); err != nil {
		t.Fatalf("Save new: %v", err)
	}

	got, err := io.ReadAll(reader)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if string(got) != oldContent || size != int64(len(oldContent)) {
		t.Errorf("in-flight reader got %q (size %d), want the old content intact", got, size)
	}

	// A fresh open sees the new object.
	fresh, freshSize, err := p.Open(ctx, "renditions/1/medium.mp3")
	if err != nil {
		t.Fatalf("Open after overwrite: %v", err)
	}
	defer fresh.Close()
	freshGot, _ := io.ReadAll(fresh)
	if string(freshGot) != newContent || freshSize != int64(len(newContent)) {
		t.Errorf("fresh reader got %q (size %d), want the new content", freshGot, freshSize)
	}
}

func TestLocalSaveLeavesNoTempFiles(t *testing.T) {
	root := t.TempDir()
	p, err := NewLocalProvider(root)
	if err != nil {
		t.Fatalf("NewLocalProvider: %v", err)
	}

	if err := p.Save(context.Background(), "audio/song.mp3", strings.NewReader("x"), 1, ""); err != nil {
		t.Fatalf("Save: %v", err)
	}

	entries, err := os.ReadDir(filepath.Join(root, "audio"))
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 1 || entries[0].Name() != "song.mp3" {
		names := make([]string, 0, len(entries))
		for _, e := range entries {
			names = append(names, e.Name())
		}
		t.Errorf("expected only song.mp3, got %v", names)
	}
}

func TestLocalExistsAndRemove(t *testing.T) {
	p := newTestProvider(t)
	ctx := context.Background()

	ok, err := p.Exists(ctx, "audio/missing.mp3")
	if err != nil {
		t.Fatalf("Exists: %v", err)
	}
	if ok {
		t.Error("missing object reported as existing")
	}

	if err := p.Save(ctx, "audio/song.mp3", strings.NewReader("x"), 1, ""); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if ok, _ := p.Exists(ctx, "audio/song.mp3"); !ok {
		t.Error("saved object reported as missing")
	}

	if err := p.Remove(ctx, "audio/song.mp3"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if ok, _ := p.Exists(ctx, "audio/song.mp3"); ok {
		t.Error("removed object still reported as existing")
	}

	// Removing a missing object is not an error.
	if err := p.Remove(ctx, "audio/song.mp3"); err != nil {
		t.Errorf("Remove missing: %v", err)
	}
}

func TestLocalRejectsTraversal(t *testing.T) {
	p := newTestProvider(t)
	ctx := context.Background()

	// Relative components are forced under the root; a path that cleans to
	// the root itself is rejected outright.
	if _, _, err := p.Open(ctx, ".."); err == nil {
		t.Error("expected traversal to be rejected")
	}
	if err := p.Save(ctx, "..", strings.NewReader("x"), 1, ""); err == nil {
		t.Error("expected traversal to be rejected")
	}

	// "../x" resolves inside the root rather than escaping it.
	if err := p.Save(ctx, "../escape.mp3", strings.NewReader("x"), 1, ""); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if ok, _ := p.Exists(ctx, "escape.mp3"); !ok {
		t.Error("expected ../escape.mp3 to land at the root as escape.mp3")
	}
}
